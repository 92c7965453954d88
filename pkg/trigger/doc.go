// Package trigger computes the fire times of job schedules.
//
// A Trigger is a stateful producer: every Next call yields the next point
// in time the schedule is due, or nil once the schedule has run out.
// Concrete producers cover one-shot dates, fixed intervals and cron
// expressions. Two combinators compose them:
//
//   - AndTrigger fires when all of its sub-triggers are due within a
//     configurable threshold of each other.
//   - OrTrigger fires on every fire time of every sub-trigger, in
//     chronological order, reporting a shared instant only once.
//
// Triggers never sleep; they only do date arithmetic. The surrounding
// scheduler owns all timers.
//
// Every trigger kind registers a codec so trigger state (including a
// combinator's progress through its sub-triggers) can be persisted and
// restored exactly, e.g. across a daemon restart. See Marshal/Unmarshal.
//
// A Trigger instance is not safe for concurrent use; callers serialize
// access per instance.
package trigger
