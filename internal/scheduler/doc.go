// Package scheduler runs jobs on the fire times computed by their
// triggers.
//
// # Overview
//
// Jobs are registered under a stable, human readable name together with a
// trigger from pkg/trigger and a run function. A single planner goroutine
// asks each job's trigger for its next fire time, sleeps until the
// earliest one, and enqueues due jobs to a bounded queue drained by a
// worker pool. Triggers themselves never sleep; all timers live here.
//
// # Concurrency and overlap
//
// Jobs run on the worker pool with a per-job timeout. The TaskOptions
// overlap policy either allows overlapping runs or skips a run while the
// previous one is still executing. An optional global rate limit smooths
// thundering herds of simultaneously-due jobs.
//
// # Lifecycle
//
// The Service can be started and stopped at runtime (e.g. on config hot
// reload). Registering jobs while stopped is supported: definitions are
// stored and picked up on the next start. A StateHook, when set, is
// invoked after every trigger advance so the caller can persist the
// trigger's snapshot.
package scheduler
