package config

import (
	"fmt"
	"time"

	"chime/pkg/trigger"
)

// TriggerSpec is the declarative form of a trigger tree. Combinator specs
// nest arbitrarily.
type TriggerSpec struct {
	Kind string `json:"kind"`

	// and / or
	Triggers      []TriggerSpec `json:"triggers,omitempty"`
	Threshold     *Duration     `json:"threshold,omitempty"`
	MaxIterations int           `json:"max_iterations,omitempty"`

	// interval
	Every Duration   `json:"every,omitempty"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`

	// cron
	Spec     string `json:"spec,omitempty"`
	Location string `json:"location,omitempty"`

	// date
	At *time.Time `json:"at,omitempty"`
}

func (s TriggerSpec) validate() error {
	switch s.Kind {
	case trigger.KindAnd, trigger.KindOr:
		if len(s.Triggers) == 0 {
			return fmt.Errorf("%s trigger: at least one sub-trigger is required", s.Kind)
		}
		for i := range s.Triggers {
			if err := s.Triggers[i].validate(); err != nil {
				return fmt.Errorf("%s trigger: sub-trigger %d: %w", s.Kind, i, err)
			}
		}
		return nil
	case trigger.KindInterval:
		if s.Every.Std() <= 0 {
			return fmt.Errorf("interval trigger: every must be positive")
		}
		return nil
	case trigger.KindCron:
		if s.Spec == "" {
			return fmt.Errorf("cron trigger: spec is required")
		}
		return nil
	case trigger.KindDate:
		if s.At == nil {
			return fmt.Errorf("date trigger: at is required")
		}
		return nil
	case "":
		return fmt.Errorf("trigger kind is required")
	default:
		return fmt.Errorf("unknown trigger kind %q", s.Kind)
	}
}

// Build turns the spec into a live trigger. now anchors open-ended
// schedules: an interval without start begins at now, a cron schedule
// produces activations strictly after now.
func (s TriggerSpec) Build(now time.Time) (trigger.Trigger, error) {
	switch s.Kind {
	case trigger.KindAnd:
		subs, err := s.buildSubs(now)
		if err != nil {
			return nil, err
		}
		opts := trigger.AndOptions{MaxIterations: s.MaxIterations}
		if s.Threshold != nil {
			opts.Threshold = s.Threshold.Std()
		}
		return trigger.NewAndTrigger(subs, opts)
	case trigger.KindOr:
		subs, err := s.buildSubs(now)
		if err != nil {
			return nil, err
		}
		return trigger.NewOrTrigger(subs)
	case trigger.KindInterval:
		start := now
		if s.Start != nil {
			start = *s.Start
		}
		var end time.Time
		if s.End != nil {
			end = *s.End
		}
		return trigger.NewIntervalTrigger(start, s.Every.Std(), end)
	case trigger.KindCron:
		opts := trigger.CronOptions{}
		if s.Location != "" {
			loc, err := time.LoadLocation(s.Location)
			if err != nil {
				return nil, fmt.Errorf("cron trigger: load location %q: %w", s.Location, err)
			}
			opts.Location = loc
		}
		if s.End != nil {
			opts.End = *s.End
		}
		return trigger.NewCronTrigger(s.Spec, now, opts)
	case trigger.KindDate:
		if s.At == nil {
			return nil, fmt.Errorf("date trigger: at is required")
		}
		return trigger.NewDateTrigger(*s.At), nil
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", s.Kind)
	}
}

func (s TriggerSpec) buildSubs(now time.Time) ([]trigger.Trigger, error) {
	subs := make([]trigger.Trigger, len(s.Triggers))
	for i := range s.Triggers {
		sub, err := s.Triggers[i].Build(now)
		if err != nil {
			return nil, fmt.Errorf("%s trigger: sub-trigger %d: %w", s.Kind, i, err)
		}
		subs[i] = sub
	}
	return subs, nil
}
