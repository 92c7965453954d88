package trigger

import (
	"errors"
	"time"
)

// Trigger produces the successive fire times of a schedule.
//
// Contract:
//   - Next advances the trigger by one step and returns the next fire
//     time, or nil once the trigger is exhausted.
//   - Returned times are monotonically non-decreasing across calls.
//   - Exhaustion is permanent: after the first nil, every later call
//     returns nil again.
//   - Errors are returned to the caller as-is; a trigger does not retry.
type Trigger interface {
	Next() (*time.Time, error)

	// Kind is the stable identity used to marshal this trigger.
	Kind() string
}

// ErrMaxIterations is returned by AndTrigger.Next when no within-threshold
// coincidence was found within the configured iteration cap. It signals a
// misconfiguration: the threshold is too tight for the sub-triggers'
// granularities, or their schedules never align.
var ErrMaxIterations = errors.New("trigger: maximum iterations reached without a coinciding fire time")
