package trigger

import (
	"fmt"
	"time"
)

// validateTriggers checks the sub-trigger list handed to a combinator.
// Combinators fail at construction, never lazily on the first Next.
func validateTriggers(triggers []Trigger) error {
	if len(triggers) == 0 {
		return fmt.Errorf("at least one trigger is required")
	}
	for i, t := range triggers {
		if t == nil {
			return fmt.Errorf("triggers[%d] is nil", i)
		}
	}
	return nil
}

func validateThreshold(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("threshold must not be negative, got %s", d)
	}
	return nil
}

func validateMaxIterations(n int) error {
	if n <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", n)
	}
	return nil
}

// durationFromSeconds converts a persisted seconds value back to a
// duration. Snapshots store the threshold in seconds to keep them readable
// and toolchain-agnostic.
func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
