package trigger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// combiningVersion is the snapshot format version shared by both
// combinators.
const combiningVersion = 1

const (
	KindAnd = "and"
	KindOr  = "or"
)

// Defaults for AndOptions.
const (
	DefaultThreshold     = time.Second
	DefaultMaxIterations = 10000
)

func init() {
	RegisterCodec(KindAnd, Codec{Encode: encodeAnd, Decode: decodeAnd})
	RegisterCodec(KindOr, Codec{Encode: encodeOr, Decode: decodeOr})
}

// combining holds the ordered sub-trigger collection and the frontier
// cache shared by AndTrigger and OrTrigger.
//
// frontier caches one pending fire time per sub-trigger, in the same order
// and of the same length as triggers at all times. A nil entry means that
// sub-trigger is exhausted; an entry never goes from nil back to a value.
// frontier itself is nil until the first Next call primes it.
type combining struct {
	triggers []Trigger
	frontier []*time.Time
}

func newCombining(triggers []Trigger) (combining, error) {
	if err := validateTriggers(triggers); err != nil {
		return combining{}, err
	}
	return combining{triggers: append([]Trigger(nil), triggers...)}, nil
}

// prime fills the frontier by pulling one value from every sub-trigger.
// Nothing is committed on error, so the combinator stays unprimed.
func (c *combining) prime() error {
	if c.frontier != nil {
		return nil
	}
	fts := make([]*time.Time, len(c.triggers))
	for i, t := range c.triggers {
		ft, err := t.Next()
		if err != nil {
			return err
		}
		fts[i] = ft
	}
	c.frontier = fts
	return nil
}

// advance replaces the frontier entry of sub-trigger i with a fresh value.
func (c *combining) advance(i int) error {
	ft, err := c.triggers[i].Next()
	if err != nil {
		return err
	}
	c.frontier[i] = ft
	return nil
}

// combiningState is the wire form of a combinator snapshot. Threshold and
// MaxIterations are only present for AndTrigger.
type combiningState struct {
	Version       int          `json:"version"`
	Triggers      []Marshalled `json:"triggers"`
	NextFireTimes []*time.Time `json:"next_fire_times"`
	Threshold     *float64     `json:"threshold,omitempty"`
	MaxIterations *int         `json:"max_iterations,omitempty"`
}

func (c *combining) state() (combiningState, error) {
	ms := make([]Marshalled, len(c.triggers))
	for i, t := range c.triggers {
		m, err := Marshal(t)
		if err != nil {
			return combiningState{}, err
		}
		ms[i] = m
	}
	return combiningState{
		Version:       combiningVersion,
		Triggers:      ms,
		NextFireTimes: c.frontier,
	}, nil
}

// restore rebuilds the sub-triggers through the codec registry and adopts
// the persisted frontier verbatim. No sub-trigger is asked for a fire
// time here: the restored combinator continues exactly where the
// snapshotted one left off.
func (c *combining) restore(kind string, st combiningState) error {
	if err := requireVersion(kind, combiningVersion, st.Version); err != nil {
		return err
	}
	triggers := make([]Trigger, len(st.Triggers))
	for i, m := range st.Triggers {
		t, err := Unmarshal(m)
		if err != nil {
			return fmt.Errorf("%s: triggers[%d]: %w", kind, i, err)
		}
		triggers[i] = t
	}
	if err := validateTriggers(triggers); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if st.NextFireTimes != nil && len(st.NextFireTimes) != len(triggers) {
		return fmt.Errorf("%s: frontier has %d entries for %d triggers", kind, len(st.NextFireTimes), len(triggers))
	}
	c.triggers = triggers
	c.frontier = st.NextFireTimes
	return nil
}

func (c *combining) describe() string {
	parts := make([]string, len(c.triggers))
	for i, t := range c.triggers {
		parts[i] = fmt.Sprint(t)
	}
	return strings.Join(parts, ", ")
}

// AndOptions tunes the coincidence search. Zero values select the
// defaults.
type AndOptions struct {
	// Threshold is the maximum difference between the sub-triggers' fire
	// times for them to count as a single coincidence. Default 1s.
	Threshold time.Duration

	// MaxIterations bounds the narrowing rounds of one Next call before it
	// gives up with ErrMaxIterations. Default 10000.
	MaxIterations int
}

func (o AndOptions) withDefaults() AndOptions {
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// AndTrigger fires only when all of its sub-triggers are due within the
// threshold of each other; the earliest time of the coinciding group is
// reported. It is finished as soon as any sub-trigger is exhausted, even
// if the others could still produce times.
type AndTrigger struct {
	combining
	threshold     time.Duration
	maxIterations int
}

// NewAndTrigger combines triggers into a coincidence schedule.
func NewAndTrigger(triggers []Trigger, opts AndOptions) (*AndTrigger, error) {
	base, err := newCombining(triggers)
	if err != nil {
		return nil, fmt.Errorf("and: %w", err)
	}
	opts = opts.withDefaults()
	if err := validateThreshold(opts.Threshold); err != nil {
		return nil, fmt.Errorf("and: %w", err)
	}
	if err := validateMaxIterations(opts.MaxIterations); err != nil {
		return nil, fmt.Errorf("and: %w", err)
	}
	return &AndTrigger{combining: base, threshold: opts.Threshold, maxIterations: opts.MaxIterations}, nil
}

func (t *AndTrigger) Kind() string { return KindAnd }

// Next narrows the frontier until every pending fire time falls within the
// threshold of the earliest one, then reports that earliest time.
//
// Each round advances the sub-triggers whose pending time is within the
// threshold of the current minimum: whether the round fires or keeps
// narrowing, those candidates are spent. When the whole frontier agrees,
// that same pass has already replaced every entry exactly once, so the
// following call starts from fresh candidates and no fire time is skipped.
func (t *AndTrigger) Next() (*time.Time, error) {
	if err := t.prime(); err != nil {
		return nil, err
	}
	for iter := 0; iter < t.maxIterations; iter++ {
		var earliest, latest *time.Time
		for _, ft := range t.frontier {
			// One exhausted sub-trigger finishes the combinator for good.
			// The frontier is left untouched.
			if ft == nil {
				return nil, nil
			}
			if earliest == nil || ft.Before(*earliest) {
				earliest = ft
			}
			if latest == nil || ft.After(*latest) {
				latest = ft
			}
		}
		agreed := latest.Sub(*earliest) <= t.threshold

		for i := range t.triggers {
			if t.frontier[i].Sub(*earliest) <= t.threshold {
				if err := t.advance(i); err != nil {
					return nil, err
				}
			}
		}
		if agreed {
			fire := *earliest
			return &fire, nil
		}
	}
	return nil, ErrMaxIterations
}

func (t *AndTrigger) String() string {
	return fmt.Sprintf("and(%s, threshold=%gs, max_iterations=%d)", t.describe(), t.threshold.Seconds(), t.maxIterations)
}

func encodeAnd(tr Trigger) (json.RawMessage, error) {
	t, ok := tr.(*AndTrigger)
	if !ok {
		return nil, fmt.Errorf("and: cannot encode %T", tr)
	}
	st, err := t.state()
	if err != nil {
		return nil, err
	}
	secs := t.threshold.Seconds()
	iters := t.maxIterations
	st.Threshold = &secs
	st.MaxIterations = &iters
	return json.Marshal(st)
}

func decodeAnd(data json.RawMessage) (Trigger, error) {
	var st combiningState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("and: decode state: %w", err)
	}
	t := &AndTrigger{threshold: DefaultThreshold, maxIterations: DefaultMaxIterations}
	if err := t.restore(KindAnd, st); err != nil {
		return nil, err
	}
	if st.Threshold != nil {
		d := durationFromSeconds(*st.Threshold)
		if err := validateThreshold(d); err != nil {
			return nil, fmt.Errorf("and: %w", err)
		}
		t.threshold = d
	}
	if st.MaxIterations != nil {
		if err := validateMaxIterations(*st.MaxIterations); err != nil {
			return nil, fmt.Errorf("and: %w", err)
		}
		t.maxIterations = *st.MaxIterations
	}
	return t, nil
}

// OrTrigger fires on every fire time of every sub-trigger in
// chronological order. When several sub-triggers produce the same instant
// it is reported once. The combinator is finished only when all
// sub-triggers are exhausted; live ones keep being merged.
type OrTrigger struct {
	combining
}

// NewOrTrigger combines triggers into a chronological union.
func NewOrTrigger(triggers []Trigger) (*OrTrigger, error) {
	base, err := newCombining(triggers)
	if err != nil {
		return nil, fmt.Errorf("or: %w", err)
	}
	return &OrTrigger{combining: base}, nil
}

func (t *OrTrigger) Kind() string { return KindOr }

// Next reports the earliest pending fire time across the frontier,
// advancing every sub-trigger that produced exactly that time.
func (t *OrTrigger) Next() (*time.Time, error) {
	if err := t.prime(); err != nil {
		return nil, err
	}
	var earliest *time.Time
	for _, ft := range t.frontier {
		if ft == nil {
			continue
		}
		if earliest == nil || ft.Before(*earliest) {
			earliest = ft
		}
	}
	if earliest == nil {
		// Every sub-trigger is exhausted.
		return nil, nil
	}
	fire := *earliest
	for i, ft := range t.frontier {
		if ft != nil && ft.Equal(fire) {
			if err := t.advance(i); err != nil {
				return nil, err
			}
		}
	}
	return &fire, nil
}

func (t *OrTrigger) String() string {
	return fmt.Sprintf("or(%s)", t.describe())
}

func encodeOr(tr Trigger) (json.RawMessage, error) {
	t, ok := tr.(*OrTrigger)
	if !ok {
		return nil, fmt.Errorf("or: cannot encode %T", tr)
	}
	st, err := t.state()
	if err != nil {
		return nil, err
	}
	return json.Marshal(st)
}

func decodeOr(data json.RawMessage) (Trigger, error) {
	var st combiningState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("or: decode state: %w", err)
	}
	t := &OrTrigger{}
	if err := t.restore(KindOr, st); err != nil {
		return nil, err
	}
	return t, nil
}
