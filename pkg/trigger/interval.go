package trigger

import (
	"encoding/json"
	"fmt"
	"time"
)

const KindInterval = "interval"

const intervalVersion = 1

func init() {
	RegisterCodec(KindInterval, Codec{Encode: encodeInterval, Decode: decodeInterval})
}

// IntervalTrigger fires at a fixed period, first at its start time. A
// non-zero end exhausts the schedule once the next fire time would pass
// it.
type IntervalTrigger struct {
	every time.Duration
	end   time.Time
	next  time.Time
}

// NewIntervalTrigger returns a trigger firing every `every`, first at
// start. Pass a zero end for an unbounded schedule.
func NewIntervalTrigger(start time.Time, every time.Duration, end time.Time) (*IntervalTrigger, error) {
	if every <= 0 {
		return nil, fmt.Errorf("interval: every must be positive, got %s", every)
	}
	return &IntervalTrigger{every: every, end: end, next: start}, nil
}

func (t *IntervalTrigger) Kind() string { return KindInterval }

func (t *IntervalTrigger) Next() (*time.Time, error) {
	if !t.end.IsZero() && t.next.After(t.end) {
		return nil, nil
	}
	fire := t.next
	t.next = t.next.Add(t.every)
	return &fire, nil
}

func (t *IntervalTrigger) String() string {
	if t.end.IsZero() {
		return fmt.Sprintf("interval(every=%s)", t.every)
	}
	return fmt.Sprintf("interval(every=%s, end=%s)", t.every, t.end.Format(time.RFC3339))
}

type intervalState struct {
	Version int           `json:"version"`
	Every   time.Duration `json:"every"`
	Next    time.Time     `json:"next"`
	End     *time.Time    `json:"end,omitempty"`
}

func encodeInterval(tr Trigger) (json.RawMessage, error) {
	t, ok := tr.(*IntervalTrigger)
	if !ok {
		return nil, fmt.Errorf("interval: cannot encode %T", tr)
	}
	st := intervalState{Version: intervalVersion, Every: t.every, Next: t.next}
	if !t.end.IsZero() {
		end := t.end
		st.End = &end
	}
	return json.Marshal(st)
}

func decodeInterval(data json.RawMessage) (Trigger, error) {
	var st intervalState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("interval: decode state: %w", err)
	}
	if err := requireVersion(KindInterval, intervalVersion, st.Version); err != nil {
		return nil, err
	}
	if st.Every <= 0 {
		return nil, fmt.Errorf("interval: every must be positive, got %s", st.Every)
	}
	t := &IntervalTrigger{every: st.Every, next: st.Next}
	if st.End != nil {
		t.end = *st.End
	}
	return t, nil
}
