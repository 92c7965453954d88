package trigger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const KindCron = "cron"

const cronVersion = 1

// cronParser accepts the 5-field crontab layout plus descriptors like
// "@hourly" and "@every 55m".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func init() {
	RegisterCodec(KindCron, Codec{Encode: encodeCron, Decode: decodeCron})
}

// CronTrigger produces fire times from a cron expression, evaluated in a
// fixed location. A non-zero End exhausts the schedule once the next
// activation would pass it.
type CronTrigger struct {
	spec  string
	loc   *time.Location
	end   time.Time
	sched cron.Schedule

	// prev is the last produced fire time; the next one is strictly after
	// it.
	prev time.Time
}

// CronOptions tunes a CronTrigger. Zero values select the defaults.
type CronOptions struct {
	// Location the expression is evaluated in. Default time.Local.
	Location *time.Location

	// End stops the schedule after this instant when non-zero.
	End time.Time
}

// NewCronTrigger parses spec and returns a trigger producing the
// activations strictly after the given instant.
func NewCronTrigger(spec string, after time.Time, opts CronOptions) (*CronTrigger, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("cron: parse %q: %w", spec, err)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &CronTrigger{spec: spec, loc: loc, end: opts.End, sched: sched, prev: after}, nil
}

func (t *CronTrigger) Kind() string { return KindCron }

func (t *CronTrigger) Next() (*time.Time, error) {
	next := t.sched.Next(t.prev.In(t.loc))
	// robfig/cron reports "no activation" as the zero time (it gives up
	// roughly five years out for impossible specs).
	if next.IsZero() || (!t.end.IsZero() && next.After(t.end)) {
		return nil, nil
	}
	t.prev = next
	fire := next
	return &fire, nil
}

func (t *CronTrigger) String() string {
	if t.end.IsZero() {
		return fmt.Sprintf("cron(%q, tz=%s)", t.spec, t.loc)
	}
	return fmt.Sprintf("cron(%q, tz=%s, end=%s)", t.spec, t.loc, t.end.Format(time.RFC3339))
}

type cronState struct {
	Version  int        `json:"version"`
	Spec     string     `json:"spec"`
	Location string     `json:"location"`
	Prev     time.Time  `json:"prev"`
	End      *time.Time `json:"end,omitempty"`
}

func encodeCron(tr Trigger) (json.RawMessage, error) {
	t, ok := tr.(*CronTrigger)
	if !ok {
		return nil, fmt.Errorf("cron: cannot encode %T", tr)
	}
	st := cronState{Version: cronVersion, Spec: t.spec, Location: t.loc.String(), Prev: t.prev}
	if !t.end.IsZero() {
		end := t.end
		st.End = &end
	}
	return json.Marshal(st)
}

func decodeCron(data json.RawMessage) (Trigger, error) {
	var st cronState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("cron: decode state: %w", err)
	}
	if err := requireVersion(KindCron, cronVersion, st.Version); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(st.Location)
	if err != nil {
		return nil, fmt.Errorf("cron: load location %q: %w", st.Location, err)
	}
	opts := CronOptions{Location: loc}
	if st.End != nil {
		opts.End = *st.End
	}
	return NewCronTrigger(st.Spec, st.Prev, opts)
}
