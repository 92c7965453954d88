package trigger

import (
	"encoding/json"
	"fmt"
	"time"
)

const KindDate = "date"

const dateVersion = 1

func init() {
	RegisterCodec(KindDate, Codec{Encode: encodeDate, Decode: decodeDate})
}

// DateTrigger fires exactly once, at a fixed instant.
type DateTrigger struct {
	at    time.Time
	fired bool
}

func NewDateTrigger(at time.Time) *DateTrigger {
	return &DateTrigger{at: at}
}

func (t *DateTrigger) Kind() string { return KindDate }

func (t *DateTrigger) Next() (*time.Time, error) {
	if t.fired {
		return nil, nil
	}
	t.fired = true
	fire := t.at
	return &fire, nil
}

func (t *DateTrigger) String() string {
	return fmt.Sprintf("date(%s)", t.at.Format(time.RFC3339))
}

type dateState struct {
	Version int       `json:"version"`
	At      time.Time `json:"at"`
	Fired   bool      `json:"fired"`
}

func encodeDate(tr Trigger) (json.RawMessage, error) {
	t, ok := tr.(*DateTrigger)
	if !ok {
		return nil, fmt.Errorf("date: cannot encode %T", tr)
	}
	return json.Marshal(dateState{Version: dateVersion, At: t.at, Fired: t.fired})
}

func decodeDate(data json.RawMessage) (Trigger, error) {
	var st dateState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("date: decode state: %w", err)
	}
	if err := requireVersion(KindDate, dateVersion, st.Version); err != nil {
		return nil, err
	}
	return &DateTrigger{at: st.At, fired: st.Fired}, nil
}
