package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (JSON state + JSONL history)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver string
	Path   string
}

// RunRecord captures one completed job run. Keep it compact and
// schema-stable.
type RunRecord struct {
	Job      string        `json:"job"`
	FireTime time.Time     `json:"fire_time"`
	Started  time.Time     `json:"started"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}

// Store is the persistence API used by the daemon.
type Store interface {
	// SaveTriggerState overwrites the persisted snapshot for a job. The
	// state blob is opaque here; it is whatever trigger.Marshal produced.
	SaveTriggerState(ctx context.Context, job string, state json.RawMessage) error

	// LoadTriggerState returns the persisted snapshot, or ok=false when
	// the job has none yet.
	LoadTriggerState(ctx context.Context, job string) (state json.RawMessage, ok bool, err error)

	// DeleteTriggerState removes the snapshot of a job that no longer
	// exists in the config.
	DeleteTriggerState(ctx context.Context, job string) error

	AppendRun(ctx context.Context, r RunRecord) error
	RecentRuns(ctx context.Context, job string, limit int) ([]RunRecord, error)

	Close() error
}
