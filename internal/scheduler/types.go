package scheduler

import (
	"context"
	"sync"
	"time"

	"chime/pkg/trigger"
)

// Config controls the scheduler service.
type Config struct {
	Workers         int
	QueueSize       int
	DefaultTimeout  time.Duration
	HistorySize     int
	RetryMax        int     // max retries per run (default 2)
	MaxStartsPerSec float64 // 0 disables the launch rate limit
}

type OverlapPolicy int

const (
	OverlapSkipIfRunning OverlapPolicy = iota
	OverlapAllow
)

type TaskOptions struct {
	Overlap       OverlapPolicy
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (o TaskOptions) withDefaults(cfg Config) TaskOptions {
	if o.RetryMax <= 0 {
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 2
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	return o
}

type runState struct {
	mu      sync.Mutex
	running bool
}

// HistoryItem records one completed run.
type HistoryItem struct {
	Job      string
	FireTime time.Time
	Started  time.Time
	Duration time.Duration
	Attempts int
	Error    string
}

type task struct {
	job      string
	fireTime time.Time
	timeout  time.Duration
	run      func(ctx context.Context) error
	opt      TaskOptions
	state    *runState
}

// jobDef is a registered job plus its planner state. next caches the
// pending fire time pulled from the trigger; nil means the schedule is
// exhausted or the trigger failed and the job is parked.
type jobDef struct {
	name    string
	trig    trigger.Trigger
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     TaskOptions
	state   *runState

	next   *time.Time
	primed bool
	parked bool
}

// JobInfo is the externally visible state of a registered job.
type JobInfo struct {
	Name    string
	Trigger string
	Next    time.Time // zero when exhausted or parked
	Parked  bool
}

// Snapshot is a point-in-time view of the service for inspection.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	Dropped  uint64
	Jobs     []JobInfo
	History  []HistoryItem
}
