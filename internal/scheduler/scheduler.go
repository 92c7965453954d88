package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"chime/internal/eventbus"
	"chime/pkg/logx"
	"chime/pkg/trigger"
)

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	jobs []*jobDef

	queue   chan task
	stopCh  chan struct{}
	wake    chan struct{}
	limiter *rate.Limiter
	dropped atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem

	workerWG  sync.WaitGroup
	stateHook func(job string, tr trigger.Trigger)
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, bus: bus}
}

// SetStateHook installs a callback invoked from the planner goroutine
// after a job's trigger has been advanced. Used to persist the trigger's
// snapshot; keep it fast.
func (s *Service) SetStateHook(fn func(job string, tr trigger.Trigger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHook = fn
}

// AddJob registers (or replaces, by name) a job driven by tr.
func (s *Service) AddJob(name string, tr trigger.Trigger, timeout time.Duration, run func(ctx context.Context) error) error {
	return s.AddJobOpt(name, tr, timeout, TaskOptions{}, run)
}

// AddJobOpt is AddJob with task options.
func (s *Service) AddJobOpt(name string, tr trigger.Trigger, timeout time.Duration, opt TaskOptions, run func(ctx context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("job name required")
	}
	if tr == nil {
		return errors.New("trigger required")
	}
	if run == nil {
		return errors.New("run function required")
	}

	s.mu.Lock()
	// Upsert by name so repeated registrations across hot reloads never
	// duplicate a job.
	s.removeJobLocked(name)
	s.jobs = append(s.jobs, &jobDef{
		name:    name,
		trig:    tr,
		timeout: s.resolveTimeout(timeout),
		run:     run,
		opt:     opt.withDefaults(s.cfg),
		state:   &runState{},
	})
	running := s.stopCh != nil
	s.mu.Unlock()

	if running {
		s.kick()
	}
	return nil
}

// RemoveJob unregisters a job. Reports whether it existed.
func (s *Service) RemoveJob(name string) bool {
	s.mu.Lock()
	ok := s.removeJobLocked(name)
	running := s.stopCh != nil
	s.mu.Unlock()
	if ok && running {
		s.kick()
	}
	return ok
}

func (s *Service) removeJobLocked(name string) bool {
	for i, d := range s.jobs {
		if d.name == name {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// JobNames returns the registered job names in registration order.
func (s *Service) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.jobs))
	for i, d := range s.jobs {
		out[i] = d.name
	}
	return out
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.wake = make(chan struct{}, 1)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	qsize := s.cfg.QueueSize
	if qsize <= 0 {
		qsize = 256
	}
	s.queue = make(chan task, qsize)

	if s.cfg.MaxStartsPerSec > 0 {
		burst := int(s.cfg.MaxStartsPerSec)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.MaxStartsPerSec), burst)
	} else {
		s.limiter = nil
	}

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		go s.worker(ctx, s.stopCh, s.queue)
	}
	s.workerWG.Add(1)
	go s.planner(ctx, s.stopCh, s.wake)

	s.log.Info("scheduler started", logx.Int("workers", workers), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.queue = nil
	s.mu.Unlock()

	s.workerWG.Wait()
	s.log.Info("scheduler stopped")
}

// kick nudges the planner after the job set changed.
func (s *Service) kick() {
	s.mu.Lock()
	wake := s.wake
	s.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}

// planner owns every trigger advance: it sleeps until the earliest
// pending fire time, then hands due jobs to the worker queue.
func (s *Service) planner(ctx context.Context, stopCh <-chan struct{}, wake <-chan struct{}) {
	defer s.workerWG.Done()
	for {
		next, ok := s.nextWake()

		var timer *time.Timer
		var timerC <-chan time.Time
		if ok {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
		case <-stopCh:
		case <-wake:
			if timer != nil {
				timer.Stop()
			}
			continue
		case <-timerC:
			s.fireDue(time.Now())
			continue
		}
		if timer != nil {
			timer.Stop()
		}
		return
	}
}

// nextWake primes any freshly added jobs and returns the earliest pending
// fire time. ok is false when no job has one.
func (s *Service) nextWake() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	ok := false
	for _, d := range s.jobs {
		s.ensureNextLocked(d)
		if d.next == nil {
			continue
		}
		if !ok || d.next.Before(earliest) {
			earliest = *d.next
			ok = true
		}
	}
	return earliest, ok
}

// ensureNextLocked pulls the first pending fire time of a job that has
// not been asked yet.
func (s *Service) ensureNextLocked(d *jobDef) {
	if d.next != nil || d.parked || d.primed {
		return
	}
	d.primed = true
	s.advanceLocked(d)
}

// advanceLocked replaces d.next by pulling a fresh value from the
// trigger. Producer errors park the job: they signal misconfiguration
// and retrying would return the same error forever.
func (s *Service) advanceLocked(d *jobDef) {
	ft, err := d.trig.Next()
	if err != nil {
		d.next = nil
		d.parked = true
		s.log.Error("trigger failed; job parked", logx.String("job", d.name), logx.Err(err))
		return
	}
	d.next = ft
	if ft == nil {
		s.log.Info("schedule exhausted", logx.String("job", d.name))
	}
	if s.stateHook != nil {
		s.stateHook(d.name, d.trig)
	}
}

// fireDue enqueues every job whose pending fire time is not after now and
// advances its trigger. The fire time is consumed even when the queue is
// full or the rate limit strikes; a missed run is preferable to firing
// the same instant in a tight loop.
func (s *Service) fireDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.jobs {
		s.ensureNextLocked(d)
		if d.next == nil || d.next.After(now) {
			continue
		}
		fireTime := *d.next

		if s.limiter != nil && !s.limiter.Allow() {
			s.dropped.Add(1)
			s.log.Warn("launch rate limit hit; dropping run",
				logx.String("job", d.name), logx.Time("fire_time", fireTime))
		} else {
			s.enqueueLocked(task{
				job:      d.name,
				fireTime: fireTime,
				timeout:  d.timeout,
				run:      d.run,
				opt:      d.opt,
				state:    d.state,
			})
			if s.bus != nil {
				s.bus.Publish(eventbus.Event{Type: eventbus.TypeJobFired, Job: d.name, FireTime: fireTime})
			}
		}

		s.advanceLocked(d)
	}
}

func (s *Service) enqueueLocked(t task) {
	if s.queue == nil {
		s.log.Debug("scheduler not running; dropping task", logx.String("job", t.job))
		return
	}
	select {
	case s.queue <- t:
	default:
		s.dropped.Add(1)
		s.log.Warn("scheduler queue full; dropping task",
			logx.String("job", t.job), logx.Int("queue_len", len(s.queue)), logx.Int("queue_cap", cap(s.queue)))
	}
}
