package scheduler

import (
	"context"
	"math/rand"
	"time"

	"chime/internal/eventbus"
	"chime/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	defer s.workerWG.Done()
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, stopCh, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, t task) {
	start := time.Now()

	// Overlap control: the state is shared between successive fires of
	// the same job.
	if t.opt.Overlap == OverlapSkipIfRunning {
		t.state.mu.Lock()
		if t.state.running {
			t.state.mu.Unlock()
			s.log.Debug("previous run still in flight; skipping",
				logx.String("job", t.job), logx.Time("fire_time", t.fireTime))
			return
		}
		t.state.running = true
		t.state.mu.Unlock()
		defer func() {
			t.state.mu.Lock()
			t.state.running = false
			t.state.mu.Unlock()
		}()
	}

	var err error
	attempts := 0
	maxAttempts := 1 + t.opt.RetryMax
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		// Per-attempt timeout so a timed-out first attempt doesn't
		// poison the retries.
		runCtx := ctx
		var cancel context.CancelFunc
		if t.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		}
		err = t.run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil || attempt == maxAttempts {
			break
		}

		delay := backoff(t.opt, attempt)
		s.log.Debug("run failed; retrying",
			logx.String("job", t.job), logx.Int("attempt", attempt), logx.Duration("delay", delay), logx.Err(err))
		select {
		case <-ctx.Done():
			attempt = maxAttempts
		case <-stopCh:
			attempt = maxAttempts
		case <-time.After(delay):
		}
	}

	item := HistoryItem{
		Job:      t.job,
		FireTime: t.fireTime,
		Started:  start,
		Duration: time.Since(start),
		Attempts: attempts,
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed",
			logx.String("job", t.job), logx.Int("attempts", attempts), logx.Err(err))
	} else {
		s.log.Info("job ok",
			logx.String("job", t.job), logx.Duration("took", item.Duration))
	}
	s.appendHistory(item)

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type:     eventbus.TypeJobDone,
			Job:      t.job,
			FireTime: t.fireTime,
			Duration: item.Duration,
			Err:      err,
		})
	}
}

// backoff computes the delay before retry attempt+1 with exponential
// growth, a cap, and jitter so failing jobs don't retry in lockstep.
func backoff(opt TaskOptions, attempt int) time.Duration {
	d := opt.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	if opt.RetryJitter > 0 {
		f := 1 + opt.RetryJitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * f)
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (s *Service) appendHistory(item HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 100
	}
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}
