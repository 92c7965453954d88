package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"chime/pkg/logx"
	"chime/pkg/trigger"
)

// fakeTrigger replays fixed fire times.
type fakeTrigger struct {
	times []time.Time
	pos   int
	err   error
}

func (f *fakeTrigger) Kind() string { return "fake" }

func (f *fakeTrigger) Next() (*time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.pos >= len(f.times) {
		return nil, nil
	}
	ft := f.times[f.pos]
	f.pos++
	return &ft, nil
}

func nopRun(context.Context) error { return nil }

func ts(min int) time.Time {
	return time.Date(2026, time.March, 14, 10, min, 0, 0, time.UTC)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := New(Config{}, logx.Nop(), nil)
	s.queue = make(chan task, 8)
	return s
}

func TestFireDueEnqueuesAndAdvances(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	tr := &fakeTrigger{times: []time.Time{ts(0), ts(5), ts(10)}}
	if err := s.AddJob("sync", tr, 0, nopRun); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	var saved []string
	s.SetStateHook(func(job string, _ trigger.Trigger) { saved = append(saved, job) })

	next, ok := s.nextWake()
	if !ok || !next.Equal(ts(0)) {
		t.Fatalf("nextWake = %v %v, want %v", next, ok, ts(0))
	}

	s.fireDue(ts(0))
	if got := len(s.queue); got != 1 {
		t.Fatalf("queue has %d tasks, want 1", got)
	}
	tk := <-s.queue
	if tk.job != "sync" || !tk.fireTime.Equal(ts(0)) {
		t.Fatalf("unexpected task %+v", tk)
	}

	next, ok = s.nextWake()
	if !ok || !next.Equal(ts(5)) {
		t.Fatalf("after fire, nextWake = %v %v, want %v", next, ok, ts(5))
	}
	// Priming and the post-fire advance both persist state.
	if len(saved) != 2 || saved[0] != "sync" {
		t.Fatalf("state hook calls = %v", saved)
	}
}

func TestFireDueCatchesUpMultipleJobs(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	_ = s.AddJob("a", &fakeTrigger{times: []time.Time{ts(0)}}, 0, nopRun)
	_ = s.AddJob("b", &fakeTrigger{times: []time.Time{ts(1)}}, 0, nopRun)
	_ = s.AddJob("later", &fakeTrigger{times: []time.Time{ts(30)}}, 0, nopRun)

	s.fireDue(ts(2))
	if got := len(s.queue); got != 2 {
		t.Fatalf("queue has %d tasks, want 2", got)
	}
	next, ok := s.nextWake()
	if !ok || !next.Equal(ts(30)) {
		t.Fatalf("nextWake = %v %v, want %v", next, ok, ts(30))
	}
}

func TestExhaustedScheduleStopsFiring(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	_ = s.AddJob("once", &fakeTrigger{times: []time.Time{ts(0)}}, 0, nopRun)

	s.fireDue(ts(0))
	<-s.queue
	if _, ok := s.nextWake(); ok {
		t.Fatal("exhausted job still reports a wake time")
	}
	s.fireDue(ts(59))
	if len(s.queue) != 0 {
		t.Fatal("exhausted job fired again")
	}
}

func TestTriggerErrorParksJob(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	_ = s.AddJob("broken", &fakeTrigger{err: errors.New("boom")}, 0, nopRun)

	if _, ok := s.nextWake(); ok {
		t.Fatal("failing trigger produced a wake time")
	}
	snap := s.Snapshot()
	if len(snap.Jobs) != 1 || !snap.Jobs[0].Parked {
		t.Fatalf("job not parked: %+v", snap.Jobs)
	}
}

func TestAddJobValidationAndUpsert(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	tr := &fakeTrigger{times: []time.Time{ts(0)}}
	if err := s.AddJob("", tr, 0, nopRun); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.AddJob("x", nil, 0, nopRun); err == nil {
		t.Fatal("expected error for nil trigger")
	}
	if err := s.AddJob("x", tr, 0, nil); err == nil {
		t.Fatal("expected error for nil run func")
	}

	if err := s.AddJob("x", tr, 0, nopRun); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.AddJob("x", &fakeTrigger{times: []time.Time{ts(9)}}, 0, nopRun); err != nil {
		t.Fatalf("AddJob upsert: %v", err)
	}
	if names := s.JobNames(); len(names) != 1 || names[0] != "x" {
		t.Fatalf("JobNames = %v", names)
	}
	if !s.RemoveJob("x") || s.RemoveJob("x") {
		t.Fatal("RemoveJob bookkeeping broken")
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	t.Parallel()
	opt := TaskOptions{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 400 * time.Millisecond}
	wants := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 400 * time.Millisecond}
	for i, want := range wants {
		if got := backoff(opt, i+1); got != want {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	t.Parallel()
	opt := TaskOptions{RetryBase: time.Second, RetryMaxDelay: time.Second, RetryJitter: 0.2}
	for i := 0; i < 100; i++ {
		d := backoff(opt, 1)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jittered backoff %v outside ±20%% band", d)
		}
	}
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()
	s := New(Config{HistorySize: 3}, logx.Nop(), nil)
	for i := 0; i < 10; i++ {
		s.appendHistory(HistoryItem{Job: "j", FireTime: ts(i)})
	}
	snap := s.Snapshot()
	if len(snap.History) != 3 {
		t.Fatalf("history has %d items, want 3", len(snap.History))
	}
	if !snap.History[0].FireTime.Equal(ts(7)) {
		t.Fatalf("oldest retained item = %v, want %v", snap.History[0].FireTime, ts(7))
	}
}

func TestStartRunsDueJob(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop(), nil)
	ran := make(chan struct{})
	past := time.Now().Add(-time.Second)
	_ = s.AddJob("immediate", &fakeTrigger{times: []time.Time{past}}, 0, func(context.Context) error {
		close(ran)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("due job did not run")
	}
}
