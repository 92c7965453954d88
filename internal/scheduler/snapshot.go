package scheduler

import (
	"fmt"
	"time"
)

// Snapshot returns a point-in-time view of the service.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	ql, qc := 0, 0
	if s.queue != nil {
		ql, qc = len(s.queue), cap(s.queue)
	}
	jobs := make([]JobInfo, 0, len(s.jobs))
	for _, d := range s.jobs {
		info := JobInfo{Name: d.name, Trigger: fmt.Sprint(d.trig), Parked: d.parked}
		if d.next != nil {
			info.Next = *d.next
		}
		jobs = append(jobs, info)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Running:  running,
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Dropped:  s.dropped.Load(),
		Jobs:     jobs,
		History:  hist,
	}
}

// Due reports whether any job is due at or before now. Intended for
// tests and diagnostics.
func (s *Service) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.jobs {
		s.ensureNextLocked(d)
		if d.next != nil && !d.next.After(now) {
			return true
		}
	}
	return false
}
