package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chime/pkg/logx"
)

// fileStore keeps one JSON file per job under <path>/state/ and appends
// run records to <path>/runs.jsonl. Good enough for a single daemon; no
// locking across processes.
type fileStore struct {
	dir string
	log logx.Logger

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("file storage path is required")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Path, "state"), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: cfg.Path, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) statePath(job string) string {
	// Job names come from validated config, but keep the filename tame.
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, job)
	return filepath.Join(s.dir, "state", name+".json")
}

func (s *fileStore) SaveTriggerState(_ context.Context, job string, state json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(job)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, state, 0o644); err != nil {
		return err
	}
	// Atomic replace so a crash mid-write never leaves a torn snapshot.
	return os.Rename(tmp, path)
}

func (s *fileStore) LoadTriggerState(_ context.Context, job string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.statePath(job))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) DeleteTriggerState(_ context.Context, job string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.statePath(job))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *fileStore) runsPath() string { return filepath.Join(s.dir, "runs.jsonl") }

func (s *fileStore) AppendRun(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.runsPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = fmt.Fprintf(f, "%s\n", b)
	return err
}

func (s *fileStore) RecentRuns(_ context.Context, job string, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.runsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// Skip torn/corrupt lines instead of losing the whole log.
			s.log.Warn("skipping corrupt run record", logx.Err(err))
			continue
		}
		if job != "" && r.Job != job {
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
