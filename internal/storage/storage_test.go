package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"chime/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "data")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	sqliteStore, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "chime.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = fileStore.Close()
		_ = sqliteStore.Close()
	})
	return map[string]Store{"file": fileStore, "sqlite": sqliteStore}
}

func TestTriggerStateRoundTrip(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := st.LoadTriggerState(ctx, "backup"); err != nil || ok {
				t.Fatalf("LoadTriggerState on empty store = ok=%v err=%v", ok, err)
			}

			state := json.RawMessage(`{"kind":"interval","state":{"version":1,"every":60000000000,"next":"2026-03-14T10:00:00Z"}}`)
			if err := st.SaveTriggerState(ctx, "backup", state); err != nil {
				t.Fatalf("SaveTriggerState: %v", err)
			}
			// Overwrite wins.
			state2 := json.RawMessage(`{"kind":"date","state":{"version":1,"at":"2026-03-14T12:00:00Z","fired":true}}`)
			if err := st.SaveTriggerState(ctx, "backup", state2); err != nil {
				t.Fatalf("SaveTriggerState overwrite: %v", err)
			}

			got, ok, err := st.LoadTriggerState(ctx, "backup")
			if err != nil || !ok {
				t.Fatalf("LoadTriggerState = ok=%v err=%v", ok, err)
			}
			if string(got) != string(state2) {
				t.Fatalf("LoadTriggerState = %s, want %s", got, state2)
			}

			if err := st.DeleteTriggerState(ctx, "backup"); err != nil {
				t.Fatalf("DeleteTriggerState: %v", err)
			}
			if _, ok, _ := st.LoadTriggerState(ctx, "backup"); ok {
				t.Fatal("state survived delete")
			}
			// Deleting a missing job is not an error.
			if err := st.DeleteTriggerState(ctx, "backup"); err != nil {
				t.Fatalf("DeleteTriggerState twice: %v", err)
			}
		})
	}
}

func TestRunHistory(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

			for i := 0; i < 5; i++ {
				r := RunRecord{
					Job:      "pings",
					FireTime: base.Add(time.Duration(i) * time.Minute),
					Started:  base.Add(time.Duration(i)*time.Minute + time.Second),
					Took:     250 * time.Millisecond,
				}
				if i == 4 {
					r.Error = "exit status 1"
				}
				if err := st.AppendRun(ctx, r); err != nil {
					t.Fatalf("AppendRun: %v", err)
				}
			}
			if err := st.AppendRun(ctx, RunRecord{Job: "other", FireTime: base, Started: base}); err != nil {
				t.Fatalf("AppendRun: %v", err)
			}

			runs, err := st.RecentRuns(ctx, "pings", 3)
			if err != nil {
				t.Fatalf("RecentRuns: %v", err)
			}
			if len(runs) != 3 {
				t.Fatalf("RecentRuns returned %d records, want 3", len(runs))
			}
			// Oldest first, and the newest retained record carries the error.
			if !runs[0].FireTime.Before(runs[2].FireTime) {
				t.Fatalf("records out of order: %v then %v", runs[0].FireTime, runs[2].FireTime)
			}
			if runs[2].Error != "exit status 1" {
				t.Fatalf("last record error = %q", runs[2].Error)
			}
			for _, r := range runs {
				if r.Job != "pings" {
					t.Fatalf("record for wrong job: %q", r.Job)
				}
			}
		})
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open with empty driver = %v, %v; want nil, nil", st, err)
	}
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
