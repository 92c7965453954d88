package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"chime/internal/config"
	"chime/internal/eventbus"
	"chime/internal/scheduler"
	"chime/internal/storage"
	"chime/pkg/logx"
	"chime/pkg/trigger"
)

const storeTimeout = 5 * time.Second

// applyJobs reconciles the scheduler against the config: every configured
// job is upserted, everything else is removed. Safe to call again on hot
// reload.
func applyJobs(ctx context.Context, sched *scheduler.Service, store storage.Store, log logx.Logger, cfg *config.Config) error {
	now := time.Now()
	want := make(map[string]bool, len(cfg.Jobs))
	for _, jc := range cfg.Jobs {
		want[jc.Name] = true
		trig, err := resolveTrigger(ctx, store, log, now, jc)
		if err != nil {
			return fmt.Errorf("job %q: %w", jc.Name, err)
		}
		if err := sched.AddJob(jc.Name, trig, jc.Timeout.Std(), runCommand(jc.Command)); err != nil {
			return fmt.Errorf("job %q: %w", jc.Name, err)
		}
	}

	for _, name := range sched.JobNames() {
		if want[name] {
			continue
		}
		sched.RemoveJob(name)
		if store != nil {
			if err := store.DeleteTriggerState(ctx, name); err != nil {
				log.Warn("delete stale trigger state", logx.String("job", name), logx.Err(err))
			}
		}
		log.Info("job removed", logx.String("job", name))
	}
	return nil
}

// resolveTrigger prefers the persisted snapshot so restarts and reloads
// resume mid-schedule instead of starting over. A snapshot of a different
// kind than the config declares is stale and gets discarded.
func resolveTrigger(ctx context.Context, store storage.Store, log logx.Logger, now time.Time, jc config.JobConfig) (trigger.Trigger, error) {
	if store != nil {
		blob, ok, err := store.LoadTriggerState(ctx, jc.Name)
		switch {
		case err != nil:
			log.Warn("load trigger state", logx.String("job", jc.Name), logx.Err(err))
		case ok:
			var m trigger.Marshalled
			if err := json.Unmarshal(blob, &m); err != nil {
				log.Warn("corrupt trigger snapshot; rebuilding from config",
					logx.String("job", jc.Name), logx.Err(err))
			} else if m.Kind != jc.Trigger.Kind {
				log.Info("trigger kind changed; discarding snapshot",
					logx.String("job", jc.Name), logx.String("was", m.Kind), logx.String("now", jc.Trigger.Kind))
			} else if t, err := trigger.Unmarshal(m); err != nil {
				log.Warn("restore trigger snapshot; rebuilding from config",
					logx.String("job", jc.Name), logx.Err(err))
			} else {
				return t, nil
			}
		}
	}
	return jc.Trigger.Build(now)
}

// runCommand wraps a shell command as a job body. The first line of the
// command's output is folded into the error so failures are diagnosable
// from the run history alone.
func runCommand(command string) func(context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		out, err := cmd.CombinedOutput()
		if err != nil {
			if msg := firstLine(string(out)); msg != "" {
				return fmt.Errorf("%w: %s", err, msg)
			}
			return err
		}
		return nil
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 300
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// persistStateHook saves a job's trigger snapshot after every advance so a
// restart never replays consumed fire times.
func persistStateHook(store storage.Store, log logx.Logger) func(string, trigger.Trigger) {
	return func(job string, tr trigger.Trigger) {
		m, err := trigger.Marshal(tr)
		if err != nil {
			log.Warn("marshal trigger state", logx.String("job", job), logx.Err(err))
			return
		}
		blob, err := json.Marshal(m)
		if err != nil {
			log.Warn("encode trigger state", logx.String("job", job), logx.Err(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := store.SaveTriggerState(ctx, job, blob); err != nil {
			log.Warn("save trigger state", logx.String("job", job), logx.Err(err))
		}
	}
}

// recordRuns drains completion events into the run history table.
func recordRuns(ctx context.Context, bus eventbus.Bus, store storage.Store, log logx.Logger) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Type != eventbus.TypeJobDone {
				continue
			}
			rec := storage.RunRecord{
				Job:      e.Job,
				FireTime: e.FireTime,
				Started:  e.Time.Add(-e.Duration),
				Took:     e.Duration,
			}
			if e.Err != nil {
				rec.Error = e.Err.Error()
			}
			wctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if err := store.AppendRun(wctx, rec); err != nil {
				log.Warn("append run record", logx.String("job", e.Job), logx.Err(err))
			}
			cancel()
		}
	}
}
