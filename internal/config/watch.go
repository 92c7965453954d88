package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"chime/pkg/logx"
)

// Watch reloads the config file whenever it changes on disk and hands the
// parsed result to onChange. Events are debounced because editors and
// atomic-rename writers produce bursts of notifications, and a content
// hash suppresses reloads when the bytes did not actually change.
//
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	// Watch the directory, not the file: atomic saves replace the inode.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)

	lastHash := hashFile(path)

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(250*time.Millisecond, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logx.Err(err))
		case <-fire:
			h := hashFile(path)
			if h == lastHash {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				// Keep running with the previous config; a broken edit
				// must not take the daemon down.
				log.Warn("config reload rejected", logx.String("path", path), logx.Err(err))
				continue
			}
			lastHash = h
			log.Info("config reloaded", logx.String("path", path), logx.Int("jobs", len(cfg.Jobs)))
			onChange(cfg)
		}
	}
}

func hashFile(path string) uint64 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
