package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chime/internal/config"
	"chime/internal/eventbus"
	"chime/internal/scheduler"
	"chime/internal/storage"
	"chime/pkg/logx"
	"chime/pkg/sdnotify"
)

func main() {
	var cfgPath string
	var watch bool
	flag.StringVar(&cfgPath, "config", "./chimed.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&watch, "watch", true, "reload config when the file changes")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Close() }()

	store, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, log)
	if err != nil {
		log.Error("open storage", logx.Err(err))
		os.Exit(1)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	bus := eventbus.New()
	sched := scheduler.New(scheduler.Config{
		Workers:         cfg.Scheduler.Workers,
		QueueSize:       cfg.Scheduler.QueueSize,
		DefaultTimeout:  cfg.Scheduler.DefaultTimeout.Std(),
		HistorySize:     cfg.Scheduler.HistorySize,
		MaxStartsPerSec: cfg.Scheduler.MaxStartsPerSec,
	}, log, bus)

	if store != nil {
		sched.SetStateHook(persistStateHook(store, log))
		go recordRuns(ctx, bus, store, log)
	}

	if err := applyJobs(ctx, sched, store, log, cfg); err != nil {
		log.Error("register jobs", logx.Err(err))
		os.Exit(1)
	}

	sched.Start(ctx)
	_, _ = sdnotify.Ready()
	_, _ = sdnotify.Status(fmt.Sprintf("scheduling %d jobs", len(cfg.Jobs)))
	log.Info("chimed up", logx.String("config", cfgPath), logx.Int("jobs", len(cfg.Jobs)))

	if watch {
		go func() {
			err := config.Watch(ctx, cfgPath, log, func(next *config.Config) {
				if err := applyJobs(ctx, sched, store, log, next); err != nil {
					log.Error("apply reloaded config", logx.Err(err))
				}
			})
			if err != nil && ctx.Err() == nil {
				log.Error("config watcher stopped", logx.Err(err))
			}
		}()
	}

	<-ctx.Done()
	_, _ = sdnotify.Stopping()
	sched.Stop()
	log.Info("chimed down")
}

func newLogger(lc config.LoggingConfig) (logx.Logger, error) {
	console := true
	if lc.Console != nil {
		console = *lc.Console
	}
	return logx.New(logx.Config{
		Level:   lc.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	})
}
