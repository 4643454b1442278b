package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nvandessel/substrate/internal/config"
)

// configWatcher reloads the config file when it changes on disk and hands
// every valid result to apply.
type configWatcher struct {
	path     string
	logger   *slog.Logger
	apply    func(*config.Config)
	debounce time.Duration
}

func newConfigWatcher(path string, logger *slog.Logger, apply func(*config.Config)) *configWatcher {
	return &configWatcher{
		path:     filepath.Clean(path),
		logger:   logger,
		apply:    apply,
		debounce: 250 * time.Millisecond,
	}
}

// Run watches until ctx is done. The parent directory is watched rather
// than the file so that atomic rename-on-save is picked up.
func (w *configWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching config for changes", "path", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *configWatcher) reload() {
	cfg, err := config.LoadPath(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.logger.Error("ignoring config change", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.apply(cfg)
}
