package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file on change. Only hot-reloadable
// settings are applied (the log level); fee values are runtime state owned
// by the proxy and are never re-read from the file.
type Watcher struct {
	logger *zap.Logger
	path   string
	fsw    *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	debounce time.Duration
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(logger *zap.Logger, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		logger:   logger,
		path:     path,
		fsw:      fsw,
		ctx:      ctx,
		cancel:   cancel,
		debounce: time.Second,
	}, nil
}

// Start begins watching; onChange receives each successfully reloaded
// configuration. Editors often replace rather than rewrite the file, so the
// parent directory is watched and events are filtered by name.
func (w *Watcher) Start(onChange func(*Config)) error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.wg.Add(1)
	go w.run(onChange)
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.cancel()
	w.fsw.Close()
	w.wg.Wait()
}

func (w *Watcher) run(onChange func(*Config)) {
	defer w.wg.Done()

	var timer *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Warn("ignoring invalid config reload", zap.Error(err))
			return
		}
		w.logger.Info("configuration reloaded", zap.String("path", w.path))
		onChange(cfg)
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Debounce bursts of events from a single save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
