package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/hotswap/logging"
)

// ErrWatcherRunning is returned when Start is called twice.
var ErrWatcherRunning = errors.New("config watcher already running")

// Watcher reloads a config file when it changes and hands the new Config
// to a callback. Invalid files are logged and skipped, keeping the last
// good configuration in effect.
type Watcher struct {
	path      string
	envPrefix string
	onChange  func(*Config)
	logger    logging.Logger
	debounce  time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewWatcher creates a Watcher for path.
func NewWatcher(path, envPrefix string, onChange func(*Config), logger logging.Logger) *Watcher {
	return &Watcher{
		path:      filepath.Clean(path),
		envPrefix: envPrefix,
		onChange:  onChange,
		logger:    logging.OrNop(logger),
		debounce:  100 * time.Millisecond,
	}
}

// Start begins watching. The parent directory is watched so editors that
// replace the file by rename are picked up.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return ErrWatcherRunning
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("config watcher: watch %s: %w", w.path, err)
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop(ctx, fw, w.stopCh, w.done)
	w.logger.Info("Watching config file", "path", w.path)
	return nil
}

// Stop stops watching and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw, stopCh, done := w.watcher, w.stopCh, w.done
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return nil
	}
	close(stopCh)
	err := fw.Close()
	<-done
	return err
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher, stopCh, done chan struct{}) {
	defer close(done)

	// Debounce events - many editors create multiple events for a single save
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path, w.envPrefix)
	if err != nil {
		w.logger.Error("Ignoring invalid config change", "path", w.path, "error", err)
		return
	}
	w.logger.Info("Config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
