package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jvconnected/camera-engine/internal/logging"
)

// Watcher hot-reloads the config document: on a debounced file-write
// event, it reloads via Loader, validates, and invokes a callback with the
// new document. It does not itself hold the ConfigManager's authoritative
// state — the callback is expected to merge what applies (network
// bindings) while leaving runtime-derived fields alone.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	onReload  func(*Config) error
	logger    *logging.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
}

// NewWatcher builds a Watcher for configPath.
func NewWatcher(configPath string, onReload func(*Config) error, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating file watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fw,
		path:      configPath,
		onReload:  onReload,
		logger:    logger,
	}, nil
}

// Start begins watching the config file's directory for changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("config: watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	go w.loop(runCtx)
	return nil
}

// Stop ends the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.cancel()
	w.running = false
	return w.fsWatcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	const debounce = 500 * time.Millisecond
	var lastReload time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if time.Since(lastReload) < debounce {
				continue
			}
			if err := w.reload(); err != nil {
				w.logger.WithError(err).Error("config hot reload failed")
				continue
			}
			lastReload = time.Now()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config file watcher error")
		}
	}
}

func (w *Watcher) reload() error {
	if err := waitForStable(w.path); err != nil {
		return err
	}
	cfg, err := NewLoader(w.logger).Load(w.path)
	if err != nil {
		return err
	}
	if w.onReload != nil {
		return w.onReload(cfg)
	}
	return nil
}

// waitForStable polls the file's size until it stops changing, so a
// reload never races a writer that is mid-rewrite.
func waitForStable(path string) error {
	const (
		maxWait        = 5 * time.Second
		interval       = 50 * time.Millisecond
		stableRequired = 3
	)
	deadline := time.Now().Add(maxWait)
	lastSize := int64(-1)
	stable := 0

	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			time.Sleep(interval)
			continue
		}
		if info.Size() == lastSize {
			stable++
			if stable >= stableRequired {
				return nil
			}
		} else {
			stable = 0
			lastSize = info.Size()
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("config: %s did not stabilize within %v", path, maxWait)
}
