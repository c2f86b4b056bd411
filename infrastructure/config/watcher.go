package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// LimitsWatcher watches the limits file for changes and swaps in each valid
// revision. An invalid revision is logged and ignored; the previous limits
// stay in effect.
type LimitsWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	current  *Limits
	onChange []func(*Limits)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewLimitsWatcher loads the limits file and prepares a watcher on it.
func NewLimitsWatcher(path string, logger *zap.Logger) (*LimitsWatcher, error) {
	limits, err := LoadLimits(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial limits: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch limits file: %w", err)
	}

	// Also watch the directory for atomic saves (rename operations)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("Failed to watch limits directory", zap.Error(err))
	}

	return &LimitsWatcher{
		path:    path,
		watcher: watcher,
		current: limits,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for limits changes.
func (w *LimitsWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("Limits watcher started", zap.String("path", w.path))
}

// Stop stops watching.
func (w *LimitsWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.logger.Info("Limits watcher stopped")
}

// watchLoop debounces file events so one editor save triggers one reload.
func (w *LimitsWatcher) watchLoop() {
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					w.reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *LimitsWatcher) reload() {
	w.logger.Info("Limits file changed, reloading", zap.String("path", w.path))

	next, err := LoadLimits(w.path)
	if err != nil {
		w.logger.Error("Invalid limits file, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	handlers := w.onChange
	w.mu.Unlock()

	if prev.OpBurst != next.OpBurst || prev.OpRefillPerSecond != next.OpRefillPerSecond {
		w.logger.Info("Op rate limits changed",
			zap.Float64("opBurst", next.OpBurst),
			zap.Float64("opRefillPerSecond", next.OpRefillPerSecond),
		)
	}

	for _, handler := range handlers {
		go handler(next)
	}

	w.logger.Info("Limits reloaded successfully",
		zap.String("version", next.Metadata.Version),
	)
}

// OnChange registers a callback invoked with each valid new revision.
func (w *LimitsWatcher) OnChange(handler func(*Limits)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// GetCurrent returns the limits currently in effect.
func (w *LimitsWatcher) GetCurrent() *Limits {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
