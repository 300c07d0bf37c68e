// 配置文件变更监听器实现。
//
// 以轮询方式检测配置文件修改时间，防抖后重新执行 Loader 并回调。
package config

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval sets how often the file is stat'ed
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.interval = d
	}
}

// WithDebounceDelay sets the quiet period required before a reload
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// FileWatcher reloads the configuration when the loader's file changes.
type FileWatcher struct {
	mu        sync.Mutex
	loader    *Loader
	interval  time.Duration
	debounce  time.Duration
	callbacks []func(*Config)
	logger    *zap.Logger

	lastMod   time.Time
	changedAt time.Time
	pending   bool
}

// NewFileWatcher creates a watcher for the loader's config path.
func NewFileWatcher(loader *Loader, opts ...WatcherOption) (*FileWatcher, error) {
	if loader == nil || loader.configPath == "" {
		return nil, errors.New("config watcher requires a loader with a config path")
	}
	w := &FileWatcher{
		loader:   loader,
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"), zap.String("path", loader.configPath))
	if info, err := os.Stat(loader.configPath); err == nil {
		w.lastMod = info.ModTime()
	} else if os.IsNotExist(err) {
		w.logger.Warn("config file does not exist, will watch for creation")
	}
	return w, nil
}

// OnReload registers a callback receiving each successfully reloaded config.
func (w *FileWatcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Run polls until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("config watcher started",
		zap.Duration("interval", w.interval),
		zap.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if w.poll(now) {
				w.reload()
			}
		}
	}
}

// poll records modification events and reports whether a debounced reload is due.
func (w *FileWatcher) poll(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.loader.configPath)
	if err == nil && info.ModTime().After(w.lastMod) {
		w.lastMod = info.ModTime()
		w.changedAt = now
		w.pending = true
	}
	if !w.pending || now.Sub(w.changedAt) < w.debounce {
		return false
	}
	w.pending = false
	return true
}

func (w *FileWatcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
		return
	}

	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	for _, cb := range callbacks {
		cb(cfg)
	}
}
