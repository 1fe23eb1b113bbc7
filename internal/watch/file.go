package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last write before a reload.
const DefaultDebounce = 500 * time.Millisecond

// FileWatcher reloads module configuration when its document changes.
// The parent directory is watched so editors that replace the file by
// rename are still seen.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	reload   ReloadFunc
	debounce time.Duration
	logger   *zap.Logger
}

// NewFileWatcher watches path. A non-positive debounce uses DefaultDebounce.
func NewFileWatcher(path string, debounce time.Duration, reload ReloadFunc, logger *zap.Logger) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("NewFileWatcher: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("NewFileWatcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("NewFileWatcher: watch %q: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		watcher:  watcher,
		path:     abs,
		reload:   reload,
		debounce: debounce,
		logger:   logger.Named("file_watcher"),
	}, nil
}

// Run blocks until ctx is cancelled. A pending debounced reload is
// cancelled with it.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if debounce != nil {
			debounce.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := w.reload(ctx, "file:"+w.path); err != nil {
					w.logger.Error("hot-reload failed", zap.String("path", w.path), zap.Error(err))
					return
				}
				w.logger.Info("hot-reload: modules reconfigured", zap.String("path", w.path))
			})
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
