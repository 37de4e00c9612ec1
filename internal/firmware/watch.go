package firmware

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads an image whenever the file is rewritten.
//
// The parent directory is watched rather than the file itself, so build tools
// that replace the file by rename are picked up too.
type Watcher struct {
	path     string
	debounce time.Duration
	fs       *fsnotify.Watcher
}

// NewWatcher starts watching path. Events are only delivered once Run is called.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	logging.Info("Watching firmware image", zap.String("path", abs), zap.Duration("debounce", debounce))
	return &Watcher{path: abs, debounce: debounce, fs: fs}, nil
}

// Path returns the absolute path being watched
func (w *Watcher) Path() string {
	return w.path
}

// Run blocks until ctx is done, calling onChange with the reloaded image after
// each settled rewrite. onChange runs on the calling goroutine; events that
// arrive meanwhile are coalesced into the next reload.
func (w *Watcher) Run(ctx context.Context, onChange func(*Image)) error {
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

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			logging.Debug("Firmware file event", zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logging.Warn("Watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			img, err := Load(w.path)
			if err != nil {
				logging.Warn("Failed to reload firmware image", zap.String("path", w.path), zap.Error(err))
				continue
			}
			onChange(img)
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fs.Close()
}
