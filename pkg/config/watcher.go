package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors emit for a single save.
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher invokes a callback when any of a set of files or directories changes.
// Files are watched through their parent directory so that atomic renames are seen.
type FileWatcher struct {
	files    map[string]struct{}
	dirs     map[string]struct{}
	onChange func(context.Context)
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// WatcherOption customises a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger used for reload and watcher errors.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFileWatcher starts watching paths. onChange runs on its own goroutine after the
// debounce window closes; it receives a context cancelled by Close.
func NewFileWatcher(paths []string, onChange func(context.Context), opts ...WatcherOption) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &FileWatcher{
		files:    map[string]struct{}{},
		dirs:     map[string]struct{}{},
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	watchDirs := map[string]struct{}{}
	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
		}

		info, err := os.Stat(absPath)
		if err == nil && info.IsDir() {
			w.dirs[absPath] = struct{}{}
			watchDirs[absPath] = struct{}{}
			continue
		}
		w.files[absPath] = struct{}{}
		watchDirs[filepath.Dir(absPath)] = struct{}{}
	}

	for dir := range watchDirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.watchLoop(ctx)

	return w, nil
}

// Close stops the watcher. Pending debounced callbacks are dropped.
func (w *FileWatcher) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *FileWatcher) relevant(name string) bool {
	clean := filepath.Clean(name)
	if _, ok := w.files[clean]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(clean)]
	return ok
}

func (w *FileWatcher) watchLoop(ctx context.Context) {
	defer close(w.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				name := event.Name
				debounceTimer = time.AfterFunc(w.debounce, func() {
					if ctx.Err() != nil {
						return
					}
					w.logger.Info("watched file changed", "path", name)
					w.onChange(ctx)
				})
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}
