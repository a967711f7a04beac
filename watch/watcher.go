// Package watch reports CSV files dropped into a directory once they stop
// changing.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/tabula/errors"
)

// DefaultDebounce is how long a file must be quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the path of a settled file.
type Handler func(ctx context.Context, path string)

// DirWatcher watches one directory for .csv files. Each file is reported
// once per burst of writes; handlers run one at a time in arrival order.
type DirWatcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
}

// New watches dir. A zero debounce selects DefaultDebounce.
func New(dir string, debounce time.Duration, logger *zap.SugaredLogger) (*DirWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", dir)
	}

	return &DirWatcher{
		dir:      dir,
		watcher:  w,
		debounce: debounce,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		ready:    make(chan string, 64),
	}, nil
}

// Run dispatches settled files to handle until ctx ends or the watcher is
// closed. It closes the watcher on return.
func (dw *DirWatcher) Run(ctx context.Context, handle Handler) error {
	defer dw.close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsCSV(event.Name) {
				continue
			}
			dw.logger.Debugw("Watcher detected change", "file", event.Name, "op", event.Op.String())
			dw.schedule(event.Name)

		case path := <-dw.ready:
			handle(ctx, path)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return nil
			}
			dw.logger.Warnw("Watcher error", "error", err)
		}
	}
}

// schedule restarts the quiet period for path.
func (dw *DirWatcher) schedule(path string) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if t, ok := dw.timers[path]; ok {
		t.Stop()
	}
	dw.timers[path] = time.AfterFunc(dw.debounce, func() {
		dw.mu.Lock()
		delete(dw.timers, path)
		dw.mu.Unlock()

		select {
		case dw.ready <- path:
		default:
			dw.logger.Warnw("Watcher queue full, dropping file", "file", path)
		}
	})
}

func (dw *DirWatcher) close() {
	dw.mu.Lock()
	for path, t := range dw.timers {
		t.Stop()
		delete(dw.timers, path)
	}
	dw.mu.Unlock()
	dw.watcher.Close()
}

// IsCSV reports whether path names a .csv file, ignoring editor temp files.
func IsCSV(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".csv")
}
