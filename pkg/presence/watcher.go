package presence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher answers "does any app here hold a session?" from a cached scan
// of the presence directory, kept fresh by filesystem notifications.
type Watcher struct {
	dir    string
	logger *slog.Logger
	fsw    *fsnotify.Watcher

	mu      sync.RWMutex
	present bool

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher builds a watcher over the shared presence directory, creating
// it if needed, and primes the cache with an initial scan. Call Start to
// begin tracking changes and Stop when done.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create presence dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch presence dir: %w", err)
	}

	present, err := scanDir(dir)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:     dir,
		logger:  logger,
		fsw:     fsw,
		present: present,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins the background worker that tracks marker changes.
// This is non-blocking. Call Stop() to gracefully shut down the worker.
func (w *Watcher) Start() {
	go w.run()
	w.logger.Debug("presence watcher started", "dir", w.dir)
}

// Stop gracefully shuts down the background worker.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fsw.Close()
	<-w.doneCh
	w.logger.Debug("presence watcher stopped")
}

// HasAnySession reports whether any app announced a session. The answer
// comes from the cache, so it never touches the disk on the hot path.
func (w *Watcher) HasAnySession(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.present, nil
}

// run is the main background worker loop. Bursts of filesystem events
// collapse into a single rescan once the directory settles.
func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var settle <-chan time.Time
	const quiet = 250 * time.Millisecond

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
				if timer != nil {
					timer.Reset(quiet)
				} else {
					timer = time.NewTimer(quiet)
					settle = timer.C
				}
			}

		case <-settle:
			settle = nil
			timer = nil
			w.rescan()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("presence watcher error", "error", err)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) rescan() {
	present, err := scanDir(w.dir)
	if err != nil {
		w.logger.Error("failed to rescan presence dir", "error", err)
		return
	}

	w.mu.Lock()
	changed := w.present != present
	w.present = present
	w.mu.Unlock()

	if changed {
		w.logger.Debug("session presence changed", "present", present)
	}
}
