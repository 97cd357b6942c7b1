// Package notify watches a small set of files for changes and invokes a
// debounced callback, so a companion process (a dashboard, a replay tool)
// can react to new simulation ticks without polling the state store itself.
// Grounded on the teacher's internal/app.Notifier: fsnotify with a
// time-based poll fallback when the watch cannot be established, debounced
// through a single timer rather than firing once per filesystem event.
package notify

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce     = 200 * time.Millisecond
	defaultPollInterval = 10 * time.Second
)

// Watcher watches one or more file paths (typically the state store's
// SQLite `-wal` file and an admin signal file) and calls onChange, debounced,
// whenever any of them is created or written. If fsnotify cannot be
// initialized or a watched directory cannot be added, Watcher falls back to
// polling mtimes at pollInterval, the same degrade-gracefully behavior the
// teacher's Notifier has.
type Watcher struct {
	paths    []string
	onChange func()
	logger   *log.Logger

	debounce     time.Duration
	pollInterval time.Duration

	mu            sync.Mutex
	debounceTimer *time.Timer
	lastMTime     map[string]time.Time

	watcher     *fsnotify.Watcher
	useFsnotify bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the default 200ms debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithPollInterval overrides the default 10s poll-fallback interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// New creates a Watcher over paths. onChange is called (from a background
// goroutine) at most once per debounce window after one or more of paths
// changes; it is never called concurrently with itself.
func New(paths []string, onChange func(), logger *log.Logger, opts ...Option) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	w := &Watcher{
		paths:        paths,
		onChange:     onChange,
		logger:       logger,
		debounce:     defaultDebounce,
		pollInterval: defaultPollInterval,
		lastMTime:    make(map[string]time.Time, len(paths)),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start watches for changes until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	defer close(w.doneCh)

	dirs := make(map[string]bool)
	for _, p := range w.paths {
		dirs[filepath.Dir(p)] = true
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Printf("notify: fsnotify init failed (%v), using poll-only", err)
	} else {
		w.watcher = watcher
		w.useFsnotify = true
		for dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				w.logger.Printf("notify: fsnotify add %s failed (%v), using poll-only", dir, err)
				w.useFsnotify = false
				break
			}
		}
		if !w.useFsnotify {
			_ = watcher.Close()
			w.watcher = nil
		}
	}

	if w.useFsnotify {
		defer w.watcher.Close()
		go w.watchLoop()
	}

	w.pollLoop(ctx)
}

// Stop signals the watcher to stop and waits for Start to return.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// CheckOnce runs one poll-and-compare cycle immediately, bypassing the
// debounce timer; useful for tests and for forcing a check right after a
// known local write (e.g. an admin operation the watcher's own process
// performed, which may not reliably generate a filesystem event on every
// platform).
func (w *Watcher) CheckOnce() {
	w.pollPaths()
}

func (w *Watcher) watchLoop() {
	watched := make(map[string]bool, len(w.paths))
	for _, p := range w.paths {
		watched[filepath.Base(p)] = true
	}
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !watched[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.triggerDebounced()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.pollPaths()
		}
	}
}

// pollPaths checks every watched path's mtime directly, independent of
// fsnotify, and triggers onChange (debounced) if any changed since the last
// check. This is both the fallback path when fsnotify is unavailable and the
// backstop against missed fsnotify events.
func (w *Watcher) pollPaths() {
	changed := false
	w.mu.Lock()
	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		mtime := info.ModTime()
		if last, ok := w.lastMTime[p]; !ok || mtime.After(last) {
			w.lastMTime[p] = mtime
			changed = true
		}
	}
	w.mu.Unlock()
	if changed {
		w.triggerDebounced()
	}
}

func (w *Watcher) triggerDebounced() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.onChange)
}
