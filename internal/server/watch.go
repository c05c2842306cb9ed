package server

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"appforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// CacheBumper rewrites a service worker's cache version; the bundle
// package provides the implementation.
type CacheBumper func(dir string) error

// Watcher monitors a served bundle directory and bumps the service
// worker cache version when content changes, so connected clients pick
// up edits on refresh instead of replaying a stale cache.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	bump      CacheBumper

	mu       sync.Mutex
	pending  map[string]time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for a bundle directory.
func NewWatcher(dir string, bump CacheBumper) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		dir:       dir,
		bump:      bump,
		pending:   make(map[string]time.Time),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the bundle directory tree.
func (w *Watcher) Start() error {
	err := filepath.Walk(w.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.fsWatcher.Add(path); err != nil {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.processEvents()
	go w.processDebounce()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	return w.fsWatcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	// The bump itself rewrites sw.js; reacting to that write would loop.
	if base == "sw.js" || len(base) == 0 || base[0] == '.' || base[len(base)-1] == '~' {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsWatcher.Add(event.Name)
		}
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// processDebounce coalesces bursts of writes into a single cache bump.
func (w *Watcher) processDebounce() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) flushPending() {
	now := time.Now()
	w.mu.Lock()
	settled := false
	for path, last := range w.pending {
		if now.Sub(last) >= watchDebounce {
			delete(w.pending, path)
			settled = true
		}
	}
	w.mu.Unlock()

	if !settled {
		return
	}
	if err := w.bump(w.dir); err != nil {
		logging.Warn("cache version bump failed", "dir", w.dir, "error", err)
	} else {
		logging.Debug("cache version bumped", "dir", w.dir)
	}
}
