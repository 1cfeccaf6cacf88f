package config

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the write-then-rename pair of events a
// single atomicWriteFile call produces into one reload, grounded on the
// teacher's cmd/bd/list.go watchIssues debounce timer.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watcher triggers onReload whenever the watched file changes on disk.
type Watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// WatchFile watches path's containing directory (fsnotify does not
// reliably track a file across rename-into-place) and invokes onReload,
// debounced, whenever an event for path's base name arrives.
func WatchFile(path string, debounce time.Duration, onReload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.loop(filepath.Base(path), debounce, onReload)
	return w, nil
}

func (w *Watcher) loop(base string, debounce time.Duration, onReload func()) {
	var timer *time.Timer
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, onReload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
