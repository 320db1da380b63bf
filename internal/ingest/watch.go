package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sqlshift/sqlshift/internal/store"
)

// Watcher re-ingests SQL files as they change on disk, collapsing rapid
// editor save bursts into one sync per file.
type Watcher struct {
	store     *store.Store
	project   string
	sourceDir string
	fsw       *fsnotify.Watcher
	debouncer *debouncer
}

func NewWatcher(st *store.Store, project, sourceDir string) *Watcher {
	return &Watcher{store: st, project: project, sourceDir: sourceDir}
}

// Start watches the source directory tree until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer func() {
		w.debouncer.stop()
		_ = fsw.Close()
	}()

	w.debouncer = newDebouncer(200*time.Millisecond, func(path string) {
		if err := SyncFile(w.store, w.project, path); err != nil {
			log.Printf("watch: sync %s: %v", path, err)
			return
		}
		log.Printf("watch: re-ingested %s", filepath.Base(path))
	})

	if err := w.addRecursive(w.sourceDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !strings.EqualFold(filepath.Ext(ev.Name), ".sql") {
		return
	}
	w.debouncer.feed(ev.Name)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = w.fsw.Add(path)
		}
		return nil
	})
}

// debouncer emits a path once after a quiet window, however many raw
// events arrived for it in between.
type debouncer struct {
	window time.Duration
	emit   func(string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(window time.Duration, emit func(string)) *debouncer {
	return &debouncer{window: window, emit: emit, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) feed(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Reset(d.window)
		return
	}
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, path)
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			d.emit(path)
		}
	})
}

func (d *debouncer) stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.stopped = true
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	d.mu.Unlock()
}
