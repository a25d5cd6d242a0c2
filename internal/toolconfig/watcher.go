package toolconfig

import (
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDebounce is the fixed coalescing window for hot-reload, per
// SPEC_FULL.md §4.3 "debounced (~250 ms) re-parse."
const ReloadDebounce = 250 * time.Millisecond

// Watcher watches a tools directory for changes and debounces them into a
// single Catalog.LoadDir call, matching MTDF's "edit several files, reload
// once" authoring pattern.
//
// Grounded on kadirpekel-hector's v2/rag/watcher.go FileWatcher: an
// fsnotify.Watcher plus a pending-events map drained by a single
// time.AfterFunc, adapted from "recursively register every RAG source file"
// to "flat tools directory, any change re-parses the whole catalog."
type Watcher struct {
	fsw     *fsnotify.Watcher
	catalog *Catalog
	dir     string
	timer   *time.Timer
	done    chan struct{}
}

// NewWatcher creates a watcher for dir, feeding reloads into catalog.
func NewWatcher(dir string, catalog *Catalog) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw, catalog: catalog, dir: dir, done: make(chan struct{})}, nil
}

// Start begins watching in a background goroutine. Call Stop to shut it
// down.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop closes the underlying fsnotify watcher and stops the background
// goroutine.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("toolconfig: watcher error: %v", err)
		}
	}
}

// scheduleReload coalesces a burst of filesystem events into one reload
// fired ReloadDebounce after the last observed event, matching
// hector's FileWatcher debounce pattern.
func (w *Watcher) scheduleReload() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(ReloadDebounce, func() {
		if err := w.catalog.LoadDir(w.dir); err != nil {
			log.Printf("toolconfig: hot-reload failed, retaining previous catalog: %v", err)
			return
		}
		log.Printf("toolconfig: catalog reloaded from %s", w.dir)
	})
}
