package shadercache

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/neshume/island/internal/rlog"
)

// watcher drives shader hot-reload: it watches every source path a Cache
// has compiled and, on a write event, bumps the generation counter of
// every cached Module built from that path (there may be more than one,
// if the same source was compiled for multiple stages or macro sets).
type watcher struct {
	cache *Cache
	fsw   *fsnotify.Watcher

	mu      sync.Mutex
	byPath  map[string][]Key
	watched map[string]bool

	done chan struct{}
}

func newWatcher(c *Cache) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		cache:   c,
		fsw:     fsw,
		byPath:  make(map[string][]Key),
		watched: make(map[string]bool),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *watcher) add(path string, key Key) {
	w.mu.Lock()
	w.byPath[path] = append(w.byPath[path], key)
	if !w.watched[path] {
		w.watched[path] = true
		if err := w.fsw.Add(path); err != nil {
			rlog.Warnf("shadercache: could not watch %q: %v", path, err)
		}
	}
	w.mu.Unlock()
}

func (w *watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			keys := append([]Key(nil), w.byPath[ev.Name]...)
			w.mu.Unlock()
			for _, k := range keys {
				w.cache.bump(k)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			rlog.Warnf("shadercache: watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *watcher) close() {
	close(w.done)
	w.fsw.Close()
}
