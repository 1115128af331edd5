// Package watcher adapts fsnotify directory notifications into the
// publisher's invalidate-and-wake discipline: any filesystem event in the
// feed directory invalidates the feed index and triggers the delivery
// engine, with no debounce — event coalescing happens naturally through the
// delivery engine's binary wake event, not through a timer here.
package watcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"p3sub/internal/logging"
)

// Invalidator is invalidated under the shared lock on every filesystem
// event; satisfied by *feedindex.Index.
type Invalidator interface {
	Invalidate()
}

// Triggerer is woken after every invalidation; satisfied by
// *delivery.Engine.
type Triggerer interface {
	Trigger()
}

// Watcher observes a directory and, on any create/modify/delete/rename
// event, invalidates the feed index and wakes the delivery engine while
// holding the shared feed-and-subs lock.
type Watcher struct {
	dir    string
	lock   sync.Locker
	index  Invalidator
	engine Triggerer
	log    *logging.Logger

	ready chan struct{}
	done  chan struct{}
}

// New constructs a Watcher for dir. It does not start watching until Run is
// called.
func New(dir string, lock sync.Locker, index Invalidator, engine Triggerer, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.L()
	}
	return &Watcher{dir: dir, lock: lock, index: index, engine: engine, log: log, ready: make(chan struct{}), done: make(chan struct{})}
}

// Run starts the fsnotify watch and processes events until ctx is
// cancelled or Stop is called. It blocks; callers typically run it in its
// own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", w.dir, err)
	}
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("feed directory watch error", logging.Error(err), logging.String("directory", w.dir))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	w.log.Debug("feed directory event", logging.String("name", event.Name), logging.String("op", event.Op.String()))
	w.lock.Lock()
	w.index.Invalidate()
	w.engine.Trigger()
	w.lock.Unlock()
}

// Stop signals Run to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}
