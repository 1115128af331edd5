// Package feedindex materializes and caches the sorted sequence of feed
// elements backing a publisher's feed directory, and answers the three
// queries the HTTP layer and delivery engine need: the current element, the
// element as of a timestamp, and every element after a timestamp.
package feedindex

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"p3sub/internal/logging"
)

// Element is an immutable snapshot of one regular file in the feed
// directory: an opaque handle plus the mtime that orders it in the feed.
type Element struct {
	Name  string
	Mtime time.Time
}

// Index is a lazily (re)computed, invalidate-on-event view of a directory.
// It holds its own lock, so it is safe to call from handlers that run
// unlocked alongside a writer-side lock the caller may also be holding (the
// publisher's HTTP GET path queries it with no external lock while the
// delivery engine and watcher mutate it under theirs).
type Index struct {
	dir string
	log *logging.Logger
	now func() time.Time

	mu      sync.Mutex
	stale   bool
	loaded  bool
	entries []Element
}

// New constructs an index over dir. The directory is not scanned until the
// first query.
func New(dir string, log *logging.Logger) *Index {
	if log == nil {
		log = logging.L()
	}
	return &Index{dir: dir, log: log, now: time.Now, stale: true}
}

// Invalidate marks the index stale; the next query rematerializes it from
// the filesystem. Cheap and side-effect free, safe to call from a watcher
// callback that must not do heavy work itself.
func (idx *Index) Invalidate() {
	if idx == nil {
		return
	}
	idx.mu.Lock()
	idx.stale = true
	idx.mu.Unlock()
}

// Current returns (prev, current, next) where current is the element with
// the maximum mtime and prev is its immediate predecessor. next is always
// absent by construction. ok is false if the directory holds no elements.
func (idx *Index) Current() (prev, current *Element, ok bool) {
	entries := idx.snapshot()
	if len(entries) == 0 {
		return nil, nil, false
	}
	last := len(entries) - 1
	current = &entries[last]
	if last > 0 {
		prev = &entries[last-1]
	}
	return prev, current, true
}

// At returns (prev, match, next) where match is the element with the
// greatest mtime satisfying mtime <= ts, and prev/next are its immediate
// neighbors in sorted order. ok is false if no element qualifies.
func (idx *Index) At(ts time.Time) (prev, match, next *Element, ok bool) {
	entries := idx.snapshot()
	pos := -1
	for i := range entries {
		if !entries[i].Mtime.After(ts) {
			pos = i
		} else {
			break
		}
	}
	if pos < 0 {
		return nil, nil, nil, false
	}
	match = &entries[pos]
	if pos > 0 {
		prev = &entries[pos-1]
	}
	if pos+1 < len(entries) {
		next = &entries[pos+1]
	}
	return prev, match, next, true
}

// After returns (prev, pending) where pending holds every element with
// mtime > ts in ascending order, and prev is the element immediately
// preceding them (the greatest-mtime element with mtime <= ts, if any).
func (idx *Index) After(ts time.Time) (prev *Element, pending []Element) {
	entries := idx.snapshot()
	split := len(entries)
	for i := range entries {
		if entries[i].Mtime.After(ts) {
			split = i
			break
		}
	}
	if split > 0 {
		p := entries[split-1]
		prev = &p
	}
	if split >= len(entries) {
		return prev, nil
	}
	pending = make([]Element, len(entries)-split)
	copy(pending, entries[split:])
	return prev, pending
}

// snapshot returns the cached sorted sequence, rescanning the directory
// first if the index is stale. The lock is held only while checking
// staleness and, if needed, rescanning and swapping idx.entries; the
// returned slice is never mutated in place, only
// replaced wholesale, so callers may range over it after the lock is
// released.
func (idx *Index) snapshot() []Element {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.stale && idx.loaded {
		return idx.entries
	}

	dirEntries, err := os.ReadDir(idx.dir)
	if err != nil {
		idx.log.Warn("feed directory scan failed", logging.Error(err), logging.String("directory", idx.dir))
		idx.entries = nil
		idx.loaded = true
		idx.stale = false
		return idx.entries
	}

	entries := make([]Element, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			idx.log.Warn("feed element stat failed", logging.Error(err), logging.String("name", de.Name()))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Element{Name: filepath.Join(idx.dir, de.Name()), Mtime: info.ModTime().UTC()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Mtime.Equal(entries[j].Mtime) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Mtime.Before(entries[j].Mtime)
	})

	idx.entries = entries
	idx.loaded = true
	idx.stale = false
	return idx.entries
}
