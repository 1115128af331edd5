package feedindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFileAt(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestCurrentEmptyDirectory(t *testing.T) {
	idx := New(t.TempDir(), nil)
	_, _, ok := idx.Current()
	if ok {
		t.Fatalf("expected no current element for an empty directory")
	}
}

func TestCurrentSingleElement(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFileAt(t, dir, "a.dat", mtime)

	idx := New(dir, nil)
	prev, current, ok := idx.Current()
	if !ok {
		t.Fatalf("expected a current element")
	}
	if prev != nil {
		t.Fatalf("expected no prev for a single element, got %v", prev)
	}
	if !current.Mtime.Equal(mtime) {
		t.Fatalf("expected mtime %v, got %v", mtime, current.Mtime)
	}
}

func TestCurrentReturnsLatest(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	writeFileAt(t, dir, "a.dat", t1)
	writeFileAt(t, dir, "b.dat", t2)

	idx := New(dir, nil)
	prev, current, ok := idx.Current()
	if !ok {
		t.Fatalf("expected a current element")
	}
	if !current.Mtime.Equal(t2) {
		t.Fatalf("expected current to be the latest element")
	}
	if prev == nil || !prev.Mtime.Equal(t1) {
		t.Fatalf("expected prev to be the earlier element")
	}
}

func TestAtExactMatch(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	t3 := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	writeFileAt(t, dir, "a.dat", t1)
	writeFileAt(t, dir, "b.dat", t2)
	writeFileAt(t, dir, "c.dat", t3)

	idx := New(dir, nil)
	prev, match, next, ok := idx.At(t2)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !match.Mtime.Equal(t2) {
		t.Fatalf("expected match at t2, got %v", match.Mtime)
	}
	if prev == nil || !prev.Mtime.Equal(t1) {
		t.Fatalf("expected prev at t1")
	}
	if next == nil || !next.Mtime.Equal(t3) {
		t.Fatalf("expected next at t3")
	}
}

func TestAtBeforeAllElements(t *testing.T) {
	dir := t.TempDir()
	writeFileAt(t, dir, "a.dat", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	idx := New(dir, nil)
	_, _, _, ok := idx.At(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	if ok {
		t.Fatalf("expected no match before all elements")
	}
}

func TestAfterReturnsPendingInOrder(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	t3 := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	writeFileAt(t, dir, "a.dat", t1)
	writeFileAt(t, dir, "b.dat", t2)
	writeFileAt(t, dir, "c.dat", t3)

	idx := New(dir, nil)
	prev, pending := idx.After(t1)
	if prev == nil || !prev.Mtime.Equal(t1) {
		t.Fatalf("expected prev at t1")
	}
	if len(pending) != 2 || !pending[0].Mtime.Equal(t2) || !pending[1].Mtime.Equal(t3) {
		t.Fatalf("unexpected pending sequence: %+v", pending)
	}
}

func TestAfterNoPrevWhenAllPending(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFileAt(t, dir, "a.dat", t1)

	idx := New(dir, nil)
	prev, pending := idx.After(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	if prev != nil {
		t.Fatalf("expected no prev, got %v", prev)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending element, got %d", len(pending))
	}
}

func TestInvalidateRematerializesOnNextQuery(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFileAt(t, dir, "a.dat", t1)

	idx := New(dir, nil)
	_, current, ok := idx.Current()
	if !ok || current == nil {
		t.Fatalf("expected initial current element")
	}

	t2 := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	writeFileAt(t, dir, "b.dat", t2)
	idx.Invalidate()

	_, current, ok = idx.Current()
	if !ok {
		t.Fatalf("expected current element after invalidation")
	}
	if !current.Mtime.Equal(t2) {
		t.Fatalf("expected updated current element after invalidation, got %v", current.Mtime)
	}
}

func TestDirectoryTieBrokenByName(t *testing.T) {
	dir := t.TempDir()
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFileAt(t, dir, "b.dat", same)
	writeFileAt(t, dir, "a.dat", same)

	idx := New(dir, nil)
	_, current, ok := idx.Current()
	if !ok {
		t.Fatalf("expected a current element")
	}
	if filepath.Base(current.Name) != "b.dat" {
		t.Fatalf("expected tie broken by name ascending (b.dat last), got %s", current.Name)
	}
}
