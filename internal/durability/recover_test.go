package durability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joeycumines/cachecore/internal/item"
	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
	"github.com/joeycumines/cachecore/internal/store"
)

func TestRecoverReplaysSnapshotThenPerClassLogsInOrder(t *testing.T) {
	dir := t.TempDir()
	const numClasses = 2

	// Seed the on-disk layout before any LogPool/Recover touches it: a
	// snapshot with one item, class 0's pre-rotation tail with a second
	// item, and class 0's live log with a tombstone for the tail item plus
	// a third item. Class 1's log is left empty.
	seed := NewLogPool(dir, numClasses, &statsd.Global{}, logctx.NewDiscard())
	if err := seed.Close(); err != nil {
		t.Fatalf("seed.Close: %v", err)
	}

	a, err := item.NewLinked([]byte("a"), []byte("snap"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked a: %v", err)
	}
	writeRecords(t, filepath.Join(dir, "snapshot"), a)

	b, err := item.NewLinked([]byte("b"), []byte("tail"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked b: %v", err)
	}
	writeRecords(t, snapshotBeforePath(dir, 0), b)

	tombB, err := item.Tombstone([]byte("b"), 0)
	if err != nil {
		t.Fatalf("Tombstone b: %v", err)
	}
	c, err := item.NewLinked([]byte("c"), []byte("live"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked c: %v", err)
	}
	writeRecords(t, logPath(dir, 0), tombB, c)

	s := store.NewMapStore()
	lockTable := itemlock.New(1)
	pool := NewLogPool(dir, numClasses, &statsd.Global{}, logctx.NewDiscard())
	defer pool.Close()

	if err := Recover(dir, s, lockTable, fnvHash, pool); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if got, err := s.Get([]byte("a"), 0); err != nil || string(got.Value) != "snap" {
		t.Fatalf("a: got=%v err=%v, want value %q", got, err, "snap")
	}
	if _, err := s.Get([]byte("b"), 0); err != store.ErrNotFound {
		t.Fatalf("b should have been unlinked by the live log's tombstone, got err=%v", err)
	}
	if got, err := s.Get([]byte("c"), 0); err != nil || string(got.Value) != "live" {
		t.Fatalf("c: got=%v err=%v, want value %q", got, err, "live")
	}

	if pool.BeginRecover() {
		t.Fatal("Recover must clear begin_recover before returning")
	}
}

func TestRecoverStopsAtFirstMissingClassLog(t *testing.T) {
	dir := t.TempDir()

	a, err := item.NewLinked([]byte("a"), []byte("v"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked: %v", err)
	}
	writeRecords(t, filepath.Join(dir, "snapshot"), a)
	// No log_0 file at all: Recover's loop must stop immediately without error.

	s := store.NewMapStore()
	lockTable := itemlock.New(1)
	pool := NewLogPool(dir, 1, &statsd.Global{}, logctx.NewDiscard())
	defer pool.Close()
	if err := pool.Close(); err != nil {
		t.Fatalf("pool.Close: %v", err)
	}
	if err := os.Remove(logPath(dir, 0)); err != nil {
		t.Fatalf("removing seeded log_0: %v", err)
	}

	if err := Recover(dir, s, lockTable, fnvHash, pool); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got, err := s.Get([]byte("a"), 0); err != nil || string(got.Value) != "v" {
		t.Fatalf("snapshot item should still be recovered: got=%v err=%v", got, err)
	}
}
