package durability

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/cachecore/internal/item"
	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/store"
)

func fnvHash(key []byte) uint32 {
	var h uint32 = 2166136261
	for _, b := range key {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}

func writeRecords(t *testing.T, path string, ims ...*item.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create(%s): %v", path, err)
	}
	defer f.Close()
	var buf []byte
	for _, im := range ims {
		buf = item.Encode(im, buf[:0])
		if _, err := f.Write(buf); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
}

func TestReplayFileLinksAndUnlinks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log_0")

	linkedA, err := item.NewLinked([]byte("a"), []byte("1"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked a: %v", err)
	}
	linkedB, err := item.NewLinked([]byte("b"), []byte("2"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked b: %v", err)
	}
	tombA, err := item.Tombstone([]byte("a"), 0)
	if err != nil {
		t.Fatalf("Tombstone a: %v", err)
	}
	writeRecords(t, path, linkedA, linkedB, tombA)

	s := store.NewMapStore()
	lockTable := itemlock.New(1)
	if err := ReplayFile(path, s, lockTable, fnvHash, itemlock.Global); err != nil {
		t.Fatalf("ReplayFile: %v", err)
	}

	if _, err := s.Get([]byte("a"), 0); err != store.ErrNotFound {
		t.Fatalf("expected a to be unlinked by the trailing tombstone, got err=%v", err)
	}
	got, err := s.Get([]byte("b"), 0)
	if err != nil {
		t.Fatalf("expected b to remain linked: %v", err)
	}
	if string(got.Value) != "2" {
		t.Fatalf("b's value = %q, want %q", got.Value, "2")
	}
}

func TestReplayFileMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s := store.NewMapStore()
	lockTable := itemlock.New(1)
	if err := ReplayFile(filepath.Join(dir, "does-not-exist"), s, lockTable, fnvHash, itemlock.Global); err != nil {
		t.Fatalf("ReplayFile on a missing file must return nil, got %v", err)
	}
}

func TestReplayFileTruncatedTrailingRecordErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log_0")

	im, err := item.NewLinked([]byte("a"), []byte("1"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked: %v", err)
	}
	buf := item.Encode(im, nil)
	// Chop off the last few bytes so the final record never completes.
	if err := os.WriteFile(path, buf[:len(buf)-3], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := store.NewMapStore()
	lockTable := itemlock.New(1)
	if err := ReplayFile(path, s, lockTable, fnvHash, itemlock.Global); err == nil {
		t.Fatal("expected ErrRecordTooLarge for a truncated trailing record")
	}
}

func TestReplayFileRecordLargerThanBufferErrorsInsteadOfHanging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log_0")

	im, err := item.NewLinked([]byte("a"), []byte("1"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked: %v", err)
	}
	buf := item.Encode(im, nil)
	// Patch the declared value length (the last 4 header bytes) to claim a
	// size one byte larger than replayBufferSize, without building a real
	// item of that size. The file is then padded past replayBufferSize
	// so the read loop fills its buffer completely without ever decoding a
	// full record, the exact condition that must yield ErrRecordTooLarge
	// instead of spinning on a zero-length Read forever.
	binary.LittleEndian.PutUint32(buf[item.HeaderSize-4:item.HeaderSize], replayBufferSize+1)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write(buf); err != nil {
		t.Fatalf("Write header: %v", err)
	}
	padding := make([]byte, replayBufferSize+4096)
	if _, err := f.Write(padding); err != nil {
		t.Fatalf("Write padding: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := store.NewMapStore()
	lockTable := itemlock.New(1)

	done := make(chan error, 1)
	go func() { done <- ReplayFile(path, s, lockTable, fnvHash, itemlock.Global) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrRecordTooLarge) {
			t.Fatalf("ReplayFile error = %v, want ErrRecordTooLarge", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ReplayFile hung on a record larger than replayBufferSize")
	}
}
