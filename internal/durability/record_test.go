package durability

import (
	"testing"

	"github.com/joeycumines/cachecore/internal/item"
)

func TestRecordArenaFreeClearsItemBeforeRecycle(t *testing.T) {
	a := NewRecordArena(0)
	h, rec, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	im, err := item.NewLinked([]byte("k"), []byte("v"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked: %v", err)
	}
	rec.Kind = CmdAppend
	rec.Item = im

	a.Free(h, rec)

	if rec.Item != nil {
		t.Fatal("Free must clear the record's owned item before recycling")
	}

	h2, rec2, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc after Free: %v", err)
	}
	if rec2.Item != nil || rec2.Kind != CmdAppend {
		// zero value of CommandKind is CmdAppend (iota 0); Alloc always
		// returns a freshly zeroed record regardless of what was recycled.
		t.Fatalf("expected a zeroed record from the freelist, got %+v", rec2)
	}
	a.Free(h2, rec2)
}

func TestRecordArenaGrowsInConfiguredChunkSize(t *testing.T) {
	a := NewRecordArena(0)
	for i := 0; i < logRecordChunkSize+1; i++ {
		if _, _, err := a.Alloc(); err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
	}
	if got := a.Allocations(); got != 2 {
		t.Fatalf("expected 2 chunk growths, got %d", got)
	}
}
