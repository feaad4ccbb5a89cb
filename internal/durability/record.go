// Package durability implements the log writer pool (C4, spec.md §4.4) and
// the snapshotter/recovery pass (C5, spec.md §4.5): one event-loop "thread"
// (goroutine) per slab class, each consuming log records off its own queue
// and appending them to an append-only file, interlocked with a periodic
// snapshotter that atomically rotates those logs.
package durability

import (
	"github.com/joeycumines/cachecore/internal/arenapool"
	"github.com/joeycumines/cachecore/internal/item"
)

// CommandKind is the writer-loop command alphabet from spec.md §4.4: 'l'
// (append one record), 's' (rotate), 'd' (unlink the pre-rotation tail).
type CommandKind uint8

const (
	CmdAppend CommandKind = iota
	CmdRotate
	CmdDone
)

// LogRecord holds exactly one owned deep-copy of an item image (spec.md
// §3 "Log record"), or no image at all for the Rotate/Done control
// commands, which carry no payload.
type LogRecord struct {
	Kind CommandKind
	Item *item.Image
}

// logRecordChunkSize matches spec.md §3's freelist chunk size for log
// records (32, vs. 64 for handoff records).
const logRecordChunkSize = 32

// RecordArena pool-allocates LogRecord values per spec.md §9's prescribed
// re-architecture (index-based freelist, chunk pre-allocation, no
// intrusive pointers). It also fixes the `lqi_free` bug flagged in
// spec.md §9: a record is always recycled into the freelist, and its
// owned item copy is always cleared first — never conditionally skipped.
type RecordArena struct {
	arena *arenapool.Arena[LogRecord]
}

// NewRecordArena builds a log-record arena. maxChunks bounds growth; 0
// means unbounded.
func NewRecordArena(maxChunks int) *RecordArena {
	return &RecordArena{arena: arenapool.New[LogRecord](logRecordChunkSize, maxChunks)}
}

// Alloc returns a zeroed LogRecord and its handle, or ErrExhausted if the
// arena is bounded and full (spec.md §4.2/§7's "malloc_fails" path).
func (a *RecordArena) Alloc() (arenapool.Handle, *LogRecord, error) {
	return a.arena.Alloc()
}

// Free releases the record's owned item copy, then unconditionally
// recycles the record into the freelist — the two steps spec.md §9 says
// the original `lqi_free` conflated incorrectly.
func (a *RecordArena) Free(h arenapool.Handle, rec *LogRecord) {
	rec.Item = nil
	a.arena.Free(h)
}

// Allocations reports the number of chunk growths performed so far.
func (a *RecordArena) Allocations() int { return a.arena.Allocations() }
