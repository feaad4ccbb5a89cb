package dispatch

import (
	"net"

	"github.com/joeycumines/cachecore/internal/arenapool"
)

// Transport identifies the originating socket kind for a HandoffRecord.
type Transport uint8

const (
	TransportTCP Transport = iota
	TransportUDP
)

// HandoffRecord carries one accepted connection's state from the listener
// to a worker (spec.md §3): socket descriptor, initial protocol state,
// event mask, read-buffer size, transport kind. Owned by the producer
// until push; ownership transfers to the consuming worker on pop; never
// visible to any other thread.
//
// Conn carries the real net.Conn backing FD. spec.md's C model registers
// the raw descriptor with the worker's own event-loop poller; this Go
// realization instead hands the accepted net.Conn to a per-connection
// goroutine the worker owns for the duration of the connection (Go's
// netpoller already multiplexes socket readiness more efficiently than a
// second, userspace epoll registration layered on top of it would). The
// Poller/wake-fd machinery in poller_linux.go is still exactly the primitive
// the worker uses to multiplex its own notify fd.
type HandoffRecord struct {
	FD          int
	State       int
	EventMask   uint32
	ReadBufSize int
	Transport   Transport
	Conn        net.Conn
}

// handoffChunkSize is the pool chunk size for handoff records (spec.md §3).
const handoffChunkSize = 64

// HandoffArena pool-allocates HandoffRecord values in chunks of 64,
// consumed at most once and returned to an index-based freelist
// (spec.md §9's prescribed re-architecture of the intrusive freelist).
type HandoffArena struct {
	arena *arenapool.Arena[HandoffRecord]
}

// NewHandoffArena builds a handoff-record arena. maxChunks bounds growth
// (0 = unbounded); a bounded arena is how a production deployment would
// surface the "freelist allocation failure" error path from spec.md §7.
func NewHandoffArena(maxChunks int) *HandoffArena {
	return &HandoffArena{arena: arenapool.New[HandoffRecord](handoffChunkSize, maxChunks)}
}

// Alloc returns a zeroed HandoffRecord and its handle, or ErrExhausted if
// the arena is bounded and full — the caller (the listener) must close the
// socket without enqueueing and increment MallocFails (spec.md §4.2/§7).
func (a *HandoffArena) Alloc() (arenapool.Handle, *HandoffRecord, error) {
	return a.arena.Alloc()
}

// Free returns h to the freelist for reuse.
func (a *HandoffArena) Free(h arenapool.Handle) { a.arena.Free(h) }

// Allocations reports the number of chunk growths performed so far.
func (a *HandoffArena) Allocations() int { return a.arena.Allocations() }
