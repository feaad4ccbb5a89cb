// Package arenapool implements the chunked, index-based freelist that
// spec.md §9 prescribes in place of an intrusive singly-linked freelist:
// "an arena that allocates a chunk of records and exposes index-based
// handles, paired with a lock-protected LIFO of free indices."
//
// Both the handoff-record pool (internal/dispatch) and the log-record pool
// (internal/durability) are built on this generic engine, with different
// element types and chunk sizes (64 and 32 respectively, per spec.md §3).
package arenapool

import (
	"errors"
	"sync"
)

// ErrExhausted is returned by Alloc when the arena has a configured
// MaxChunks and every chunk is fully allocated. This is the Go realization
// of the "if per-chunk allocation fails" error path in spec.md §4.2/§7 —
// in Go, chunk growth only fails when deliberately bounded (tests exercise
// this path); in production the bound is typically 0 (unbounded).
var ErrExhausted = errors.New("arenapool: arena exhausted")

// Handle is an opaque index-based reference to a slot, valid only for the
// Arena that produced it.
type Handle struct {
	chunk uint32
	idx   uint32
}

// Arena is a chunked freelist of fixed-size records of type T.
type Arena[T any] struct {
	mu        sync.Mutex
	chunkSize int
	maxChunks int // 0 = unbounded
	chunks    [][]T
	free      []Handle
	allocs    int
}

// New builds an Arena allocating chunkSize records per growth. maxChunks
// bounds total growth; 0 means unbounded.
func New[T any](chunkSize, maxChunks int) *Arena[T] {
	if chunkSize <= 0 {
		panic("arenapool: chunkSize must be positive")
	}
	return &Arena[T]{chunkSize: chunkSize, maxChunks: maxChunks}
}

// Allocations returns the number of chunk growths performed so far.
func (a *Arena[T]) Allocations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs
}

// ChunkSize returns the configured chunk size.
func (a *Arena[T]) ChunkSize() int { return a.chunkSize }

func (a *Arena[T]) grow() error {
	if a.maxChunks > 0 && len(a.chunks) >= a.maxChunks {
		return ErrExhausted
	}
	a.chunks = append(a.chunks, make([]T, a.chunkSize))
	ci := uint32(len(a.chunks) - 1)
	for i := a.chunkSize - 1; i >= 0; i-- {
		a.free = append(a.free, Handle{chunk: ci, idx: uint32(i)})
	}
	a.allocs++
	return nil
}

// Alloc returns a zeroed record and its Handle. It grows the arena by one
// chunk if the freelist is empty.
func (a *Arena[T]) Alloc() (Handle, *T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		if err := a.grow(); err != nil {
			return Handle{}, nil, err
		}
	}
	h := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	rec := &a.chunks[h.chunk][h.idx]
	var zero T
	*rec = zero
	return h, rec, nil
}

// Free zeroes and returns a slot to the freelist, making it eligible for
// reuse by a subsequent Alloc.
func (a *Arena[T]) Free(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var zero T
	a.chunks[h.chunk][h.idx] = zero
	a.free = append(a.free, h)
}
