// Package itemlock implements the striped per-bucket lock table (C1):
// fixed-size array of mutexes, with a mode switch to a single global lock
// for the duration of a hash-table resize.
//
// The mode itself is never read from itemlock without the caller already
// knowing which mode it is in: per spec.md §4.1/§9, the mode is owned by
// each worker as a field of its own, mutated only from that worker's own event
// loop in response to a notify-pipe command (internal/dispatch). itemlock
// exposes Lock/Unlock taking the caller's current Mode explicitly, so there
// is no unsynchronized thread-local read anywhere in this package.
package itemlock

import (
	"sync"
)

// Mode selects between striped per-bucket locking and a single global lock.
type Mode uint8

const (
	Granular Mode = iota
	Global
)

func (m Mode) String() string {
	if m == Global {
		return "GLOBAL"
	}
	return "GRANULAR"
}

// Table is the striped lock table. Zero value is not usable; use New.
type Table struct {
	mask    uint32
	buckets []sync.Mutex
	global  sync.Mutex
}

// exponentForWorkers selects P per spec.md §3: P=10 if N<3, 11 if N<4,
// 12 if N<5, else 13.
func exponentForWorkers(numWorkers int) uint {
	switch {
	case numWorkers < 3:
		return 10
	case numWorkers < 4:
		return 11
	case numWorkers < 5:
		return 12
	default:
		return 13
	}
}

// New builds a lock table sized for numWorkers per the spec.md §3 thresholds.
func New(numWorkers int) *Table {
	p := exponentForWorkers(numWorkers)
	n := uint32(1) << p
	return &Table{
		mask:    n - 1,
		buckets: make([]sync.Mutex, n),
	}
}

// NumBuckets reports 2^P, the size of the stripe.
func (t *Table) NumBuckets() int { return len(t.buckets) }

func (t *Table) bucketFor(h uint32) *sync.Mutex {
	return &t.buckets[h&t.mask]
}

// Lock acquires the bucket for h under Granular, or the single global lock
// under Global, per the caller's current mode.
func (t *Table) Lock(mode Mode, h uint32) {
	if mode == Global {
		t.global.Lock()
		return
	}
	t.bucketFor(h).Lock()
}

// Unlock is the symmetric release for Lock.
func (t *Table) Unlock(mode Mode, h uint32) {
	if mode == Global {
		t.global.Unlock()
		return
	}
	t.bucketFor(h).Unlock()
}

// Handle is an opaque token returned by TryLock, passed back to TryUnlock.
type Handle struct {
	mu *sync.Mutex
}

// TryLock performs a non-blocking bucket acquisition, ignoring the current
// mode. Used exclusively by background LRU maintenance so it never
// deadlocks against a worker holding the bucket lock (spec.md §4.1). The ok
// return is false if the bucket was already held.
func (t *Table) TryLock(h uint32) (Handle, bool) {
	mu := t.bucketFor(h)
	if !mu.TryLock() {
		return Handle{}, false
	}
	return Handle{mu: mu}, true
}

// TryUnlock releases a Handle obtained from TryLock.
func (t *Table) TryUnlock(h Handle) {
	if h.mu != nil {
		h.mu.Unlock()
	}
}
