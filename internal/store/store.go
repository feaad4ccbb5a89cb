// Package store implements the `do_item_*` family (spec.md §6.1) the core
// dispatches into under the appropriate lock: the hash table + LRU
// collaborator spec.md §1 places out of scope ("the slab allocator and LRU
// list (do_item_* primitives) ... deliberately out of scope"). This package
// supplies the minimal in-memory implementation needed to drive the core's
// invariants end to end and to satisfy the replay/recovery contract in
// spec.md §4.5 — it is intentionally not a slab allocator or an LRU: that
// remains out of scope, per the spec.
//
// Grounded on original_source/thread.c's call sites (item_get, item_link,
// item_unlink, item_touch, item_replace, add_delta) for the method
// contract; the interface boundary itself is the one generalization
// SPEC_FULL.md §6 calls for, since Go has no header-file convention for an
// external collaborator.
package store

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/cachecore/internal/item"
)

var (
	ErrNotFound    = errors.New("store: item not found")
	ErrExists      = errors.New("store: item already linked")
	ErrCASMismatch = errors.New("store: CAS token mismatch")
	ErrNotNumeric  = errors.New("store: value is not a decimal integer")
)

// Store is the do_item_* family as a Go interface, so internal/dispatch
// and internal/durability depend on an interface rather than a concrete
// hash table (SPEC_FULL.md §6).
type Store interface {
	// Get returns the linked item for key, or ErrNotFound. Expired items
	// (do_item_flush_expired's lazy-expiry cousin) are treated as absent.
	Get(key []byte, now uint32) (*item.Image, error)

	// Link inserts im as the sole linked item for its key (do_item_link),
	// replacing whatever was previously linked. Enforces spec I1 ("an item
	// is in at most one hash-table bucket at any time").
	Link(im *item.Image) error

	// Unlink removes the linked item for key, if any (do_item_unlink).
	// Returns ErrNotFound if key was not linked.
	Unlink(key []byte) error

	// Touch updates exptime on the linked item for key (do_item_touch).
	Touch(key []byte, exptime uint32) (*item.Image, error)

	// CAS performs a compare-and-swap: im.CAS must match the stored item's
	// CAS token, or ErrCASMismatch is returned (do_store_item's CAS path).
	CAS(im *item.Image) error

	// AddDelta implements INCR/DECR (do_add_delta): value must parse as an
	// unsigned decimal integer. Decrementing below zero floors at zero, the
	// well-known memcached behavior.
	AddDelta(key []byte, delta int64, incr bool, now uint32) (newValue uint64, err error)

	// FlushExpired unlinks every item whose exptime has passed as of now
	// (do_item_flush_expired), returning the count removed.
	FlushExpired(now uint32) int

	// Len reports the number of linked items, for tests and stats.
	Len() int

	// Snapshot performs the heap walk spec.md §4.5 step 3 delegates to the
	// external collaborator: writes every linked item's encoded image to w,
	// in an unspecified but stable-for-the-call order.
	Snapshot(w io.Writer) error
}

// entry is the store's internal representation: one linked item plus a
// monotonically increasing sequence number used only to keep Snapshot's
// iteration order deterministic for tests.
type entry struct {
	im  *item.Image
	seq uint64
}

// MapStore is the reference Store: a plain map guarded by its own mutex.
// Per DESIGN.md, sharding this map to mirror the itemlock stripe would
// just reintroduce the hash table spec.md places out of scope — a single
// mutex is sufficient here because the external contract (spec.md I3) is
// that callers already hold the appropriate itemlock bucket before
// mutating; this mutex is defense-in-depth against Go's own map-concurrency
// rules, not a substitute for the item lock table.
type MapStore struct {
	mu      sync.Mutex
	items   map[string]*entry
	casSeq  uint64
	nextSeq uint64
}

// NewMapStore constructs an empty in-memory store.
func NewMapStore() *MapStore {
	return &MapStore{items: make(map[string]*entry)}
}

func (s *MapStore) expired(e *entry, now uint32) bool {
	return e.im.Exptime != 0 && e.im.Exptime <= now
}

func (s *MapStore) Get(key []byte, now uint32) (*item.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[string(key)]
	if !ok || s.expired(e, now) {
		return nil, ErrNotFound
	}
	return e.im, nil
}

func (s *MapStore) nextCAS() uint64 {
	s.casSeq++
	return s.casSeq
}

func (s *MapStore) Link(im *item.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if im.CAS == 0 {
		im.CAS = s.nextCAS()
	}
	im.Flags |= item.FlagLinked
	s.nextSeq++
	s.items[string(im.Key)] = &entry{im: im, seq: s.nextSeq}
	return nil
}

func (s *MapStore) Unlink(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[string(key)]; !ok {
		return ErrNotFound
	}
	delete(s.items, string(key))
	return nil
}

func (s *MapStore) Touch(key []byte, exptime uint32) (*item.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	e.im.Exptime = exptime
	return e.im, nil
}

func (s *MapStore) CAS(im *item.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[string(im.Key)]
	if !ok {
		return ErrNotFound
	}
	if e.im.CAS != im.CAS {
		return ErrCASMismatch
	}
	im.CAS = s.nextCAS()
	im.Flags |= item.FlagLinked
	s.nextSeq++
	s.items[string(im.Key)] = &entry{im: im, seq: s.nextSeq}
	return nil
}

func (s *MapStore) AddDelta(key []byte, delta int64, incr bool, now uint32) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[string(key)]
	if !ok || s.expired(e, now) {
		return 0, ErrNotFound
	}
	cur, err := parseUint(e.im.Value)
	if err != nil {
		return 0, err
	}
	var next uint64
	if incr {
		next = cur + uint64(delta)
	} else if uint64(delta) > cur {
		next = 0 // decrementing below zero floors at zero
	} else {
		next = cur - uint64(delta)
	}
	e.im.Value = formatUint(next)
	e.im.CAS = s.nextCAS()
	return next, nil
}

func (s *MapStore) FlushExpired(now uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.items {
		if s.expired(e, now) {
			delete(s.items, k)
			n++
		}
	}
	return n
}

func (s *MapStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Snapshot writes every linked item in ascending link-sequence order, so
// repeated calls against an unmodified store are byte-identical — useful
// for the round-trip tests in spec.md §8.
func (s *MapStore) Snapshot(w io.Writer) error {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	sortEntriesBySeq(entries)

	bw := bufio.NewWriter(w)
	var buf []byte
	for _, e := range entries {
		buf = item.Encode(e.im, buf[:0])
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func sortEntriesBySeq(entries []*entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].seq > entries[j].seq; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func parseUint(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, ErrNotNumeric
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, ErrNotNumeric
		}
		v = v*10 + uint64(c-'0')
	}
	return v, nil
}

func formatUint(v uint64) []byte {
	if v == 0 {
		return []byte("0")
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return append([]byte(nil), buf[i:]...)
}

// Now is the external collaborator's absolute-time clock (spec.md §3
// "absolute-time expiration"). A free function, not a Store method, since
// every command handler needs it independent of which store is in use.
func Now() uint32 { return uint32(time.Now().Unix()) }

// minChunkSize and growthFactor mirror memcached's default slab geometry
// (a 96-byte smallest chunk, 1.25x growth), enough to give ClassOf a
// realistic, monotonic size-to-class mapping without pulling in the slab
// allocator itself (spec.md §1 places that out of scope).
const (
	minChunkSize = 96
	growthFactor = 1.25
	maxClasses   = 63
)

// ClassOf implements slabs_clsid(ntotal) (spec.md §6.1): maps an item's
// total encoded size to a slab-class index, the sharding key for
// internal/durability's one-log-writer-per-class pool (spec.md §4.4).
func ClassOf(ntotal int) int {
	size := float64(minChunkSize)
	for class := 0; class < maxClasses; class++ {
		if ntotal <= int(size) {
			return class
		}
		size *= growthFactor
	}
	return maxClasses - 1
}

// NumClasses is the slab-class count ClassOf can return, i.e.
// stats.slabs_num from spec.md §4.4 ("Cardinality ... exactly one log
// writer per slab class").
const NumClasses = maxClasses
