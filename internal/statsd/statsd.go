// Package statsd implements the per-thread stats blocks and aggregation
// described in spec.md §5 "Shared resources": each worker owns its own
// block of counters, and the global counters that are genuinely shared
// (MallocFails, the dirty counter) are true atomics per spec.md §9's
// resolution of the "racy increment" open question.
//
// Grounded on original_source/thread.c's per-thread `stats` block pattern
// (a mutex-guarded counters struct, aggregated on read via STATS_LOCK /
// STATS_UNLOCK style access). Here every counter is an atomic.Uint64
// instead, so neither increments nor snapshot reads take a lock.
package statsd

import "sync/atomic"

// WorkerStats is the per-worker counters block (spec.md §3 "per-thread
// stats block"). It is written by the connection goroutines of its owning
// worker, concurrently, which the atomic counters make safe; Snapshot may
// be called by any goroutine for aggregation.
type WorkerStats struct {
	getHits   atomic.Uint64
	getMisses atomic.Uint64
	sets      atomic.Uint64
	deletes   atomic.Uint64
	touches   atomic.Uint64
	casHits   atomic.Uint64
	casMisses atomic.Uint64
	incrDecr  atomic.Uint64
}

func (s *WorkerStats) IncrGetHits()   { s.getHits.Add(1) }
func (s *WorkerStats) IncrGetMisses() { s.getMisses.Add(1) }
func (s *WorkerStats) IncrSets()      { s.sets.Add(1) }
func (s *WorkerStats) IncrDeletes()   { s.deletes.Add(1) }
func (s *WorkerStats) IncrTouches()   { s.touches.Add(1) }
func (s *WorkerStats) IncrCASHits()   { s.casHits.Add(1) }
func (s *WorkerStats) IncrCASMisses() { s.casMisses.Add(1) }
func (s *WorkerStats) IncrIncrDecr()  { s.incrDecr.Add(1) }

// Snapshot is a point-in-time copy of a WorkerStats block's counters.
type Snapshot struct {
	GetHits, GetMisses             uint64
	Sets, Deletes, Touches         uint64
	CASHits, CASMisses             uint64
	IncrDecr                       uint64
}

func (s *WorkerStats) Snapshot() Snapshot {
	return Snapshot{
		GetHits:   s.getHits.Load(),
		GetMisses: s.getMisses.Load(),
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Touches:   s.touches.Load(),
		CASHits:   s.casHits.Load(),
		CASMisses: s.casMisses.Load(),
		IncrDecr:  s.incrDecr.Load(),
	}
}

// Aggregate sums a set of per-worker snapshots into one total, the Go
// equivalent of thread.c's threadlocal_stats_aggregate.
func Aggregate(blocks []*WorkerStats) Snapshot {
	var total Snapshot
	for _, b := range blocks {
		s := b.Snapshot()
		total.GetHits += s.GetHits
		total.GetMisses += s.GetMisses
		total.Sets += s.Sets
		total.Deletes += s.Deletes
		total.Touches += s.Touches
		total.CASHits += s.CASHits
		total.CASMisses += s.CASMisses
		total.IncrDecr += s.IncrDecr
	}
	return total
}

// Global holds the process-wide counters spec.md §5 singles out as shared
// mutable state: MallocFails (incremented on any allocation-failure path
// per spec.md §7) and ChangesAfterLastSnapshot, the "dirty counter" from
// spec.md §4.5 whose reset-to-zero must be a single atomic exchange to
// avoid losing mutations submitted between read and reset (spec.md §9).
type Global struct {
	MallocFails              atomic.Uint64
	changesAfterLastSnapshot atomic.Uint64
}

// NoteChange increments the dirty counter, called once per durable
// mutation submitted to the log writer pool (spec.md §4.4 notify_log).
func (g *Global) NoteChange() { g.changesAfterLastSnapshot.Add(1) }

// Changes returns the current dirty counter value without resetting it.
func (g *Global) Changes() uint64 { return g.changesAfterLastSnapshot.Load() }

// ResetChanges atomically exchanges the dirty counter for zero, returning
// the value observed immediately before the reset. A plain
// "if changes >= threshold { changes = 0 }" would lose any mutation
// submitted between the read and the reset; Swap makes the read-and-clear
// indivisible (spec.md §9).
func (g *Global) ResetChanges() uint64 { return g.changesAfterLastSnapshot.Swap(0) }
