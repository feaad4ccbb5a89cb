package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
)

// ConnHandler constructs and drives a per-connection state machine bound
// to the worker that dispatched it (spec.md §2: "the worker wakes, drains
// one record, and constructs a per-connection state machine bound to its
// own event loop"). The connection state machine itself is an
// out-of-scope collaborator (spec.md §1); dispatch only owns the handoff
// and the worker's lock-mode identity the handler needs to call C1 with.
type ConnHandler func(ctx context.Context, w *Worker, rec *HandoffRecord)

// Worker is one event-loop "thread" from spec.md §4.3: its own handoff
// queue, notify waker, and a thread-local lock-mode flag mutated only from
// its own loop iteration — the re-architecture spec.md §9 prescribes in
// place of an unsynchronized thread-local read.
type Worker struct {
	id        int
	queue     *Queue
	waker     Waker
	poller    Poller
	lockTable *itemlock.Table
	handler   ConnHandler
	arena     *HandoffArena
	stats     *statsd.WorkerStats
	logger    logctx.Logger

	mode atomic.Uint32 // itemlock.Mode; written only by this worker's own run loop
	bar  *barrier       // shared init/switch barrier, assigned by the owning Pool
}

func newWorker(id int, lockTable *itemlock.Table, handler ConnHandler, arena *HandoffArena, stats *statsd.WorkerStats, logger logctx.Logger) (*Worker, error) {
	waker, err := newWaker()
	if err != nil {
		return nil, err
	}
	w := &Worker{
		id:        id,
		queue:     &Queue{},
		waker:     waker,
		poller:    newPoller(),
		lockTable: lockTable,
		handler:   handler,
		arena:     arena,
		stats:     stats,
		logger:    logger,
	}
	w.mode.Store(uint32(itemlock.Granular))
	return w, nil
}

// ID returns the worker's index.
func (w *Worker) ID() int { return w.id }

// Mode returns the worker's current lock mode. Safe from any goroutine;
// only this worker's own run loop ever writes it, in response to a
// notify-pipe command — never read via a thread-local with no barrier.
func (w *Worker) Mode() itemlock.Mode { return itemlock.Mode(w.mode.Load()) }

// LockTable returns the shared striped lock table (C1), so a connection
// handler can call Lock/Unlock with this worker's current Mode().
func (w *Worker) LockTable() *itemlock.Table { return w.lockTable }

// Stats returns this worker's own per-thread stats block (spec.md §3).
func (w *Worker) Stats() *statsd.WorkerStats { return w.stats }

// push enqueues a unit and signals the waker. Called by the listener
// (handoffs) and by the control thread (mode switches) — never by the
// worker itself.
func (w *Worker) push(u WorkUnit) {
	w.queue.Push(u)
	_ = w.waker.Wake()
}

// run is the worker's event loop (spec.md §4.3): wire the poller onto its
// own wake fd, acknowledge the init barrier, then block on fd readiness
// and drain the queue by command until ctx is canceled.
func (w *Worker) run(ctx context.Context) {
	defer w.waker.Close()
	defer w.poller.Close()

	if err := w.poller.Init(); err != nil {
		logctx.Fatal(w.logger, "dispatch: poller init failed")
		return
	}

	woke := make(chan struct{}, 1)
	if err := w.poller.RegisterFD(w.waker.FD(), EventRead, func(IOEvents) {
		w.waker.Drain()
		select {
		case woke <- struct{}{}:
		default:
		}
	}); err != nil {
		logctx.Fatal(w.logger, "dispatch: wake fd registration failed")
		return
	}

	// Wiring complete, thread-local mode flag already GRANULAR: acknowledge
	// the init barrier (spec.md §4.3).
	w.bar.Arrive()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			// Bounded timeout so cancellation is observed promptly even
			// with no pending wake (mirrors libevent's event_base_loop
			// combined with a cooperative shutdown check).
			if _, err := w.poller.PollIO(200); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case <-woke:
			w.drain(ctx)
		}
	}
}

// drain pops and processes every queued unit, command alphabet `c`/`l`/`g`
// from spec.md §4.2. An extra wakeup on an empty queue is idempotent: Pop
// simply returns ok=false.
func (w *Worker) drain(ctx context.Context) {
	for {
		unit, ok := w.queue.Pop()
		if !ok {
			return
		}
		switch unit.Kind {
		case KindConsume:
			// Copy out the handoff before recycling its arena slot: the
			// struct the connection goroutine drives is its own, private,
			// GC-owned copy, so freeing the slot here can never race with
			// the goroutine's later reads (spec.md §3's "ownership
			// transfers to the consuming worker on pop", realized as a
			// transient hold just long enough to copy and recycle).
			rec := *unit.Handoff
			if w.arena != nil {
				w.arena.Free(unit.HandoffHandle)
			}
			go w.handler(ctx, w, &rec)
		case KindSwitchGranular:
			w.mode.Store(uint32(itemlock.Granular))
			w.bar.Arrive()
		case KindSwitchGlobal:
			w.mode.Store(uint32(itemlock.Global))
			w.bar.Arrive()
		default:
			// Unknown mode-switch byte: spec.md §7's "Concurrent programming
			// faults" policy is a fatal assertion.
			logctx.Fatal(w.logger, "dispatch: unknown work unit kind")
		}
	}
}
