package dispatch

import (
	"context"
	"fmt"

	"github.com/joeycumines/cachecore/internal/arenapool"
	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
)

// Pool is the fixed-size worker pool (C3, spec.md §4.3).
type Pool struct {
	workers []*Worker
	bar     *barrier
	last    int // listener-only; spec.md §9: "last_thread is touched only
	// by the listener and needs no protection"
	logger logctx.Logger
}

// NewPool constructs n workers sharing lockTable and arena (the handoff
// record pool the listener allocates from before calling Dispatch).
// Workers are not started until ThreadInit is called.
func NewPool(n int, lockTable *itemlock.Table, handler ConnHandler, arena *HandoffArena, logger logctx.Logger) (*Pool, []*statsd.WorkerStats, error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("dispatch: NumThreads must be >= 1, got %d", n)
	}
	p := &Pool{logger: logger, bar: newBarrier(n), last: -1}
	stats := make([]*statsd.WorkerStats, n)
	for i := 0; i < n; i++ {
		st := &statsd.WorkerStats{}
		stats[i] = st
		w, err := newWorker(i, lockTable, handler, arena, st, logger)
		if err != nil {
			for _, started := range p.workers {
				_ = started.waker.Close()
			}
			return nil, nil, fmt.Errorf("dispatch: worker %d init: %w", i, err)
		}
		w.bar = p.bar
		p.workers = append(p.workers, w)
	}
	return p, stats, nil
}

// ThreadInit starts every worker's event loop and blocks until each has
// wired its poller onto its own wake fd and initialized its lock-mode
// flag to GRANULAR (spec.md §4.3's init barrier). The caller owns ctx's
// lifetime: canceling it stops every worker's event loop.
func (p *Pool) ThreadInit(ctx context.Context) {
	p.bar.Reset(len(p.workers))
	for _, w := range p.workers {
		go w.run(ctx)
	}
	p.bar.Wait()
}

// Dispatch is the listener-callable half of spec.md §4.3: selects
// t = (last+1) mod N, pushes a consume unit onto worker t's queue, wakes
// it. Round-robin is the only policy — no affinity, no load feedback.
// Must only ever be called from the single listener goroutine, with the
// handle Alloc returned alongside rec so the worker can recycle the slot.
func (p *Pool) Dispatch(h arenapool.Handle, rec *HandoffRecord) {
	p.last = (p.last + 1) % len(p.workers)
	p.workers[p.last].push(WorkUnit{Kind: KindConsume, Handoff: rec, HandoffHandle: h})
}

// NumWorkers reports N.
func (p *Pool) NumWorkers() int { return len(p.workers) }

// Worker exposes worker i — used by tests asserting post-switch Mode().
func (p *Pool) Worker(i int) *Worker { return p.workers[i] }

// SwitchMode is the control-thread-only operation from spec.md §4.1: send
// the mode command to every worker, then block on the (reused) init
// barrier until every worker has acknowledged by applying the new mode to
// its own field. After SwitchMode returns, I4 holds.
func (p *Pool) SwitchMode(mode itemlock.Mode) {
	kind := KindSwitchGranular
	if mode == itemlock.Global {
		kind = KindSwitchGlobal
	}
	p.bar.Reset(len(p.workers))
	for _, w := range p.workers {
		w.push(WorkUnit{Kind: kind})
	}
	p.bar.Wait()
}
