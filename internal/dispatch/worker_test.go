package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
)

func TestWorkerAccessors(t *testing.T) {
	lockTable := itemlock.New(1)
	stats := &statsd.WorkerStats{}
	w, err := newWorker(5, lockTable, func(context.Context, *Worker, *HandoffRecord) {}, nil, stats, logctx.NewDiscard())
	if err != nil {
		t.Fatalf("newWorker: %v", err)
	}
	defer w.waker.Close()
	defer w.poller.Close()

	if w.ID() != 5 {
		t.Fatalf("ID() = %d, want 5", w.ID())
	}
	if w.LockTable() != lockTable {
		t.Fatal("LockTable() did not return the shared table")
	}
	if w.Stats() != stats {
		t.Fatal("Stats() did not return the shared stats block")
	}
	if w.Mode() != itemlock.Granular {
		t.Fatal("a fresh worker must start in GRANULAR mode")
	}
}

func TestWorkerSpuriousWakeIsIdempotent(t *testing.T) {
	lockTable := itemlock.New(1)
	handled := make(chan struct{}, 1)
	w, err := newWorker(0, lockTable, func(context.Context, *Worker, *HandoffRecord) {
		handled <- struct{}{}
	}, nil, &statsd.WorkerStats{}, logctx.NewDiscard())
	if err != nil {
		t.Fatalf("newWorker: %v", err)
	}
	w.bar = newBarrier(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.run(ctx)
	w.bar.Wait()

	// Wake with nothing queued: must not panic or misfire the handler.
	_ = w.waker.Wake()

	select {
	case <-handled:
		t.Fatal("handler fired despite an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	w.push(WorkUnit{Kind: KindConsume, Handoff: &HandoffRecord{}})

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler never fired for a genuinely queued unit")
	}
}
