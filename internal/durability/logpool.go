package durability

import (
	"context"
	"sync/atomic"

	"github.com/joeycumines/cachecore/internal/item"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
	"github.com/joeycumines/cachecore/internal/store"
)

// LogPool is the log writer pool (C4): exactly one writer per slab class
// (spec.md §4.4 "Cardinality ... stats.slabs_num instances").
type LogPool struct {
	writers      []*Writer
	stats        *statsd.Global
	beginRecover atomic.Bool
}

// NewLogPool builds a writer for each of numClasses slab classes, each
// attempting to open its log file under dir.
func NewLogPool(dir string, numClasses int, stats *statsd.Global, logger logctx.Logger) *LogPool {
	p := &LogPool{stats: stats}
	arena := NewRecordArena(0)
	p.writers = make([]*Writer, numClasses)
	for i := range p.writers {
		p.writers[i] = NewWriter(dir, i, arena, stats, logger)
	}
	return p
}

// NotifyLog is the producer-facing half of spec.md §4.4: clone the item
// image, route it to the writer for its slab class, submit, and bump the
// dirty counter. A no-op while a recovery pass holds begin_recover (I7).
func (p *LogPool) NotifyLog(ctx context.Context, im *item.Image) error {
	if p.beginRecover.Load() {
		return nil
	}
	cp := im.Clone()
	class := store.ClassOf(cp.Len())
	if class >= len(p.writers) {
		class = len(p.writers) - 1
	}
	if err := p.writers[class].Submit(ctx, cp); err != nil {
		return err
	}
	p.stats.NoteChange()
	return nil
}

// BeginRecover reports whether a recovery pass currently holds the flag.
func (p *LogPool) BeginRecover() bool { return p.beginRecover.Load() }

func (p *LogPool) setBeginRecover(v bool) { p.beginRecover.Store(v) }

// RotateAll sends 's' to every writer and waits for each rotation to
// complete — spec.md §4.5 step 2, the start of I6.
func (p *LogPool) RotateAll(ctx context.Context) error {
	for _, w := range p.writers {
		if err := w.Rotate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DoneAll sends 'd' to every writer — spec.md §4.5 step 4, the end of I6.
func (p *LogPool) DoneAll(ctx context.Context) error {
	for _, w := range p.writers {
		if err := w.Done(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NumClasses reports the writer count.
func (p *LogPool) NumClasses() int { return len(p.writers) }

// Close shuts every writer down.
func (p *LogPool) Close() error {
	var first error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
