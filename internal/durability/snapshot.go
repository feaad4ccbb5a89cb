package durability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
	"github.com/joeycumines/cachecore/internal/store"
)

// Snapshotter is the periodic timer thread from spec.md §4.5: arms a
// periodic check, and on every fire, if the dirty counter has crossed the
// configured threshold, rotates every log writer, walks the live table
// into a snapshot file, then tells every writer its pre-rotation tail is
// safe to discard.
type Snapshotter struct {
	dir       string
	period    time.Duration
	threshold uint64
	store     store.Store
	pool      *LogPool
	stats     *statsd.Global
	logger    logctx.Logger

	// forceLimiter rate-limits every snapshot check, both ticker-driven and
	// operator-triggered (the admin surface's force-check, SPEC_FULL.md
	// §4.6), independent of the hard dirty-counter threshold, so a
	// misbehaving client hammering the admin surface can't force repeated
	// heap walks. Grounded on catrate's
	// sliding-window rate tracking, adapted from a generic per-category
	// limiter into a single fixed "force-snapshot" category.
	forceLimiter *catrate.Limiter
}

// NewSnapshotter builds a Snapshotter. period and threshold mirror
// config.SnapshotPeriod and config.ChangeNumNeedSnapshot.
func NewSnapshotter(dir string, period time.Duration, threshold uint64, s store.Store, pool *LogPool, stats *statsd.Global, logger logctx.Logger) *Snapshotter {
	return &Snapshotter{
		dir:          dir,
		period:       period,
		threshold:    threshold,
		store:        s,
		pool:         pool,
		stats:        stats,
		logger:       logger,
		forceLimiter: catrate.NewLimiter(map[time.Duration]int{time.Second: 1}),
	}
}

// Run arms the periodic timer and blocks until ctx is canceled. The timer
// rearms unconditionally after every fire (spec.md §4.5).
func (sn *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(sn.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sn.fire(ctx)
		}
	}
}

// fire implements spec.md §4.5's "On fire" check: rate-limits how often
// the dirty counter is even sampled (the catrate enrichment in SPEC_FULL.md's
// DOMAIN STACK, independent of the hard ChangeNumNeedSnapshot threshold),
// skips entirely during recovery, skips if the dirty counter hasn't
// crossed the threshold, otherwise runs the full rotate/walk/done
// sequence.
func (sn *Snapshotter) fire(ctx context.Context) {
	if _, ok := sn.forceLimiter.Allow("dirty-counter-sample"); !ok {
		return
	}
	if sn.pool.BeginRecover() {
		return
	}
	if sn.stats.Changes() < sn.threshold {
		return
	}
	if err := sn.runSnapshot(ctx); err != nil && sn.logger != nil {
		sn.logger.Err().Err(err).Log("durability: snapshot cycle failed")
	}
}

// ForceCheck is the admin-surface entrypoint for an operator-triggered
// snapshot check (SPEC_FULL.md §4.6): routes through the same
// rate-limited fire as the periodic ticker, so an operator hammering the
// admin surface can't force unbounded heap walks either. Always returns
// true; the limiter silently no-ops an over-rate call exactly as it would
// a ticker tick, since neither caller distinguishes a skip from a no-op
// below-threshold check.
func (sn *Snapshotter) ForceCheck(ctx context.Context) bool {
	sn.fire(ctx)
	return true
}

// runSnapshot implements spec.md §4.5 steps 1-4.
func (sn *Snapshotter) runSnapshot(ctx context.Context) error {
	sn.stats.ResetChanges() // step 1: atomic exchange, before any I/O

	if err := sn.pool.RotateAll(ctx); err != nil { // step 2
		return fmt.Errorf("rotate: %w", err)
	}

	if err := sn.writeSnapshot(); err != nil { // step 3
		return fmt.Errorf("heap walk: %w", err)
	}

	if err := sn.pool.DoneAll(ctx); err != nil { // step 4
		return fmt.Errorf("done: %w", err)
	}
	return nil
}

// writeSnapshot performs the heap walk (the external collaborator's
// responsibility per spec.md §4.5; store.Store.Snapshot is that
// collaborator's interface here) into a temp file, then renames it into
// place atomically so a crash mid-write never leaves a half-written
// snapshot visible to a subsequent recovery pass.
func (sn *Snapshotter) writeSnapshot() error {
	path := filepath.Join(sn.dir, "snapshot")
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := sn.store.Snapshot(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
