package durability

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/store"
)

// Recover runs the one-shot recovery pass (spec.md §4.5 "Recovery"): sets
// begin_recover for the duration of the rebuild (so NotifyLog becomes a
// no-op, I7), takes every lock-table lock of the rebuild in GLOBAL mode,
// replays the snapshot, then replays each slab class's logs in ascending
// order, then clears begin_recover.
//
// Runs once at startup, before any worker accepts traffic.
func Recover(dir string, s store.Store, lockTable *itemlock.Table, hash func([]byte) uint32, pool *LogPool) error {
	pool.setBeginRecover(true)
	defer pool.setBeginRecover(false)

	const mode = itemlock.Global

	snapshotPath := filepath.Join(dir, "snapshot")
	if err := ReplayFile(snapshotPath, s, lockTable, hash, mode); err != nil {
		return fmt.Errorf("durability: replay snapshot: %w", err)
	}

	for class := 0; ; class++ {
		p := logPath(dir, class)
		if _, err := os.Stat(p); err != nil {
			// spec.md §4.5 step 2: "until log_s does not exist".
			break
		}
		if err := ReplayFile(snapshotBeforePath(dir, class), s, lockTable, hash, mode); err != nil {
			return fmt.Errorf("durability: replay log_%d.snapshot_before: %w", class, err)
		}
		if err := ReplayFile(p, s, lockTable, hash, mode); err != nil {
			return fmt.Errorf("durability: replay log_%d: %w", class, err)
		}
	}
	return nil
}
