package durability

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeycumines/cachecore/internal/item"
	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/store"
)

// replayBufferSize bounds the maximum recoverable item image (spec.md
// §4.5): 8 MiB, matching the original source's fixed read_buffer. Items
// larger than this cannot be recovered — a documented limitation, not a
// silent truncation.
const replayBufferSize = 8 << 20

// ErrRecordTooLarge is returned by ReplayFile when a trailing fragment at
// EOF never completes into a full record within replayBufferSize — either
// a truncated write, or (spec.md §8's boundary scenario) an item image
// larger than the replay buffer.
var ErrRecordTooLarge = errors.New("durability: record exceeds replay buffer or file is truncated")

// ReplayFile replays one persisted-state file — snapshot, log_<i>, or
// log_<i>.snapshot_before — against s, applying each image under
// lockTable in the given mode (spec.md §4.5 "redo_file").
//
// Missing files are not an error: spec.md §4.5 replays snapshot and
// log_<i>.snapshot_before "if present".
//
// Buffer refill arithmetic (spec.md §9's "suspect" open question,
// resolved in SPEC_FULL.md §4.5): after decoding every complete record in
// the buffer, the unconsumed tail is copied to the buffer's front and the
// next Read targets buf[tailLen:], so the amount requested always equals
// len(buf)-tailLen.
func ReplayFile(path string, s store.Store, lockTable *itemlock.Table, hash func([]byte) uint32, mode itemlock.Mode) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, replayBufferSize)
	tailLen := 0

	for {
		n, rerr := f.Read(buf[tailLen:])
		if n == 0 && rerr != nil {
			if tailLen > 0 {
				return fmt.Errorf("%w: %s", ErrRecordTooLarge, path)
			}
			return nil
		}
		total := tailLen + n

		consumed := 0
		for consumed < total {
			im, used, derr := item.Decode(buf[consumed:total])
			if derr != nil {
				break // not enough bytes buffered for a full record yet
			}
			applyReplay(im, s, lockTable, hash, mode)
			consumed += used
		}

		tailLen = total - consumed
		if tailLen > 0 {
			copy(buf[:tailLen], buf[consumed:total])
		}

		if rerr != nil {
			if tailLen > 0 {
				return fmt.Errorf("%w: %s", ErrRecordTooLarge, path)
			}
			return nil
		}

		// A full buffer that still didn't yield a complete record means
		// the declared record size exceeds replayBufferSize: the next
		// Read would target a zero-length slice, which os.File.Read
		// reports as (0, nil) rather than EOF, so the n==0 && rerr!=nil
		// guard above would never fire and this loop would spin forever.
		if tailLen == len(buf) {
			return fmt.Errorf("%w: %s", ErrRecordTooLarge, path)
		}
	}
}

// applyReplay is the per-record half of redo_file, resolving both the
// tombstone-shape and memcmp-inversion open questions from spec.md §9:
// an explicit TOMBSTONE flag unlinks, never a value byte-comparison.
func applyReplay(im *item.Image, s store.Store, lockTable *itemlock.Table, hash func([]byte) uint32, mode itemlock.Mode) {
	h := hash(im.Key)
	lockTable.Lock(mode, h)
	defer lockTable.Unlock(mode, h)

	if im.Tombstone() {
		_ = s.Unlink(im.Key)
		return
	}
	if im.Linked() {
		_ = s.Link(im.Clone())
	}
}
