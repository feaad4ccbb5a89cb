package durability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	microbatch "github.com/joeycumines/go-microbatch"

	"github.com/joeycumines/cachecore/internal/arenapool"
	"github.com/joeycumines/cachecore/internal/item"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
)

// ErrLogFileClosed is returned by nothing in this package directly — it
// documents the spec.md §7 policy that a closed/never-opened log file is
// not an error condition a caller can observe: submissions silently
// discard on dequeue instead.
var ErrLogFileClosed = errors.New("durability: log file is closed")

// recordJob is what travels through the writer's microbatch.Batcher: the
// arena handle alongside the record, so the record can be recycled into
// the freelist once the writer loop has finished with it (spec.md §9's
// fixed lqi_free: free the owned copy, then unconditionally recycle).
type recordJob struct {
	handle arenapool.Handle
	rec    *LogRecord
}

// Writer is one per-slab-class log writer "thread" (spec.md §4.4): an
// event-loop goroutine owning a queue of log records and an append-only
// log file. The queue + single-record-at-a-time drain discipline is
// grounded on the teacher's microbatch.Batcher — generalized here from a
// generic batch-flush primitive (MaxConcurrency windows of many jobs) into
// the one-record-at-a-time `l`/`s`/`d` command loop spec.md specifies, by
// configuring MaxSize=1 (every "batch" is exactly one record) and
// MaxConcurrency=1 (batches run strictly in submission order — the FIFO
// guarantee spec.md §4.4 and §8 require).
type Writer struct {
	class   int
	dir     string
	mu      sync.Mutex
	fd      *os.File
	arena   *RecordArena
	logger  logctx.Logger
	stats   *statsd.Global
	batcher *microbatch.Batcher[recordJob]
}

func logFileName(class int) string { return fmt.Sprintf("log_%d", class) }

func logPath(dir string, class int) string { return filepath.Join(dir, logFileName(class)) }

func snapshotBeforePath(dir string, class int) string {
	return logPath(dir, class) + ".snapshot_before"
}

// NewWriter builds a writer for one slab class and attempts to open its
// log file for append. A failure to open is not fatal (spec.md §7): the
// writer runs with a nil file handle and every subsequent append silently
// discards.
func NewWriter(dir string, class int, arena *RecordArena, stats *statsd.Global, logger logctx.Logger) *Writer {
	w := &Writer{class: class, dir: dir, arena: arena, stats: stats, logger: logger}
	if err := w.openForAppend(); err != nil && logger != nil {
		logger.Warning().Err(err).Int("slab_class", class).Log("durability: log file open failed, writer running without a file")
	}
	w.batcher = microbatch.NewBatcher[recordJob](&microbatch.BatcherConfig{
		MaxSize:        1,
		FlushInterval:  -1,
		MaxConcurrency: 1,
	}, w.process)
	return w
}

func (w *Writer) openForAppend() error {
	f, err := os.OpenFile(logPath(w.dir, w.class), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	w.mu.Lock()
	w.fd = nil
	if err == nil {
		w.fd = f
	}
	w.mu.Unlock()
	return err
}

func (w *Writer) process(_ context.Context, jobs []recordJob) error {
	// MaxSize=1 guarantees exactly one job per batch.
	j := jobs[0]
	defer w.arena.Free(j.handle, j.rec)

	switch j.rec.Kind {
	case CmdAppend:
		w.append(j.rec.Item)
	case CmdRotate:
		w.rotate()
	case CmdDone:
		w.done()
	}
	return nil
}

// append implements the 'l' command: write exactly Ntotal(copy) bytes,
// flush, done. A write/flush failure is logged and dropped — spec.md §7's
// "no retry policy anywhere".
func (w *Writer) append(im *item.Image) {
	w.mu.Lock()
	fd := w.fd
	w.mu.Unlock()
	if fd == nil {
		return
	}
	buf := item.Encode(im, nil)
	if _, err := fd.Write(buf); err != nil {
		if w.logger != nil {
			w.logger.Err().Err(err).Int("slab_class", w.class).Log("durability: log append failed")
		}
		return
	}
	if err := fd.Sync(); err != nil && w.logger != nil {
		w.logger.Err().Err(err).Int("slab_class", w.class).Log("durability: log flush failed")
	}
}

// rotate implements the 's' command: close the current file, rename it to
// the .snapshot_before tail, reopen the bare name for append. After this
// returns, records submitted by producers land only in the new file
// (spec.md §4.4, beginning of I6).
func (w *Writer) rotate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd != nil {
		_ = w.fd.Close()
		w.fd = nil
	}
	src := logPath(w.dir, w.class)
	dst := snapshotBeforePath(w.dir, w.class)
	if err := os.Rename(src, dst); err != nil && w.logger != nil && !os.IsNotExist(err) {
		w.logger.Warning().Err(err).Int("slab_class", w.class).Log("durability: log rotate rename failed")
	}
	f, err := os.OpenFile(src, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if w.logger != nil {
			w.logger.Warning().Err(err).Int("slab_class", w.class).Log("durability: log reopen after rotate failed")
		}
		return
	}
	w.fd = f
}

// done implements the 'd' command: unlink the pre-rotation tail, called
// once the snapshotter has durably captured the state preceding rotate
// (end of I6).
func (w *Writer) done() {
	_ = os.Remove(snapshotBeforePath(w.dir, w.class))
}

// Submit enqueues an append command (the producer half of notify_log,
// spec.md §4.4). im must already be an owned deep copy (spec I5); Submit
// does not wait for the write to land on disk — a producer observing
// Submit return has no ordering guarantee beyond this writer's own FIFO
// (spec.md §4.4 "Durability contract").
func (w *Writer) Submit(ctx context.Context, im *item.Image) error {
	h, rec, err := w.arena.Alloc()
	if err != nil {
		if w.stats != nil {
			w.stats.MallocFails.Add(1)
		}
		return err
	}
	rec.Kind = CmdAppend
	rec.Item = im
	_, err = w.batcher.Submit(ctx, recordJob{handle: h, rec: rec})
	return err
}

// Rotate enqueues and waits for the 's' command, so the caller (the
// snapshotter) observes the rotation complete before starting the heap
// walk — required for I6 to hold.
func (w *Writer) Rotate(ctx context.Context) error {
	return w.submitAndWait(ctx, CmdRotate)
}

// Done enqueues and waits for the 'd' command.
func (w *Writer) Done(ctx context.Context) error {
	return w.submitAndWait(ctx, CmdDone)
}

func (w *Writer) submitAndWait(ctx context.Context, kind CommandKind) error {
	h, rec, err := w.arena.Alloc()
	if err != nil {
		if w.stats != nil {
			w.stats.MallocFails.Add(1)
		}
		return err
	}
	rec.Kind = kind
	res, err := w.batcher.Submit(ctx, recordJob{handle: h, rec: rec})
	if err != nil {
		return err
	}
	return res.Wait(ctx)
}

// Close shuts the batcher down and closes the underlying file, if open.
func (w *Writer) Close() error {
	_ = w.batcher.Close()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd != nil {
		err := w.fd.Close()
		w.fd = nil
		return err
	}
	return nil
}
