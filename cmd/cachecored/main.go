// Command cachecored is the cache server process: it wires the lock
// table (C1), the worker dispatch fabric (C2/C3), the durability pipeline
// (C4/C5), runs startup recovery, then accepts admin-protocol connections
// and round-robins them across the worker pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/cachecore/internal/adminproto"
	"github.com/joeycumines/cachecore/internal/config"
	"github.com/joeycumines/cachecore/internal/dispatch"
	"github.com/joeycumines/cachecore/internal/durability"
	"github.com/joeycumines/cachecore/internal/itemlock"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
	"github.com/joeycumines/cachecore/internal/store"
)

func main() {
	var (
		listenAddr     = flag.String("listen", "127.0.0.1:11311", "admin protocol listen address")
		dataDir        = flag.String("data-dir", "", "directory for snapshot and log files (required)")
		numThreads     = flag.Int("num-threads", 4, "worker pool size")
		snapshotPeriod = flag.Duration("snapshot-period", 60*time.Second, "interval between snapshot-eligibility checks")
		changeThresh   = flag.Uint64("change-threshold", 1000, "dirty-counter value that makes a snapshot check actually snapshot")
	)
	flag.Parse()

	logger := logctx.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(*listenAddr, *dataDir, *numThreads, *snapshotPeriod, *changeThresh, logger); err != nil {
		logger.Emerg().Err(err).Log("cachecored: fatal error")
		os.Exit(1)
	}
}

func run(listenAddr, dataDir string, numThreads int, snapshotPeriod time.Duration, changeThresh uint64, logger logctx.Logger) error {
	cfg, err := config.New(
		config.WithNumThreads(numThreads),
		config.WithSnapshotPeriod(snapshotPeriod),
		config.WithChangeNumNeedSnapshot(changeThresh),
		config.WithPersistedDataPath(dataDir),
	)
	if err != nil {
		return fmt.Errorf("cachecored: config: %w", err)
	}

	if err := os.MkdirAll(cfg.PersistedDataPath, 0o755); err != nil {
		return fmt.Errorf("cachecored: creating data dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lockTable := itemlock.New(cfg.NumThreads)
	kv := store.NewMapStore()
	global := &statsd.Global{}
	logPool := durability.NewLogPool(cfg.PersistedDataPath, store.NumClasses, global, logger)
	defer logPool.Close()

	logger.Notice().Log("cachecored: replaying persisted state")
	if err := durability.Recover(cfg.PersistedDataPath, kv, lockTable, adminproto.Hash, logPool); err != nil {
		return fmt.Errorf("cachecored: recovery: %w", err)
	}
	logger.Notice().Int("items", kv.Len()).Log("cachecored: recovery complete")

	snapshotter := durability.NewSnapshotter(cfg.PersistedDataPath, cfg.SnapshotPeriod, cfg.ChangeNumNeedSnapshot, kv, logPool, global, logger)
	go snapshotter.Run(ctx)

	admin := &adminproto.Server{
		Store:       kv,
		LogPool:     logPool,
		Snapshotter: snapshotter,
		Logger:      logger,
	}

	arena := dispatch.NewHandoffArena(0)
	pool, _, err := dispatch.NewPool(cfg.NumThreads, lockTable, admin.Handle, arena, logger)
	if err != nil {
		return fmt.Errorf("cachecored: dispatch pool: %w", err)
	}
	pool.ThreadInit(ctx)

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("cachecored: listen: %w", err)
	}
	defer ln.Close()
	logger.Notice().Str("addr", listenAddr).Log("cachecored: listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warning().Err(err).Log("cachecored: accept failed")
			continue
		}

		h, rec, err := arena.Alloc()
		if err != nil {
			global.MallocFails.Add(1)
			logger.Warning().Err(err).Log("cachecored: handoff arena exhausted, dropping connection")
			_ = conn.Close()
			continue
		}
		rec.Conn = conn
		rec.Transport = dispatch.TransportTCP
		rec.ReadBufSize = 4096
		pool.Dispatch(h, rec)
	}
}
