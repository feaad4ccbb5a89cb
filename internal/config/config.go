// Package config holds the enumerated options from spec.md §6.3 as a plain
// struct built via functional options, mirroring the teacher's
// eventloop/options.go Option pattern (error-returning apply functions
// over a private options struct, resolved once at construction).
//
// Configuration parsing itself (flags, env, files) is an explicit
// spec.md §1 out-of-scope collaborator ("configuration parsing and CLI");
// this package only defines the resolved struct every other component
// depends on.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the resolved set of options from spec.md §6.3.
type Config struct {
	// NumThreads is the worker count N, used both for notify-pipe count
	// (internal/dispatch) and lock-table sizing (internal/itemlock).
	NumThreads int

	// SnapshotPeriod is the interval between snapshot-eligibility checks
	// (spec.md §4.5 "A single timer thread arms a periodic event").
	SnapshotPeriod time.Duration

	// ChangeNumNeedSnapshot is the minimum dirty-counter value that makes
	// a snapshot-eligibility check actually run a snapshot.
	ChangeNumNeedSnapshot uint64

	// PersistedDataPath is the directory holding snapshot and log files
	// (spec.md §6.2).
	PersistedDataPath string
}

// Option configures a Config. Mirrors eventloop.LoopOption: an interface
// wrapping an error-returning apply function, so invalid combinations
// (e.g. NumThreads <= 0) surface as a constructor error rather than a
// panic deep in a worker pool.
type Option interface {
	apply(*Config) error
}

type optionFunc func(*Config) error

func (f optionFunc) apply(c *Config) error { return f(c) }

// WithNumThreads sets the worker count. Must be >= 1.
func WithNumThreads(n int) Option {
	return optionFunc(func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("config: NumThreads must be >= 1, got %d", n)
		}
		c.NumThreads = n
		return nil
	})
}

// WithSnapshotPeriod sets the snapshot-eligibility check interval. Must be
// positive.
func WithSnapshotPeriod(d time.Duration) Option {
	return optionFunc(func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("config: SnapshotPeriod must be positive, got %s", d)
		}
		c.SnapshotPeriod = d
		return nil
	})
}

// WithChangeNumNeedSnapshot sets the dirty-counter threshold.
func WithChangeNumNeedSnapshot(n uint64) Option {
	return optionFunc(func(c *Config) error {
		c.ChangeNumNeedSnapshot = n
		return nil
	})
}

// WithPersistedDataPath sets the directory for snapshot and log files.
// Must be non-empty.
func WithPersistedDataPath(path string) Option {
	return optionFunc(func(c *Config) error {
		if path == "" {
			return errors.New("config: PersistedDataPath must not be empty")
		}
		c.PersistedDataPath = path
		return nil
	})
}

// defaults mirror the scale implied by spec.md §8's concrete scenarios.
const (
	defaultNumThreads            = 4
	defaultSnapshotPeriod        = 60 * time.Second
	defaultChangeNumNeedSnapshot = 1000
)

// New resolves a Config from the given options, applying defaults for
// anything left unset.
func New(opts ...Option) (*Config, error) {
	c := &Config{
		NumThreads:            defaultNumThreads,
		SnapshotPeriod:        defaultSnapshotPeriod,
		ChangeNumNeedSnapshot: defaultChangeNumNeedSnapshot,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(c); err != nil {
			return nil, err
		}
	}
	if c.PersistedDataPath == "" {
		return nil, errors.New("config: PersistedDataPath is required")
	}
	return c, nil
}
