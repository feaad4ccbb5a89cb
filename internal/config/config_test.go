package config

import (
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(WithPersistedDataPath("/tmp/x"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.NumThreads != defaultNumThreads {
		t.Fatalf("NumThreads = %d, want default %d", c.NumThreads, defaultNumThreads)
	}
	if c.SnapshotPeriod != defaultSnapshotPeriod {
		t.Fatalf("SnapshotPeriod = %s, want default %s", c.SnapshotPeriod, defaultSnapshotPeriod)
	}
	if c.ChangeNumNeedSnapshot != defaultChangeNumNeedSnapshot {
		t.Fatalf("ChangeNumNeedSnapshot = %d, want default %d", c.ChangeNumNeedSnapshot, defaultChangeNumNeedSnapshot)
	}
}

func TestNewAppliesExplicitOptions(t *testing.T) {
	c, err := New(
		WithNumThreads(8),
		WithSnapshotPeriod(5*time.Second),
		WithChangeNumNeedSnapshot(42),
		WithPersistedDataPath("/var/lib/cachecore"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.NumThreads != 8 || c.SnapshotPeriod != 5*time.Second || c.ChangeNumNeedSnapshot != 42 || c.PersistedDataPath != "/var/lib/cachecore" {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestNewRejectsMissingDataPath(t *testing.T) {
	if _, err := New(WithNumThreads(1)); err == nil {
		t.Fatal("expected an error when PersistedDataPath is never set")
	}
}

func TestWithNumThreadsRejectsNonPositive(t *testing.T) {
	if _, err := New(WithNumThreads(0), WithPersistedDataPath("/tmp/x")); err == nil {
		t.Fatal("expected an error for NumThreads=0")
	}
	if _, err := New(WithNumThreads(-1), WithPersistedDataPath("/tmp/x")); err == nil {
		t.Fatal("expected an error for a negative NumThreads")
	}
}

func TestWithSnapshotPeriodRejectsNonPositive(t *testing.T) {
	if _, err := New(WithSnapshotPeriod(0), WithPersistedDataPath("/tmp/x")); err == nil {
		t.Fatal("expected an error for a zero SnapshotPeriod")
	}
	if _, err := New(WithSnapshotPeriod(-time.Second), WithPersistedDataPath("/tmp/x")); err == nil {
		t.Fatal("expected an error for a negative SnapshotPeriod")
	}
}

func TestWithPersistedDataPathRejectsEmpty(t *testing.T) {
	if _, err := New(WithPersistedDataPath("")); err == nil {
		t.Fatal("expected an error for an empty PersistedDataPath")
	}
}
