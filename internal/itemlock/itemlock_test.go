package itemlock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExponentSelection(t *testing.T) {
	cases := []struct {
		n    int
		want uint
	}{
		{1, 10}, {2, 10}, {3, 11}, {4, 12}, {5, 13}, {128, 13},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.want, exponentForWorkers(tc.n), "n=%d", tc.n)
	}
}

func TestNumBucketsMatchesExponent(t *testing.T) {
	tbl := New(4)
	require.Equal(t, 1<<12, tbl.NumBuckets())
}

func TestGranularLocksDistinctBuckets(t *testing.T) {
	tbl := New(4)
	tbl.Lock(Granular, 0)
	// a different bucket must not block
	done := make(chan struct{})
	go func() {
		tbl.Lock(Granular, 1)
		tbl.Unlock(Granular, 1)
		close(done)
	}()
	<-done
	tbl.Unlock(Granular, 0)
}

func TestGlobalModeSerializesAcrossBuckets(t *testing.T) {
	tbl := New(4)
	tbl.Lock(Global, 0)

	acquired := make(chan struct{})
	go func() {
		tbl.Lock(Global, 1)
		close(acquired)
		tbl.Unlock(Global, 1)
	}()

	select {
	case <-acquired:
		t.Fatal("global lock should have blocked a concurrent global acquisition")
	default:
	}
	tbl.Unlock(Global, 0)
	<-acquired
}

func TestTryLockNonBlocking(t *testing.T) {
	tbl := New(4)
	h1, ok := tbl.TryLock(5)
	require.True(t, ok)

	_, ok = tbl.TryLock(5)
	require.False(t, ok)

	tbl.TryUnlock(h1)

	h2, ok := tbl.TryLock(5)
	require.True(t, ok)
	tbl.TryUnlock(h2)
}
