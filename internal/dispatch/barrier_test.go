package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestBarrierWaitBlocksUntilTarget(t *testing.T) {
	b := newBarrier(3)
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before any Arrive")
	case <-time.After(20 * time.Millisecond):
	}

	b.Arrive()
	b.Arrive()

	select {
	case <-done:
		t.Fatal("Wait returned before the third Arrive")
	case <-time.After(20 * time.Millisecond):
	}

	b.Arrive()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after the target count arrived")
	}
}

func TestBarrierResetReusesForNextRound(t *testing.T) {
	b := newBarrier(2)
	b.Arrive()
	b.Arrive()
	b.Wait() // first round already satisfied

	b.Reset(2)

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the reset round's arrivals")
	case <-time.After(20 * time.Millisecond):
	}

	b.Arrive()
	b.Arrive()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned for the reset round")
	}
}

func TestBarrierConcurrentArrivals(t *testing.T) {
	const n = 32
	b := newBarrier(n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b.Arrive()
		}()
	}
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()
	wg.Wait()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after all concurrent arrivals")
	}
}
