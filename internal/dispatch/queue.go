// Package dispatch implements the worker dispatch fabric: the lock-
// protected handoff queue and byte-pipe wakeup (C2, spec.md §4.2) and the
// fixed-size worker pool built on top of it (C3, spec.md §4.3).
package dispatch

import (
	"sync"

	"github.com/joeycumines/cachecore/internal/arenapool"
)

// Kind identifies the command carried by a WorkUnit, mirroring the single-
// byte notify-pipe alphabet from spec.md §4.2: 'c' = consume one handoff,
// 'l' = switch mode to GRANULAR and ack, 'g' = switch mode to GLOBAL and
// ack. Go's eventfd-based waker (wake_linux.go) is a pure edge trigger with
// no payload, so the command value travels alongside the handoff queue
// entry rather than as a literal byte on the wire.
type Kind uint8

const (
	KindConsume Kind = iota
	KindSwitchGranular
	KindSwitchGlobal
)

// WorkUnit is one entry in a worker's queue: either a handoff record to
// consume, or a mode-switch command to apply and acknowledge. HandoffHandle
// is the arena slot backing Handoff, recycled by the worker the instant it
// has copied out what the connection goroutine needs (zero value for
// mode-switch units, which carry no handoff).
type WorkUnit struct {
	Kind          Kind
	Handoff       *HandoffRecord
	HandoffHandle arenapool.Handle
}

type queueNode struct {
	unit WorkUnit
	next *queueNode
}

// Queue is the FIFO singly-linked handoff queue from spec.md §4.2: push
// appends under a mutex, pop returns head-or-empty under the same mutex,
// no condition variable — wakeup is strictly out of band via a Waker.
type Queue struct {
	mu   sync.Mutex
	head *queueNode
	tail *queueNode
}

// Push appends u to the tail of the queue.
func (q *Queue) Push(u WorkUnit) {
	n := &queueNode{unit: u}
	q.mu.Lock()
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.mu.Unlock()
}

// Pop removes and returns the head unit, or ok=false if the queue is empty.
func (q *Queue) Pop() (unit WorkUnit, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		return WorkUnit{}, false
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	return n.unit, true
}
