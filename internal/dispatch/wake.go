package dispatch

// Waker is the notify-pipe primitive from spec.md §4.2: a one-way,
// edge-triggered, collapsible wakeup. Multiple Wake calls before a Drain
// collapse into a single readiness edge, matching "an extra wakeup on an
// empty queue is idempotent" from spec.md §4.2. FD is registered with the
// worker's event-loop poller for readiness notification.
type Waker interface {
	FD() int
	Wake() error
	Drain()
	Close() error
}
