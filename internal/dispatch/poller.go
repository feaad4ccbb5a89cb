package dispatch

import "errors"

// IOEvents is the event-mask type shared by every platform poller
// backend, adapted from the teacher's eventloop/poller_linux.go FastPoller
// (generalized from a JS-runtime I/O poller to a worker's own fd-readiness
// loop, per spec.md §4.3's "event loop over its receive pipe end and all
// sockets registered by its own connection_accept handler").
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// IOCallback receives the observed events for a registered fd.
type IOCallback func(IOEvents)

var (
	ErrFDAlreadyRegistered = errors.New("dispatch: fd already registered")
	ErrFDNotRegistered     = errors.New("dispatch: fd not registered")
	ErrPollerClosed        = errors.New("dispatch: poller closed")
)

// Poller is the platform-specific readiness multiplexer a Worker's event
// loop drives. Implementations live in poller_linux.go (epoll) and
// poller_unix.go (poll(2), non-Linux unix).
type Poller interface {
	Init() error
	Close() error
	RegisterFD(fd int, events IOEvents, cb IOCallback) error
	UnregisterFD(fd int) error
	ModifyFD(fd int, events IOEvents) error
	// PollIO blocks up to timeoutMs (negative blocks indefinitely),
	// dispatches ready callbacks inline, and returns the event count.
	PollIO(timeoutMs int) (int, error)
}
