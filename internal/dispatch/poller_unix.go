//go:build !linux && !windows

package dispatch

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollPoller is the non-Linux unix fallback, built on unix.Poll rather
// than a platform-specific kqueue backend (the teacher ships a dedicated
// poller_darwin.go; this repo grounds only the Linux epoll path in depth
// per SPEC_FULL.md §4.2, and uses the portable poll(2) wrapper elsewhere).
type pollPoller struct {
	mu     sync.Mutex
	fds    map[int]fdInfo
	closed bool
}

func newPoller() Poller { return &pollPoller{fds: make(map[int]fdInfo)} }

func (p *pollPoller) Init() error { return nil }

func (p *pollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *pollPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	return nil
}

func (p *pollPoller) UnregisterFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	return nil
}

func (p *pollPoller) ModifyFD(fd int, events IOEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	info.events = events
	p.fds[fd] = info
	return nil
}

func toPollEvents(events IOEvents) int16 {
	var e int16
	if events&EventRead != 0 {
		e |= unix.POLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func fromPollEvents(revents int16) IOEvents {
	var e IOEvents
	if revents&unix.POLLIN != 0 {
		e |= EventRead
	}
	if revents&unix.POLLOUT != 0 {
		e |= EventWrite
	}
	if revents&unix.POLLERR != 0 {
		e |= EventError
	}
	if revents&unix.POLLHUP != 0 {
		e |= EventHangup
	}
	return e
}

func (p *pollPoller) PollIO(timeoutMs int) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPollerClosed
	}
	fds := make([]unix.PollFd, 0, len(p.fds))
	order := make([]int, 0, len(p.fds))
	for fd, info := range p.fds {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(info.events)})
		order = append(order, fd)
	}
	callbacks := make(map[int]IOCallback, len(p.fds))
	for fd, info := range p.fds {
		callbacks[fd] = info.callback
	}
	p.mu.Unlock()

	if len(fds) == 0 {
		return 0, nil
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	dispatched := 0
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		fd := order[i]
		if cb := callbacks[fd]; cb != nil {
			cb(fromPollEvents(pfd.Revents))
			dispatched++
		}
	}
	return dispatched, nil
}
