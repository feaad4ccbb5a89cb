//go:build linux

package dispatch

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// eventfdWaker is the Linux backend, grounded directly on the teacher's
// eventloop/wakeup_linux.go createWakeFd/drainWakeUpPipe pair — adapted
// from a JS-runtime event-loop wakeup primitive to a worker notify channel.
// An eventfd is a kernel counter: writes add to it, reads drain it to
// zero, and any non-zero value makes the fd readable — exactly the
// edge-triggered, collapsible semantics spec.md §4.2 requires.
type eventfdWaker struct {
	fd int
}

func newWaker() (Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdWaker{fd: fd}, nil
}

func (w *eventfdWaker) FD() int { return w.fd }

func (w *eventfdWaker) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(w.fd, buf[:])
	if err == unix.EAGAIN {
		// counter already non-zero; readiness edge already pending.
		return nil
	}
	return err
}

func (w *eventfdWaker) Drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			break
		}
	}
}

func (w *eventfdWaker) Close() error { return unix.Close(w.fd) }
