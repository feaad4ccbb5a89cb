//go:build !linux

package dispatch

import (
	"os"
	"time"
)

// pipeWaker is the portable fallback backend for platforms without an
// eventfd equivalent wired up (the teacher ships separate kqueue/IOCP
// backends per platform; this repo only grounds the Linux epoll/eventfd
// path in depth, per SPEC_FULL.md §4.2). A byte pipe satisfies the same
// edge-triggered, one-way contract: a non-empty read is pending readiness.
type pipeWaker struct {
	r, w *os.File
}

func newWaker() (Waker, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &pipeWaker{r: r, w: w}, nil
}

func (p *pipeWaker) FD() int { return int(p.r.Fd()) }

func (p *pipeWaker) Wake() error {
	_, err := p.w.Write([]byte{'c'})
	return err
}

func (p *pipeWaker) Drain() {
	buf := make([]byte, 64)
	for {
		_ = p.r.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := p.r.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	_ = p.r.SetReadDeadline(time.Time{})
}

func (p *pipeWaker) Close() error {
	_ = p.w.Close()
	return p.r.Close()
}
