//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package ev

import (
	"fmt"
	"time"
)

// readyEvent is one fd's readiness report for a single Wait call.
type readyEvent struct {
	fd       int
	readable bool
	writable bool
	hup      bool // POLLHUP|POLLERR|POLLNVAL equivalent: deliver both READ and WRITE
}

// pollBackend is the thin syscall surface a readiness-style OS
// multiplexer must provide; reactor_epoll.go (Linux) and
// reactor_kqueue.go (Darwin/BSD) each implement it, and readinessReactor
// supplies the OS-agnostic dispatch logic on top (spec.md §4.4 readiness
// variant), mirroring the teacher's split between "poller" (OS wait
// primitive) and "watcher" (event interpretation).
type pollBackend interface {
	// add registers fd for the given mask for the first time.
	add(fd int, mask int) error
	// modify updates fd's registered interest mask.
	modify(fd int, mask int) error
	// remove drops fd's registration entirely.
	remove(fd int) error
	// wait blocks up to the given timeout (negative = unbounded),
	// appending ready events to dst and returning the used slice.
	// Interrupted waits must be retried internally (EINTR).
	wait(timeoutMs int64, dst []readyEvent) ([]readyEvent, error)
	close() error
}

// readinessReactor implements Reactor on top of a pollBackend. It keeps
// an fd->Pollable map so that, on wakeup, it can walk the pollable's
// Listener chain and deliver READ/WRITE per spec.md §4.4's description
// ("for each [ready handle], it walks the Listener list ... and delivers
// READ and/or WRITE based on the reported mask").
type readinessReactor struct {
	backend   pollBackend
	byFD      map[int]*Pollable
	eventsBuf []readyEvent
}

func newReadinessReactor(backend pollBackend) *readinessReactor {
	return &readinessReactor{
		backend:   backend,
		byFD:      make(map[int]*Pollable),
		eventsBuf: make([]readyEvent, 0, 64),
	}
}

func (r *readinessReactor) Arm(p *Pollable, l *Listener) {
	fd := int(p.Handle)
	mask := makePollMask(p.mask)
	first := p.countListeners() == 1
	var err error
	if first {
		r.byFD[fd] = p
		err = r.backend.add(fd, mask)
	} else {
		err = r.backend.modify(fd, mask)
	}
	if err != nil {
		delete(r.byFD, fd)
		panicReactor(fmt.Errorf("arm fd %d: %w", fd, err))
	}
}

// Disarm runs before l is unlinked from p's listener chain (Loop.Unlisten
// calls Disarm, then Pollable.Unlisten), so it computes the post-removal
// mask itself rather than trusting p.mask/p.head, which still include l.
func (r *readinessReactor) Disarm(p *Pollable, l *Listener) {
	fd := int(p.Handle)
	if p.countListeners() <= 1 {
		delete(r.byFD, fd)
		_ = r.backend.remove(fd)
		return
	}
	mask := makePollMask(p.mask &^ l.Mask)
	_ = r.backend.modify(fd, mask)
}

func makePollMask(mask int) int {
	m := 0
	if mask&MaskRead != 0 {
		m |= MaskRead
	}
	if mask&MaskWrite != 0 {
		m |= MaskWrite
	}
	return m
}

func (r *readinessReactor) Wait(deadline time.Time) error {
	var timeoutMs int64 = -1
	if !deadline.IsZero() {
		now := time.Now()
		if deadline.After(now) {
			timeoutMs = deadline.Sub(now).Milliseconds()
		} else {
			timeoutMs = 0
		}
	}

	events, err := r.backend.wait(timeoutMs, r.eventsBuf[:0])
	if err != nil {
		return err
	}
	r.eventsBuf = events

	for _, e := range events {
		p, ok := r.byFD[e.fd]
		if !ok {
			continue
		}
		readable, writable := e.readable, e.writable
		if e.hup {
			readable, writable = true, true
		}

		l := p.head
		for l != nil {
			next := l.Next // snapshot before dispatch: DONE unlistens the current entry
			done := false
			if writable && l.Mask&MaskWrite != 0 {
				if l.Machine(l, EventWrite) == StatusDone {
					done = true
				}
			}
			if !done && readable && l.Mask&MaskRead != 0 {
				if l.Machine(l, EventRead) == StatusDone {
					done = true
				}
			}
			if done {
				p.Unlisten(l)
			}
			l = next
		}
	}
	return nil
}

func (r *readinessReactor) Close() error {
	return r.backend.close()
}

// countListeners reports how many listeners currently exist on this
// pollable, used by Arm to decide add vs modify.
func (p *Pollable) countListeners() int {
	n := 0
	for l := p.head; l != nil; l = l.Next {
		n++
	}
	return n
}
