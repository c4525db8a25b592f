//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package ev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// kqueueBackend implements pollBackend on Darwin/BSD using
// golang.org/x/sys/unix's Kqueue/Kevent wrappers.
//
// kqueue has no single "modify mask" call for a registered fd the way
// epoll_ctl(MOD) does; each (ident, filter) pair is registered or removed
// independently, so `add`/`modify` both register whichever of
// EVFILT_READ/EVFILT_WRITE the mask now wants and `remove` deletes
// whichever filters were previously registered but aren't anymore.
type kqueueBackend struct {
	kq       int
	readReg  map[int]bool
	writeReg map[int]bool
}

func newKqueueBackend() (*kqueueBackend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	return &kqueueBackend{
		kq:       kq,
		readReg:  make(map[int]bool),
		writeReg: make(map[int]bool),
	}, nil
}

func (b *kqueueBackend) applyMask(fd int, mask int) error {
	var changes []unix.Kevent_t
	wantRead := mask&MaskRead != 0
	wantWrite := mask&MaskWrite != 0

	if wantRead && !b.readReg[fd] {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR))
	} else if !wantRead && b.readReg[fd] {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_DELETE))
	}
	if wantWrite && !b.writeReg[fd] {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_CLEAR))
	} else if !wantWrite && b.writeReg[fd] {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE))
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(b.kq, changes, nil, nil); err != nil {
		return err
	}
	b.readReg[fd] = wantRead
	b.writeReg[fd] = wantWrite
	return nil
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
}

func (b *kqueueBackend) add(fd int, mask int) error    { return b.applyMask(fd, mask) }
func (b *kqueueBackend) modify(fd int, mask int) error { return b.applyMask(fd, mask) }

func (b *kqueueBackend) remove(fd int) error {
	err := b.applyMask(fd, 0)
	delete(b.readReg, fd)
	delete(b.writeReg, fd)
	return err
}

func (b *kqueueBackend) wait(timeoutMs int64, dst []readyEvent) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(timeoutMs * int64(1e6))
		ts = &t
	}
	var raw [128]unix.Kevent_t
	var n int
	var err error
	for {
		n, err = unix.Kevent(b.kq, nil, raw[:], ts)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return dst, fmt.Errorf("kevent wait: %w", err)
	}

	// Collect into a scratch slice bounded by n (the number of raw kevents
	// reported, so coalescing by fd only ever shrinks it) before
	// appending to dst, so the re pointers below never dangle across a
	// reallocating append.
	events := make([]readyEvent, 0, n)
	byFD := make(map[int]*readyEvent, n)
	for i := 0; i < n; i++ {
		e := raw[i]
		fd := int(e.Ident)
		re, ok := byFD[fd]
		if !ok {
			events = append(events, readyEvent{fd: fd})
			re = &events[len(events)-1]
			byFD[fd] = re
		}
		hup := e.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0
		switch e.Filter {
		case unix.EVFILT_READ:
			re.readable = true
		case unix.EVFILT_WRITE:
			re.writable = true
		}
		if hup {
			re.hup = true
		}
	}
	dst = append(dst, events...)
	return dst, nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.kq)
}

// newPlatformReactor constructs the readiness reactor for this platform.
func newPlatformReactor() (Reactor, error) {
	backend, err := newKqueueBackend()
	if err != nil {
		return nil, err
	}
	return newReadinessReactor(backend), nil
}
