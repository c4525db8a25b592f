//go:build linux

package ev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollBackend implements pollBackend on Linux using golang.org/x/sys/unix,
// the same typed syscall surface srgg-blecli depends on, in place of the
// teacher's raw syscall.* calls and in place of the original's direct
// epoll_ctl/epoll_wait C calls (original_source's JANET_EV_POLL branch
// actually uses posix poll(2); this module uses epoll directly, the
// idiomatic Linux readiness primitive netpoll's poll_default_linux.go
// also reaches for).
type epollBackend struct {
	epfd int
}

func newEpollBackend() (*epollBackend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollBackend{epfd: fd}, nil
}

func epollEvents(mask int) uint32 {
	var events uint32
	if mask&MaskRead != 0 {
		events |= unix.EPOLLIN
	}
	if mask&MaskWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func (b *epollBackend) add(fd int, mask int) error {
	ev := unix.EpollEvent{Events: epollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) modify(fd int, mask int) error {
	ev := unix.EpollEvent{Events: epollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) remove(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *epollBackend) wait(timeoutMs int64, dst []readyEvent) ([]readyEvent, error) {
	msec := -1
	if timeoutMs >= 0 {
		msec = int(timeoutMs)
	}
	var raw [128]unix.EpollEvent
	var n int
	var err error
	for {
		n, err = unix.EpollWait(b.epfd, raw[:], msec)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return dst, fmt.Errorf("epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		e := raw[i]
		hup := e.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0
		dst = append(dst, readyEvent{
			fd:       int(e.Fd),
			readable: e.Events&unix.EPOLLIN != 0,
			writable: e.Events&unix.EPOLLOUT != 0,
			hup:      hup,
		})
	}
	return dst, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}

// newPlatformReactor constructs the readiness reactor for this platform.
func newPlatformReactor() (Reactor, error) {
	backend, err := newEpollBackend()
	if err != nil {
		return nil, err
	}
	return newReadinessReactor(backend), nil
}
