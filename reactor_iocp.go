//go:build windows

package ev

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// iocpReactor implements Reactor for the completion-port family
// (spec.md §4.4), the direct analogue of the original's
// CreateIoCompletionPort/GetQueuedCompletionStatus branch in
// janet_loop1_impl under JANET_WINDOWS.
//
// completionKey can't safely be a raw cast of a Go pointer (the GC may
// move/collect it between registration and completion), so registered
// pollables are tracked in a side table keyed by a monotonic handle
// instead, and that handle is what's threaded through as the completion
// key.
type iocpReactor struct {
	port windows.Handle

	mu      sync.Mutex
	nextKey uintptr
	byKey   map[uintptr]*Pollable
}

func newPlatformReactor() (Reactor, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("create io completion port: %w", err)
	}
	return &iocpReactor{port: port, byKey: make(map[uintptr]*Pollable)}, nil
}

// Arm registers the pollable's handle with the shared completion port on
// first listen, setting FlagRegistered so later listens on the same
// pollable don't re-register (spec.md §4.4: "on first listen per
// pollable, register the handle with the shared completion port").
func (r *iocpReactor) Arm(p *Pollable, l *Listener) {
	if p.Flags&FlagRegistered != 0 {
		return
	}
	r.mu.Lock()
	r.nextKey++
	key := r.nextKey
	r.byKey[key] = p
	r.mu.Unlock()

	_, err := windows.CreateIoCompletionPort(windows.Handle(p.Handle), r.port, key, 0)
	if err != nil {
		r.mu.Lock()
		delete(r.byKey, key)
		r.mu.Unlock()
		panicReactor(fmt.Errorf("register handle with completion port: %w", err))
	}
	p.Flags |= FlagRegistered
	p.ioKey = key
}

// Disarm is a no-op: Windows has no API to de-associate a handle from a
// completion port short of closing the handle, matching the original
// (janet_unlisten on the IOCP branch just calls janet_unlisten_impl).
func (r *iocpReactor) Disarm(p *Pollable, l *Listener) {}

func (r *iocpReactor) Wait(deadline time.Time) error {
	var waitMs uint32 = windows.INFINITE
	if !deadline.IsZero() {
		now := time.Now()
		if deadline.After(now) {
			waitMs = uint32(deadline.Sub(now).Milliseconds())
		} else {
			waitMs = 0
		}
	}

	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped
	err := windows.GetQueuedCompletionStatus(r.port, &bytes, &key, &overlapped, waitMs)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return nil
		}
		return fmt.Errorf("get queued completion status: %w", err)
	}
	if overlapped == nil {
		return nil
	}

	r.mu.Lock()
	pollable, ok := r.byKey[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	tag := uintptr(unsafe.Pointer(overlapped))
	for l := pollable.head; l != nil; l = l.Next {
		if l.Tag == tag {
			l.Event = overlapped
			l.Bytes = int(bytes)
			if l.Machine(l, EventComplete) == StatusDone {
				pollable.Unlisten(l)
			}
			break
		}
	}
	return nil
}

func (r *iocpReactor) Close() error {
	return windows.CloseHandle(r.port)
}
