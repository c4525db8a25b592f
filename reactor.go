package ev

import "time"

// Reactor is the OS-specific multiplexer from spec.md §4.4: completion-
// based on one platform family (Windows IOCP), readiness-based on the
// other (epoll on Linux, kqueue on Darwin/BSD). The Loop owns exactly one
// Reactor instance and drives it once per iteration with the next
// deadline.
type Reactor interface {
	// Arm registers interest for l's pollable, or updates an existing
	// registration to the pollable's current aggregate mask. Panics with
	// a *PanicError{Kind: PanicReactorRegistration} on OS failure, per
	// spec.md §7 ("on listen the partially-constructed Listener is torn
	// down and a host-level panic carries the OS error string").
	Arm(p *Pollable, l *Listener)

	// Disarm un-registers or narrows the registration for p as l is
	// being removed; Loop.Unlisten calls it before l is unlinked from
	// p's listener chain.
	Disarm(p *Pollable, l *Listener)

	// Wait blocks until an I/O event is ready or deadline elapses
	// (deadline.IsZero() means wait unbounded), dispatching READ/WRITE/
	// COMPLETE events to the affected Listeners' Machine functions and
	// unlistening any that return StatusDone. Interrupted waits are
	// retried transparently.
	Wait(deadline time.Time) error

	// Close releases reactor-owned OS resources (epoll/kqueue fd,
	// completion port handle, ...).
	Close() error
}
