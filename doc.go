// Package ev implements the core of an asynchronous event loop and
// structured-concurrency runtime meant to be embedded inside a dynamic
// language VM: a cooperative fiber scheduler, a millisecond-precision
// timer service, and a buffered/unbuffered channel primitive with a
// non-deterministic select, all multiplexed over a single-threaded event
// loop that also watches OS I/O readiness through a platform reactor
// (epoll on Linux, kqueue on Darwin/BSD, IOCP on Windows).
//
// The package does not implement a fiber VM, a garbage collector, or any
// concrete socket/pipe state machine -- those are external collaborators.
// A Fiber is a narrow interface the host VM implements; a Pollable/
// Listener pair is the contract an embedder's own I/O state machines are
// built on top of.
//
// Every Loop value is independent and must be used from a single
// goroutine at a time: the scheduler, timer heap and channels take no
// locks, by design, the
// same way the original VM's event loop assumed one OS thread per
// interpreter instance.
package ev
