package ev

// FiberFactory constructs a fresh fiber wrapping fn and args; supplied by
// the embedding VM, since fiber creation is explicitly out of scope for
// this module (spec.md §1). Call uses it to implement ev/call.
type FiberFactory func(fn interface{}, args []interface{}) Fiber

// Call creates a fresh fiber via factory, schedules it with a nil value,
// and returns it (spec.md §6 ev/call).
func (l *Loop) Call(factory FiberFactory, fn interface{}, args ...interface{}) Fiber {
	fiber := factory(fn, args)
	l.Schedule(fiber, nil)
	return fiber
}

// Go puts an existing fiber on the loop to resume with value (nil if not
// given), and returns it (spec.md §6 ev/go).
func (l *Loop) Go(fiber Fiber, value interface{}) Fiber {
	l.Schedule(fiber, value)
	return fiber
}

// Chan constructs a channel with the given capacity (spec.md §6 ev/chan).
func (l *Loop) Chan(capacity int32) *Channel {
	return NewChannel(capacity)
}

// Give writes v to ch on behalf of fiber. The bool return mirrors
// spec.md §6 ev/give's "await if blocked" contract: true means the
// caller must suspend the fiber and await; false means the write
// completed without blocking. Either way, ch is the value a completed
// ev/give resumes with.
func (l *Loop) Give(fiber Fiber, ch *Channel, v interface{}) (blocked bool) {
	return ch.Give(l, fiber, v, false)
}

// Take reads from ch on behalf of fiber. ok mirrors ev/take's "await if
// blocked" contract: false means the caller must suspend and await, with
// the eventual resume value being the item; true means value is already
// available.
func (l *Loop) Take(fiber Fiber, ch *Channel) (value interface{}, ok bool) {
	return ch.Take(l, fiber, false)
}
