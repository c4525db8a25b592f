package ev

// goFiber is a goroutine-backed stand-in for the external fiber VM
// (spec.md §1 treats the fiber VM as an out-of-scope collaborator; tests
// need *some* concrete Fiber, so this emulates one with a goroutine
// parked on a pair of unbuffered channels, synchronizing exactly the way
// a real stackful coroutine's continue()/yield() pair would). Modeled on
// the teacher's echoServer test helper in aio_test.go: build real state,
// drive it through the public API, assert on observed results.
type goFiber struct {
	name      string
	schedID   uint32
	scheduled bool
	waiting   *Listener

	resumeCh chan resumeIn
	doneCh   chan resumeOut
}

type resumeIn struct {
	value interface{}
	sig   Signal
}

type resumeOut struct {
	value interface{}
	sig   Signal
}

// body receives a yield function it calls every time it wants to
// suspend back to the loop; body's own return value/signal become the
// fiber's terminal Continue result.
func newGoFiber(name string, body func(y func() (interface{}, Signal)) (interface{}, Signal)) *goFiber {
	f := &goFiber{
		name:     name,
		resumeCh: make(chan resumeIn),
		doneCh:   make(chan resumeOut),
	}
	yield := func() (interface{}, Signal) {
		f.doneCh <- resumeOut{value: nil, sig: SignalEvent}
		in := <-f.resumeCh
		return in.value, in.sig
	}
	go func() {
		<-f.resumeCh // wait for the initial schedule before running the body at all
		v, sig := body(yield)
		f.doneCh <- resumeOut{value: v, sig: sig}
	}()
	return f
}

func (f *goFiber) Continue(value interface{}, sig Signal) (interface{}, Signal) {
	f.schedID++
	f.resumeCh <- resumeIn{value: value, sig: sig}
	out := <-f.doneCh
	return out.value, out.sig
}

func (f *goFiber) SchedID() uint32        { return f.schedID }
func (f *goFiber) Scheduled() bool        { return f.scheduled }
func (f *goFiber) SetScheduled(v bool)    { f.scheduled = v }
func (f *goFiber) Waiting() *Listener     { return f.waiting }
func (f *goFiber) SetWaiting(l *Listener) { f.waiting = l }
