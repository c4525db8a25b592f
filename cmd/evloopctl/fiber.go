package main

import evloop "github.com/xtaci/evloop"

// scriptedFiber is a minimal ev.Fiber backed by a goroutine, standing in
// for the real fiber VM the ev package treats as an external
// collaborator. script receives a yield function it calls each time it
// wants to suspend back to the loop; whatever script returns becomes the
// fiber's terminal Continue result.
type scriptedFiber struct {
	schedID   uint32
	scheduled bool
	waiting   *evloop.Listener

	resumeCh chan resumeIn
	doneCh   chan resumeOut
}

type resumeIn struct {
	value interface{}
	sig   evloop.Signal
}

type resumeOut struct {
	value interface{}
	sig   evloop.Signal
}

func newScriptedFiber(script func(yield func() (interface{}, evloop.Signal)) (interface{}, evloop.Signal)) *scriptedFiber {
	f := &scriptedFiber{
		resumeCh: make(chan resumeIn),
		doneCh:   make(chan resumeOut),
	}
	yield := func() (interface{}, evloop.Signal) {
		f.doneCh <- resumeOut{sig: evloop.SignalEvent}
		in := <-f.resumeCh
		return in.value, in.sig
	}
	go func() {
		<-f.resumeCh
		v, sig := script(yield)
		f.doneCh <- resumeOut{value: v, sig: sig}
	}()
	return f
}

func (f *scriptedFiber) Continue(value interface{}, sig evloop.Signal) (interface{}, evloop.Signal) {
	f.schedID++
	f.resumeCh <- resumeIn{value: value, sig: sig}
	out := <-f.doneCh
	return out.value, out.sig
}

func (f *scriptedFiber) SchedID() uint32               { return f.schedID }
func (f *scriptedFiber) Scheduled() bool               { return f.scheduled }
func (f *scriptedFiber) SetScheduled(v bool)           { f.scheduled = v }
func (f *scriptedFiber) Waiting() *evloop.Listener     { return f.waiting }
func (f *scriptedFiber) SetWaiting(l *evloop.Listener) { f.waiting = l }
