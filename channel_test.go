package ev

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	loop, err := NewLoop(withReactorOpener(newFakeReactor))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

// TestChannelRendezvous covers scenario S1: an unbuffered channel
// synchronizes a writer and a reader with no intermediate buffering.
func TestChannelRendezvous(t *testing.T) {
	loop := newTestLoop(t)
	ch := loop.Chan(0)

	var writer, reader *goFiber
	var readerValue interface{}

	writer = newGoFiber("writer", func(y func() (interface{}, Signal)) (interface{}, Signal) {
		if loop.Give(writer, ch, "hello") {
			y()
		}
		return nil, SignalOK
	})
	reader = newGoFiber("reader", func(y func() (interface{}, Signal)) (interface{}, Signal) {
		v, ok := loop.Take(reader, ch)
		if !ok {
			v, _ = y()
		}
		readerValue = v
		return v, SignalOK
	})

	loop.Schedule(reader, nil)
	loop.Schedule(writer, nil)
	loop.Run()

	assert.Equal(t, "hello", readerValue)
	assert.EqualValues(t, 0, ch.Count())
}

// TestChannelBufferedGiveDoesNotBlock covers scenario S2: a give within
// capacity completes synchronously.
func TestChannelBufferedGiveDoesNotBlock(t *testing.T) {
	loop := newTestLoop(t)
	ch := loop.Chan(1)

	var writer *goFiber
	var blocked bool
	writer = newGoFiber("writer", func(y func() (interface{}, Signal)) (interface{}, Signal) {
		blocked = loop.Give(writer, ch, "x")
		return nil, SignalOK
	})

	loop.Schedule(writer, nil)
	loop.Run()

	assert.False(t, blocked)
	assert.EqualValues(t, 1, ch.Count())
	assert.True(t, ch.Full())
}

// TestChannelSelectPicksReadyClauseInOrder covers the first pass of
// scenario S4: Select must prefer the first clause that can complete
// immediately over registering every clause as blocked.
func TestChannelSelectPicksReadyClauseInOrder(t *testing.T) {
	loop := newTestLoop(t)
	chEmpty := loop.Chan(1)
	chReady := loop.Chan(1)

	var writer *goFiber
	writer = newGoFiber("writer", func(y func() (interface{}, Signal)) (interface{}, Signal) {
		loop.Give(writer, chReady, "ready-value")
		return nil, SignalOK
	})
	loop.Schedule(writer, nil)
	loop.Run()

	var selector *goFiber
	var result interface{}
	var completedImmediately bool
	selector = newGoFiber("selector", func(y func() (interface{}, Signal)) (interface{}, Signal) {
		var ok bool
		result, ok = loop.Select(selector, []Clause{Read(chEmpty), Read(chReady)})
		completedImmediately = ok
		if !ok {
			result, _ = y()
		}
		return nil, SignalOK
	})
	loop.Schedule(selector, nil)
	loop.Run()

	require.True(t, completedImmediately)
	tr, ok := result.(TakeResult)
	require.True(t, ok)
	assert.Same(t, chReady, tr.Channel)
	assert.Equal(t, "ready-value", tr.Value)
}

// TestFisherYatesIsADeterministicPermutation covers the shuffle RSelect
// relies on for clause fairness: same seed, same permutation; every
// element present exactly once.
func TestFisherYatesIsADeterministicPermutation(t *testing.T) {
	clauses := []Clause{Read(&Channel{}), Read(&Channel{}), Read(&Channel{}), Read(&Channel{})}
	original := append([]Clause(nil), clauses...)

	a := append([]Clause(nil), clauses...)
	fisherYates(a, rand.New(rand.NewSource(0)))
	b := append([]Clause(nil), clauses...)
	fisherYates(b, rand.New(rand.NewSource(0)))
	assert.Equal(t, a, b)

	seen := map[*Channel]bool{}
	for _, cl := range a {
		seen[cl.Channel] = true
	}
	assert.Len(t, seen, len(original))
}

// TestRSelectStatisticalFairness covers scenario S4's statistical half:
// rselect(c1, c2) over N trials, each with both channels ready, must pick
// each channel within +-5% of N/2 (spec.md §8 S4), exercising the
// Fisher-Yates shuffle through the full Loop.RSelect path rather than
// fisherYates in isolation.
func TestRSelectStatisticalFairness(t *testing.T) {
	loop := newTestLoop(t)
	fiber := &goFiber{}

	const n = 10000
	firstWins := 0
	for i := 0; i < n; i++ {
		c1 := loop.Chan(1)
		c2 := loop.Chan(1)
		loop.Give(fiber, c1, "a")
		loop.Give(fiber, c2, "b")

		result, ok := loop.RSelect(fiber, []Clause{Read(c1), Read(c2)})
		require.True(t, ok)
		tr, ok := result.(TakeResult)
		require.True(t, ok)
		if tr.Channel == c1 {
			firstWins++
		}
	}

	ratio := float64(firstWins) / float64(n)
	assert.InDelta(t, 0.5, ratio, 0.05)
}

// TestChannelMarkVisitsBoxedFiberItems covers SPEC_FULL.md's GC mark hook
// supplement: a buffered item that happens to box a Fiber (e.g. one
// fiber handed to another over a supervisory channel) must be visited,
// not just pending readers/writers.
func TestChannelMarkVisitsBoxedFiberItems(t *testing.T) {
	ch := NewChannel(4)
	boxed := &goFiber{name: "boxed"}
	require.NoError(t, ch.items.Push(interface{}(boxed)))
	require.NoError(t, ch.items.Push(interface{}("not a fiber")))

	var seen []Fiber
	ch.Mark(func(f Fiber) { seen = append(seen, f) })

	require.Len(t, seen, 1)
	assert.Same(t, boxed, seen[0])
}

// TestChannelCancellationDrainsStalePending covers scenario S5: a reader
// parked on take() that is cancelled through some other path must not
// receive a later give -- give() skips the stale Pending and the value
// lands in the item queue instead.
func TestChannelCancellationDrainsStalePending(t *testing.T) {
	loop := newTestLoop(t)
	ch := loop.Chan(0)

	var reader *goFiber
	var readerSignal Signal
	reader = newGoFiber("reader", func(y func() (interface{}, Signal)) (interface{}, Signal) {
		v, ok := ch.Take(loop, reader, false)
		if !ok {
			_, sig := y()
			readerSignal = sig
			return nil, sig
		}
		return v, SignalOK
	})

	loop.Schedule(reader, nil)
	loop.Run()
	require.EqualValues(t, 0, ch.Count())

	// Cancel the reader through a path other than the channel (e.g. an
	// addtimeout firing); this bumps its sched_id on resume.
	loop.Cancel(reader, ErrTimeout)
	loop.Run()

	var writer *goFiber
	writer = newGoFiber("writer", func(y func() (interface{}, Signal)) (interface{}, Signal) {
		if loop.Give(writer, ch, "too-late") {
			y()
		}
		return nil, SignalOK
	})
	loop.Schedule(writer, nil)
	loop.Run()

	assert.Equal(t, SignalError, readerSignal)
	assert.EqualValues(t, 1, ch.Count(), "give must not hand the value to the cancelled reader")
}
