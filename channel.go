package ev

import "math/rand"

// maxChannelCapacity is the hard cap on a channel's buffered item count
// (spec.md §4.5).
const maxChannelCapacity = 0xFFFFFF

// pendingMode distinguishes a plain blocked give/take from one that's
// part of a select's second pass.
type pendingMode int

const (
	pendingItem pendingMode = iota
	pendingChoiceRead
	pendingChoiceWrite
)

// pending is a fiber parked on a channel's read_pending or write_pending
// queue (spec.md §3 Pending).
type pending struct {
	fiber   Fiber
	schedID uint32
	mode    pendingMode
}

// GiveResult/TakeResult are the [:give chan] / [:take chan value] tuples
// a select clause resolves to (spec.md §4.5, §6).
type GiveResult struct {
	Channel *Channel
}

type TakeResult struct {
	Channel *Channel
	Value   interface{}
}

// Channel is three co-located RingQueues (items, waiting readers, waiting
// writers) plus a capacity bound. Limit == 0 means unbuffered rendezvous;
// the item queue is allowed to momentarily hold exactly one more item
// than limit, which is what makes the unbuffered case work (spec.md
// §4.5): the value sits in items while its writer sleeps, and the next
// take drains it and wakes the writer.
type Channel struct {
	items        RingQueue[interface{}]
	readPending  RingQueue[pending]
	writePending RingQueue[pending]
	limit        int32
}

// NewChannel constructs a channel with the given capacity (0 = unbuffered
// rendezvous). It panics if limit is negative or above maxChannelCapacity.
func NewChannel(limit int32) *Channel {
	if limit < 0 || limit > maxChannelCapacity {
		panic("ev: channel capacity out of range")
	}
	return &Channel{limit: limit}
}

// Capacity returns the channel's configured limit.
func (c *Channel) Capacity() int32 { return c.limit }

// Count returns the number of items currently buffered.
func (c *Channel) Count() int32 { return c.items.Count() }

// Full reports whether count >= limit.
func (c *Channel) Full() bool { return c.items.Count() >= c.limit }

// Give pushes v onto the channel. It returns true if the caller's fiber
// should block (await), false if the value was handed directly to a
// waiting reader or parked without exceeding the limit.
//
// give(ch, v): pop a pending reader, skipping stale entries whose
// sched_id no longer matches the fiber's current epoch, until one is
// found or the queue is exhausted. A live reader is scheduled directly
// with v (or the CHOICE_READ tuple); otherwise v is appended to items,
// and if that pushes count over limit, the caller parks itself as a
// pending writer and blocks.
func (c *Channel) Give(loop *Loop, fiber Fiber, v interface{}, choice bool) (blocked bool) {
	for {
		reader, err := c.readPending.Pop()
		if err != nil {
			break // no pending reader
		}
		if reader.schedID != reader.fiber.SchedID() {
			continue // stale: fiber moved on via some other wakeup
		}
		if reader.mode == pendingChoiceRead {
			loop.Schedule(reader.fiber, TakeResult{Channel: c, Value: v})
		} else {
			loop.Schedule(reader.fiber, v)
		}
		return false
	}

	if err := c.items.Push(v); err != nil {
		panic("ev: channel overflow")
	}
	if c.items.Count() > c.limit {
		mode := pendingItem
		if choice {
			mode = pendingChoiceWrite
		}
		// push must succeed: write_pending's live size tracks blocked
		// writers, which is bounded by concurrently-live fibers, well
		// under the ring's hard cap in any realistic program.
		_ = c.writePending.Push(pending{fiber: fiber, schedID: fiber.SchedID(), mode: mode})
		return true
	}
	return false
}

// Take pops a value from the channel. ok is false if the caller's fiber
// should block (await); the eventual resume value is the item.
//
// take(ch): try to pop from items. If empty, the caller parks itself as
// a pending reader and blocks. On success, pop a pending writer --
// unfiltered by sched_id, since any writer on this channel is guaranteed
// to have placed the item just consumed (see DESIGN.md's Open Questions
// section for why this asymmetry with give's reader-filtering is safe) --
// and schedule it with either the channel itself (ITEM mode) or the
// CHOICE_WRITE tuple.
func (c *Channel) Take(loop *Loop, fiber Fiber, choice bool) (v interface{}, ok bool) {
	item, err := c.items.Pop()
	if err != nil {
		mode := pendingItem
		if choice {
			mode = pendingChoiceRead
		}
		_ = c.readPending.Push(pending{fiber: fiber, schedID: fiber.SchedID(), mode: mode})
		return nil, false
	}

	if writer, err := c.writePending.Pop(); err == nil {
		if writer.mode == pendingChoiceWrite {
			loop.Schedule(writer.fiber, GiveResult{Channel: c})
		} else {
			loop.Schedule(writer.fiber, c)
		}
	}
	return item, true
}

// Mark visits every fiber reachable from this channel -- both pending
// readers/writers and any buffered item that happens to box a Fiber
// (spec.md's fan-out/supervisory channel usage makes this a realistic
// case, not a hypothetical one), matching janet_chanat_mark's walk over
// every queued Pending *and* every queued value.
func (c *Channel) Mark(visit func(Fiber)) {
	c.readPending.Each(func(p pending) { visit(p.fiber) })
	c.writePending.Each(func(p pending) { visit(p.fiber) })
	c.items.Each(func(v interface{}) {
		if f, ok := v.(Fiber); ok {
			visit(f)
		}
	})
}

// Clause is one argument to Select/RSelect: either a bare channel (read)
// or a (channel, value) pair (write), matching spec.md §4.5's clause
// shape and §6's "Select clause" glossary entry.
type Clause struct {
	Channel *Channel
	Value   interface{}
	IsWrite bool
}

// Read builds a read clause.
func Read(ch *Channel) Clause { return Clause{Channel: ch} }

// Write builds a write clause.
func Write(ch *Channel, v interface{}) Clause { return Clause{Channel: ch, Value: v, IsWrite: true} }

// Select runs the two-pass algorithm from spec.md §4.5: try each clause
// in caller order for one that can complete immediately; if none can,
// register every clause as a blocked CHOICE operation and return
// (nil, false) so the caller awaits. Exactly one registered Pending
// eventually fires; the rest go stale once the fiber's sched_id bumps on
// resume.
func (loop *Loop) Select(fiber Fiber, clauses []Clause) (result interface{}, ok bool) {
	for _, cl := range clauses {
		if cl.IsWrite {
			if cl.Channel.Count() < cl.Channel.Capacity() {
				cl.Channel.Give(loop, fiber, cl.Value, true)
				return GiveResult{Channel: cl.Channel}, true
			}
		} else {
			if cl.Channel.Count() > 0 {
				v, _ := cl.Channel.Take(loop, fiber, true)
				return TakeResult{Channel: cl.Channel, Value: v}, true
			}
		}
	}

	for _, cl := range clauses {
		if cl.IsWrite {
			cl.Channel.Give(loop, fiber, cl.Value, true)
		} else {
			cl.Channel.Take(loop, fiber, true)
		}
	}
	return nil, false
}

// RSelect is Select with the clause order Fisher-Yates shuffled first,
// for fairness across equally-ready clauses (spec.md §4.5, §9 RNG
// determinism note). The loop's RNG is seeded to zero at construction
// unless overridden, matching janet_rng_seed(&janet_vm_ev_rng, 0).
func (loop *Loop) RSelect(fiber Fiber, clauses []Clause) (result interface{}, ok bool) {
	shuffled := make([]Clause, len(clauses))
	copy(shuffled, clauses)
	fisherYates(shuffled, loop.rng)
	return loop.Select(fiber, shuffled)
}

func fisherYates(clauses []Clause, rng *rand.Rand) {
	for i := len(clauses); i > 1; i-- {
		j := int(rng.Uint32() % uint32(i))
		clauses[j], clauses[i-1] = clauses[i-1], clauses[j]
	}
}
