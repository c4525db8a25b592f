package ev

import "container/heap"

// timeout is a single pending timer entry (spec.md §3 Timeout).
// sched_id snapshots the fiber's epoch at insertion time; on firing, the
// loop discards the entry if the fiber has since resumed through some
// other path.
type timeout struct {
	when    int64 // absolute millisecond timestamp
	fiber   Fiber
	schedID uint32
	isError bool
	index   int // position in the heap's backing slice, maintained by container/heap
}

// TimerHeap is an array-backed binary min-heap on `when`, built on
// container/heap exactly like the teacher's timedHeap in watcher.go,
// which lets a live timer be pulled out by index
// (heap.Remove(&w.timeouts, pcb.idx)) when its fiber resumes through a
// different path before the timer fires.
type TimerHeap struct {
	entries []*timeout
}

// NewTimerHeap returns an empty heap with space reserved for capacity
// entries.
func NewTimerHeap(capacity int) *TimerHeap {
	return &TimerHeap{entries: make([]*timeout, 0, capacity)}
}

// container/heap.Interface

func (h *TimerHeap) Len() int { return len(h.entries) }

func (h *TimerHeap) Less(i, j int) bool {
	return h.entries[i].when < h.entries[j].when
}

func (h *TimerHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *TimerHeap) Push(x interface{}) {
	e := x.(*timeout)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *TimerHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.entries = old[:n-1]
	e.index = -1
	return e
}

// Add inserts a new timeout, maintaining the heap property.
func (h *TimerHeap) Add(e *timeout) {
	heap.Push(h, e)
}

// Peek returns the minimum entry without removing it, and false if the
// heap is empty.
func (h *TimerHeap) Peek() (*timeout, bool) {
	if len(h.entries) == 0 {
		return nil, false
	}
	return h.entries[0], true
}

// PopMin removes and returns the minimum entry.
func (h *TimerHeap) PopMin() (*timeout, bool) {
	if len(h.entries) == 0 {
		return nil, false
	}
	return heap.Pop(h).(*timeout), true
}

// Remove removes e from the heap by its tracked index, and does nothing if
// e is no longer in the heap (e.g. when a fiber resumes
// through some other path and its timer entry is now dead weight).
func (h *TimerHeap) Remove(e *timeout) {
	if e.index < 0 || e.index >= len(h.entries) || h.entries[e.index] != e {
		return
	}
	heap.Remove(h, e.index)
}

// Each visits every entry, in no particular order, for GC mark hooks.
func (h *TimerHeap) Each(visit func(Fiber)) {
	for _, e := range h.entries {
		visit(e.fiber)
	}
}
