package ev

// Event is the event kind delivered to a Listener's state machine
// (spec.md §4.3).
type Event int

const (
	EventInit Event = iota
	EventRead
	EventWrite
	EventComplete
	EventMark
	EventClose
	EventDeinit
)

// Status is the return value of a Listener's state machine.
type Status int

const (
	StatusNotDone Status = iota
	StatusDone
)

// Mask bits, ORed together to describe which events a Listener (and, in
// aggregate, a Pollable) cares about.
const (
	MaskRead    = 1 << iota // interested in readability
	MaskWrite                // interested in writability
	MaskSpawner              // listener not tied to any fiber (spec.md §4.3)
)

// Pollable flag bits.
const (
	FlagClosed     = 1 << iota // pollable torn down
	FlagRegistered             // registered with the completion port (IOCP family only)
)

// Machine is a Listener's transition function, driven by the seven event
// kinds in the table in spec.md §4.3. It is handed the Listener so it can
// read/write its private Tag/Event/Bytes fields and any trailing
// machine-private state the caller attached via the Listener's Attach
// field.
type Machine func(l *Listener, ev Event) Status

// Listener is a resumable state machine driven by I/O events on a
// Pollable. Exactly one Listener per Pollable may correspond to each
// event kind in {MaskRead, MaskWrite}; violating this is a programming
// error (spec.md §4.3) and Listen panics.
type Listener struct {
	Machine  Machine
	Pollable *Pollable // non-owning back-pointer, valid until pollable Deinit
	Fiber    Fiber     // nil for MaskSpawner listeners
	Mask     int
	Next     *Listener // singly-linked, matches JanetListenerState::_next

	// Index is a slot for reactor-private bookkeeping. None of the
	// reactors in this package sets or reads it: the readiness reactor
	// finds pollables through an fd-keyed map, not a flat array.
	Index int
	// Tag is the value the completion reactor matches against a
	// completed overlapped pointer to find this Listener; the readiness
	// reactors do not use it.
	Tag uintptr
	// Event/Bytes carry the most recent event's detail (the raw pollfd,
	// the overlapped result, number of bytes transferred) for the
	// machine to inspect during READ/WRITE/COMPLETE.
	Event interface{}
	Bytes int

	// Attach holds machine-private state (the "trailing bytes" from the
	// C design, reimplemented per spec.md §9 as a sum-type-friendly
	// opaque field instead of a function-pointer + raw byte blob).
	Attach interface{}
}

// Pollable is an OS handle paired with a singly-linked list of Listener
// state machines (spec.md §4.3 Data Model).
type Pollable struct {
	Handle uintptr
	Flags  int
	head   *Listener
	mask   int
	loop   *Loop

	// ioKey is the completion-port registration key on the IOCP reactor
	// family; unused on readiness-style (epoll/kqueue) platforms.
	ioKey uintptr
}

// NewPollable wraps an OS handle for event subscription.
func NewPollable(loop *Loop, handle uintptr) *Pollable {
	return &Pollable{Handle: handle, loop: loop}
}

// Mask returns the aggregate mask across all live listeners
// (invariant 3: pollable.mask == OR(listener.mask)).
func (p *Pollable) Mask() int { return p.mask }

// Listen allocates a Listener, wires it into the pollable's head, adds
// mask to the aggregate mask, associates fiber (unless mask includes
// MaskSpawner), sets fiber.SetWaiting, bumps the active-listener count,
// and invokes machine(EventInit). Panics with PanicDuplicateListen if an
// event bit in mask is already present in the pollable's mask, or with
// PanicAlreadyWaiting if fiber already has a live Listener.
func (p *Pollable) Listen(machine Machine, mask int, fiber Fiber, user interface{}) *Listener {
	checkMask := mask &^ MaskSpawner
	if p.mask&checkMask != 0 {
		panicKind(PanicDuplicateListen)
	}
	if mask&MaskSpawner == 0 {
		if fiber.Waiting() != nil {
			panicKind(PanicAlreadyWaiting)
		}
	}

	l := &Listener{
		Machine:  machine,
		Pollable: p,
		Mask:     mask,
		Event:    user,
	}
	if mask&MaskSpawner == 0 {
		l.Fiber = fiber
		fiber.SetWaiting(l)
	}
	p.mask |= l.Mask
	l.Next = p.head
	p.head = l
	if p.loop != nil {
		p.loop.activeListeners++
	}
	l.Machine(l, EventInit)
	return l
}

// Unlisten calls machine(EventDeinit), removes the Listener from the
// pollable's list, decrements the aggregate mask, and clears
// fiber.Waiting if it still points at this Listener.
func (p *Pollable) Unlisten(l *Listener) {
	l.Machine(l, EventDeinit)
	iter := &p.head
	for *iter != nil && *iter != l {
		iter = &(*iter).Next
	}
	if *iter == nil {
		panic("ev: failed to remove listener: not found on pollable")
	}
	*iter = l.Next
	if p.loop != nil {
		p.loop.activeListeners--
	}
	p.mask &^= l.Mask
	if l.Fiber != nil && l.Fiber.Waiting() == l {
		l.Fiber.SetWaiting(nil)
	}
}

// Mark walks the listener list, invoking visit on each live fiber and
// machine(EventMark) on each listener, for an embedding GC's tracing
// pass (spec.md §1, §5).
func (p *Pollable) Mark(visit func(Fiber)) {
	for l := p.head; l != nil; l = l.Next {
		if l.Fiber != nil {
			visit(l.Fiber)
		}
		l.Machine(l, EventMark)
	}
}

// Deinit tears down a pollable: sets FlagClosed, then for each Listener
// invokes machine(EventClose) followed by Unlisten.
func (p *Pollable) Deinit() {
	p.Flags |= FlagClosed
	l := p.head
	for l != nil {
		next := l.Next
		l.Machine(l, EventClose)
		p.Unlisten(l)
		l = next
	}
	p.head = nil
}
