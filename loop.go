package ev

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Loop is the explicit, threadable replacement for the original's
// thread-local singleton VM state (spec.md §9): a run queue, a timer
// heap, a reactor, and an RNG, all owned by exactly one instance. A Loop
// must never be shared across goroutines; each goroutine that wants its
// own cooperative scheduler constructs its own Loop, mirroring "multiple
// instances may coexist on distinct OS threads but never share fibers,
// channels, or pollables" (spec.md §5).
type Loop struct {
	runQueue RingQueue[Task]
	timers   *TimerHeap
	reactor  Reactor
	rng      *rand.Rand
	log      *logrus.Logger

	activeListeners int
}

// Option configures a Loop at construction time.
type Option func(*loopConfig)

type loopConfig struct {
	runQueueCap   int
	timerHeapCap  int
	logger        *logrus.Logger
	rngSeed       int64
	haveRNGSeed   bool
	reactorOpener func() (Reactor, error)
}

// WithRunQueueCapacity reserves initial capacity for the run queue.
func WithRunQueueCapacity(n int) Option {
	return func(c *loopConfig) { c.runQueueCap = n }
}

// WithTimerHeapCapacity reserves initial capacity for the timer heap.
func WithTimerHeapCapacity(n int) Option {
	return func(c *loopConfig) { c.timerHeapCap = n }
}

// WithLogger injects a *logrus.Logger for diagnostic/fatal reporting
// (SPEC_FULL.md AMBIENT STACK). A nil logger (the default) falls back to
// logrus.StandardLogger().
func WithLogger(logger *logrus.Logger) Option {
	return func(c *loopConfig) { c.logger = logger }
}

// WithRNGSeed overrides the default zero seed used for rselect's
// Fisher-Yates shuffle (spec.md §9's RNG determinism note says the seed
// is zero by default; tests that want a different fixed sequence can
// override it, still deterministically).
func WithRNGSeed(seed int64) Option {
	return func(c *loopConfig) { c.rngSeed = seed; c.haveRNGSeed = true }
}

// withReactorOpener is test-only: lets tests substitute a fake Reactor
// instead of the real OS one.
func withReactorOpener(open func() (Reactor, error)) Option {
	return func(c *loopConfig) { c.reactorOpener = open }
}

// NewLoop constructs a Loop, opening the platform reactor. Reactor
// initialization failure is loop-fatal per spec.md §7 and is returned as
// a plain error here rather than panicking, so an embedding application
// can decide how to report startup failure through its own exit hook.
func NewLoop(opts ...Option) (*Loop, error) {
	cfg := loopConfig{runQueueCap: 16, timerHeapCap: 16}
	for _, opt := range opts {
		opt(&cfg)
	}

	open := cfg.reactorOpener
	if open == nil {
		open = newPlatformReactor
	}
	reactor, err := open()
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	seed := int64(0)
	if cfg.haveRNGSeed {
		seed = cfg.rngSeed
	}

	l := &Loop{
		timers:  NewTimerHeap(cfg.timerHeapCap),
		reactor: reactor,
		rng:     rand.New(rand.NewSource(seed)),
		log:     logger,
	}
	if n := cfg.runQueueCap; n > 0 && n < maxQueueCapacity {
		l.runQueue.grow(int32(n))
	}
	return l, nil
}

// Close releases the Loop's reactor resources.
func (l *Loop) Close() error {
	return l.reactor.Close()
}

// Schedule registers fiber to resume with value and an OK signal. A
// no-op if fiber is already scheduled (invariant 5: the run queue never
// contains the same fiber twice).
func (l *Loop) Schedule(fiber Fiber, value interface{}) {
	l.scheduleSignal(fiber, value, SignalOK)
}

// Cancel schedules fiber to resume with value and an ERROR signal, and
// returns fiber (spec.md §5 Cancellation, §6 ev/cancel, §7).
func (l *Loop) Cancel(fiber Fiber, value interface{}) Fiber {
	l.scheduleSignal(fiber, value, SignalError)
	return fiber
}

func (l *Loop) scheduleSignal(fiber Fiber, value interface{}, sig Signal) {
	if fiber.Scheduled() {
		return
	}
	fiber.SetScheduled(true)
	if err := l.runQueue.Push(Task{Fiber: fiber, Value: value, Signal: sig}); err != nil {
		l.log.WithError(err).Fatal("ev: run queue capacity exceeded")
	}
}

// Sleep installs a non-error timer for sec seconds against fiber and
// returns once it's queued; the caller must itself await for the
// timeout to take effect (spec.md §6 ev/sleep).
func (l *Loop) Sleep(fiber Fiber, sec float64) {
	l.addTimeout(fiber, sec, false)
}

// AddTimeout schedules a timer-error for fiber at now+sec, cancellable by
// any earlier resume (spec.md §5 Timeout semantics, §9 supplemented
// feature on addtimeout being fiber-local/advisory).
func (l *Loop) AddTimeout(fiber Fiber, sec float64) {
	l.addTimeout(fiber, sec, true)
}

func (l *Loop) addTimeout(fiber Fiber, sec float64, isError bool) {
	when := time.Now().Add(time.Duration(sec * float64(time.Second))).UnixMilli()
	l.timers.Add(&timeout{
		when:    when,
		fiber:   fiber,
		schedID: fiber.SchedID(),
		isError: isError,
	})
}

// Pollable constructs a Pollable bound to this loop (so Listen/Unlisten
// can maintain the loop's active-listener count).
func (l *Loop) Pollable(handle uintptr) *Pollable {
	return &Pollable{Handle: handle, loop: l}
}

// Listen arms both the Pollable's listener chain and the reactor for IO
// events, as a single operation (spec.md §4.3 + §4.4 wired together). If
// reactor.Arm panics (OS registration failure, spec.md §7), the
// partially-constructed Listener is torn down via p.Unlisten before the
// panic propagates, so a recover()ing caller never observes a Listener
// left half-wired into p.head/p.mask/fiber.Waiting.
func (l *Loop) Listen(p *Pollable, machine Machine, mask int, fiber Fiber, user interface{}) *Listener {
	lst := p.Listen(machine, mask, fiber, user)
	defer func() {
		if r := recover(); r != nil {
			p.Unlisten(lst)
			panic(r)
		}
	}()
	l.reactor.Arm(p, lst)
	return lst
}

// Unlisten disarms the reactor then tears down the Listener.
func (l *Loop) Unlisten(lst *Listener) {
	p := lst.Pollable
	l.reactor.Disarm(p, lst)
	p.Unlisten(lst)
}

// Mark walks the run queue and timer heap, invoking visit once per live
// fiber reference, for an embedding tracing GC (spec.md §1, §5, and
// SPEC_FULL.md's GC mark hook supplement). A task's resume value is also
// checked: janet_ev_mark marks every task's value as well as its fiber,
// since a resume value can itself box a Fiber (e.g. a supervisor handed
// a child fiber through ev/go). Channels and Pollables are marked
// independently via their own Mark methods since the Loop doesn't track
// which channels/pollables are live -- that bookkeeping belongs to the
// embedding VM's own object graph.
func (l *Loop) Mark(visit func(Fiber)) {
	l.runQueue.Each(func(t Task) {
		visit(t.Fiber)
		if f, ok := t.Value.(Fiber); ok {
			visit(f)
		}
	})
	l.timers.Each(visit)
}

// runOne continues fiber with value/sigin, clearing SCHEDULED first and
// unlistening any Listener the fiber is still waiting on (spec.md §3:
// "Resuming a fiber clears SCHEDULED, increments sched_id, and, if
// waiting is set, unlisten()s that Listener" -- the epoch bump is the
// Fiber implementation's own responsibility inside Continue, since it
// models the external fiber VM per §9's narrow continue() API; the
// SCHEDULED clear and the synchronous unlisten are the Loop's side of
// that contract). Any non-OK/non-EVENT result is routed to the
// diagnostic logger instead of stopping the loop (spec.md §4.6 step 2,
// §7 propagation policy).
func (l *Loop) runOne(fiber Fiber, value interface{}, sigin Signal) {
	fiber.SetScheduled(false)
	if w := fiber.Waiting(); w != nil {
		l.Unlisten(w)
	}
	res, sig := fiber.Continue(value, sigin)
	if sig != SignalOK && sig != SignalEvent {
		l.log.WithFields(logrus.Fields{
			"signal": sig,
			"result": res,
		}).Error("ev: uncaught fiber error")
	}
}

// Loop1 runs one iteration of spec.md §4.6:
//  1. Drain due, live timers (cancel is_error ones with "timeout",
//     schedule the rest with nil).
//  2. Drain the run queue, continuing each fiber.
//  3. If listeners or timers remain, drop now-stale timer heads and poll
//     the reactor for the next deadline (or block unbounded).
func (l *Loop) Loop1() {
	now := time.Now().UnixMilli()
	for {
		to, ok := l.timers.Peek()
		if !ok || to.when > now {
			break
		}
		l.timers.PopMin()
		if to.fiber.SchedID() != to.schedID {
			continue // stale: fiber already resumed through another path
		}
		if to.isError {
			l.Cancel(to.fiber, ErrTimeout)
		} else {
			l.Schedule(to.fiber, nil)
		}
	}

	for !l.runQueue.Empty() {
		task, err := l.runQueue.Pop()
		if err != nil {
			break
		}
		l.runOne(task.Fiber, task.Value, task.Signal)
	}

	if l.activeListeners > 0 || l.timers.Len() > 0 {
		var deadline time.Time
		for {
			to, ok := l.timers.Peek()
			if !ok {
				break
			}
			if to.fiber.SchedID() != to.schedID {
				l.timers.PopMin()
				continue
			}
			deadline = time.UnixMilli(to.when)
			break
		}
		if err := l.reactor.Wait(deadline); err != nil {
			l.log.WithError(err).Fatal("ev: reactor wait failed")
		}
	}
}

// Run repeats Loop1 while the run queue, listener set, or timer heap is
// non-empty, terminating on idle quiescence (spec.md §4.6's outer
// driver). Fairness is cooperative: a fiber that never yields starves the
// loop (spec.md §4.6).
func (l *Loop) Run() {
	for l.activeListeners > 0 || !l.runQueue.Empty() || l.timers.Len() > 0 {
		l.Loop1()
	}
}
