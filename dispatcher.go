package goreact

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/goreact/goreact/internal/rgoid"
	"github.com/goreact/goreact/internal/rlog"
	"github.com/goreact/goreact/internal/rtaskqueue"
)

// idleTimeoutCallback is invoked once per fd the idle timer finds
// expired; the Server wires this to remove the connection from its map
// (spec §4.5).
type idleTimeoutCallback func(fd int)

// Dispatcher is one event loop (spec §3/§4.5): it owns a Poller, a
// wake-fd + task queue for cross-goroutine task handoff, and optionally
// an idle timer over a set of tracked connections. Exactly one goroutine
// ever runs a Dispatcher's loop for its whole life.
type Dispatcher struct {
	poller *Poller
	wake   *wakeSource
	wakeCh *Channel

	tasks *rtaskqueue.Queue

	running atomic.Bool // release/acquire: Stop from another goroutine must be observed promptly
	loopG   atomic.Uint64

	// idle-timer, only non-nil for I/O dispatchers (spec §4.5).
	timer         *timerSource
	timerCh       *Channel
	tickInterval  time.Duration
	connTimeout   time.Duration
	idleSet       map[int]idleChecker
	onTick        func(*Dispatcher)
	onConnTimeout idleTimeoutCallback
}

// idleChecker is satisfied by *Connection; kept as an interface here so
// Dispatcher (built before Connection in the reading order) doesn't need
// a forward type cycle beyond what Go already tolerates within one
// package — it exists purely for readability.
type idleChecker interface {
	IsIdle(d time.Duration) bool
}

// NewDispatcher constructs a Dispatcher and performs the first of the two
// construction phases; callers MUST call Init before using it (spec §3
// "Lifecycle summary" / §9 two-phase construction), because wiring the
// wake-fd's Channel needs a stable reference to the Dispatcher that only
// exists once the caller holds it in a variable.
func NewDispatcher() (*Dispatcher, error) {
	p, err := NewPoller()
	if err != nil {
		return nil, err
	}
	w, err := newWakeSource()
	if err != nil {
		p.Close()
		return nil, err
	}
	return &Dispatcher{poller: p, wake: w, tasks: rtaskqueue.New()}, nil
}

// Init wires the wake-fd Channel. Safe to call only once, before Run.
func (d *Dispatcher) Init() error {
	d.wakeCh = newChannel(d.wake.Fd(), d)
	d.wakeCh.SetReadCallback(d.onWake)
	d.wakeCh.EnableReading()
	return nil
}

// EnableIdleTimer arms the idle timer, turning this into an I/O
// dispatcher per spec §4.5. tickInterval is how often the timer fires;
// connTimeout is the per-connection idle threshold.
func (d *Dispatcher) EnableIdleTimer(tickInterval, connTimeout time.Duration) error {
	t, err := newTimerSource(tickInterval)
	if err != nil {
		return err
	}
	d.timer = t
	d.tickInterval = tickInterval
	d.connTimeout = connTimeout
	d.idleSet = make(map[int]idleChecker)
	d.timerCh = newChannel(t.Fd(), d)
	d.timerCh.SetReadCallback(d.onTimerFire)
	d.timerCh.EnableReading()
	return nil
}

// SetTickCallback installs the hook run on every zero-event Wait
// (spec §4.5 main loop, and §9's Open Question: the tick fires only on
// zero-event wakeups, matching the source).
func (d *Dispatcher) SetTickCallback(fn func(*Dispatcher)) { d.onTick = fn }

// SetConnTimeoutCallback installs the per-fd eviction hook the idle timer
// invokes for each expired connection.
func (d *Dispatcher) SetConnTimeoutCallback(fn idleTimeoutCallback) { d.onConnTimeout = fn }

// TrackIdle registers fd for idle-timeout tracking against checker.
func (d *Dispatcher) TrackIdle(fd int, checker idleChecker) {
	if d.idleSet != nil {
		d.idleSet[fd] = checker
	}
}

// UntrackIdle removes fd from idle-timeout tracking.
func (d *Dispatcher) UntrackIdle(fd int) {
	if d.idleSet != nil {
		delete(d.idleSet, fd)
	}
}

func (d *Dispatcher) onWake() {
	_ = d.wake.Drain()
	d.tasks.DrainInto(func(fn rtaskqueue.Func) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rlog.ErrorF("dispatcher task panicked: %v", r)
				}
			}()
			fn()
		}()
	})
}

func (d *Dispatcher) onTimerFire() {
	_ = d.timer.Drain()
	var expired []int
	for fd, c := range d.idleSet {
		if c.IsIdle(d.connTimeout) {
			expired = append(expired, fd)
		}
	}
	for _, fd := range expired {
		delete(d.idleSet, fd)
	}
	for _, fd := range expired {
		if d.onConnTimeout != nil {
			d.onConnTimeout(fd)
		}
	}
}

// Enqueue posts task to run on this Dispatcher's loop goroutine,
// preserving FIFO order relative to other tasks enqueued from the same
// caller (spec §5 ordering guarantees).
func (d *Dispatcher) Enqueue(task rtaskqueue.Func) {
	t := rtaskqueue.Get()
	t.Run = task
	d.tasks.Enqueue(t)
	if err := d.wake.Notify(); err != nil {
		rlog.Error("dispatcher wake notify error:", err)
	}
}

// OnLoopGoroutine reports whether the calling goroutine is this
// Dispatcher's loop goroutine.
func (d *Dispatcher) OnLoopGoroutine() bool {
	return d.running.Load() && rgoid.Current() == d.loopG.Load()
}

// RunOnLoop executes fn on the Dispatcher's loop goroutine: inline if
// already there (or if the loop hasn't started yet, matching spec
// §4.5's "not yet running" carve-out for initial wiring), otherwise
// posted through the task queue.
func (d *Dispatcher) RunOnLoop(fn func()) {
	if !d.running.Load() || d.OnLoopGoroutine() {
		fn()
		return
	}
	d.Enqueue(fn)
}

// updateChannel and removeChannel are the routing points spec §4.5
// mandates: every Channel mutation must happen on the owning Dispatcher's
// goroutine.
func (d *Dispatcher) updateChannel(ch *Channel) {
	d.RunOnLoop(func() {
		if err := d.poller.Update(ch); err != nil {
			rlog.Error("poller update error:", err)
		}
	})
}

func (d *Dispatcher) removeChannel(ch *Channel) {
	d.RunOnLoop(func() {
		if err := d.poller.Remove(ch); err != nil {
			rlog.Error("poller remove error:", err)
		}
	})
}

// Run starts the event loop and blocks on the calling goroutine until
// Stop is called. The caller must dedicate one goroutine to this call for
// the Dispatcher's whole life (spec §5 "one Dispatcher per goroutine");
// Server runs each I/O-Dispatcher's loop as one ThreadPool task and the
// acceptor Dispatcher's loop on the goroutine that called Server.Start.
func (d *Dispatcher) Run(lockOSThread bool) {
	if lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	d.loopG.Store(rgoid.Current())
	d.running.Store(true)

	for d.running.Load() {
		channels, err := d.poller.Wait(1000)
		if err != nil {
			rlog.Error("poller wait error:", err)
			continue
		}
		if len(channels) == 0 {
			if d.onTick != nil {
				d.onTick(d)
			}
			continue
		}
		for _, ch := range channels {
			d.dispatchOne(ch)
		}
	}
}

// dispatchOne runs one Channel's handleEvent, isolating a panicking
// callback so it cannot take down the whole loop (spec §7 propagation
// policy: failures inside a Channel callback are caught at the
// Dispatcher loop boundary).
func (d *Dispatcher) dispatchOne(ch *Channel) {
	defer func() {
		if r := recover(); r != nil {
			rlog.ErrorF("dispatcher: channel fd=%d callback panicked: %v", ch.Fd(), r)
		}
	}()
	ch.handleEvent()
}

// Stop requests loop exit; Run observes it on its next Wait return, since
// Stop also wakes the poller immediately rather than waiting out the
// remaining 1000ms timeout.
func (d *Dispatcher) Stop() {
	d.running.Store(false)
	_ = d.wake.Notify()
}

// Close tears down the Poller, wake-fd, and (if present) timer-fd. Call
// only after Run has returned.
func (d *Dispatcher) Close() error {
	if d.timer != nil {
		_ = d.timer.Close()
	}
	_ = d.wake.Close()
	return d.poller.Close()
}
