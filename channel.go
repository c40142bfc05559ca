package goreact

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/goreact/goreact/internal/rlog"
)

// channelState is Channel's Idle -> Registered -> Closed state machine
// (spec §4.2). It only ever moves forward; Closed is terminal.
type channelState int32

const (
	channelIdle channelState = iota
	channelRegistered
	channelClosed
)

// Channel is the per-fd state record described in spec §3/§4.2. It is
// affine to exactly one Dispatcher for its whole life: every mutation of
// interest bits must run on that Dispatcher's loop goroutine, which is
// enforced by always routing through Dispatcher.updateChannel /
// removeChannel rather than touching the Poller directly.
type Channel struct {
	fd    int
	state atomic.Int32 // channelState, CAS'd for exactly-once Close

	interest InterestMask
	received InterestMask

	disp *Dispatcher // channel never outlives its Dispatcher

	// Callbacks hold plain pointers to their owning Connection/Acceptor,
	// not weak references: Go's GC already reclaims the Channel<->owner
	// cycle this would otherwise guard against (see DESIGN.md). Use-after-
	// close is instead prevented by handleEvent's closed-state checks (before
	// dispatch and between steps) and by Connection's CAS-guarded closing
	// flag.
	onRead  func()
	onWrite func()
	onClose func()
	onError func()
}

// newChannel constructs a Channel for fd, owned by disp. Per spec's
// two-phase-construction note, the caller must still wire callbacks (via
// the setters below) before enabling any interest.
func newChannel(fd int, disp *Dispatcher) *Channel {
	c := &Channel{fd: fd, disp: disp}
	c.state.Store(int32(channelIdle))
	return c
}

func (c *Channel) Fd() int { return c.fd }

func (c *Channel) setState(s channelState) { c.state.Store(int32(s)) }
func (c *Channel) getState() channelState  { return channelState(c.state.Load()) }

// IsClosed reports whether Close has already run.
func (c *Channel) IsClosed() bool { return c.getState() == channelClosed }

func (c *Channel) SetReadCallback(fn func())  { c.onRead = fn }
func (c *Channel) SetWriteCallback(fn func()) { c.onWrite = fn }
func (c *Channel) SetCloseCallback(fn func()) { c.onClose = fn }
func (c *Channel) SetErrorCallback(fn func()) { c.onError = fn }

// Interest returns the currently requested interest mask.
func (c *Channel) Interest() InterestMask { return c.interest }

// setReceived is called only by Poller.Wait, under the Poller's lock,
// immediately before the Channel is handed back to the Dispatcher loop.
func (c *Channel) setReceived(mask InterestMask) { c.received = mask }

func (c *Channel) update() {
	if c.getState() == channelIdle {
		c.setState(channelRegistered)
	}
	c.disp.updateChannel(c)
}

// EnableReading requests READ|PEER_CLOSED interest (PEER_CLOSED always
// rides along with READ per spec §4.1) plus edge-triggered mode.
func (c *Channel) EnableReading() {
	c.interest |= Read | PeerClosed | EdgeTriggered
	c.update()
}

// EnableWriting adds WRITE interest.
func (c *Channel) EnableWriting() {
	c.interest |= Write
	c.update()
}

// DisableWriting drops WRITE interest once the output buffer drains.
func (c *Channel) DisableWriting() {
	c.interest &^= Write
	c.update()
}

// IsWriting reports whether WRITE interest is currently requested.
func (c *Channel) IsWriting() bool { return c.interest.has(Write) }

// Close is CAS-guarded so repeated calls (e.g. a close triggered from
// inside a callback that is itself unwinding from an earlier close) are
// idempotent (spec invariant: exactly one kernel close, one close-callback
// — the callback firing is the caller's responsibility, e.g. Connection's
// closing flag; Channel.Close only guarantees the fd/poller side).
func (c *Channel) Close() {
	if !c.state.CompareAndSwap(int32(channelRegistered), int32(channelClosed)) &&
		!c.state.CompareAndSwap(int32(channelIdle), int32(channelClosed)) {
		return
	}
	c.disp.removeChannel(c)
	if c.fd >= 0 {
		if err := unix.Close(c.fd); err != nil {
			rlog.Error("channel close fd", c.fd, "error:", err)
		}
	}
	c.interest = 0
	c.received = 0
	c.fd = -1
}

// handleEvent dispatches the received mask in the strict priority order
// spec §4.2 mandates. It must be reentrancy-safe: step 1's close-callback
// (or any later step) may itself call Close again, which the CAS above
// makes a no-op.
func (c *Channel) handleEvent() {
	if c.IsClosed() {
		return
	}
	ev := c.received
	if ev.has(PeerClosed) || ev.has(HangUp) {
		if c.onClose != nil {
			c.onClose()
		}
		c.Close()
		return
	}
	if ev.has(Read) || ev.has(Priority) {
		if c.onRead != nil {
			c.onRead()
		}
	}
	if c.IsClosed() {
		return
	}
	if ev.has(Write) {
		if c.onWrite != nil {
			c.onWrite()
		}
	}
	if c.IsClosed() {
		return
	}
	if ev.has(Error) {
		if c.onError != nil {
			c.onError()
		}
	}
}
