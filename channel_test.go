package goreact

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newTestPipeChannel returns a Channel wrapping the read end of an os.Pipe,
// owned by a freshly constructed (not-yet-running) Dispatcher. Since the
// Dispatcher isn't running, every Channel mutation below (spec §4.5's
// "not yet running" carve-out) executes inline on the calling goroutine,
// which is enough to exercise Channel's state machine and Close semantics
// without needing a live event loop.
func newTestPipeChannel(t *testing.T) (*Channel, *os.File, *os.File, *Dispatcher) {
	t.Helper()
	d, err := NewDispatcher()
	assert.NoError(t, err)
	assert.NoError(t, d.Init())
	t.Cleanup(func() { _ = d.Close() })

	r, w, err := os.Pipe()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ch := newChannel(int(r.Fd()), d)
	return ch, r, w, d
}

// TestChannelCloseInvariant is spec §8's property test: closed implies
// fd = -1, interest = 0, received = 0.
func TestChannelCloseInvariant(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()

	ch.EnableReading()
	ch.Close()

	assert.True(t, ch.IsClosed())
	assert.Equal(t, -1, ch.Fd())
	assert.Equal(t, InterestMask(0), ch.interest)
	assert.Equal(t, InterestMask(0), ch.received)
}

// TestChannelCloseIdempotent covers Close's half of spec §8's property
// test: calling Close again after the first call must be a harmless no-op
// that leaves the Channel closed. The close-callback is handle_event's
// job, not Close's, so no callback is counted here.
func TestChannelCloseIdempotent(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()

	ch.EnableReading()
	ch.Close()
	assert.NotPanics(t, func() {
		ch.Close()
		ch.Close()
	})
	assert.True(t, ch.IsClosed())
}

func TestChannelEnableReadingTransitionsToRegistered(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()
	defer ch.Close()

	assert.Equal(t, channelIdle, ch.getState())
	ch.EnableReading()
	assert.Equal(t, channelRegistered, ch.getState())
}

func TestChannelEnableDisableWriting(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()
	defer ch.Close()

	ch.EnableWriting()
	assert.True(t, ch.IsWriting())
	ch.DisableWriting()
	assert.False(t, ch.IsWriting())
}

func TestChannelHandleEventIgnoredOnceClosed(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()

	readCalls := 0
	ch.SetReadCallback(func() { readCalls++ })
	ch.Close()

	ch.setReceived(Read)
	ch.handleEvent()
	assert.Equal(t, 0, readCalls, "handleEvent must no-op once closed")
}

// TestChannelHandleEventPeerClosedShortCircuits mirrors spec §4.2's strict priority:
// PEER_CLOSED|HANG_UP short-circuits the rest. Read/Write/Error may all
// run in one delivery when none of those bits are set.
func TestChannelHandleEventPeerClosedShortCircuits(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()

	var order []string
	ch.SetReadCallback(func() { order = append(order, "read") })
	ch.SetWriteCallback(func() { order = append(order, "write") })
	ch.SetCloseCallback(func() { order = append(order, "close") })
	ch.SetErrorCallback(func() { order = append(order, "error") })

	ch.setReceived(PeerClosed | Read | Write | Error)
	ch.handleEvent()

	assert.Equal(t, []string{"close"}, order)
	assert.True(t, ch.IsClosed())
}

func TestChannelHandleEventRunsReadThenWriteThenError(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()
	defer ch.Close()

	var order []string
	ch.SetReadCallback(func() { order = append(order, "read") })
	ch.SetWriteCallback(func() { order = append(order, "write") })
	ch.SetErrorCallback(func() { order = append(order, "error") })

	ch.setReceived(Read | Write | Error)
	ch.handleEvent()

	assert.Equal(t, []string{"read", "write", "error"}, order)
}

func TestChannelHandleEventStopsIfClosedMidway(t *testing.T) {
	ch, r, _, _ := newTestPipeChannel(t)
	defer r.Close()

	var order []string
	ch.SetReadCallback(func() {
		order = append(order, "read")
		ch.Close()
	})
	ch.SetWriteCallback(func() { order = append(order, "write") })
	ch.SetErrorCallback(func() { order = append(order, "error") })

	ch.setReceived(Read | Write | Error)
	ch.handleEvent()

	assert.Equal(t, []string{"read"}, order, "a close triggered mid-dispatch must suppress later steps")
}
