package goreact

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/goreact/goreact/internal/rerr"
	"github.com/goreact/goreact/internal/rlog"
	"github.com/goreact/goreact/internal/rsocket"
)

// Acceptor is spec's component H: the listening socket wrapped in a
// Channel on its own Dispatcher, draining the accept queue to EAGAIN on
// every readiness notification, the same shape as the teacher's
// EventLoop.accept/activateMainReactor but split out as its own type
// since this framework's Acceptor and I/O-Dispatchers are otherwise
// identical Dispatcher values.
type Acceptor struct {
	sock    *rsocket.Socket
	channel *Channel
	disp    *Dispatcher

	onAccept func(*rsocket.Socket)
}

// NewAcceptor wraps a listening socket already bound on disp. Call
// SetAcceptCallback then Start.
func NewAcceptor(sock *rsocket.Socket, disp *Dispatcher) *Acceptor {
	a := &Acceptor{sock: sock, disp: disp}
	a.channel = newChannel(sock.Fd(), disp)
	return a
}

// SetAcceptCallback installs the hook run once per accepted connection.
// The Server wires this to its fd-to-Dispatcher assignment and Connection
// construction.
func (a *Acceptor) SetAcceptCallback(fn func(*rsocket.Socket)) { a.onAccept = fn }

// Start enables read interest on the listening socket, after which every
// readiness notification runs drain.
func (a *Acceptor) Start() {
	a.channel.SetReadCallback(a.drain)
	a.channel.EnableReading()
}

// Close closes the listening Channel (and therefore its fd), routed onto
// the acceptor Dispatcher's loop goroutine like every other Channel
// mutation (spec §5's cross-thread mutation protocol): Server.Stop calls
// this from whatever goroutine called Server.Start, not the acceptor
// Dispatcher's own loop goroutine, so Channel.Close must not run inline
// here.
func (a *Acceptor) Close() { a.disp.RunOnLoop(a.channel.Close) }

// drain calls accept4 in a loop until it returns EAGAIN/EWOULDBLOCK (spec
// §4.4's drain-to-EAGAIN requirement for edge-triggered readiness), routing
// each accepted Socket to onAccept and classifying every error along the
// way per spec §7 kind 3: ECONNABORTED/EMFILE/ENFILE/ENOBUFS/ENOMEM are
// transient — logged, end this drain iteration, never close the listener.
func (a *Acceptor) drain() {
	for {
		sock, err := rsocket.Accept4(a.sock.Fd())
		if err != nil {
			a.handleAcceptError(err)
			return
		}
		if a.onAccept != nil {
			a.onAccept(sock)
		} else {
			sock.Close()
		}
	}
}

func (a *Acceptor) handleAcceptError(err error) {
	switch err {
	case unix.EAGAIN:
		return
	case unix.ECONNABORTED, unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
		err = rerr.MarkTransientAccept(os.NewSyscallError("accept4", err))
	default:
		rlog.ErrorF("acceptor: %v: %v", rerr.ErrAcceptSocket, os.NewSyscallError("accept4", err))
		return
	}
	if rerr.IsTransientAccept(err) {
		rlog.ErrorF("acceptor: transient accept error, backing off: %v", err)
	}
}
