package goreact

import (
	"sync"
	"sync/atomic"

	"github.com/goreact/goreact/internal/rerr"
	"github.com/goreact/goreact/internal/rgopool"
	"github.com/goreact/goreact/internal/rlog"
	"github.com/goreact/goreact/internal/rsocket"
)

// Server is spec's component K: one acceptor-Dispatcher plus N I/O-
// Dispatchers running on a ThreadPool, an optional compute pool, and the
// connection map the Acceptor's new-connection hook feeds. It plays the
// role the teacher splits across Server/EventLoop/Listener in shlserver.go
// and shlev.go, collapsed into one type since this framework always runs
// the one-acceptor/N-I/O-worker shape (the teacher's ReusePort
// accept-on-every-loop mode and its pluggable load balancer have no
// counterpart in spec, which fixes assignment to `fd mod N`).
type Server struct {
	opts *Options

	listenSock *rsocket.Socket
	listenAddr Address

	acceptorDisp *Dispatcher
	acceptor     *Acceptor

	ioDisps []*Dispatcher
	pool    *ThreadPool

	compute *rgopool.Pool

	connsMu sync.Mutex
	conns   map[int]*Connection

	stopping atomic.Bool

	onNewConnection func(*Connection)
	onClose         func(*Connection, error)
	onError         func(*Connection)
	onMessage       func(*Connection, []byte)
	onSendComplete  func(*Connection)
	onTick          func(*Dispatcher)
}

// NewServer constructs a Server bound to the address in opts
// (WithListenAddr), but does not yet start accepting: call Start for
// that. Construction order mirrors spec §4.7: listening socket, then the
// acceptor Dispatcher (second-phase Init'd immediately, since nothing
// about it needs the rest of the Server to exist yet).
func NewServer(opts ...OptionFunc) (*Server, error) {
	o := loadOptions(opts...)

	if o.LockOSThread && o.NumIOWorkers > 10000 {
		return nil, rerr.ErrTooManyEventLoops
	}

	sock, addr, err := rsocket.Listen4(o.ListenAddr, o.listenOptions())
	if err != nil {
		return nil, err
	}

	acceptorDisp, err := NewDispatcher()
	if err != nil {
		sock.Close()
		return nil, err
	}
	if err := acceptorDisp.Init(); err != nil {
		sock.Close()
		acceptorDisp.Close()
		return nil, err
	}

	compute, err := rgopool.New(o.ComputePoolSize)
	if err != nil {
		sock.Close()
		acceptorDisp.Close()
		return nil, err
	}

	s := &Server{
		opts:         o,
		listenSock:   sock,
		listenAddr:   AddressFromNetAddr(addr),
		acceptorDisp: acceptorDisp,
		compute:      compute,
		conns:        make(map[int]*Connection),
	}
	s.acceptor = NewAcceptor(sock, acceptorDisp)
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() Address { return s.listenAddr }

// ConnectionCount returns the number of currently open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// SetNewConnectionCallback installs the hook run once per accepted
// connection, after it has been inserted into the connection map and its
// registration with its I/O-Dispatcher has run or been queued on that
// Dispatcher's loop.
func (s *Server) SetNewConnectionCallback(fn func(*Connection)) { s.onNewConnection = fn }

// SetCloseCallback installs the hook run exactly once per connection close.
func (s *Server) SetCloseCallback(fn func(*Connection, error)) { s.onClose = fn }

// SetErrorCallback installs the hook run on a Channel-level Error event,
// alongside (not instead of) the eventual close callback.
func (s *Server) SetErrorCallback(fn func(*Connection)) { s.onError = fn }

// SetMessageCallback installs the hook forwarded every accumulated-bytes
// delivery from a connection's on_readable drain.
func (s *Server) SetMessageCallback(fn func(*Connection, []byte)) { s.onMessage = fn }

// SetSendCompleteCallback installs the hook run once a connection's output
// buffer fully drains.
func (s *Server) SetSendCompleteCallback(fn func(*Connection)) { s.onSendComplete = fn }

// SetTickCallback installs the hook run on every I/O-Dispatcher's
// zero-event wakeup (spec §6's timer-tick callback).
func (s *Server) SetTickCallback(fn func(*Dispatcher)) { s.onTick = fn }

// Go submits task to the optional compute pool, for application code that
// needs to do blocking work outside a message callback without borrowing
// an I/O-Dispatcher goroutine.
func (s *Server) Go(task func()) { s.compute.Submit(task) }

// Start builds the N I/O-Dispatchers, submits each one's event loop as a
// permanent ThreadPool task, starts the Acceptor, and then runs the
// acceptor Dispatcher's own loop on the calling goroutine — this call
// blocks until Stop is invoked from elsewhere (spec §4.7).
func (s *Server) Start() error {
	n := s.opts.NumIOWorkers
	if n <= 0 {
		n = 1
	}

	pool, err := NewThreadPool(n)
	if err != nil {
		return err
	}
	s.pool = pool

	s.ioDisps = make([]*Dispatcher, n)
	for i := 0; i < n; i++ {
		d, err := NewDispatcher()
		if err != nil {
			return err
		}
		if err := d.Init(); err != nil {
			return err
		}
		if err := d.EnableIdleTimer(s.opts.TimerInterval, s.opts.ConnectionTimeout); err != nil {
			return err
		}
		d.SetConnTimeoutCallback(s.onIdleTimeout)
		d.SetTickCallback(s.onTick)
		s.ioDisps[i] = d
	}

	for _, d := range s.ioDisps {
		d := d
		s.pool.Submit(func() (int, error) {
			d.Run(s.opts.LockOSThread)
			return 0, nil
		})
	}

	s.acceptor.SetAcceptCallback(s.onAccept)
	s.acceptor.Start()

	s.acceptorDisp.Run(s.opts.LockOSThread)
	return nil
}

// onAccept is the Acceptor's new-connection hook (spec's on_new_connection):
// pick the I/O-Dispatcher by fd mod N, build and wire a Connection onto
// it, and insert it into the connection map before the user's own
// new-connection hook runs.
func (s *Server) onAccept(sock *rsocket.Socket) {
	if len(s.ioDisps) == 0 {
		sock.Close()
		return
	}
	if s.opts.TCPKeepAlive > 0 {
		if err := rsocket.SetKeepAlivePeriod(sock.Fd(), int(s.opts.TCPKeepAlive.Seconds())); err != nil {
			rlog.Error("server: set keepalive error:", err)
		}
	}

	idx := sock.Fd() % len(s.ioDisps)
	disp := s.ioDisps[idx]

	conn := NewConnection(sock, disp)
	conn.SetMessageCallback(s.onMessage)
	conn.SetSendCompleteCallback(s.onSendComplete)
	conn.SetErrorCallback(s.onError)
	conn.SetCloseCallback(func(c *Connection, err error) {
		s.removeConnection(c)
		if s.onClose != nil {
			s.onClose(c, err)
		}
	})

	s.connsMu.Lock()
	s.conns[conn.Fd()] = conn
	s.connsMu.Unlock()

	disp.RunOnLoop(func() {
		conn.RegisterCallbacks()
		disp.TrackIdle(conn.Fd(), conn)
	})

	if s.onNewConnection != nil {
		s.onNewConnection(conn)
	}
}

// onIdleTimeout is the per-fd eviction hook an I/O-Dispatcher's idle timer
// invokes for a connection it judged idle (spec §4.5).
func (s *Server) onIdleTimeout(fd int) {
	s.connsMu.Lock()
	c, ok := s.conns[fd]
	s.connsMu.Unlock()
	if ok {
		c.Close()
	}
}

func (s *Server) removeConnection(c *Connection) {
	s.connsMu.Lock()
	delete(s.conns, c.Fd())
	s.connsMu.Unlock()
}

// Stop idempotently tears the server down: clears the connection map
// (dropping each Connection closes its Channel on its own dispatcher
// thread via the routed remove), stops every I/O-Dispatcher, stops the
// acceptor, then stops the ThreadPool, which joins every I/O-Dispatcher's
// loop goroutine (spec §4.7).
func (s *Server) Stop() error {
	if !s.stopping.CompareAndSwap(false, true) {
		return rerr.ErrServerInShutdown
	}

	s.connsMu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[int]*Connection)
	s.connsMu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	for _, d := range s.ioDisps {
		d.Stop()
	}
	s.acceptor.Close()
	s.acceptorDisp.Stop()

	if s.pool != nil {
		s.pool.Stop()
	}
	s.compute.Release()

	for _, d := range s.ioDisps {
		_ = d.Close()
	}
	_ = s.acceptorDisp.Close()

	return nil
}
