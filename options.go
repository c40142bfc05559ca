package goreact

import (
	"runtime"
	"time"

	"github.com/goreact/goreact/internal/rsocket"
)

// Options configures Server construction (spec §6), built with the
// teacher's own functional-options pattern (the original options.go's
// OptionFunc/With* family), generalized to this framework's knobs and
// defaults.
type Options struct {
	// ListenAddr is a "host:port" string, e.g. "127.0.0.1:8888".
	ListenAddr string

	// NumIOWorkers is the number of I/O-Dispatchers (component K's N).
	// Defaults to runtime.NumCPU() if unset.
	NumIOWorkers int

	// ComputePoolSize is the optional compute pool's capacity (0 disables
	// it, matching internal/rgopool.New's convention).
	ComputePoolSize int

	// TimerInterval is how often each I/O-Dispatcher's idle timer fires.
	// Defaults to 60s per spec §6.
	TimerInterval time.Duration

	// ConnectionTimeout is the per-connection idle threshold. Defaults to
	// 300s per spec §6.
	ConnectionTimeout time.Duration

	// LockOSThread pins every Dispatcher's loop goroutine to its OS
	// thread, mirroring the teacher's WithLockOSThread.
	LockOSThread bool

	ReuseAddr    bool
	ReusePort    bool
	TCPNoDelay   bool
	TCPKeepAlive time.Duration

	SocketRecvBuffer int
	SocketSendBuffer int
}

// OptionFunc mutates an Options during construction.
type OptionFunc func(*Options)

// defaultOptions mirrors spec §6's listed defaults (NumIOWorkers defaults
// to NumCPU, ReuseAddr on, since nothing in spec argues against it and it
// is the common case for a restartable listener).
func defaultOptions() *Options {
	return &Options{
		NumIOWorkers:      runtime.NumCPU(),
		TimerInterval:     60 * time.Second,
		ConnectionTimeout: 300 * time.Second,
		ReuseAddr:         true,
	}
}

func loadOptions(opts ...OptionFunc) *Options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WithListenAddr sets the listener's bind address ("host:port").
func WithListenAddr(addr string) OptionFunc {
	return func(o *Options) { o.ListenAddr = addr }
}

// WithNumIOWorkers sets the number of I/O-Dispatchers.
func WithNumIOWorkers(n int) OptionFunc {
	return func(o *Options) { o.NumIOWorkers = n }
}

// WithComputePoolSize sets the optional compute pool's capacity.
func WithComputePoolSize(n int) OptionFunc {
	return func(o *Options) { o.ComputePoolSize = n }
}

// WithTimerInterval sets how often each I/O-Dispatcher's idle timer fires.
func WithTimerInterval(d time.Duration) OptionFunc {
	return func(o *Options) { o.TimerInterval = d }
}

// WithConnectionTimeout sets the per-connection idle threshold.
func WithConnectionTimeout(d time.Duration) OptionFunc {
	return func(o *Options) { o.ConnectionTimeout = d }
}

// WithLockOSThread pins every Dispatcher's loop goroutine to its OS thread.
func WithLockOSThread(lock bool) OptionFunc {
	return func(o *Options) { o.LockOSThread = lock }
}

func WithReuseAddr(v bool) OptionFunc {
	return func(o *Options) { o.ReuseAddr = v }
}

func WithReusePort(v bool) OptionFunc {
	return func(o *Options) { o.ReusePort = v }
}

func WithTCPNoDelay(v bool) OptionFunc {
	return func(o *Options) { o.TCPNoDelay = v }
}

func WithTCPKeepAlive(d time.Duration) OptionFunc {
	return func(o *Options) { o.TCPKeepAlive = d }
}

func WithSocketRecvBuffer(n int) OptionFunc {
	return func(o *Options) { o.SocketRecvBuffer = n }
}

func WithSocketSendBuffer(n int) OptionFunc {
	return func(o *Options) { o.SocketSendBuffer = n }
}

// listenOptions translates Options into the socket-level options
// internal/rsocket.Listen4 applies to the listener.
func (o *Options) listenOptions() rsocket.ListenOptions {
	return rsocket.ListenOptions{
		ReuseAddr:    o.ReuseAddr,
		ReusePort:    o.ReusePort,
		TCPNoDelay:   o.TCPNoDelay,
		RecvBufBytes: o.SocketRecvBuffer,
		SendBufBytes: o.SocketSendBuffer,
		Backlog:      MaxConnections,
	}
}

// defaultThreadPoolSize computes spec §4.6's "max(1, hw_concurrency/2)"
// worker count. NewThreadPool does not apply it as a default (its caller
// always passes a count), and Server sizes its pool off NumIOWorkers
// instead, per §4.7, since every I/O-Dispatcher occupies one worker for
// its whole life.
func defaultThreadPoolSize() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}
