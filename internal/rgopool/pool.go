// Package rgopool is the optional application compute pool a Server can
// expose to its embedder (Server.Go), so a message callback can offload
// blocking work without borrowing an I/O-Dispatcher goroutine. Ported
// from Emove-less's pkg/pool/go/goroutine.go, which wraps
// github.com/panjf2000/ants/v2 the same way: a package-level pool with a
// panic handler and a non-blocking submit that falls back to a bare `go`
// statement when the pool is saturated or disabled.
package rgopool

import (
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/goreact/goreact/internal/rlog"
)

const (
	// expiryDuration is how long an idle worker goroutine survives before
	// ants recycles it.
	expiryDuration = 10 * time.Second
)

type antsLogger struct{}

func (antsLogger) Printf(format string, a ...any) { rlog.ErrorF(format, a...) }

// Pool wraps an *ants.Pool sized at construction time, used as the
// Server's optional compute pool for component K's "M compute workers".
type Pool struct {
	inner *ants.Pool
}

// New creates a Pool with the given capacity. A non-positive capacity
// disables pooling: Submit falls back to a bare goroutine per call.
func New(capacity int) (*Pool, error) {
	if capacity <= 0 {
		return &Pool{}, nil
	}
	options := ants.Options{
		ExpiryDuration: expiryDuration,
		Nonblocking:    true,
		PanicHandler: func(err any) {
			rlog.ErrorF("panic on compute-pool worker: %v\n%s", err, string(debug.Stack()))
		},
		Logger: antsLogger{},
	}
	p, err := ants.NewPool(capacity, ants.WithOptions(options))
	if err != nil {
		return nil, err
	}
	return &Pool{inner: p}, nil
}

// Submit runs task on a pooled goroutine, or a bare `go task()` if the
// pool is disabled or momentarily saturated.
func (p *Pool) Submit(task func()) {
	if p != nil && p.inner != nil {
		if err := p.inner.Submit(task); err == nil {
			return
		}
	}
	go task()
}

// Release closes the underlying pool so it takes no further pooled tasks.
func (p *Pool) Release() {
	if p != nil && p.inner != nil {
		p.inner.Release()
	}
}

// Running reports the number of currently-running pooled goroutines.
func (p *Pool) Running() int {
	if p == nil || p.inner == nil {
		return 0
	}
	return p.inner.Running()
}
