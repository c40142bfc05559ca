// Package rlaunch launches long-running goroutines (the ThreadPool
// workers, which run the I/O-Dispatcher event loops) through a panic-safe
// pooled launcher instead
// of a bare `go` statement, ported from the teacher's tools/gopool
// package, which thinly wraps github.com/Senhnn/GoroutinePool.
package rlaunch

import (
	"context"

	"github.com/Senhnn/GoroutinePool"
)

// Go launches f on a managed goroutine. GoroutinePool recovers panics
// inside f and logs them rather than taking down the process, which
// matters here because a Dispatcher's event loop runs for the life of the
// server and must not silently vanish.
func Go(f func()) {
	GoroutinePool.Go(f)
}

// CtxGo launches f bound to ctx. Nothing in this module calls it; the
// Server's compute pool is internal/rgopool.
func CtxGo(ctx context.Context, f func()) {
	GoroutinePool.CtxGo(ctx, f)
}
