package goreact

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goreact/goreact/internal/rerr"
	"github.com/goreact/goreact/internal/rlaunch"
	"github.com/goreact/goreact/internal/rlog"
)

// poolTask is one unit of work submitted to a ThreadPool, paired with the
// Future its caller waits on.
type poolTask struct {
	fn     func() (int, error)
	future *Future
}

// Future is the result of one ThreadPool.Submit call. It is satisfied
// exactly once, either by the task running to completion or by Stop
// draining it unrun.
type Future struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
	val  int
	err  error
}

func newFuture() *Future {
	f := &Future{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Future) resolve(val int, err error) {
	f.mu.Lock()
	f.val, f.err, f.done = val, err, true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Value blocks until the task has run (or the pool stopped before it
// could), then returns its result.
func (f *Future) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.done {
		f.cond.Wait()
	}
	return f.val, f.err
}

// ThreadPool is spec §4.6's fixed-size worker pool: component J. It uses
// a sync.Mutex/sync.Cond task queue in the same idiom the teacher uses for
// its own shutdown signal (shlserver.go's cond/signalShutdown/
// waitForShutdown), generalized from a single-waiter shutdown latch into a
// many-producer/many-consumer work queue.
//
// Stop is CAS-idempotent and applies the lost-wakeup fix spec calls for:
// it holds the mutex across Broadcast, even though the critical section
// it protects is otherwise empty, so a worker that has already re-checked
// stopped and is about to Wait cannot miss the wakeup that was meant to
// unblock it.
type ThreadPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*poolTask
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewThreadPool starts a ThreadPool with workers goroutines. workers must
// be > 0.
func NewThreadPool(workers int) (*ThreadPool, error) {
	if workers <= 0 {
		return nil, rerr.ErrPoolBadWorkerCount
	}
	p := &ThreadPool{}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		rlaunch.Go(p.worker)
	}
	return p, nil
}

// Submit enqueues fn and returns a Future for its result. Submitting to a
// stopped pool returns a Future already resolved to rerr.ErrPoolStopped,
// matching the result a queued-but-never-run task gets from Stop.
func (p *ThreadPool) Submit(fn func() (int, error)) *Future {
	future := newFuture()
	if p.stopped.Load() {
		future.resolve(0, rerr.ErrPoolStopped)
		return future
	}

	p.mu.Lock()
	if p.stopped.Load() {
		p.mu.Unlock()
		future.resolve(0, rerr.ErrPoolStopped)
		return future
	}
	p.queue = append(p.queue, &poolTask{fn: fn, future: future})
	p.mu.Unlock()
	p.cond.Signal()
	return future
}

func (p *ThreadPool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped.Load() {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.runTask(task)
	}
}

// runTask executes one task, turning a panic inside fn into an error
// result instead of taking the worker down — the Go analogue of the
// source's exception-to-std::future-exception propagation (spec §7).
func (p *ThreadPool) runTask(task *poolTask) {
	defer func() {
		if r := recover(); r != nil {
			rlog.ErrorF("thread pool task panicked: %v", r)
			task.future.resolve(0, fmt.Errorf("goreact: thread pool task panicked: %v", r))
		}
	}()
	val, err := task.fn()
	task.future.resolve(val, err)
}

// Stop requests shutdown and waits for every worker goroutine to exit.
// Idempotent: a second call observes stopped already set and returns
// immediately. Any task still queued when Stop runs resolves to
// rerr.ErrPoolStopped instead of running.
func (p *ThreadPool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	drained := p.queue
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, task := range drained {
		task.future.resolve(0, rerr.ErrPoolStopped)
	}

	p.wg.Wait()
}
