// Package rtaskqueue is the Dispatcher's cross-thread task queue: a
// lock-free FIFO of pooled Task values, ported from the teacher's
// tools/task_queue package and renamed to fit this module's layout.
package rtaskqueue

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Func is a task body posted to a Dispatcher. It runs on the Dispatcher's
// own goroutine once dequeued.
type Func func()

// Task pairs a Func with nothing else; kept as a distinct pooled type
// (rather than passing bare closures) so the queue can recycle the node
// allocation the way the teacher's task_queue.Task/Pool pair does.
type Task struct {
	Run Func
}

var taskPool = sync.Pool{New: func() any { return new(Task) }}

// Get returns a Task from the pool.
func Get() *Task { return taskPool.Get().(*Task) }

// Put clears and returns a Task to the pool.
func Put(t *Task) {
	t.Run = nil
	taskPool.Put(t)
}

// Queue is a Michael-Scott lock-free FIFO queue of *Task, identical in
// algorithm to the teacher's lockFreeTaskQueue, renamed and exported so the
// Dispatcher type can use it directly instead of through an interface
// indirection the teacher needed to support multiple poller backends.
type Queue struct {
	head, tail unsafe.Pointer // *node
	length     int32
}

type node struct {
	value *Task
	next  unsafe.Pointer // *node
}

// New returns an empty Queue.
func New() *Queue {
	n := unsafe.Pointer(&node{})
	return &Queue{head: n, tail: n}
}

func loadNode(p *unsafe.Pointer) *node {
	return (*node)(atomic.LoadPointer(p))
}

func casNode(p *unsafe.Pointer, old, new *node) bool {
	return atomic.CompareAndSwapPointer(p, unsafe.Pointer(old), unsafe.Pointer(new))
}

// Enqueue appends task to the tail of the queue.
func (q *Queue) Enqueue(task *Task) {
	n := &node{value: task}
	for {
		tail := loadNode(&q.tail)
		next := loadNode(&tail.next)
		if tail != loadNode(&q.tail) {
			continue
		}
		if next == nil {
			if casNode(&tail.next, nil, n) {
				casNode(&q.tail, tail, n)
				atomic.AddInt32(&q.length, 1)
				return
			}
		} else {
			casNode(&q.tail, tail, next)
		}
	}
}

// Dequeue removes and returns the task at the head of the queue, or nil if
// the queue is empty.
func (q *Queue) Dequeue() *Task {
	for {
		head := loadNode(&q.head)
		tail := loadNode(&q.tail)
		next := loadNode(&head.next)
		if head != loadNode(&q.head) {
			continue
		}
		if head == tail {
			if next == nil {
				return nil
			}
			casNode(&q.tail, tail, next)
			continue
		}
		task := next.value
		if casNode(&q.head, head, next) {
			atomic.AddInt32(&q.length, -1)
			return task
		}
	}
}

// Empty reports whether the queue currently has no tasks.
func (q *Queue) Empty() bool {
	return atomic.LoadInt32(&q.length) == 0
}

// DrainInto pops every currently-queued task and calls fn on each, in FIFO
// order, recycling each Task back to the pool. Used by the Dispatcher's
// on_wake handler, which must run tasks unlocked so a task may itself
// enqueue without deadlocking.
func (q *Queue) DrainInto(fn func(Func)) {
	for {
		t := q.Dequeue()
		if t == nil {
			return
		}
		fn(t.Run)
		Put(t)
	}
}
