package goreact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newRunningDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher()
	assert.NoError(t, err)
	assert.NoError(t, d.Init())
	go d.Run(false)
	t.Cleanup(func() {
		d.Stop()
		_ = d.Close()
	})
	return d
}

// TestDispatcherTaskOrder is spec §8's property test: tasks enqueued from
// one goroutine run on the Dispatcher's own goroutine in the order they
// were enqueued.
func TestDispatcherTaskOrder(t *testing.T) {
	d := newRunningDispatcher(t)

	const n = 500
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		d.Enqueue(func() { results <- i })
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-results:
			assert.Equal(t, i, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for task %d", i)
		}
	}
}

func TestDispatcherRunOnLoopInlineBeforeRunning(t *testing.T) {
	d, err := NewDispatcher()
	assert.NoError(t, err)
	assert.NoError(t, d.Init())
	defer d.Close()

	ran := false
	d.RunOnLoop(func() { ran = true })
	assert.True(t, ran, "RunOnLoop must execute inline before the loop is running")
}

func TestDispatcherRunOnLoopFromLoopGoroutineIsInline(t *testing.T) {
	d := newRunningDispatcher(t)

	done := make(chan bool, 1)
	d.Enqueue(func() {
		inline := false
		d.RunOnLoop(func() { inline = true })
		done <- inline
	})

	select {
	case inline := <-done:
		assert.True(t, inline)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestDispatcherStopIsObservedPromptly(t *testing.T) {
	d, err := NewDispatcher()
	assert.NoError(t, err)
	assert.NoError(t, d.Init())

	loopExited := make(chan struct{})
	go func() {
		d.Run(false)
		close(loopExited)
	}()

	// Give the loop a moment to enter its first Wait.
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	select {
	case <-loopExited:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not wake the loop promptly")
	}
	_ = d.Close()
}

// TestDispatcherTickOnlyOnZeroEvents exercises spec §9's Open Question
// resolution: the tick callback fires only when Wait returns zero ready
// channels (the loop's own 1000ms poll timeout), not on every wakeup. With
// nothing registered besides the idle wake-fd (which only becomes ready
// when explicitly Notified), the only way this Dispatcher ever sees a
// wakeup is the 1000ms Wait timeout itself.
func TestDispatcherTickOnlyOnZeroEvents(t *testing.T) {
	d, err := NewDispatcher()
	assert.NoError(t, err)
	assert.NoError(t, d.Init())

	ticks := make(chan struct{}, 8)
	d.SetTickCallback(func(*Dispatcher) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	go d.Run(false)
	defer func() {
		d.Stop()
		_ = d.Close()
	}()

	// Wakeups that deliver events (here, the wake-fd after Enqueue) finish
	// well inside the first 1000ms Wait and must not fire the tick.
	ran := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		d.Enqueue(func() { ran <- struct{}{} })
	}
	for i := 0; i < 5; i++ {
		<-ran
	}
	assert.Empty(t, ticks, "a wakeup that delivered events must not fire the tick")

	select {
	case <-ticks:
	case <-time.After(3 * time.Second):
		t.Fatal("tick callback never fired")
	}
}

func TestDispatcherIdleTimerEvictsExpiredConnections(t *testing.T) {
	d, err := NewDispatcher()
	assert.NoError(t, err)
	assert.NoError(t, d.Init())
	assert.NoError(t, d.EnableIdleTimer(20*time.Millisecond, 30*time.Millisecond))

	evicted := make(chan int, 1)
	d.SetConnTimeoutCallback(func(fd int) {
		evicted <- fd
	})

	d.TrackIdle(99, alwaysIdle{})

	go d.Run(false)
	defer func() {
		d.Stop()
		_ = d.Close()
	}()

	select {
	case fd := <-evicted:
		assert.Equal(t, 99, fd)
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection was never evicted")
	}
}

type alwaysIdle struct{}

func (alwaysIdle) IsIdle(time.Duration) bool { return true }
