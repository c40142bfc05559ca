//go:build !linux

package goreact

import (
	"os"
	"sync"
	"time"
)

// timerSource on non-Linux platforms emulates a timer-fd with a
// self-pipe plus a background goroutine driven by time.Ticker: there is
// no portable kqueue-visible timer fd across BSD/Darwin the way Linux has
// timerfd, so the fallback trades a goroutine for fd-based readiness.
type timerSource struct {
	r, w *os.File
	buf  [1]byte

	mu     sync.Mutex
	ticker *time.Ticker
	stopCh chan struct{}
}

func newTimerSource(interval time.Duration) (*timerSource, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	t := &timerSource{r: r, w: w}
	t.start(interval)
	return t, nil
}

func (t *timerSource) Fd() int { return int(t.r.Fd()) }

func (t *timerSource) start(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stopCh)
	}
	t.ticker = time.NewTicker(interval)
	stop := make(chan struct{})
	t.stopCh = stop
	ticker := t.ticker
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = t.w.Write([]byte{1})
			}
		}
	}()
}

func (t *timerSource) Reset(interval time.Duration) error {
	t.start(interval)
	return nil
}

func (t *timerSource) Drain() error {
	_, err := t.r.Read(t.buf[:])
	return err
}

func (t *timerSource) Close() error {
	t.mu.Lock()
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stopCh)
	}
	t.mu.Unlock()
	_ = t.w.Close()
	return t.r.Close()
}
