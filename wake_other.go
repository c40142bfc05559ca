//go:build !linux

package goreact

import (
	"os"
	"sync/atomic"
)

// wakeSource on non-Linux platforms is a classic self-pipe: a single byte
// written to the pipe's write end wakes a blocked kevent/select on the
// read end. pending avoids piling up bytes in the pipe when multiple
// Notify calls race (the Linux eventfd needs no such flag, since its
// counter absorbs repeated writes).
type wakeSource struct {
	r, w    *os.File
	pending atomic.Bool
	buf     [1]byte
}

func newWakeSource() (*wakeSource, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &wakeSource{r: r, w: w}, nil
}

func (ws *wakeSource) Fd() int { return int(ws.r.Fd()) }

func (ws *wakeSource) Notify() error {
	if !ws.pending.CompareAndSwap(false, true) {
		return nil
	}
	_, err := ws.w.Write([]byte{1})
	return err
}

func (ws *wakeSource) Drain() error {
	ws.pending.Store(false)
	_, err := ws.r.Read(ws.buf[:])
	return err
}

func (ws *wakeSource) Close() error {
	_ = ws.w.Close()
	return ws.r.Close()
}
