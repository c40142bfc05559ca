package goreact

import (
	"os"

	"golang.org/x/sys/unix"
)

// wakeSource is the Dispatcher's cross-goroutine wake mechanism: a
// readable fd that posting a task writes to, so the Dispatcher's
// Poller.Wait returns immediately instead of sitting out the rest of its
// timeout. On Linux this is an eventfd, exactly as the teacher's
// Epoller.Init sets up (golang.org/x/sys/unix.Eventfd), lifted out of the
// Poller itself since spec §4.5 treats the wake-fd as a Dispatcher-owned
// concept distinct from the Poller.
type wakeSource struct {
	fd  int
	buf [8]byte
}

func newWakeSource() (*wakeSource, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &wakeSource{fd: fd}, nil
}

func (w *wakeSource) Fd() int { return w.fd }

// Notify increments the eventfd counter, waking any pending epoll_wait.
func (w *wakeSource) Notify() error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(w.fd, buf[:])
	if err == unix.EAGAIN {
		// Counter already non-zero and at max: a wake is already pending.
		return nil
	}
	return err
}

// Drain resets the eventfd counter to zero.
func (w *wakeSource) Drain() error {
	_, err := unix.Read(w.fd, w.buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (w *wakeSource) Close() error { return unix.Close(w.fd) }
