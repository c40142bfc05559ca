package goreact

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/goreact/goreact/internal/rlog"
)

// Poller is the Linux epoll-backed readiness multiplexer (spec §4.1, §9's
// "raw pointers in poller events" note). Ported from the teacher's
// Epoller in internal/netpoll/epoll_netpoll.go, restructured so the poller
// itself owns the {fd -> Channel} map and the epoll_wait loop hands back
// strong *Channel references built under the same lock that guards
// Update/Remove — a kernel event's fd is only ever used as a map key here,
// never dereferenced as a pointer, which is exactly the use-after-free
// class spec §9 calls out in the source design this replaces.
type Poller struct {
	epfd int

	mu       sync.Mutex
	channels map[int]*Channel

	eventBuf []unix.EpollEvent
}

// NewPoller creates and opens a new epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Poller{
		epfd:     epfd,
		channels: make(map[int]*Channel),
		eventBuf: make([]unix.EpollEvent, MaxEventNums),
	}, nil
}

func toEpollEvents(m InterestMask) uint32 {
	var ev uint32
	if m.has(Read) {
		ev |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if m.has(PeerClosed) {
		ev |= unix.EPOLLRDHUP
	}
	if m.has(Write) {
		ev |= unix.EPOLLOUT
	}
	if m.has(EdgeTriggered) {
		ev |= unix.EPOLLET
	}
	return ev
}

func fromEpollEvents(ev uint32) InterestMask {
	var m InterestMask
	if ev&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		m |= Read
	}
	if ev&unix.EPOLLPRI != 0 {
		m |= Priority
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= Write
	}
	if ev&unix.EPOLLRDHUP != 0 {
		m |= PeerClosed
	}
	if ev&unix.EPOLLHUP != 0 {
		m |= HangUp
	}
	if ev&unix.EPOLLERR != 0 {
		m |= Error
	}
	return m
}

// isPollerRace reports the errno set spec §4.1/§7 kind 4 says must be
// swallowed as a benign race between two threads handling the same fd's
// close.
func isPollerRace(err error) bool {
	return err == unix.EBADF || err == unix.ENOENT || err == unix.EEXIST
}

// Update registers ch's fd if new, or modifies its interest if already
// registered. Called only from ch's owning Dispatcher goroutine.
func (p *Poller) Update(ch *Channel) error {
	if ch.IsClosed() || ch.fd < 0 {
		return nil
	}
	p.mu.Lock()
	_, known := p.channels[ch.fd]
	if !known {
		p.channels[ch.fd] = ch
	}
	p.mu.Unlock()

	op := unix.EPOLL_CTL_MOD
	if !known {
		op = unix.EPOLL_CTL_ADD
	}
	ev := &unix.EpollEvent{Fd: int32(ch.fd), Events: toEpollEvents(ch.interest)}
	if err := unix.EpollCtl(p.epfd, op, ch.fd, ev); err != nil {
		if isPollerRace(err) {
			return nil
		}
		rlog.Error("epoll_ctl update fd", ch.fd, "error:", err)
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// Remove deregisters ch's fd and drops the strong reference.
func (p *Poller) Remove(ch *Channel) error {
	p.mu.Lock()
	delete(p.channels, ch.fd)
	p.mu.Unlock()

	if ch.fd < 0 {
		return nil
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ch.fd, nil); err != nil {
		if isPollerRace(err) {
			return nil
		}
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// Wait blocks up to timeoutMs and returns the Channels that became ready,
// each with its received mask already set, built from strong references
// captured under p.mu.
func (p *Poller) Wait(timeoutMs int) ([]*Channel, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]*Channel, 0, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		ch, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue // raced with a Remove between epoll_wait and here
		}
		ch.setReceived(fromEpollEvents(ev.Events))
		ready = append(ready, ch)
	}
	p.mu.Unlock()
	return ready, nil
}

// Close shuts down the epoll instance.
func (p *Poller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.epfd))
}
