package rsocket

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Socket uniquely owns an fd: >=0 while valid, -1 once moved-out/closed.
// Close is safe to call more than once.
type Socket struct {
	fd     int32 // atomic so Close is safe from any goroutine
	once   sync.Once
	local  net.Addr
	remote net.Addr
}

// Fd returns the current fd, or -1 if the Socket has been closed.
func (s *Socket) Fd() int { return int(atomic.LoadInt32(&s.fd)) }

// LocalAddr returns the bound address of a listening socket; RemoteAddr
// returns the peer address of an accepted socket. Each is nil on the
// other kind of socket.
func (s *Socket) LocalAddr() net.Addr  { return s.local }
func (s *Socket) RemoteAddr() net.Addr { return s.remote }

// Close closes the fd exactly once, whichever goroutine calls first.
func (s *Socket) Close() error {
	var err error
	s.once.Do(func() {
		fd := atomic.SwapInt32(&s.fd, -1)
		if fd >= 0 {
			err = os.NewSyscallError("close", unix.Close(int(fd)))
		}
	})
	return err
}

// ListenOptions configures the socket options applied to a listener and
// inherited by its accepted sockets (spec §6).
type ListenOptions struct {
	ReuseAddr    bool
	ReusePort    bool
	TCPNoDelay   bool
	RecvBufBytes int
	SendBufBytes int
	Backlog      int // 0 => platform default backlog
}

// SetKeepAlivePeriod enables TCP keepalive with the given period on fd.
func SetKeepAlivePeriod(fd, secs int) error {
	if secs <= 0 {
		return errors.New("rsocket: invalid keepalive duration")
	}
	if err := os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)); err != nil {
		return err
	}
	if err := os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, secs)); err != nil {
		return err
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, secs))
}

// SetNoDelay toggles TCP_NODELAY on fd.
func SetNoDelay(fd int, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v))
}

func setsockoptBool(fd, opt int, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, opt, v))
}

func tcp4SockAddr(addr string) (*unix.SockaddrInet4, *net.TCPAddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, nil, err
	}
	if len(tcpAddr.IP) == 0 {
		tcpAddr.IP = net.IPv4zero
	}
	ip4 := tcpAddr.IP.To4()
	if ip4 == nil {
		return nil, nil, &net.AddrError{Err: "non-IPv4 address", Addr: tcpAddr.IP.String()}
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	copy(sa.Addr[:], ip4)
	return sa, tcpAddr, nil
}

var ipv4InIPv6Prefix = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	if v, ok := sa.(*unix.SockaddrInet4); ok {
		ip := make(net.IP, 16)
		copy(ip[0:12], ipv4InIPv6Prefix)
		copy(ip[12:16], v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	}
	return nil
}

// boundAddr returns fd's actual local address via getsockname, used after
// bind so a caller requesting port 0 (ephemeral) learns the port the
// kernel actually assigned instead of echoing back the requested 0.
func boundAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	addr := sockaddrToTCPAddr(sa)
	if addr == nil {
		return nil, &net.AddrError{Err: "unsupported sockaddr family"}
	}
	return addr, nil
}

func applyCommonOpts(fd int, opts ListenOptions) error {
	if opts.ReuseAddr {
		if err := setsockoptBool(fd, unix.SO_REUSEADDR, true); err != nil {
			return err
		}
	}
	if opts.ReusePort {
		if err := setsockoptBool(fd, unix.SO_REUSEPORT, true); err != nil {
			return err
		}
	}
	if opts.TCPNoDelay {
		if err := SetNoDelay(fd, true); err != nil {
			return err
		}
	}
	if opts.RecvBufBytes > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBufBytes)
	}
	if opts.SendBufBytes > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufBytes)
	}
	return nil
}
