package rsocket

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen4 is the Darwin/BSD counterpart of the Linux implementation:
// socket() there has no SOCK_NONBLOCK/SOCK_CLOEXEC flags, so non-blocking
// mode and close-on-exec are applied with separate fcntl calls after
// creation.
func Listen4(addr string, opts ListenOptions) (*Socket, net.Addr, error) {
	sa, tcpAddr, err := tcp4SockAddr(addr)
	if err != nil {
		return nil, nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, nil, os.NewSyscallError("socket", err)
	}
	if err := setNonblockCloexec(fd); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	if err := applyCommonOpts(fd, opts); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	if err := os.NewSyscallError("bind", unix.Bind(fd, sa)); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := os.NewSyscallError("listen", unix.Listen(fd, backlog)); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	boundTCPAddr := tcpAddr
	if tcpAddr.Port == 0 {
		if resolved, err := boundAddr(fd); err == nil {
			if ta, ok := resolved.(*net.TCPAddr); ok {
				boundTCPAddr = ta
			}
		}
	}

	s := &Socket{local: boundTCPAddr}
	s.fd = int32(fd)
	return s, boundTCPAddr, nil
}

// Accept4 drains one pending connection off the listener.
func Accept4(listenFD int) (*Socket, error) {
	connFD, sa, err := unix.Accept(listenFD)
	if err != nil {
		return nil, err
	}
	if err := setNonblockCloexec(connFD); err != nil {
		unix.Close(connFD)
		return nil, err
	}
	s := &Socket{remote: sockaddrToTCPAddr(sa)}
	s.fd = int32(connFD)
	return s, nil
}

func setNonblockCloexec(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return os.NewSyscallError("fcntl nonblock", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		return os.NewSyscallError("fcntl cloexec", err)
	}
	return nil
}
