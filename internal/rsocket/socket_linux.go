// Package rsocket wraps the raw socket syscalls the reactor needs: bind,
// listen, accept, setsockopt, and the uniquely-owned-fd Socket type of
// spec §3. Ported from the teacher's internal/socket/linux_tcp_socket.go,
// generalized from a free-function API into a Socket value that owns its
// fd and closes it exactly once.
package rsocket

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// listenerBacklog mirrors /proc/sys/net/core/somaxconn the way the
// teacher's ListenerBacklogMaxSize does, falling back to SOMAXCONN.
func listenerBacklog() int {
	f, err := os.Open("/proc/sys/net/core/somaxconn")
	if err != nil {
		return unix.SOMAXCONN
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil {
		return unix.SOMAXCONN
	}
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return unix.SOMAXCONN
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n == 0 {
		return unix.SOMAXCONN
	}
	return n
}

// Listen4 creates a non-blocking IPv4 TCP listening socket bound to addr,
// applying opts, and returns the Socket plus the resolved net.Addr. Linux
// lets socket() set SOCK_NONBLOCK|SOCK_CLOEXEC directly, avoiding the
// separate fcntl call the BSD/Darwin path needs.
func Listen4(addr string, opts ListenOptions) (*Socket, net.Addr, error) {
	sa, tcpAddr, err := tcp4SockAddr(addr)
	if err != nil {
		return nil, nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, nil, os.NewSyscallError("socket", err)
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
		backlog = listenerBacklog()
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

// Accept4 drains one pending connection off the listener, returning a new
// non-blocking Socket carrying the remote address, or the raw accept()
// error (typically EAGAIN) if the accept queue is currently empty.
func Accept4(listenFD int) (*Socket, error) {
	connFD, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, err
	}
	s := &Socket{remote: sockaddrToTCPAddr(sa)}
	s.fd = int32(connFD)
	return s, nil
}
