// Package rio wraps vectored I/O (readv/writev), ported from the
// teacher's internal/io/io_linux.go. Unlike the teacher, this is not
// restricted to Linux: golang.org/x/sys/unix exposes Readv/Writev on
// every unix-like GOOS the framework supports (Linux, Darwin).
package rio

import "golang.org/x/sys/unix"

// Writev writes iov's buffers as a single scatter/gather syscall, used by
// Connection.doSend to write the 4-byte length header and payload without
// copying them into one contiguous buffer first.
func Writev(fd int, iov [][]byte) (int, error) {
	if len(iov) == 0 {
		return 0, nil
	}
	return unix.Writev(fd, iov)
}

// Readv reads into iov's buffers as a single scatter/gather syscall.
func Readv(fd int, iov [][]byte) (int, error) {
	if len(iov) == 0 {
		return 0, nil
	}
	return unix.Readv(fd, iov)
}
