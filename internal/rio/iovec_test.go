package rio

import (
	"testing"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestWritevSendsAllBuffersAsOneMessage(t *testing.T) {
	a, b := socketpair(t)

	n, err := Writev(a, [][]byte{[]byte("hel"), []byte("lo"), []byte("!")})
	if err != nil {
		t.Fatalf("Writev: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 bytes written, got %d", n)
	}

	buf := make([]byte, 16)
	got, err := unix.Read(b, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:got]) != "hello!" {
		t.Fatalf("expected %q, got %q", "hello!", buf[:got])
	}
}

func TestReadvFillsBuffersInOrder(t *testing.T) {
	a, b := socketpair(t)

	if _, err := unix.Write(a, []byte("goreact!")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	first := make([]byte, 3)
	second := make([]byte, 5)
	n, err := Readv(b, [][]byte{first, second})
	if err != nil {
		t.Fatalf("Readv: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected 8 bytes read, got %d", n)
	}
	if string(first) != "gor" {
		t.Fatalf("expected first iovec %q, got %q", "gor", first)
	}
	if string(second) != "eact!" {
		t.Fatalf("expected second iovec %q, got %q", "eact!", second)
	}
}

func TestReadvEmptyIovecIsNoop(t *testing.T) {
	_, b := socketpair(t)
	n, err := Readv(b, nil)
	if err != nil {
		t.Fatalf("Readv: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestWritevEmptyIovecIsNoop(t *testing.T) {
	a, _ := socketpair(t)
	n, err := Writev(a, nil)
	if err != nil {
		t.Fatalf("Writev: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}
