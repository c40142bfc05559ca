package rsocket

import (
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestListen4BindsEphemeralPort(t *testing.T) {
	sock, addr, err := Listen4("127.0.0.1:0", ListenOptions{ReuseAddr: true, Backlog: 16})
	if err != nil {
		t.Fatalf("Listen4: %v", err)
	}
	defer sock.Close()

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("expected *net.TCPAddr, got %T", addr)
	}
	if tcpAddr.Port == 0 {
		t.Fatal("expected a resolved ephemeral port, got 0")
	}
	if sock.Fd() < 0 {
		t.Fatal("expected a valid fd")
	}
}

func TestSocketCloseIsIdempotent(t *testing.T) {
	sock, _, err := Listen4("127.0.0.1:0", ListenOptions{Backlog: 16})
	if err != nil {
		t.Fatalf("Listen4: %v", err)
	}

	if err := sock.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got: %v", err)
	}
	if sock.Fd() != -1 {
		t.Fatalf("expected fd == -1 after Close, got %d", sock.Fd())
	}
}

func TestAccept4ReturnsEAGAINWhenQueueEmpty(t *testing.T) {
	sock, _, err := Listen4("127.0.0.1:0", ListenOptions{Backlog: 16})
	if err != nil {
		t.Fatalf("Listen4: %v", err)
	}
	defer sock.Close()

	_, err = Accept4(sock.Fd())
	if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		t.Fatalf("expected EAGAIN on an empty accept queue, got %v", err)
	}
}

func TestAccept4PopulatesRemoteAddr(t *testing.T) {
	sock, addr, err := Listen4("127.0.0.1:0", ListenOptions{Backlog: 16})
	if err != nil {
		t.Fatalf("Listen4: %v", err)
	}
	defer sock.Close()

	dialDone := make(chan error, 1)
	go func() {
		conn, err := net.Dial("tcp", addr.String())
		if err == nil {
			defer conn.Close()
		}
		dialDone <- err
	}()

	var accepted *Socket
	for i := 0; i < 1000; i++ {
		accepted, err = Accept4(sock.Fd())
		if err == nil {
			break
		}
		if err != unix.EAGAIN {
			t.Fatalf("Accept4: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if accepted == nil {
		t.Fatal("never accepted the dialed connection")
	}
	defer accepted.Close()

	if accepted.RemoteAddr() == nil {
		t.Fatal("expected RemoteAddr to be populated for an accepted socket")
	}
	if err := <-dialDone; err != nil {
		t.Fatalf("dial: %v", err)
	}
}
