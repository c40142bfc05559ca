package goreact

import (
	"fmt"
	"net"
)

// Address is the immutable {ipv4, port} value object of spec §3,
// convertible to/from a kernel sockaddr via internal/rsocket.
type Address struct {
	IP   net.IP
	Port int
}

// NewAddress builds an Address from an IP and port.
func NewAddress(ip net.IP, port int) Address {
	return Address{IP: ip, Port: port}
}

// ResolveAddress parses a "host:port" string into an Address.
func ResolveAddress(hostport string) (Address, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", hostport)
	if err != nil {
		return Address{}, err
	}
	ip := tcpAddr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	return Address{IP: ip, Port: tcpAddr.Port}, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
}

// TCPAddr views the Address as a *net.TCPAddr, the representation the
// rest of the standard library (and the corpus) expects.
func (a Address) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: a.IP, Port: a.Port}
}

// AddressFromNetAddr converts whatever internal/rsocket hands back from
// getsockname/getpeername (always a *net.TCPAddr in practice) into an
// Address. A nil or non-TCP input yields the zero Address.
func AddressFromNetAddr(a net.Addr) Address {
	tcp, ok := a.(*net.TCPAddr)
	if !ok || tcp == nil {
		return Address{}
	}
	return Address{IP: tcp.IP, Port: tcp.Port}
}
