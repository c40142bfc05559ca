package goreact

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAddress(t *testing.T) {
	addr, err := ResolveAddress("127.0.0.1:8888")
	assert.NoError(t, err)
	assert.Equal(t, 8888, addr.Port)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))
}

func TestResolveAddressBadHostport(t *testing.T) {
	_, err := ResolveAddress("not a hostport")
	assert.Error(t, err)
}

func TestAddressString(t *testing.T) {
	a := NewAddress(net.IPv4(127, 0, 0, 1), 9000)
	assert.Equal(t, "127.0.0.1:9000", a.String())
}

func TestAddressTCPAddr(t *testing.T) {
	a := NewAddress(net.IPv4(10, 0, 0, 1), 80)
	tcp := a.TCPAddr()
	assert.Equal(t, 80, tcp.Port)
	assert.True(t, tcp.IP.Equal(net.IPv4(10, 0, 0, 1)))
}

func TestAddressFromNetAddr(t *testing.T) {
	tcp := &net.TCPAddr{IP: net.IPv4(192, 168, 0, 1), Port: 4242}
	a := AddressFromNetAddr(tcp)
	assert.Equal(t, 4242, a.Port)
	assert.True(t, a.IP.Equal(net.IPv4(192, 168, 0, 1)))
}

func TestAddressFromNetAddrNil(t *testing.T) {
	assert.Equal(t, Address{}, AddressFromNetAddr(nil))
}
