package goreact

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	o := loadOptions()
	assert.Equal(t, runtime.NumCPU(), o.NumIOWorkers)
	assert.Equal(t, 60*time.Second, o.TimerInterval)
	assert.Equal(t, 300*time.Second, o.ConnectionTimeout)
	assert.True(t, o.ReuseAddr)
	assert.False(t, o.ReusePort)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	o := loadOptions(
		WithListenAddr("0.0.0.0:9999"),
		WithNumIOWorkers(4),
		WithComputePoolSize(8),
		WithTimerInterval(5*time.Second),
		WithConnectionTimeout(10*time.Second),
		WithLockOSThread(true),
		WithReusePort(true),
		WithTCPNoDelay(true),
		WithTCPKeepAlive(30*time.Second),
		WithSocketRecvBuffer(4096),
		WithSocketSendBuffer(4096),
	)

	assert.Equal(t, "0.0.0.0:9999", o.ListenAddr)
	assert.Equal(t, 4, o.NumIOWorkers)
	assert.Equal(t, 8, o.ComputePoolSize)
	assert.Equal(t, 5*time.Second, o.TimerInterval)
	assert.Equal(t, 10*time.Second, o.ConnectionTimeout)
	assert.True(t, o.LockOSThread)
	assert.True(t, o.ReusePort)
	assert.True(t, o.TCPNoDelay)
	assert.Equal(t, 30*time.Second, o.TCPKeepAlive)
	assert.Equal(t, 4096, o.SocketRecvBuffer)
	assert.Equal(t, 4096, o.SocketSendBuffer)
}

func TestListenOptionsTranslation(t *testing.T) {
	o := loadOptions(WithReusePort(true), WithTCPNoDelay(true), WithSocketRecvBuffer(2048))
	lo := o.listenOptions()

	assert.True(t, lo.ReuseAddr)
	assert.True(t, lo.ReusePort)
	assert.True(t, lo.TCPNoDelay)
	assert.Equal(t, 2048, lo.RecvBufBytes)
	assert.Equal(t, MaxConnections, lo.Backlog)
}

func TestDefaultThreadPoolSize(t *testing.T) {
	n := defaultThreadPoolSize()
	assert.GreaterOrEqual(t, n, 1)
}
