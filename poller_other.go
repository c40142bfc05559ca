//go:build !linux && !darwin

package goreact

import "github.com/goreact/goreact/internal/rerr"

// Poller is the stub readiness multiplexer for platforms with neither
// epoll nor kqueue. It fails fast at construction rather than silently
// no-op'ing, since a no-op poller would hang every Dispatcher loop
// forever on its first Wait.
type Poller struct{}

func NewPoller() (*Poller, error) { return nil, rerr.ErrPollerUnsupported }

func (p *Poller) Update(ch *Channel) error { return rerr.ErrPollerUnsupported }
func (p *Poller) Remove(ch *Channel) error { return rerr.ErrPollerUnsupported }
func (p *Poller) Wait(timeoutMs int) ([]*Channel, error) {
	return nil, rerr.ErrPollerUnsupported
}
func (p *Poller) Close() error { return nil }
