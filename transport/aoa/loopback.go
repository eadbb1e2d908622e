package aoa

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
	"github.com/madkoding/esp32-android-auto-wifi/transport"
	"github.com/madkoding/esp32-android-auto-wifi/transport/loop"
)

// LoopbackPort is an in-memory Port: it answers the AOA vendor requests
// like an accessory-capable device and hands out one end of a loop pair
// as the accessory stream. Tests and the reference daemon drive the
// other end via HeadUnit.
type LoopbackPort struct {
	mu       sync.Mutex
	protocol uint16
	strings  [stringCount]string
	started  bool
	startCh  chan struct{}
	host     *loop.Endpoint
	device   *loop.Endpoint
	closed   bool
}

// NewLoopbackPort creates a loopback port speaking accessory protocol 2.
func NewLoopbackPort() *LoopbackPort {
	return &LoopbackPort{
		protocol: 2,
		startCh:  make(chan struct{}, 1),
	}
}

// SetProtocol overrides the protocol version the port reports.
// A version of 0 makes negotiation fail, for tests.
func (p *LoopbackPort) SetProtocol(v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.protocol = v
}

// Strings returns the identity strings received so far, indexed by
// wire order.
func (p *LoopbackPort) Strings() [6]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strings
}

// Started reports whether the start command has been received.
func (p *LoopbackPort) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Control answers the AOA vendor requests.
func (p *LoopbackPort) Control(ctx context.Context, setup *SetupPacket, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, pkg.ErrClosed
	}

	switch setup.Request {
	case RequestGetProtocol:
		if len(data) < 2 {
			return 0, pkg.ErrBufferTooSmall
		}
		binary.LittleEndian.PutUint16(data[:2], p.protocol)
		return 2, nil

	case RequestSendString:
		if int(setup.Index) >= len(p.strings) {
			return 0, pkg.ErrInvalidState
		}
		s := data
		if len(s) > 0 && s[len(s)-1] == 0 {
			s = s[:len(s)-1] // strip NUL terminator
		}
		p.strings[setup.Index] = string(s)
		return len(data), nil

	case RequestStart:
		// A fresh pair per start, so each session re-enumerates cleanly.
		p.started = true
		p.host, p.device = loop.Pair()
		select {
		case p.startCh <- struct{}{}:
		default:
		}
		return 0, nil

	default:
		return 0, pkg.ErrNotSupported
	}
}

// WaitAttach waits for the start command, then returns the accessory
// stream. The loopback device "re-enumerates" instantly.
func (p *LoopbackPort) WaitAttach(ctx context.Context) (transport.Transport, error) {
	select {
	case <-p.startCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, pkg.ErrClosed
	}
	return p.host, nil
}

// HeadUnit returns the far end of the accessory stream, standing in for
// the car head unit. Nil until the start command has been received.
func (p *LoopbackPort) HeadUnit() *loop.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

// Close releases the port and severs the accessory stream.
func (p *LoopbackPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.host != nil {
		p.host.Break()
	}
	return nil
}

// Compile-time interface check
var _ Port = (*LoopbackPort)(nil)
