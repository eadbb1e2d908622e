package bridge

import (
	"sync/atomic"

	"github.com/madkoding/esp32-android-auto-wifi/transport"
)

// Connection is one logical half-link of the bridge: a transport plus
// attachment status and per-side byte counters. The forwarder holds at
// most two, one per kind, and runs only while both are attached.
type Connection struct {
	kind     transport.Kind
	stream   transport.Transport
	attached atomic.Bool
	received atomic.Uint64
	sent     atomic.Uint64
}

// NewConnection wraps stream as an attached connection of the given kind.
func NewConnection(kind transport.Kind, stream transport.Transport) *Connection {
	c := &Connection{kind: kind, stream: stream}
	c.attached.Store(true)
	return c
}

// Kind returns which bridge side this connection serves.
func (c *Connection) Kind() transport.Kind {
	return c.kind
}

// Attached reports whether the connection is still attached.
func (c *Connection) Attached() bool {
	return c.attached.Load()
}

// Received returns the total bytes read from this side.
func (c *Connection) Received() uint64 {
	return c.received.Load()
}

// Sent returns the total bytes written to this side.
func (c *Connection) Sent() uint64 {
	return c.sent.Load()
}

// Read polls the transport and accounts received bytes.
func (c *Connection) Read(buf []byte) (int, error) {
	n, err := c.stream.Read(buf)
	if n > 0 {
		c.received.Add(uint64(n))
	}
	return n, err
}

// Write writes to the transport and accounts sent bytes.
func (c *Connection) Write(data []byte) (int, error) {
	n, err := c.stream.Write(data)
	if n > 0 {
		c.sent.Add(uint64(n))
	}
	return n, err
}

// Close detaches the connection and closes the transport. Idempotent.
func (c *Connection) Close() error {
	if !c.attached.Swap(false) {
		return nil
	}
	return c.stream.Close()
}

// Compile-time interface check
var _ transport.Transport = (*Connection)(nil)
