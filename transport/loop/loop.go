package loop

import (
	"sync"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// Endpoint is one end of an in-memory transport pair.
type Endpoint struct {
	mu     sync.Mutex
	inbox  []byte // bytes readable from this end
	peer   *Endpoint
	closed bool
	broken bool
}

// Pair returns two connected endpoints. Writes to a become readable
// from b and vice versa.
func Pair() (a, b *Endpoint) {
	a = &Endpoint{}
	b = &Endpoint{}
	a.peer = b
	b.peer = a
	return a, b
}

// Read copies buffered bytes into buf. Returns (0, pkg.ErrWouldBlock)
// when nothing is buffered, and pkg.ErrTransportLost once the pair is
// broken and drained or this end is closed.
func (e *Endpoint) Read(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, pkg.ErrTransportLost
	}
	if len(e.inbox) == 0 {
		if e.broken {
			return 0, pkg.ErrTransportLost
		}
		return 0, pkg.ErrWouldBlock
	}

	n := copy(buf, e.inbox)
	e.inbox = e.inbox[n:]
	return n, nil
}

// Write appends data to the peer's inbox.
func (e *Endpoint) Write(data []byte) (int, error) {
	e.mu.Lock()
	if e.closed || e.broken {
		e.mu.Unlock()
		return 0, pkg.ErrTransportLost
	}
	peer := e.peer
	e.mu.Unlock()

	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return 0, pkg.ErrTransportLost
	}
	peer.inbox = append(peer.inbox, data...)
	return len(data), nil
}

// Close closes this end. Pending peer bytes remain readable until the
// peer drains them.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	peer := e.peer
	e.mu.Unlock()

	peer.mu.Lock()
	peer.broken = true
	peer.mu.Unlock()
	return nil
}

// Break severs the pair abruptly: both ends report pkg.ErrTransportLost
// on all further operations once their buffered bytes are drained.
func (e *Endpoint) Break() {
	e.mu.Lock()
	e.broken = true
	peer := e.peer
	e.mu.Unlock()

	peer.mu.Lock()
	peer.broken = true
	peer.mu.Unlock()
}

// Buffered returns the number of bytes waiting to be read from this end.
func (e *Endpoint) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inbox)
}
