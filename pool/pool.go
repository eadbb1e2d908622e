package pool

import (
	"sync/atomic"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// Default pool geometry. Eight 512-byte buffers cover a full forwarding
// pass in each direction with headroom for handshake traffic while
// staying inside a small static memory budget.
const (
	DefaultCount    = 8
	DefaultCapacity = 512
)

// Owner tags the current holder of a buffer.
type Owner uint32

// Buffer owner values.
const (
	OwnerFree       Owner = iota // In the pool, available for acquire
	OwnerIngress                 // Staged by the reading side
	OwnerForwarding              // Held by a forwarding pass
	OwnerEgress                  // Being drained by the writing side
)

// String returns a human-readable owner name.
func (o Owner) String() string {
	switch o {
	case OwnerFree:
		return "free"
	case OwnerIngress:
		return "ingress"
	case OwnerForwarding:
		return "forwarding"
	case OwnerEgress:
		return "egress"
	default:
		return "unknown"
	}
}

// Buffer is a fixed-capacity byte region with a length-in-use and an
// owner tag. Capacity is fixed at pool creation and never changes.
type Buffer struct {
	data  []byte
	n     int
	owner atomic.Uint32
}

// Data returns the full-capacity backing slice for staging a read.
// Only the holder of the buffer may call this.
func (b *Buffer) Data() []byte {
	return b.data
}

// Bytes returns the in-use portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the number of bytes in use.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the fixed capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// SetLen tags the buffer with its length-in-use after a read.
// Returns pkg.ErrBufferTooSmall if n exceeds the buffer capacity.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > len(b.data) {
		return pkg.ErrBufferTooSmall
	}
	b.n = n
	return nil
}

// Owner returns the current owner tag.
func (b *Buffer) Owner() Owner {
	return Owner(b.owner.Load())
}

// Handoff transfers ownership from one non-free owner to another.
// Returns pkg.ErrNotOwned if the buffer is not currently held by from.
func (b *Buffer) Handoff(from, to Owner) error {
	if from == OwnerFree || to == OwnerFree {
		return pkg.ErrNotOwned
	}
	if !b.owner.CompareAndSwap(uint32(from), uint32(to)) {
		return pkg.ErrNotOwned
	}
	return nil
}

// Pool is a fixed set of pre-allocated buffers. All memory is allocated
// in New; Acquire and Release only move ownership tags.
type Pool struct {
	buffers []Buffer
}

// New creates a pool of count buffers, each with the given fixed capacity.
// Non-positive arguments fall back to the package defaults.
func New(count, capacity int) *Pool {
	if count <= 0 {
		count = DefaultCount
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{buffers: make([]Buffer, count)}
	backing := make([]byte, count*capacity)
	for i := range p.buffers {
		p.buffers[i].data = backing[i*capacity : (i+1)*capacity : (i+1)*capacity]
	}
	pkg.LogDebug(pkg.ComponentPool, "pool created",
		"count", count,
		"capacity", capacity)
	return p
}

// Acquire claims a free buffer for the given owner. It never blocks:
// when all buffers are owned it returns pkg.ErrPoolExhausted and the
// caller retries on its next pass.
func (p *Pool) Acquire(owner Owner) (*Buffer, error) {
	if owner == OwnerFree {
		return nil, pkg.ErrNotOwned
	}
	for i := range p.buffers {
		b := &p.buffers[i]
		if b.owner.CompareAndSwap(uint32(OwnerFree), uint32(owner)) {
			b.n = 0
			return b, nil
		}
	}
	return nil, pkg.ErrPoolExhausted
}

// Release returns a buffer to the pool. The caller must hold exclusive
// ownership; releasing a free buffer is rejected with pkg.ErrNotOwned.
// Content is not zeroed.
func (p *Pool) Release(b *Buffer) error {
	if Owner(b.owner.Swap(uint32(OwnerFree))) == OwnerFree {
		return pkg.ErrNotOwned
	}
	return nil
}

// ReleaseOwnedBy reclaims every buffer currently held by the given owner
// and returns the number released. Used during session teardown so a
// torn-down forwarding pass cannot leak buffers.
func (p *Pool) ReleaseOwnedBy(owner Owner) int {
	if owner == OwnerFree {
		return 0
	}
	released := 0
	for i := range p.buffers {
		if p.buffers[i].owner.CompareAndSwap(uint32(owner), uint32(OwnerFree)) {
			released++
		}
	}
	if released > 0 {
		pkg.LogDebug(pkg.ComponentPool, "buffers reclaimed",
			"owner", owner.String(),
			"count", released)
	}
	return released
}

// ReleaseAll reclaims every owned buffer regardless of owner and returns
// the number released. Teardown only; idempotent.
func (p *Pool) ReleaseAll() int {
	released := 0
	for i := range p.buffers {
		if Owner(p.buffers[i].owner.Swap(uint32(OwnerFree))) != OwnerFree {
			released++
		}
	}
	return released
}

// Free returns the number of buffers currently available for acquire.
func (p *Pool) Free() int {
	free := 0
	for i := range p.buffers {
		if Owner(p.buffers[i].owner.Load()) == OwnerFree {
			free++
		}
	}
	return free
}

// Size returns the total number of buffers in the pool.
func (p *Pool) Size() int {
	return len(p.buffers)
}

// Capacity returns the fixed per-buffer capacity.
func (p *Pool) Capacity() int {
	if len(p.buffers) == 0 {
		return 0
	}
	return len(p.buffers[0].data)
}
