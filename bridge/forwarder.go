package bridge

import (
	"sync"
	"time"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
	"github.com/madkoding/esp32-android-auto-wifi/pool"
	"github.com/madkoding/esp32-android-auto-wifi/transport"
)

// DefaultTick is the forwarding poll interval.
const DefaultTick = time.Millisecond

// session is the forwarder's per-session state: the two attached
// connections and the loss report, fired at most once per session.
type session struct {
	wifi     *Connection
	usb      *Connection
	onLost   func(transport.Kind)
	lostOnce sync.Once
	stopCh   chan struct{}
}

func (s *session) reportLost(kind transport.Kind) {
	s.lostOnce.Do(func() {
		pkg.LogWarn(pkg.ComponentForward, "transport lost",
			"side", kind.String())
		if s.onLost != nil {
			s.onLost(kind)
		}
	})
}

// Forwarder moves bytes bidirectionally between the two attached
// connections while the machine is in StateForwarding. Each direction
// runs its own tick-driven polling task; the directions share only the
// buffer pool.
type Forwarder struct {
	pool    *pool.Pool
	machine *Machine
	stats   *Stats
	tick    time.Duration

	mu  sync.Mutex
	cur *session
	wg  sync.WaitGroup
}

// NewForwarder creates a forwarder over the given pool, machine, and
// stats. A non-positive tick uses DefaultTick.
func NewForwarder(p *pool.Pool, m *Machine, s *Stats, tick time.Duration) *Forwarder {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Forwarder{pool: p, machine: m, stats: s, tick: tick}
}

// Start launches the two forwarding tasks for a new session. onLost is
// invoked at most once, from a forwarding task, when either transport
// fails; the receiver reports the loss to the state machine.
// Returns pkg.ErrAlreadyRunning if a session is already being forwarded.
func (f *Forwarder) Start(wifi, usb *Connection, onLost func(transport.Kind)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur != nil {
		return pkg.ErrAlreadyRunning
	}

	s := &session{
		wifi:   wifi,
		usb:    usb,
		onLost: onLost,
		stopCh: make(chan struct{}),
	}
	f.cur = s
	f.wg.Add(2)
	go f.run(s, s.wifi, s.usb, f.stats.addWiFiToUSB)
	go f.run(s, s.usb, s.wifi, f.stats.addUSBToWiFi)

	pkg.LogInfo(pkg.ComponentForward, "forwarding started")
	return nil
}

// Stop halts the forwarding tasks and reclaims every buffer the session
// still owns. Idempotent; safe to call with no session running.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	s := f.cur
	f.cur = nil
	f.mu.Unlock()
	if s == nil {
		return
	}

	close(s.stopCh)
	f.wg.Wait()

	// The tasks release their buffers on every exit path, but a torn
	// down session must never leak a buffer into the next one.
	reclaimed := f.pool.ReleaseOwnedBy(pool.OwnerIngress)
	reclaimed += f.pool.ReleaseOwnedBy(pool.OwnerForwarding)
	reclaimed += f.pool.ReleaseOwnedBy(pool.OwnerEgress)
	pkg.LogInfo(pkg.ComponentForward, "forwarding stopped",
		"reclaimed", reclaimed)
}

// Running reports whether a session is currently being forwarded.
func (f *Forwarder) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur != nil
}

// run is one direction's polling task. On each tick it drains available
// source bytes one buffer at a time until the source would block, then
// sleeps until the next tick. It exits when the session stops or its
// transport fails.
func (f *Forwarder) run(s *session, src, dst *Connection, account func(int)) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		for {
			moved, ok := f.pass(s, src, dst, account)
			if !ok {
				return
			}
			if !moved {
				break
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
		}
	}
}

// pass performs one forwarding pass: acquire a buffer, poll the source,
// drain the read bytes to the destination, release the buffer. The
// buffer is never held across the pass boundary. Returns whether bytes
// moved and whether the direction should keep running.
func (f *Forwarder) pass(s *session, src, dst *Connection, account func(int)) (moved, ok bool) {
	if f.machine.State() != StateForwarding {
		return false, true
	}

	buf, err := f.pool.Acquire(pool.OwnerIngress)
	if err != nil {
		// Backpressure: source bytes stay queued at the transport
		// until a buffer frees up next pass.
		f.stats.addPoolSkip()
		return false, true
	}

	n, err := src.Read(buf.Data())
	if err != nil {
		f.pool.Release(buf)
		if transport.IsWouldBlock(err) {
			return false, true
		}
		s.reportLost(src.Kind())
		return false, false
	}
	if n == 0 {
		f.pool.Release(buf)
		return false, true
	}

	if err := buf.SetLen(n); err != nil {
		f.pool.Release(buf)
		return false, true
	}
	if err := buf.Handoff(pool.OwnerIngress, pool.OwnerEgress); err != nil {
		f.pool.Release(buf)
		return false, true
	}

	err = transport.WriteAll(dst, buf.Bytes())
	f.pool.Release(buf)
	if err != nil {
		s.reportLost(dst.Kind())
		return false, false
	}

	account(n)
	return true, true
}
