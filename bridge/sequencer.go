package bridge

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
	"github.com/madkoding/esp32-android-auto-wifi/pool"
	"github.com/madkoding/esp32-android-auto-wifi/protocol"
	"github.com/madkoding/esp32-android-auto-wifi/transport"
	"github.com/madkoding/esp32-android-auto-wifi/transport/aoa"
	"github.com/madkoding/esp32-android-auto-wifi/transport/tcp"
)

// Default handshake stage bounds, matching the firmware's 5 second
// heartbeat and recovery intervals.
const (
	DefaultHelloTimeout     = 5 * time.Second
	DefaultNegotiateTimeout = 5 * time.Second
	DefaultAttachTimeout    = 5 * time.Second
	DefaultProbeInterval    = 5 * time.Second
)

// Config describes one bridge instance.
type Config struct {
	// AP is the access point and bridge socket configuration.
	AP tcp.Config

	// Identity holds the AOA accessory strings announced to the phone.
	Identity aoa.Identity

	// Stage timeouts. Each handshake stage that overruns its bound
	// fails the session to StateError.
	HelloTimeout     time.Duration
	NegotiateTimeout time.Duration
	AttachTimeout    time.Duration

	// Backoff delays Error recovery; ProbeInterval paces keepalive
	// pings while a client is connected but not yet forwarding.
	Backoff       time.Duration
	ProbeInterval time.Duration

	// Tick is the forwarding poll interval.
	Tick time.Duration

	// Pool geometry. Zero values use the pool package defaults.
	PoolCount    int
	PoolCapacity int
}

// DefaultConfig returns the firmware-default bridge configuration.
func DefaultConfig() Config {
	return Config{
		AP:       tcp.DefaultConfig(),
		Identity: aoa.DefaultIdentity(),
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Identity == (aoa.Identity{}) {
		c.Identity = aoa.DefaultIdentity()
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = DefaultHelloTimeout
	}
	if c.NegotiateTimeout <= 0 {
		c.NegotiateTimeout = DefaultNegotiateTimeout
	}
	if c.AttachTimeout <= 0 {
		c.AttachTimeout = DefaultAttachTimeout
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	return c
}

// Sequencer drives bridge bring-up: AP start, client accept, hello
// exchange, AOA negotiation, forwarding, and error recovery. It is the
// single authority over the state machine; every transition happens on
// its goroutine.
type Sequencer struct {
	cfg     Config
	port    aoa.Port
	machine *Machine
	stats   *Stats
	pool    *pool.Pool
	fwd     *Forwarder
	builder protocol.Builder

	lnMu     sync.Mutex
	listener *tcp.Listener

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSequencer creates a sequencer bridging the configured access point
// to the accessory behind port.
func NewSequencer(cfg Config, port aoa.Port) *Sequencer {
	cfg = cfg.withDefaults()
	m := NewMachine(cfg.Backoff)
	st := &Stats{}
	p := pool.New(cfg.PoolCount, cfg.PoolCapacity)
	return &Sequencer{
		cfg:     cfg,
		port:    port,
		machine: m,
		stats:   st,
		pool:    p,
		fwd:     NewForwarder(p, m, st, cfg.Tick),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Machine returns the state machine for read-only observation.
func (s *Sequencer) Machine() *Machine {
	return s.machine
}

// Stats returns the session counters for read-only observation.
func (s *Sequencer) Stats() *Stats {
	return s.stats
}

// Pool returns the buffer pool for read-only observation.
func (s *Sequencer) Pool() *pool.Pool {
	return s.pool
}

// Rejected returns the number of client connections rejected so far.
// Zero before the access point is up.
func (s *Sequencer) Rejected() uint64 {
	s.lnMu.Lock()
	ln := s.listener
	s.lnMu.Unlock()
	if ln == nil {
		return 0
	}
	return ln.Rejected()
}

// Addr returns the bound bridge socket address, or nil before the
// access point is up.
func (s *Sequencer) Addr() net.Addr {
	s.lnMu.Lock()
	ln := s.listener
	s.lnMu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Addr()
}

// Run drives the bridge until Stop is called. It owns every state
// transition; session failures recover automatically through the
// Error backoff. Returns pkg.ErrAlreadyRunning on a second call.
func (s *Sequencer) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.closeListener()

	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		switch s.machine.State() {
		case StateInit:
			s.machine.Apply(EventAPStartRequested, "")
		case StateApStarting:
			s.startAP()
		case StateApReady:
			s.serveOne()
		case StateError:
			s.recover()
		default:
			// Session states are only ever left behind by a bug in
			// the session path.
			s.machine.Apply(EventFault, "sequencer desynchronized")
		}
	}
}

// Stop halts the run loop and tears down the active session. Idempotent.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.running.Load() {
		<-s.done
	}
}

// startAP binds the bridge socket. The socket survives Error recovery,
// so a session failure does not rebind.
func (s *Sequencer) startAP() {
	if s.listener != nil {
		s.machine.Apply(EventAPStarted, "")
		return
	}
	ln, err := tcp.Listen(s.cfg.AP)
	if err != nil {
		s.machine.Apply(EventAPStartFailed, err.Error())
		return
	}
	s.lnMu.Lock()
	s.listener = ln
	s.lnMu.Unlock()
	s.machine.Apply(EventAPStarted, "")
}

func (s *Sequencer) closeListener() {
	s.lnMu.Lock()
	ln := s.listener
	s.listener = nil
	s.lnMu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

// recover waits out the Error backoff, then re-enters ApStarting.
func (s *Sequencer) recover() {
	if wait := time.Until(s.machine.RetryAt()); wait > 0 {
		select {
		case <-s.stopCh:
			return
		case <-time.After(wait):
		}
	}
	s.machine.Apply(EventBackoffElapsed, "")
}

// serveOne waits for the next client and runs its session to completion.
func (s *Sequencer) serveOne() {
	conn, err := s.listener.Next(s.stopCh)
	if err != nil {
		// Closed listener or stop request; the run loop exits on its
		// next pass.
		return
	}
	s.session(conn)
}

// session drives one client from accept through forwarding to teardown.
// On return the machine is back in ApReady, Error, or unwinding for Stop.
func (s *Sequencer) session(conn *tcp.Conn) {
	s.listener.SetBusy(true)
	defer s.listener.SetBusy(false)

	wifi := NewConnection(transport.KindWiFi, conn)
	defer wifi.Close()

	sessionID := newSessionID()
	s.stats.Reset(sessionID)
	s.machine.Apply(EventClientAccepted, "")
	pkg.LogInfo(pkg.ComponentSequencer, "session started",
		"session", sessionID)

	if err := s.exchangeHello(wifi, sessionID); err != nil {
		s.failSession("hello exchange", err)
		return
	}
	s.machine.Apply(EventHelloExchanged, "")

	usbStream, err := s.negotiateAccessory()
	if err != nil {
		s.failSession("accessory negotiation", err)
		return
	}
	usb := NewConnection(transport.KindUSB, usbStream)
	defer usb.Close()
	s.machine.Apply(EventAccessoryAttached, "")

	lost := make(chan transport.Kind, 2)
	if err := s.fwd.Start(wifi, usb, func(kind transport.Kind) {
		lost <- kind
	}); err != nil {
		s.machine.Apply(EventFault, err.Error())
		return
	}

	select {
	case kind := <-lost:
		s.fwd.Stop()
		s.machine.Apply(EventTransportLost, "")
		pkg.LogInfo(pkg.ComponentSequencer, "session ended",
			"session", sessionID,
			"side", kind.String())
	case <-s.stopCh:
		s.fwd.Stop()
	}
}

// failSession converts a handshake stage failure into the matching
// state machine event.
func (s *Sequencer) failSession(stage string, err error) {
	pkg.LogWarn(pkg.ComponentSequencer, "session failed",
		"stage", stage,
		"error", err)
	switch {
	case errors.Is(err, pkg.ErrTransportLost):
		s.machine.Apply(EventTransportLost, "")
	case errors.Is(err, pkg.ErrHandshakeTimeout):
		s.machine.Apply(EventHandshakeTimeout, fmt.Sprintf("%s: %v", stage, err))
	default:
		s.machine.Apply(EventHandshakeFailed, fmt.Sprintf("%s: %v", stage, err))
	}
}

// exchangeHello runs the hello/ack pair on the phone stream: wait for
// the phone's handshake request, answer with a response carrying the
// session identifier. Keepalive pings flow while the phone is silent.
func (s *Sequencer) exchangeHello(wifi *Connection, sessionID uint32) error {
	deadline := time.Now().Add(s.cfg.HelloTimeout)
	frame := make([]byte, protocol.FrameLen(protocol.MaxControlSize))
	var hdr protocol.Header
	var req protocol.HandshakeRequest

	for {
		typ, payload, err := s.readFrame(wifi, frame, deadline, &hdr)
		if err != nil {
			return err
		}

		switch typ {
		case protocol.MessageControl:
			if !protocol.ParseHandshakeRequest(payload, &req) {
				return fmt.Errorf("%w: unexpected control message", pkg.ErrHandshakeFailed)
			}
			if req.Version != protocol.Version {
				return fmt.Errorf("%w: protocol version %d", pkg.ErrHandshakeFailed, req.Version)
			}
			resp := protocol.HandshakeResponse{
				Version:   protocol.Version,
				Features:  req.Features,
				SessionID: sessionID,
			}
			var buf [protocol.HandshakeResponseSize]byte
			n := resp.MarshalTo(buf[:])
			return s.writeFrame(wifi, protocol.MessageControl, buf[:n])

		case protocol.MessagePing:
			if err := s.writeFrame(wifi, protocol.MessagePong, payload); err != nil {
				return err
			}

		case protocol.MessagePong:
			// Answer to one of our probes.

		default:
			return fmt.Errorf("%w: %s frame before handshake", pkg.ErrHandshakeFailed, typ)
		}
	}
}

// negotiateAccessory performs the AOA vendor-request sequence and waits
// for the device to re-enumerate as an accessory. Both stages are
// timeout bounded.
func (s *Sequencer) negotiateAccessory() (transport.Transport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NegotiateTimeout)
	neg := aoa.NewNegotiator(s.port, s.cfg.Identity)
	_, err := neg.Negotiate(ctx)
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			return nil, fmt.Errorf("%w: %v", pkg.ErrHandshakeTimeout, err)
		}
		return nil, err
	}

	ctx, cancel = context.WithTimeout(context.Background(), s.cfg.AttachTimeout)
	defer cancel()
	stream, err := s.port.WaitAttach(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: accessory did not re-enumerate", pkg.ErrHandshakeTimeout)
		}
		return nil, fmt.Errorf("%w: %v", pkg.ErrHandshakeFailed, err)
	}
	return stream, nil
}

// readFrame accumulates one complete frame from t, polling until the
// deadline. While the peer is silent a keepalive ping goes out every
// probe interval.
func (s *Sequencer) readFrame(t transport.Transport, buf []byte, deadline time.Time, hdr *protocol.Header) (protocol.MessageType, []byte, error) {
	filled := 0
	lastProbe := time.Now()

	for {
		if time.Now().After(deadline) {
			return 0, nil, fmt.Errorf("%w: no frame from peer", pkg.ErrHandshakeTimeout)
		}

		n, err := t.Read(buf[filled:])
		if err != nil {
			if !transport.IsWouldBlock(err) {
				return 0, nil, err
			}
			if filled == 0 && time.Since(lastProbe) >= s.cfg.ProbeInterval {
				if err := s.writePing(t); err != nil {
					return 0, nil, err
				}
				lastProbe = time.Now()
			}
			time.Sleep(s.cfg.Tick)
			continue
		}
		filled += n

		// The payload length field lands at a fixed offset; once it is
		// in, the total frame size is known.
		if filled < protocol.LenFieldEnd {
			continue
		}
		total := protocol.FrameLen(int(binary.LittleEndian.Uint16(buf[protocol.LenFieldEnd-2 : protocol.LenFieldEnd])))
		if total > len(buf) {
			return 0, nil, fmt.Errorf("%w: frame exceeds handshake buffer", pkg.ErrInvalidFrame)
		}
		if filled < total {
			continue
		}
		return protocol.Parse(buf[:total], hdr)
	}
}

// writeFrame builds and fully writes one frame on channel 0.
func (s *Sequencer) writeFrame(t transport.Transport, typ protocol.MessageType, payload []byte) error {
	frame := make([]byte, protocol.FrameLen(len(payload)))
	if _, err := s.builder.Build(frame, typ, 0, payload); err != nil {
		return err
	}
	return transport.WriteAll(t, frame)
}

func (s *Sequencer) writePing(t transport.Transport) error {
	var payload [protocol.PingSize]byte
	protocol.MarshalPing(payload[:], uint32(time.Now().UnixMilli()))
	return s.writeFrame(t, protocol.MessagePing, payload[:])
}

// newSessionID returns a random non-zero session identifier.
func newSessionID() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano()) | 1
	}
	id := binary.LittleEndian.Uint32(b[:])
	if id == 0 {
		id = 1
	}
	return id
}
