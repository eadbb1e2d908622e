package tcp

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
	"github.com/madkoding/esp32-android-auto-wifi/transport"
)

// Default access point parameters. These match the bridge firmware
// defaults; none are negotiated at runtime.
const (
	DefaultSSID        = "AndroidAutoWiFi"
	DefaultPassphrase  = "android123"
	DefaultChannel     = 6
	DefaultMaxStations = 1
	DefaultAddress     = "192.168.4.1"
	DefaultPort        = 5288
)

// DefaultPollTimeout bounds a single non-blocking read poll.
const DefaultPollTimeout = time.Millisecond

// DefaultWriteTimeout bounds a single write before the peer is
// considered lost.
const DefaultWriteTimeout = time.Second

// Config describes the access point and bridge socket. The WiFi radio
// parameters are carried for the platform layer and for telemetry; the
// core acts only on Address and Port.
type Config struct {
	SSID        string
	Passphrase  string
	Channel     int
	MaxStations int
	Address     string
	Port        int

	// PollTimeout bounds one non-blocking read poll (default 1ms).
	PollTimeout time.Duration

	// WriteTimeout bounds a single write (default 1s).
	WriteTimeout time.Duration
}

// DefaultConfig returns the firmware-default AP configuration.
func DefaultConfig() Config {
	return Config{
		SSID:        DefaultSSID,
		Passphrase:  DefaultPassphrase,
		Channel:     DefaultChannel,
		MaxStations: DefaultMaxStations,
		Address:     DefaultAddress,
		Port:        DefaultPort,
	}
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.MaxStations == 0 {
		c.MaxStations = DefaultMaxStations
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// addr returns the host:port bind address.
func (c Config) addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Listener accepts the single phone connection for the bridge.
//
// One accepted connection may be pending at a time; while a session is
// active (Busy), every additional inbound connection is closed
// immediately without touching the active session.
type Listener struct {
	cfg Config
	ln  net.Listener

	pending  chan net.Conn
	busy     atomic.Bool
	rejected atomic.Uint64

	closeCh   chan struct{}
	closeOnce sync.Once
}

// Listen binds the bridge socket on the configured AP address and starts
// accepting. A bind failure is reported as pkg.ErrAPConfig.
func Listen(cfg Config) (*Listener, error) {
	cfg = cfg.withDefaults()

	ln, err := net.Listen("tcp", cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrAPConfig, err)
	}

	l := &Listener{
		cfg:     cfg,
		ln:      ln,
		pending: make(chan net.Conn, 1),
		closeCh: make(chan struct{}),
	}
	go l.acceptLoop()

	pkg.LogInfo(pkg.ComponentTransport, "access point bridge socket up",
		"ssid", cfg.SSID,
		"channel", cfg.Channel,
		"maxStations", cfg.MaxStations,
		"addr", ln.Addr().String())
	return l, nil
}

// acceptLoop accepts inbound connections and parks at most one while no
// session is active. Everything else is rejected.
func (l *Listener) acceptLoop() {
	for {
		c, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
			}
			pkg.LogWarn(pkg.ComponentTransport, "accept failed", "error", err)
			continue
		}

		if l.busy.Load() {
			c.Close()
			l.rejected.Add(1)
			pkg.LogWarn(pkg.ComponentTransport, "rejected additional client",
				"remote", c.RemoteAddr().String())
			continue
		}

		select {
		case l.pending <- c:
		default:
			c.Close()
			l.rejected.Add(1)
			pkg.LogWarn(pkg.ComponentTransport, "rejected additional client",
				"remote", c.RemoteAddr().String())
		}
	}
}

// Next returns the next accepted connection, waiting until one arrives,
// done is closed, or the listener is closed.
func (l *Listener) Next(done <-chan struct{}) (*Conn, error) {
	select {
	case c := <-l.pending:
		if tc, ok := c.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		pkg.LogInfo(pkg.ComponentTransport, "client connected",
			"remote", c.RemoteAddr().String())
		return &Conn{
			conn:         c,
			pollTimeout:  l.cfg.PollTimeout,
			writeTimeout: l.cfg.WriteTimeout,
		}, nil
	case <-done:
		return nil, pkg.ErrClosed
	case <-l.closeCh:
		return nil, pkg.ErrClosed
	}
}

// SetBusy marks whether a session currently owns the phone side. While
// busy, inbound connections are rejected at accept time.
func (l *Listener) SetBusy(busy bool) {
	l.busy.Store(busy)
}

// Rejected returns the number of connections rejected so far.
func (l *Listener) Rejected() uint64 {
	return l.rejected.Load()
}

// Addr returns the bound listener address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting and closes the listener socket. Any parked
// pending connection is closed as well.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.ln.Close()
		select {
		case c := <-l.pending:
			c.Close()
		default:
		}
	})
	return err
}

// Conn adapts a TCP connection to the transport.Transport contract.
// Reads are deadline-bounded polls so the forwarding loop never blocks
// on an idle socket.
type Conn struct {
	conn         net.Conn
	pollTimeout  time.Duration
	writeTimeout time.Duration
	closed       atomic.Bool
}

// Read polls the socket for up to the poll timeout. An expired deadline
// maps to pkg.ErrWouldBlock; any other failure to pkg.ErrTransportLost.
func (c *Conn) Read(buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, pkg.ErrTransportLost
	}
	c.conn.SetReadDeadline(time.Now().Add(c.pollTimeout))
	n, err := c.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			if n > 0 {
				return n, nil
			}
			return 0, pkg.ErrWouldBlock
		}
		return n, fmt.Errorf("%w: %v", pkg.ErrTransportLost, err)
	}
	return n, nil
}

// Write writes data within the write timeout. Failures, including an
// expired deadline, map to pkg.ErrTransportLost.
func (c *Conn) Write(data []byte) (int, error) {
	if c.closed.Load() {
		return 0, pkg.ErrTransportLost
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	n, err := c.conn.Write(data)
	if err != nil {
		return n, fmt.Errorf("%w: %v", pkg.ErrTransportLost, err)
	}
	return n, nil
}

// Close closes the underlying socket. Idempotent.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Compile-time interface check
var _ transport.Transport = (*Conn)(nil)
