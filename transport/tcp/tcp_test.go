package tcp

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// testConfig returns a loopback config with an ephemeral port.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	return cfg
}

func dial(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestListenAcceptRoundtrip(t *testing.T) {
	l, err := Listen(testConfig())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	phone := dial(t, l)
	defer phone.Close()

	done := make(chan struct{})
	conn, err := l.Next(done)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	defer conn.Close()

	if _, err := phone.Write([]byte("hello bridge")); err != nil {
		t.Fatalf("phone write: %v", err)
	}

	var buf [64]byte
	got := readAll(t, conn, buf[:], 12)
	if string(got) != "hello bridge" {
		t.Errorf("read = %q, want %q", got, "hello bridge")
	}

	if _, err := conn.Write([]byte("hello phone")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	reply := make([]byte, 11)
	phone.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := phone.Read(reply); err != nil {
		t.Fatalf("phone read: %v", err)
	}
	if string(reply) != "hello phone" {
		t.Errorf("phone read = %q, want %q", reply, "hello phone")
	}
}

// readAll polls conn until want bytes arrive or the test deadline hits.
func readAll(t *testing.T, conn *Conn, buf []byte, want int) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	for len(got) < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out with %d of %d bytes", len(got), want)
		}
		n, err := conn.Read(buf)
		if errors.Is(err, pkg.ErrWouldBlock) {
			continue
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		got = append(got, buf[:n]...)
	}
	return got
}

func TestReadWouldBlockWhenIdle(t *testing.T) {
	l, err := Listen(testConfig())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	phone := dial(t, l)
	defer phone.Close()

	done := make(chan struct{})
	conn, err := l.Next(done)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	defer conn.Close()

	var buf [16]byte
	if _, err := conn.Read(buf[:]); !errors.Is(err, pkg.ErrWouldBlock) {
		t.Errorf("Read() on idle socket error = %v, want ErrWouldBlock", err)
	}
}

func TestSecondClientRejectedWhileBusy(t *testing.T) {
	l, err := Listen(testConfig())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	phone := dial(t, l)
	defer phone.Close()

	done := make(chan struct{})
	conn, err := l.Next(done)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	defer conn.Close()
	l.SetBusy(true)

	intruder := dial(t, l)
	defer intruder.Close()

	// The intruder socket is closed by the listener without handshaking.
	intruder.SetReadDeadline(time.Now().Add(2 * time.Second))
	var b [1]byte
	if _, err := intruder.Read(b[:]); err == nil {
		t.Error("intruder read succeeded, want connection closed")
	}
	waitFor(t, func() bool { return l.Rejected() == 1 })

	// The active session is untouched.
	if _, err := phone.Write([]byte("still here")); err != nil {
		t.Fatalf("phone write after rejection: %v", err)
	}
	var buf [16]byte
	got := readAll(t, conn, buf[:], 10)
	if string(got) != "still here" {
		t.Errorf("active session read = %q, want %q", got, "still here")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPeerDisconnectIsTransportLost(t *testing.T) {
	l, err := Listen(testConfig())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	phone := dial(t, l)

	done := make(chan struct{})
	conn, err := l.Next(done)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	defer conn.Close()

	phone.Close()

	var buf [16]byte
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("never observed transport loss")
		}
		_, err := conn.Read(buf[:])
		if errors.Is(err, pkg.ErrWouldBlock) {
			continue
		}
		if !errors.Is(err, pkg.ErrTransportLost) {
			t.Fatalf("Read() after peer close error = %v, want ErrTransportLost", err)
		}
		return
	}
}

func TestListenBindFailure(t *testing.T) {
	cfg := testConfig()
	l, err := Listen(cfg)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	// Second bind on the same port must fail as an AP config error.
	cfg.Port = l.Addr().(*net.TCPAddr).Port
	if _, err := Listen(cfg); !errors.Is(err, pkg.ErrAPConfig) {
		t.Errorf("Listen() on occupied port error = %v, want ErrAPConfig", err)
	}
}
