package transport

import (
	"errors"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// Kind identifies which side of the bridge a transport serves.
type Kind uint8

// Transport kinds.
const (
	KindUnknown Kind = iota
	KindWiFi         // TCP stream toward the phone
	KindUSB          // AOA bulk stream toward the head unit
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindWiFi:
		return "wifi"
	case KindUSB:
		return "usb"
	default:
		return "unknown"
	}
}

// Transport is the byte-stream contract both bridge sides expose.
//
// Read is a non-blocking poll: it returns (0, pkg.ErrWouldBlock) when no
// bytes are currently available. A disconnected or failed peer returns
// pkg.ErrTransportLost (possibly wrapped). Write may return a short
// count; use WriteAll to drain a buffer fully.
type Transport interface {
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Close() error
}

// WriteAll writes all of data to t, looping over short writes.
// A write error maps the remaining bytes to that error.
func WriteAll(t Transport, data []byte) error {
	for len(data) > 0 {
		n, err := t.Write(data)
		if err != nil {
			return err
		}
		if n <= 0 {
			return pkg.ErrTransportLost
		}
		data = data[n:]
	}
	return nil
}

// IsWouldBlock reports whether err indicates an empty non-blocking read.
func IsWouldBlock(err error) bool {
	return errors.Is(err, pkg.ErrWouldBlock)
}

// IsLost reports whether err indicates a lost transport.
func IsLost(err error) bool {
	return errors.Is(err, pkg.ErrTransportLost)
}
