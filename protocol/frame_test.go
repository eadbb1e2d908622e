package protocol

import (
	"errors"
	"testing"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

func TestFrameRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		typ     MessageType
		channel uint8
		payload []byte
	}{
		{"empty ping", MessagePing, 0, nil},
		{"control hello", MessageControl, 0, []byte{0x01, 0x01, 0xFF, 0x00, 0x00, 0x00}},
		{"data on video channel", MessageData, 1, []byte("opaque projection bytes")},
		{"data on input channel", MessageData, 3, make([]byte, 480)},
	}

	var b Builder
	var buf [600]byte

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := b.Build(buf[:], tt.typ, tt.channel, tt.payload)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if n != FrameLen(len(tt.payload)) {
				t.Errorf("Build() n = %d, want %d", n, FrameLen(len(tt.payload)))
			}

			var hdr Header
			typ, payload, err := Parse(buf[:n], &hdr)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if typ != tt.typ {
				t.Errorf("Parse() type = %v, want %v", typ, tt.typ)
			}
			if hdr.Channel != tt.channel {
				t.Errorf("Parse() channel = %d, want %d", hdr.Channel, tt.channel)
			}
			if string(payload) != string(tt.payload) {
				t.Errorf("Parse() payload mismatch: got %d bytes, want %d", len(payload), len(tt.payload))
			}
		})
	}
}

func TestBuildSequenceAdvances(t *testing.T) {
	var b Builder
	var buf [64]byte

	for want := uint16(0); want < 3; want++ {
		n, err := b.Build(buf[:], MessagePing, 0, nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		var hdr Header
		if _, _, err := Parse(buf[:n], &hdr); err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if hdr.Sequence != want {
			t.Errorf("sequence = %d, want %d", hdr.Sequence, want)
		}
	}
}

func TestParseCRCMismatch(t *testing.T) {
	var b Builder
	var buf [64]byte

	n, err := b.Build(buf[:], MessagePing, 0, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	buf[5] ^= 0xFF // corrupt the header

	var hdr Header
	if _, _, err := Parse(buf[:n], &hdr); !errors.Is(err, pkg.ErrCRCMismatch) {
		t.Errorf("Parse() error = %v, want ErrCRCMismatch", err)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{0xAA, 0x57}},
		{"bad magic", make([]byte, Overhead)},
		{"truncated payload", func() []byte {
			var b Builder
			buf := make([]byte, 64)
			n, _ := b.Build(buf, MessageData, 0, []byte("hello"))
			return buf[:n-4]
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hdr Header
			if _, _, err := Parse(tt.data, &hdr); !errors.Is(err, pkg.ErrInvalidFrame) {
				t.Errorf("Parse() error = %v, want ErrInvalidFrame", err)
			}
		})
	}
}

func TestBuildBufferTooSmall(t *testing.T) {
	var b Builder
	var buf [8]byte

	if _, err := b.Build(buf[:], MessageData, 0, []byte("payload")); !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("Build() error = %v, want ErrBufferTooSmall", err)
	}
}

func TestHandshakeMessages(t *testing.T) {
	var buf [16]byte

	req := HandshakeRequest{Version: Version, Features: 0xFF}
	n := req.MarshalTo(buf[:])
	if n != HandshakeRequestSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, HandshakeRequestSize)
	}
	var gotReq HandshakeRequest
	if !ParseHandshakeRequest(buf[:n], &gotReq) {
		t.Fatal("ParseHandshakeRequest() = false")
	}
	if gotReq != req {
		t.Errorf("request roundtrip = %+v, want %+v", gotReq, req)
	}

	resp := HandshakeResponse{Version: Version, Features: 0xFF, SessionID: 0xDEADBEEF}
	n = resp.MarshalTo(buf[:])
	if n != HandshakeResponseSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, HandshakeResponseSize)
	}
	var gotResp HandshakeResponse
	if !ParseHandshakeResponse(buf[:n], &gotResp) {
		t.Fatal("ParseHandshakeResponse() = false")
	}
	if gotResp != resp {
		t.Errorf("response roundtrip = %+v, want %+v", gotResp, resp)
	}

	// A response payload must not parse as a request.
	if ParseHandshakeRequest(buf[:n], &gotReq) {
		t.Error("ParseHandshakeRequest() accepted a response payload")
	}
}
