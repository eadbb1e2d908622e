package protocol

import "encoding/binary"

// ControlType identifies a control payload. It occupies the first byte
// of a MessageControl frame payload.
type ControlType uint8

// Control message types.
const (
	ControlHandshakeRequest  ControlType = 0x01 // Phone hello
	ControlHandshakeResponse ControlType = 0x02 // Bridge ack with session id
	ControlDisconnect        ControlType = 0x03 // Clean session end
)

// Control payload sizes, including the leading control type byte.
const (
	HandshakeRequestSize  = 6  // type (1) + version (1) + features (4)
	HandshakeResponseSize = 10 // type (1) + version (1) + features (4) + session (4)
	DisconnectSize        = 2  // type (1) + reason (1)
	PingSize              = 4  // timestamp (4), carried in Ping/Pong frames
	AckSize               = 2  // sequence (2), carried in Ack frames
	NackSize              = 3  // sequence (2) + error code (1)
)

// MaxControlSize bounds the payload of any handshake-path frame.
const MaxControlSize = 64

// HandshakeRequest is the phone's hello: the first control frame on a
// new connection.
type HandshakeRequest struct {
	Version  uint8  // Protocol version the phone speaks
	Features uint32 // Supported feature bitmask
}

// MarshalTo writes the request to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (m *HandshakeRequest) MarshalTo(buf []byte) int {
	if len(buf) < HandshakeRequestSize {
		return 0
	}
	buf[0] = byte(ControlHandshakeRequest)
	buf[1] = m.Version
	binary.LittleEndian.PutUint32(buf[2:6], m.Features)
	return HandshakeRequestSize
}

// ParseHandshakeRequest parses a control payload into out.
// Returns false if the payload is not a handshake request.
func ParseHandshakeRequest(data []byte, out *HandshakeRequest) bool {
	if len(data) < HandshakeRequestSize || ControlType(data[0]) != ControlHandshakeRequest {
		return false
	}
	out.Version = data[1]
	out.Features = binary.LittleEndian.Uint32(data[2:6])
	return true
}

// HandshakeResponse is the bridge's ack, establishing the session
// identifier the phone uses for the rest of the session.
type HandshakeResponse struct {
	Version   uint8  // Accepted protocol version
	Features  uint32 // Feature bitmask both sides support
	SessionID uint32 // Identifier for this session
}

// MarshalTo writes the response to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (m *HandshakeResponse) MarshalTo(buf []byte) int {
	if len(buf) < HandshakeResponseSize {
		return 0
	}
	buf[0] = byte(ControlHandshakeResponse)
	buf[1] = m.Version
	binary.LittleEndian.PutUint32(buf[2:6], m.Features)
	binary.LittleEndian.PutUint32(buf[6:10], m.SessionID)
	return HandshakeResponseSize
}

// ParseHandshakeResponse parses a control payload into out.
// Returns false if the payload is not a handshake response.
func ParseHandshakeResponse(data []byte, out *HandshakeResponse) bool {
	if len(data) < HandshakeResponseSize || ControlType(data[0]) != ControlHandshakeResponse {
		return false
	}
	out.Version = data[1]
	out.Features = binary.LittleEndian.Uint32(data[2:6])
	out.SessionID = binary.LittleEndian.Uint32(data[6:10])
	return true
}

// Disconnect announces a clean session end with a reason code.
type Disconnect struct {
	Reason uint8
}

// MarshalTo writes the disconnect to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (m *Disconnect) MarshalTo(buf []byte) int {
	if len(buf) < DisconnectSize {
		return 0
	}
	buf[0] = byte(ControlDisconnect)
	buf[1] = m.Reason
	return DisconnectSize
}

// ParseDisconnect parses a control payload into out.
// Returns false if the payload is not a disconnect.
func ParseDisconnect(data []byte, out *Disconnect) bool {
	if len(data) < DisconnectSize || ControlType(data[0]) != ControlDisconnect {
		return false
	}
	out.Reason = data[1]
	return true
}

// MarshalPing writes a ping/pong timestamp payload to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func MarshalPing(buf []byte, timestamp uint32) int {
	if len(buf) < PingSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[:4], timestamp)
	return PingSize
}

// ParsePing parses a ping/pong payload.
// Returns false if the payload is too short.
func ParsePing(data []byte, timestamp *uint32) bool {
	if len(data) < PingSize {
		return false
	}
	*timestamp = binary.LittleEndian.Uint32(data[:4])
	return true
}
