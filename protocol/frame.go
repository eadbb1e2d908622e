package protocol

import (
	"encoding/binary"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// Version is the bridge protocol version negotiated during the handshake.
const Version = 1

// Frame magic bytes identifying the start of a frame.
var frameMagic = [4]byte{0xAA, 0x57, 0x49, 0x46}

// Frame layout constants.
const (
	magicSize  = 4
	HeaderSize = 6 // sequence (2) + payload len (2) + channel (1) + flags (1)
	crcSize    = 2

	// LenFieldEnd is the offset just past the payload length field.
	// A reader holding this many bytes knows the total frame size.
	LenFieldEnd = 8

	// typeOffset is the position of the message type byte.
	typeOffset = magicSize + HeaderSize

	// PayloadOffset is the position of the first payload byte.
	PayloadOffset = typeOffset + 1

	// Overhead is the number of envelope bytes in every frame.
	Overhead = PayloadOffset + crcSize

	// MaxPayload bounds the payload of a single frame.
	MaxPayload = 65535
)

// MessageType identifies the kind of payload a frame carries.
type MessageType uint8

// Message types.
const (
	MessageControl MessageType = 0x01 // Connection management
	MessageData    MessageType = 0x02 // Opaque projection payload
	MessageAck     MessageType = 0x03 // Acknowledgment
	MessageNack    MessageType = 0x04 // Negative acknowledgment
	MessagePing    MessageType = 0x05 // Keepalive probe
	MessagePong    MessageType = 0x06 // Keepalive response
)

// String returns a human-readable message type name.
func (t MessageType) String() string {
	switch t {
	case MessageControl:
		return "control"
	case MessageData:
		return "data"
	case MessageAck:
		return "ack"
	case MessageNack:
		return "nack"
	case MessagePing:
		return "ping"
	case MessagePong:
		return "pong"
	default:
		return "unknown"
	}
}

// valid reports whether t is a known message type.
func (t MessageType) valid() bool {
	switch t {
	case MessageControl, MessageData, MessageAck, MessageNack, MessagePing, MessagePong:
		return true
	}
	return false
}

// Header carries per-frame metadata.
type Header struct {
	Sequence   uint16 // Ordering and deduplication
	PayloadLen uint16 // Payload length in bytes
	Channel    uint8  // Logical channel for stream multiplexing
	Flags      uint8  // Reserved
}

// FrameLen returns the total frame size for a payload of n bytes.
func FrameLen(n int) int {
	return Overhead + n
}

// Builder constructs wire frames with monotonically increasing sequence
// numbers. Not safe for concurrent use; each stream direction owns one.
type Builder struct {
	sequence uint16
}

// NextSequence returns the next sequence number and advances the counter.
func (b *Builder) NextSequence() uint16 {
	seq := b.sequence
	b.sequence++
	return seq
}

// Build writes a complete frame into buf and returns the number of bytes
// written. Returns pkg.ErrBufferTooSmall if buf cannot hold the frame.
func (b *Builder) Build(buf []byte, typ MessageType, channel uint8, payload []byte) (int, error) {
	if len(payload) > MaxPayload {
		return 0, pkg.ErrInvalidFrame
	}
	total := FrameLen(len(payload))
	if len(buf) < total {
		return 0, pkg.ErrBufferTooSmall
	}

	copy(buf[:magicSize], frameMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], b.NextSequence())
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(payload)))
	buf[8] = channel
	buf[9] = 0 // flags
	buf[typeOffset] = byte(typ)
	copy(buf[PayloadOffset:], payload)

	crc := crc16(buf[:PayloadOffset+len(payload)])
	binary.LittleEndian.PutUint16(buf[PayloadOffset+len(payload):total], crc)
	return total, nil
}

// Parse validates a frame and fills hdr. It returns the message type and
// the payload as a subslice of data (no copy).
//
// Returns pkg.ErrInvalidFrame for malformed or truncated frames and
// pkg.ErrCRCMismatch when the checksum fails.
func Parse(data []byte, hdr *Header) (MessageType, []byte, error) {
	if len(data) < Overhead {
		return 0, nil, pkg.ErrInvalidFrame
	}
	if [4]byte(data[:magicSize]) != frameMagic {
		return 0, nil, pkg.ErrInvalidFrame
	}

	hdr.Sequence = binary.LittleEndian.Uint16(data[4:6])
	hdr.PayloadLen = binary.LittleEndian.Uint16(data[6:8])
	hdr.Channel = data[8]
	hdr.Flags = data[9]

	total := FrameLen(int(hdr.PayloadLen))
	if len(data) < total {
		return 0, nil, pkg.ErrInvalidFrame
	}

	want := binary.LittleEndian.Uint16(data[total-crcSize : total])
	if crc16(data[:total-crcSize]) != want {
		return 0, nil, pkg.ErrCRCMismatch
	}

	typ := MessageType(data[typeOffset])
	if !typ.valid() {
		return 0, nil, pkg.ErrInvalidFrame
	}
	return typ, data[PayloadOffset : PayloadOffset+int(hdr.PayloadLen)], nil
}

// crc16 computes CRC-16-CCITT (init 0xFFFF, polynomial 0x1021).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
