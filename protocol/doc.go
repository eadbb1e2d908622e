// Package protocol implements the phone-side bridge wire protocol.
//
// The bridge and the phone exchange framed messages over the TCP stream.
// Projection payloads stay opaque: a Data frame carries raw bytes tagged
// only by a logical channel in the frame header. Control frames carry the
// handshake (hello/ack with a session identifier), keepalive ping/pong,
// and clean disconnects.
//
// # Frame Format
//
// Every frame has a fixed-layout little-endian envelope:
//
//	magic (4) | sequence (2) | payload len (2) | channel (1) | flags (1) |
//	type (1) | payload (N) | CRC-16 (2)
//
// The CRC is CRC-16-CCITT (init 0xFFFF, polynomial 0x1021) over all bytes
// preceding it.
//
// Encoding follows a zero-allocation style: MarshalTo writes into a
// caller-provided buffer and parse functions fill output parameters.
package protocol
