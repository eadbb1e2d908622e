// Package transport defines the byte-stream contract between the bridge
// core and its two sides.
//
// The core never touches sockets or USB endpoints directly. Each side of
// the bridge (WiFi/TCP toward the phone, USB/AOA toward the head unit)
// implements [Transport], and the forwarding engine moves bytes between
// the two without knowing what is underneath.
//
// Reads are non-blocking polls: a Transport with no buffered bytes
// returns [pkg.ErrWouldBlock] instead of waiting, which keeps the
// forwarding loop cooperative. A lost peer surfaces as
// [pkg.ErrTransportLost]; the caller converts it into a state-machine
// event rather than propagating it further.
//
// Concrete implementations live in the subpackages: tcp (WiFi side),
// aoa (USB side), and loop (in-memory pairs for tests).
package transport
