// Package bridge implements the core of the WiFi to USB Android Auto
// bridge: the connection state machine that gates forwarding, the
// bidirectional forwarder moving bytes between the two transports
// through a fixed buffer pool, session statistics, and the handshake
// sequencer that drives bring-up from access point start through
// accessory negotiation to steady forwarding.
//
// The state machine is mutated only by the sequencer goroutine; the
// forwarding tasks read the current state atomically and report
// transport loss back through events rather than transitioning
// directly.
package bridge
