// Package tcp implements the WiFi-side transport: the TCP listener the
// phone connects to once it has joined the bridge's access point.
//
// Access point parameters (SSID, passphrase, channel, station limit,
// static address) are supplied as configuration; the radio itself is
// brought up by platform firmware. From the core's point of view,
// starting the AP means binding the bridge socket on the configured
// address, and a bind failure is an AP configuration failure.
//
// The listener enforces the single-station policy at the TCP level: one
// client owns the session, and any additional connection attempt is
// closed immediately without disturbing the active session.
package tcp
