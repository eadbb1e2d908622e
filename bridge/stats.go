package bridge

import "sync/atomic"

// Stats holds the aggregate session counters. All fields are updated
// atomically; the forwarding tasks write, telemetry reads. Counters are
// reset at the start of every session.
type Stats struct {
	wifiToUSBBytes atomic.Uint64 // Bytes forwarded phone to head unit
	usbToWiFiBytes atomic.Uint64 // Bytes forwarded head unit to phone
	wifiToUSBPass  atomic.Uint64 // Forwarding passes that moved bytes
	usbToWiFiPass  atomic.Uint64
	poolSkips      atomic.Uint64 // Passes skipped on pool exhaustion
	sessionID      atomic.Uint32
	sessions       atomic.Uint64 // Lifetime session count, never reset
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	WiFiToUSBBytes  uint64 `json:"wifi_to_usb_bytes"`
	USBToWiFiBytes  uint64 `json:"usb_to_wifi_bytes"`
	WiFiToUSBPasses uint64 `json:"wifi_to_usb_passes"`
	USBToWiFiPasses uint64 `json:"usb_to_wifi_passes"`
	PoolSkips       uint64 `json:"pool_skips"`
	SessionID       uint32 `json:"session_id"`
	Sessions        uint64 `json:"sessions"`
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		WiFiToUSBBytes:  s.wifiToUSBBytes.Load(),
		USBToWiFiBytes:  s.usbToWiFiBytes.Load(),
		WiFiToUSBPasses: s.wifiToUSBPass.Load(),
		USBToWiFiPasses: s.usbToWiFiPass.Load(),
		PoolSkips:       s.poolSkips.Load(),
		SessionID:       s.sessionID.Load(),
		Sessions:        s.sessions.Load(),
	}
}

// Reset zeroes the per-session counters and records the new session
// identifier. The lifetime session count increments.
func (s *Stats) Reset(sessionID uint32) {
	s.wifiToUSBBytes.Store(0)
	s.usbToWiFiBytes.Store(0)
	s.wifiToUSBPass.Store(0)
	s.usbToWiFiPass.Store(0)
	s.poolSkips.Store(0)
	s.sessionID.Store(sessionID)
	s.sessions.Add(1)
}

// SessionID returns the current session identifier.
func (s *Stats) SessionID() uint32 {
	return s.sessionID.Load()
}

func (s *Stats) addWiFiToUSB(n int) {
	s.wifiToUSBBytes.Add(uint64(n))
	s.wifiToUSBPass.Add(1)
}

func (s *Stats) addUSBToWiFi(n int) {
	s.usbToWiFiBytes.Add(uint64(n))
	s.usbToWiFiPass.Add(1)
}

func (s *Stats) addPoolSkip() {
	s.poolSkips.Add(1)
}
