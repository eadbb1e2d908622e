// Package aoa implements the USB-side transport: the Android Open
// Accessory handshake and the accessory bulk stream.
//
// The AOA handshake is a short vendor-request sequence performed against
// the attached device's control endpoint: query the accessory protocol
// version (request 51), send the six identifying strings (request 52),
// then issue the start command (request 53). The device drops off the
// bus and re-enumerates in accessory mode (VID 0x18D1), at which point
// its bulk endpoints carry the projection byte stream.
//
// Platform integrations supply the [Port] seam over their USB host
// controller. [LoopbackPort] is an in-memory Port for tests and for the
// reference daemon, mirroring how the rest of the stack is exercised
// without hardware.
package aoa
