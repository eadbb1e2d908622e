package aoa

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
	"github.com/madkoding/esp32-android-auto-wifi/transport"
)

// AOA vendor requests (Android Open Accessory protocol 1.0).
const (
	RequestGetProtocol = 51 // IN: query accessory protocol version
	RequestSendString  = 52 // OUT: send one identifying string
	RequestStart       = 53 // OUT: switch the device into accessory mode
)

// Vendor request type bits.
const (
	requestTypeVendorIn  = 0xC0
	requestTypeVendorOut = 0x40
)

// Identity string indices, sent in order during negotiation.
const (
	StringManufacturer uint16 = iota
	StringModel
	StringDescription
	StringVersion
	StringURI
	StringSerial

	stringCount
)

// Accessory-mode identifiers after re-enumeration.
const (
	VendorGoogle        = 0x18D1
	ProductAccessory    = 0x2D00
	ProductAccessoryADB = 0x2D01
)

// MinProtocol is the lowest accessory protocol version the bridge accepts.
const MinProtocol = 1

// SetupPacket represents a USB SETUP packet for a control transfer.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// Port is the platform seam to the USB host controller. Implementations
// perform control transfers against the attached device and, once the
// device re-enumerates in accessory mode, expose its bulk endpoints as
// a byte stream.
type Port interface {
	// Control performs a control transfer described by setup. For IN
	// requests data receives the response; for OUT requests data is the
	// payload. Returns the number of bytes transferred.
	Control(ctx context.Context, setup *SetupPacket, data []byte) (int, error)

	// WaitAttach blocks until the device re-enumerates in accessory
	// mode (or ctx expires) and returns its bulk byte stream.
	WaitAttach(ctx context.Context) (transport.Transport, error)

	// Close releases the port.
	Close() error
}

// Identity holds the accessory identifying strings sent during the
// handshake. The phone matches these against its registered accessory
// filters.
type Identity struct {
	Manufacturer string
	Model        string
	Description  string
	Version      string
	URI          string
	Serial       string
}

// DefaultIdentity returns the identity the bridge announces.
func DefaultIdentity() Identity {
	return Identity{
		Manufacturer: "madkoding",
		Model:        "AAWirelessBridge",
		Description:  "Android Auto WiFi bridge",
		Version:      "1.0",
		URI:          "https://github.com/madkoding/esp32-android-auto-wifi",
		Serial:       "0001",
	}
}

// strings returns the identity strings indexed by wire order.
func (id Identity) strings() [stringCount]string {
	return [stringCount]string{
		StringManufacturer: id.Manufacturer,
		StringModel:        id.Model,
		StringDescription:  id.Description,
		StringVersion:      id.Version,
		StringURI:          id.URI,
		StringSerial:       id.Serial,
	}
}

// Negotiator drives the AOA handshake against a Port.
type Negotiator struct {
	port     Port
	identity Identity
}

// NewNegotiator creates a negotiator announcing the given identity.
func NewNegotiator(port Port, identity Identity) *Negotiator {
	return &Negotiator{port: port, identity: identity}
}

// Negotiate performs the vendor-request sequence: protocol query,
// identity strings, start command. Returns the device's accessory
// protocol version.
//
// After a successful Negotiate the device re-enumerates; use
// Port.WaitAttach to obtain the accessory stream.
func (n *Negotiator) Negotiate(ctx context.Context) (uint16, error) {
	proto, err := n.getProtocol(ctx)
	if err != nil {
		return 0, err
	}
	if proto < MinProtocol {
		return proto, fmt.Errorf("%w: accessory protocol %d unsupported", pkg.ErrHandshakeFailed, proto)
	}
	pkg.LogDebug(pkg.ComponentTransport, "accessory protocol",
		"version", proto)

	for index, s := range n.identity.strings() {
		if err := n.sendString(ctx, uint16(index), s); err != nil {
			return proto, err
		}
	}

	setup := SetupPacket{
		RequestType: requestTypeVendorOut,
		Request:     RequestStart,
	}
	if _, err := n.port.Control(ctx, &setup, nil); err != nil {
		return proto, fmt.Errorf("%w: start accessory: %v", pkg.ErrHandshakeFailed, err)
	}

	pkg.LogInfo(pkg.ComponentTransport, "accessory mode requested",
		"protocol", proto)
	return proto, nil
}

// getProtocol queries the accessory protocol version (request 51).
func (n *Negotiator) getProtocol(ctx context.Context) (uint16, error) {
	var buf [2]byte
	setup := SetupPacket{
		RequestType: requestTypeVendorIn,
		Request:     RequestGetProtocol,
		Length:      2,
	}
	m, err := n.port.Control(ctx, &setup, buf[:])
	if err != nil {
		return 0, fmt.Errorf("%w: get protocol: %v", pkg.ErrHandshakeFailed, err)
	}
	if m < 2 {
		return 0, fmt.Errorf("%w: short protocol response", pkg.ErrHandshakeFailed)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// sendString sends one identifying string (request 52, NUL terminated).
func (n *Negotiator) sendString(ctx context.Context, index uint16, s string) error {
	data := make([]byte, len(s)+1)
	copy(data, s)
	setup := SetupPacket{
		RequestType: requestTypeVendorOut,
		Request:     RequestSendString,
		Index:       index,
		Length:      uint16(len(data)),
	}
	if _, err := n.port.Control(ctx, &setup, data); err != nil {
		return fmt.Errorf("%w: send string %d: %v", pkg.ErrHandshakeFailed, index, err)
	}
	return nil
}
