// Package protocol implements the Smartstrap accessory protocol engine: a
// byte-oriented framing, CRC, and dispatch state machine for a microcontroller
// accessory talking to a wrist-worn host over a single-wire, half-duplex
// UART link.
package protocol

import "fmt"

// ProtocolVersion is the highest frame version this engine accepts.
const ProtocolVersion = 1

// Reserved framing octets (see codec).
const (
	flagByte       = 0x7E
	escapeByte     = 0x7D
	escapeMaskByte = 0x20
)

// Profile identifies the top-level routing category carried in a frame header.
type Profile uint16

const (
	ProfileInvalid        Profile = 0
	ProfileLinkControl    Profile = 1
	ProfileRawData        Profile = 2
	ProfileGenericService Profile = 3
)

func (p Profile) String() string {
	switch p {
	case ProfileLinkControl:
		return "link-control"
	case ProfileRawData:
		return "raw-data"
	case ProfileGenericService:
		return "generic-service"
	default:
		return fmt.Sprintf("profile(%d)", uint16(p))
	}
}

// RequestType distinguishes how the host wants to exchange data with an
// attribute: pull data, push data, or push-then-pull.
type RequestType uint8

const (
	RequestTypeRead      RequestType = 0
	RequestTypeWrite     RequestType = 1
	RequestTypeWriteRead RequestType = 2
)

func (t RequestType) String() string {
	switch t {
	case RequestTypeRead:
		return "read"
	case RequestTypeWrite:
		return "write"
	case RequestTypeWriteRead:
		return "write-read"
	default:
		return "unknown"
	}
}

// Header flag bits, little-endian 4-byte field (offset 1..5 on the wire).
const (
	flagIsRead         = 1 << 0
	flagIsMaster       = 1 << 1
	flagIsNotification = 1 << 2
	flagsReservedMask  = ^uint32(flagIsRead | flagIsMaster | flagIsNotification)
)

// Well-known generic-service addressing reserved by the engine itself.
const (
	serviceDiscovery          uint16 = 0x0101
	attributeServiceDiscovery uint16 = 0x0001
	attributeNotificationInfo uint16 = 0x0002
)

// linkControlType is the first payload byte of a profile-1 frame.
type linkControlType uint8

const (
	linkControlStatus   linkControlType = 1
	linkControlProfiles linkControlType = 2
	linkControlBaud     linkControlType = 3
)

const (
	statusOk       uint8 = 0
	statusBaudRate uint8 = 1
	baudAck        uint8 = 0x05
)

// frameMinLength is the minimum body length (header + parity, no payload)
// that a frame must reach before it can validate: 7 header bytes + 1 parity.
const frameMinLength = 8

const headerLength = 7

// Callback is the transport capability the engine drives the physical link
// through. The integrator supplies a concrete implementation (see
// pkg/transport); the engine never depends on a particular threading model
// for it.
type Callback interface {
	// SetBaudRate reconfigures the UART baud rate.
	SetBaudRate(baud int)
	// SetTxEnabled switches the half-duplex direction. Disabling must flush
	// any pending transmission before returning.
	SetTxEnabled(enabled bool)
	// WriteByte emits one byte through the UART.
	WriteByte(b byte)
	// WriteBreak emits a framing break used to wake the host.
	WriteBreak()
}

// MinPayloadBufferSize returns the buffer capacity an integrator should
// allocate to receive a frame carrying up to maxData bytes of profile
// payload, following the same sizing convention as the original firmware
// header (PEBBLE_PAYLOAD_OVERHEAD applied on top of the caller's data size).
func MinPayloadBufferSize(maxData int) int {
	const overhead = 9
	const minimum = 20 + overhead
	size := maxData + overhead
	if size < minimum {
		return minimum
	}
	return size
}

// BaudRates is the canonical table of baud rates the link manager will
// negotiate to. Index order matches the original firmware header
// (PebbleBaud9600 .. PebbleBaud460800); slot 6 is fixed at 62500bps per the
// second surviving revision of that header (see SPEC_FULL.md §1–9, Open
// Question 1).
var BaudRates = [12]int{
	9600, 14400, 19200, 28800, 38400, 57600,
	62500, 115200, 125000, 230400, 250000, 460800,
}

// IsValidBaud reports whether baud appears in BaudRates.
func IsValidBaud(baud int) bool {
	for _, b := range BaudRates {
		if b == baud {
			return true
		}
	}
	return false
}
