// Package transport is the command/event boundary between the session state
// machines and a BLE host stack. Commands are fire-and-forget; their results
// come back later as GAP or GATT events on the dispatch context.
package transport

import (
	"fmt"
	"strings"
	"time"
)

// AppID identifies an application profile registered with the host stack.
type AppID uint16

// InterfaceHandle is assigned by the host stack once an application profile
// has been registered.
type InterfaceHandle uint8

// NoInterface is both the "not registered yet" value of a profile and the
// wildcard handle used for events that are not bound to one interface.
const NoInterface InterfaceHandle = 0xFF

// ConnID identifies an open link.
type ConnID uint16

// Handle is a GATT attribute handle.
type Handle uint16

// UUID16 is a 16-bit Bluetooth SIG style UUID.
type UUID16 uint16

func (u UUID16) String() string {
	return fmt.Sprintf("0x%04X", uint16(u))
}

// Address is a 6-byte device address, most significant byte first.
type Address [6]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (case-insensitive).
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != len(a) {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	for i, p := range parts {
		var b byte
		if _, err := fmt.Sscanf(p, "%02x", &b); err != nil || len(p) != 2 {
			return Address{}, fmt.Errorf("invalid address %q", s)
		}
		a[i] = b
	}
	return a, nil
}

// AddressType of an advertiser.
type AddressType uint8

const (
	AddressPublic AddressType = iota
	AddressRandom
)

// Status is the GATT/GAP completion status carried by events.
type Status uint8

const (
	StatusOK               Status = 0x00
	StatusInvalidHandle    Status = 0x01
	StatusWriteNotPermit   Status = 0x03
	StatusInvalidOffset    Status = 0x07
	StatusNotFound         Status = 0x0A
	StatusInvalidAttrLen   Status = 0x0D
	StatusNoResources      Status = 0x80
	StatusError            Status = 0x85
	StatusNotConnected     Status = 0x86
	StatusRequestNotSupp   Status = 0x06
	StatusConnectionFailed Status = 0x3E
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidHandle:
		return "invalid_handle"
	case StatusWriteNotPermit:
		return "write_not_permitted"
	case StatusRequestNotSupp:
		return "request_not_supported"
	case StatusInvalidOffset:
		return "invalid_offset"
	case StatusNotFound:
		return "not_found"
	case StatusInvalidAttrLen:
		return "invalid_attribute_length"
	case StatusNoResources:
		return "no_resources"
	case StatusError:
		return "error"
	case StatusNotConnected:
		return "not_connected"
	case StatusConnectionFailed:
		return "connection_failed"
	default:
		return fmt.Sprintf("status(0x%02X)", uint8(s))
	}
}

// DisconnectReason as reported by the link layer.
type DisconnectReason uint8

const (
	ReasonUnknown             DisconnectReason = 0x00
	ReasonConnectionTimeout   DisconnectReason = 0x08
	ReasonRemoteTerminated    DisconnectReason = 0x13
	ReasonLocalHostTerminated DisconnectReason = 0x16
	ReasonFailedToEstablish   DisconnectReason = 0x3E
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonConnectionTimeout:
		return "timeout"
	case ReasonRemoteTerminated:
		return "remote_terminated"
	case ReasonLocalHostTerminated:
		return "local_host_terminated"
	case ReasonFailedToEstablish:
		return "failed_to_establish"
	default:
		return fmt.Sprintf("reason(0x%02X)", uint8(r))
	}
}

// ServiceSource tells where a completed service search got its data from.
type ServiceSource uint8

const (
	SourceUnknown ServiceSource = iota
	SourceRemoteDevice
	SourceCache
)

func (s ServiceSource) String() string {
	switch s {
	case SourceRemoteDevice:
		return "remote_device"
	case SourceCache:
		return "cache"
	default:
		return "unknown"
	}
}

// AttrType selects what GetAttributeCount counts.
type AttrType uint8

const (
	AttrService AttrType = iota
	AttrCharacteristic
	AttrDescriptor
)

// WriteType of a characteristic write.
type WriteType uint8

const (
	WriteNoResponse WriteType = iota + 1
	WriteWithResponse
)

// AuthReq is the authentication requirement of a write.
type AuthReq uint8

const (
	AuthNone AuthReq = iota
	AuthNoMITM
	AuthMITM
)

// Property is the characteristic properties bitmask.
type Property uint8

const (
	PropRead        Property = 0x02
	PropWriteNoResp Property = 0x04
	PropWrite       Property = 0x08
	PropNotify      Property = 0x10
	PropIndicate    Property = 0x20
)

// Permission is the server-side attribute permission bitmask.
type Permission uint16

const (
	PermRead  Permission = 0x01
	PermWrite Permission = 0x10
)

// ScanParams configures scanning.
type ScanParams struct {
	Active           bool
	Interval         time.Duration
	Window           time.Duration
	FilterDuplicates bool
}

// AdvData is an advertising or scan response payload description.
type AdvData struct {
	IncludeName    bool
	IncludeTxPower bool
	MinInterval    time.Duration
	MaxInterval    time.Duration
	Appearance     uint16
	ServiceUUIDs   []UUID16
}

// AdvParams configures advertising.
type AdvParams struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Connectable bool
}

// ConnParams is a connection parameter update request.
type ConnParams struct {
	Address     Address
	MinInterval time.Duration
	MaxInterval time.Duration
	Latency     uint16
	Timeout     time.Duration
}

// ServiceID identifies a service to create.
type ServiceID struct {
	UUID       UUID16
	InstanceID uint8
	Primary    bool
}

// CharacteristicElem is one entry of a characteristic lookup.
type CharacteristicElem struct {
	Handle     Handle
	UUID       UUID16
	Properties Property
}
