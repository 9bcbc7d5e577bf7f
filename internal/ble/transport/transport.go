package transport

import (
	"errors"
	"time"
)

var (
	ErrRegisterCallbackFailed = errors.New("register callback failed")
	ErrRegisterAppFailed      = errors.New("register application profile failed")
	ErrSetLocalMtuFailed      = errors.New("set local mtu failed")
	ErrNotConnected           = errors.New("not connected")
	ErrInvalidArgument        = errors.New("invalid argument")
)

// GapHandler receives advertising/scanning events.
type GapHandler func(ev GapEvent)

// GattHandler receives GATT events together with the interface they belong to.
type GattHandler func(ev GattEvent, iface InterfaceHandle)

// Host holds the calls shared by both roles. They are answered synchronously
// and any error is fatal to startup.
type Host interface {
	RegisterGapCallback(h GapHandler) error
	RegisterGattCallback(h GattHandler) error
	// RegisterApplicationProfile is accepted synchronously; the assigned
	// interface handle arrives with a RegisterEvent.
	RegisterApplicationProfile(id AppID) error
	SetLocalMtu(size uint16) error
}

// Central is the GATT client side of the transport.
//
// GetAttributeCount and GetCharacteristicByUUID query the local copy of the
// remote database and answer synchronously; every other command produces
// exactly one completion event.
type Central interface {
	Host
	SetScanParameters(p ScanParams) error
	// StartScanning while a scan is running is a no-op.
	StartScanning(d time.Duration) error
	StopScanning() error
	OpenConnection(iface InterfaceHandle, addr Address, addrType AddressType, direct bool) error
	CloseConnection(iface InterfaceHandle, conn ConnID) error
	SendMtuRequest(iface InterfaceHandle, conn ConnID) error
	SearchService(iface InterfaceHandle, conn ConnID, filter *UUID16) error
	GetAttributeCount(iface InterfaceHandle, conn ConnID, kind AttrType, start, end, char Handle) (int, error)
	GetCharacteristicByUUID(iface InterfaceHandle, conn ConnID, start, end Handle, uuid UUID16) ([]CharacteristicElem, error)
	WriteCharacteristic(iface InterfaceHandle, conn ConnID, handle Handle, value []byte, wt WriteType, auth AuthReq) error
}

// Peripheral is the GATT server side of the transport. SetDeviceName is
// synchronous; every other command produces exactly one completion event.
type Peripheral interface {
	Host
	SetDeviceName(name string) error
	SetAdvertisingData(d AdvData) error
	SetScanResponseData(d AdvData) error
	StartAdvertising(p AdvParams) error
	CreateService(iface InterfaceHandle, id ServiceID, numHandles uint16) error
	StartService(service Handle) error
	AddCharacteristic(service Handle, uuid UUID16, perm Permission, prop Property, initial []byte) error
	AddCharacteristicDescriptor(service Handle, uuid UUID16, perm Permission) error
	SendResponse(iface InterfaceHandle, conn ConnID, transID uint32, status Status, value []byte) error
	UpdateConnectionParameters(p ConnParams) error
}
