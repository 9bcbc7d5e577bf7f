//go:build !linux

package native

import (
	"log/slog"
	"time"

	"smart-greenhouse/internal/ble/transport"
)

// Central is unavailable off linux; every call fails with ErrUnsupported.
type Central struct{ unsupported }

// Peripheral is unavailable off linux; every call fails with ErrUnsupported.
type Peripheral struct{ unsupported }

func NewCentral(Options, transport.Poster, *slog.Logger) *Central {
	return &Central{}
}

func NewPeripheral(Options, transport.Poster, *slog.Logger) *Peripheral {
	return &Peripheral{}
}

type unsupported struct{}

func (unsupported) RegisterGapCallback(transport.GapHandler) error {
	return ErrUnsupported
}

func (unsupported) RegisterGattCallback(transport.GattHandler) error {
	return ErrUnsupported
}

func (unsupported) RegisterApplicationProfile(transport.AppID) error {
	return ErrUnsupported
}

func (unsupported) SetLocalMtu(uint16) error {
	return ErrUnsupported
}

func (unsupported) SetScanParameters(transport.ScanParams) error {
	return ErrUnsupported
}

func (unsupported) StopScanning() error {
	return ErrUnsupported
}

func (unsupported) StartScanning(time.Duration) error {
	return ErrUnsupported
}

func (unsupported) OpenConnection(transport.InterfaceHandle, transport.Address, transport.AddressType, bool) error {
	return ErrUnsupported
}

func (unsupported) CloseConnection(transport.InterfaceHandle, transport.ConnID) error {
	return ErrUnsupported
}

func (unsupported) SendMtuRequest(transport.InterfaceHandle, transport.ConnID) error {
	return ErrUnsupported
}

func (unsupported) SearchService(transport.InterfaceHandle, transport.ConnID, *transport.UUID16) error {
	return ErrUnsupported
}

func (unsupported) GetAttributeCount(transport.InterfaceHandle, transport.ConnID, transport.AttrType, transport.Handle, transport.Handle, transport.Handle) (int, error) {
	return 0, ErrUnsupported
}

func (unsupported) GetCharacteristicByUUID(transport.InterfaceHandle, transport.ConnID, transport.Handle, transport.Handle, transport.UUID16) ([]transport.CharacteristicElem, error) {
	return nil, ErrUnsupported
}

func (unsupported) WriteCharacteristic(transport.InterfaceHandle, transport.ConnID, transport.Handle, []byte, transport.WriteType, transport.AuthReq) error {
	return ErrUnsupported
}

func (unsupported) SetDeviceName(string) error {
	return ErrUnsupported
}

func (unsupported) SetAdvertisingData(transport.AdvData) error {
	return ErrUnsupported
}

func (unsupported) SetScanResponseData(transport.AdvData) error {
	return ErrUnsupported
}

func (unsupported) StartAdvertising(transport.AdvParams) error {
	return ErrUnsupported
}

func (unsupported) StartService(transport.Handle) error {
	return ErrUnsupported
}

func (unsupported) UpdateConnectionParameters(transport.ConnParams) error {
	return ErrUnsupported
}

func (unsupported) CreateService(transport.InterfaceHandle, transport.ServiceID, uint16) error {
	return ErrUnsupported
}

func (unsupported) AddCharacteristic(transport.Handle, transport.UUID16, transport.Permission, transport.Property, []byte) error {
	return ErrUnsupported
}

func (unsupported) AddCharacteristicDescriptor(transport.Handle, transport.UUID16, transport.Permission) error {
	return ErrUnsupported
}

func (unsupported) SendResponse(transport.InterfaceHandle, transport.ConnID, uint32, transport.Status, []byte) error {
	return ErrUnsupported
}

var (
	_ transport.Central    = (*Central)(nil)
	_ transport.Peripheral = (*Peripheral)(nil)
)
