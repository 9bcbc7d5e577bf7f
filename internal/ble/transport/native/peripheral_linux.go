//go:build linux

package native

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"smart-greenhouse/internal/ble/transport"
)

type localChar struct {
	uuid   transport.UUID16
	perm   transport.Permission
	prop   transport.Property
	value  []byte
	handle transport.Handle
}

type localService struct {
	id       transport.ServiceID
	start    transport.Handle
	budget   uint16
	next     transport.Handle
	started  bool
	complete bool
	chars    []localChar
}

// Peripheral drives a BlueZ adapter as a GATT server with one advertised
// service set.
type Peripheral struct {
	adapter *bluetooth.Adapter
	opts    Options
	emit    *transport.Emitter
	logger  *slog.Logger

	mu        sync.Mutex
	iface     transport.InterfaceHandle
	name      string
	adv       transport.AdvData
	started   bool
	services  []*localService
	handles   map[transport.Handle]bluetooth.Characteristic
	conn      transport.ConnID
	peer      transport.Address
	connected bool
	nextConn  transport.ConnID
	nextTrans uint32
}

var _ transport.Peripheral = (*Peripheral)(nil)

func NewPeripheral(opts Options, p transport.Poster, logger *slog.Logger) *Peripheral {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Peripheral{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		emit:    transport.NewEmitter(p),
		logger:  logger.With("component", "ble_native_peripheral", "adapter", opts.Adapter),
		iface:   transport.NoInterface,
		handles: make(map[transport.Handle]bluetooth.Characteristic),
	}
}

func (p *Peripheral) RegisterGapCallback(h transport.GapHandler) error {
	return p.emit.SetGap(h)
}

func (p *Peripheral) RegisterGattCallback(h transport.GattHandler) error {
	return p.emit.SetGatt(h)
}

func (p *Peripheral) RegisterApplicationProfile(id transport.AppID) error {
	if !p.emit.HasGatt() {
		return transport.ErrRegisterAppFailed
	}
	p.mu.Lock()
	registered := p.iface != transport.NoInterface
	p.mu.Unlock()
	if registered {
		return fmt.Errorf("app %d: %w", id, transport.ErrRegisterAppFailed)
	}

	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w: %w", p.opts.Adapter, transport.ErrRegisterAppFailed, err)
	}
	p.adapter.SetConnectHandler(p.onConnectChange)
	p.logger.Info("ble: adapter enabled")

	p.mu.Lock()
	p.iface = firstIface
	p.mu.Unlock()
	p.emit.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: id}, firstIface)
	return nil
}

// SetLocalMtu only validates; BlueZ negotiates the MTU on its own.
func (p *Peripheral) SetLocalMtu(size uint16) error {
	return checkMTU(size)
}

func (p *Peripheral) SetDeviceName(name string) error {
	if name == "" {
		return transport.ErrInvalidArgument
	}
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
	return nil
}

func (p *Peripheral) SetAdvertisingData(d transport.AdvData) error {
	p.mu.Lock()
	p.adv = d
	p.mu.Unlock()
	p.emit.Gap(transport.AdvDataSetEvent{Status: transport.StatusOK})
	return nil
}

// SetScanResponseData is acknowledged only; BlueZ builds the scan response
// from the advertisement.
func (p *Peripheral) SetScanResponseData(transport.AdvData) error {
	p.emit.Gap(transport.ScanRspDataSetEvent{Status: transport.StatusOK})
	return nil
}

func (p *Peripheral) StartAdvertising(params transport.AdvParams) error {
	p.mu.Lock()
	opts := bluetooth.AdvertisementOptions{
		Interval: bluetooth.NewDuration(params.MinInterval),
	}
	if p.adv.IncludeName {
		opts.LocalName = p.name
	}
	for _, u := range p.adv.ServiceUUIDs {
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, bluetooth.New16BitUUID(uint16(u)))
	}
	restart := p.started
	p.mu.Unlock()

	adv := p.adapter.DefaultAdvertisement()
	status := transport.StatusOK
	if restart {
		_ = adv.Stop()
	}
	if err := adv.Configure(opts); err != nil {
		p.logger.Error("ble: configure advertisement failed", "error", err)
		status = transport.StatusError
	} else if err := adv.Start(); err != nil {
		p.logger.Error("ble: start advertising failed", "error", err)
		status = transport.StatusError
	}

	p.mu.Lock()
	p.started = status == transport.StatusOK
	p.mu.Unlock()
	p.emit.Gap(transport.AdvStartEvent{Status: status})
	return nil
}

func (p *Peripheral) CreateService(iface transport.InterfaceHandle, id transport.ServiceID, numHandles uint16) error {
	if numHandles == 0 {
		return transport.ErrInvalidArgument
	}
	p.mu.Lock()
	start := transport.Handle(40)
	if n := len(p.services); n > 0 {
		last := p.services[n-1]
		start = last.start + transport.Handle(last.budget)
	}
	svc := &localService{id: id, start: start, budget: numHandles, next: start + 1}
	p.services = append(p.services, svc)
	p.mu.Unlock()

	p.emit.Gatt(transport.CreateServiceEvent{Status: transport.StatusOK, ServiceHandle: start, ServiceID: id}, iface)
	return nil
}

func (p *Peripheral) service(h transport.Handle) (*localService, error) {
	for _, s := range p.services {
		if s.start == h {
			return s, nil
		}
	}
	return nil, fmt.Errorf("service %d: %w", h, transport.ErrInvalidArgument)
}

func (p *Peripheral) StartService(h transport.Handle) error {
	p.mu.Lock()
	s, err := p.service(h)
	if err == nil {
		s.started = true
	}
	iface := p.iface
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.emit.Gatt(transport.StartServiceEvent{Status: transport.StatusOK, ServiceHandle: h}, iface)
	return p.materialize(h)
}

func (p *Peripheral) AddCharacteristic(h transport.Handle, uuid transport.UUID16, perm transport.Permission, prop transport.Property, initial []byte) error {
	p.mu.Lock()
	s, err := p.service(h)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	iface := p.iface
	if s.complete || s.next+1 >= s.start+transport.Handle(s.budget) {
		p.mu.Unlock()
		p.emit.Gatt(transport.AddCharEvent{Status: transport.StatusNoResources, ServiceHandle: h, UUID: uuid}, iface)
		return nil
	}
	value := s.next + 1
	s.next += 2
	s.chars = append(s.chars, localChar{uuid: uuid, perm: perm, prop: prop, value: append([]byte(nil), initial...), handle: value})
	p.mu.Unlock()

	p.emit.Gatt(transport.AddCharEvent{Status: transport.StatusOK, ServiceHandle: h, AttrHandle: value, UUID: uuid}, iface)
	return p.materialize(h)
}

// AddCharacteristicDescriptor reserves a handle. BlueZ generates the client
// configuration descriptor for notifying characteristics itself.
func (p *Peripheral) AddCharacteristicDescriptor(h transport.Handle, uuid transport.UUID16, _ transport.Permission) error {
	p.mu.Lock()
	s, err := p.service(h)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	iface := p.iface
	if s.complete || s.next >= s.start+transport.Handle(s.budget) {
		p.mu.Unlock()
		p.emit.Gatt(transport.AddDescrEvent{Status: transport.StatusNoResources, ServiceHandle: h, UUID: uuid}, iface)
		return nil
	}
	handle := s.next
	s.next++
	p.mu.Unlock()

	p.emit.Gatt(transport.AddDescrEvent{Status: transport.StatusOK, ServiceHandle: h, AttrHandle: handle, UUID: uuid}, iface)
	return p.materialize(h)
}

// materialize hands a service to the host once it is started and its handle
// budget is used up: the library cannot add characteristics to a service
// after registration.
func (p *Peripheral) materialize(h transport.Handle) error {
	p.mu.Lock()
	s, err := p.service(h)
	if err != nil || s.complete || !s.started || s.next < s.start+transport.Handle(s.budget) {
		p.mu.Unlock()
		return nil
	}
	s.complete = true

	svc := &bluetooth.Service{UUID: bluetooth.New16BitUUID(uint16(s.id.UUID))}
	handles := make([]bluetooth.Characteristic, len(s.chars))
	for i, ch := range s.chars {
		attr := ch.handle
		svc.Characteristics = append(svc.Characteristics, bluetooth.CharacteristicConfig{
			Handle: &handles[i],
			UUID:   bluetooth.New16BitUUID(uint16(ch.uuid)),
			Value:  ch.value,
			Flags:  flags(ch.perm, ch.prop),
			WriteEvent: func(_ bluetooth.Connection, offset int, value []byte) {
				p.onWrite(attr, offset, value)
			},
		})
	}
	p.mu.Unlock()

	if err := p.adapter.AddService(svc); err != nil {
		return fmt.Errorf("ble add service %s: %w", s.id.UUID, err)
	}

	p.mu.Lock()
	for i, ch := range s.chars {
		p.handles[ch.handle] = handles[i]
	}
	p.mu.Unlock()
	p.logger.Info("ble: service registered", "uuid", s.id.UUID, "characteristics", len(s.chars))
	return nil
}

func flags(perm transport.Permission, prop transport.Property) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if perm&transport.PermRead != 0 || prop&transport.PropRead != 0 {
		f |= bluetooth.CharacteristicReadPermission
	}
	if perm&transport.PermWrite != 0 || prop&transport.PropWrite != 0 {
		f |= bluetooth.CharacteristicWritePermission
	}
	if prop&transport.PropWriteNoResp != 0 {
		f |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if prop&transport.PropNotify != 0 {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	return f
}

// onWrite runs on a library goroutine. The host has already acknowledged
// the write, so the event asks for a response only to keep the session
// flow uniform; SendResponse then completes locally.
func (p *Peripheral) onWrite(handle transport.Handle, offset int, value []byte) {
	p.mu.Lock()
	p.nextTrans++
	ev := transport.WriteEvent{
		ConnID:       p.conn,
		TransID:      p.nextTrans,
		Address:      p.peer,
		Handle:       handle,
		Offset:       uint16(offset),
		Value:        append([]byte(nil), value...),
		NeedResponse: true,
	}
	iface := p.iface
	p.mu.Unlock()
	p.emit.Gatt(ev, iface)
}

func (p *Peripheral) SendResponse(_ transport.InterfaceHandle, conn transport.ConnID, transID uint32, status transport.Status, _ []byte) error {
	p.mu.Lock()
	iface := p.iface
	connected := p.connected && p.conn == conn
	p.mu.Unlock()
	if !connected {
		return fmt.Errorf("conn %d: %w", conn, transport.ErrNotConnected)
	}
	p.logger.Debug("ble: write response", "trans_id", transID, "status", status)
	p.emit.Gatt(transport.ResponseEvent{Status: status}, iface)
	return nil
}

// UpdateConnectionParameters is acknowledged with the requested values;
// BlueZ owns the link parameters of a peripheral.
func (p *Peripheral) UpdateConnectionParameters(cp transport.ConnParams) error {
	p.emit.Gap(transport.ConnParamsUpdateEvent{
		Status:      transport.StatusOK,
		Address:     cp.Address,
		MinInterval: uint16(cp.MinInterval / (1250 * time.Microsecond)),
		MaxInterval: uint16(cp.MaxInterval / (1250 * time.Microsecond)),
		Latency:     cp.Latency,
		Timeout:     uint16(cp.Timeout / (10 * time.Millisecond)),
	})
	return nil
}

func (p *Peripheral) onConnectChange(device bluetooth.Device, connected bool) {
	addr, err := transport.ParseAddress(device.Address.String())
	if err != nil {
		p.logger.Warn("ble: unparsable peer address", "addr", device.Address.String())
		return
	}

	p.mu.Lock()
	iface := p.iface
	var ev transport.GattEvent
	switch {
	case connected && !p.connected:
		p.nextConn++
		p.conn, p.peer, p.connected = p.nextConn, addr, true
		p.started = false
		ev = transport.ConnectEvent{ConnID: p.conn, Address: addr}
	case !connected && p.connected && p.peer == addr:
		p.connected = false
		ev = transport.DisconnectEvent{ConnID: p.conn, Address: addr, Reason: transport.ReasonUnknown}
	}
	p.mu.Unlock()

	if ev != nil {
		p.emit.Gatt(ev, iface)
	}
}
