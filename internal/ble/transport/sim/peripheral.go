package sim

import (
	"fmt"
	"time"

	"smart-greenhouse/internal/ble/transport"
)

type pendingWrite struct {
	central *Central
	conn    transport.ConnID
	handle  transport.Handle
	iface   transport.InterfaceHandle
	value   []byte
}

// Peripheral is a simulated GATT server. One application profile per node.
type Peripheral struct {
	air  *Air
	addr transport.Address
	emit *transport.Emitter

	// guarded by air.mu
	iface       transport.InterfaceHandle
	mtu         uint16
	name        string
	advertising bool
	db          *database
	pending     map[uint32]pendingWrite
}

var _ transport.Peripheral = (*Peripheral)(nil)

// NewPeripheral attaches a peripheral with address addr to a. Its events are
// posted to p.
func NewPeripheral(a *Air, addr transport.Address, p transport.Poster) *Peripheral {
	per := &Peripheral{
		air:     a,
		addr:    addr,
		emit:    transport.NewEmitter(p),
		iface:   transport.NoInterface,
		mtu:     minMTU,
		db:      newDatabase(),
		pending: make(map[uint32]pendingWrite),
	}
	a.mu.Lock()
	a.peripherals[addr] = per
	a.mu.Unlock()
	return per
}

func (p *Peripheral) Address() transport.Address { return p.addr }

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
	return p.air.doErr(func(out *outbox) error {
		if p.iface != transport.NoInterface {
			return fmt.Errorf("app %d: %w", id, transport.ErrRegisterAppFailed)
		}
		p.iface = firstIface
		iface := p.iface
		out.add(func() { p.emit.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: id}, iface) })
		return nil
	})
}

func (p *Peripheral) SetLocalMtu(size uint16) error {
	if size < minMTU || size > maxMTU {
		return transport.ErrSetLocalMtuFailed
	}
	p.air.mu.Lock()
	p.mtu = size
	p.air.mu.Unlock()
	return nil
}

func (p *Peripheral) SetDeviceName(name string) error {
	if name == "" {
		return transport.ErrInvalidArgument
	}
	p.air.mu.Lock()
	p.name = name
	p.air.mu.Unlock()
	return nil
}

func (p *Peripheral) SetAdvertisingData(transport.AdvData) error {
	p.emit.Gap(transport.AdvDataSetEvent{Status: transport.StatusOK})
	return nil
}

func (p *Peripheral) SetScanResponseData(transport.AdvData) error {
	p.emit.Gap(transport.ScanRspDataSetEvent{Status: transport.StatusOK})
	return nil
}

func (p *Peripheral) StartAdvertising(transport.AdvParams) error {
	p.air.do(func(out *outbox) {
		p.advertising = true
		out.add(func() { p.emit.Gap(transport.AdvStartEvent{Status: transport.StatusOK}) })
		p.air.advertised(out, p)
	})
	return nil
}

// Advertising reports whether p is currently visible to scanners.
func (p *Peripheral) Advertising() bool {
	p.air.mu.Lock()
	defer p.air.mu.Unlock()
	return p.advertising
}

func (p *Peripheral) CreateService(iface transport.InterfaceHandle, id transport.ServiceID, numHandles uint16) error {
	p.air.do(func(out *outbox) {
		s, ok := p.db.createService(id, numHandles)
		ev := transport.CreateServiceEvent{Status: transport.StatusNoResources, ServiceID: id}
		if ok {
			ev.Status = transport.StatusOK
			ev.ServiceHandle = s.start
		}
		out.add(func() { p.emit.Gatt(ev, iface) })
	})
	return nil
}

func (p *Peripheral) StartService(h transport.Handle) error {
	p.air.do(func(out *outbox) {
		ev := transport.StartServiceEvent{Status: transport.StatusInvalidHandle, ServiceHandle: h}
		if s, ok := p.db.service(h); ok {
			s.started = true
			ev.Status = transport.StatusOK
		}
		iface := p.iface
		out.add(func() { p.emit.Gatt(ev, iface) })
	})
	return nil
}

func (p *Peripheral) AddCharacteristic(h transport.Handle, uuid transport.UUID16, perm transport.Permission, prop transport.Property, initial []byte) error {
	p.air.do(func(out *outbox) {
		ev := transport.AddCharEvent{Status: transport.StatusInvalidHandle, ServiceHandle: h, UUID: uuid}
		if s, ok := p.db.service(h); ok {
			ev.Status = transport.StatusNoResources
			if value, ok := p.db.addCharacteristic(s, uuid, perm, prop, initial); ok {
				ev.Status = transport.StatusOK
				ev.AttrHandle = value
			}
		}
		iface := p.iface
		out.add(func() { p.emit.Gatt(ev, iface) })
	})
	return nil
}

func (p *Peripheral) AddCharacteristicDescriptor(h transport.Handle, uuid transport.UUID16, perm transport.Permission) error {
	p.air.do(func(out *outbox) {
		ev := transport.AddDescrEvent{Status: transport.StatusInvalidHandle, ServiceHandle: h, UUID: uuid}
		if s, ok := p.db.service(h); ok {
			ev.Status = transport.StatusNoResources
			if dh, ok := p.db.addDescriptor(s, uuid, perm); ok {
				ev.Status = transport.StatusOK
				ev.AttrHandle = dh
			}
		}
		iface := p.iface
		out.add(func() { p.emit.Gatt(ev, iface) })
	})
	return nil
}

func (p *Peripheral) SendResponse(iface transport.InterfaceHandle, conn transport.ConnID, transID uint32, status transport.Status, _ []byte) error {
	return p.air.doErr(func(out *outbox) error {
		w, ok := p.pending[transID]
		if !ok || w.conn != conn {
			return fmt.Errorf("trans %d on conn %d: %w", transID, conn, transport.ErrInvalidArgument)
		}
		delete(p.pending, transID)
		if a, ok := p.db.attrs[w.handle]; ok && status == transport.StatusOK {
			a.value = w.value
		}

		c := w.central
		out.add(func() {
			c.emit.Gatt(transport.WriteCharEvent{Status: status, ConnID: conn, Handle: w.handle}, w.iface)
		})
		out.add(func() { p.emit.Gatt(transport.ResponseEvent{Status: transport.StatusOK, Handle: w.handle}, iface) })
		return nil
	})
}

func (p *Peripheral) UpdateConnectionParameters(cp transport.ConnParams) error {
	ev := transport.ConnParamsUpdateEvent{
		Status:      transport.StatusOK,
		Address:     cp.Address,
		MinInterval: uint16(cp.MinInterval / (1250 * time.Microsecond)),
		MaxInterval: uint16(cp.MaxInterval / (1250 * time.Microsecond)),
		Latency:     cp.Latency,
		Timeout:     uint16(cp.Timeout / (10 * time.Millisecond)),
	}
	p.emit.Gap(ev)
	return nil
}
