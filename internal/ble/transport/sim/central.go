package sim

import (
	"fmt"
	"time"

	"smart-greenhouse/internal/ble/transport"
)

// Central is a simulated GATT client. One application profile per node.
type Central struct {
	air  *Air
	addr transport.Address
	emit *transport.Emitter

	// guarded by air.mu
	iface    transport.InterfaceHandle
	mtu      uint16
	scanning bool
	scanGen  uint64
	timer    *time.Timer
	// cached holds the peers whose database this central has already
	// discovered once.
	cached map[transport.Address]bool
}

var _ transport.Central = (*Central)(nil)

// NewCentral attaches a central with address addr to a. Its events are posted
// to p.
func NewCentral(a *Air, addr transport.Address, p transport.Poster) *Central {
	c := &Central{
		air:    a,
		addr:   addr,
		emit:   transport.NewEmitter(p),
		iface:  transport.NoInterface,
		mtu:    minMTU,
		cached: make(map[transport.Address]bool),
	}
	a.mu.Lock()
	a.centrals = append(a.centrals, c)
	a.mu.Unlock()
	return c
}

func (c *Central) Address() transport.Address { return c.addr }

func (c *Central) RegisterGapCallback(h transport.GapHandler) error {
	return c.emit.SetGap(h)
}

func (c *Central) RegisterGattCallback(h transport.GattHandler) error {
	return c.emit.SetGatt(h)
}

func (c *Central) RegisterApplicationProfile(id transport.AppID) error {
	if !c.emit.HasGatt() {
		return transport.ErrRegisterAppFailed
	}
	return c.air.doErr(func(out *outbox) error {
		if c.iface != transport.NoInterface {
			return fmt.Errorf("app %d: %w", id, transport.ErrRegisterAppFailed)
		}
		c.iface = firstIface
		iface := c.iface
		out.add(func() { c.emit.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: id}, iface) })
		return nil
	})
}

func (c *Central) SetLocalMtu(size uint16) error {
	if size < minMTU || size > maxMTU {
		return transport.ErrSetLocalMtuFailed
	}
	c.air.mu.Lock()
	c.mtu = size
	c.air.mu.Unlock()
	return nil
}

func (c *Central) SetScanParameters(transport.ScanParams) error {
	c.emit.Gap(transport.ScanParamsSetEvent{Status: transport.StatusOK})
	return nil
}

func (c *Central) StartScanning(d time.Duration) error {
	if d <= 0 {
		return transport.ErrInvalidArgument
	}
	c.air.do(func(out *outbox) {
		if c.scanning {
			return
		}
		c.scanning = true
		c.scanGen++
		gen := c.scanGen
		c.timer = time.AfterFunc(d, func() { c.scanExpired(gen) })

		out.add(func() { c.emit.Gap(transport.ScanStartEvent{Status: transport.StatusOK}) })
		for _, p := range c.air.peripherals {
			if p.advertising {
				c.report(out, p)
			}
		}
	})
	return nil
}

func (c *Central) scanExpired(gen uint64) {
	c.air.do(func(out *outbox) {
		if !c.scanning || c.scanGen != gen {
			return
		}
		c.scanning = false
		out.add(func() { c.emit.Gap(transport.ScanCompleteEvent{}) })
	})
}

func (c *Central) StopScanning() error {
	c.air.do(func(out *outbox) {
		if c.scanning {
			c.scanning = false
			c.timer.Stop()
		}
		out.add(func() { c.emit.Gap(transport.ScanStopEvent{Status: transport.StatusOK}) })
	})
	return nil
}

// report emits a scan result for p. Callers hold air.mu.
func (c *Central) report(out *outbox, p *Peripheral) {
	ev := transport.ScanResultEvent{Address: p.addr, AddressType: transport.AddressPublic, Name: p.name, RSSI: -50}
	out.add(func() { c.emit.Gap(ev) })
}

func (c *Central) OpenConnection(iface transport.InterfaceHandle, addr transport.Address, _ transport.AddressType, _ bool) error {
	return c.air.doErr(func(out *outbox) error {
		if iface != c.iface {
			return transport.ErrInvalidArgument
		}
		p, ok := c.air.peripherals[addr]
		if !ok || !p.advertising {
			out.add(func() {
				c.emit.Gatt(transport.OpenEvent{Status: transport.StatusConnectionFailed, Address: addr}, iface)
			})
			return nil
		}

		c.air.nextConn++
		l := &link{id: c.air.nextConn, central: c, peripheral: p}
		c.air.links[l.id] = l
		p.advertising = false

		pIface := p.iface
		out.add(func() { c.emit.Gatt(transport.ConnectEvent{ConnID: l.id, Address: addr}, iface) })
		out.add(func() {
			c.emit.Gatt(transport.OpenEvent{Status: transport.StatusOK, ConnID: l.id, Address: addr, MTU: minMTU}, iface)
		})
		out.add(func() { p.emit.Gatt(transport.ConnectEvent{ConnID: l.id, Address: c.addr}, pIface) })
		out.add(func() {
			c.emit.Gatt(transport.DiscoveryCompleteEvent{Status: transport.StatusOK, ConnID: l.id}, iface)
		})
		return nil
	})
}

func (c *Central) CloseConnection(iface transport.InterfaceHandle, conn transport.ConnID) error {
	c.air.do(func(out *outbox) {
		if l, ok := c.air.linkFor(conn); ok && l.central == c {
			c.air.teardown(out, l, transport.ReasonLocalHostTerminated, transport.ReasonRemoteTerminated)
		}
		out.add(func() { c.emit.Gatt(transport.CloseEvent{Status: transport.StatusOK, ConnID: conn}, iface) })
	})
	return nil
}

// ownLink returns the link conn if it belongs to c. Callers hold air.mu.
func (c *Central) ownLink(conn transport.ConnID) (*link, error) {
	l, ok := c.air.linkFor(conn)
	if !ok || l.central != c {
		return nil, fmt.Errorf("conn %d: %w", conn, transport.ErrNotConnected)
	}
	return l, nil
}

func (c *Central) SendMtuRequest(iface transport.InterfaceHandle, conn transport.ConnID) error {
	return c.air.doErr(func(out *outbox) error {
		l, err := c.ownLink(conn)
		if err != nil {
			return err
		}
		p := l.peripheral
		mtu := min(c.mtu, p.mtu)
		pIface := p.iface
		out.add(func() { c.emit.Gatt(transport.MtuEvent{Status: transport.StatusOK, ConnID: conn, MTU: mtu}, iface) })
		out.add(func() { p.emit.Gatt(transport.MtuEvent{Status: transport.StatusOK, ConnID: conn, MTU: mtu}, pIface) })
		return nil
	})
}

func (c *Central) SearchService(iface transport.InterfaceHandle, conn transport.ConnID, filter *transport.UUID16) error {
	return c.air.doErr(func(out *outbox) error {
		l, err := c.ownLink(conn)
		if err != nil {
			return err
		}
		p := l.peripheral
		for _, s := range p.db.services {
			if !s.started || (filter != nil && s.id.UUID != *filter) {
				continue
			}
			ev := transport.SearchResultEvent{ConnID: conn, UUID: s.id.UUID, StartHandle: s.start, EndHandle: s.end, Primary: s.id.Primary}
			out.add(func() { c.emit.Gatt(ev, iface) })
		}

		source := transport.SourceRemoteDevice
		if c.cached[p.addr] {
			source = transport.SourceCache
		}
		c.cached[p.addr] = true
		out.add(func() {
			c.emit.Gatt(transport.SearchCompleteEvent{Status: transport.StatusOK, ConnID: conn, Source: source}, iface)
		})
		return nil
	})
}

func (c *Central) GetAttributeCount(_ transport.InterfaceHandle, conn transport.ConnID, kind transport.AttrType, start, end, _ transport.Handle) (int, error) {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	l, err := c.ownLink(conn)
	if err != nil {
		return 0, err
	}
	return l.peripheral.db.count(kind, start, end), nil
}

func (c *Central) GetCharacteristicByUUID(_ transport.InterfaceHandle, conn transport.ConnID, start, end transport.Handle, uuid transport.UUID16) ([]transport.CharacteristicElem, error) {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	l, err := c.ownLink(conn)
	if err != nil {
		return nil, err
	}
	return l.peripheral.db.characteristics(start, end, uuid), nil
}

func (c *Central) WriteCharacteristic(iface transport.InterfaceHandle, conn transport.ConnID, handle transport.Handle, value []byte, wt transport.WriteType, _ transport.AuthReq) error {
	return c.air.doErr(func(out *outbox) error {
		l, err := c.ownLink(conn)
		if err != nil {
			return err
		}
		p := l.peripheral
		attr, ok := p.db.attrs[handle]
		if !ok {
			out.add(func() {
				c.emit.Gatt(transport.WriteCharEvent{Status: transport.StatusInvalidHandle, ConnID: conn, Handle: handle}, iface)
			})
			return nil
		}
		if attr.perm&transport.PermWrite == 0 {
			out.add(func() {
				c.emit.Gatt(transport.WriteCharEvent{Status: transport.StatusWriteNotPermit, ConnID: conn, Handle: handle}, iface)
			})
			return nil
		}

		c.air.nextTrans++
		ev := transport.WriteEvent{
			ConnID:       conn,
			TransID:      c.air.nextTrans,
			Address:      c.addr,
			Handle:       handle,
			Value:        append([]byte(nil), value...),
			NeedResponse: wt == transport.WriteWithResponse,
		}
		if ev.NeedResponse {
			p.pending[ev.TransID] = pendingWrite{central: c, conn: conn, handle: handle, iface: iface, value: ev.Value}
		} else {
			attr.value = ev.Value
			out.add(func() {
				c.emit.Gatt(transport.WriteCharEvent{Status: transport.StatusOK, ConnID: conn, Handle: handle}, iface)
			})
		}
		pIface := p.iface
		out.add(func() { p.emit.Gatt(ev, pIface) })
		return nil
	})
}
