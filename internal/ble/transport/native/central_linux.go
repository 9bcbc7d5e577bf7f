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

type remoteChar struct {
	elem transport.CharacteristicElem
	char bluetooth.DeviceCharacteristic
}

type remoteService struct {
	uuid  transport.UUID16
	start transport.Handle
	end   transport.Handle
	chars []remoteChar
}

type remote struct {
	device   bluetooth.Device
	addr     transport.Address
	services []remoteService
	searched bool
}

// Central drives a BlueZ adapter as a GATT client.
type Central struct {
	adapter *bluetooth.Adapter
	opts    Options
	emit    *transport.Emitter
	logger  *slog.Logger

	mu       sync.Mutex
	iface    transport.InterfaceHandle
	mtu      uint16
	scanning bool
	stopped  bool
	nextConn transport.ConnID
	links    map[transport.ConnID]*remote
}

var _ transport.Central = (*Central)(nil)

func NewCentral(opts Options, p transport.Poster, logger *slog.Logger) *Central {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Central{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		emit:    transport.NewEmitter(p),
		logger:  logger.With("component", "ble_native_central", "adapter", opts.Adapter),
		iface:   transport.NoInterface,
		mtu:     attMTU,
		links:   make(map[transport.ConnID]*remote),
	}
}

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
	c.mu.Lock()
	registered := c.iface != transport.NoInterface
	c.mu.Unlock()
	if registered {
		return fmt.Errorf("app %d: %w", id, transport.ErrRegisterAppFailed)
	}

	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w: %w", c.opts.Adapter, transport.ErrRegisterAppFailed, err)
	}
	c.adapter.SetConnectHandler(c.onConnectChange)
	c.logger.Info("ble: adapter enabled")

	c.mu.Lock()
	c.iface = firstIface
	c.mu.Unlock()
	c.emit.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: id}, firstIface)
	return nil
}

func (c *Central) SetLocalMtu(size uint16) error {
	if err := checkMTU(size); err != nil {
		return err
	}
	c.mu.Lock()
	c.mtu = size
	c.mu.Unlock()
	return nil
}

// SetScanParameters is accepted as is; BlueZ picks its own scan timing.
func (c *Central) SetScanParameters(transport.ScanParams) error {
	c.emit.Gap(transport.ScanParamsSetEvent{Status: transport.StatusOK})
	return nil
}

func (c *Central) StartScanning(d time.Duration) error {
	if d <= 0 {
		return transport.ErrInvalidArgument
	}
	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return nil
	}
	c.scanning = true
	c.stopped = false
	c.mu.Unlock()

	c.emit.Gap(transport.ScanStartEvent{Status: transport.StatusOK})
	go c.scan(d)
	return nil
}

func (c *Central) scan(d time.Duration) {
	timer := time.AfterFunc(d, func() { _ = c.adapter.StopScan() })
	defer timer.Stop()

	// adapter.Scan blocks until StopScan() or error.
	err := c.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		addr, perr := transport.ParseAddress(r.Address.String())
		if perr != nil {
			return
		}
		c.emit.Gap(transport.ScanResultEvent{
			Address:     addr,
			AddressType: addressType(r.Address),
			Name:        r.LocalName(),
			RSSI:        r.RSSI,
		})
	})

	c.mu.Lock()
	c.scanning = false
	stopped := c.stopped
	c.mu.Unlock()

	switch {
	case err != nil:
		c.logger.Warn("ble scan failed", "error", err)
		c.emit.Gap(transport.ScanStopEvent{Status: transport.StatusError})
	case stopped:
		c.emit.Gap(transport.ScanStopEvent{Status: transport.StatusOK})
	default:
		c.emit.Gap(transport.ScanCompleteEvent{})
	}
}

func (c *Central) StopScanning() error {
	c.mu.Lock()
	if !c.scanning {
		c.mu.Unlock()
		c.emit.Gap(transport.ScanStopEvent{Status: transport.StatusOK})
		return nil
	}
	c.stopped = true
	c.mu.Unlock()
	return c.adapter.StopScan()
}

func (c *Central) OpenConnection(iface transport.InterfaceHandle, addr transport.Address, kind transport.AddressType, _ bool) error {
	mac, err := bluetooth.ParseMAC(addr.String())
	if err != nil {
		return fmt.Errorf("%s: %w", addr, transport.ErrInvalidArgument)
	}
	target := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	target.SetRandom(kind == transport.AddressRandom)

	go func() {
		device, err := c.adapter.Connect(target, bluetooth.ConnectionParams{})
		if err != nil {
			c.logger.Warn("ble connect failed", "addr", addr, "error", err)
			c.emit.Gatt(transport.OpenEvent{Status: transport.StatusConnectionFailed, Address: addr}, iface)
			return
		}

		c.mu.Lock()
		c.nextConn++
		conn := c.nextConn
		r := &remote{device: device, addr: addr}
		c.links[conn] = r
		c.mu.Unlock()

		c.emit.Gatt(transport.ConnectEvent{ConnID: conn, Address: addr}, iface)
		c.emit.Gatt(transport.OpenEvent{Status: transport.StatusOK, ConnID: conn, Address: addr, MTU: attMTU}, iface)

		status := transport.StatusOK
		services, err := discover(device)
		if err != nil {
			c.logger.Warn("ble discovery failed", "addr", addr, "error", err)
			status = transport.StatusError
		}
		c.mu.Lock()
		r.services = services
		c.mu.Unlock()
		c.emit.Gatt(transport.DiscoveryCompleteEvent{Status: status, ConnID: conn}, iface)
	}()
	return nil
}

// discover walks the remote database and numbers its attributes the way a
// host stack would: one handle per service declaration, two per
// characteristic.
func discover(device bluetooth.Device) ([]remoteService, error) {
	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	var out []remoteService
	next := transport.Handle(1)
	for _, svc := range svcs {
		if !svc.UUID().Is16Bit() {
			continue
		}
		rs := remoteService{uuid: transport.UUID16(svc.UUID().Get16Bit()), start: next}
		next++

		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID(), err)
		}
		for _, ch := range chars {
			if !ch.UUID().Is16Bit() {
				next += 2
				continue
			}
			rs.chars = append(rs.chars, remoteChar{
				elem: transport.CharacteristicElem{
					Handle:     next + 1,
					UUID:       transport.UUID16(ch.UUID().Get16Bit()),
					Properties: transport.PropRead | transport.PropWrite,
				},
				char: ch,
			})
			next += 2
		}
		rs.end = next - 1
		out = append(out, rs)
	}
	return out, nil
}

func (c *Central) CloseConnection(iface transport.InterfaceHandle, conn transport.ConnID) error {
	c.mu.Lock()
	r, ok := c.links[conn]
	delete(c.links, conn)
	c.mu.Unlock()

	if !ok {
		c.emit.Gatt(transport.CloseEvent{Status: transport.StatusOK, ConnID: conn}, iface)
		return nil
	}
	go func() {
		status := transport.StatusOK
		if err := r.device.Disconnect(); err != nil {
			c.logger.Warn("ble disconnect failed", "addr", r.addr, "error", err)
			status = transport.StatusError
		}
		c.emit.Gatt(transport.DisconnectEvent{ConnID: conn, Address: r.addr, Reason: transport.ReasonLocalHostTerminated}, iface)
		c.emit.Gatt(transport.CloseEvent{Status: status, ConnID: conn}, iface)
	}()
	return nil
}

// onConnectChange reports links the peer or the controller dropped.
func (c *Central) onConnectChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	addr, err := transport.ParseAddress(device.Address.String())
	if err != nil {
		return
	}

	c.mu.Lock()
	iface := c.iface
	var dropped []transport.ConnID
	for id, r := range c.links {
		if r.addr == addr {
			dropped = append(dropped, id)
			delete(c.links, id)
		}
	}
	c.mu.Unlock()

	for _, id := range dropped {
		c.emit.Gatt(transport.DisconnectEvent{ConnID: id, Address: addr, Reason: transport.ReasonUnknown}, iface)
	}
}

func (c *Central) link(conn transport.ConnID) (*remote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.links[conn]
	if !ok {
		return nil, fmt.Errorf("conn %d: %w", conn, transport.ErrNotConnected)
	}
	return r, nil
}

// SendMtuRequest reports the ATT default: BlueZ runs the exchange itself and
// the library does not expose the result.
func (c *Central) SendMtuRequest(iface transport.InterfaceHandle, conn transport.ConnID) error {
	if _, err := c.link(conn); err != nil {
		return err
	}
	c.emit.Gatt(transport.MtuEvent{Status: transport.StatusOK, ConnID: conn, MTU: attMTU}, iface)
	return nil
}

func (c *Central) SearchService(iface transport.InterfaceHandle, conn transport.ConnID, filter *transport.UUID16) error {
	c.mu.Lock()
	r, ok := c.links[conn]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("conn %d: %w", conn, transport.ErrNotConnected)
	}
	var results []transport.SearchResultEvent
	for _, s := range r.services {
		if filter != nil && s.uuid != *filter {
			continue
		}
		results = append(results, transport.SearchResultEvent{ConnID: conn, UUID: s.uuid, StartHandle: s.start, EndHandle: s.end, Primary: true})
	}
	source := transport.SourceRemoteDevice
	if r.searched {
		source = transport.SourceCache
	}
	r.searched = true
	c.mu.Unlock()

	for _, ev := range results {
		c.emit.Gatt(ev, iface)
	}
	c.emit.Gatt(transport.SearchCompleteEvent{Status: transport.StatusOK, ConnID: conn, Source: source}, iface)
	return nil
}

func (c *Central) GetAttributeCount(_ transport.InterfaceHandle, conn transport.ConnID, kind transport.AttrType, start, end, _ transport.Handle) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.links[conn]
	if !ok {
		return 0, fmt.Errorf("conn %d: %w", conn, transport.ErrNotConnected)
	}

	n := 0
	for _, s := range r.services {
		switch kind {
		case transport.AttrService:
			if s.start >= start && s.start <= end {
				n++
			}
		case transport.AttrCharacteristic:
			for _, ch := range s.chars {
				if ch.elem.Handle >= start && ch.elem.Handle <= end {
					n++
				}
			}
		}
	}
	return n, nil
}

func (c *Central) GetCharacteristicByUUID(_ transport.InterfaceHandle, conn transport.ConnID, start, end transport.Handle, uuid transport.UUID16) ([]transport.CharacteristicElem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.links[conn]
	if !ok {
		return nil, fmt.Errorf("conn %d: %w", conn, transport.ErrNotConnected)
	}

	var out []transport.CharacteristicElem
	for _, s := range r.services {
		for _, ch := range s.chars {
			if ch.elem.UUID == uuid && ch.elem.Handle >= start && ch.elem.Handle <= end {
				out = append(out, ch.elem)
			}
		}
	}
	return out, nil
}

func (c *Central) WriteCharacteristic(iface transport.InterfaceHandle, conn transport.ConnID, handle transport.Handle, value []byte, wt transport.WriteType, _ transport.AuthReq) error {
	c.mu.Lock()
	r, ok := c.links[conn]
	var target *bluetooth.DeviceCharacteristic
	if ok {
		for _, s := range r.services {
			for i := range s.chars {
				if s.chars[i].elem.Handle == handle {
					target = &s.chars[i].char
				}
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("conn %d: %w", conn, transport.ErrNotConnected)
	}
	if target == nil {
		c.emit.Gatt(transport.WriteCharEvent{Status: transport.StatusInvalidHandle, ConnID: conn, Handle: handle}, iface)
		return nil
	}

	buf := append([]byte(nil), value...)
	go func() {
		var err error
		if wt == transport.WriteNoResponse {
			_, err = target.WriteWithoutResponse(buf)
		} else {
			_, err = target.Write(buf)
		}
		status := transport.StatusOK
		if err != nil {
			c.logger.Warn("ble write failed", "conn_id", conn, "handle", handle, "error", err)
			status = transport.StatusError
		}
		c.emit.Gatt(transport.WriteCharEvent{Status: status, ConnID: conn, Handle: handle}, iface)
	}()
	return nil
}

func addressType(a bluetooth.Address) transport.AddressType {
	if a.IsRandom() {
		return transport.AddressRandom
	}
	return transport.AddressPublic
}
