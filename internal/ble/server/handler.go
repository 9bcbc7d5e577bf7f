package server

import (
	"encoding/binary"
	"errors"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/events"
	"smart-greenhouse/internal/sample"
	"smart-greenhouse/internal/utils"
)

const cccdNotify = 0x0001

func (c *Controller) handleGap(ev transport.GapEvent) {
	switch e := ev.(type) {
	case transport.AdvDataSetEvent:
		if e.Status != transport.StatusOK {
			c.logger.Error("set advertising data failed", "status", e.Status)
			return
		}
		c.advDataSet = true
		c.maybeStartAdvertising()

	case transport.ScanRspDataSetEvent:
		if e.Status != transport.StatusOK {
			c.logger.Error("set scan response data failed", "status", e.Status)
			return
		}
		c.scanRspSet = true
		c.maybeStartAdvertising()

	case transport.AdvStartEvent:
		c.advPending = false
		if e.Status != transport.StatusOK {
			c.logger.Error("advertising start failed", "status", e.Status)
			return
		}
		if c.status.Connected() {
			return
		}
		c.holder.advertising.Store(true)
		c.logger.Info("advertising", "device_name", c.opts.DeviceName)

	case transport.ConnParamsUpdateEvent:
		c.logger.Info("connection params updated",
			"status", e.Status,
			"min_int", e.MinInterval,
			"max_int", e.MaxInterval,
			"latency", e.Latency,
			"timeout", e.Timeout,
		)

	default:
		c.logger.Debug("unhandled gap event", "event", ev)
	}
}

func (c *Controller) handleGatt(ev transport.GattEvent, iface transport.InterfaceHandle) {
	switch e := ev.(type) {
	case transport.RegisterEvent:
		c.onRegister(e, iface)

	case transport.CreateServiceEvent:
		c.onCreateService(e)

	case transport.StartServiceEvent:
		if e.Status != transport.StatusOK {
			c.logger.Error("start service failed", "service_handle", e.ServiceHandle, "status", e.Status)
			return
		}
		c.logger.Info("service started", "service_handle", e.ServiceHandle)

	case transport.AddCharEvent:
		c.onAddChar(e)

	case transport.AddDescrEvent:
		if e.Status != transport.StatusOK {
			c.logger.Error("add descriptor failed", "status", e.Status)
			return
		}
		c.cccdHandle = e.AttrHandle
		c.logger.Info("service ready",
			"service_handle", c.entry.ServiceStart,
			"char_handle", c.entry.CharHandle,
			"cccd_handle", c.cccdHandle,
		)

	case transport.ConnectEvent:
		c.onConnect(e)

	case transport.MtuEvent:
		c.logger.Info("mtu configured", "conn_id", e.ConnID, "mtu", e.MTU)

	case transport.WriteEvent:
		c.onWrite(e)

	case transport.ResponseEvent:
		if e.Status != transport.StatusOK {
			c.logger.Warn("response not sent", "handle", e.Handle, "status", e.Status)
		}

	case transport.DisconnectEvent:
		c.onDisconnect(e)

	default:
		c.logger.Debug("unhandled gatts event", "event", ev)
	}
}

func (c *Controller) onRegister(e transport.RegisterEvent, iface transport.InterfaceHandle) {
	c.logger.Info("gatts registered", "app_id", e.AppID, "iface", iface)
	c.holder.setup.Store(int32(StateServiceConfig))

	if err := c.peripheral.SetDeviceName(c.opts.DeviceName); err != nil {
		c.logger.Error("set device name failed", "error", err)
	}
	if err := c.peripheral.SetAdvertisingData(*c.opts.AdvData); err != nil {
		c.logger.Error("config advertising data failed", "error", err)
	}
	if err := c.peripheral.SetScanResponseData(*c.opts.ScanRspData); err != nil {
		c.logger.Error("config scan response data failed", "error", err)
	}

	id := transport.ServiceID{UUID: ble.ServiceUUID, Primary: true}
	if err := c.peripheral.CreateService(iface, id, ble.ServiceNumHandles); err != nil {
		c.logger.Error("create service failed", "error", err)
		return
	}
	c.holder.setup.Store(int32(StateServiceCreating))
}

func (c *Controller) onCreateService(e transport.CreateServiceEvent) {
	if e.Status != transport.StatusOK {
		c.logger.Error("create service failed", "status", e.Status)
		return
	}
	c.entry.ServiceStart = e.ServiceHandle
	c.entry.ServiceEnd = e.ServiceHandle + ble.ServiceNumHandles - 1
	c.logger.Info("service created", "uuid", e.ServiceID.UUID, "service_handle", e.ServiceHandle)

	c.holder.setup.Store(int32(StateServiceStarting))
	if err := c.peripheral.StartService(e.ServiceHandle); err != nil {
		c.logger.Error("start service failed", "error", err)
		return
	}

	c.holder.setup.Store(int32(StateCharacteristicAdding))
	err := c.peripheral.AddCharacteristic(e.ServiceHandle, ble.CharUUID,
		transport.PermRead|transport.PermWrite,
		transport.PropRead|transport.PropWrite|transport.PropNotify,
		make([]byte, sample.PayloadLen))
	if err != nil {
		c.logger.Error("add characteristic failed", "error", err)
	}
}

func (c *Controller) onAddChar(e transport.AddCharEvent) {
	if e.Status != transport.StatusOK {
		c.logger.Error("add characteristic failed", "status", e.Status)
		return
	}
	c.entry.CharHandle = e.AttrHandle
	c.logger.Info("characteristic added", "uuid", e.UUID, "char_handle", e.AttrHandle)

	c.holder.setup.Store(int32(StateDescriptorAdding))
	err := c.peripheral.AddCharacteristicDescriptor(e.ServiceHandle, ble.CCCDUUID, transport.PermRead|transport.PermWrite)
	if err != nil {
		c.logger.Error("add descriptor failed", "error", err)
	}
}

func (c *Controller) onConnect(e transport.ConnectEvent) {
	c.entry.ConnID = e.ConnID
	c.entry.RemoteAddress = e.Address
	c.status.Set(true)
	c.holder.connected.Store(true)
	c.holder.advertising.Store(false)
	c.holder.dropped.Store(false)
	c.opts.Indicator.SetStatus(ble.IndicatorConnected)
	c.logger.Info("client connected", "conn_id", e.ConnID, "addr", e.Address)

	p := *c.opts.ConnParams
	p.Address = e.Address
	if err := c.peripheral.UpdateConnectionParameters(p); err != nil {
		c.logger.Warn("update connection params failed", "addr", e.Address, "error", err)
	}
}

func (c *Controller) onWrite(e transport.WriteEvent) {
	if e.Prepare {
		c.logger.Warn("prepared write rejected", "conn_id", e.ConnID, "handle", e.Handle)
		c.respond(e, transport.StatusRequestNotSupp)
		return
	}

	switch {
	case e.Handle != 0 && e.Handle == c.entry.CharHandle:
		c.onSampleWrite(e)

	case e.Handle != 0 && e.Handle == c.cccdHandle:
		if len(e.Value) != 2 {
			c.respond(e, transport.StatusInvalidAttrLen)
			return
		}
		c.notifyEnabled = binary.LittleEndian.Uint16(e.Value)&cccdNotify != 0
		c.logger.Info("notifications configured", "conn_id", e.ConnID, "enabled", c.notifyEnabled)
		c.respond(e, transport.StatusOK)

	default:
		c.logger.Warn("write to unknown handle", "conn_id", e.ConnID, "handle", e.Handle)
		c.respond(e, transport.StatusInvalidHandle)
	}
}

func (c *Controller) onSampleWrite(e transport.WriteEvent) {
	if e.Offset != 0 {
		c.respond(e, transport.StatusInvalidOffset)
		return
	}
	s, err := sample.Decode(e.Value)
	if err != nil {
		c.logger.Warn("sample dropped", "conn_id", e.ConnID, "len", len(e.Value), "payload", utils.BytesToHex(e.Value), "error", err)
		status := transport.StatusError
		if errors.Is(err, sample.ErrMalformedPayload) && len(e.Value) != sample.PayloadLen {
			status = transport.StatusInvalidAttrLen
		}
		c.respond(e, status)
		return
	}
	c.respond(e, transport.StatusOK)

	c.logger.Debug("sample received", "conn_id", e.ConnID, "client_id", s.ClientID, "sequence", s.Sequence)
	c.scheduler.PostAfter(c.opts.WriteFollowUpDelay, func() {
		c.notifier.Notify(events.SensorDataReceived, s)
	})
}

func (c *Controller) onDisconnect(e transport.DisconnectEvent) {
	c.status.Set(false)
	c.holder.connected.Store(false)
	c.holder.advertising.Store(false)
	c.holder.dropped.Store(true)
	c.entry.ClearLink()
	c.notifyEnabled = false
	c.opts.Indicator.SetStatus(ble.IndicatorNotConnected)
	c.logger.Info("client disconnected", "conn_id", e.ConnID, "addr", e.Address, "reason", e.Reason)

	c.startAdvertising()
}
