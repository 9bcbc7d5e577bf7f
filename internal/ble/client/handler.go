package client

import (
	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/sample"
)

func (c *Controller) handleGap(ev transport.GapEvent) {
	switch e := ev.(type) {
	case transport.ScanParamsSetEvent:
		if e.Status != transport.StatusOK {
			c.logger.Error("scan params set failed", "status", e.Status)
			return
		}
		c.paramsSet = true
		c.holder.set(StateScanParamsSet)
		c.startScanning()

	case transport.ScanStartEvent:
		if e.Status != transport.StatusOK {
			c.logger.Error("scan start failed", "status", e.Status)
			if c.holder.get() == StateScanning {
				c.holder.set(StateIdle)
			}
			return
		}
		c.logger.Info("scanning", "duration", c.opts.ScanDuration, "target", c.opts.TargetName)

	case transport.ScanResultEvent:
		c.onScanResult(e)

	case transport.ScanCompleteEvent:
		c.logger.Debug("scan window elapsed")
		if c.holder.get() == StateScanning {
			c.holder.set(StateIdle)
		}

	case transport.ScanStopEvent:
		if e.Status != transport.StatusOK {
			c.logger.Warn("scan stop failed", "status", e.Status)
			return
		}
		c.logger.Debug("scan stopped")

	default:
		c.logger.Debug("unhandled gap event", "event", ev)
	}
}

func (c *Controller) onScanResult(e transport.ScanResultEvent) {
	if e.Name != c.opts.TargetName {
		return
	}
	if c.status.Connected() || c.holder.get().inFlight() || c.stopPending || c.openPending {
		c.logger.Debug("ignore scan result, connection already in flight", "addr", e.Address)
		return
	}

	c.logger.Info("target found", "name", e.Name, "addr", e.Address, "rssi", e.RSSI)
	c.stopPending = true
	if err := c.central.StopScanning(); err != nil {
		c.logger.Warn("stop scanning failed", "error", err)
	}
	if err := c.central.OpenConnection(c.entry.Interface, e.Address, e.AddressType, true); err != nil {
		c.logger.Error("open connection failed", "addr", e.Address, "error", err)
		c.stopPending = false
		c.holder.set(StateIdle)
		return
	}
	c.openPending = true
	c.holder.set(StateConnecting)
}

func (c *Controller) handleGatt(ev transport.GattEvent, iface transport.InterfaceHandle) {
	switch e := ev.(type) {
	case transport.RegisterEvent:
		c.logger.Info("gattc registered", "app_id", e.AppID, "iface", iface)
		c.setScanParams()

	case transport.OpenEvent:
		c.stopPending = false
		c.openPending = false
		if e.Status != transport.StatusOK {
			c.logger.Warn("open failed", "addr", e.Address, "status", e.Status)
			if !c.status.Connected() && c.holder.get() == StateConnecting {
				c.holder.set(StateIdle)
			}
			return
		}
		c.logger.Info("open", "conn_id", e.ConnID, "addr", e.Address, "mtu", e.MTU)

	case transport.ConnectEvent:
		c.onConnect(e)

	case transport.MtuEvent:
		if e.Status != transport.StatusOK {
			c.logger.Warn("mtu exchange failed", "conn_id", e.ConnID, "status", e.Status)
			return
		}
		c.logger.Info("mtu configured", "conn_id", e.ConnID, "mtu", e.MTU)
		if room := int(e.MTU) - 3; room < sample.PayloadLen {
			c.logger.Warn("mtu too small for a single write, the stack will split samples",
				"conn_id", e.ConnID, "mtu", e.MTU, "room", room, "sample_len", sample.PayloadLen)
		}

	case transport.DiscoveryCompleteEvent:
		c.onDiscoveryComplete(e)

	case transport.SearchResultEvent:
		if e.UUID != ble.ServiceUUID {
			return
		}
		c.entry.ServiceStart = e.StartHandle
		c.entry.ServiceEnd = e.EndHandle
		c.logger.Info("service found", "uuid", e.UUID, "start", e.StartHandle, "end", e.EndHandle)

	case transport.SearchCompleteEvent:
		c.onSearchComplete(e)

	case transport.WriteCharEvent:
		if e.Status != transport.StatusOK {
			c.logger.Warn("write failed", "conn_id", e.ConnID, "handle", e.Handle, "status", e.Status)
			return
		}
		c.logger.Debug("write acknowledged", "conn_id", e.ConnID, "handle", e.Handle)

	case transport.DisconnectEvent:
		c.onDisconnect(e)

	case transport.CloseEvent:
		c.logger.Debug("connection closed", "conn_id", e.ConnID, "status", e.Status)

	default:
		c.logger.Debug("unhandled gattc event", "event", ev)
	}
}

func (c *Controller) onConnect(e transport.ConnectEvent) {
	c.openPending = false
	if c.holder.get() != StateConnecting || c.status.Connected() {
		c.logger.Warn("unexpected connection, closing", "conn_id", e.ConnID, "addr", e.Address, "state", c.holder.get())
		if c.refused == nil {
			c.refused = make(map[transport.ConnID]struct{})
		}
		c.refused[e.ConnID] = struct{}{}
		if err := c.central.CloseConnection(c.entry.Interface, e.ConnID); err != nil {
			c.logger.Warn("close connection failed", "conn_id", e.ConnID, "error", err)
		}
		return
	}
	c.entry.ConnID = e.ConnID
	c.entry.RemoteAddress = e.Address
	c.status.Set(true)
	c.opts.Indicator.SetStatus(ble.IndicatorConnected)
	c.logger.Info("connected", "conn_id", e.ConnID, "addr", e.Address)

	c.holder.set(StateMtuNegotiating)
	if err := c.central.SendMtuRequest(c.entry.Interface, e.ConnID); err != nil {
		c.logger.Warn("mtu request failed", "conn_id", e.ConnID, "error", err)
	}
}

func (c *Controller) onDiscoveryComplete(e transport.DiscoveryCompleteEvent) {
	if e.Status != transport.StatusOK {
		c.logger.Warn("remote discovery failed", "conn_id", e.ConnID, "status", e.Status)
		return
	}
	c.entry.ServiceStart, c.entry.ServiceEnd = 0, 0
	filter := ble.ServiceUUID
	c.holder.set(StateDiscoveringService)
	if err := c.central.SearchService(c.entry.Interface, e.ConnID, &filter); err != nil {
		c.logger.Warn("search service failed", "conn_id", e.ConnID, "error", err)
	}
}

func (c *Controller) onSearchComplete(e transport.SearchCompleteEvent) {
	if e.Status != transport.StatusOK {
		c.logger.Warn("service search failed", "conn_id", e.ConnID, "status", e.Status)
		return
	}
	c.logger.Info("service search complete", "conn_id", e.ConnID, "source", e.Source)
	if c.entry.ServiceStart == 0 {
		c.logger.Warn("greenhouse service not found", "conn_id", e.ConnID, "uuid", ble.ServiceUUID)
		return
	}
	c.holder.set(StateDiscoveringCharacteristic)

	iface, start, end := c.entry.Interface, c.entry.ServiceStart, c.entry.ServiceEnd
	count, err := c.central.GetAttributeCount(iface, e.ConnID, transport.AttrCharacteristic, start, end, 0)
	if err != nil {
		c.logger.Warn("attribute count failed", "conn_id", e.ConnID, "error", err)
		return
	}
	if count == 0 {
		c.logger.Warn("no characteristics in service", "conn_id", e.ConnID)
		return
	}
	chars, err := c.central.GetCharacteristicByUUID(iface, e.ConnID, start, end, ble.CharUUID)
	if err != nil || len(chars) == 0 {
		c.logger.Warn("characteristic not found", "conn_id", e.ConnID, "uuid", ble.CharUUID, "error", err)
		return
	}
	c.entry.CharHandle = chars[0].Handle
	c.holder.set(StateReady)
	c.logger.Info("session ready", "conn_id", e.ConnID, "char_handle", c.entry.CharHandle, "attr_count", count)
}

func (c *Controller) onDisconnect(e transport.DisconnectEvent) {
	if _, ok := c.refused[e.ConnID]; ok {
		delete(c.refused, e.ConnID)
		c.logger.Debug("refused connection dropped", "conn_id", e.ConnID, "reason", e.Reason)
		return
	}
	if err := c.central.CloseConnection(c.entry.Interface, e.ConnID); err != nil {
		c.logger.Debug("close stale connection failed", "conn_id", e.ConnID, "error", err)
	}
	c.status.Set(false)
	c.entry.ClearLink()
	c.entry.CharHandle = 0
	c.stopPending = false
	c.holder.set(StateDisconnected)
	c.opts.Indicator.SetStatus(ble.IndicatorNotConnected)
	c.logger.Info("disconnected", "conn_id", e.ConnID, "addr", e.Address, "reason", e.Reason)

	if e.Reason == transport.ReasonConnectionTimeout {
		c.startScanning()
	}
}
