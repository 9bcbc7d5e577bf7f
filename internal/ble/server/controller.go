// Package server is the GATT server session of the greenhouse hub. It
// publishes the greenhouse service, accepts a client connection and turns
// every sample written to the greenhouse characteristic into a
// SensorDataReceived event.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/profile"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/events"
)

// Notifier receives decoded samples.
type Notifier interface {
	Notify(kind events.Kind, payload any)
}

var (
	DefaultAdvData = transport.AdvData{
		IncludeName:    true,
		IncludeTxPower: true,
		MinInterval:    7500 * time.Microsecond,
		MaxInterval:    20 * time.Millisecond,
		ServiceUUIDs:   []transport.UUID16{ble.ServiceUUID},
	}
	DefaultScanRspData = transport.AdvData{
		IncludeName:    true,
		IncludeTxPower: true,
		ServiceUUIDs:   []transport.UUID16{ble.ServiceUUID},
	}
	DefaultAdvParams = transport.AdvParams{
		MinInterval: 20 * time.Millisecond,
		MaxInterval: 40 * time.Millisecond,
		Connectable: true,
	}
	// DefaultConnParams favours short write latency.
	DefaultConnParams = transport.ConnParams{
		MinInterval: 20 * time.Millisecond,
		MaxInterval: 40 * time.Millisecond,
		Latency:     0,
		Timeout:     4 * time.Second,
	}
)

type Options struct {
	DeviceName  string
	LocalMTU    uint16
	AdvData     *transport.AdvData
	ScanRspData *transport.AdvData
	AdvParams   *transport.AdvParams
	ConnParams  *transport.ConnParams
	// WriteFollowUpDelay postpones publishing a received sample. The
	// dispatch context keeps running in the meantime.
	WriteFollowUpDelay time.Duration
	Indicator          ble.Indicator
}

func (o *Options) setDefaults() {
	if o.DeviceName == "" {
		o.DeviceName = ble.DefaultDeviceName
	}
	if o.LocalMTU == 0 {
		o.LocalMTU = ble.DefaultLocalMTU
	}
	if o.AdvData == nil {
		d := DefaultAdvData
		o.AdvData = &d
	}
	if o.ScanRspData == nil {
		d := DefaultScanRspData
		o.ScanRspData = &d
	}
	if o.AdvParams == nil {
		p := DefaultAdvParams
		o.AdvParams = &p
	}
	if o.ConnParams == nil {
		p := DefaultConnParams
		o.ConnParams = &p
	}
	if o.WriteFollowUpDelay < 0 {
		o.WriteFollowUpDelay = 0
	}
	if o.Indicator == nil {
		o.Indicator = ble.NopIndicator{}
	}
}

// Controller owns the server session. Event handlers and posted tasks run on
// the dispatch context; the exported methods may be called from any
// goroutine.
type Controller struct {
	peripheral transport.Peripheral
	scheduler  transport.Scheduler
	notifier   Notifier
	opts       Options
	logger     *slog.Logger
	registry   *profile.Registry
	entry      *profile.Entry
	status     ble.ConnectionStatus
	holder     holder

	// dispatch context only
	advDataSet    bool
	scanRspSet    bool
	advIssued     bool
	advPending    bool
	cccdHandle    transport.Handle
	notifyEnabled bool
	closing       bool
}

func NewController(p transport.Peripheral, s transport.Scheduler, n Notifier, opts Options, logger *slog.Logger) *Controller {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ble_server")
	return &Controller{
		peripheral: p,
		scheduler:  s,
		notifier:   n,
		opts:       opts,
		logger:     logger,
		registry:   profile.NewRegistry(logger),
	}
}

// Init registers the greenhouse profile and the stack callbacks. Any failure
// is fatal to the node and is reported on the indicator.
func (c *Controller) Init() error {
	if err := c.init(); err != nil {
		c.opts.Indicator.SetStatus(ble.IndicatorInitFailed)
		return err
	}
	c.opts.Indicator.SetStatus(ble.IndicatorNotConnected)
	return nil
}

func (c *Controller) init() error {
	entry, err := c.registry.Insert(ble.ProfileGreenhouse, c.handleGatt)
	if err != nil {
		return err
	}
	c.entry = entry

	if err := c.peripheral.RegisterGapCallback(c.handleGap); err != nil {
		return fmt.Errorf("register gap callback: %w", err)
	}
	if err := c.peripheral.RegisterGattCallback(c.registry.Dispatch); err != nil {
		return fmt.Errorf("register gatts callback: %w", err)
	}
	c.holder.setup.Store(int32(StateRegistering))
	if err := c.peripheral.RegisterApplicationProfile(ble.ProfileGreenhouse); err != nil {
		return fmt.Errorf("register app profile: %w", err)
	}
	if err := c.peripheral.SetLocalMtu(c.opts.LocalMTU); err != nil {
		return fmt.Errorf("set local mtu %d: %w", c.opts.LocalMTU, err)
	}
	c.logger.Info("ble server initialized", "device_name", c.opts.DeviceName, "local_mtu", c.opts.LocalMTU)
	return nil
}

// Shutdown stops the session from re-arming advertising.
func (c *Controller) Shutdown() {
	c.scheduler.Post(func() { c.closing = true })
}

// Connected implements ble.StatusReader.
func (c *Controller) Connected() bool { return c.status.Connected() }

func (c *Controller) State() State { return c.holder.state() }

// Rearm restarts advertising when nobody is connected and advertising is
// neither running nor requested. Supervisors call it from their own
// goroutine.
func (c *Controller) Rearm() {
	c.scheduler.Post(c.rearm)
}

func (c *Controller) rearm() {
	if c.closing || c.status.Connected() || c.holder.advertising.Load() || c.advPending {
		return
	}
	if !c.advDataSet || !c.scanRspSet {
		c.logger.Debug("rearm skipped, advertising data not configured")
		return
	}
	c.startAdvertising()
}

func (c *Controller) startAdvertising() {
	if c.closing {
		return
	}
	if err := c.peripheral.StartAdvertising(*c.opts.AdvParams); err != nil {
		c.logger.Error("start advertising failed", "error", err)
		return
	}
	c.advPending = true
}

// maybeStartAdvertising issues the first StartAdvertising once both the
// advertising data and the scan response data are configured.
func (c *Controller) maybeStartAdvertising() {
	if !c.advDataSet || !c.scanRspSet || c.advIssued {
		return
	}
	c.advIssued = true
	c.startAdvertising()
}

func (c *Controller) respond(e transport.WriteEvent, status transport.Status) {
	if !e.NeedResponse {
		return
	}
	if err := c.peripheral.SendResponse(c.entry.Interface, e.ConnID, e.TransID, status, nil); err != nil {
		c.logger.Warn("send response failed", "conn_id", e.ConnID, "trans_id", e.TransID, "error", err)
	}
}
