// Package client is the GATT client session of a sensor node: it finds the
// greenhouse server by name, connects, discovers the greenhouse
// characteristic and writes samples to it.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/profile"
	"smart-greenhouse/internal/ble/transport"
)

var (
	ErrNotReady = errors.New("client session not ready")
	ErrClosed   = errors.New("dispatcher closed")
)

const (
	DefaultScanDuration = 30 * time.Second
	DefaultStepTimeout  = 20 * time.Second
)

// DefaultScanParams are active, duplicate-filtered scan parameters.
var DefaultScanParams = transport.ScanParams{
	Active:           true,
	Interval:         50 * time.Millisecond,
	Window:           30 * time.Millisecond,
	FilterDuplicates: true,
}

type Options struct {
	// TargetName is compared byte for byte with advertised names.
	TargetName   string
	ScanDuration time.Duration
	ScanParams   transport.ScanParams
	LocalMTU     uint16
	// StepTimeout bounds every connect and discovery step. Zero disables
	// the watchdog.
	StepTimeout time.Duration
	Indicator   ble.Indicator
	Now         func() time.Time
}

func (o *Options) setDefaults() {
	if o.TargetName == "" {
		o.TargetName = ble.DefaultDeviceName
	}
	if o.ScanDuration <= 0 {
		o.ScanDuration = DefaultScanDuration
	}
	if o.ScanParams == (transport.ScanParams{}) {
		o.ScanParams = DefaultScanParams
	}
	if o.LocalMTU == 0 {
		o.LocalMTU = ble.DefaultLocalMTU
	}
	if o.StepTimeout < 0 {
		o.StepTimeout = 0
	}
	if o.Indicator == nil {
		o.Indicator = ble.NopIndicator{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Controller owns the client session. Event handlers and every posted task
// run on the dispatch context; the exported methods may be called from any
// goroutine.
type Controller struct {
	central  transport.Central
	poster   transport.Poster
	opts     Options
	logger   *slog.Logger
	registry *profile.Registry
	entry    *profile.Entry
	status   ble.ConnectionStatus
	holder   holder

	// dispatch context only
	paramsSet   bool
	stopPending bool
	// openPending stays set until the outstanding open reports back,
	// even if the step watchdog gave up on it.
	openPending bool
	// refused holds links opened behind a timed out step and closed on arrival.
	refused map[transport.ConnID]struct{}
}

func NewController(central transport.Central, poster transport.Poster, opts Options, logger *slog.Logger) *Controller {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ble_client")
	c := &Controller{
		central:  central,
		poster:   poster,
		opts:     opts,
		logger:   logger,
		registry: profile.NewRegistry(logger),
	}
	c.holder.now = opts.Now
	c.holder.set(StateIdle)
	return c
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

	if err := c.central.RegisterGapCallback(c.handleGap); err != nil {
		return fmt.Errorf("register gap callback: %w", err)
	}
	if err := c.central.RegisterGattCallback(c.registry.Dispatch); err != nil {
		return fmt.Errorf("register gattc callback: %w", err)
	}
	c.holder.set(StateRegistering)
	if err := c.central.RegisterApplicationProfile(ble.ProfileGreenhouse); err != nil {
		return fmt.Errorf("register app profile: %w", err)
	}
	if err := c.central.SetLocalMtu(c.opts.LocalMTU); err != nil {
		return fmt.Errorf("set local mtu %d: %w", c.opts.LocalMTU, err)
	}
	c.logger.Info("ble client initialized", "target", c.opts.TargetName, "local_mtu", c.opts.LocalMTU)
	return nil
}

// Shutdown stops scanning and closes the open link, if any.
func (c *Controller) Shutdown() {
	c.poster.Post(func() {
		if c.entry == nil || c.entry.Interface == transport.NoInterface {
			return
		}
		if c.status.Connected() {
			if err := c.central.CloseConnection(c.entry.Interface, c.entry.ConnID); err != nil {
				c.logger.Warn("close connection failed", "conn_id", c.entry.ConnID, "error", err)
			}
			return
		}
		if c.holder.get() == StateScanning {
			_ = c.central.StopScanning()
		}
	})
}

// Connected implements ble.StatusReader.
func (c *Controller) Connected() bool { return c.status.Connected() }

func (c *Controller) State() State { return c.holder.get() }

// Ready reports whether Write would be accepted.
func (c *Controller) Ready() bool { return c.holder.ready.Load() }

// Rearm restarts scanning unless a link is open or a connect is in flight.
// Supervisors call it from their own goroutine.
func (c *Controller) Rearm() {
	c.poster.Post(c.rearm)
}

func (c *Controller) rearm() {
	if c.status.Connected() || c.holder.get().inFlight() {
		return
	}
	if c.entry == nil || c.entry.Interface == transport.NoInterface {
		c.logger.Debug("rearm skipped, profile not registered")
		return
	}
	if !c.paramsSet {
		c.setScanParams()
		return
	}
	c.startScanning()
}

// CheckStall aborts a connect or discovery step that has waited longer than
// the step timeout. A connected session is closed and its disconnect event
// returns it to the reconnect cycle.
func (c *Controller) CheckStall() {
	if c.opts.StepTimeout == 0 {
		return
	}
	c.poster.Post(c.checkStall)
}

func (c *Controller) checkStall() {
	st := c.holder.get()
	if !st.inFlight() || c.holder.age() < c.opts.StepTimeout {
		return
	}
	c.logger.Warn("session step timed out", "state", st, "timeout", c.opts.StepTimeout)
	if c.status.Connected() {
		if err := c.central.CloseConnection(c.entry.Interface, c.entry.ConnID); err != nil {
			c.logger.Warn("close connection failed", "conn_id", c.entry.ConnID, "error", err)
		}
		// Restart the clock so the close gets a full step to complete.
		c.holder.set(st)
		return
	}
	if c.openPending {
		c.logger.Warn("open still outstanding, its link will be refused")
	}
	c.holder.set(StateIdle)
}

// Write sends value to the greenhouse characteristic with a write-with-response.
// The outcome is reported asynchronously and only logged.
func (c *Controller) Write(value []byte) error {
	if !c.Ready() {
		return ErrNotReady
	}
	buf := append([]byte(nil), value...)
	if !c.poster.Post(func() { c.write(buf) }) {
		return ErrClosed
	}
	return nil
}

func (c *Controller) write(value []byte) {
	if c.holder.get() != StateReady {
		c.logger.Debug("write dropped, session no longer ready", "len", len(value))
		return
	}
	err := c.central.WriteCharacteristic(c.entry.Interface, c.entry.ConnID, c.entry.CharHandle,
		value, transport.WriteWithResponse, transport.AuthNone)
	if err != nil {
		c.logger.Warn("write characteristic failed", "handle", c.entry.CharHandle, "error", err)
	}
}

func (c *Controller) setScanParams() {
	if err := c.central.SetScanParameters(c.opts.ScanParams); err != nil {
		c.logger.Error("set scan params failed", "error", err)
	}
}

func (c *Controller) startScanning() {
	if err := c.central.StartScanning(c.opts.ScanDuration); err != nil {
		c.logger.Error("start scanning failed", "error", err)
		return
	}
	c.stopPending = false
	c.holder.set(StateScanning)
}
