package actuator

import (
	"log/slog"

	"periph.io/x/conn/v3/gpio"

	"smart-greenhouse/internal/ble"
)

// LEDIndicator shows the session status on two LEDs: ok is lit while
// connected, fault while initialization has failed. Both are dark while the
// node is looking for its peer. Either pin may be nil.
type LEDIndicator struct {
	ok     gpio.PinOut
	fault  gpio.PinOut
	logger *slog.Logger
}

var _ ble.Indicator = (*LEDIndicator)(nil)

func NewLEDIndicator(ok, fault gpio.PinOut, logger *slog.Logger) *LEDIndicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LEDIndicator{ok: ok, fault: fault, logger: logger.With("component", "led")}
}

func (l *LEDIndicator) SetStatus(s ble.IndicatorStatus) {
	l.set(l.ok, s == ble.IndicatorConnected)
	l.set(l.fault, s == ble.IndicatorInitFailed)
	l.logger.Debug("status indicator", "status", s)
}

func (l *LEDIndicator) set(p gpio.PinOut, lit bool) {
	if p == nil {
		return
	}
	if err := p.Out(gpio.Level(lit)); err != nil {
		l.logger.Warn("led write failed", "pin", p.Name(), "error", err)
	}
}
