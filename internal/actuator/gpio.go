// Package actuator drives the greenhouse outputs over GPIO: the window and
// pump relays, and the status LEDs.
package actuator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var ErrNoOutput = errors.New("output not configured")

// InitHost loads the periph host drivers. Call once before LookupPin.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

// LookupPin resolves a pin by its periph name ("GPIO17"). An empty name
// yields nil: the output is disabled.
func LookupPin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %s not found", name)
	}
	return p, nil
}

// Relay is an active-high switched output.
type Relay struct {
	name   string
	pin    gpio.PinOut
	logger *slog.Logger

	mu sync.Mutex
	on bool
}

// NewRelay drives pin low (off) before returning. A nil pin gives a nil Relay.
func NewRelay(name string, pin gpio.PinOut, logger *slog.Logger) (*Relay, error) {
	if pin == nil {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("relay %s init: %w", name, err)
	}
	return &Relay{name: name, pin: pin, logger: logger}, nil
}

func (r *Relay) Set(on bool) error {
	if r == nil {
		return ErrNoOutput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pin.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("relay %s: %w", r.name, err)
	}
	if r.on != on {
		r.logger.Info("relay switched", "relay", r.name, "on", on)
	}
	r.on = on
	return nil
}

func (r *Relay) On() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
