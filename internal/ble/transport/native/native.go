// Package native adapts a BlueZ host stack, through tinygo.org/x/bluetooth,
// to the transport command/event model. Blocking library calls run on their
// own goroutines and report back as events.
//
// The library hides the attribute layer, so handles and connection ids are
// synthesized here. Disconnect reasons are not exposed and arrive as
// ReasonUnknown.
package native

import (
	"errors"
	"fmt"

	"smart-greenhouse/internal/ble/transport"
)

const (
	defaultAdapter = "hci0"
	attMTU         = 23
	maxMTU         = 517
	firstIface     = 3
)

// ErrUnsupported is returned on platforms without a supported host stack.
var ErrUnsupported = errors.New("native ble transport is only supported on linux")

// Options selects the host adapter.
type Options struct {
	// Adapter is the BlueZ adapter id, "hci0" by default.
	Adapter string
}

func (o *Options) setDefaults() {
	if o.Adapter == "" {
		o.Adapter = defaultAdapter
	}
}

func checkMTU(size uint16) error {
	if size < attMTU || size > maxMTU {
		return fmt.Errorf("mtu %d: %w", size, transport.ErrSetLocalMtuFailed)
	}
	return nil
}
