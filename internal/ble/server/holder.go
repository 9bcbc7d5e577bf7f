package server

import (
	"fmt"
	"sync/atomic"
)

// State is the position of the server session in its setup and link cycle.
type State int32

const (
	StateIdle State = iota
	StateRegistering
	StateServiceConfig
	StateServiceCreating
	StateServiceStarting
	StateCharacteristicAdding
	StateDescriptorAdding
	StateAdvertising
	StateConnected
	StateDisconnected
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateRegistering:          "registering",
	StateServiceConfig:        "service_config",
	StateServiceCreating:      "service_creating",
	StateServiceStarting:      "service_starting",
	StateCharacteristicAdding: "characteristic_adding",
	StateDescriptorAdding:     "descriptor_adding",
	StateAdvertising:          "advertising",
	StateConnected:            "connected",
	StateDisconnected:         "disconnected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// holder tracks the service setup chain and the link state separately, since
// advertising may start before the service is fully built.
type holder struct {
	setup       atomic.Int32
	advertising atomic.Bool
	connected   atomic.Bool
	dropped     atomic.Bool
}

func (h *holder) state() State {
	switch {
	case h.connected.Load():
		return StateConnected
	case h.advertising.Load():
		return StateAdvertising
	case h.dropped.Load():
		return StateDisconnected
	default:
		return State(h.setup.Load())
	}
}
