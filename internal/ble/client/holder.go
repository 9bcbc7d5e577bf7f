package client

import (
	"fmt"
	"sync/atomic"
	"time"
)

// State is the position of the client session in its connect cycle.
type State int32

const (
	StateIdle State = iota
	StateRegistering
	StateScanParamsSet
	StateScanning
	StateConnecting
	StateMtuNegotiating
	StateDiscoveringService
	StateDiscoveringCharacteristic
	StateReady
	StateDisconnected
)

var stateNames = [...]string{
	StateIdle:                      "idle",
	StateRegistering:               "registering",
	StateScanParamsSet:             "scan_params_set",
	StateScanning:                  "scanning",
	StateConnecting:                "connecting",
	StateMtuNegotiating:            "mtu_negotiating",
	StateDiscoveringService:        "discovering_service",
	StateDiscoveringCharacteristic: "discovering_characteristic",
	StateReady:                     "ready",
	StateDisconnected:              "disconnected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// inFlight reports whether a connect or discovery step is waiting for the
// stack to answer.
func (s State) inFlight() bool {
	return s >= StateConnecting && s <= StateDiscoveringCharacteristic
}

// holder keeps the session state readable from outside the dispatch context.
// Writes happen on the dispatch context only.
type holder struct {
	state atomic.Int32
	since atomic.Int64
	ready atomic.Bool
	now   func() time.Time
}

func (h *holder) set(s State) {
	h.state.Store(int32(s))
	h.since.Store(h.now().UnixNano())
	h.ready.Store(s == StateReady)
}

func (h *holder) get() State {
	return State(h.state.Load())
}

// age returns how long the session has been in its current state.
func (h *holder) age() time.Duration {
	return h.now().Sub(time.Unix(0, h.since.Load()))
}
