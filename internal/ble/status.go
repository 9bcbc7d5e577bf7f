package ble

import (
	"fmt"
	"sync/atomic"
)

// StatusReader is the read-only view of a session's connection status.
type StatusReader interface {
	Connected() bool
}

// ConnectionStatus is true while a link is open and usable. Only the owning
// session writes it; supervisors read it from their own goroutine.
type ConnectionStatus struct {
	v atomic.Bool
}

func (s *ConnectionStatus) Set(connected bool) { s.v.Store(connected) }

func (s *ConnectionStatus) Connected() bool { return s.v.Load() }

// IndicatorStatus is the coarse state shown to a person standing next to a node.
type IndicatorStatus uint8

const (
	IndicatorInitFailed IndicatorStatus = iota
	IndicatorNotConnected
	IndicatorConnected
)

func (s IndicatorStatus) String() string {
	switch s {
	case IndicatorInitFailed:
		return "init_failed"
	case IndicatorNotConnected:
		return "not_connected"
	case IndicatorConnected:
		return "connected"
	default:
		return fmt.Sprintf("indicator(%d)", uint8(s))
	}
}

// Indicator displays an IndicatorStatus, typically on LEDs.
type Indicator interface {
	SetStatus(s IndicatorStatus)
}

// NopIndicator discards status changes.
type NopIndicator struct{}

func (NopIndicator) SetStatus(IndicatorStatus) {}
