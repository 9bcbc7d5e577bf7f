// Package supervisor re-arms a disconnected BLE session on a fixed period.
package supervisor

import (
	"context"
	"log/slog"
	"time"
)

const DefaultPeriod = 30 * time.Second

// Target is the session being supervised.
type Target interface {
	Connected() bool
	// Rearm restarts scanning or advertising. It must be safe to call from
	// the supervisor's goroutine.
	Rearm()
}

// Watchdog is implemented by targets that can abort stuck steps.
type Watchdog interface {
	CheckStall()
}

// Supervisor ticks for the lifetime of the process, whatever the link state.
type Supervisor struct {
	name   string
	period time.Duration
	target Target
	logger *slog.Logger
}

func New(name string, period time.Duration, target Target, logger *slog.Logger) *Supervisor {
	if period <= 0 {
		period = DefaultPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		name:   name,
		period: period,
		target: target,
		logger: logger.With("component", "supervisor", "role", name),
	}
}

// Tick runs one supervision pass. While the target is connected it issues
// nothing beyond the stall check.
func (s *Supervisor) Tick() {
	if w, ok := s.target.(Watchdog); ok {
		w.CheckStall()
	}
	if s.target.Connected() {
		return
	}
	s.logger.Debug("link down, re-arming")
	s.target.Rearm()
}

// Run ticks every period until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started", "period", s.period)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}
