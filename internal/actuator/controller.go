package actuator

import (
	"fmt"
	"log/slog"

	"smart-greenhouse/internal/mqtt"
)

// Controller maps commands onto relays. Either relay may be nil.
type Controller struct {
	window *Relay
	pump   *Relay
	logger *slog.Logger
}

func NewController(window, pump *Relay, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{window: window, pump: pump, logger: logger.With("component", "actuator")}
}

func (c *Controller) Execute(cmd mqtt.Command) error {
	var err error
	switch cmd.Action {
	case mqtt.ActionWindowOpen:
		err = c.window.Set(true)
	case mqtt.ActionWindowClose:
		err = c.window.Set(false)
	case mqtt.ActionPumpOn:
		err = c.pump.Set(true)
	case mqtt.ActionPumpOff:
		err = c.pump.Set(false)
	default:
		err = mqtt.ErrUnknownCommand
	}
	if err != nil {
		return fmt.Errorf("execute %s: %w", cmd.Action, err)
	}
	return nil
}

// Handle is Execute for subscription callbacks; failures are logged.
func (c *Controller) Handle(cmd mqtt.Command) {
	if err := c.Execute(cmd); err != nil {
		c.logger.Warn("command failed", "action", cmd.Action, "error", err)
	}
}
