package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCommand = errors.New("unknown command")

type Action string

const (
	ActionWindowOpen  Action = "window_open"
	ActionWindowClose Action = "window_close"
	ActionPumpOn      Action = "pump_on"
	ActionPumpOff     Action = "pump_off"
)

// Command is an actuator request. It arrives either as a JSON object
// {"action": "pump_on"} or as the bare action name.
type Command struct {
	Action Action `json:"action"`
}

func ParseCommand(payload []byte) (Command, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return Command{}, fmt.Errorf("empty payload: %w", ErrUnknownCommand)
	}

	var cmd Command
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return Command{}, fmt.Errorf("decode command: %w", err)
		}
	} else {
		cmd.Action = Action(raw)
	}

	cmd.Action = Action(strings.ToLower(string(cmd.Action)))
	switch cmd.Action {
	case ActionWindowOpen, ActionWindowClose, ActionPumpOn, ActionPumpOff:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%q: %w", cmd.Action, ErrUnknownCommand)
	}
}
