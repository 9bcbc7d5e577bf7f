package mqtt

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Action
		wantErr error
	}{
		{name: "json", payload: `{"action":"pump_on"}`, want: ActionPumpOn},
		{name: "bare", payload: "window_open", want: ActionWindowOpen},
		{name: "case and space", payload: "  Window_Close\n", want: ActionWindowClose},
		{name: "json upper", payload: `{"action":"PUMP_OFF"}`, want: ActionPumpOff},
		{name: "empty", payload: "  ", wantErr: ErrUnknownCommand},
		{name: "unknown", payload: "heater_on", wantErr: ErrUnknownCommand},
		{name: "json unknown", payload: `{"action":"fan"}`, wantErr: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseCommand(%q) error = %v, want %v", tt.payload, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand(%q) error = %v", tt.payload, err)
			}
			if got.Action != tt.want {
				t.Errorf("Action = %q, want %q", got.Action, tt.want)
			}
		})
	}
}

func TestParseCommand_BadJSON(t *testing.T) {
	if _, err := ParseCommand([]byte(`{"action":`)); err == nil {
		t.Fatal("ParseCommand() error = nil, want decode error")
	}
}
