package actuator

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/mqtt"
)

func newRelay(t *testing.T, name string) (*Relay, *gpiotest.Pin) {
	t.Helper()
	pin := &gpiotest.Pin{N: name, L: gpio.High}
	r, err := NewRelay(name, pin, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	return r, pin
}

func TestNewRelay_StartsOff(t *testing.T) {
	r, pin := newRelay(t, "GPIO17")
	if pin.Read() != gpio.Low {
		t.Errorf("pin level = %v, want Low", pin.Read())
	}
	if r.On() {
		t.Error("On() = true, want false")
	}
}

func TestNewRelay_NilPinDisables(t *testing.T) {
	r, err := NewRelay("window", nil, nil)
	if err != nil || r != nil {
		t.Fatalf("NewRelay(nil) = %v, %v, want nil, nil", r, err)
	}
	if err := r.Set(true); !errors.Is(err, ErrNoOutput) {
		t.Errorf("Set on nil relay error = %v, want ErrNoOutput", err)
	}
}

func TestController_Execute(t *testing.T) {
	window, windowPin := newRelay(t, "GPIO17")
	pump, pumpPin := newRelay(t, "GPIO27")
	c := NewController(window, pump, nil)

	tests := []struct {
		action   mqtt.Action
		wantWin  gpio.Level
		wantPump gpio.Level
	}{
		{mqtt.ActionWindowOpen, gpio.High, gpio.Low},
		{mqtt.ActionPumpOn, gpio.High, gpio.High},
		{mqtt.ActionWindowClose, gpio.Low, gpio.High},
		{mqtt.ActionPumpOff, gpio.Low, gpio.Low},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			if err := c.Execute(mqtt.Command{Action: tt.action}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got := windowPin.Read(); got != tt.wantWin {
				t.Errorf("window = %v, want %v", got, tt.wantWin)
			}
			if got := pumpPin.Read(); got != tt.wantPump {
				t.Errorf("pump = %v, want %v", got, tt.wantPump)
			}
		})
	}
}

func TestController_ExecuteErrors(t *testing.T) {
	c := NewController(nil, nil, nil)

	if err := c.Execute(mqtt.Command{Action: mqtt.ActionPumpOn}); !errors.Is(err, ErrNoOutput) {
		t.Errorf("missing relay error = %v, want ErrNoOutput", err)
	}
	if err := c.Execute(mqtt.Command{Action: "heater_on"}); !errors.Is(err, mqtt.ErrUnknownCommand) {
		t.Errorf("unknown action error = %v, want ErrUnknownCommand", err)
	}
	c.Handle(mqtt.Command{Action: mqtt.ActionPumpOn})
}

func TestLEDIndicator(t *testing.T) {
	ok := &gpiotest.Pin{N: "GPIO5"}
	fault := &gpiotest.Pin{N: "GPIO6"}
	led := NewLEDIndicator(ok, fault, nil)

	tests := []struct {
		status    ble.IndicatorStatus
		wantOK    gpio.Level
		wantFault gpio.Level
	}{
		{ble.IndicatorInitFailed, gpio.Low, gpio.High},
		{ble.IndicatorNotConnected, gpio.Low, gpio.Low},
		{ble.IndicatorConnected, gpio.High, gpio.Low},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			led.SetStatus(tt.status)
			if got := ok.Read(); got != tt.wantOK {
				t.Errorf("ok = %v, want %v", got, tt.wantOK)
			}
			if got := fault.Read(); got != tt.wantFault {
				t.Errorf("fault = %v, want %v", got, tt.wantFault)
			}
		})
	}
}

func TestLEDIndicator_NilPins(t *testing.T) {
	NewLEDIndicator(nil, nil, nil).SetStatus(ble.IndicatorConnected)
}

func TestLookupPin_Empty(t *testing.T) {
	p, err := LookupPin("")
	if err != nil || p != nil {
		t.Errorf("LookupPin(\"\") = %v, %v, want nil, nil", p, err)
	}
}
