package app

import (
	"fmt"
	"log/slog"

	"smart-greenhouse/internal/actuator"
	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/config"
	"smart-greenhouse/internal/sensor"
)

func openLEDs(cfg config.Config, logger *slog.Logger) (ble.Indicator, error) {
	if cfg.GPIOLedOKPin == "" && cfg.GPIOLedFaultPin == "" {
		return ble.NopIndicator{}, nil
	}
	if err := actuator.InitHost(); err != nil {
		return nil, err
	}
	ok, err := actuator.LookupPin(cfg.GPIOLedOKPin)
	if err != nil {
		return nil, fmt.Errorf("GPIO_LED_OK_PIN: %w", err)
	}
	fault, err := actuator.LookupPin(cfg.GPIOLedFaultPin)
	if err != nil {
		return nil, fmt.Errorf("GPIO_LED_FAULT_PIN: %w", err)
	}
	return actuator.NewLEDIndicator(ok, fault, logger), nil
}

// openActuators returns nil when no relay pin is configured.
func openActuators(cfg config.Config, logger *slog.Logger) (*actuator.Controller, error) {
	if cfg.GPIOWindowPin == "" && cfg.GPIOPumpPin == "" {
		return nil, nil
	}
	if err := actuator.InitHost(); err != nil {
		return nil, err
	}
	windowPin, err := actuator.LookupPin(cfg.GPIOWindowPin)
	if err != nil {
		return nil, fmt.Errorf("GPIO_WINDOW_PIN: %w", err)
	}
	pumpPin, err := actuator.LookupPin(cfg.GPIOPumpPin)
	if err != nil {
		return nil, fmt.Errorf("GPIO_PUMP_PIN: %w", err)
	}
	window, err := actuator.NewRelay("window", windowPin, logger)
	if err != nil {
		return nil, err
	}
	pump, err := actuator.NewRelay("pump", pumpPin, logger)
	if err != nil {
		return nil, err
	}
	return actuator.NewController(window, pump, logger), nil
}

func openSensor(cfg config.Config) (sensor.Reader, error) {
	if cfg.SensorSource == "synthetic" {
		return sensor.NewSynthetic(nil), nil
	}
	dev, err := sensor.OpenBME280(cfg.I2CBus, cfg.BME280Address)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
