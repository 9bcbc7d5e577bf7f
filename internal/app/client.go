package app

import (
	"context"
	"errors"
	"log/slog"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/ble/transport/native"
	"smart-greenhouse/internal/config"
)

var ErrSimTransport = errors.New("sim transport runs both nodes in one process; use greenhouse-sim")

// RunClient runs a client node on the host radio until ctx is done.
func RunClient(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("initializing client node",
		"client_id", cfg.ClientID,
		"position", cfg.ClientPosition,
		"target_name", cfg.BLETargetName,
		"sensor", cfg.SensorSource,
		"sample_interval", cfg.SampleInterval,
	)
	if cfg.BLETransport == "sim" {
		return ErrSimTransport
	}

	leds, err := openLEDs(cfg, logger)
	if err != nil {
		return err
	}
	reader, err := openSensor(cfg)
	if err != nil {
		leds.SetStatus(ble.IndicatorInitFailed)
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Error("sensor close", "error", err)
		}
	}()

	d := transport.NewDispatcher(0, logger)
	central := native.NewCentral(native.Options{Adapter: cfg.BLEAdapter}, d, logger)
	node := newClientNode(cfg, central, d, reader, leds, logger)

	err = node.run(ctx)
	logger.Info("client node shutting down")
	return err
}
