package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/ble/transport/native"
	"smart-greenhouse/internal/config"
	"smart-greenhouse/internal/events"
	"smart-greenhouse/internal/forwarder"
	"smart-greenhouse/internal/httpapi"
	"smart-greenhouse/internal/mqtt"
	"smart-greenhouse/internal/store"
)

// RunServer runs a server node on the host radio until ctx is done.
func RunServer(ctx context.Context, cfg config.Config) error {
	if cfg.BLETransport == "sim" {
		return ErrSimTransport
	}
	logger := slog.Default()
	d := transport.NewDispatcher(0, logger)
	p := native.NewPeripheral(native.Options{Adapter: cfg.BLEAdapter}, d, logger)
	return runServer(ctx, cfg, p, d, logger)
}

// linkReporter publishes the BLE link state whenever the indicator changes.
type linkReporter struct {
	client *mqtt.Client
	logger *slog.Logger
}

func (r linkReporter) SetStatus(s ble.IndicatorStatus) {
	if s == ble.IndicatorInitFailed {
		return
	}
	status := mqtt.LinkStatus{Node: "server", Connected: s == ble.IndicatorConnected}
	// Runs on the dispatch context; the publish may wait on the broker.
	go func() {
		if err := r.client.PublishLinkStatus(status); err != nil {
			r.logger.Debug("link status not published", "error", err)
		}
	}()
}

func runServer(ctx context.Context, cfg config.Config, p transport.Peripheral, d *transport.Dispatcher, logger *slog.Logger) error {
	logger.Info("initializing server node",
		"device_name", cfg.BLEDeviceName,
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_topic_prefix", cfg.MQTTTopicPrefix,
		"sqlite_path", cfg.SQLitePath,
	)

	journal, err := store.Open(cfg.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Error("db close", "error", err)
		}
	}()

	mqttClient, err := mqtt.NewClient(mqtt.Options{
		Broker:      cfg.MQTTBroker,
		Port:        cfg.MQTTPort,
		ClientID:    cfg.MQTTClientID,
		TopicPrefix: cfg.MQTTTopicPrefix,
	}, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()

	fwd := forwarder.New(journal, mqttClient, forwarder.Options{}, logger)
	mqttClient.OnConnect(func() {
		if _, err := fwd.Flush(ctx); err != nil {
			logger.Warn("journal flush incomplete", "error", err)
		}
	})

	acts, err := openActuators(cfg, logger)
	if err != nil {
		return err
	}
	if acts != nil {
		// Subscribe before Connect so the first CONNACK already renews it.
		mqttClient.SubscribeCommands(acts.Handle)
	}

	leds, err := openLEDs(cfg, logger)
	if err != nil {
		return err
	}
	node := newServerNode(cfg, p, d, indicators{leds, linkReporter{client: mqttClient, logger: logger}}, logger)
	node.bridge.Subscribe(events.SensorDataReceived, fwd)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// Keeps retrying in the background; samples are journaled meanwhile.
		if err := mqttClient.Connect(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mqtt connect failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		_ = fwd.Run(ctx)
	}()

	var api *http.Server
	if cfg.HTTPAddr != "" {
		api = httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(httpapi.Deps{
			Journal: journal,
			Link:    node.ctrl,
			Broker:  mqttClient,
		}), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("status api listening", "addr", cfg.HTTPAddr)
			if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status api stopped", "error", err)
			}
		}()
	}

	err = node.run(ctx)
	logger.Info("server node shutting down")

	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status api shutdown", "error", err)
		}
		cancel()
	}
	waitTimeout(&wg, 5*time.Second)
	return err
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
