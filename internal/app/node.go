package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/client"
	"smart-greenhouse/internal/ble/server"
	"smart-greenhouse/internal/ble/supervisor"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/config"
	"smart-greenhouse/internal/events"
	"smart-greenhouse/internal/sample"
	"smart-greenhouse/internal/sensor"
)

const shutdownGrace = 2 * time.Second

// clientNode is the BLE client session plus the loop that feeds it samples.
type clientNode struct {
	dispatcher *transport.Dispatcher
	ctrl       *client.Controller
	sup        *supervisor.Supervisor
	sampler    *sensor.Sampler
	interval   time.Duration
	logger     *slog.Logger
}

func newClientNode(cfg config.Config, central transport.Central, d *transport.Dispatcher, reader sensor.Reader, ind ble.Indicator, logger *slog.Logger) *clientNode {
	ctrl := client.NewController(central, d, client.Options{
		TargetName:   cfg.BLETargetName,
		ScanDuration: cfg.BLEScanDuration,
		LocalMTU:     cfg.BLELocalMTU,
		StepTimeout:  cfg.BLEStepTimeout,
		Indicator:    ind,
	}, logger)
	return &clientNode{
		dispatcher: d,
		ctrl:       ctrl,
		sup:        supervisor.New("client", cfg.BLESupervisorPeriod, ctrl, logger),
		sampler:    sensor.NewSampler(reader, cfg.ClientID, cfg.ClientPosition),
		interval:   cfg.SampleInterval,
		logger:     logger.With("component", "sampler"),
	}
}

func (n *clientNode) run(ctx context.Context) error {
	return runSession(ctx, n.dispatcher, n.ctrl.Init, n.ctrl.Shutdown, func(ctx context.Context, wg *sync.WaitGroup) {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = n.sup.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			n.sample(ctx)
		}()
	})
}

func (n *clientNode) sample(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !n.ctrl.Ready() {
			n.logger.Debug("sample skipped, session not ready", "state", n.ctrl.State())
			continue
		}
		s, err := n.sampler.Next()
		if err != nil {
			n.logger.Warn("sensor read failed", "error", err)
			continue
		}
		if err := n.ctrl.Write(sample.Encode(s)); err != nil {
			n.logger.Debug("sample not sent", "sequence", s.Sequence, "error", err)
			continue
		}
		n.logger.Debug("sample sent", "sequence", s.Sequence)
	}
}

// serverNode is the BLE server session. Received samples are announced on
// bridge.
type serverNode struct {
	dispatcher *transport.Dispatcher
	ctrl       *server.Controller
	sup        *supervisor.Supervisor
	bridge     *events.Bridge
}

func newServerNode(cfg config.Config, p transport.Peripheral, d *transport.Dispatcher, ind ble.Indicator, logger *slog.Logger) *serverNode {
	bridge := events.NewBridge(logger)
	ctrl := server.NewController(p, d, bridge, server.Options{
		DeviceName:         cfg.BLEDeviceName,
		LocalMTU:           cfg.BLELocalMTU,
		WriteFollowUpDelay: cfg.BLEWriteFollowUpDelay,
		Indicator:          ind,
	}, logger)
	return &serverNode{
		dispatcher: d,
		ctrl:       ctrl,
		sup:        supervisor.New("server", cfg.BLESupervisorPeriod, ctrl, logger),
		bridge:     bridge,
	}
}

func (n *serverNode) run(ctx context.Context) error {
	return runSession(ctx, n.dispatcher, n.ctrl.Init, n.ctrl.Shutdown, func(ctx context.Context, wg *sync.WaitGroup) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = n.sup.Run(ctx)
		}()
	})
}

// runSession drives one dispatcher for the lifetime of ctx. On cancel the
// session gets shutdown posted and a grace period to act on it before the
// dispatcher stops.
func runSession(ctx context.Context, d *transport.Dispatcher, initFn func() error, shutdown func(), start func(context.Context, *sync.WaitGroup)) error {
	dctx, dcancel := context.WithCancel(context.Background())
	defer dcancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = d.Run(dctx)
	}()

	if err := initFn(); err != nil {
		dcancel()
		wg.Wait()
		return fmt.Errorf("ble init: %w", err)
	}

	start(ctx, &wg)
	<-ctx.Done()

	shutdown()
	drain(d, shutdownGrace)
	dcancel()
	wg.Wait()
	return nil
}

// drain waits until every task posted so far has run, or timeout.
func drain(d *transport.Dispatcher, timeout time.Duration) {
	done := make(chan struct{})
	if !d.Post(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// indicators fans a status out to several displays.
type indicators []ble.Indicator

func (is indicators) SetStatus(s ble.IndicatorStatus) {
	for _, i := range is {
		i.SetStatus(s)
	}
}
