package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/ble/transport/sim"
	"smart-greenhouse/internal/config"
	"smart-greenhouse/internal/sensor"
)

var (
	simServerAddr = transport.Address{0x02, 0x47, 0x48, 0x00, 0x00, 0x01}
	simClientAddr = transport.Address{0x02, 0x47, 0x48, 0x00, 0x00, 0x02}
)

// RunSim runs a server node and one client node over a simulated radio in a
// single process. The server side is wired exactly as RunServer wires it.
func RunSim(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	air := sim.NewAir(logger)

	serverD := transport.NewDispatcher(0, logger)
	clientD := transport.NewDispatcher(0, logger)
	peripheral := sim.NewPeripheral(air, simServerAddr, serverD)
	central := sim.NewCentral(air, simClientAddr, clientD)

	reader := sensor.NewSynthetic(nil)
	cnode := newClientNode(cfg, central, clientD, reader, ble.NopIndicator{}, logger.With("node", "client"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := runServer(ctx, cfg, peripheral, serverD, logger.With("node", "server")); err != nil {
			errs <- err
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := cnode.run(ctx); err != nil {
			errs <- err
			cancel()
		}
	}()

	if cfg.SimLinkDropInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dropLinks(ctx, air, cfg.SimLinkDropInterval, logger)
		}()
	}

	wg.Wait()
	close(errs)
	return <-errs
}

// dropLinks tears every simulated link down with a supervision timeout on
// each tick.
func dropLinks(ctx context.Context, air *sim.Air, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := air.DropLinks(transport.ReasonConnectionTimeout); n > 0 {
				logger.Info("simulated link loss", "links", n)
			}
		}
	}
}
