// Package sim is an in-process radio. Centrals and peripherals attached to
// the same Air see each other's advertisements, open links and exchange
// writes, with every result delivered as an event on the owning node's
// dispatcher.
package sim

import (
	"log/slog"
	"sync"

	"smart-greenhouse/internal/ble/transport"
)

const (
	minMTU     = 23
	maxMTU     = 517
	firstIface = 3
)

type link struct {
	id         transport.ConnID
	central    *Central
	peripheral *Peripheral
}

// outbox collects events raised under the Air lock. They are posted once the
// lock is released so a full dispatcher queue can never block the radio.
type outbox []func()

func (o *outbox) add(f func()) { *o = append(*o, f) }

// Air connects simulated nodes.
type Air struct {
	mu          sync.Mutex
	centrals    []*Central
	peripherals map[transport.Address]*Peripheral
	links       map[transport.ConnID]*link
	nextConn    transport.ConnID
	nextTrans   uint32
	logger      *slog.Logger
}

func NewAir(logger *slog.Logger) *Air {
	if logger == nil {
		logger = slog.Default()
	}
	return &Air{
		peripherals: make(map[transport.Address]*Peripheral),
		links:       make(map[transport.ConnID]*link),
		logger:      logger.With("component", "sim_air"),
	}
}

func (a *Air) do(fn func(out *outbox)) {
	var out outbox
	a.mu.Lock()
	fn(&out)
	a.mu.Unlock()
	for _, f := range out {
		f()
	}
}

// doErr is do for calls that return an error.
func (a *Air) doErr(fn func(out *outbox) error) error {
	var out outbox
	a.mu.Lock()
	err := fn(&out)
	a.mu.Unlock()
	for _, f := range out {
		f()
	}
	return err
}

// DropLinks tears down every open link with reason, as a supervision timeout
// or an out-of-range peer would. It returns the number of links dropped.
func (a *Air) DropLinks(reason transport.DisconnectReason) int {
	n := 0
	a.do(func(out *outbox) {
		for _, l := range a.links {
			a.teardown(out, l, reason, reason)
			n++
		}
	})
	if n > 0 {
		a.logger.Info("links dropped", "count", n, "reason", reason)
	}
	return n
}

// Links returns the number of open links.
func (a *Air) Links() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.links)
}

func (a *Air) linkFor(conn transport.ConnID) (*link, bool) {
	l, ok := a.links[conn]
	return l, ok
}

// teardown closes l and tells both ends. Callers hold a.mu.
func (a *Air) teardown(out *outbox, l *link, centralReason, peripheralReason transport.DisconnectReason) {
	delete(a.links, l.id)
	for id, w := range l.peripheral.pending {
		if w.conn == l.id {
			delete(l.peripheral.pending, id)
		}
	}

	c, p := l.central, l.peripheral
	cIface, pIface := c.iface, p.iface
	out.add(func() {
		c.emit.Gatt(transport.DisconnectEvent{ConnID: l.id, Address: p.addr, Reason: centralReason}, cIface)
	})
	out.add(func() {
		p.emit.Gatt(transport.DisconnectEvent{ConnID: l.id, Address: c.addr, Reason: peripheralReason}, pIface)
	})
}

// advertised announces p to every scanning central. Callers hold a.mu.
func (a *Air) advertised(out *outbox, p *Peripheral) {
	for _, c := range a.centrals {
		if c.scanning {
			c.report(out, p)
		}
	}
}
