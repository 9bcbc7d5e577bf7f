// Package events decouples the BLE session from the code that consumes what
// it receives.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Kind names an event.
type Kind uint8

const (
	// SensorDataReceived carries a sample.Sample.
	SensorDataReceived Kind = iota + 1
)

func (k Kind) String() string {
	switch k {
	case SensorDataReceived:
		return "sensor_data_received"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Observer receives notifications. Implementations are used as set keys and
// must be comparable; pointer receivers are the usual choice.
type Observer interface {
	Observe(kind Kind, payload any)
}

// Bridge is a synchronous observer registry. Delivery order between
// observers is unspecified.
type Bridge struct {
	mu        sync.RWMutex
	observers map[Kind]map[Observer]struct{}
	logger    *slog.Logger
}

func NewBridge(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		observers: make(map[Kind]map[Observer]struct{}),
		logger:    logger.With("component", "event_bridge"),
	}
}

// Subscribe adds o for kind. Subscribing the same observer twice is a no-op.
func (b *Bridge) Subscribe(kind Kind, o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.observers[kind]
	if !ok {
		set = make(map[Observer]struct{})
		b.observers[kind] = set
	}
	set[o] = struct{}{}
}

func (b *Bridge) Unsubscribe(kind Kind, o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.observers[kind]
	if !ok {
		return
	}
	delete(set, o)
	if len(set) == 0 {
		delete(b.observers, kind)
	}
}

// Notify calls every observer subscribed to kind exactly once before it
// returns. Observers may subscribe or unsubscribe from inside Observe; the
// change applies to the next Notify.
func (b *Bridge) Notify(kind Kind, payload any) {
	b.mu.RLock()
	snapshot := make([]Observer, 0, len(b.observers[kind]))
	for o := range b.observers[kind] {
		snapshot = append(snapshot, o)
	}
	b.mu.RUnlock()

	for _, o := range snapshot {
		b.deliver(kind, o, payload)
	}
}

func (b *Bridge) deliver(kind Kind, o Observer, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("observer panicked", "kind", kind, "panic", r)
		}
	}()
	o.Observe(kind, payload)
}

// Len returns the number of observers subscribed to kind.
func (b *Bridge) Len(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers[kind])
}
