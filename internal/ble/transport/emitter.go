package transport

import "sync"

// Emitter stores the registered callbacks of a transport implementation and
// delivers events to them on the dispatch context.
type Emitter struct {
	poster Poster

	mu   sync.RWMutex
	gap  GapHandler
	gatt GattHandler
}

func NewEmitter(p Poster) *Emitter {
	return &Emitter{poster: p}
}

func (e *Emitter) SetGap(h GapHandler) error {
	if h == nil {
		return ErrRegisterCallbackFailed
	}
	e.mu.Lock()
	e.gap = h
	e.mu.Unlock()
	return nil
}

func (e *Emitter) SetGatt(h GattHandler) error {
	if h == nil {
		return ErrRegisterCallbackFailed
	}
	e.mu.Lock()
	e.gatt = h
	e.mu.Unlock()
	return nil
}

// HasGatt reports whether a GATT callback is registered.
func (e *Emitter) HasGatt() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gatt != nil
}

// Gap posts ev to the GAP callback. Events without a callback are dropped.
func (e *Emitter) Gap(ev GapEvent) {
	e.mu.RLock()
	h := e.gap
	e.mu.RUnlock()
	if h == nil {
		return
	}
	e.poster.Post(func() { h(ev) })
}

// Gatt posts ev to the GATT callback. Events without a callback are dropped.
func (e *Emitter) Gatt(ev GattEvent, iface InterfaceHandle) {
	e.mu.RLock()
	h := e.gatt
	e.mu.RUnlock()
	if h == nil {
		return
	}
	e.poster.Post(func() { h(ev, iface) })
}
