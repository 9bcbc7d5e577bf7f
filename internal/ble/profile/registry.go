// Package profile routes GATT events to the application profiles registered
// with the host stack.
package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"smart-greenhouse/internal/ble/transport"
)

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrDuplicateProfile = errors.New("profile already registered")
)

// Callback handles one GATT event for a profile.
type Callback func(ev transport.GattEvent, iface transport.InterfaceHandle)

// Entry is the per-profile session record. Apart from Interface, which the
// registry assigns, its fields are owned by the profile's session and only
// touched on the dispatch context.
type Entry struct {
	ID transport.AppID
	// Interface stays NoInterface until registration succeeds.
	Interface transport.InterfaceHandle

	ConnID        transport.ConnID
	RemoteAddress transport.Address
	ServiceStart  transport.Handle
	ServiceEnd    transport.Handle
	CharHandle    transport.Handle

	Callback Callback
}

// ClearLink resets the fields that are only valid while a link is open.
func (e *Entry) ClearLink() {
	e.ConnID = 0
	e.RemoteAddress = transport.Address{}
}

type Registry struct {
	mu      sync.RWMutex
	entries map[transport.AppID]*Entry
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[transport.AppID]*Entry),
		logger:  logger.With("component", "profile_registry"),
	}
}

// Insert adds a profile. The entry always starts unregistered.
func (r *Registry) Insert(id transport.AppID, cb Callback) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return nil, fmt.Errorf("insert profile %d: %w", id, ErrDuplicateProfile)
	}
	e := &Entry{ID: id, Interface: transport.NoInterface, Callback: cb}
	r.entries[id] = e
	return e, nil
}

func (r *Registry) Lookup(id transport.AppID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("lookup profile %d: %w", id, ErrProfileNotFound)
	}
	return e, nil
}

// Dispatch is the GATT callback handed to the transport.
//
// A RegisterEvent binds iface to the profile named by its AppID, then is
// delivered like any other event. A failed registration is dropped and the
// profile stays unregistered for the rest of the process. Every other event
// reaches the profiles whose interface equals iface, or all of them when iface
// is NoInterface.
func (r *Registry) Dispatch(ev transport.GattEvent, iface transport.InterfaceHandle) {
	if reg, ok := ev.(transport.RegisterEvent); ok {
		if !r.bind(reg, iface) {
			return
		}
	}

	for _, e := range r.matching(iface) {
		if e.Callback != nil {
			e.Callback(ev, iface)
		}
	}
}

func (r *Registry) bind(ev transport.RegisterEvent, iface transport.InterfaceHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ev.AppID]
	if !ok {
		r.logger.Warn("registration for unknown profile", "app_id", ev.AppID, "iface", iface)
		return false
	}
	if ev.Status != transport.StatusOK {
		r.logger.Error("profile registration failed", "app_id", ev.AppID, "status", ev.Status)
		return false
	}
	if iface == transport.NoInterface {
		r.logger.Error("profile registration without interface", "app_id", ev.AppID)
		return false
	}
	if e.Interface != transport.NoInterface {
		r.logger.Warn("profile already registered", "app_id", ev.AppID, "iface", e.Interface)
		return false
	}
	e.Interface = iface
	r.logger.Info("profile registered", "app_id", ev.AppID, "iface", iface)
	return true
}

func (r *Registry) matching(iface transport.InterfaceHandle) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if iface == transport.NoInterface || iface == e.Interface {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
