package profile

import (
	"errors"
	"testing"

	"smart-greenhouse/internal/ble/transport"
)

type call struct {
	ev    transport.GattEvent
	iface transport.InterfaceHandle
}

func recorder(calls *[]call) Callback {
	return func(ev transport.GattEvent, iface transport.InterfaceHandle) {
		*calls = append(*calls, call{ev: ev, iface: iface})
	}
}

func TestRegistry_InsertLookup(t *testing.T) {
	r := NewRegistry(nil)

	e, err := r.Insert(0, nil)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if e.Interface != transport.NoInterface {
		t.Errorf("Interface = %d, want NoInterface", e.Interface)
	}

	if _, err := r.Insert(0, nil); !errors.Is(err, ErrDuplicateProfile) {
		t.Errorf("second Insert() error = %v, want ErrDuplicateProfile", err)
	}

	got, err := r.Lookup(0)
	if err != nil || got != e {
		t.Errorf("Lookup(0) = %p, %v; want %p, nil", got, err, e)
	}
	if _, err := r.Lookup(3); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Lookup(3) error = %v, want ErrProfileNotFound", err)
	}
}

func TestRegistry_RegisterBindsInterfaceAndForwards(t *testing.T) {
	r := NewRegistry(nil)
	var calls []call
	e, _ := r.Insert(0, recorder(&calls))

	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, 3)

	if e.Interface != 3 {
		t.Fatalf("Interface = %d, want 3", e.Interface)
	}
	if len(calls) != 1 || calls[0].iface != 3 {
		t.Fatalf("calls = %+v, want one call on iface 3", calls)
	}

	r.Dispatch(transport.ConnectEvent{ConnID: 1}, 3)
	r.Dispatch(transport.ConnectEvent{ConnID: 2}, 4)
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if got := calls[1].ev.(transport.ConnectEvent).ConnID; got != 1 {
		t.Errorf("forwarded ConnID = %d, want 1", got)
	}
}

func TestRegistry_InterfaceAssignedOnce(t *testing.T) {
	r := NewRegistry(nil)
	var calls []call
	e, _ := r.Insert(0, recorder(&calls))

	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, 3)
	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, 5)

	if e.Interface != 3 {
		t.Errorf("Interface = %d, want 3", e.Interface)
	}
	if len(calls) != 1 {
		t.Errorf("len(calls) = %d, want 1", len(calls))
	}
}

func TestRegistry_FailedRegistrationStaysUnregistered(t *testing.T) {
	r := NewRegistry(nil)
	var calls []call
	e, _ := r.Insert(0, recorder(&calls))

	r.Dispatch(transport.RegisterEvent{Status: transport.StatusError, AppID: 0}, 3)

	if e.Interface != transport.NoInterface {
		t.Fatalf("Interface = %d, want NoInterface", e.Interface)
	}
	for _, iface := range []transport.InterfaceHandle{0, 3, 7} {
		r.Dispatch(transport.ConnectEvent{ConnID: 1}, iface)
	}
	if len(calls) != 0 {
		t.Errorf("len(calls) = %d, want 0", len(calls))
	}

	// Wildcard events still reach the profile.
	r.Dispatch(transport.DisconnectEvent{}, transport.NoInterface)
	if len(calls) != 1 {
		t.Errorf("len(calls) after wildcard = %d, want 1", len(calls))
	}
}

func TestRegistry_RegistrationWithoutInterfaceIsRejected(t *testing.T) {
	r := NewRegistry(nil)
	var calls []call
	e, _ := r.Insert(0, recorder(&calls))

	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, transport.NoInterface)

	if e.Interface != transport.NoInterface {
		t.Errorf("Interface = %d, want NoInterface", e.Interface)
	}
	if len(calls) != 0 {
		t.Errorf("calls = %+v, want none", calls)
	}

	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, 5)
	if e.Interface != 5 {
		t.Errorf("Interface after valid registration = %d, want 5", e.Interface)
	}
}

func TestRegistry_UnknownProfileIsIgnored(t *testing.T) {
	r := NewRegistry(nil)
	var calls []call
	e, _ := r.Insert(0, recorder(&calls))

	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 9}, 2)

	if e.Interface != transport.NoInterface {
		t.Errorf("Interface = %d, want NoInterface", e.Interface)
	}
	if len(calls) != 0 {
		t.Errorf("len(calls) = %d, want 0", len(calls))
	}
}

func TestRegistry_EmptyRegistryDispatch(t *testing.T) {
	r := NewRegistry(nil)
	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, 1)
	r.Dispatch(transport.ConnectEvent{}, transport.NoInterface)
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_WildcardFansOut(t *testing.T) {
	r := NewRegistry(nil)
	var a, b []call
	ea, _ := r.Insert(0, recorder(&a))
	_, _ = r.Insert(1, recorder(&b))

	r.Dispatch(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, 4)
	a = nil

	r.Dispatch(transport.DisconnectEvent{}, transport.NoInterface)
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("len(a), len(b) = %d, %d; want 1, 1", len(a), len(b))
	}

	r.Dispatch(transport.DisconnectEvent{}, ea.Interface)
	if len(a) != 2 || len(b) != 1 {
		t.Errorf("len(a), len(b) = %d, %d; want 2, 1", len(a), len(b))
	}
}
