package events

import "testing"

type countingObserver struct {
	calls    int
	payloads []any
}

func (o *countingObserver) Observe(_ Kind, payload any) {
	o.calls++
	o.payloads = append(o.payloads, payload)
}

type panickingObserver struct{}

func (*panickingObserver) Observe(Kind, any) { panic("observer failure") }

func TestBridge_NotifyEachObserverOnce(t *testing.T) {
	b := NewBridge(nil)
	a, c := &countingObserver{}, &countingObserver{}
	b.Subscribe(SensorDataReceived, a)
	b.Subscribe(SensorDataReceived, c)
	b.Subscribe(SensorDataReceived, a)

	if got := b.Len(SensorDataReceived); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	b.Notify(SensorDataReceived, "payload")

	for name, o := range map[string]*countingObserver{"a": a, "c": c} {
		if o.calls != 1 {
			t.Errorf("%s.calls = %d, want 1", name, o.calls)
		}
		if len(o.payloads) != 1 || o.payloads[0] != "payload" {
			t.Errorf("%s.payloads = %v, want [payload]", name, o.payloads)
		}
	}
}

func TestBridge_Unsubscribe(t *testing.T) {
	b := NewBridge(nil)
	a := &countingObserver{}
	b.Subscribe(SensorDataReceived, a)
	b.Unsubscribe(SensorDataReceived, a)
	b.Unsubscribe(SensorDataReceived, a)

	b.Notify(SensorDataReceived, nil)

	if a.calls != 0 {
		t.Errorf("calls = %d, want 0", a.calls)
	}
	if got := b.Len(SensorDataReceived); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestBridge_NoReplayForLateSubscribers(t *testing.T) {
	b := NewBridge(nil)
	b.Notify(SensorDataReceived, 1)

	a := &countingObserver{}
	b.Subscribe(SensorDataReceived, a)
	if a.calls != 0 {
		t.Errorf("calls = %d, want 0", a.calls)
	}
}

func TestBridge_OtherKindsNotDelivered(t *testing.T) {
	b := NewBridge(nil)
	a := &countingObserver{}
	b.Subscribe(SensorDataReceived, a)

	b.Notify(Kind(99), nil)
	if a.calls != 0 {
		t.Errorf("calls = %d, want 0", a.calls)
	}
}

func TestBridge_PanickingObserverDoesNotStopOthers(t *testing.T) {
	b := NewBridge(nil)
	a := &countingObserver{}
	b.Subscribe(SensorDataReceived, &panickingObserver{})
	b.Subscribe(SensorDataReceived, a)

	b.Notify(SensorDataReceived, nil)

	if a.calls != 1 {
		t.Errorf("calls = %d, want 1", a.calls)
	}
}
