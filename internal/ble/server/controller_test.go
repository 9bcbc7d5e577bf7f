package server

import (
	"errors"
	"testing"
	"time"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/ble/transport"
	"smart-greenhouse/internal/ble/transport/transporttest"
	"smart-greenhouse/internal/events"
	"smart-greenhouse/internal/sample"
)

const testIface transport.InterfaceHandle = 4

var clientAddr = transport.Address{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

type notification struct {
	kind    events.Kind
	payload any
}

type notifyLog struct {
	got []notification
}

func (n *notifyLog) Notify(kind events.Kind, payload any) {
	n.got = append(n.got, notification{kind: kind, payload: payload})
}

type harness struct {
	c     *Controller
	rec   *transporttest.Recorder
	sched *transporttest.Manual
	notes *notifyLog
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		rec:   &transporttest.Recorder{},
		sched: &transporttest.Manual{},
		notes: &notifyLog{},
	}
	h.c = NewController(h.rec, h.sched, h.notes, opts, nil)
	if err := h.c.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return h
}

// build runs registration and the whole service setup chain.
func (h *harness) build() {
	h.rec.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: ble.ProfileGreenhouse}, testIface)
	h.rec.Gap(transport.AdvDataSetEvent{Status: transport.StatusOK})
	h.rec.Gap(transport.ScanRspDataSetEvent{Status: transport.StatusOK})
	h.rec.Gap(transport.AdvStartEvent{Status: transport.StatusOK})
	h.rec.Gatt(transport.CreateServiceEvent{Status: transport.StatusOK, ServiceHandle: 40, ServiceID: transport.ServiceID{UUID: ble.ServiceUUID, Primary: true}}, testIface)
	h.rec.Gatt(transport.StartServiceEvent{Status: transport.StatusOK, ServiceHandle: 40}, testIface)
	h.rec.Gatt(transport.AddCharEvent{Status: transport.StatusOK, ServiceHandle: 40, AttrHandle: 42, UUID: ble.CharUUID}, testIface)
	h.rec.Gatt(transport.AddDescrEvent{Status: transport.StatusOK, ServiceHandle: 40, AttrHandle: 43, UUID: ble.CCCDUUID}, testIface)
}

func (h *harness) connect(conn transport.ConnID) {
	h.build()
	h.rec.Gatt(transport.ConnectEvent{ConnID: conn, Address: clientAddr}, testIface)
}

func TestInit_Failures(t *testing.T) {
	tests := []struct {
		method string
		err    error
	}{
		{method: "RegisterGapCallback", err: transport.ErrRegisterCallbackFailed},
		{method: "RegisterGattCallback", err: transport.ErrRegisterCallbackFailed},
		{method: "RegisterApplicationProfile", err: transport.ErrRegisterAppFailed},
		{method: "SetLocalMtu", err: transport.ErrSetLocalMtuFailed},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := &transporttest.Recorder{Errs: map[string]error{tt.method: tt.err}}
			c := NewController(rec, &transporttest.Manual{}, &notifyLog{}, Options{}, nil)
			if err := c.Init(); !errors.Is(err, tt.err) {
				t.Errorf("Init() error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestRegistrationConfiguresService(t *testing.T) {
	h := newHarness(t, Options{DeviceName: "Hub"})
	h.rec.Reset()

	h.rec.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, testIface)

	want := []string{"SetDeviceName", "SetAdvertisingData", "SetScanResponseData", "CreateService"}
	got := h.rec.Methods()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
	if name := h.rec.Calls("SetDeviceName")[0].Args[0]; name != "Hub" {
		t.Errorf("SetDeviceName(%v), want Hub", name)
	}
	args := h.rec.Calls("CreateService")[0].Args
	if args[0] != testIface {
		t.Errorf("CreateService iface = %v, want %v", args[0], testIface)
	}
	if id := args[1].(transport.ServiceID); id.UUID != ble.ServiceUUID || !id.Primary {
		t.Errorf("CreateService id = %+v", id)
	}
	if args[2] != uint16(ble.ServiceNumHandles) {
		t.Errorf("CreateService handles = %v, want %d", args[2], ble.ServiceNumHandles)
	}
	if got := h.rec.Count("StartAdvertising"); got != 0 {
		t.Errorf("StartAdvertising calls = %d, want 0", got)
	}
}

func TestAdvertisingWaitsForBothDataSets(t *testing.T) {
	orders := map[string][]transport.GapEvent{
		"adv data first": {
			transport.AdvDataSetEvent{Status: transport.StatusOK},
			transport.ScanRspDataSetEvent{Status: transport.StatusOK},
		},
		"scan response first": {
			transport.ScanRspDataSetEvent{Status: transport.StatusOK},
			transport.AdvDataSetEvent{Status: transport.StatusOK},
		},
	}

	for name, evs := range orders {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.rec.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, testIface)

			h.rec.Gap(evs[0])
			if got := h.rec.Count("StartAdvertising"); got != 0 {
				t.Fatalf("StartAdvertising after first completion = %d, want 0", got)
			}
			h.rec.Gap(evs[1])
			if got := h.rec.Count("StartAdvertising"); got != 1 {
				t.Fatalf("StartAdvertising after both completions = %d, want 1", got)
			}

			// Repeated completions must not advertise again.
			h.rec.Gap(evs[0])
			h.rec.Gap(evs[1])
			if got := h.rec.Count("StartAdvertising"); got != 1 {
				t.Errorf("StartAdvertising calls = %d, want 1", got)
			}
		})
	}
}

func TestFailedDataSetBlocksAdvertising(t *testing.T) {
	h := newHarness(t, Options{})
	h.rec.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, testIface)
	h.rec.Gap(transport.AdvDataSetEvent{Status: transport.StatusError})
	h.rec.Gap(transport.ScanRspDataSetEvent{Status: transport.StatusOK})

	h.c.Rearm()
	if got := h.rec.Count("StartAdvertising"); got != 0 {
		t.Errorf("StartAdvertising calls = %d, want 0", got)
	}
}

func TestServiceSetupChain(t *testing.T) {
	h := newHarness(t, Options{})
	h.build()

	start := h.rec.Calls("StartService")
	if len(start) != 1 || start[0].Args[0] != transport.Handle(40) {
		t.Fatalf("StartService calls = %+v, want one for handle 40", start)
	}
	chars := h.rec.Calls("AddCharacteristic")
	if len(chars) != 1 {
		t.Fatalf("AddCharacteristic calls = %d, want 1", len(chars))
	}
	args := chars[0].Args
	if args[1] != ble.CharUUID {
		t.Errorf("characteristic uuid = %v, want %v", args[1], ble.CharUUID)
	}
	if prop := args[3].(transport.Property); prop&transport.PropWrite == 0 || prop&transport.PropNotify == 0 {
		t.Errorf("characteristic properties = %#x, want write and notify", prop)
	}
	descr := h.rec.Calls("AddCharacteristicDescriptor")
	if len(descr) != 1 || descr[0].Args[1] != ble.CCCDUUID {
		t.Fatalf("AddCharacteristicDescriptor calls = %+v, want one CCCD", descr)
	}
	if h.c.entry.CharHandle != 42 || h.c.cccdHandle != 43 {
		t.Errorf("handles = char %d cccd %d, want 42 and 43", h.c.entry.CharHandle, h.c.cccdHandle)
	}
	if h.c.entry.ServiceStart != 40 || h.c.entry.ServiceEnd != 43 {
		t.Errorf("service range = %d..%d, want 40..43", h.c.entry.ServiceStart, h.c.entry.ServiceEnd)
	}
	if h.c.State() != StateAdvertising {
		t.Errorf("State() = %v, want %v", h.c.State(), StateAdvertising)
	}
}

func TestConnectUpdatesParams(t *testing.T) {
	h := newHarness(t, Options{})
	h.build()
	h.rec.Reset()

	h.rec.Gatt(transport.ConnectEvent{ConnID: 2, Address: clientAddr}, testIface)

	if !h.c.Connected() || h.c.State() != StateConnected {
		t.Fatalf("Connected() = %v, State() = %v", h.c.Connected(), h.c.State())
	}
	calls := h.rec.Calls("UpdateConnectionParameters")
	if len(calls) != 1 {
		t.Fatalf("UpdateConnectionParameters calls = %d, want 1", len(calls))
	}
	p := calls[0].Args[0].(transport.ConnParams)
	want := DefaultConnParams
	want.Address = clientAddr
	if p != want {
		t.Errorf("conn params = %+v, want %+v", p, want)
	}
}

func TestWriteSample(t *testing.T) {
	h := newHarness(t, Options{WriteFollowUpDelay: 2 * time.Second})
	h.connect(2)
	h.rec.Reset()

	in := sample.Sample{ClientID: 5, Position: 1, Sequence: 3, Temperature: sample.Ptr(float32(22.5))}
	h.rec.Gatt(transport.WriteEvent{ConnID: 2, TransID: 77, Handle: 42, Value: sample.Encode(in), NeedResponse: true}, testIface)

	resp := h.rec.Calls("SendResponse")
	if len(resp) != 1 {
		t.Fatalf("SendResponse calls = %d, want 1", len(resp))
	}
	if resp[0].Args[2] != uint32(77) || resp[0].Args[3] != transport.StatusOK {
		t.Errorf("response = trans %v status %v, want 77 ok", resp[0].Args[2], resp[0].Args[3])
	}

	// Publishing is a scheduled continuation, not part of the write handler.
	if len(h.notes.got) != 0 {
		t.Fatalf("notifications before follow-up = %d, want 0", len(h.notes.got))
	}
	if pending := h.sched.Pending(); len(pending) != 1 || pending[0] != 2*time.Second {
		t.Fatalf("pending = %v, want [2s]", pending)
	}
	if n := h.sched.RunDelayed(); n != 1 {
		t.Fatalf("RunDelayed() = %d, want 1", n)
	}

	if len(h.notes.got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.notes.got))
	}
	n := h.notes.got[0]
	if n.kind != events.SensorDataReceived {
		t.Errorf("kind = %v, want %v", n.kind, events.SensorDataReceived)
	}
	got := n.payload.(sample.Sample)
	if got.ClientID != 5 || got.Sequence != 3 || got.Temperature == nil || *got.Temperature != 22.5 {
		t.Errorf("sample = %+v", got)
	}
}

func TestWriteRejected(t *testing.T) {
	valid := sample.Encode(sample.Sample{ClientID: 1})
	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0x7F

	tests := []struct {
		name string
		ev   transport.WriteEvent
		want transport.Status
	}{
		{name: "short payload", ev: transport.WriteEvent{Handle: 42, Value: valid[:4], NeedResponse: true}, want: transport.StatusInvalidAttrLen},
		{name: "bad magic", ev: transport.WriteEvent{Handle: 42, Value: badMagic, NeedResponse: true}, want: transport.StatusError},
		{name: "offset", ev: transport.WriteEvent{Handle: 42, Offset: 2, Value: valid, NeedResponse: true}, want: transport.StatusInvalidOffset},
		{name: "unknown handle", ev: transport.WriteEvent{Handle: 99, Value: valid, NeedResponse: true}, want: transport.StatusInvalidHandle},
		{name: "prepared write", ev: transport.WriteEvent{Handle: 42, Value: valid, NeedResponse: true, Prepare: true}, want: transport.StatusRequestNotSupp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.connect(2)
			h.rec.Reset()

			tt.ev.ConnID = 2
			h.rec.Gatt(tt.ev, testIface)

			resp := h.rec.Calls("SendResponse")
			if len(resp) != 1 || resp[0].Args[3] != tt.want {
				t.Errorf("SendResponse calls = %+v, want status %v", resp, tt.want)
			}
			h.sched.RunDelayed()
			if len(h.notes.got) != 0 {
				t.Errorf("notifications = %d, want 0", len(h.notes.got))
			}
		})
	}
}

func TestWriteWithoutResponse(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(2)
	h.rec.Reset()

	h.rec.Gatt(transport.WriteEvent{ConnID: 2, Handle: 42, Value: sample.Encode(sample.Sample{})}, testIface)
	h.sched.RunDelayed()

	if got := h.rec.Count("SendResponse"); got != 0 {
		t.Errorf("SendResponse calls = %d, want 0", got)
	}
	if len(h.notes.got) != 1 {
		t.Errorf("notifications = %d, want 1", len(h.notes.got))
	}
}

func TestCCCDWrite(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(2)

	h.rec.Gatt(transport.WriteEvent{ConnID: 2, Handle: 43, Value: []byte{0x01, 0x00}, NeedResponse: true}, testIface)
	if !h.c.notifyEnabled {
		t.Error("notifyEnabled = false, want true")
	}
	h.rec.Gatt(transport.WriteEvent{ConnID: 2, Handle: 43, Value: []byte{0x00, 0x00}, NeedResponse: true}, testIface)
	if h.c.notifyEnabled {
		t.Error("notifyEnabled = true, want false")
	}
}

func TestDisconnectRestartsAdvertising(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(2)
	h.rec.Reset()

	h.rec.Gatt(transport.DisconnectEvent{ConnID: 2, Address: clientAddr, Reason: transport.ReasonRemoteTerminated}, testIface)

	if h.c.Connected() {
		t.Error("Connected() = true, want false")
	}
	if got := h.rec.Count("StartAdvertising"); got != 1 {
		t.Errorf("StartAdvertising calls = %d, want 1", got)
	}
	if h.c.State() != StateDisconnected {
		t.Errorf("State() = %v, want %v", h.c.State(), StateDisconnected)
	}

	// The supervisor must not pile on while the restart is pending.
	h.c.Rearm()
	if got := h.rec.Count("StartAdvertising"); got != 1 {
		t.Errorf("StartAdvertising calls after rearm = %d, want 1", got)
	}

	h.rec.Gap(transport.AdvStartEvent{Status: transport.StatusOK})
	if h.c.State() != StateAdvertising {
		t.Errorf("State() = %v, want %v", h.c.State(), StateAdvertising)
	}
}

func TestRearm(t *testing.T) {
	t.Run("connected does nothing", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.connect(1)
		h.rec.Reset()

		h.c.Rearm()
		if got := h.rec.Methods(); len(got) != 0 {
			t.Errorf("calls = %v, want none", got)
		}
	})

	t.Run("advertising does nothing", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.build()
		h.rec.Reset()

		h.c.Rearm()
		if got := h.rec.Methods(); len(got) != 0 {
			t.Errorf("calls = %v, want none", got)
		}
	})

	t.Run("failed advertising start is retried", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.rec.Gatt(transport.RegisterEvent{Status: transport.StatusOK, AppID: 0}, testIface)
		h.rec.Gap(transport.AdvDataSetEvent{Status: transport.StatusOK})
		h.rec.Gap(transport.ScanRspDataSetEvent{Status: transport.StatusOK})
		h.rec.Gap(transport.AdvStartEvent{Status: transport.StatusError})
		h.rec.Reset()

		h.c.Rearm()
		if got := h.rec.Count("StartAdvertising"); got != 1 {
			t.Errorf("StartAdvertising calls = %d, want 1", got)
		}
	})

	t.Run("shutdown stops rearming", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.connect(1)
		h.c.Shutdown()
		h.rec.Reset()

		h.rec.Gatt(transport.DisconnectEvent{ConnID: 1}, testIface)
		h.c.Rearm()
		if got := h.rec.Count("StartAdvertising"); got != 0 {
			t.Errorf("StartAdvertising calls = %d, want 0", got)
		}
	})
}
