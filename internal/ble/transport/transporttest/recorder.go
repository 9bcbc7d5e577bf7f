// Package transporttest provides a recording transport and synchronous
// posters for session tests.
package transporttest

import (
	"sync"
	"time"

	"smart-greenhouse/internal/ble/transport"
)

// Call is one recorded command.
type Call struct {
	Method string
	Args   []any
}

// Recorder implements transport.Central and transport.Peripheral. It records
// every command and never emits events on its own; tests feed events through
// the captured callbacks.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	gap   transport.GapHandler
	gatt  transport.GattHandler

	// Errs forces the named method to fail.
	Errs map[string]error
	// AttrCount and Chars answer the synchronous attribute queries.
	AttrCount int
	Chars     []transport.CharacteristicElem
}

var (
	_ transport.Central    = (*Recorder)(nil)
	_ transport.Peripheral = (*Recorder)(nil)
)

func (r *Recorder) record(method string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: method, Args: args})
	return r.Errs[method]
}

// Calls returns the recorded calls of method, or all calls for "".
func (r *Recorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was called.
func (r *Recorder) Count(method string) int {
	return len(r.Calls(method))
}

// Methods returns the recorded method names in call order.
func (r *Recorder) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Method
	}
	return out
}

// Reset forgets the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// Gap delivers ev to the registered GAP callback.
func (r *Recorder) Gap(ev transport.GapEvent) {
	r.mu.Lock()
	h := r.gap
	r.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Gatt delivers ev to the registered GATT callback.
func (r *Recorder) Gatt(ev transport.GattEvent, iface transport.InterfaceHandle) {
	r.mu.Lock()
	h := r.gatt
	r.mu.Unlock()
	if h != nil {
		h(ev, iface)
	}
}

func (r *Recorder) RegisterGapCallback(h transport.GapHandler) error {
	if err := r.record("RegisterGapCallback"); err != nil {
		return err
	}
	r.mu.Lock()
	r.gap = h
	r.mu.Unlock()
	return nil
}

func (r *Recorder) RegisterGattCallback(h transport.GattHandler) error {
	if err := r.record("RegisterGattCallback"); err != nil {
		return err
	}
	r.mu.Lock()
	r.gatt = h
	r.mu.Unlock()
	return nil
}

func (r *Recorder) RegisterApplicationProfile(id transport.AppID) error {
	return r.record("RegisterApplicationProfile", id)
}

func (r *Recorder) SetLocalMtu(size uint16) error {
	return r.record("SetLocalMtu", size)
}

func (r *Recorder) SetScanParameters(p transport.ScanParams) error {
	return r.record("SetScanParameters", p)
}

func (r *Recorder) StartScanning(d time.Duration) error {
	return r.record("StartScanning", d)
}

func (r *Recorder) StopScanning() error {
	return r.record("StopScanning")
}

func (r *Recorder) OpenConnection(iface transport.InterfaceHandle, addr transport.Address, addrType transport.AddressType, direct bool) error {
	return r.record("OpenConnection", iface, addr, addrType, direct)
}

func (r *Recorder) CloseConnection(iface transport.InterfaceHandle, conn transport.ConnID) error {
	return r.record("CloseConnection", iface, conn)
}

func (r *Recorder) SendMtuRequest(iface transport.InterfaceHandle, conn transport.ConnID) error {
	return r.record("SendMtuRequest", iface, conn)
}

func (r *Recorder) SearchService(iface transport.InterfaceHandle, conn transport.ConnID, filter *transport.UUID16) error {
	var f any
	if filter != nil {
		f = *filter
	}
	return r.record("SearchService", iface, conn, f)
}

func (r *Recorder) GetAttributeCount(iface transport.InterfaceHandle, conn transport.ConnID, kind transport.AttrType, start, end, char transport.Handle) (int, error) {
	if err := r.record("GetAttributeCount", iface, conn, kind, start, end, char); err != nil {
		return 0, err
	}
	return r.AttrCount, nil
}

func (r *Recorder) GetCharacteristicByUUID(iface transport.InterfaceHandle, conn transport.ConnID, start, end transport.Handle, uuid transport.UUID16) ([]transport.CharacteristicElem, error) {
	if err := r.record("GetCharacteristicByUUID", iface, conn, start, end, uuid); err != nil {
		return nil, err
	}
	return r.Chars, nil
}

func (r *Recorder) WriteCharacteristic(iface transport.InterfaceHandle, conn transport.ConnID, handle transport.Handle, value []byte, wt transport.WriteType, auth transport.AuthReq) error {
	return r.record("WriteCharacteristic", iface, conn, handle, append([]byte(nil), value...), wt, auth)
}

func (r *Recorder) SetDeviceName(name string) error {
	return r.record("SetDeviceName", name)
}

func (r *Recorder) SetAdvertisingData(d transport.AdvData) error {
	return r.record("SetAdvertisingData", d)
}

func (r *Recorder) SetScanResponseData(d transport.AdvData) error {
	return r.record("SetScanResponseData", d)
}

func (r *Recorder) StartAdvertising(p transport.AdvParams) error {
	return r.record("StartAdvertising", p)
}

func (r *Recorder) CreateService(iface transport.InterfaceHandle, id transport.ServiceID, numHandles uint16) error {
	return r.record("CreateService", iface, id, numHandles)
}

func (r *Recorder) StartService(service transport.Handle) error {
	return r.record("StartService", service)
}

func (r *Recorder) AddCharacteristic(service transport.Handle, uuid transport.UUID16, perm transport.Permission, prop transport.Property, initial []byte) error {
	return r.record("AddCharacteristic", service, uuid, perm, prop, append([]byte(nil), initial...))
}

func (r *Recorder) AddCharacteristicDescriptor(service transport.Handle, uuid transport.UUID16, perm transport.Permission) error {
	return r.record("AddCharacteristicDescriptor", service, uuid, perm)
}

func (r *Recorder) SendResponse(iface transport.InterfaceHandle, conn transport.ConnID, transID uint32, status transport.Status, value []byte) error {
	return r.record("SendResponse", iface, conn, transID, status, append([]byte(nil), value...))
}

func (r *Recorder) UpdateConnectionParameters(p transport.ConnParams) error {
	return r.record("UpdateConnectionParameters", p)
}
