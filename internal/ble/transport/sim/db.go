package sim

import (
	"sort"

	"smart-greenhouse/internal/ble/transport"
)

type attribute struct {
	handle transport.Handle
	kind   transport.AttrType
	uuid   transport.UUID16
	props  transport.Property
	perm   transport.Permission
	value  []byte
}

type service struct {
	id      transport.ServiceID
	start   transport.Handle
	end     transport.Handle
	next    transport.Handle
	started bool
}

// database is a peripheral's attribute table. Handles are allocated in
// blocks per service, starting at firstHandle.
type database struct {
	attrs    map[transport.Handle]*attribute
	services []*service
	next     transport.Handle
}

const firstHandle transport.Handle = 40

func newDatabase() *database {
	return &database{
		attrs: make(map[transport.Handle]*attribute),
		next:  firstHandle,
	}
}

func (db *database) createService(id transport.ServiceID, numHandles uint16) (*service, bool) {
	if numHandles == 0 || uint32(db.next)+uint32(numHandles) > 0xFFFF {
		return nil, false
	}
	s := &service{
		id:    id,
		start: db.next,
		end:   db.next + transport.Handle(numHandles) - 1,
		next:  db.next + 1,
	}
	db.next += transport.Handle(numHandles)
	db.services = append(db.services, s)
	db.attrs[s.start] = &attribute{handle: s.start, kind: transport.AttrService, uuid: id.UUID}
	return s, true
}

func (db *database) service(h transport.Handle) (*service, bool) {
	for _, s := range db.services {
		if s.start == h {
			return s, true
		}
	}
	return nil, false
}

// addCharacteristic uses two handles: declaration and value. It returns the
// value handle.
func (db *database) addCharacteristic(s *service, uuid transport.UUID16, perm transport.Permission, prop transport.Property, initial []byte) (transport.Handle, bool) {
	if s.next+1 > s.end {
		return 0, false
	}
	value := s.next + 1
	db.attrs[value] = &attribute{
		handle: value,
		kind:   transport.AttrCharacteristic,
		uuid:   uuid,
		props:  prop,
		perm:   perm,
		value:  append([]byte(nil), initial...),
	}
	s.next += 2
	return value, true
}

func (db *database) addDescriptor(s *service, uuid transport.UUID16, perm transport.Permission) (transport.Handle, bool) {
	if s.next > s.end {
		return 0, false
	}
	h := s.next
	db.attrs[h] = &attribute{handle: h, kind: transport.AttrDescriptor, uuid: uuid, perm: perm}
	s.next++
	return h, true
}

func (db *database) count(kind transport.AttrType, start, end transport.Handle) int {
	n := 0
	for h, a := range db.attrs {
		if h >= start && h <= end && a.kind == kind {
			n++
		}
	}
	return n
}

func (db *database) characteristics(start, end transport.Handle, uuid transport.UUID16) []transport.CharacteristicElem {
	var out []transport.CharacteristicElem
	for h, a := range db.attrs {
		if h < start || h > end || a.kind != transport.AttrCharacteristic || a.uuid != uuid {
			continue
		}
		out = append(out, transport.CharacteristicElem{Handle: h, UUID: a.uuid, Properties: a.props})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
