package coap

import (
	"encoding/hex"
	"net"
)

// Handler answers a request against a Resource. A nil return means no
// response is sent (the caller will reply itself, e.g. asynchronously).
type Handler func(req *Packet, addr net.Addr) *Packet

// Resource is a path routed to a Handler, with optional Observe support.
type Resource struct {
	path       []string
	wellKnown  bool
	observable bool
	handler    Handler

	age       uint16
	observers map[string]*Observer
}

// Observer is one (address, token) registration against an observable
// Resource. notify is called with the fully built notification packet
// (Observe option already set); returning false is treated as the
// observer opting out (NotAuthorized) and deregisters it. When notify is
// nil, the server instead fans the notification out through the outgoing
// queue using addr/token/confirmable directly.
type Observer struct {
	addr        net.Addr
	token       []byte
	confirmable bool
	notify      func(pkt *Packet) bool
}

func observerKey(addr net.Addr, token []byte) string {
	return addr.String() + "#" + hex.EncodeToString(token)
}

// AddResource registers a handler at path. wellKnown marks a resource as
// eligible for ".well-known/core" enumeration; observable allows GET
// requests carrying an Observe option to register observers against it.
func (s *Server) AddResource(path string, wellKnown, observable bool, h Handler) *Resource {
	r := &Resource{
		path:       SplitPath(path),
		wellKnown:  wellKnown,
		observable: observable,
		handler:    h,
		age:        2,
		observers:  make(map[string]*Observer),
	}
	s.mu.Lock()
	s.resources = append(s.resources, r)
	s.mu.Unlock()
	return r
}

// RemoveResource unregisters r, clearing any observers it still holds.
func (s *Server) RemoveResource(r *Resource) {
	s.mu.Lock()
	for i, x := range s.resources {
		if x == r {
			s.resources = append(s.resources[:i], s.resources[i+1:]...)
			break
		}
	}
	for k := range r.observers {
		delete(r.observers, k)
	}
	s.mu.Unlock()
}

func (s *Server) findResource(path []string) *Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resources {
		if pathEqual(r.path, path) {
			return r
		}
	}
	return nil
}

// WellKnownResources returns every resource marked wellKnown, for
// ".well-known/core" enumeration.
func (s *Server) WellKnownResources() []*Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Resource
	for _, r := range s.resources {
		if r.wellKnown {
			out = append(out, r)
		}
	}
	return out
}

// nextAge advances r's notification age counter, wrapping a 16-bit space
// back to 2 rather than 0 — 0 and 1 are reserved so a freshly (re)created
// resource's first few notifications are unambiguously "newer" than any
// prior incarnation's last one.
func (r *Resource) nextAge() uint16 {
	r.age++
	if r.age == 0 {
		r.age = 2
	}
	return r.age
}

// registerObserver adds or replaces the observer identified by (addr,
// token) against r. notify may be nil, in which case notifications are
// delivered through the server's outgoing queue as ordinary sends.
func (r *Resource) registerObserver(addr net.Addr, token []byte, confirmable bool, notify func(*Packet) bool) {
	r.observers[observerKey(addr, token)] = &Observer{
		addr: addr, token: token, confirmable: confirmable, notify: notify,
	}
}

func (r *Resource) deregisterObserver(addr net.Addr, token []byte) {
	delete(r.observers, observerKey(addr, token))
}

// Notify pushes payload/mediaType to every observer of r, each tagged with
// the advanced age counter, per the RFC 7252 Section 5.10.6 Observe
// option, and carries it either via the caller-supplied notify callback
// or the server's retransmitting outgoing queue.
func (s *Server) Notify(r *Resource, code Code, payload []byte, mediaType MediaType) {
	age := r.nextAge()

	s.mu.Lock()
	observers := make([]*Observer, 0, len(r.observers))
	for _, o := range r.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	if len(observers) == 0 {
		return
	}

	template := NewPacket()
	template.SetCode(code)
	_ = template.SetOption(Observe, encodeUint(uint32(age)))
	_ = template.SetOption(ContentFormat, encodeUint(uint32(mediaType)))
	template.AppendPayload(payload)
	defer template.Release()

	for _, o := range observers {
		if o.notify != nil {
			pkt := template.Clone()
			_ = pkt.SetToken(o.token)
			ok := o.notify(pkt)
			pkt.Release()
			if !ok {
				r.deregisterObserver(o.addr, o.token)
			}
			continue
		}

		header := NewPacket()
		header.SetType(notifyType(o.confirmable))
		header.SetID(s.nextMessageID())
		_ = header.SetToken(o.token)
		obs := o
		s.enqueueOutgoing(template, o.addr, header, func() {
			r.deregisterObserver(obs.addr, obs.token)
		})
		header.Release()
	}
}

func notifyType(confirmable bool) Type {
	if confirmable {
		return Confirmable
	}
	return NonConfirmable
}

func encodeUint(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

func decodeUint(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}
