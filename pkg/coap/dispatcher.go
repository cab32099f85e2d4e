package coap

import (
	"crypto/rand"
	"net"
	"strings"
)

// handleDatagram classifies and routes one inbound datagram: CoAP ping/pong,
// ack/reset matching against the outgoing queue, response delivery against
// the pending-reply table, or request routing against the resource table.
func (s *Server) handleDatagram(data []byte, addr net.Addr) {
	pkt, err := Decode(data)
	if err != nil {
		s.log().Debugf("coap: dropping malformed datagram from %v: %v", addr, err)
		return
	}
	defer pkt.Release()

	switch {
	case pkt.code == Empty && pkt.typ == Confirmable:
		s.handlePing(pkt, addr)
	case pkt.code == Empty:
		// Empty ACK (piggybacked-response placeholder) or Reset: both
		// acknowledge the outstanding send; a Reset additionally satisfies
		// a pending ping (the "pong") or rejects a pending request.
		s.ackOutgoing(pkt.id)
		if pkt.typ == Reset {
			s.matchPendingByID(pkt.id, pkt)
		}
	case pkt.code.IsResponse():
		if pkt.typ == Acknowledgement {
			s.ackOutgoing(pkt.id)
		}
		s.handleResponse(pkt, addr)
	case pkt.code.IsRequest():
		s.handleRequest(pkt, addr)
	default:
		s.log().Debugf("coap: dropping packet with unrecognized code %v from %v", pkt.code, addr)
	}
}

func (s *Server) handlePing(pkt *Packet, addr net.Addr) {
	s.sendReset(pkt.id, addr)
}

func (s *Server) handleResponse(pkt *Packet, addr net.Addr) {
	entry := s.matchPending(pkt, addr)
	if entry == nil {
		s.log().Debugf("coap: unmatched response from %v (id=%d)", addr, pkt.id)
		if _, err := pkt.FirstOption(Observe); err == nil {
			s.sendReset(pkt.id, addr)
		}
		return
	}
	entry.guard.enter(func() { entry.callback(pkt.Retain()) })
}

// sendReset tells addr to stop sending: used both for CoAP ping replies and
// for an observe notification that arrives with no matching pending entry
// (the observer has forgotten this subscription, e.g. after a restart).
func (s *Server) sendReset(id uint16, addr net.Addr) {
	reset := NewPacket()
	reset.SetType(Reset)
	reset.SetCode(Empty)
	reset.SetID(id)
	defer reset.Release()
	wire, err := Encode(reset)
	if err != nil {
		return
	}
	if _, err := s.socket.WriteTo(wire, addr); err != nil {
		s.log().Errorf("coap: reset send failed: %v", err)
	}
}

// matchPendingByID removes the non-observing pending entry for id, if any,
// and delivers pkt (retained) to its callback.
func (s *Server) matchPendingByID(id uint16, pkt *Packet) {
	s.mu.Lock()
	var found *pendingEntry
	for i, p := range s.pending {
		if !p.observing && p.id == id {
			found = p
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if found != nil {
		if found.timer != nil {
			found.timer.Stop()
		}
		found.guard.enter(func() { found.callback(pkt.Retain()) })
	}
}

func (s *Server) handleRequest(req *Packet, addr net.Addr) {
	path := req.Path()
	if pathEqual(path, WellKnownCorePath) {
		s.respondWellKnownCore(req, addr)
		return
	}

	res := s.findResource(path)
	if res == nil {
		if s.fallback != nil {
			s.respond(s.fallback(req, addr), req, addr)
			return
		}
		s.respondError(req, addr, NotFound)
		return
	}

	if res.observable && req.code == GET {
		if obs, err := req.FirstOption(Observe); err == nil {
			if decodeUint(obs) == ObserveDeregister {
				res.deregisterObserver(addr, req.token)
			} else {
				res.registerObserver(addr, req.token, req.typ == Confirmable, nil)
			}
		}
	}

	s.respond(res.handler(req, addr), req, addr)
}

// respond sends resp as the reply to req: an Acknowledgement carrying the
// response if req was Confirmable (piggybacked), or a standalone
// NonConfirmable message otherwise. A nil
// resp means the handler will reply asynchronously itself.
func (s *Server) respond(resp *Packet, req *Packet, addr net.Addr) {
	if resp == nil {
		return
	}
	defer resp.Release()

	resp.SetID(req.id)
	_ = resp.SetToken(req.token)
	if req.typ == Confirmable {
		resp.SetType(Acknowledgement)
	} else {
		resp.SetType(NonConfirmable)
	}

	wire, err := Encode(resp)
	if err != nil {
		s.log().Errorf("coap: encode response failed: %v", err)
		return
	}
	if _, err := s.socket.WriteTo(wire, addr); err != nil {
		s.log().Errorf("coap: send response failed: %v", err)
	}
}

func (s *Server) respondError(req *Packet, addr net.Addr, code Code) {
	resp := NewPacket()
	resp.SetCode(code)
	s.respond(resp, req, addr)
}

func (s *Server) respondWellKnownCore(req *Packet, addr net.Addr) {
	resources := s.WellKnownResources()
	var b strings.Builder
	for i, r := range resources {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('<')
		b.WriteString(strings.Join(r.path, "/"))
		b.WriteByte('>')
	}

	resp := NewPacket()
	resp.SetCode(Content)
	_ = resp.SetOption(ContentFormat, encodeUint(uint32(AppLinkFormat)))
	resp.AppendPayload([]byte(b.String()))
	s.respond(resp, req, addr)
}

// Request sends req (a GET/POST/PUT/DELETE) to addr with the message type
// already set on req, installing cb as the pending-reply callback: cb runs once with
// the matched response, or with nil if no reply arrives before the
// pending-reply timeout.
func (s *Server) Request(req *Packet, addr net.Addr, cb func(*Packet)) {
	if req.id == 0 {
		req.SetID(s.nextMessageID())
	}
	if len(req.token) == 0 {
		_ = req.SetToken(randomToken())
	}
	if cb != nil {
		s.registerPending(req, addr, false, cb)
	}
	s.enqueueOutgoing(req, addr, nil, nil)
}

// Observe issues a GET with Observe=0 against path at addr, delivering
// every notification (and the initial response) to cb until the returned
// cancel function is called.
func (s *Server) Observe(path []string, addr net.Addr, cb func(*Packet)) func() {
	req := NewPacket()
	req.SetType(Confirmable)
	req.SetCode(GET)
	req.SetID(s.nextMessageID())
	_ = req.SetToken(randomToken())
	_ = req.AddOption(Observe, encodeUint(ObserveRegister))
	_ = req.SetPath(path)

	token := append([]byte(nil), req.token...)
	s.registerPending(req, addr, true, cb)
	s.enqueueOutgoing(req, addr, nil, nil)

	return func() {
		s.cancelObserve(path, addr, token)
	}
}

func (s *Server) cancelObserve(path []string, addr net.Addr, token []byte) {
	s.mu.Lock()
	for i := 0; i < len(s.pending); i++ {
		p := s.pending[i]
		if p.observing && sameHost(p.addr, addr) && tokensEqual(p.token, token) {
			if p.timer != nil {
				p.timer.Stop()
			}
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	dereg := NewPacket()
	dereg.SetType(NonConfirmable)
	dereg.SetCode(GET)
	dereg.SetID(s.nextMessageID())
	_ = dereg.SetToken(token)
	_ = dereg.AddOption(Observe, encodeUint(ObserveDeregister))
	_ = dereg.SetPath(path)
	s.enqueueOutgoing(dereg, addr, nil, nil)
	dereg.Release()
}

// Ping sends a CoAP ping (empty Confirmable) to addr; cb runs with true if
// the peer answers with a Reset (pong) or false if no reply arrives and
// retransmission is exhausted.
func (s *Server) Ping(addr net.Addr, cb func(ok bool)) {
	pkt := NewPacket()
	pkt.SetType(Confirmable)
	pkt.SetCode(Empty)
	pkt.SetID(s.nextMessageID())
	s.registerPending(pkt, addr, false, func(reply *Packet) {
		if cb != nil {
			cb(reply != nil)
		}
	})
	s.enqueueOutgoing(pkt, addr, nil, nil)
	pkt.Release()
}

func randomToken() []byte {
	tok := make([]byte, 4)
	_, _ = rand.Read(tok)
	return tok
}
