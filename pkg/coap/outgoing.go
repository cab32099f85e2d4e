package coap

import (
	"math/rand"
	"net"
	"time"
)

// Retransmission tuning (spec section 6 "Timeouts/constants").
const (
	ackTimeoutMinMS = 2000
	ackTimeoutMaxMS = 3000
	// MaxRetransmit is the retransmission ceiling: a confirmable send is
	// retried at most this many times before being dropped.
	MaxRetransmit = 4
)

func chooseAckTimeout() time.Duration {
	span := ackTimeoutMaxMS - ackTimeoutMinMS
	ms := ackTimeoutMinMS + rand.Intn(span+1)
	return time.Duration(ms) * time.Millisecond
}

// outgoingEntry is a packet awaiting transmission or its next
// retransmission. headerOverride, when set, supplies a per-observer token
// and type so one notification payload packet can be fanned out to many
// observers without re-encoding the payload for each.
type outgoingEntry struct {
	packet         *Packet
	headerOverride *Packet
	addr           net.Addr

	confirmable     bool
	retransmitCount int
	ackTimeout      time.Duration
	timer           Timer

	// onDropped is invoked (once) if the retransmission ceiling is reached
	// without an ack/match, or a send fails with a non-temporary error. It
	// is not invoked on ack or on CancelSend.
	onDropped func()
}

// resolve returns the packet actually placed on the wire: either the
// shared payload packet itself, or — when a header override is present —
// a clone carrying the override's type/token/id with the payload packet's
// code, options and payload.
func (e *outgoingEntry) resolve() *Packet {
	if e.headerOverride == nil {
		return e.packet
	}
	out := e.packet.Clone()
	out.typ = e.headerOverride.typ
	out.id = e.headerOverride.id
	_ = out.SetToken(e.headerOverride.token)
	return out
}

// enqueueOutgoing adds pkt to the server's outgoing queue and attempts an
// immediate send, matching "inserted when a send is requested ... removed
// on successful send of non-retransmitted packets, on acknowledgement
// match, on explicit cancel, or after the retransmission ceiling is
// reached".
func (s *Server) enqueueOutgoing(pkt *Packet, addr net.Addr, headerOverride *Packet, onDropped func()) *outgoingEntry {
	wireType := pkt.typ
	if headerOverride != nil {
		wireType = headerOverride.typ
	}
	e := &outgoingEntry{
		packet:         pkt.Retain(),
		headerOverride: headerOverride,
		addr:           addr,
		confirmable:    wireType == Confirmable,
		onDropped:      onDropped,
	}
	s.mu.Lock()
	s.outgoing = append(s.outgoing, e)
	s.mu.Unlock()

	s.trySend(e)
	return e
}

// trySend writes e's wire form. On success a confirmable entry gets a
// retransmit timer installed; a non-confirmable entry (including a
// notification whose header override is non-confirmable) is removed
// immediately.
func (s *Server) trySend(e *outgoingEntry) {
	out := e.resolve()
	wire, err := Encode(out)
	if out != e.packet {
		out.Release()
	}
	if err != nil {
		s.log().Errorf("coap: encode failed: %v", err)
		s.removeOutgoing(e, false)
		return
	}

	if _, err := s.socket.WriteTo(wire, e.addr); err != nil {
		if isTemporary(err) {
			// EAGAIN-equivalent: leave the entry queued, the caller's
			// next writable opportunity (here: the next enqueue/retry)
			// will retry the send.
			return
		}
		s.log().Errorf("coap: send failed: %v", err)
		s.removeOutgoing(e, true)
		return
	}

	if !e.confirmable {
		s.removeOutgoing(e, false)
		return
	}

	e.ackTimeout = chooseAckTimeout()
	s.armRetransmit(e)
}

func (s *Server) armRetransmit(e *outgoingEntry) {
	wait := e.ackTimeout * time.Duration(1<<uint(e.retransmitCount))
	e.timer = s.mainloop.After(wait, func() { s.onRetransmitFire(e) })
}

func (s *Server) onRetransmitFire(e *outgoingEntry) {
	s.mu.Lock()
	if !s.outgoingContains(e) {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	s.mu.Unlock()

	e.retransmitCount++
	s.trySendRetransmit(e)
}

func (s *Server) trySendRetransmit(e *outgoingEntry) {
	out := e.resolve()
	wire, err := Encode(out)
	if out != e.packet {
		out.Release()
	}
	if err != nil {
		s.removeOutgoing(e, false)
		return
	}
	if _, err := s.socket.WriteTo(wire, e.addr); err != nil && !isTemporary(err) {
		s.removeOutgoing(e, true)
		return
	}

	if e.retransmitCount >= MaxRetransmit {
		// PermanentFailure: drop without calling back directly — the
		// corresponding pending-reply entry (if any) eventually times
		// out and delivers a null-packet terminal callback.
		s.removeOutgoing(e, true)
		return
	}
	s.armRetransmit(e)
}

func (s *Server) outgoingContains(e *outgoingEntry) bool {
	for _, o := range s.outgoing {
		if o == e {
			return true
		}
	}
	return false
}

// removeOutgoing removes e from the queue, stops any pending timer and
// releases its packet reference. If dropped is true and onDropped is set,
// onDropped runs after the entry is unlinked.
func (s *Server) removeOutgoing(e *outgoingEntry, dropped bool) {
	s.mu.Lock()
	for i, o := range s.outgoing {
		if o == e {
			s.outgoing = append(s.outgoing[:i], s.outgoing[i+1:]...)
			break
		}
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	s.mu.Unlock()

	e.packet.Release()
	if dropped && e.onDropped != nil {
		e.onDropped()
	}
}

// ackOutgoing removes the first confirmable outgoing entry whose message id
// matches id — "ack removes outgoing" (tested property).
func (s *Server) ackOutgoing(id uint16) bool {
	s.mu.Lock()
	var found *outgoingEntry
	for _, o := range s.outgoing {
		mid := o.packet.id
		if o.headerOverride != nil {
			mid = o.headerOverride.id
		}
		if o.confirmable && mid == id {
			found = o
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return false
	}
	s.removeOutgoing(found, false)
	return true
}

// CancelSend withdraws req: any outgoing entry still carrying it is
// removed (no further retransmits), and any pending-reply entry waiting on
// it is removed too — deferred until a currently-running callback for that
// same entry returns, so a reply callback may safely call CancelSend on its
// own request (the reentrant-free case the guard type exists for).
func (s *Server) CancelSend(pkt *Packet) {
	s.mu.Lock()
	var toRemove []*outgoingEntry
	for _, o := range s.outgoing {
		if o.packet == pkt {
			toRemove = append(toRemove, o)
		}
	}
	s.mu.Unlock()
	for _, o := range toRemove {
		s.removeOutgoing(o, false)
	}

	s.cancelPendingByPacket(pkt)
}

func isTemporary(err error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}
