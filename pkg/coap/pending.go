package coap

import (
	"net"
	"time"
)

// pendingEntry tracks a reply still awaited for an outstanding request.
// Matching is by message id for ordinary requests, or by token for
// observing requests — an observed resource's notifications arrive with
// fresh message ids but a constant token.
type pendingEntry struct {
	id        uint16
	token     []byte
	observing bool
	addr      net.Addr

	// request is a weak (non-owning) pointer used only to match a later
	// CancelSend(pkt) call back to this entry; the outgoing queue holds
	// the owning reference.
	request *Packet

	callback func(reply *Packet) // called with nil on timeout; not called on cancel

	timer Timer
	guard guard
}

// registerPending adds a pending-reply entry for a request just sent on
// pkt/addr. observing keeps the entry alive across multiple matches (it is
// not removed the first time a notification matches) until explicitly
// cancelled.
func (s *Server) registerPending(pkt *Packet, addr net.Addr, observing bool, cb func(*Packet)) *pendingEntry {
	e := &pendingEntry{
		id:        pkt.id,
		token:     append([]byte(nil), pkt.token...),
		observing: observing,
		addr:      addr,
		request:   pkt,
		callback:  cb,
	}

	s.mu.Lock()
	s.pending = append(s.pending, e)
	s.mu.Unlock()

	timeout := chooseAckTimeout() * time.Duration(1<<uint(MaxRetransmit))
	e.timer = s.mainloop.After(timeout, func() { s.timeoutPending(e) })
	return e
}

func (s *Server) timeoutPending(e *pendingEntry) {
	s.mu.Lock()
	found := false
	for i, p := range s.pending {
		if p == e {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return
	}
	e.guard.enter(func() { e.callback(nil) })
}

// matchPending finds and, for non-observing entries, removes the pending
// entry that reply/addr satisfies: same address, plus same message id for
// plain requests or same token for observing ones.
func (s *Server) matchPending(reply *Packet, addr net.Addr) *pendingEntry {
	s.mu.Lock()
	var found *pendingEntry
	idx := -1
	for i, p := range s.pending {
		if !sameHost(p.addr, addr) {
			continue
		}
		if p.observing {
			if tokensEqual(p.token, reply.token) {
				found = p
				idx = i
				break
			}
			continue
		}
		if p.id == reply.id {
			found = p
			idx = i
			break
		}
	}
	if found != nil && !found.observing {
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	}
	s.mu.Unlock()

	// A match ends the reply timeout for both kinds: a plain entry is done,
	// and an observing one stays registered until explicitly cancelled.
	if found != nil && found.timer != nil {
		found.timer.Stop()
	}
	return found
}

// cancelPendingByPacket requests removal of any pending entry whose
// originating request is pkt (used by CancelSend). An entry whose callback
// is currently running (entry.guard.inUse, e.g. the callback itself calling
// CancelSend on its own request) has its removal deferred until that
// callback returns, rather than being unlinked out from under it.
func (s *Server) cancelPendingByPacket(pkt *Packet) {
	s.mu.Lock()
	var toCancel []*pendingEntry
	for _, e := range s.pending {
		if e.request == pkt {
			toCancel = append(toCancel, e)
		}
	}
	s.mu.Unlock()

	for _, e := range toCancel {
		e.guard.free(func() { s.removePendingEntry(e) })
	}
}

// removePendingEntry unlinks e from the pending table and stops its timer.
func (s *Server) removePendingEntry(e *pendingEntry) {
	s.mu.Lock()
	for i, p := range s.pending {
		if p == e {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
}

func tokensEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameHost(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
