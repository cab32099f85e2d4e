package coap

import (
	"net"
	"testing"
)

func pendingContains(s *Server, pkt *Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		if p.request == pkt {
			return true
		}
	}
	return false
}

// TestReentrantCancelSendIsDeferredUntilCallbackReturns exercises the
// "reentrant free" scenario the guard type exists for: a pending entry's
// own callback calling CancelSend on its own request must not unlink the
// entry out from under the callback that is still running — removal is
// deferred until the callback returns.
func TestReentrantCancelSendIsDeferredUntilCallbackReturns(t *testing.T) {
	sock := &fakeSocket{}
	srv := NewServer(sock)

	req := NewPacket()
	req.SetType(Confirmable)
	req.SetCode(GET)
	req.SetID(1)
	_ = req.SetToken([]byte{0x55})
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9}

	var sawPendingInsideCallback bool
	srv.registerPending(req, addr, true, func(reply *Packet) {
		sawPendingInsideCallback = pendingContains(srv, req)
		srv.CancelSend(req)
		if !pendingContains(srv, req) {
			t.Error("entry removed from the pending table before its own callback returned")
		}
		if reply != nil {
			reply.Release()
		}
	})

	notification := NewPacket()
	notification.SetType(NonConfirmable)
	notification.SetCode(Content)
	notification.SetID(2)
	_ = notification.SetToken([]byte{0x55})

	srv.handleResponse(notification, addr)
	notification.Release()

	if !sawPendingInsideCallback {
		t.Fatal("setup error: pending entry not found while its callback was running")
	}
	if pendingContains(srv, req) {
		t.Error("pending entry should be gone once the guarded callback has returned")
	}

	req.Release()
}
