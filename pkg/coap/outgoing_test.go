package coap

import (
	"net"
	"testing"
	"time"
)

// fakeTimer/fakeMainloop let tests fire retransmit timers deterministically
// instead of waiting on real wall-clock time.
type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() bool {
	wasRunning := !t.stopped
	t.stopped = true
	return wasRunning
}

type scheduledCall struct {
	wait time.Duration
	fn   func()
	tm   *fakeTimer
}

type fakeMainloop struct{ calls []*scheduledCall }

func (m *fakeMainloop) After(d time.Duration, f func()) Timer {
	c := &scheduledCall{wait: d, fn: f, tm: &fakeTimer{}}
	m.calls = append(m.calls, c)
	return c.tm
}

// fireNext runs the most recently scheduled, still-live call.
func (m *fakeMainloop) fireNext() {
	for i := len(m.calls) - 1; i >= 0; i-- {
		c := m.calls[i]
		if !c.tm.stopped {
			c.tm.stopped = true
			c.fn()
			return
		}
	}
}

func TestRetransmitScheduleDoublesAndStopsAfterFourRetries(t *testing.T) {
	sock := &fakeSocket{}
	loop := &fakeMainloop{}
	srv := NewServer(sock, WithMainloop(loop))

	req := NewPacket()
	req.SetType(Confirmable)
	req.SetCode(GET)
	req.SetID(1)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9}

	dropped := false
	srv.enqueueOutgoing(req, addr, nil, func() { dropped = true })
	req.Release()

	if len(sock.written) != 1 {
		t.Fatalf("initial send count = %d, want 1", len(sock.written))
	}

	// Fire the 4 retransmits; each should double the previous wait and
	// resend, the 4th dropping the entry instead of scheduling a 5th.
	var waits []time.Duration
	for i := 0; i < 4; i++ {
		if len(loop.calls) == 0 {
			t.Fatalf("no timer scheduled before retransmit %d", i+1)
		}
		waits = append(waits, loop.calls[len(loop.calls)-1].wait)
		loop.fireNext()
	}

	if len(sock.written) != 5 {
		t.Fatalf("total sends = %d, want 5 (1 initial + 4 retransmits)", len(sock.written))
	}
	if !dropped {
		t.Fatal("onDropped callback never ran after the retransmission ceiling")
	}
	for i := 1; i < len(waits); i++ {
		if waits[i] != waits[i-1]*2 {
			t.Errorf("wait[%d] = %v, want double wait[%d] = %v", i, waits[i], i-1, waits[i-1]*2)
		}
	}

	// No 5th retransmit should ever be scheduled.
	live := 0
	for _, c := range loop.calls {
		if !c.tm.stopped {
			live++
		}
	}
	if live != 0 {
		t.Errorf("%d timers still live after ceiling reached, want 0", live)
	}
}

func TestAckRemovesOutgoing(t *testing.T) {
	sock := &fakeSocket{}
	loop := &fakeMainloop{}
	srv := NewServer(sock, WithMainloop(loop))

	req := NewPacket()
	req.SetType(Confirmable)
	req.SetCode(GET)
	req.SetID(42)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9}
	srv.enqueueOutgoing(req, addr, nil, nil)
	req.Release()

	if !srv.ackOutgoing(42) {
		t.Fatal("ackOutgoing reported no match for a freshly sent confirmable entry")
	}
	if len(srv.outgoing) != 0 {
		t.Errorf("outgoing queue len = %d, want 0 after ack", len(srv.outgoing))
	}

	live := 0
	for _, c := range loop.calls {
		if !c.tm.stopped {
			live++
		}
	}
	if live != 0 {
		t.Error("ack should have stopped the retransmit timer")
	}
}
