package coap

import (
	"net"
	"testing"
)

type fakeSocket struct {
	written [][]byte
	addrs   []net.Addr
}

func (f *fakeSocket) ReadFrom(buf []byte) (int, net.Addr, error) { select {} }
func (f *fakeSocket) WriteTo(buf []byte, addr net.Addr) (int, error) {
	f.written = append(f.written, append([]byte(nil), buf...))
	f.addrs = append(f.addrs, addr)
	return len(buf), nil
}
func (f *fakeSocket) JoinMulticast(net.IP) error { return nil }
func (f *fakeSocket) LocalAddr() net.Addr        { return &net.UDPAddr{} }
func (f *fakeSocket) Close() error               { return nil }

func TestResourceAgeAdvancesAndWrapsPast16Bit(t *testing.T) {
	r := &Resource{age: 2}
	if got := r.nextAge(); got != 3 {
		t.Errorf("nextAge = %d, want 3", got)
	}
	r.age = 0xffff
	if got := r.nextAge(); got != 2 {
		t.Errorf("nextAge after wrap = %d, want 2 (0 and 1 are reserved)", got)
	}
}

func TestNotifyDeliversToCallbackObserverAndHonorsOptOut(t *testing.T) {
	sock := &fakeSocket{}
	srv := NewServer(sock)
	res := srv.AddResource("/clock", true, true, nil)

	var delivered []byte
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}
	res.registerObserver(addr, []byte{1}, false, func(pkt *Packet) bool {
		delivered = append([]byte(nil), pkt.Payload()...)
		return true
	})

	optOutAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5678}
	optedOut := false
	res.registerObserver(optOutAddr, []byte{2}, false, func(pkt *Packet) bool {
		optedOut = true
		return false
	})

	srv.Notify(res, Content, []byte("tick"), TextPlain)

	if string(delivered) != "tick" {
		t.Errorf("delivered = %q, want tick", delivered)
	}
	if !optedOut {
		t.Fatal("opt-out observer callback never ran")
	}
	if _, stillThere := res.observers[observerKey(optOutAddr, []byte{2})]; stillThere {
		t.Error("observer that returned false from notify should be deregistered")
	}
	if _, stillThere := res.observers[observerKey(addr, []byte{1})]; !stillThere {
		t.Error("observer that returned true from notify should remain registered")
	}
}

func TestNotifyFansOutOverOutgoingQueueWithDistinctTokens(t *testing.T) {
	sock := &fakeSocket{}
	srv := NewServer(sock)
	res := srv.AddResource("/clock", true, true, nil)

	a1 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1111}
	a2 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222}
	res.registerObserver(a1, []byte{0xAA}, false, nil)
	res.registerObserver(a2, []byte{0xBB}, false, nil)

	srv.Notify(res, Content, []byte("x"), TextPlain)

	if len(sock.written) != 2 {
		t.Fatalf("wrote %d datagrams, want 2", len(sock.written))
	}
	seen := make(map[byte]bool)
	for _, wire := range sock.written {
		pkt, err := Decode(wire)
		if err != nil {
			t.Fatalf("decode notification: %v", err)
		}
		tok := pkt.Token()
		pkt.Release()
		if len(tok) != 1 || (tok[0] != 0xAA && tok[0] != 0xBB) {
			t.Errorf("unexpected token %x on fanned-out notification", tok)
			continue
		}
		seen[tok[0]] = true
	}
	if len(seen) != 2 {
		t.Errorf("distinct tokens = %d, want 2 (one per observer)", len(seen))
	}
}
