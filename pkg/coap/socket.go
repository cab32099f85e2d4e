package coap

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Socket is the external datagram collaborator: send/receive with peer
// address and multicast group join. The engine never opens sockets itself
// beyond NewUDPSocket, so alternate transports (DTLS, a
// simulator) only need to satisfy this interface.
type Socket interface {
	ReadFrom(buf []byte) (n int, addr net.Addr, err error)
	WriteTo(buf []byte, addr net.Addr) (n int, err error)
	JoinMulticast(group net.IP) error
	LocalAddr() net.Addr
	Close() error
}

// AllCoAPNodesIPv4 is the IPv4 all-CoAP-nodes multicast address.
var AllCoAPNodesIPv4 = net.ParseIP("224.0.1.187")

// AllCoAPNodesIPv6LinkLocal is the IPv6 link-local all-CoAP-nodes address.
var AllCoAPNodesIPv6LinkLocal = net.ParseIP("ff02::fd")

// AllCoAPNodesIPv6SiteLocal is the IPv6 site-local all-CoAP-nodes address.
var AllCoAPNodesIPv6SiteLocal = net.ParseIP("ff05::fd")

// udpSocket is the default Socket, a *net.UDPConn plus ipv4/ipv6 packet
// connections used only for multicast group membership management —
// grounded on the teacher's coap_socket.go, which already layers an
// ipv4.PacketConn over the UDP conn to control multicast TTL/loopback.
type udpSocket struct {
	conn *net.UDPConn
	p4   *ipv4.PacketConn
	p6   *ipv6.PacketConn
}

// NewUDPSocket binds a UDP socket to addr (host:port, "" host binds all
// interfaces). It joins no multicast group; callers join them through
// JoinMulticast or JoinAllCoAPNodesGroups.
func NewUDPSocket(addr string) (Socket, error) {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", uaddr)
	if err != nil {
		return nil, err
	}
	return &udpSocket{
		conn: conn,
		p4:   ipv4.NewPacketConn(conn),
		p6:   ipv6.NewPacketConn(conn),
	}, nil
}

func (s *udpSocket) ReadFrom(buf []byte) (int, net.Addr, error) {
	return s.conn.ReadFromUDP(buf)
}

func (s *udpSocket) WriteTo(buf []byte, addr net.Addr) (int, error) {
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, ErrInvalidArgument
	}
	return s.conn.WriteToUDP(buf, ua)
}

func (s *udpSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

func (s *udpSocket) Close() error { return s.conn.Close() }

// JoinMulticast joins group on every multicast-capable, running interface,
// using the ipv4 or ipv6 packet connection matching the group's address
// family.
func (s *udpSocket) JoinMulticast(group net.IP) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return err
	}
	var joinErr error
	joined := false
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if group.To4() != nil {
			if err := s.p4.JoinGroup(&ifi, &net.UDPAddr{IP: group}); err != nil {
				joinErr = err
				continue
			}
		} else {
			if err := s.p6.JoinGroup(&ifi, &net.UDPAddr{IP: group}); err != nil {
				joinErr = err
				continue
			}
		}
		joined = true
	}
	if !joined && joinErr != nil {
		return joinErr
	}
	return nil
}

// JoinAllCoAPNodesGroups joins every all-CoAP-nodes multicast group
// reachable from s, per spec section 6's "Multicast" constants.
func JoinAllCoAPNodesGroups(s Socket) error {
	var firstErr error
	for _, g := range []net.IP{AllCoAPNodesIPv4, AllCoAPNodesIPv6LinkLocal, AllCoAPNodesIPv6SiteLocal} {
		if err := s.JoinMulticast(g); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
