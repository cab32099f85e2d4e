package coap

import (
	"net"
	"sync"
	"sync/atomic"
)

const maxDatagramSize = 1152 // RFC 7252 section 4.6 recommended upper bound

// Server wires a Socket and a Mainloop together with the outgoing queue,
// pending-reply table and resource/observer registry into the single
// entry point applications use: one Server per bound UDP socket, serving
// requests and driving requests of its own.
//
// A single mutex serializes every mutation of the queue, the pending
// table and the resource table — the idiomatic-Go rendering of the
// original single-threaded mainloop's implicit serialization. The read
// loop runs on its own goroutine; everything it triggers (retransmit
// timers, dispatch, handler callbacks) takes the same lock.
type Server struct {
	socket   Socket
	mainloop Mainloop
	logger   Logger

	mu        sync.Mutex
	outgoing  []*outgoingEntry
	pending   []*pendingEntry
	resources []*Resource

	nextID  uint32
	fallback Handler

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithMainloop overrides the default time.AfterFunc-backed Mainloop.
func WithMainloop(m Mainloop) ServerOption { return func(s *Server) { s.mainloop = m } }

// WithLogger installs a Logger; without one the server logs nowhere.
func WithLogger(l Logger) ServerOption { return func(s *Server) { s.logger = l } }

// WithFallbackHandler installs a handler invoked for requests that match
// no registered resource and aren't ".well-known/core", instead of the
// default 4.04 NotFound.
func WithFallbackHandler(h Handler) ServerOption { return func(s *Server) { s.fallback = h } }

// NewServer wraps socket into a Server ready to Start.
func NewServer(socket Socket, opts ...ServerOption) *Server {
	s := &Server{
		socket:   socket,
		mainloop: DefaultMainloop,
		logger:   noopLogger{},
		stopCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) log() Logger { return s.logger }

func (s *Server) nextMessageID() uint16 {
	return uint16(atomic.AddUint32(&s.nextID, 1))
}

// Start launches the read loop on its own goroutine.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.readLoop()
}

// Stop signals the read loop to exit and closes the socket, unblocking
// any in-flight ReadFrom; it waits for the read loop goroutine to exit.
func (s *Server) Stop() {
	close(s.stopCh)
	s.socket.Close()
	s.wg.Wait()
}

func (s *Server) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := s.socket.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log().Errorf("coap: read failed: %v", err)
				return
			}
		}
		s.handleDatagram(append([]byte(nil), buf[:n]...), addr)
	}
}

// LocalAddr returns the bound socket's local address.
func (s *Server) LocalAddr() net.Addr { return s.socket.LocalAddr() }
