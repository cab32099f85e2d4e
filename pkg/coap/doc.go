// Package coap implements a CoAP (RFC 7252) message codec and a datagram
// transport engine: confirmable retransmission, request/response correlation,
// resource dispatch, and the observe extension.
//
// The engine is single-threaded per Server in spirit: all mutable state lives
// behind one mutex and callbacks run to completion before the next event is
// handled, mirroring the cooperative mainloop a constrained-device CoAP stack
// runs on.
package coap
