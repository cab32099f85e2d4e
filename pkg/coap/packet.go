package coap

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Packet is the in-memory representation of a CoAP message: header fields,
// token, an ordered option list and an optional payload. It is
// reference-counted (Retain/Release) so that a single encoded payload can be
// shared between an outgoing queue entry and the pending-reply entry waiting
// on its response, exactly as the spec's "packet object" describes. When the
// last reference is released the packet is reset and returned to a pool
// instead of left for the garbage collector, which keeps allocation pressure
// low on the hot receive path.
type Packet struct {
	typ   Type
	code  Code
	id    uint16
	token []byte

	opts    optionList
	payload []byte

	payloadSet bool
	refCount   int32
}

var packetPool = sync.Pool{New: func() any { return &Packet{} }}

// NewPacket returns an empty packet with a reference count of one.
func NewPacket() *Packet {
	p := packetPool.Get().(*Packet)
	p.reset()
	p.refCount = 1
	return p
}

func (p *Packet) reset() {
	p.typ = 0
	p.code = Empty
	p.id = 0
	p.token = nil
	p.opts = p.opts[:0]
	p.payload = nil
	p.payloadSet = false
	p.refCount = 0
}

// Retain increments the reference count and returns p, so it can be used
// inline: outgoing.packet = req.Retain().
func (p *Packet) Retain() *Packet {
	atomic.AddInt32(&p.refCount, 1)
	return p
}

// Release decrements the reference count; at zero the packet is recycled.
// Releasing an already-free packet is a no-op guard against double frees.
func (p *Packet) Release() {
	if p == nil {
		return
	}
	if atomic.AddInt32(&p.refCount, -1) == 0 {
		packetPool.Put(p)
	}
}

// Clone makes an independent copy of the header, token and options (but not
// the reference count): used by the observer registry to re-target a shared
// notification payload at a specific observer's token and type.
func (p *Packet) Clone() *Packet {
	c := NewPacket()
	c.typ = p.typ
	c.code = p.code
	c.id = p.id
	c.token = append([]byte(nil), p.token...)
	c.opts = append(optionList(nil), p.opts...)
	c.payload = append([]byte(nil), p.payload...)
	c.payloadSet = p.payloadSet
	return c
}

func (p *Packet) Type() Type { return p.typ }
func (p *Packet) SetType(t Type) *Packet {
	p.typ = t
	return p
}

func (p *Packet) Code() Code { return p.code }
func (p *Packet) SetCode(c Code) *Packet {
	p.code = c
	return p
}

func (p *Packet) ID() uint16 { return p.id }
func (p *Packet) SetID(id uint16) *Packet {
	p.id = id
	return p
}

// Token returns the token bytes (possibly nil/empty). The returned slice
// aliases the packet's storage and must not be mutated by the caller.
func (p *Packet) Token() []byte { return p.token }

// SetToken installs a token of 0..8 bytes.
func (p *Packet) SetToken(tok []byte) error {
	if len(tok) > 8 {
		return ErrInvalidArgument
	}
	p.token = append([]byte(nil), tok...)
	return nil
}

// AddOption appends an option. Options must be added in non-decreasing code
// order (ErrOutOfOrder otherwise) and never after the payload marker has
// been emitted via GetPayload/AppendPayload (ErrInvalidArgument).
func (p *Packet) AddOption(id OptionID, value []byte) error {
	if p.payloadSet {
		return ErrInvalidArgument
	}
	return p.opts.insert(id, value)
}

// SetOption clears any previous values for id and installs value.
func (p *Packet) SetOption(id OptionID, value []byte) error {
	p.RemoveOption(id)
	return p.AddOption(id, value)
}

// RemoveOption drops every option carrying id.
func (p *Packet) RemoveOption(id OptionID) {
	kept := p.opts[:0]
	for _, opt := range p.opts {
		if opt.ID != id {
			kept = append(kept, opt)
		}
	}
	p.opts = kept
}

// FindOptions returns every value registered under id, in wire order.
func (p *Packet) FindOptions(id OptionID) [][]byte { return p.opts.find(id) }

// FirstOption returns the first value registered under id, or
// ErrNoSuchOption if none is present.
func (p *Packet) FirstOption(id OptionID) ([]byte, error) {
	if v, ok := p.opts.first(id); ok {
		return v, nil
	}
	return nil, ErrNoSuchOption
}

// GetPayload marks the payload boundary (rejecting further AddOption calls)
// and returns the current payload bytes; before any payload has been
// written this is a zero-length slice.
func (p *Packet) GetPayload() []byte {
	p.payloadSet = true
	return p.payload
}

// AppendPayload appends b to the payload, marking the payload boundary.
func (p *Packet) AppendPayload(b []byte) {
	p.payloadSet = true
	p.payload = append(p.payload, b...)
}

// Payload returns the raw payload without marking the boundary.
func (p *Packet) Payload() []byte { return p.payload }

// Path returns the URI-Path option values, in order.
func (p *Packet) Path() []string {
	raw := p.FindOptions(URIPath)
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = string(v)
	}
	return out
}

// PathString joins Path() with "/".
func (p *Packet) PathString() string { return strings.Join(p.Path(), "/") }

// SetPath replaces the URI-Path options with segs.
func (p *Packet) SetPath(segs []string) error {
	p.RemoveOption(URIPath)
	for _, s := range segs {
		if err := p.AddOption(URIPath, []byte(s)); err != nil {
			return err
		}
	}
	return nil
}

// SplitPath turns a "/"-separated path string into URI-Path segments,
// ignoring a leading or trailing slash.
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// pathEqual reports whether a and b hold the same segments in the same order.
func pathEqual(a, b []string) bool {
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
