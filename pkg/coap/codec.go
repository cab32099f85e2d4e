package coap

import "encoding/binary"

// Encode serializes p as: 4-byte header || token || options (delta-encoded,
// ascending code order) || 0xFF payload marker (only if a payload is
// present) || payload.
func Encode(p *Packet) ([]byte, error) {
	if p == nil {
		return nil, ErrInvalidArgument
	}
	if len(p.token) > 8 {
		return nil, ErrInvalidArgument
	}

	buf := make([]byte, 0, 16+len(p.token)+len(p.payload))
	buf = append(buf,
		(1<<6)|(uint8(p.typ)<<4)|uint8(len(p.token)&0xf),
		uint8(p.code),
		0, 0,
	)
	binary.BigEndian.PutUint16(buf[2:4], p.id)
	buf = append(buf, p.token...)

	prev := 0
	for _, opt := range p.opts {
		deltaNib, deltaExt := extendField(int(opt.ID) - prev)
		lenNib, lenExt := extendField(len(opt.Value))
		buf = append(buf, (deltaNib<<4)|lenNib)
		buf = append(buf, deltaExt...)
		buf = append(buf, lenExt...)
		buf = append(buf, opt.Value...)
		prev = int(opt.ID)
	}

	if len(p.payload) > 0 {
		buf = append(buf, 0xff)
		buf = append(buf, p.payload...)
	}
	return buf, nil
}

// Decode parses data into a fresh Packet (reference count 1). The caller
// owns the returned packet and must Release it.
func Decode(data []byte) (*Packet, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	if data[0]>>6 != 1 {
		return nil, ErrUnsupported
	}

	p := NewPacket()
	p.typ = Type((data[0] >> 4) & 0x3)
	tokenLen := int(data[0] & 0xf)
	if tokenLen > 8 {
		p.Release()
		return nil, ErrInvalidArgument
	}
	p.code = Code(data[1])
	p.id = binary.BigEndian.Uint16(data[2:4])

	rest := data[4:]
	if len(rest) < tokenLen {
		p.Release()
		return nil, ErrTruncated
	}
	if tokenLen > 0 {
		p.token = append([]byte(nil), rest[:tokenLen]...)
	}
	rest = rest[tokenLen:]

	if err := decodeOptionsAndPayload(p, rest); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func decodeExtField(nibble uint8, b []byte) (value int, consumed int, err error) {
	switch nibble {
	case optExtError:
		return 0, 0, ErrInvalidArgument
	case optExtByte:
		if len(b) < 1 {
			return 0, 0, ErrTruncated
		}
		return optExtByteBase + int(b[0]), 1, nil
	case optExtWord:
		if len(b) < 2 {
			return 0, 0, ErrTruncated
		}
		return optExtWordBase + int(binary.BigEndian.Uint16(b[:2])), 2, nil
	default:
		return int(nibble), 0, nil
	}
}

func decodeOptionsAndPayload(p *Packet, b []byte) error {
	prev := 0
	for len(b) > 0 {
		if b[0] == 0xff {
			b = b[1:]
			if len(b) == 0 {
				return ErrInvalidArgument
			}
			p.payloadSet = true
			p.payload = append([]byte(nil), b...)
			return nil
		}

		deltaNib := b[0] >> 4
		lenNib := b[0] & 0x0f
		b = b[1:]

		delta, n, err := decodeExtField(deltaNib, b)
		if err != nil {
			return err
		}
		b = b[n:]

		length, n, err := decodeExtField(lenNib, b)
		if err != nil {
			return err
		}
		b = b[n:]

		code := prev + delta
		if code > 0xffff {
			return ErrTruncated
		}
		if len(b) < length {
			return ErrTruncated
		}
		value := b[:length]
		b = b[length:]

		// Option number 0 is reserved (never allocated); it carries the
		// delta chain forward but is not surfaced as a usable option.
		if code != 0 {
			p.opts = append(p.opts, Option{ID: OptionID(code), Value: append([]byte(nil), value...)})
		}
		prev = code
	}

	// No payload marker: the packet carries no payload.
	return nil
}
