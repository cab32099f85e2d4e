package coap

// Option is a single (code, value) pair as carried on the wire. Options are
// kept in an ordered list; the wire form encodes only the delta from the
// previous option's code, which is why insertion order matters.
type Option struct {
	ID    OptionID
	Value []byte
}

const (
	optExtByte  = 13
	optExtWord  = 14
	optExtError = 15

	optExtByteBase = 13
	optExtWordBase = 269
)

// optionList maintains options in non-decreasing code order (spec invariant:
// "options are stored in non-decreasing option-code order").
type optionList []Option

// insert appends opt, preserving order. A code strictly less than the
// largest already present is rejected with ErrOutOfOrder, matching the
// add-option contract: callers must emit options in ascending code order.
func (o *optionList) insert(id OptionID, value []byte) error {
	if n := len(*o); n > 0 && id < (*o)[n-1].ID {
		return ErrOutOfOrder
	}
	*o = append(*o, Option{ID: id, Value: value})
	return nil
}

// find returns every value registered under id, in encounter order.
func (o optionList) find(id OptionID) [][]byte {
	var out [][]byte
	for _, opt := range o {
		if opt.ID == id {
			out = append(out, opt.Value)
		}
	}
	return out
}

// first returns the first value registered under id.
func (o optionList) first(id OptionID) ([]byte, bool) {
	for _, opt := range o {
		if opt.ID == id {
			return opt.Value, true
		}
	}
	return nil, false
}

// totalDelta is the accumulated option-code delta of the whole list, which
// by construction equals the final option code (spec invariant).
func (o optionList) totalDelta() int {
	if len(o) == 0 {
		return 0
	}
	return int(o[len(o)-1].ID)
}

// extendField splits a raw delta or length value into its wire nibble and
// extension bytes per the 3-tier scheme (0..12 nibble, 13..268 = 13+u8,
// 269..65535 = 269+u16-big-endian).
func extendField(v int) (nibble uint8, ext []byte) {
	switch {
	case v < optExtByte:
		return uint8(v), nil
	case v < optExtWordBase:
		return optExtByte, []byte{uint8(v - optExtByteBase)}
	default:
		ext = make([]byte, 2)
		ext[0] = uint8((v - optExtWordBase) >> 8)
		ext[1] = uint8(v - optExtWordBase)
		return optExtWord, ext
	}
}
