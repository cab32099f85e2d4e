package coap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketCloneIsIndependent(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.SetCode(Content)
	require.NoError(t, p.SetToken([]byte{1, 2, 3}))
	require.NoError(t, p.AddOption(ContentFormat, []byte{40}))
	p.AppendPayload([]byte("orig"))

	clone := p.Clone()
	defer clone.Release()

	require.NoError(t, clone.SetToken([]byte{9}))
	clone.AppendPayload([]byte("-more"))

	require.Equal(t, []byte{1, 2, 3}, p.Token(), "mutating the clone must not affect the original")
	require.Equal(t, "orig", string(p.Payload()))
	require.Equal(t, "orig-more", string(clone.Payload()))
}

func TestPacketRetainReleaseRecycles(t *testing.T) {
	p := NewPacket()
	p.SetCode(GET)
	p.Retain()

	p.Release() // refcount 2 -> 1, still alive
	require.Equal(t, GET, p.Code())

	p.Release() // refcount 1 -> 0, pooled and reset
	reused := NewPacket()
	defer reused.Release()
	require.Equal(t, Empty, reused.Code(), "a fresh packet from the pool must not carry over state")
}

func TestOptionsMustBeNonDecreasing(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	require.NoError(t, p.AddOption(URIPath, nil))
	require.NoError(t, p.AddOption(ContentFormat, []byte{0}))

	err := p.AddOption(ETag, []byte{1})
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestAddOptionAfterPayloadRejected(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.AppendPayload([]byte("x"))
	err := p.AddOption(URIPath, []byte("a"))
	require.ErrorIs(t, err, ErrInvalidArgument)
}
