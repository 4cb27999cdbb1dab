package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LookupReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()

	a, ok := r.Lookup(TextPacketID)
	require.True(t, ok)
	b, ok := r.Lookup(TextPacketID)
	require.True(t, ok)

	a.(*TextPacket).Message = "mutated"
	assert.Empty(t, b.(*TextPacket).Message)
	assert.NotSame(t, a, b)
}

func TestRegistry_UnknownID(t *testing.T) {
	r := NewRegistry()
	pk, ok := r.Lookup(0x00)
	assert.False(t, ok)
	assert.Nil(t, pk)

	pk, ok, err := r.Decode([]byte{0x00, 0x01})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, pk)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	r.Register(SetHealthPacketID, func() Packet { return &SetHealthPacket{Health: 99} })

	pk, ok := r.Lookup(SetHealthPacketID)
	require.True(t, ok)
	assert.Equal(t, int32(99), pk.(*SetHealthPacket).Health)
}

func TestRegistry_EveryIDMatchesItsPacket(t *testing.T) {
	r := NewRegistry()
	for id := 0; id < 256; id++ {
		pk, ok := r.Lookup(byte(id))
		if !ok {
			continue
		}
		assert.Equal(t, byte(id), pk.ID(), "factory for 0x%02x", id)
	}
}

func TestRegistry_DecodeMismatchedID(t *testing.T) {
	_, err := Unmarshal([]byte{TextPacketID, 0}, &SetHealthPacket{})
	assert.ErrorIs(t, err, ErrMalformedField)
}

func TestRegistry_DecodeRejectsTrailingBytes(t *testing.T) {
	r := NewRegistry()
	data := append(Marshal(&SetHealthPacket{Health: 3}), 0x00)
	_, ok, err := r.Decode(data)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrMalformedField)

	pk, ok, err := r.Decode(Marshal(&SetHealthPacket{Health: 3}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, &SetHealthPacket{Health: 3}, pk)
}
