package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformedField)
}

func TestWriter_BigEndianLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Short(0x0102)
	w.Int(0x03040506)
	w.Long(0x0708090a0b0c0d0e)
	w.String("hi")

	want := []byte{
		0x01, 0x02,
		0x03, 0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e,
		0x00, 0x02, 'h', 'i',
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestReader_TruncatedPrimitives(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(r *Reader)
	}{
		{"byte", nil, func(r *Reader) { r.Byte() }},
		{"short", []byte{1}, func(r *Reader) { r.Short() }},
		{"int", []byte{1, 2, 3}, func(r *Reader) { r.Int() }},
		{"long", []byte{1, 2, 3, 4, 5, 6, 7}, func(r *Reader) { r.Long() }},
		{"float", []byte{1, 2}, func(r *Reader) { r.Float() }},
		{"string body", []byte{0, 5, 'a', 'b'}, func(r *Reader) { _ = r.String() }},
		{"byte array body", []byte{0, 0, 0, 9, 1}, func(r *Reader) { r.ByteArray() }},
		{"uuid", make([]byte, 15), func(r *Reader) { r.UUID() }},
		{"links count", []byte{0, 3, 1}, func(r *Reader) { r.Links() }},
		{"metadata unterminated", []byte{MetaInt<<5 | 1, 0, 0, 0, 1}, func(r *Reader) { r.Metadata() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			require.NotPanics(t, func() { tt.read(r) })
			require.Error(t, r.Err())
			assert.True(t, isMalformed(r.Err()), "expected ErrMalformedField, got %v", r.Err())
		})
	}
}

func TestReader_StickyError(t *testing.T) {
	r := NewReader([]byte{0x01})
	_ = r.Int()
	first := r.Err()
	require.Error(t, first)

	assert.Equal(t, byte(0), r.Byte(), "reads after a failure return zero values")
	assert.Equal(t, first, r.Err(), "first error is preserved")
}

func TestWriter_StringTruncatedAtMaxLength(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).String(strings.Repeat("x", MaxStringLength+10))

	r := NewReader(buf.Bytes())
	s := r.String()
	require.NoError(t, r.Err())
	assert.Len(t, s, MaxStringLength)
}

func TestMetadata_RoundTripAllTags(t *testing.T) {
	m := Metadata{
		0:  {Type: MetaByte, Value: byte(7)},
		1:  {Type: MetaShort, Value: int16(-300)},
		2:  {Type: MetaInt, Value: int32(1 << 20)},
		3:  {Type: MetaFloat, Value: float32(1.5)},
		4:  {Type: MetaString, Value: "Steve"},
		5:  {Type: MetaSlot, Value: Slot{ID: 1, Count: 64, Damage: 3}},
		6:  {Type: MetaPos, Value: BlockPos{X: 1, Y: -2, Z: 3}},
		31: {Type: MetaLong, Value: int64(-1)},
	}

	var buf bytes.Buffer
	NewWriter(&buf).Metadata(m)
	assert.Equal(t, MetadataEnd, buf.Bytes()[buf.Len()-1])

	r := NewReader(buf.Bytes())
	got := r.Metadata()
	require.NoError(t, r.Err())
	assert.Equal(t, m, got)
	assert.Zero(t, r.Remaining())
}

func TestMetadata_MismatchedValueSkipped(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).Metadata(Metadata{
		0: {Type: MetaInt, Value: "not an int"},
		1: {Type: MetaByte, Value: byte(1)},
	})

	r := NewReader(buf.Bytes())
	got := r.Metadata()
	require.NoError(t, r.Err())
	assert.Equal(t, Metadata{1: {Type: MetaByte, Value: byte(1)}}, got)
}

func TestMetadata_FloatAtLastKeyDropped(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).Metadata(Metadata{
		MaxMetadataKey: {Type: MetaFloat, Value: float32(2)},
		0:              {Type: MetaByte, Value: byte(1)},
	})

	r := NewReader(buf.Bytes())
	got := r.Metadata()
	require.NoError(t, r.Err())
	assert.Equal(t, Metadata{0: {Type: MetaByte, Value: byte(1)}}, got)
	assert.Zero(t, r.Remaining())
}

func TestLinks_HugeCountRejectedWithoutAllocating(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff})
	links := r.Links()
	assert.Nil(t, links)
	assert.True(t, isMalformed(r.Err()))
}
