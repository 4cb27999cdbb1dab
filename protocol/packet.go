package protocol

import (
	"fmt"
)

// Packet is one typed protocol message. Encode and Decode handle the fields
// only; the leading id byte is written by Marshal and consumed by the registry.
type Packet interface {
	ID() byte
	Encode(w *Writer)
	Decode(r *Reader) error
}

// TrailingAllowed is implemented by packets whose decoder may leave bytes
// unread, such as packets that newer clients extend with optional fields.
type TrailingAllowed interface {
	AllowTrailing()
}

// checkTrailing rejects a body the decoder did not read to the end.
func checkTrailing(pk Packet, consumed, size int) error {
	if consumed >= size {
		return nil
	}
	if _, ok := pk.(TrailingAllowed); ok {
		return nil
	}
	return fmt.Errorf("%w: packet 0x%02x left %d of %d bytes unread", ErrMalformedField, pk.ID(), size-consumed, size)
}

// Marshal encodes pk with its id byte into a freshly allocated slice.
func Marshal(pk Packet) []byte {
	buf := GetBuffer()
	defer PutBuffer(buf)

	w := NewWriter(buf)
	w.Byte(pk.ID())
	pk.Encode(w)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// Unmarshal decodes data into pk, which must match the id byte in data.
// The number of bytes consumed by the field decoder is returned so callers
// can detect decoders that failed to advance.
func Unmarshal(data []byte, pk Packet) (consumed int, err error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty packet", ErrMalformedField)
	}
	if data[0] != pk.ID() {
		return 0, fmt.Errorf("%w: packet id 0x%02x, expected 0x%02x", ErrMalformedField, data[0], pk.ID())
	}
	r := NewReader(data[1:])
	if err := pk.Decode(r); err != nil {
		return r.Offset(), fmt.Errorf("decode 0x%02x: %w", pk.ID(), err)
	}
	return r.Offset(), nil
}
