package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Wire primitives are big-endian throughout.
// Strings: [2 bytes length][UTF-8 bytes]
// Byte arrays: [4 bytes length][bytes]

// MaxStringLength is the longest string a 16-bit length prefix can carry.
const MaxStringLength = math.MaxUint16

// Writer appends fixed-width primitives to a buffer.
type Writer struct {
	buf     *bytes.Buffer
	scratch [8]byte
}

// NewWriter returns a Writer appending to buf.
func NewWriter(buf *bytes.Buffer) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Byte(v byte) {
	w.buf.WriteByte(v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *Writer) Short(v uint16) {
	binary.BigEndian.PutUint16(w.scratch[:2], v)
	w.buf.Write(w.scratch[:2])
}

func (w *Writer) Int16(v int16) {
	w.Short(uint16(v))
}

func (w *Writer) Uint32(v uint32) {
	binary.BigEndian.PutUint32(w.scratch[:4], v)
	w.buf.Write(w.scratch[:4])
}

func (w *Writer) Int(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Long(v int64) {
	binary.BigEndian.PutUint64(w.scratch[:8], uint64(v))
	w.buf.Write(w.scratch[:8])
}

func (w *Writer) Float(v float32) {
	w.Uint32(math.Float32bits(v))
}

// String writes a length-prefixed string, truncating at MaxStringLength bytes.
func (w *Writer) String(s string) {
	if len(s) > MaxStringLength {
		s = s[:MaxStringLength]
	}
	w.Short(uint16(len(s)))
	w.buf.WriteString(s)
}

// ByteArray writes a 4-byte length followed by data.
func (w *Writer) ByteArray(data []byte) {
	w.Uint32(uint32(len(data)))
	w.buf.Write(data)
}

func (w *Writer) UUID(id uuid.UUID) {
	w.buf.Write(id[:])
}

// Raw appends data without a length prefix.
func (w *Writer) Raw(data []byte) {
	w.buf.Write(data)
}

func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reader consumes primitives from a byte slice. The first failure is sticky:
// later reads return zero values and Err reports the original problem.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: %s needs %d bytes at offset %d, have %d",
			ErrMalformedField, field, n, r.off, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Offset returns how many bytes have been consumed.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

func (r *Reader) Byte() byte {
	b := r.take(1, "byte")
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.Byte() != 0
}

func (r *Reader) Short() uint16 {
	b := r.take(2, "short")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Int16() int16 {
	return int16(r.Short())
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4, "int")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Int() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Long() int64 {
	b := r.take(8, "long")
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Reader) Float() float32 {
	return math.Float32frombits(r.Uint32())
}

func (r *Reader) String() string {
	n := int(r.Short())
	b := r.take(n, "string")
	if b == nil {
		return ""
	}
	return string(b)
}

// ByteArray returns a copy of a 4-byte length-prefixed byte sequence.
func (r *Reader) ByteArray() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(r.Remaining()) {
		r.Fail(fmt.Errorf("%w: byte array of %d bytes at offset %d, have %d",
			ErrMalformedField, n, r.off, r.Remaining()))
		return nil
	}
	b := r.take(int(n), "byte array")
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *Reader) UUID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], r.take(16, "uuid"))
	return id
}

// Raw returns the next n bytes without a length prefix. The slice aliases
// the input.
func (r *Reader) Raw(n int) []byte {
	return r.take(n, "raw bytes")
}
