// Package state provides the save/restore primitives consumed by
// everything that persists itself: a byte buffer that can be written to
// or read from sequentially, plus the small set of operations
// (scalar, string, marker, each-element) that callers need and nothing
// more.
package state

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash"
)

// Scalar is the set of fixed-width types Writer/Reader know how to encode.
type Scalar interface {
	~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~bool
}

// Writer serializes values into a growable byte buffer in the order they
// are written. There is no random access and no type tags: the caller's
// read order must match the write order exactly.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Scalar32 appends a 32-bit scalar value in little-endian order.
func Scalar32[T Scalar](w *Writer, v T) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, scalarTo32(v))
}

// Scalar64 appends a 64-bit scalar value in little-endian order.
func Scalar64[T Scalar](w *Writer, v T) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, scalarTo64(v))
}

// Bool appends a single byte: 1 for true, 0 for false.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// String appends a length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Marker appends a fixed literal token, used as a savestate sanity check
// on load (DoMarker in the original serializer).
func (w *Writer) Marker(token string) {
	w.String(token)
}

// EachElement writes the element count followed by each element, encoded
// by fn.
func EachElement[T any](w *Writer, elems []T, fn func(*Writer, T)) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(elems)))
	for _, e := range elems {
		fn(w, e)
	}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Checksum returns the xxhash digest of the buffer written so far. Callers
// append this after the final marker so a load can detect truncation or
// bit-rot independently of the marker tokens, which only catch
// misalignment.
func (w *Writer) Checksum() uint64 {
	return xxhash.Sum64(w.buf)
}

// Finish returns the buffer with an 8-byte little-endian xxhash checksum
// of its own contents appended. Pair with Verify on load.
func (w *Writer) Finish() []byte {
	return binary.LittleEndian.AppendUint64(append([]byte{}, w.buf...), w.Checksum())
}

// Verify splits a buffer produced by Writer.Finish into its body and
// reports whether the trailing checksum matches. Callers should refuse to
// parse the body when ok is false.
func Verify(buf []byte) (body []byte, ok bool) {
	if len(buf) < 8 {
		return nil, false
	}
	body = buf[:len(buf)-8]
	want := binary.LittleEndian.Uint64(buf[len(buf)-8:])
	return body, xxhash.Sum64(body) == want
}

// Reader deserializes a buffer produced by Writer. Reading past the end of
// the buffer panics; callers on the load path are expected to have
// validated the checksum first.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reading.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) take(n int) []byte {
	if r.pos+n > len(r.buf) {
		panic(fmt.Sprintf("state: read past end of buffer (pos=%d, want=%d, len=%d)", r.pos, n, len(r.buf)))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ScalarRead32 reads a 32-bit scalar previously written with Scalar32.
func ScalarRead32[T Scalar](r *Reader) T {
	return scalarFrom32[T](binary.LittleEndian.Uint32(r.take(4)))
}

// ScalarRead64 reads a 64-bit scalar previously written with Scalar64.
func ScalarRead64[T Scalar](r *Reader) T {
	return scalarFrom64[T](binary.LittleEndian.Uint64(r.take(8)))
}

// Bool reads a single byte written by Writer.Bool.
func (r *Reader) Bool() bool {
	return r.take(1)[0] != 0
}

// String reads a length-prefixed UTF-8 string written by Writer.String.
func (r *Reader) String() string {
	n := binary.LittleEndian.Uint32(r.take(4))
	return string(r.take(int(n)))
}

// Marker reads a literal token and reports whether it matched what was
// expected. Callers should treat a mismatch as a corrupt/foreign save.
func (r *Reader) Marker(want string) bool {
	return r.String() == want
}

// ReadEachElement reads the element count written by EachElement and invokes
// fn once per element, in order.
func ReadEachElement[T any](r *Reader, fn func(*Reader) T) []T {
	n := binary.LittleEndian.Uint32(r.take(4))
	out := make([]T, n)
	for i := range out {
		out[i] = fn(r)
	}
	return out
}

// Remaining returns the unread tail of the buffer, used to read a trailing
// checksum appended by Writer.Finish.
func (r *Reader) Remaining() []byte {
	return r.buf[r.pos:]
}

func scalarTo32[T Scalar](v T) uint32 {
	switch x := any(v).(type) {
	case int32:
		return uint32(x)
	case uint32:
		return x
	case float32:
		return math.Float32bits(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		panic(fmt.Sprintf("state: unsupported 32-bit scalar type %T", v))
	}
}

func scalarFrom32[T Scalar](bits uint32) T {
	var zero T
	switch any(zero).(type) {
	case int32:
		return T(any(int32(bits)).(T))
	case uint32:
		return T(any(bits).(T))
	case float32:
		return T(any(math.Float32frombits(bits)).(T))
	case bool:
		return T(any(bits != 0).(T))
	default:
		panic(fmt.Sprintf("state: unsupported 32-bit scalar type %T", zero))
	}
}

func scalarTo64[T Scalar](v T) uint64 {
	switch x := any(v).(type) {
	case int64:
		return uint64(x)
	case uint64:
		return x
	case float64:
		return math.Float64bits(x)
	default:
		panic(fmt.Sprintf("state: unsupported 64-bit scalar type %T", v))
	}
}

func scalarFrom64[T Scalar](bits uint64) T {
	var zero T
	switch any(zero).(type) {
	case int64:
		return T(any(int64(bits)).(T))
	case uint64:
		return T(any(bits).(T))
	case float64:
		return T(any(math.Float64frombits(bits)).(T))
	default:
		panic(fmt.Sprintf("state: unsupported 64-bit scalar type %T", zero))
	}
}
