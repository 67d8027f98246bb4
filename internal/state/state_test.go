package state

import (
	"encoding/binary"
	"testing"
)

func TestRoundTripScalarsAndStrings(t *testing.T) {
	w := NewWriter()
	Scalar32(w, int32(-7))
	Scalar64(w, int64(123456789))
	Scalar32(w, uint32(42))
	Scalar64(w, uint64(9))
	Scalar32(w, float32(3.5))
	w.Bool(true)
	w.Bool(false)
	w.String("hello")
	w.Marker("CHECKPOINT")

	r := NewReader(w.Bytes())
	if got := ScalarRead32[int32](r); got != -7 {
		t.Fatalf("int32: got %d", got)
	}
	if got := ScalarRead64[int64](r); got != 123456789 {
		t.Fatalf("int64: got %d", got)
	}
	if got := ScalarRead32[uint32](r); got != 42 {
		t.Fatalf("uint32: got %d", got)
	}
	if got := ScalarRead64[uint64](r); got != 9 {
		t.Fatalf("uint64: got %d", got)
	}
	if got := ScalarRead32[float32](r); got != 3.5 {
		t.Fatalf("float32: got %v", got)
	}
	if got := r.Bool(); got != true {
		t.Fatalf("bool(true): got %v", got)
	}
	if got := r.Bool(); got != false {
		t.Fatalf("bool(false): got %v", got)
	}
	if got := r.String(); got != "hello" {
		t.Fatalf("string: got %q", got)
	}
	if !r.Marker("CHECKPOINT") {
		t.Fatal("marker: expected match")
	}
}

func TestMarkerMismatch(t *testing.T) {
	w := NewWriter()
	w.Marker("ONE")
	r := NewReader(w.Bytes())
	if r.Marker("TWO") {
		t.Fatal("expected marker mismatch")
	}
}

func TestEachElementRoundTrip(t *testing.T) {
	w := NewWriter()
	EachElement(w, []int64{10, 20, 30}, func(w *Writer, v int64) { Scalar64(w, v) })

	r := NewReader(w.Bytes())
	got := ReadEachElement(r, func(r *Reader) int64 { return ScalarRead64[int64](r) })
	want := []int64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("length: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestEachElementEmpty(t *testing.T) {
	w := NewWriter()
	EachElement(w, []int64(nil), func(w *Writer, v int64) { Scalar64(w, v) })

	r := NewReader(w.Bytes())
	got := ReadEachElement(r, func(r *Reader) int64 { return ScalarRead64[int64](r) })
	if len(got) != 0 {
		t.Fatalf("expected no elements, got %d", len(got))
	}
}

func TestFinishAndVerify(t *testing.T) {
	w := NewWriter()
	w.String("payload")
	Scalar64(w, int64(99))
	blob := w.Finish()

	body, ok := Verify(blob)
	if !ok {
		t.Fatal("expected checksum to verify")
	}
	r := NewReader(body)
	if got := r.String(); got != "payload" {
		t.Fatalf("string: got %q", got)
	}
	if got := ScalarRead64[int64](r); got != 99 {
		t.Fatalf("int64: got %d", got)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	w := NewWriter()
	w.String("payload")
	blob := w.Finish()
	blob[0] ^= 0xff

	if _, ok := Verify(blob); ok {
		t.Fatal("expected checksum mismatch to be detected")
	}
}

func TestVerifyRejectsShortBuffer(t *testing.T) {
	if _, ok := Verify([]byte{1, 2, 3}); ok {
		t.Fatal("expected a too-short buffer to fail verification")
	}
}

func TestReadPastEndPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic reading past the end of the buffer")
		}
	}()
	r := NewReader([]byte{1, 2, 3})
	ScalarRead64[int64](r)
}

func TestChecksumMatchesFinishTrailer(t *testing.T) {
	w := NewWriter()
	w.Bool(true)
	sum := w.Checksum()
	blob := w.Finish()
	_, ok := Verify(blob)
	if !ok {
		t.Fatal("expected checksum to verify")
	}
	if len(blob) != len(w.Bytes())+8 {
		t.Fatalf("unexpected blob length: %d", len(blob))
	}
	if got := binary.LittleEndian.Uint64(blob[len(blob)-8:]); got != sum {
		t.Fatalf("trailer: got %x want %x", got, sum)
	}
}
