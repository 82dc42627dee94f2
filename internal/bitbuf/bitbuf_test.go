package bitbuf

import (
	"bytes"
	"errors"
	"testing"
)

func TestGetBitsUnaligned(t *testing.T) {
	buf := New([]byte{0b1010_1100, 0b0101_0011, 0xFF})
	tests := []struct {
		n    int
		want uint64
	}{
		{n: 3, want: 0b101},
		{n: 7, want: 0b0110_001},
		{n: 6, want: 0b010011},
		{n: 8, want: 0xFF},
	}
	for _, tc := range tests {
		got, err := buf.GetBits(tc.n)
		if err != nil {
			t.Fatalf("GetBits(%d): %v", tc.n, err)
		}
		if got != tc.want {
			t.Fatalf("GetBits(%d) = %b, want %b", tc.n, got, tc.want)
		}
	}
	if buf.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", buf.Remaining())
	}
}

func TestGetBitsExactFitAndTruncation(t *testing.T) {
	buf := New([]byte{0x12, 0x34})
	buf.SetPosition(4)
	if _, err := buf.GetBits(12); err != nil {
		t.Fatalf("exact fit should succeed: %v", err)
	}
	buf.SetPosition(5)
	if _, err := buf.GetBits(12); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if buf.Position() != 5 {
		t.Fatalf("failed read moved cursor to %d", buf.Position())
	}
	buf.SetPosition(-1)
	if _, err := buf.GetBits(1); !errors.Is(err, ErrTruncated) {
		t.Fatalf("negative position should fail, got %v", err)
	}
}

func TestGetBits64(t *testing.T) {
	data := []byte{0xFF, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	buf := New(data)
	buf.SetPosition(4)
	got, err := buf.GetBits(64)
	if err != nil {
		t.Fatalf("GetBits(64): %v", err)
	}
	if want := uint64(0xF010203040506070); got != want {
		t.Fatalf("GetBits(64) = %#x, want %#x", got, want)
	}
}

func TestLittleEndian(t *testing.T) {
	buf := New([]byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12})
	v, err := buf.GetBitsOrder(16, LeastSignificantByteFirst)
	if err != nil || v != 0x1234 {
		t.Fatalf("LE16 = %#x, %v", v, err)
	}
	v, err = buf.GetBitsOrder(32, LeastSignificantByteFirst)
	if err != nil || v != 0x12345678 {
		t.Fatalf("LE32 = %#x, %v", v, err)
	}
	buf.SetPosition(0)
	if _, err := buf.GetBitsOrder(12, LeastSignificantByteFirst); !errors.Is(err, ErrUnalignedLittle) {
		t.Fatalf("expected ErrUnalignedLittle, got %v", err)
	}
}

func TestGetBytesUnaligned(t *testing.T) {
	buf := New([]byte{0x0A, 0xBC, 0xD0})
	buf.SetPosition(4)
	got, err := buf.GetBytes(2)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0xAB, 0xCD}) {
		t.Fatalf("GetBytes = %x", got)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter(4)
	if err := w.PutBits(0b101, 3); err != nil {
		t.Fatalf("PutBits: %v", err)
	}
	if err := w.PutBitsOrder(0xBEEF, 16, LeastSignificantByteFirst); err != nil {
		t.Fatalf("PutBitsOrder: %v", err)
	}
	if err := w.PutBits(0x1F, 5); err != nil {
		t.Fatalf("PutBits: %v", err)
	}
	buf := New(w.Bytes())
	if v, _ := buf.GetBits(3); v != 0b101 {
		t.Fatalf("first field = %b", v)
	}
	if v, _ := buf.GetBitsOrder(16, LeastSignificantByteFirst); v != 0xBEEF {
		t.Fatalf("second field = %#x", v)
	}
	if v, _ := buf.GetBits(5); v != 0x1F {
		t.Fatalf("third field = %#x", v)
	}
}

func TestWriterOverwrite(t *testing.T) {
	w := NewWriter(2)
	_ = w.PutBits(0xFFFF, 16)
	w.SetPosition(4)
	_ = w.PutBits(0, 8)
	if got := w.Bytes(); !bytes.Equal(got, []byte{0xF0, 0x0F}) {
		t.Fatalf("Bytes = %x", got)
	}
}
