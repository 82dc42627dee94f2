package decom

import (
	"errors"
	"math"
	"testing"

	"example.com/tlmdecom/internal/bitbuf"
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

func TestDecodeIntegerEncodings(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		enc  *mdb.IntegerDataEncoding
		want value.Value
	}{
		{"twos complement", []byte{0xFF, 0xFE}, &mdb.IntegerDataEncoding{Size: 16, Encoding: mdb.TwosComplement}, value.Int(-2)},
		{"unsigned", []byte{0xFF, 0xFE}, &mdb.IntegerDataEncoding{Size: 16}, value.Uint(0xFFFE)},
		{"ones complement", []byte{0xFF, 0xFE}, &mdb.IntegerDataEncoding{Size: 16, Encoding: mdb.OnesComplement}, value.Int(-1)},
		{"sign magnitude", []byte{0x80, 0x05}, &mdb.IntegerDataEncoding{Size: 16, Encoding: mdb.SignMagnitude}, value.Int(-5)},
		{"little endian", []byte{0x34, 0x12}, &mdb.IntegerDataEncoding{Size: 16, ByteOrder: bitbuf.LeastSignificantByteFirst}, value.Uint(0x1234)},
		{"sub byte signed", []byte{0xE0}, &mdb.IntegerDataEncoding{Size: 3, Encoding: mdb.TwosComplement}, value.Int(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeRaw(bitbuf.New(tc.data), tc.enc)
			if err != nil {
				t.Fatalf("DecodeRaw: %v", err)
			}
			if !value.Equal(got, tc.want) || got.Kind() != tc.want.Kind() {
				t.Fatalf("got %v (%s), want %v (%s)", got, got.Kind(), tc.want, tc.want.Kind())
			}
		})
	}
}

func TestDecodeLeadingSizeString(t *testing.T) {
	buf := bitbuf.New([]byte{0x03, 'A', 'B', 'C', 0xAA})
	enc := &mdb.StringDataEncoding{SizeType: mdb.SizeLeadingSize, SizeOfSizeTag: 8}
	got, err := DecodeRaw(buf, enc)
	if err != nil {
		t.Fatalf("DecodeRaw: %v", err)
	}
	if got.StringValue() != "ABC" {
		t.Fatalf("got %q", got.StringValue())
	}
	if buf.Position() != 32 {
		t.Fatalf("consumed %d bits, want 32", buf.Position())
	}
}

func TestDecodeStringVariants(t *testing.T) {
	cases := []struct {
		name    string
		data    []byte
		enc     *mdb.StringDataEncoding
		want    string
		wantPos int
	}{
		{"fixed padded", []byte{'h', 'i', 0, 0}, &mdb.StringDataEncoding{Size: 32}, "hi", 32},
		{"terminated", []byte{'o', 'k', 0, 'x'}, &mdb.StringDataEncoding{SizeType: mdb.SizeTerminationChar}, "ok", 24},
		{"unterminated", []byte{'o', 'k'}, &mdb.StringDataEncoding{SizeType: mdb.SizeTerminationChar}, "ok", 16},
		{"latin1", []byte{0xE9}, &mdb.StringDataEncoding{Size: 8, Charset: "ISO-8859-1"}, "é", 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := bitbuf.New(tc.data)
			got, err := DecodeRaw(buf, tc.enc)
			if err != nil {
				t.Fatalf("DecodeRaw: %v", err)
			}
			if got.StringValue() != tc.want || buf.Position() != tc.wantPos {
				t.Fatalf("got %q at %d, want %q at %d", got.StringValue(), buf.Position(), tc.want, tc.wantPos)
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	enc := &mdb.IntegerDataEncoding{Size: 16}
	if _, err := DecodeRaw(bitbuf.New([]byte{1, 2}), enc); err != nil {
		t.Fatalf("exact fit: %v", err)
	}
	buf := bitbuf.New([]byte{1, 2})
	buf.SetPosition(1)
	if _, err := DecodeRaw(buf, enc); !errors.Is(err, ErrTruncatedBuffer) {
		t.Fatalf("one bit short: got %v", err)
	}
	lead := &mdb.StringDataEncoding{SizeType: mdb.SizeLeadingSize, SizeOfSizeTag: 8}
	if _, err := DecodeRaw(bitbuf.New([]byte{5, 'a'}), lead); !errors.Is(err, ErrTruncatedBuffer) {
		t.Fatalf("short string: got %v", err)
	}
}

func Test1750AConstants(t *testing.T) {
	cases := []struct {
		f    float64
		bits uint64
	}{
		{1.0, 0x40000001},
		{-1.0, 0x80000000},
		{0.5, 0x40000000},
		{0, 0},
	}
	for _, tc := range cases {
		if got := to1750A(tc.f, 32); got != tc.bits {
			t.Errorf("to1750A(%g) = %#x, want %#x", tc.f, got, tc.bits)
		}
		if got := from1750A(tc.bits, 32); got != tc.f {
			t.Errorf("from1750A(%#x) = %g, want %g", tc.bits, got, tc.f)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	little := bitbuf.LeastSignificantByteFirst
	cases := []struct {
		name string
		enc  mdb.DataEncoding
		raw  value.Value
	}{
		{"uint12", &mdb.IntegerDataEncoding{Size: 12}, value.Uint(0xABC)},
		{"int16 le", &mdb.IntegerDataEncoding{Size: 16, ByteOrder: little, Encoding: mdb.TwosComplement}, value.Int(-300)},
		{"ones", &mdb.IntegerDataEncoding{Size: 8, Encoding: mdb.OnesComplement}, value.Int(-7)},
		{"signmag", &mdb.IntegerDataEncoding{Size: 10, Encoding: mdb.SignMagnitude}, value.Int(-511)},
		{"int64", &mdb.IntegerDataEncoding{Size: 64, Encoding: mdb.TwosComplement}, value.Int(math.MinInt64)},
		{"f32", &mdb.FloatDataEncoding{Size: 32}, value.Float(1.5)},
		{"f64 le", &mdb.FloatDataEncoding{Size: 64, ByteOrder: little}, value.Float(-2.25e10)},
		{"1750A 32", &mdb.FloatDataEncoding{Size: 32, Encoding: mdb.MILSTD1750A}, value.Float(-3.75)},
		{"1750A 48", &mdb.FloatDataEncoding{Size: 48, Encoding: mdb.MILSTD1750A}, value.Float(105.625)},
		{"fixed string", &mdb.StringDataEncoding{Size: 48}, value.String("abc")},
		{"leading string", &mdb.StringDataEncoding{SizeType: mdb.SizeLeadingSize, SizeOfSizeTag: 16}, value.String("telemetry")},
		{"terminated", &mdb.StringDataEncoding{SizeType: mdb.SizeTerminationChar, TerminationChar: ';'}, value.String("a,b")},
		{"binary", &mdb.BinaryDataEncoding{Size: mdb.Fixed(24)}, value.Binary([]byte{1, 2, 3})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := bitbuf.NewWriter(16)
			if err := w.PutBits(0x5, 3); err != nil {
				t.Fatal(err)
			}
			if err := EncodeRaw(w, tc.enc, tc.raw); err != nil {
				t.Fatalf("EncodeRaw: %v", err)
			}
			end := w.Position()
			buf := bitbuf.New(w.Bytes())
			buf.SetPosition(3)
			got, err := DecodeRaw(buf, tc.enc)
			if err != nil {
				t.Fatalf("DecodeRaw: %v", err)
			}
			if !value.Equal(got, tc.raw) {
				t.Fatalf("got %v, want %v", got, tc.raw)
			}
			if buf.Position() != end {
				t.Fatalf("decoder at bit %d, encoder at %d", buf.Position(), end)
			}
		})
	}
}

func TestEncodeRejectsOverflow(t *testing.T) {
	w := bitbuf.NewWriter(4)
	if err := EncodeRaw(w, &mdb.IntegerDataEncoding{Size: 4}, value.Uint(16)); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("got %v", err)
	}
	if err := EncodeRaw(w, &mdb.IntegerDataEncoding{Size: 4, Encoding: mdb.TwosComplement}, value.Int(-9)); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("got %v", err)
	}
}
