package decom

import (
	"fmt"
	"math"
	"strings"

	"example.com/tlmdecom/internal/bitbuf"
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

// EncodeRaw writes raw at the cursor of w using enc. It is the inverse of
// DecodeRaw and is used to build sample packets.
func EncodeRaw(w *bitbuf.Writer, enc mdb.DataEncoding, raw value.Value) error {
	switch e := enc.(type) {
	case *mdb.IntegerDataEncoding:
		bits, err := integerBits(e, raw)
		if err != nil {
			return err
		}
		return w.PutBitsOrder(bits, e.Size, e.ByteOrder)
	case *mdb.FloatDataEncoding:
		f, ok := raw.AsFloat()
		if !ok {
			return fmt.Errorf("encode float: %s value", raw.Kind())
		}
		var bits uint64
		switch {
		case e.Encoding == mdb.IEEE754 && e.Size == 32:
			bits = uint64(math.Float32bits(float32(f)))
		case e.Encoding == mdb.IEEE754 && e.Size == 64:
			bits = math.Float64bits(f)
		case e.Encoding == mdb.MILSTD1750A && (e.Size == 32 || e.Size == 48):
			bits = to1750A(f, e.Size)
		default:
			return fmt.Errorf("%w: %s float of %d bits", ErrUnsupportedConstruct, e.Encoding, e.Size)
		}
		return w.PutBitsOrder(bits, e.Size, e.ByteOrder)
	case *mdb.StringDataEncoding:
		return encodeString(w, e, raw)
	case *mdb.BinaryDataEncoding:
		if raw.Kind() != value.KindBinary {
			return fmt.Errorf("encode binary: %s value", raw.Kind())
		}
		b := raw.Bytes()
		if f, ok := e.Size.(*mdb.FixedIntegerValue); ok && int64(len(b))*8 != f.Value {
			return fmt.Errorf("%w: %d bytes for a %d bit binary", ErrInvalidSize, len(b), f.Value)
		}
		return w.PutBytes(b)
	}
	return fmt.Errorf("%w: data encoding %T", ErrUnsupportedConstruct, enc)
}

func integerBits(e *mdb.IntegerDataEncoding, raw value.Value) (uint64, error) {
	n := e.Size
	m := mask(n)
	if e.Encoding == mdb.Unsigned {
		if raw.Kind() == value.KindInt && raw.Int() < 0 {
			return 0, fmt.Errorf("encode unsigned: negative value %d", raw.Int())
		}
		u := raw.Uint()
		if u&^m != 0 {
			return 0, fmt.Errorf("%w: %d does not fit %d bits", ErrInvalidSize, u, n)
		}
		return u, nil
	}
	i, ok := raw.AsInt()
	if !ok {
		return 0, fmt.Errorf("encode integer: %s value", raw.Kind())
	}
	limit := int64(1) << uint(n-1)
	if n < 64 && (i >= limit || i < -limit) {
		return 0, fmt.Errorf("%w: %d does not fit %d signed bits", ErrInvalidSize, i, n)
	}
	switch e.Encoding {
	case mdb.TwosComplement:
		return uint64(i) & m, nil
	case mdb.OnesComplement:
		if i < 0 {
			return ^uint64(-i) & m, nil
		}
		return uint64(i), nil
	case mdb.SignMagnitude:
		if i < 0 {
			return uint64(1)<<uint(n-1) | uint64(-i), nil
		}
		return uint64(i), nil
	}
	return 0, fmt.Errorf("%w: integer encoding %d", ErrUnsupportedConstruct, e.Encoding)
}

// to1750A is the inverse of from1750A for normalized values.
func to1750A(f float64, size int) uint64 {
	if f == 0 {
		return 0
	}
	frac, exp := math.Frexp(f) // f = frac * 2^exp, 0.5 <= |frac| < 1
	if frac == -0.5 {
		// -0.5 normalizes to -1.0 with a smaller exponent
		frac, exp = -1, exp-1
	}
	if size == 32 {
		m := int64(math.Round(frac * (1 << 23)))
		if m == 1<<23 {
			m, exp = 1<<22, exp+1
		}
		return uint64(m)&0xFFFFFF<<8 | uint64(uint8(int8(exp)))
	}
	m := int64(math.Round(frac * (1 << 39)))
	if m == 1<<39 {
		m, exp = 1<<38, exp+1
	}
	u := uint64(m) & (1<<40 - 1)
	return (u>>16)<<24 | uint64(uint8(int8(exp)))<<16 | u&0xFFFF
}

func encodeCharset(s, charset string) ([]byte, error) {
	if !strings.EqualFold(charset, "ISO-8859-1") {
		return []byte(s), nil
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, fmt.Errorf("rune %q outside ISO-8859-1", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func encodeString(w *bitbuf.Writer, e *mdb.StringDataEncoding, raw value.Value) error {
	if raw.Kind() != value.KindString {
		return fmt.Errorf("encode string: %s value", raw.Kind())
	}
	b, err := encodeCharset(raw.StringValue(), e.Charset)
	if err != nil {
		return err
	}
	switch e.SizeType {
	case mdb.SizeFixed:
		n := e.Size / 8
		if len(b) > n {
			return fmt.Errorf("%w: %d bytes for a %d byte string", ErrInvalidSize, len(b), n)
		}
		padded := make([]byte, n)
		copy(padded, b)
		return w.PutBytes(padded)
	case mdb.SizeLeadingSize:
		if uint64(len(b))&^mask(e.SizeOfSizeTag) != 0 {
			return fmt.Errorf("%w: %d bytes do not fit a %d bit size tag", ErrInvalidSize, len(b), e.SizeOfSizeTag)
		}
		if err := w.PutBits(uint64(len(b)), e.SizeOfSizeTag); err != nil {
			return err
		}
		return w.PutBytes(b)
	case mdb.SizeTerminationChar:
		if err := w.PutBytes(b); err != nil {
			return err
		}
		return w.PutBits(uint64(e.TerminationChar), 8)
	}
	return fmt.Errorf("%w: string size type %d", ErrUnsupportedConstruct, e.SizeType)
}
