package decom

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"example.com/tlmdecom/internal/bitbuf"
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

// sizer resolves dynamic sizes. It may be nil when only fixed sizes occur.
type sizer func(mdb.IntegerValue) (int64, error)

// DecodeRaw reads one raw value at the cursor of buf. Dynamic binary sizes
// are not available here; the decoder resolves them from the context.
func DecodeRaw(buf *bitbuf.Buffer, enc mdb.DataEncoding) (value.Value, error) {
	return decodeRaw(buf, enc, nil)
}

func decodeRaw(buf *bitbuf.Buffer, enc mdb.DataEncoding, size sizer) (value.Value, error) {
	switch e := enc.(type) {
	case *mdb.IntegerDataEncoding:
		return decodeInteger(buf, e)
	case *mdb.FloatDataEncoding:
		return decodeFloat(buf, e)
	case *mdb.StringDataEncoding:
		return decodeString(buf, e)
	case *mdb.BinaryDataEncoding:
		return decodeBinary(buf, e, size)
	case nil:
		return value.Value{}, fmt.Errorf("%w: no data encoding", ErrUnsupportedConstruct)
	}
	return value.Value{}, fmt.Errorf("%w: data encoding %T", ErrUnsupportedConstruct, enc)
}

func truncated(err error) error {
	if errors.Is(err, bitbuf.ErrTruncated) {
		return fmt.Errorf("%w: %w", ErrTruncatedBuffer, err)
	}
	if errors.Is(err, bitbuf.ErrUnalignedLittle) || errors.Is(err, bitbuf.ErrInvalidSize) {
		return fmt.Errorf("%w: %w", ErrInvalidSize, err)
	}
	return err
}

func mask(n int) uint64 {
	if n >= 64 {
		return math.MaxUint64
	}
	return 1<<uint(n) - 1
}

func decodeInteger(buf *bitbuf.Buffer, e *mdb.IntegerDataEncoding) (value.Value, error) {
	v, err := buf.GetBitsOrder(e.Size, e.ByteOrder)
	if err != nil {
		return value.Value{}, truncated(err)
	}
	n := e.Size
	sign := uint64(1) << uint(n-1)
	switch e.Encoding {
	case mdb.Unsigned:
		return value.Uint(v), nil
	case mdb.TwosComplement:
		shift := uint(64 - n)
		return value.Int(int64(v<<shift) >> shift), nil
	case mdb.OnesComplement:
		if v&sign != 0 {
			return value.Int(-int64(^v & mask(n))), nil
		}
		return value.Int(int64(v)), nil
	case mdb.SignMagnitude:
		mag := int64(v & (sign - 1))
		if v&sign != 0 {
			return value.Int(-mag), nil
		}
		return value.Int(mag), nil
	}
	return value.Value{}, fmt.Errorf("%w: integer encoding %d", ErrUnsupportedConstruct, e.Encoding)
}

func decodeFloat(buf *bitbuf.Buffer, e *mdb.FloatDataEncoding) (value.Value, error) {
	v, err := buf.GetBitsOrder(e.Size, e.ByteOrder)
	if err != nil {
		return value.Value{}, truncated(err)
	}
	switch {
	case e.Encoding == mdb.IEEE754 && e.Size == 32:
		return value.Float(float64(math.Float32frombits(uint32(v)))), nil
	case e.Encoding == mdb.IEEE754 && e.Size == 64:
		return value.Float(math.Float64frombits(v)), nil
	case e.Encoding == mdb.MILSTD1750A && (e.Size == 32 || e.Size == 48):
		return value.Float(from1750A(v, e.Size)), nil
	}
	return value.Value{}, fmt.Errorf("%w: %s float of %d bits", ErrUnsupportedConstruct, e.Encoding, e.Size)
}

// from1750A converts a MIL-STD-1750A value: a two's complement mantissa
// (24 bits, extended by the low 16 bits in the 48 bit form) and an 8 bit two's
// complement exponent.
func from1750A(v uint64, size int) float64 {
	if size == 32 {
		m := int64(v>>8<<40) >> 40
		exp := int8(v & 0xFF)
		return math.Ldexp(float64(m), int(exp)-23)
	}
	hi := v >> 24
	lo := v & 0xFFFF
	exp := int8((v >> 16) & 0xFF)
	m := int64((hi<<16|lo)<<24) >> 24
	return math.Ldexp(float64(m), int(exp)-39)
}

func decodeString(buf *bitbuf.Buffer, e *mdb.StringDataEncoding) (value.Value, error) {
	var raw []byte
	var err error
	switch e.SizeType {
	case mdb.SizeFixed:
		raw, err = buf.GetBytes(e.Size / 8)
		if err != nil {
			return value.Value{}, truncated(err)
		}
		raw = trimPadding(raw)
	case mdb.SizeLeadingSize:
		n, err := buf.GetBits(e.SizeOfSizeTag)
		if err != nil {
			return value.Value{}, truncated(err)
		}
		if e.MaxSizeInBits > 0 && n*8 > uint64(e.MaxSizeInBits) {
			return value.Value{}, fmt.Errorf("%w: string of %d bytes exceeds %d bits", ErrInvalidSize, n, e.MaxSizeInBits)
		}
		if n > uint64(buf.Remaining()/8) {
			return value.Value{}, fmt.Errorf("%w: string of %d bytes, %d bits left", ErrTruncatedBuffer, n, buf.Remaining())
		}
		raw, err = buf.GetBytes(int(n))
		if err != nil {
			return value.Value{}, truncated(err)
		}
	case mdb.SizeTerminationChar:
		pos := buf.Position()
		for {
			c, ok := buf.PeekByteAt(pos)
			if !ok {
				break
			}
			pos += 8
			if c == e.TerminationChar {
				break
			}
			raw = append(raw, c)
			if e.MaxSizeInBits > 0 && len(raw)*8 > e.MaxSizeInBits {
				return value.Value{}, fmt.Errorf("%w: unterminated string exceeds %d bits", ErrInvalidSize, e.MaxSizeInBits)
			}
		}
		buf.SetPosition(pos)
	default:
		return value.Value{}, fmt.Errorf("%w: string size type %d", ErrUnsupportedConstruct, e.SizeType)
	}
	return value.String(decodeCharset(raw, e.Charset)), nil
}

// trimPadding drops the NUL bytes that pad a fixed size string.
func trimPadding(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

func decodeCharset(b []byte, charset string) string {
	if strings.EqualFold(charset, "ISO-8859-1") {
		r := make([]rune, len(b))
		for i, c := range b {
			r[i] = rune(c)
		}
		return string(r)
	}
	return string(b)
}

func decodeBinary(buf *bitbuf.Buffer, e *mdb.BinaryDataEncoding, size sizer) (value.Value, error) {
	var bits int64
	switch s := e.Size.(type) {
	case *mdb.FixedIntegerValue:
		bits = s.Value
	case *mdb.DynamicValue:
		if size == nil {
			return value.Value{}, fmt.Errorf("%w: binary size from %s", ErrUnresolvedReference, s.Ref)
		}
		var err error
		if bits, err = size(s); err != nil {
			return value.Value{}, err
		}
	default:
		return value.Value{}, fmt.Errorf("%w: binary size %T", ErrUnsupportedConstruct, e.Size)
	}
	if bits < 0 || bits%8 != 0 {
		return value.Value{}, fmt.Errorf("%w: binary size %d bits", ErrInvalidSize, bits)
	}
	if bits > int64(buf.Remaining()) {
		return value.Value{}, fmt.Errorf("%w: binary of %d bits, %d bits left", ErrTruncatedBuffer, bits, buf.Remaining())
	}
	b, err := buf.GetBytes(int(bits / 8))
	if err != nil {
		return value.Value{}, truncated(err)
	}
	return value.Binary(b), nil
}
