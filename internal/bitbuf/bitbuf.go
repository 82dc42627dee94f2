// Package bitbuf provides bit-addressable access to packet bytes.
//
// Bits are numbered from the most significant bit of the first byte, the way
// telemetry documents number them. Multi-byte little endian reads are only
// defined for sizes that are a whole number of bytes.
package bitbuf

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated       = errors.New("bitbuf: not enough bits left in buffer")
	ErrInvalidSize     = errors.New("bitbuf: invalid bit count")
	ErrUnalignedLittle = errors.New("bitbuf: little endian read of a partial byte")
)

// ByteOrder selects how multi-byte quantities are reassembled.
type ByteOrder uint8

const (
	MostSignificantByteFirst ByteOrder = iota
	LeastSignificantByteFirst
)

func (o ByteOrder) String() string {
	if o == LeastSignificantByteFirst {
		return "leastSignificantByteFirst"
	}
	return "mostSignificantByteFirst"
}

// Buffer is a read-only view over packet bytes with a bit cursor. A Buffer
// is not safe for concurrent use; decoders create one per packet.
type Buffer struct {
	data  []byte
	pos   int
	nbits int
}

func New(data []byte) *Buffer {
	return &Buffer{data: data, nbits: len(data) * 8}
}

// Position returns the cursor in bits from the start of the buffer.
func (b *Buffer) Position() int { return b.pos }

// SetPosition moves the cursor. Positions outside the buffer are accepted;
// the next read fails with ErrTruncated.
func (b *Buffer) SetPosition(pos int) { b.pos = pos }

// Len returns the buffer size in bits.
func (b *Buffer) Len() int { return b.nbits }

// Remaining returns the bits between the cursor and the end of the buffer.
func (b *Buffer) Remaining() int {
	if b.pos >= b.nbits {
		return 0
	}
	return b.nbits - b.pos
}

// Bytes returns the underlying bytes.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) check(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	if b.pos < 0 || b.pos+n > b.nbits {
		return fmt.Errorf("%w: need %d bits at bit %d, buffer has %d", ErrTruncated, n, b.pos, b.nbits)
	}
	return nil
}

// Peek reads n (at most 64) bits at the cursor without moving it.
func (b *Buffer) Peek(n int) (uint64, error) {
	if n > 64 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	if err := b.check(n); err != nil {
		return 0, err
	}
	return b.peek(b.pos, n), nil
}

// GetBits reads n (at most 64) bits, most significant bit first, and
// advances the cursor.
func (b *Buffer) GetBits(n int) (uint64, error) {
	v, err := b.Peek(n)
	if err != nil {
		return 0, err
	}
	b.pos += n
	return v, nil
}

// GetBitsOrder reads n bits and reassembles them in the given byte order.
func (b *Buffer) GetBitsOrder(n int, order ByteOrder) (uint64, error) {
	if order == LeastSignificantByteFirst && n > 8 {
		if n%8 != 0 {
			return 0, fmt.Errorf("%w: %d bits", ErrUnalignedLittle, n)
		}
		v, err := b.GetBits(n)
		if err != nil {
			return 0, err
		}
		return SwapBytes(v, n/8), nil
	}
	return b.GetBits(n)
}

// GetBytes reads n whole bytes starting at the cursor, which need not be
// byte aligned. The result is a fresh slice.
func (b *Buffer) GetBytes(n int) ([]byte, error) {
	if err := b.check(n * 8); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if b.pos%8 == 0 {
		start := b.pos / 8
		copy(out, b.data[start:start+n])
	} else {
		for i := range out {
			out[i] = byte(b.peek(b.pos+i*8, 8))
		}
	}
	b.pos += n * 8
	return out, nil
}

// PeekByteAt returns the byte-wide field starting at bit position pos.
func (b *Buffer) PeekByteAt(pos int) (byte, bool) {
	if pos < 0 || pos+8 > b.nbits {
		return 0, false
	}
	return byte(b.peek(pos, 8)), true
}

func (b *Buffer) peek(pos, n int) uint64 {
	var v uint64
	for n > 0 {
		idx := pos >> 3
		off := pos & 7
		avail := 8 - off
		take := avail
		if take > n {
			take = n
		}
		chunk := (uint64(b.data[idx]) >> uint(avail-take)) & (1<<uint(take) - 1)
		v = v<<uint(take) | chunk
		pos += take
		n -= take
	}
	return v
}

// SwapBytes reverses the order of the low nbytes bytes of v.
func SwapBytes(v uint64, nbytes int) uint64 {
	var out uint64
	for i := 0; i < nbytes; i++ {
		out = out<<8 | (v & 0xFF)
		v >>= 8
	}
	return out
}
