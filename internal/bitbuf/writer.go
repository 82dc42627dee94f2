package bitbuf

import "fmt"

// Writer assembles bits into a growing byte slice. Bits written over an
// earlier region replace what was there.
type Writer struct {
	data []byte
	pos  int
	high int
}

func NewWriter(capacity int) *Writer {
	return &Writer{data: make([]byte, 0, capacity)}
}

func (w *Writer) Position() int { return w.pos }

func (w *Writer) SetPosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	w.pos = pos
}

// Bytes returns the written bytes, padded with zero bits to a byte boundary.
func (w *Writer) Bytes() []byte {
	return w.data[:(w.high+7)/8]
}

func (w *Writer) grow(bits int) {
	need := (bits + 7) / 8
	for len(w.data) < need {
		w.data = append(w.data, 0)
	}
}

// PutBits writes the low n bits of v, most significant first.
func (w *Writer) PutBits(v uint64, n int) error {
	if n < 0 || n > 64 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	w.grow(w.pos + n)
	for i := n - 1; i >= 0; i-- {
		bit := byte(v>>uint(i)) & 1
		idx := w.pos >> 3
		shift := 7 - uint(w.pos&7)
		w.data[idx] = w.data[idx]&^(1<<shift) | bit<<shift
		w.pos++
	}
	if w.pos > w.high {
		w.high = w.pos
	}
	return nil
}

// PutBitsOrder writes n bits of v in the given byte order.
func (w *Writer) PutBitsOrder(v uint64, n int, order ByteOrder) error {
	if order == LeastSignificantByteFirst && n > 8 {
		if n%8 != 0 {
			return fmt.Errorf("%w: %d bits", ErrUnalignedLittle, n)
		}
		v = SwapBytes(v, n/8)
	}
	return w.PutBits(v, n)
}

// PutBytes writes p at the cursor.
func (w *Writer) PutBytes(p []byte) error {
	for _, c := range p {
		if err := w.PutBits(uint64(c), 8); err != nil {
			return err
		}
	}
	return nil
}
