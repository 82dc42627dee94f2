// Package stream splits recordings into packets and decodes them.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"example.com/tlmdecom/internal/common"
)

const ccsdsHeaderSize = 6

var (
	ErrPartialPacket  = errors.New("stream ends inside a packet")
	ErrUnknownFraming = errors.New("unknown framing")
)

type Framing string

const (
	// FramingCCSDS splits on CCSDS space packet primary headers.
	FramingCCSDS Framing = "ccsds"
	// FramingFixed splits into records of a fixed size.
	FramingFixed Framing = "fixed"
	// FramingNone decodes packets back to back, each starting where the
	// previous decode stopped.
	FramingNone Framing = "none"
)

func ParseFraming(s string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(s))); f {
	case FramingCCSDS, FramingFixed, FramingNone:
		return f, nil
	case "":
		return FramingCCSDS, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownFraming, s)
}

// Packet is one unit handed to the decoder.
type Packet struct {
	Index  int
	Offset int64
	Data   []byte
}

// Source yields packets in stream order and io.EOF at the end.
type Source interface {
	Next() (Packet, error)
}

// CCSDSReader reads CCSDS space packets: a 6 byte primary header whose last
// two bytes hold the data field length minus one.
type CCSDSReader struct {
	r       io.Reader
	skip    int
	offset  int64
	index   int
	metrics *common.Metrics
}

// NewCCSDSReader reads packets from r. skip bytes preceding every packet,
// such as a recorder timestamp, are dropped.
func NewCCSDSReader(r io.Reader, skip int) *CCSDSReader {
	return &CCSDSReader{r: r, skip: skip}
}

func (c *CCSDSReader) SetMetrics(m *common.Metrics) { c.metrics = m }

func (c *CCSDSReader) Next() (Packet, error) {
	if c.skip > 0 {
		n, err := io.CopyN(io.Discard, c.r, int64(c.skip))
		c.offset += n
		if err == io.EOF && n == 0 {
			return Packet{}, io.EOF
		}
		if err != nil {
			return Packet{}, fmt.Errorf("%w: prefix at offset %d", ErrPartialPacket, c.offset)
		}
	}
	hdr := make([]byte, ccsdsHeaderSize)
	n, err := io.ReadFull(c.r, hdr)
	if err == io.EOF {
		return Packet{}, io.EOF
	}
	if err != nil {
		return Packet{}, fmt.Errorf("%w: header at offset %d has %d bytes", ErrPartialPacket, c.offset, n)
	}
	length := int(binary.BigEndian.Uint16(hdr[4:6])) + 1
	data := make([]byte, ccsdsHeaderSize+length)
	copy(data, hdr)
	if n, err := io.ReadFull(c.r, data[ccsdsHeaderSize:]); err != nil {
		return Packet{}, fmt.Errorf("%w: packet at offset %d announces %d bytes, %d read", ErrPartialPacket, c.offset, len(data), ccsdsHeaderSize+n)
	}
	p := Packet{Index: c.index, Offset: c.offset, Data: data}
	c.index++
	c.offset += int64(len(data))
	if c.metrics != nil {
		c.metrics.AddPacket(int64(len(data)))
	}
	return p, nil
}

// APID returns the application process identifier of a CCSDS packet.
func APID(data []byte) (uint16, bool) {
	if len(data) < ccsdsHeaderSize {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[0:2]) & 0x7FF, true
}

// FixedReader reads records of a fixed size. A short final record is an
// error.
type FixedReader struct {
	r       io.Reader
	size    int
	skip    int
	offset  int64
	index   int
	metrics *common.Metrics
}

func NewFixedReader(r io.Reader, size, skip int) (*FixedReader, error) {
	if size <= 0 {
		return nil, fmt.Errorf("record size must be positive, got %d", size)
	}
	return &FixedReader{r: r, size: size, skip: skip}, nil
}

func (f *FixedReader) SetMetrics(m *common.Metrics) { f.metrics = m }

func (f *FixedReader) Next() (Packet, error) {
	rec := make([]byte, f.skip+f.size)
	n, err := io.ReadFull(f.r, rec)
	if err == io.EOF {
		return Packet{}, io.EOF
	}
	if err != nil {
		return Packet{}, fmt.Errorf("%w: record at offset %d has %d of %d bytes", ErrPartialPacket, f.offset, n, len(rec))
	}
	p := Packet{Index: f.index, Offset: f.offset + int64(f.skip), Data: rec[f.skip:]}
	f.index++
	f.offset += int64(len(rec))
	if f.metrics != nil {
		f.metrics.AddPacket(int64(len(rec)))
	}
	return p, nil
}

// NewSource returns the packet source for a framing. FramingNone has no
// reader of its own; callers decode it with DecodeConcatenated.
func NewSource(r io.Reader, f Framing, recordSize, skip int) (Source, error) {
	switch f {
	case FramingCCSDS:
		return NewCCSDSReader(r, skip), nil
	case FramingFixed:
		return NewFixedReader(r, recordSize, skip)
	}
	return nil, fmt.Errorf("%w %q for a packet reader", ErrUnknownFraming, f)
}
