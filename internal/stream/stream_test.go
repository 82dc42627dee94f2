package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/mdb"
)

const ccsdsSchema = `
name: C
parameterTypes:
  - {name: u1, kind: integer, encoding: {kind: integer, sizeInBits: 1}}
  - {name: u2, kind: integer, encoding: {kind: integer, sizeInBits: 2}}
  - {name: u3, kind: integer, encoding: {kind: integer, sizeInBits: 3}}
  - {name: u8, kind: integer, encoding: {kind: integer, sizeInBits: 8}}
  - {name: u11, kind: integer, encoding: {kind: integer, sizeInBits: 11}}
  - {name: u14, kind: integer, encoding: {kind: integer, sizeInBits: 14}}
  - {name: u16, kind: integer, encoding: {kind: integer, sizeInBits: 16}}
parameters:
  - {name: version, type: u3}
  - {name: type, type: u1}
  - {name: secHdr, type: u1}
  - {name: apid, type: u11}
  - {name: seqFlags, type: u2}
  - {name: seqCount, type: u14}
  - {name: length, type: u16}
  - {name: n, type: u8}
  - {name: sample, type: u8}
containers:
  - name: Primary
    entries:
      - parameter: version
      - parameter: type
      - parameter: secHdr
      - parameter: apid
      - parameter: seqFlags
      - parameter: seqCount
      - parameter: length
  - name: Samples
    base:
      container: Primary
      restriction:
        comparison: {ref: apid, value: 100}
    entries:
      - parameter: n
      - parameter: sample
        repeat: {count: {ref: n}}
`

func ccsdsPacket(apid uint16, seq uint16, payload ...byte) []byte {
	n := len(payload) - 1
	return append([]byte{
		byte(apid >> 8 & 0x07), byte(apid),
		0xC0 | byte(seq>>8&0x3F), byte(seq),
		byte(n >> 8), byte(n),
	}, payload...)
}

func newDecoder(t *testing.T) *decom.Decoder {
	t.Helper()
	db, err := mdb.Parse([]byte(ccsdsSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return decom.NewDecoder(db, decom.DefaultOptions())
}

func TestCCSDSReader(t *testing.T) {
	var in bytes.Buffer
	in.Write([]byte{0xAA, 0xBB})
	in.Write(ccsdsPacket(100, 1, 1, 7))
	in.Write([]byte{0xAA, 0xBB})
	in.Write(ccsdsPacket(5, 2, 9, 9, 9))
	r := NewCCSDSReader(&in, 2)
	m := common.NewMetrics()
	r.SetMetrics(m)

	p, err := r.Next()
	if err != nil || p.Index != 0 || p.Offset != 2 || len(p.Data) != 8 {
		t.Fatalf("first: %+v, %v", p, err)
	}
	if apid, _ := APID(p.Data); apid != 100 {
		t.Fatalf("apid %d", apid)
	}
	p, err = r.Next()
	if err != nil || p.Index != 1 || p.Offset != 12 || len(p.Data) != 9 {
		t.Fatalf("second: %+v, %v", p, err)
	}
	if _, err = r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("end: %v", err)
	}
	if s := m.Snapshot(); s.Packets != 2 || s.Bytes != 17 {
		t.Fatalf("metrics %+v", s)
	}
}

func TestCCSDSReaderPartial(t *testing.T) {
	pkt := ccsdsPacket(100, 1, 1, 2, 3)
	r := NewCCSDSReader(bytes.NewReader(pkt[:len(pkt)-1]), 0)
	if _, err := r.Next(); !errors.Is(err, ErrPartialPacket) {
		t.Fatalf("got %v", err)
	}
	r = NewCCSDSReader(bytes.NewReader(pkt[:3]), 0)
	if _, err := r.Next(); !errors.Is(err, ErrPartialPacket) {
		t.Fatalf("header: got %v", err)
	}
}

func TestFixedReader(t *testing.T) {
	if _, err := NewFixedReader(bytes.NewReader(nil), 0, 0); err == nil {
		t.Fatal("zero record size accepted")
	}
	r, err := NewFixedReader(bytes.NewReader([]byte{0, 1, 2, 0, 3, 4, 0, 5}), 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range [][]byte{{1, 2}, {3, 4}} {
		p, err := r.Next()
		if err != nil || !bytes.Equal(p.Data, want) || p.Offset != int64(3*i+1) {
			t.Fatalf("record %d: %+v, %v", i, p, err)
		}
	}
	if _, err := r.Next(); !errors.Is(err, ErrPartialPacket) {
		t.Fatalf("short record: got %v", err)
	}
}

func TestDecodeAllKeepsOrder(t *testing.T) {
	d := newDecoder(t)
	var in bytes.Buffer
	const count = 50
	for i := 0; i < count; i++ {
		if i%7 == 3 {
			in.Write(ccsdsPacket(100, uint16(i), 3, 1)) // announces 3 samples, carries none
			continue
		}
		in.Write(ccsdsPacket(100, uint16(i), 2, byte(i), byte(i+1)))
	}
	var seen []int
	failed := 0
	err := DecodeAll(context.Background(), NewCCSDSReader(&in, 0), d, "Primary", 4, func(o Outcome) error {
		seen = append(seen, o.Packet.Index)
		if o.Err != nil {
			if !errors.Is(o.Err, decom.ErrTruncatedBuffer) {
				t.Errorf("packet %d: %v", o.Packet.Index, o.Err)
			}
			failed++
			return nil
		}
		pv, ok := o.Result.Get("/C/seqCount")
		if !ok || pv.Eng.Uint() != uint64(o.Packet.Index) {
			t.Errorf("packet %d: seqCount %v", o.Packet.Index, pv)
		}
		if o.Result.Container != "/C/Samples" {
			t.Errorf("packet %d: container %s", o.Packet.Index, o.Result.Container)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(seen) != count {
		t.Fatalf("saw %d packets", len(seen))
	}
	for i, idx := range seen {
		if idx != i {
			t.Fatalf("outcome %d is packet %d", i, idx)
		}
	}
	if failed != 7 {
		t.Fatalf("failed = %d", failed)
	}
}

func TestDecodeAllStopsOnCallbackError(t *testing.T) {
	d := newDecoder(t)
	var in bytes.Buffer
	for i := 0; i < 20; i++ {
		in.Write(ccsdsPacket(100, uint16(i), 0))
	}
	stop := errors.New("stop")
	calls := 0
	err := DecodeAll(context.Background(), NewCCSDSReader(&in, 0), d, "Primary", 3, func(o Outcome) error {
		calls++
		if o.Packet.Index == 4 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || calls != 5 {
		t.Fatalf("err %v after %d calls", err, calls)
	}
}

func TestDecodeConcatenated(t *testing.T) {
	d := newDecoder(t)
	var data []byte
	data = append(data, ccsdsPacket(100, 0, 1, 42)...)
	data = append(data, ccsdsPacket(100, 1, 2, 1, 2)...)
	var sizes []int
	err := DecodeConcatenated(context.Background(), data, d, "Primary", nil, func(o Outcome) error {
		if o.Err != nil {
			return o.Err
		}
		sizes = append(sizes, len(o.Packet.Data))
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeConcatenated: %v", err)
	}
	if len(sizes) != 2 || sizes[0] != 8 || sizes[1] != 9 {
		t.Fatalf("sizes %v", sizes)
	}
}

func TestParseFraming(t *testing.T) {
	for in, want := range map[string]Framing{"": FramingCCSDS, "Fixed": FramingFixed, "none": FramingNone} {
		if got, err := ParseFraming(in); err != nil || got != want {
			t.Errorf("ParseFraming(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFraming("ch10"); !errors.Is(err, ErrUnknownFraming) {
		t.Errorf("got %v", err)
	}
}

func TestNewSource(t *testing.T) {
	if _, err := NewSource(bytes.NewReader(nil), FramingNone, 0, 0); !errors.Is(err, ErrUnknownFraming) {
		t.Fatalf("none: %v", err)
	}
	src, err := NewSource(bytes.NewReader(ccsdsPacket(7, 0, 1)), FramingCCSDS, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p, err := src.Next(); err != nil || len(p.Data) != 7 {
		t.Fatalf("ccsds: %+v, %v", p, err)
	}
	if _, err := NewSource(bytes.NewReader(nil), FramingFixed, 0, 0); err == nil {
		t.Fatal("fixed without record size accepted")
	}
}
