package decom

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

const testSchema = `
name: S
parameterTypes:
  - name: u8
    kind: integer
    encoding: {kind: integer, sizeInBits: 8}
  - name: u16
    kind: integer
    encoding: {kind: integer, sizeInBits: 16}
  - name: bytes
    kind: array
    elementType: u8
    dimensions: [1]
  - name: ranged
    kind: integer
    encoding: {kind: integer, sizeInBits: 8}
    validRange: {min: 0, max: 100}
  - name: hot
    kind: integer
    encoding:
      kind: integer
      sizeInBits: 8
      calibrator: {expression: "x 0 /"}
  - name: blob
    kind: binary
    encoding: {kind: binary, sizeInBits: {ref: n, slope: 8}}
  - name: label
    kind: string
    encoding: {kind: string, sizeType: leadingSize, sizeOfSizeTag: 8}
parameters:
  - {name: a, type: u8}
  - {name: b, type: u8}
  - {name: n, type: u8}
  - {name: flag, type: u8}
  - {name: item, type: u8}
  - {name: payload, type: bytes}
  - {name: level, type: ranged}
  - {name: temp, type: hot}
  - {name: word, type: u16}
  - {name: callsign, type: label}
  - {name: c, type: u8}
  - {name: d, type: u8}
  - {name: late, type: u8}
  - {name: chunk, type: blob}
containers:
  - name: Base
    entries:
      - parameter: a
  - name: Derived
    base:
      container: Base
      restriction:
        comparison: {ref: a, value: 5}
    entries:
      - parameter: b
  - name: Optional
    entries:
      - parameter: flag
      - parameter: b
        include:
          comparison: {ref: flag, value: 1}
      - parameter: n
  - name: Repeated
    entries:
      - parameter: n
      - parameter: item
        repeat: {count: {ref: n}}
  - name: Sized
    entries:
      - parameter: n
      - array: payload
        dimensions: [{ref: n}]
  - name: Synced
    entries:
      - fixed: {name: sync, value: "1ACF"}
      - parameter: word
  - name: Ranged
    entries:
      - parameter: level
  - name: Lenient
    entries:
      - parameter: temp
      - parameter: a
  - name: Outer
    entries:
      - parameter: n
      - container: Synced
      - parameter: callsign
  - name: Positioned
    entries:
      - parameter: a
        location: {reference: containerStart, bits: 8}
      - parameter: b
        location: {reference: containerStart, bits: 0}
  - name: Wrapper
    entries:
      - container: Base
      - parameter: c
  - name: Expr
    entries:
      - parameter: a
      - parameter: b
      - parameter: c
        include:
          or:
            - condition: {left: a, op: "==", value: "9"}
            - and:
                - condition: {left: a, op: "<", right: b}
                - condition: {left: b, value: "3"}
      - parameter: d
        include:
          or:
            - condition: {left: a, value: "9"}
            - condition: {left: late, value: "1"}
      - parameter: late
  - name: Strided
    entries:
      - parameter: n
      - parameter: item
        repeat: {count: {ref: n}, offsetInBits: 8}
  - name: Overlap
    entries:
      - parameter: word
      - parameter: a
        location: {bits: -8}
  - name: Empty
    entries:
      - parameter: b
        include:
          comparison: {ref: a, value: 99}
  - name: Blob
    entries:
      - parameter: n
      - parameter: chunk
  - name: Looped
    entries:
      - parameter: word
      - container: Empty
        repeat: {count: {ref: word}}
`

func testDecoder(t *testing.T, opts Options) *Decoder {
	t.Helper()
	db, err := mdb.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return NewDecoder(db, opts)
}

func mustGet(t *testing.T, r *Result, key string) *ParameterValue {
	t.Helper()
	pv, ok := r.Get(key)
	if !ok {
		t.Fatalf("no value for %s, have %v", key, r.Keys())
	}
	return pv
}

func wantEng(t *testing.T, r *Result, key string, want value.Value) {
	t.Helper()
	if got := mustGet(t, r, key).Eng; !value.Equal(got, want) {
		t.Fatalf("%s = %v, want %v", key, got, want)
	}
}

func TestInheritorSelection(t *testing.T) {
	d := testDecoder(t, DefaultOptions())

	res, err := d.Decode([]byte{5, 9}, "Base")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Container != "/S/Derived" || res.BitsConsumed != 16 {
		t.Fatalf("container %s, %d bits", res.Container, res.BitsConsumed)
	}
	wantEng(t, res, "/S/b", value.Uint(9))

	res, err = d.Decode([]byte{7, 9}, "Base")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Container != "/S/Base" || res.BitsConsumed != 8 || res.Len() != 1 {
		t.Fatalf("container %s, %d bits, keys %v", res.Container, res.BitsConsumed, res.Keys())
	}

	// without subtype resolution the requested container is final
	plain := testDecoder(t, Options{})
	res, err = plain.Decode([]byte{5, 9}, "Base")
	if err != nil || res.Container != "/S/Base" || res.Len() != 1 {
		t.Fatalf("got %v, %v", res, err)
	}

	// decoding a subtype directly decodes its base first
	res, err = plain.Decode([]byte{7, 9}, "Derived")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := res.Keys(); len(got) != 2 || got[0] != "/S/a" || got[1] != "/S/b" {
		t.Fatalf("keys = %v", got)
	}
}

func TestIncludeCondition(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{0, 4}, "Optional")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := res.Get("/S/b"); ok {
		t.Fatal("excluded entry decoded")
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "/S/b" {
		t.Fatalf("skipped = %v", res.Skipped)
	}
	wantEng(t, res, "/S/n", value.Uint(4))
	if res.BitsConsumed != 16 {
		t.Fatalf("consumed %d bits", res.BitsConsumed)
	}

	res, err = d.Decode([]byte{1, 9, 4}, "Optional")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantEng(t, res, "/S/b", value.Uint(9))
	wantEng(t, res, "/S/n", value.Uint(4))
}

func TestRepeatInstances(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{3, 10, 20, 30}, "Repeated")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantEng(t, res, "/S/item", value.Uint(10))
	wantEng(t, res, "/S/item[1]", value.Uint(20))
	wantEng(t, res, "/S/item[2]", value.Uint(30))

	item, _ := d.Database().Parameter("item")
	for _, tc := range []struct {
		instance int
		want     uint64
	}{{0, 30}, {-1, 20}, {1, 10}, {3, 30}} {
		v, ok := res.Resolve(mdb.ParameterRef{Parameter: item, Instance: tc.instance})
		if !ok || v.Uint() != tc.want {
			t.Errorf("instance %d = %v, %v; want %d", tc.instance, v, ok, tc.want)
		}
	}
	if _, ok := res.Resolve(mdb.ParameterRef{Parameter: item, Instance: -3}); ok {
		t.Error("instance -3 resolved")
	}

	res, err = d.Decode([]byte{0}, "Repeated")
	if err != nil || res.Len() != 1 || res.BitsConsumed != 8 {
		t.Fatalf("zero repeat: %v, %v", res, err)
	}
}

func TestDynamicArray(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{2, 7, 8}, "Sized")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	pv := mustGet(t, res, "/S/payload")
	want := value.Array([]int{2}, []value.Value{value.Uint(7), value.Uint(8)})
	if !value.Equal(pv.Eng, want) {
		t.Fatalf("payload = %v", pv.Eng)
	}
	if pv.BitOffset != 8 || pv.BitSize != 16 {
		t.Fatalf("payload at %d size %d", pv.BitOffset, pv.BitSize)
	}

	_, err = d.Decode([]byte{3, 7, 8}, "Sized")
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrTruncatedBuffer) {
		t.Fatalf("got %v", err)
	}
	if de.Field != "/S/payload" || de.BitOffset != 8 || de.ByteOffset() != 1 || de.Container != "/S/Sized" {
		t.Fatalf("error location %+v", de)
	}
}

func TestFixedValueEntry(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{0x1A, 0xCF, 0x01, 0x02}, "Synced")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantEng(t, res, "/S/word", value.Uint(0x0102))
	if res.BitsConsumed != 32 {
		t.Fatalf("consumed %d", res.BitsConsumed)
	}

	_, err = d.Decode([]byte{0x1A, 0xCE, 0x01, 0x02}, "Synced")
	if !errors.Is(err, ErrPatternMismatch) {
		t.Fatalf("got %v", err)
	}
	_, err = d.Decode([]byte{0x1A, 0xCF, 0x01}, "Synced")
	if !errors.Is(err, ErrTruncatedBuffer) {
		t.Fatalf("one byte short: got %v", err)
	}
}

func TestNestedContainer(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	data := []byte{1, 0x1A, 0xCF, 0, 2, 2, 'h', 'i'}
	res, err := d.Decode(data, "Outer")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Container != "/S/Outer" || res.BitsConsumed != 64 {
		t.Fatalf("container %s, %d bits", res.Container, res.BitsConsumed)
	}
	wantEng(t, res, "/S/word", value.Uint(2))
	wantEng(t, res, "/S/callsign", value.String("hi"))
}

func TestLocationFromContainerStart(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.DecodeAt([]byte{0xFF, 1, 2}, 8, "Positioned")
	if err != nil {
		t.Fatalf("DecodeAt: %v", err)
	}
	wantEng(t, res, "/S/a", value.Uint(2))
	wantEng(t, res, "/S/b", value.Uint(1))
	if res.BitsConsumed != 16 {
		t.Fatalf("consumed %d", res.BitsConsumed)
	}
}

func TestValidRange(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	for _, tc := range []struct {
		raw  byte
		want Validity
	}{{50, Valid}, {100, Valid}, {150, Invalid}} {
		res, err := d.Decode([]byte{tc.raw}, "Ranged")
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got := mustGet(t, res, "/S/level").Validity; got != tc.want {
			t.Errorf("raw %d: validity %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestCalibrationFailure(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{1, 5}, "Lenient")
	if !errors.Is(err, ErrCalibrationDomain) || res != nil {
		t.Fatalf("strict: got %v, %v", res, err)
	}

	opts := DefaultOptions()
	opts.ContinueOnCalibrationError = true
	d = testDecoder(t, opts)
	res, err = d.Decode([]byte{1, 5}, "Lenient")
	if !errors.Is(err, ErrCalibrationDomain) || res == nil {
		t.Fatalf("lenient: got %v, %v", res, err)
	}
	temp := mustGet(t, res, "/S/temp")
	if temp.Acquired || temp.Raw.Uint() != 1 {
		t.Fatalf("temp = %+v", temp)
	}
	wantEng(t, res, "/S/a", value.Uint(5))
}

func TestUnknownContainer(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	if _, err := d.Decode([]byte{1}, "Nope"); !errors.Is(err, ErrUnknownContainer) {
		t.Fatalf("got %v", err)
	}
	if _, err := d.DecodeAt([]byte{1}, 16, "Base"); !errors.Is(err, ErrTruncatedBuffer) {
		t.Fatalf("offset past end: got %v", err)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	data := []byte{1, 0x1A, 0xCF, 0, 2, 2, 'h', 'i'}
	first, err := d.Decode(data, "Outer")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Decode(data, "Outer")
			if err != nil {
				errs <- err
				return
			}
			got, err := json.Marshal(res)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, want) {
				errs <- errors.New("result differs: " + string(got))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestNestedContainerResolvesInheritor(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{5, 6, 7}, "Wrapper")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := res.Keys(); len(got) != 3 || got[0] != "/S/a" || got[1] != "/S/b" || got[2] != "/S/c" {
		t.Fatalf("keys = %v", got)
	}
	if res.Container != "/S/Wrapper" || res.BitsConsumed != 24 {
		t.Fatalf("container %s, %d bits", res.Container, res.BitsConsumed)
	}
	wantEng(t, res, "/S/c", value.Uint(7))

	// no matching inheritor: the referenced container ends after its own entries
	res, err = d.Decode([]byte{4, 6, 7}, "Wrapper")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantEng(t, res, "/S/c", value.Uint(6))
	if res.BitsConsumed != 16 {
		t.Fatalf("consumed %d bits", res.BitsConsumed)
	}

	plain := testDecoder(t, Options{})
	res, err = plain.Decode([]byte{5, 6, 7}, "Wrapper")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := res.Get("/S/b"); ok || res.BitsConsumed != 16 {
		t.Fatalf("subtype decoded without resolution: keys %v", res.Keys())
	}
}

func TestBooleanExpressionInclude(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	for _, tc := range []struct {
		name  string
		data  []byte
		wantC bool
		wantD bool
	}{
		{"first or operand", []byte{9, 0, 7, 8, 1}, true, true},
		{"and of field comparison and literal", []byte{1, 3, 7, 1}, true, false},
		{"field comparison fails", []byte{4, 3, 7, 1}, false, false},
		{"literal fails", []byte{1, 2, 7, 1}, false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := d.Decode(tc.data, "Expr")
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if _, ok := res.Get("/S/c"); ok != tc.wantC {
				t.Fatalf("c present = %v, keys %v", ok, res.Keys())
			}
			// late is decoded after d, so its operand never holds
			if _, ok := res.Get("/S/d"); ok != tc.wantD {
				t.Fatalf("d present = %v, keys %v", ok, res.Keys())
			}
			want := 8 * (3 + btoi(tc.wantC) + btoi(tc.wantD))
			if res.BitsConsumed != want {
				t.Fatalf("consumed %d bits, want %d", res.BitsConsumed, want)
			}
		})
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestRepeatOffset(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{3, 10, 0xFF, 20, 0xFF, 30}, "Strided")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantEng(t, res, "/S/item", value.Uint(10))
	wantEng(t, res, "/S/item[1]", value.Uint(20))
	wantEng(t, res, "/S/item[2]", value.Uint(30))
	if pv := mustGet(t, res, "/S/item[2]"); pv.BitOffset != 40 {
		t.Fatalf("third item at bit %d", pv.BitOffset)
	}
	if res.BitsConsumed != 48 {
		t.Fatalf("consumed %d bits", res.BitsConsumed)
	}
}

func TestNegativeLocationRereads(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{0x12, 0x34}, "Overlap")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantEng(t, res, "/S/word", value.Uint(0x1234))
	wantEng(t, res, "/S/a", value.Uint(0x34))
	if pv := mustGet(t, res, "/S/a"); pv.BitOffset != 8 {
		t.Fatalf("a at bit %d", pv.BitOffset)
	}
	if res.BitsConsumed != 16 {
		t.Fatalf("consumed %d bits", res.BitsConsumed)
	}
}

func TestRepeatCountBounded(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	_, err := d.Decode([]byte{0xFF, 0xFF}, "Looped")
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("got %v", err)
	}
	if de.Field != "/S/Empty" {
		t.Fatalf("error location %+v", de)
	}

	res, err := d.Decode([]byte{0, 2}, "Looped")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Skipped) != 2 || res.BitsConsumed != 16 {
		t.Fatalf("skipped %v, %d bits", res.Skipped, res.BitsConsumed)
	}
}

func TestBinarySizeFromReference(t *testing.T) {
	d := testDecoder(t, DefaultOptions())
	res, err := d.Decode([]byte{2, 0xAB, 0xCD, 0xEE}, "Blob")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantEng(t, res, "/S/chunk", value.Binary([]byte{0xAB, 0xCD}))
	if res.BitsConsumed != 24 {
		t.Fatalf("consumed %d bits", res.BitsConsumed)
	}

	_, err = d.Decode([]byte{3, 0xAB}, "Blob")
	if !errors.Is(err, ErrTruncatedBuffer) {
		t.Fatalf("got %v", err)
	}
}
