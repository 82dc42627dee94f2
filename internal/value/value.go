// Package value holds the typed raw and engineering values produced by the
// decoder. A Value is a small tagged union; the zero Value has KindNone.
package value

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindUint
	KindInt
	KindFloat
	KindString
	KindBool
	KindBinary
	KindEnum
	KindTime
	KindArray
	KindAggregate
)

var kindNames = [...]string{
	KindNone:      "none",
	KindUint:      "uint",
	KindInt:       "int",
	KindFloat:     "float",
	KindString:    "string",
	KindBool:      "bool",
	KindBinary:    "binary",
	KindEnum:      "enum",
	KindTime:      "time",
	KindArray:     "array",
	KindAggregate: "aggregate",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsNumeric reports whether values of this kind order numerically.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindUint, KindInt, KindFloat, KindEnum:
		return true
	}
	return false
}

// Member is one named field of an aggregate value.
type Member struct {
	Name  string
	Value Value
}

// Value is an immutable decoded value.
type Value struct {
	kind    Kind
	bits    uint64
	str     string
	bin     []byte
	t       time.Time
	elems   []Value
	dims    []int
	members []Member
}

func Uint(v uint64) Value { return Value{kind: KindUint, bits: v} }

func Int(v int64) Value { return Value{kind: KindInt, bits: uint64(v)} }

func Float(v float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(v)} }

func String(v string) Value { return Value{kind: KindString, str: v} }

func Bool(v bool) Value {
	var b uint64
	if v {
		b = 1
	}
	return Value{kind: KindBool, bits: b}
}

// Binary wraps b without copying.
func Binary(b []byte) Value { return Value{kind: KindBinary, bin: b} }

// Enum is an enumerated value: the numeric value and its label.
func Enum(v int64, label string) Value {
	return Value{kind: KindEnum, bits: uint64(v), str: label}
}

func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Array builds a row-major array value. dims may be nil for a one
// dimensional array of len(elems).
func Array(dims []int, elems []Value) Value {
	if dims == nil {
		dims = []int{len(elems)}
	}
	return Value{kind: KindArray, dims: dims, elems: elems}
}

func Aggregate(members []Member) Value {
	return Value{kind: KindAggregate, members: members}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsValid() bool { return v.kind != KindNone }

func (v Value) Uint() uint64 {
	switch v.kind {
	case KindFloat:
		return uint64(math.Float64frombits(v.bits))
	}
	return v.bits
}

func (v Value) Int() int64 {
	switch v.kind {
	case KindFloat:
		return int64(math.Float64frombits(v.bits))
	}
	return int64(v.bits)
}

func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits)
	case KindUint:
		return float64(v.bits)
	case KindInt, KindEnum:
		return float64(int64(v.bits))
	case KindBool:
		return float64(v.bits)
	}
	return 0
}

func (v Value) Bool() bool { return v.bits != 0 }

// StringValue returns the payload of a string value or the label of an
// enumerated value.
func (v Value) StringValue() string { return v.str }

func (v Value) Bytes() []byte { return v.bin }

func (v Value) Time() time.Time { return v.t }

func (v Value) Elements() []Value { return v.elems }

func (v Value) Dims() []int { return v.dims }

func (v Value) Members() []Member { return v.members }

// Member returns the aggregate member called name.
func (v Value) Member(name string) (Value, bool) {
	for _, m := range v.members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return Value{}, false
}

// AsFloat converts numeric, enumerated and boolean values to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindUint, KindInt, KindFloat, KindEnum, KindBool:
		return v.Float(), true
	}
	return 0, false
}

// AsInt converts numeric, enumerated and boolean values to int64, truncating
// floats toward zero.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindUint, KindInt, KindEnum, KindBool:
		return int64(v.bits), true
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// Compare orders a against b. ok is false when the kinds cannot be compared.
// Numbers compare numerically across uint/int/float/enum, strings
// lexically, booleans false < true, binaries bytewise and times
// chronologically.
func Compare(a, b Value) (c int, ok bool) {
	switch {
	case a.kind.IsNumeric() && b.kind.IsNumeric():
		return compareNumeric(a, b), true
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.str, b.str), true
	case a.kind == KindBool && b.kind == KindBool:
		return cmpUint(a.bits, b.bits), true
	case a.kind == KindBinary && b.kind == KindBinary:
		return bytes.Compare(a.bin, b.bin), true
	case a.kind == KindTime && b.kind == KindTime:
		return a.t.Compare(b.t), true
	}
	return 0, false
}

func compareNumeric(a, b Value) int {
	if a.kind == KindFloat || b.kind == KindFloat {
		af, bf := a.Float(), b.Float()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	if a.kind == KindUint && b.kind == KindUint {
		return cmpUint(a.bits, b.bits)
	}
	// at least one signed side
	if a.kind == KindUint && a.bits > math.MaxInt64 {
		return 1
	}
	if b.kind == KindUint && b.bits > math.MaxInt64 {
		return -1
	}
	ai, bi := int64(a.bits), int64(b.bits)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	}
	return 0
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports deep equality, including arrays and aggregates.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone:
		return true
	case KindArray:
		if len(a.elems) != len(b.elems) || len(a.dims) != len(b.dims) {
			return false
		}
		for i := range a.dims {
			if a.dims[i] != b.dims[i] {
				return false
			}
		}
		for i := range a.elems {
			if !Equal(a.elems[i], b.elems[i]) {
				return false
			}
		}
		return true
	case KindAggregate:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Name != b.members[i].Name || !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	case KindEnum:
		return a.bits == b.bits && a.str == b.str
	case KindFloat:
		return a.Float() == b.Float()
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Interface returns the value as plain Go data, suitable for JSON encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindUint:
		return v.bits
	case KindInt:
		return int64(v.bits)
	case KindFloat:
		return v.Float()
	case KindString:
		return v.str
	case KindBool:
		return v.bits != 0
	case KindBinary:
		return hex.EncodeToString(v.bin)
	case KindEnum:
		return v.str
	case KindTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindArray:
		out := make([]any, len(v.elems))
		for i, e := range v.elems {
			out[i] = e.Interface()
		}
		return out
	case KindAggregate:
		out := make(map[string]any, len(v.members))
		for _, m := range v.members {
			out[m.Name] = m.Value.Interface()
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat {
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return json.Marshal(strconv.FormatFloat(f, 'g', -1, 64))
		}
	}
	return json.Marshal(v.Interface())
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "<none>"
	case KindUint:
		return strconv.FormatUint(v.bits, 10)
	case KindInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.bits != 0)
	case KindBinary:
		return "0x" + hex.EncodeToString(v.bin)
	case KindEnum:
		return fmt.Sprintf("%s(%d)", v.str, int64(v.bits))
	case KindTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindArray:
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case KindAggregate:
		parts := make([]string, len(v.members))
		for i, m := range v.members {
			parts[i] = m.Name + ":" + m.Value.String()
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
	return "<" + v.kind.String() + ">"
}

// ParseLiteral converts a schema literal into a value of the same family as
// like, so it can be compared against like with Compare.
func ParseLiteral(lit string, like Kind) (Value, error) {
	lit = strings.TrimSpace(lit)
	switch like {
	case KindUint, KindInt, KindEnum:
		if i, err := strconv.ParseInt(lit, 0, 64); err == nil {
			return Int(i), nil
		}
		if u, err := strconv.ParseUint(lit, 0, 64); err == nil {
			return Uint(u), nil
		}
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Value{}, fmt.Errorf("literal %q is not numeric", lit)
		}
		return Float(f), nil
	case KindFloat:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Value{}, fmt.Errorf("literal %q is not numeric", lit)
		}
		return Float(f), nil
	case KindBool:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return Value{}, fmt.Errorf("literal %q is not boolean", lit)
		}
		return Bool(b), nil
	case KindBinary:
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(lit, "0x"), "0X"))
		if err != nil {
			return Value{}, fmt.Errorf("literal %q is not hex: %w", lit, err)
		}
		return Binary(b), nil
	case KindTime:
		t, err := time.Parse(time.RFC3339Nano, lit)
		if err != nil {
			return Value{}, fmt.Errorf("literal %q is not a time: %w", lit, err)
		}
		return Time(t), nil
	}
	return String(lit), nil
}
