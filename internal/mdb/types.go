package mdb

import (
	"time"

	"example.com/tlmdecom/internal/value"
)

// ParameterType is the closed set of parameter types. Base exposes the
// fields every type shares.
type ParameterType interface {
	TypeName() string
	Base() *BaseType
	isParameterType()
}

// BaseType holds the fields shared by every parameter type. Encoding is nil
// for types without a raw representation (arrays, aggregates).
type BaseType struct {
	NameDescription
	Encoding   DataEncoding
	Units      []string
	Initial    value.Value
	ValidRange *ValidRange
}

func (b *BaseType) Base() *BaseType  { return b }
func (b *BaseType) TypeName() string { return b.Qualified() }

type IntegerParameterType struct {
	BaseType
	// SizeInBits is the engineering width; 0 means 64.
	SizeInBits    int
	Signed        bool
	Alarm         *NumericAlarm
	ContextAlarms []NumericContextAlarm
}

func (*IntegerParameterType) isParameterType() {}

type FloatParameterType struct {
	BaseType
	// SizeInBits is 32 or 64; 0 means 64.
	SizeInBits    int
	Alarm         *NumericAlarm
	ContextAlarms []NumericContextAlarm
}

func (*FloatParameterType) isParameterType() {}

type StringParameterType struct {
	BaseType
}

func (*StringParameterType) isParameterType() {}

// BooleanParameterType maps a zero raw value to false and anything else to
// true. The string values are used when rendering and parsing literals.
type BooleanParameterType struct {
	BaseType
	OneStringValue  string
	ZeroStringValue string
}

func (*BooleanParameterType) isParameterType() {}

type BinaryParameterType struct {
	BaseType
}

func (*BinaryParameterType) isParameterType() {}

type ValueEnumeration struct {
	Value       int64
	Label       string
	Description string
}

// RangeEnumeration labels every raw value in [Min, Max].
type RangeEnumeration struct {
	Min   float64
	Max   float64
	Label string
}

type EnumeratedParameterType struct {
	BaseType
	Enumerations  []ValueEnumeration
	Ranges        []RangeEnumeration
	Alarm         *EnumerationAlarm
	ContextAlarms []EnumerationContextAlarm
}

func (*EnumeratedParameterType) isParameterType() {}

// Label returns the label for raw value v. Exact enumerations are searched
// before ranges.
func (t *EnumeratedParameterType) Label(v int64) (string, bool) {
	for _, e := range t.Enumerations {
		if e.Value == v {
			return e.Label, true
		}
	}
	f := float64(v)
	for _, r := range t.Ranges {
		if f >= r.Min && f <= r.Max {
			return r.Label, true
		}
	}
	return "", false
}

// ValueOf returns the raw value of label. Range labels map to the range
// minimum.
func (t *EnumeratedParameterType) ValueOf(label string) (int64, bool) {
	for _, e := range t.Enumerations {
		if e.Label == label {
			return e.Value, true
		}
	}
	for _, r := range t.Ranges {
		if r.Label == label {
			return int64(r.Min), true
		}
	}
	return 0, false
}

// AbsoluteTimeParameterType converts a raw count to a time:
// reference + raw*Scale + Offset seconds. The reference is Epoch, or the
// time value of OffsetFrom when set.
type AbsoluteTimeParameterType struct {
	BaseType
	Scale      float64
	Offset     float64
	Epoch      time.Time
	OffsetFrom *ParameterRef
}

func (*AbsoluteTimeParameterType) isParameterType() {}

// Well known epochs.
var (
	EpochUNIX  = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	EpochGPS   = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)
	EpochJ2000 = time.Date(2000, 1, 1, 11, 58, 55, 816000000, time.UTC)
	EpochTAI   = time.Date(1958, 1, 1, 0, 0, 0, 0, time.UTC)
)

// ArrayParameterType is a multi-dimensional array stored in row-major order.
type ArrayParameterType struct {
	BaseType
	ElementType ParameterType
	Dims        []IntegerValue
}

func (*ArrayParameterType) isParameterType() {}

type Member struct {
	NameDescription
	Type ParameterType
}

// AggregateParameterType is a record with ordered, uniquely named members.
type AggregateParameterType struct {
	BaseType
	Members []Member
}

func (*AggregateParameterType) isParameterType() {}

// Member returns the member called name.
func (t *AggregateParameterType) Member(name string) (*Member, bool) {
	for i := range t.Members {
		if t.Members[i].Name == name {
			return &t.Members[i], true
		}
	}
	return nil, false
}

// CalibrationOf returns the calibration attached to the encoding of t, or nil.
func CalibrationOf(t ParameterType) *Calibration {
	switch e := t.Base().Encoding.(type) {
	case *IntegerDataEncoding:
		if e.HasCalibrator() {
			return &e.Calibration
		}
	case *FloatDataEncoding:
		if e.HasCalibrator() {
			return &e.Calibration
		}
	}
	return nil
}

// EngKind returns the kind of engineering value a type produces. Calibrated
// integers stay integers.
func EngKind(t ParameterType) value.Kind {
	switch t := t.(type) {
	case *IntegerParameterType:
		if t.Signed {
			return value.KindInt
		}
		return value.KindUint
	case *FloatParameterType:
		return value.KindFloat
	case *StringParameterType:
		return value.KindString
	case *BooleanParameterType:
		return value.KindBool
	case *BinaryParameterType:
		return value.KindBinary
	case *EnumeratedParameterType:
		return value.KindEnum
	case *AbsoluteTimeParameterType:
		return value.KindTime
	case *ArrayParameterType:
		return value.KindArray
	case *AggregateParameterType:
		return value.KindAggregate
	}
	return value.KindNone
}

// RawKind returns the kind of raw value the encoding of t produces.
func RawKind(t ParameterType) value.Kind {
	switch e := t.Base().Encoding.(type) {
	case *IntegerDataEncoding:
		if e.Encoding.Signed() {
			return value.KindInt
		}
		return value.KindUint
	case *FloatDataEncoding:
		return value.KindFloat
	case *StringDataEncoding:
		return value.KindString
	case *BinaryDataEncoding:
		return value.KindBinary
	}
	switch t.(type) {
	case *ArrayParameterType:
		return value.KindArray
	case *AggregateParameterType:
		return value.KindAggregate
	}
	return value.KindNone
}

// MemberType follows path through aggregate members starting at t.
func MemberType(t ParameterType, path []string) (ParameterType, bool) {
	for _, name := range path {
		agg, ok := t.(*AggregateParameterType)
		if !ok {
			return nil, false
		}
		m, ok := agg.Member(name)
		if !ok {
			return nil, false
		}
		t = m.Type
	}
	return t, true
}
