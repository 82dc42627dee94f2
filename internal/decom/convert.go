package decom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

// UndefinedLabel is the label of enumerated values without an enumeration.
const UndefinedLabel = "UNDEF"

// convert turns a raw value into the engineering value of t.
func (pc *processingContext) convert(t mdb.ParameterType, raw value.Value) (value.Value, error) {
	return Convert(t, raw, pc.result)
}

// Convert turns a raw value into the engineering value of t, calibrating
// numeric raw values. r resolves context calibrators, expression operands
// and time references.
func Convert(t mdb.ParameterType, raw value.Value, r Resolver) (value.Value, error) {
	switch t := t.(type) {
	case *mdb.IntegerParameterType:
		return convertInteger(t, raw, r)
	case *mdb.FloatParameterType:
		f, err := calibrated(t, raw, r)
		if err != nil {
			return value.Value{}, err
		}
		if t.SizeInBits == 32 {
			f = float64(float32(f))
		}
		return value.Float(f), nil
	case *mdb.StringParameterType:
		if raw.Kind() != value.KindString {
			return value.Value{}, fmt.Errorf("%w: string from %s", ErrUnsupportedConstruct, raw.Kind())
		}
		return raw, nil
	case *mdb.BinaryParameterType:
		if raw.Kind() != value.KindBinary {
			return value.Value{}, fmt.Errorf("%w: binary from %s", ErrUnsupportedConstruct, raw.Kind())
		}
		return raw, nil
	case *mdb.BooleanParameterType:
		return convertBoolean(t, raw)
	case *mdb.EnumeratedParameterType:
		f, err := calibrated(t, raw, r)
		if err != nil {
			return value.Value{}, err
		}
		v := int64(f)
		label, ok := t.Label(v)
		if !ok {
			label = UndefinedLabel
		}
		return value.Enum(v, label), nil
	case *mdb.AbsoluteTimeParameterType:
		return convertTime(t, raw, r)
	}
	return value.Value{}, fmt.Errorf("%w: parameter type %T", ErrUnsupportedConstruct, t)
}

// calibrated returns the numeric raw value after the calibrator selected for
// the encoding of t.
func calibrated(t mdb.ParameterType, raw value.Value, r Resolver) (float64, error) {
	x, ok := raw.AsFloat()
	if !ok {
		return 0, fmt.Errorf("%w: numeric value from %s", ErrUnsupportedConstruct, raw.Kind())
	}
	c := SelectCalibrator(mdb.CalibrationOf(t), r)
	if c == nil {
		return x, nil
	}
	return Calibrate(c, x, r)
}

func convertInteger(t *mdb.IntegerParameterType, raw value.Value, r Resolver) (value.Value, error) {
	if mdb.CalibrationOf(t) == nil && raw.Kind() != value.KindFloat {
		if t.Signed {
			i, _ := raw.AsInt()
			return value.Int(i), nil
		}
		if raw.Kind() == value.KindInt && raw.Int() < 0 {
			return value.Value{}, fmt.Errorf("%w: negative value %d for unsigned type", ErrCalibrationDomain, raw.Int())
		}
		return value.Uint(raw.Uint()), nil
	}
	f, err := calibrated(t, raw, r)
	if err != nil {
		return value.Value{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value.Value{}, fmt.Errorf("%w: calibrated value %g is not an integer", ErrCalibrationDomain, f)
	}
	if t.Signed {
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return value.Value{}, fmt.Errorf("%w: calibrated value %g overflows int64", ErrCalibrationDomain, f)
		}
		return value.Int(int64(f)), nil
	}
	if f < 0 || f >= math.MaxUint64 {
		return value.Value{}, fmt.Errorf("%w: calibrated value %g outside unsigned range", ErrCalibrationDomain, f)
	}
	return value.Uint(uint64(f)), nil
}

func convertBoolean(t *mdb.BooleanParameterType, raw value.Value) (value.Value, error) {
	switch raw.Kind() {
	case value.KindUint, value.KindInt:
		return value.Bool(raw.Uint() != 0), nil
	case value.KindString:
		s := strings.TrimSpace(raw.StringValue())
		switch {
		case t.OneStringValue != "" && s == t.OneStringValue:
			return value.Bool(true), nil
		case t.ZeroStringValue != "" && s == t.ZeroStringValue:
			return value.Bool(false), nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return value.Value{}, fmt.Errorf("%w: %q is not a boolean", ErrCalibrationDomain, s)
		}
		return value.Bool(b), nil
	}
	return value.Value{}, fmt.Errorf("%w: boolean from %s", ErrUnsupportedConstruct, raw.Kind())
}

func convertTime(t *mdb.AbsoluteTimeParameterType, raw value.Value, r Resolver) (value.Value, error) {
	f, err := calibrated(t, raw, r)
	if err != nil {
		return value.Value{}, err
	}
	ref := t.Epoch
	if t.OffsetFrom != nil {
		v, ok := value.Value{}, false
		if r != nil {
			v, ok = r.Resolve(*t.OffsetFrom)
		}
		if !ok {
			v, ok = initialOf(*t.OffsetFrom)
		}
		if !ok || v.Kind() != value.KindTime {
			return value.Value{}, fmt.Errorf("%w: time reference %s", ErrUnresolvedReference, t.OffsetFrom)
		}
		ref = v.Time()
	}
	secs := f*t.Scale + t.Offset
	if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > math.MaxInt64/1e9 {
		return value.Value{}, fmt.Errorf("%w: time offset %g s", ErrCalibrationDomain, secs)
	}
	whole, frac := math.Modf(secs)
	return value.Time(ref.Add(time.Duration(whole) * time.Second).Add(time.Duration(math.Round(frac * 1e9)))), nil
}

// checkValidity flags values outside the valid range of t.
func checkValidity(t mdb.ParameterType, raw, eng value.Value) Validity {
	vr := t.Base().ValidRange
	if vr == nil {
		return Valid
	}
	v := raw
	if vr.AppliesToCalibrated {
		v = eng
	}
	f, ok := v.AsFloat()
	if !ok {
		return Valid
	}
	if !vr.Contains(f) {
		return Invalid
	}
	return Valid
}
