package decom

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"example.com/tlmdecom/internal/bitbuf"
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

const maxContainerDepth = 64

// processingContext is the state of one decode. It is owned by a single
// goroutine and discarded when the decode returns.
type processingContext struct {
	db   *mdb.Database
	opts Options
	log  logrus.FieldLogger

	buf    *bitbuf.Buffer
	start  int
	result *Result

	// container being decoded, its start, and the entry in progress
	container      string
	containerStart int
	field          string
	fieldStart     int

	depth     int
	highWater int
	calErrs   []error
}

func newContext(d *Decoder, data []byte, bitOffset int) *processingContext {
	buf := bitbuf.New(data)
	buf.SetPosition(bitOffset)
	return &processingContext{
		db:        d.db,
		opts:      d.opts,
		log:       d.log,
		buf:       buf,
		start:     bitOffset,
		result:    newResult(),
		highWater: bitOffset,
	}
}

func (pc *processingContext) advance() {
	if p := pc.buf.Position(); p > pc.highWater {
		pc.highWater = p
	}
}

// fail wraps err with the location of the entry in progress, once.
func (pc *processingContext) fail(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Container: pc.container, Field: pc.field, BitOffset: pc.fieldStart, Err: err}
}

// integerValue resolves a size, count or dimension.
func (pc *processingContext) integerValue(iv mdb.IntegerValue) (int64, error) {
	switch iv := iv.(type) {
	case *mdb.FixedIntegerValue:
		return iv.Value, nil
	case *mdb.DynamicValue:
		v, ok := pc.result.Resolve(iv.Ref)
		if !ok {
			v, ok = initialOf(iv.Ref)
		}
		if !ok {
			return 0, fmt.Errorf("%w: %s has no value", ErrUnresolvedReference, iv.Ref)
		}
		if iv.Adjustment != nil {
			f, ok := v.AsFloat()
			if !ok {
				return 0, fmt.Errorf("%w: %s is %s", ErrInvalidSize, iv.Ref, v.Kind())
			}
			f = f*iv.Adjustment.Slope + iv.Adjustment.Intercept
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return 0, fmt.Errorf("%w: %s adjusts to %g", ErrInvalidSize, iv.Ref, f)
			}
			return int64(f), nil
		}
		n, ok := v.AsInt()
		if !ok {
			return 0, fmt.Errorf("%w: %s is %s", ErrInvalidSize, iv.Ref, v.Kind())
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%w: missing integer value", ErrUnsupportedConstruct)
	}
	return 0, fmt.Errorf("%w: integer value %T", ErrUnsupportedConstruct, iv)
}

// decodeValue decodes one value of type t at the cursor and converts it to
// its engineering form. Calibration failures come back as calError so the
// caller can keep the raw value.
func (pc *processingContext) decodeValue(t mdb.ParameterType, dims []mdb.IntegerValue) (raw, eng value.Value, err error) {
	switch t := t.(type) {
	case *mdb.ArrayParameterType:
		if len(dims) == 0 {
			dims = t.Dims
		}
		return pc.decodeArray(t, dims)
	case *mdb.AggregateParameterType:
		rawMembers := make([]value.Member, 0, len(t.Members))
		engMembers := make([]value.Member, 0, len(t.Members))
		var calErr error
		for _, m := range t.Members {
			r, e, err := pc.decodeValue(m.Type, nil)
			if err != nil {
				var ce *calError
				if !errors.As(err, &ce) {
					return value.Value{}, value.Value{}, err
				}
				calErr = errors.Join(calErr, err)
			}
			rawMembers = append(rawMembers, value.Member{Name: m.Name, Value: r})
			engMembers = append(engMembers, value.Member{Name: m.Name, Value: e})
		}
		raw, eng = value.Aggregate(rawMembers), value.Aggregate(engMembers)
		if calErr != nil {
			return raw, eng, &calError{err: calErr}
		}
		return raw, eng, nil
	case nil:
		return value.Value{}, value.Value{}, fmt.Errorf("%w: untyped parameter", ErrUnsupportedConstruct)
	}
	raw, err = decodeRaw(pc.buf, t.Base().Encoding, pc.integerValue)
	if err != nil {
		return value.Value{}, value.Value{}, err
	}
	eng, err = pc.convert(t, raw)
	if err != nil {
		return raw, value.Value{}, &calError{err: err}
	}
	return raw, eng, nil
}

func (pc *processingContext) decodeArray(t *mdb.ArrayParameterType, dims []mdb.IntegerValue) (raw, eng value.Value, err error) {
	sizes := make([]int, len(dims))
	total := 1
	for i, d := range dims {
		n, err := pc.integerValue(d)
		if err != nil {
			return value.Value{}, value.Value{}, err
		}
		if n < 0 || n > int64(pc.buf.Len())+1 {
			return value.Value{}, value.Value{}, fmt.Errorf("%w: dimension %d is %d", ErrInvalidSize, i, n)
		}
		sizes[i] = int(n)
		total *= int(n)
		if total > pc.buf.Len()+1 {
			return value.Value{}, value.Value{}, fmt.Errorf("%w: array of %d elements", ErrInvalidSize, total)
		}
	}
	rawEls := make([]value.Value, total)
	engEls := make([]value.Value, total)
	var calErr error
	for i := 0; i < total; i++ {
		r, e, err := pc.decodeValue(t.ElementType, nil)
		if err != nil {
			var ce *calError
			if !errors.As(err, &ce) {
				return value.Value{}, value.Value{}, err
			}
			calErr = errors.Join(calErr, err)
		}
		rawEls[i], engEls[i] = r, e
	}
	raw, eng = value.Array(sizes, rawEls), value.Array(sizes, engEls)
	if calErr != nil {
		return raw, eng, &calError{err: calErr}
	}
	return raw, eng, nil
}

// calError marks a failure to produce an engineering value after the raw
// value was read.
type calError struct{ err error }

func (e *calError) Error() string { return e.err.Error() }
func (e *calError) Unwrap() error { return e.err }
