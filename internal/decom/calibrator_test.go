package decom

import (
	"errors"
	"math"
	"testing"

	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

type mapResolver map[*mdb.Parameter]value.Value

func (m mapResolver) Resolve(ref mdb.ParameterRef) (value.Value, bool) {
	v, ok := m[ref.Parameter]
	return v, ok
}

func TestEvalPolynomial(t *testing.T) {
	cases := []struct {
		c    []float64
		x    float64
		want float64
	}{
		{[]float64{7}, math.Inf(1), 7},
		{[]float64{1, 2}, 3, 7},
		{[]float64{0, 0, 1}, -4, 16},
		{nil, 5, 0},
	}
	for _, tc := range cases {
		if got := EvalPolynomial(tc.c, tc.x); got != tc.want {
			t.Errorf("EvalPolynomial(%v, %g) = %g, want %g", tc.c, tc.x, got, tc.want)
		}
	}
}

func TestEvalSpline(t *testing.T) {
	pts := []mdb.SplinePoint{{Raw: 0, Calibrated: 0}, {Raw: 10, Calibrated: 100}, {Raw: 20, Calibrated: 150}}
	cases := []struct {
		x, want float64
	}{
		{0, 0}, {10, 100}, {20, 150}, // knots are exact
		{5, 50}, {15, 125},
		{-10, -100}, {30, 200}, // edge segments extrapolate
	}
	for _, tc := range cases {
		got, err := EvalSpline(pts, tc.x)
		if err != nil {
			t.Fatalf("EvalSpline(%g): %v", tc.x, err)
		}
		if got != tc.want {
			t.Errorf("EvalSpline(%g) = %g, want %g", tc.x, got, tc.want)
		}
	}
	if _, err := EvalSpline(pts[:1], 1); !errors.Is(err, ErrCalibrationDomain) {
		t.Fatalf("single knot: got %v", err)
	}
}

func TestEvalExpression(t *testing.T) {
	gain := &mdb.Parameter{NameDescription: mdb.NameDescription{Name: "gain"}}
	r := mapResolver{gain: value.Float(2)}
	op := func(o mdb.MathOperator) mdb.MathElement { return mdb.MathElement{Kind: mdb.Operator, Operator: o} }
	num := func(f float64) mdb.MathElement { return mdb.MathElement{Kind: mdb.ValueOperand, Value: f} }
	x := mdb.MathElement{Kind: mdb.ThisParameterOperand}
	ref := mdb.MathElement{Kind: mdb.ParameterOperand, Ref: &mdb.ParameterRef{Parameter: gain}}

	cases := []struct {
		name string
		els  []mdb.MathElement
		want float64
	}{
		{"scale", []mdb.MathElement{x, ref, op(mdb.OpMul), num(1), op(mdb.OpAdd)}, 11},
		{"swap", []mdb.MathElement{num(1), x, op(mdb.OpSwap), op(mdb.OpSub)}, 4},
		{"dup", []mdb.MathElement{x, op(mdb.OpDup), op(mdb.OpMul)}, 25},
		{"compare", []mdb.MathElement{x, num(3), op(mdb.OpGt)}, 1},
		{"shift", []mdb.MathElement{x, num(2), op(mdb.OpShiftLeft)}, 20},
	}
	for _, tc := range cases {
		got, err := EvalExpression(tc.els, 5, r)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s = %g, want %g", tc.name, got, tc.want)
		}
	}

	_, err := EvalExpression([]mdb.MathElement{x, op(mdb.OpAdd)}, 5, r)
	if !errors.Is(err, ErrStackUnderflow) || !errors.Is(err, ErrCalibrationDomain) {
		t.Fatalf("underflow: got %v", err)
	}
	_, err = EvalExpression([]mdb.MathElement{x, ref, op(mdb.OpAdd)}, 5, mapResolver{})
	if !errors.Is(err, ErrUnresolvedReference) {
		t.Fatalf("unresolved: got %v", err)
	}
	if _, err = EvalExpression(nil, 5, r); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("empty: got %v", err)
	}
}

func TestSelectCalibrator(t *testing.T) {
	mode := &mdb.Parameter{NameDescription: mdb.NameDescription{Name: "mode"}}
	hot := &mdb.PolynomialCalibrator{Coefficients: []float64{0, 2}}
	def := &mdb.PolynomialCalibrator{Coefficients: []float64{0, 1}}
	cal := &mdb.Calibration{
		DefaultCalibrator: def,
		ContextCalibrators: []mdb.ContextCalibrator{{
			Context:    &mdb.Comparison{Ref: mdb.ParameterRef{Parameter: mode}, Value: "1"},
			Calibrator: hot,
		}},
	}
	mode.Type = &mdb.IntegerParameterType{}
	if got := SelectCalibrator(cal, mapResolver{mode: value.Uint(1)}); got != hot {
		t.Fatalf("context match: got %v", got)
	}
	if got := SelectCalibrator(cal, mapResolver{mode: value.Uint(0)}); got != def {
		t.Fatalf("no match: got %v", got)
	}
	if got := SelectCalibrator(cal, mapResolver{}); got != def {
		t.Fatalf("missing value: got %v", got)
	}
	if SelectCalibrator(nil, nil) != nil {
		t.Fatal("nil calibration")
	}
}
