package decom

import (
	"fmt"
	"math"
	"sort"

	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

// SelectCalibrator returns the calibrator of the first context whose
// criteria holds, the default calibrator otherwise, or nil.
func SelectCalibrator(cal *mdb.Calibration, r Resolver) mdb.Calibrator {
	if cal == nil {
		return nil
	}
	for _, cc := range cal.ContextCalibrators {
		if cc.Context != nil && Evaluate(cc.Context, r) {
			return cc.Calibrator
		}
	}
	return cal.DefaultCalibrator
}

// Calibrate applies c to x. r resolves expression operands and may be nil
// when c does not reference other parameters.
func Calibrate(c mdb.Calibrator, x float64, r Resolver) (float64, error) {
	switch c := c.(type) {
	case *mdb.PolynomialCalibrator:
		return EvalPolynomial(c.Coefficients, x), nil
	case *mdb.SplineCalibrator:
		return EvalSpline(c.Points, x)
	case *mdb.MathOperationCalibrator:
		return EvalExpression(c.Elements, x, r)
	case nil:
		return x, nil
	}
	return 0, fmt.Errorf("%w: calibrator %T", ErrUnsupportedConstruct, c)
}

// EvalPolynomial evaluates sum(c[i] * x^i) with Horner's method.
func EvalPolynomial(c []float64, x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	y := c[len(c)-1]
	for i := len(c) - 2; i >= 0; i-- {
		y = y*x + c[i]
	}
	return y
}

// EvalSpline interpolates linearly between points sorted by raw value and
// extrapolates with the edge segments.
func EvalSpline(points []mdb.SplinePoint, x float64) (float64, error) {
	n := len(points)
	if n < 2 {
		return 0, fmt.Errorf("%w: spline with %d points", ErrCalibrationDomain, n)
	}
	// first knot with Raw >= x
	i := sort.Search(n, func(i int) bool { return points[i].Raw >= x })
	if i < n && points[i].Raw == x {
		return points[i].Calibrated, nil
	}
	switch {
	case i == 0:
		i = 1
	case i == n:
		i = n - 1
	}
	p0, p1 := points[i-1], points[i]
	if p1.Raw == p0.Raw {
		return p1.Calibrated, nil
	}
	return p0.Calibrated + (x-p0.Raw)*(p1.Calibrated-p0.Calibrated)/(p1.Raw-p0.Raw), nil
}

// EvalExpression runs a postfix expression with x as the value of the
// parameter being calibrated.
func EvalExpression(els []mdb.MathElement, x float64, r Resolver) (float64, error) {
	stack := make([]float64, 0, len(els))
	for _, el := range els {
		switch el.Kind {
		case mdb.ValueOperand:
			stack = append(stack, el.Value)
		case mdb.ThisParameterOperand:
			stack = append(stack, x)
		case mdb.ParameterOperand:
			v, err := operand(el.Ref, r)
			if err != nil {
				return 0, err
			}
			stack = append(stack, v)
		case mdb.Operator:
			var err error
			if stack, err = apply(el.Operator, stack); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("%w: expression element kind %d", ErrUnsupportedConstruct, el.Kind)
		}
	}
	if len(stack) == 0 {
		return 0, fmt.Errorf("%w: %w: expression left no value", ErrCalibrationDomain, ErrStackUnderflow)
	}
	return stack[len(stack)-1], nil
}

func operand(ref *mdb.ParameterRef, r Resolver) (float64, error) {
	if ref == nil {
		return 0, fmt.Errorf("%w: %w: operand without parameter", ErrCalibrationDomain, ErrUnresolvedReference)
	}
	var v value.Value
	var ok bool
	if r != nil {
		v, ok = r.Resolve(*ref)
	}
	if !ok {
		v, ok = initialOf(*ref)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %w: %s", ErrCalibrationDomain, ErrUnresolvedReference, ref)
	}
	f, ok := v.AsFloat()
	if !ok {
		return 0, fmt.Errorf("%w: operand %s is %s", ErrCalibrationDomain, ref, v.Kind())
	}
	return f, nil
}

// initialOf returns the initial value of the referenced parameter type.
func initialOf(ref mdb.ParameterRef) (value.Value, bool) {
	if ref.Parameter == nil || ref.Parameter.Type == nil {
		return value.Value{}, false
	}
	t, ok := mdb.MemberType(ref.Parameter.Type, ref.MemberPath)
	if !ok {
		return value.Value{}, false
	}
	v := t.Base().Initial
	return v, v.IsValid()
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func apply(op mdb.MathOperator, stack []float64) ([]float64, error) {
	n, ok := op.Arity()
	if !ok {
		return nil, fmt.Errorf("%w: operator %q", ErrUnsupportedConstruct, op)
	}
	if len(stack) < n {
		return nil, fmt.Errorf("%w: %w: %q needs %d operands, have %d", ErrCalibrationDomain, ErrStackUnderflow, op, n, len(stack))
	}
	if n == 1 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch op {
		case mdb.OpDrop:
			return stack, nil
		case mdb.OpDup:
			return append(stack, a, a), nil
		}
		return append(stack, unary(op, a)), nil
	}
	a, b := stack[len(stack)-2], stack[len(stack)-1]
	stack = stack[:len(stack)-2]
	switch op {
	case mdb.OpSwap:
		return append(stack, b, a), nil
	case mdb.OpOver:
		return append(stack, a, b, a), nil
	}
	return append(stack, binary(op, a, b)), nil
}

func unary(op mdb.MathOperator, a float64) float64 {
	switch op {
	case mdb.OpLn:
		return math.Log(a)
	case mdb.OpLog:
		return math.Log10(a)
	case mdb.OpExp:
		return math.Exp(a)
	case mdb.OpInv:
		return 1 / a
	case mdb.OpFact:
		return math.Gamma(math.Floor(a) + 1)
	case mdb.OpTan:
		return math.Tan(a)
	case mdb.OpCos:
		return math.Cos(a)
	case mdb.OpSin:
		return math.Sin(a)
	case mdb.OpAtan:
		return math.Atan(a)
	case mdb.OpTanh:
		return math.Tanh(a)
	case mdb.OpCosh:
		return math.Cosh(a)
	case mdb.OpSinh:
		return math.Sinh(a)
	case mdb.OpAsin:
		return math.Asin(a)
	case mdb.OpAcos:
		return math.Acos(a)
	case mdb.OpAbs:
		return math.Abs(a)
	case mdb.OpSqrt:
		return math.Sqrt(a)
	case mdb.OpNot:
		return b2f(a == 0)
	case mdb.OpBitNot:
		return float64(^int64(a))
	}
	return math.NaN()
}

func binary(op mdb.MathOperator, a, b float64) float64 {
	switch op {
	case mdb.OpAdd:
		return a + b
	case mdb.OpSub:
		return a - b
	case mdb.OpMul:
		return a * b
	case mdb.OpDiv:
		return a / b
	case mdb.OpMod:
		return math.Mod(a, b)
	case mdb.OpPow:
		return math.Pow(a, b)
	case mdb.OpYPowX:
		return math.Pow(b, a)
	case mdb.OpAtan2:
		return math.Atan2(a, b)
	case mdb.OpEq:
		return b2f(a == b)
	case mdb.OpNe:
		return b2f(a != b)
	case mdb.OpLt:
		return b2f(a < b)
	case mdb.OpLe:
		return b2f(a <= b)
	case mdb.OpGt:
		return b2f(a > b)
	case mdb.OpGe:
		return b2f(a >= b)
	case mdb.OpBitAnd:
		return float64(int64(a) & int64(b))
	case mdb.OpBitOr:
		return float64(int64(a) | int64(b))
	case mdb.OpAnd:
		return b2f(a != 0 && b != 0)
	case mdb.OpOr:
		return b2f(a != 0 || b != 0)
	case mdb.OpShiftLeft:
		return float64(int64(a) << uint(int64(b)))
	case mdb.OpShiftRight:
		return float64(int64(a) >> uint(int64(b)))
	}
	return math.NaN()
}
