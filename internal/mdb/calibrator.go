package mdb

import "strconv"

// Calibrator maps a raw numeric value to an engineering value. The variants
// are PolynomialCalibrator, SplineCalibrator and MathOperationCalibrator.
type Calibrator interface {
	isCalibrator()
}

// PolynomialCalibrator evaluates sum(Coefficients[i] * x^i).
type PolynomialCalibrator struct {
	Coefficients []float64
}

func (*PolynomialCalibrator) isCalibrator() {}

type SplinePoint struct {
	Raw        float64
	Calibrated float64
}

// SplineCalibrator interpolates linearly between points and extrapolates
// beyond the end points with the slope of the edge segment. NewDatabase
// sorts Points by Raw.
type SplineCalibrator struct {
	Points []SplinePoint
}

func (*SplineCalibrator) isCalibrator() {}

// MathOperationCalibrator evaluates a postfix expression.
type MathOperationCalibrator struct {
	Elements []MathElement
}

func (*MathOperationCalibrator) isCalibrator() {}

type MathElementKind uint8

const (
	ValueOperand MathElementKind = iota
	ThisParameterOperand
	ParameterOperand
	Operator
)

// MathElement is one token of a postfix expression.
type MathElement struct {
	Kind     MathElementKind
	Value    float64
	Ref      *ParameterRef
	Operator MathOperator
}

func (e MathElement) String() string {
	switch e.Kind {
	case ValueOperand:
		return strconv.FormatFloat(e.Value, 'g', -1, 64)
	case ThisParameterOperand:
		return "x"
	case ParameterOperand:
		if e.Ref == nil {
			return "$?"
		}
		return "$" + e.Ref.String()
	}
	return string(e.Operator)
}

type MathOperator string

const (
	OpAdd        MathOperator = "+"
	OpSub        MathOperator = "-"
	OpMul        MathOperator = "*"
	OpDiv        MathOperator = "/"
	OpMod        MathOperator = "%"
	OpPow        MathOperator = "^"
	OpYPowX      MathOperator = "y^x"
	OpLn         MathOperator = "ln"
	OpLog        MathOperator = "log"
	OpExp        MathOperator = "e^x"
	OpInv        MathOperator = "1/x"
	OpFact       MathOperator = "x!"
	OpTan        MathOperator = "tan"
	OpCos        MathOperator = "cos"
	OpSin        MathOperator = "sin"
	OpAtan       MathOperator = "atan"
	OpAtan2      MathOperator = "atan2"
	OpTanh       MathOperator = "tanh"
	OpCosh       MathOperator = "cosh"
	OpSinh       MathOperator = "sinh"
	OpAsin       MathOperator = "asin"
	OpAcos       MathOperator = "acos"
	OpAbs        MathOperator = "abs"
	OpSqrt       MathOperator = "sqrt"
	OpEq         MathOperator = "=="
	OpNe         MathOperator = "!="
	OpLt         MathOperator = "<"
	OpLe         MathOperator = "<="
	OpGt         MathOperator = ">"
	OpGe         MathOperator = ">="
	OpBitAnd     MathOperator = "&"
	OpBitOr      MathOperator = "|"
	OpAnd        MathOperator = "&&"
	OpOr         MathOperator = "||"
	OpNot        MathOperator = "!"
	OpBitNot     MathOperator = "~"
	OpShiftLeft  MathOperator = "<<"
	OpShiftRight MathOperator = ">>"
	OpSwap       MathOperator = "swap"
	OpDrop       MathOperator = "drop"
	OpDup        MathOperator = "dup"
	OpOver       MathOperator = "over"
)

// Arity returns how many operands the operator pops and whether the
// operator is known.
func (op MathOperator) Arity() (int, bool) {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpYPowX, OpAtan2,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpBitAnd, OpBitOr, OpAnd, OpOr, OpShiftLeft, OpShiftRight,
		OpSwap, OpOver:
		return 2, true
	case OpLn, OpLog, OpExp, OpInv, OpFact, OpTan, OpCos, OpSin, OpAtan,
		OpTanh, OpCosh, OpSinh, OpAsin, OpAcos, OpAbs, OpSqrt, OpNot, OpBitNot,
		OpDrop, OpDup:
		return 1, true
	}
	return 0, false
}

// ContextCalibrator applies Calibrator when Context matches.
type ContextCalibrator struct {
	Context    MatchCriteria
	Calibrator Calibrator
}
