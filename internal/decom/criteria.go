package decom

import (
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

// Resolver supplies parameter values to criteria and expressions. ok is
// false when the parameter has no usable value.
type Resolver interface {
	Resolve(ref mdb.ParameterRef) (value.Value, bool)
}

// Evaluate reports whether mc holds. A reference without a value makes the
// comparison touching it false. A nil criteria holds.
func Evaluate(mc mdb.MatchCriteria, r Resolver) bool {
	if mc == nil {
		return true
	}
	if r == nil {
		return false
	}
	switch c := mc.(type) {
	case *mdb.Comparison:
		return compareLiteral(r, c.Ref, c.Operator, c.Literal(), c.Value)
	case *mdb.ComparisonList:
		for _, cmp := range c.Comparisons {
			if !Evaluate(cmp, r) {
				return false
			}
		}
		return true
	case *mdb.Condition:
		if c.Right == nil {
			return compareLiteral(r, c.Left, c.Operator, c.Literal(), c.RightValue)
		}
		left, ok := r.Resolve(c.Left)
		if !ok {
			return false
		}
		right, ok := r.Resolve(*c.Right)
		if !ok {
			return false
		}
		return holds(c.Operator, left, right)
	case *mdb.ANDedConditions:
		for _, e := range c.Expressions {
			if !Evaluate(e, r) {
				return false
			}
		}
		return true
	case *mdb.ORedConditions:
		for _, e := range c.Expressions {
			if Evaluate(e, r) {
				return true
			}
		}
		return false
	}
	return false
}

func compareLiteral(r Resolver, ref mdb.ParameterRef, op mdb.OperatorType, lit value.Value, text string) bool {
	v, ok := r.Resolve(ref)
	if !ok {
		return false
	}
	if !lit.IsValid() {
		// criteria built outside a Database
		var err error
		if lit, err = mdb.TypedLiteral(ref, text); err != nil {
			return false
		}
	}
	return holds(op, v, lit)
}

func holds(op mdb.OperatorType, a, b value.Value) bool {
	c, ok := value.Compare(a, b)
	if !ok {
		return false
	}
	return op.Holds(c)
}
