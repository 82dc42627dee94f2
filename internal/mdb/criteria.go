package mdb

import (
	"fmt"
	"strings"

	"example.com/tlmdecom/internal/value"
)

// MatchCriteria is a predicate over decoded values. The variants are
// *Comparison, *ComparisonList, *Condition, *ANDedConditions and
// *ORedConditions; the last three form boolean expression trees.
type MatchCriteria interface {
	isMatchCriteria()
}

// BooleanExpression is a node of a boolean expression tree.
type BooleanExpression interface {
	MatchCriteria
	isBooleanExpression()
}

type OperatorType uint8

const (
	Equality OperatorType = iota
	Inequality
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
)

var operatorSymbols = [...]string{
	Equality:       "==",
	Inequality:     "!=",
	LessThan:       "<",
	LessOrEqual:    "<=",
	GreaterThan:    ">",
	GreaterOrEqual: ">=",
}

func (op OperatorType) String() string {
	if int(op) < len(operatorSymbols) {
		return operatorSymbols[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// ParseOperator accepts the symbolic and the XTCE spelled-out operators.
func ParseOperator(s string) (OperatorType, error) {
	switch strings.TrimSpace(s) {
	case "", "=", "==", "eq":
		return Equality, nil
	case "!=", "<>", "ne":
		return Inequality, nil
	case "<", "lt", "&lt;":
		return LessThan, nil
	case "<=", "le", "&lt;=":
		return LessOrEqual, nil
	case ">", "gt", "&gt;":
		return GreaterThan, nil
	case ">=", "ge", "&gt;=":
		return GreaterOrEqual, nil
	}
	return Equality, fmt.Errorf("unknown comparison operator %q", s)
}

// Holds reports whether the comparison result c (-1, 0, 1) satisfies op.
func (op OperatorType) Holds(c int) bool {
	switch op {
	case Equality:
		return c == 0
	case Inequality:
		return c != 0
	case LessThan:
		return c < 0
	case LessOrEqual:
		return c <= 0
	case GreaterThan:
		return c > 0
	case GreaterOrEqual:
		return c >= 0
	}
	return false
}

// Comparison compares one parameter against a literal.
type Comparison struct {
	Ref      ParameterRef
	Operator OperatorType
	Value    string

	literal value.Value
}

// Literal returns the literal typed for the referenced parameter. It is
// only set once the comparison belongs to a Database.
func (c *Comparison) Literal() value.Value { return c.literal }

func (*Comparison) isMatchCriteria() {}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Ref, c.Operator, c.Value)
}

// ComparisonList holds when every comparison holds.
type ComparisonList struct {
	Comparisons []*Comparison
}

func (*ComparisonList) isMatchCriteria() {}

// Condition compares a parameter with another parameter or, when Right is
// nil, with RightValue.
type Condition struct {
	Left       ParameterRef
	Operator   OperatorType
	Right      *ParameterRef
	RightValue string

	literal value.Value
}

// Literal returns RightValue typed for the left parameter.
func (c *Condition) Literal() value.Value { return c.literal }

func (*Condition) isMatchCriteria()     {}
func (*Condition) isBooleanExpression() {}

type ANDedConditions struct {
	Expressions []BooleanExpression
}

func (*ANDedConditions) isMatchCriteria()     {}
func (*ANDedConditions) isBooleanExpression() {}

type ORedConditions struct {
	Expressions []BooleanExpression
}

func (*ORedConditions) isMatchCriteria()     {}
func (*ORedConditions) isBooleanExpression() {}

// CriteriaRefs lists every parameter reference inside mc.
func CriteriaRefs(mc MatchCriteria) []ParameterRef {
	var refs []ParameterRef
	var walk func(MatchCriteria)
	walk = func(mc MatchCriteria) {
		switch c := mc.(type) {
		case *Comparison:
			refs = append(refs, c.Ref)
		case *ComparisonList:
			for _, cmp := range c.Comparisons {
				refs = append(refs, cmp.Ref)
			}
		case *Condition:
			refs = append(refs, c.Left)
			if c.Right != nil {
				refs = append(refs, *c.Right)
			}
		case *ANDedConditions:
			for _, e := range c.Expressions {
				walk(e)
			}
		case *ORedConditions:
			for _, e := range c.Expressions {
				walk(e)
			}
		}
	}
	if mc != nil {
		walk(mc)
	}
	return refs
}

// DescribeCriteria renders mc in a compact infix form for listings.
func DescribeCriteria(mc MatchCriteria) string {
	switch c := mc.(type) {
	case nil:
		return ""
	case *Comparison:
		return c.String()
	case *ComparisonList:
		parts := make([]string, len(c.Comparisons))
		for i, cmp := range c.Comparisons {
			parts[i] = cmp.String()
		}
		return strings.Join(parts, " && ")
	case *Condition:
		right := c.RightValue
		if c.Right != nil {
			right = c.Right.String()
		}
		return fmt.Sprintf("%s %s %s", c.Left, c.Operator, right)
	case *ANDedConditions:
		return joinExpressions(c.Expressions, " && ")
	case *ORedConditions:
		return joinExpressions(c.Expressions, " || ")
	}
	return fmt.Sprintf("%T", mc)
}

func joinExpressions(exprs []BooleanExpression, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = DescribeCriteria(e)
	}
	return "(" + strings.Join(parts, sep) + ")"
}
