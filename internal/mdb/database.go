package mdb

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"example.com/tlmdecom/internal/value"
)

// Database is a validated, immutable schema with name indexes and the
// container inheritance index.
type Database struct {
	root *SpaceSystem

	containers index[*SequenceContainer]
	parameters index[*Parameter]
	types      index[ParameterType]

	inheritors map[*SequenceContainer][]*SequenceContainer
}

type index[T any] struct {
	order  []T
	byName map[string]T
	simple map[string][]T
}

func newIndex[T any]() index[T] {
	return index[T]{byName: map[string]T{}, simple: map[string][]T{}}
}

func (ix *index[T]) add(qn, name string, item T) bool {
	if _, dup := ix.byName[qn]; dup {
		return false
	}
	ix.order = append(ix.order, item)
	ix.byName[qn] = item
	ix.simple[name] = append(ix.simple[name], item)
	return true
}

// lookup resolves a qualified name, then a simple name when it is unique.
func (ix *index[T]) lookup(name string) (T, bool) {
	if v, ok := ix.byName[name]; ok {
		return v, true
	}
	var zero T
	if strings.HasPrefix(name, "/") {
		return zero, false
	}
	if c := ix.simple[name]; len(c) == 1 {
		return c[0], true
	}
	return zero, false
}

// NewDatabase assigns qualified names, registers every item reachable from
// root, validates the schema and builds the lookup and inheritance indexes.
// The schema must not be modified afterwards.
func NewDatabase(root *SpaceSystem) (*Database, error) {
	if root == nil {
		return nil, &InconsistencyError{Subject: "/", Reason: "no root space system"}
	}
	if root.Name == "" {
		root.Name = "root"
	}
	db := &Database{
		root:       root,
		containers: newIndex[*SequenceContainer](),
		parameters: newIndex[*Parameter](),
		types:      newIndex[ParameterType](),
		inheritors: map[*SequenceContainer][]*SequenceContainer{},
	}
	b := &builder{
		db:         db,
		seenTypes:  map[ParameterType]bool{},
		seenParams: map[*Parameter]bool{},
		seenConts:  map[*SequenceContainer]bool{},
	}
	b.addSystem(root, "")
	// walking a container may register more containers
	for i := 0; i < len(db.containers.order); i++ {
		b.walkContainer(db.containers.order[i])
	}
	if len(b.probs) > 0 {
		return nil, b.probs.err()
	}

	b.probs = append(b.probs, validate(db)...)
	if len(b.probs) > 0 {
		return nil, b.probs.err()
	}

	for _, c := range db.containers.order {
		if c.Base != nil {
			db.inheritors[c.Base] = append(db.inheritors[c.Base], c)
		}
	}
	for _, t := range db.types.order {
		prepareCalibrators(t)
	}
	b.typeLiterals()
	if len(b.probs) > 0 {
		return nil, b.probs.err()
	}
	return db, nil
}

// Root returns the root space system.
func (db *Database) Root() *SpaceSystem { return db.root }

// Container finds a container by qualified name or unique simple name.
func (db *Database) Container(name string) (*SequenceContainer, bool) {
	return db.containers.lookup(name)
}

// Parameter finds a parameter by qualified name or unique simple name.
func (db *Database) Parameter(name string) (*Parameter, bool) {
	return db.parameters.lookup(name)
}

// ParameterType finds a named type by qualified name or unique simple name.
func (db *Database) ParameterType(name string) (ParameterType, bool) {
	return db.types.lookup(name)
}

// Containers returns every container in declaration order.
func (db *Database) Containers() []*SequenceContainer { return db.containers.order }

func (db *Database) Parameters() []*Parameter { return db.parameters.order }

func (db *Database) ParameterTypes() []ParameterType { return db.types.order }

// Inheritors returns the direct subclasses of c in declaration order.
func (db *Database) Inheritors(c *SequenceContainer) []*SequenceContainer {
	return db.inheritors[c]
}

// RootContainers returns the containers without a base.
func (db *Database) RootContainers() []*SequenceContainer {
	var out []*SequenceContainer
	for _, c := range db.containers.order {
		if c.Base == nil {
			out = append(out, c)
		}
	}
	return out
}

type builder struct {
	db    *Database
	probs problems

	seenTypes  map[ParameterType]bool
	seenParams map[*Parameter]bool
	seenConts  map[*SequenceContainer]bool

	criteria []MatchCriteria
}

func join(prefix, name string) string {
	if prefix == "" {
		return "/" + name
	}
	return prefix + "/" + name
}

func (b *builder) addSystem(ss *SpaceSystem, parent string) {
	ss.QualifiedName = join(parent, ss.Name)
	qn := ss.QualifiedName
	for _, t := range ss.ParameterTypes {
		b.addType(t, qn)
	}
	for _, p := range ss.Parameters {
		b.addParameter(p, qn)
	}
	for _, c := range ss.Containers {
		b.addContainer(c, qn)
	}
	for _, sub := range ss.SubSystems {
		if sub.Name == "" {
			b.probs.add(qn, "space system without a name")
			continue
		}
		b.addSystem(sub, qn)
	}
}

// scope returns the space system path of an already registered item.
func scope(nd *NameDescription) string {
	qn := nd.Qualified()
	if !strings.HasPrefix(qn, "/") {
		return ""
	}
	return path.Dir(qn)
}

func (b *builder) addType(t ParameterType, prefix string) {
	if t == nil || b.seenTypes[t] {
		return
	}
	b.seenTypes[t] = true
	nd := &t.Base().NameDescription
	if nd.Name != "" {
		if nd.QualifiedName == "" {
			nd.QualifiedName = join(prefix, nd.Name)
		}
		if !b.db.types.add(nd.QualifiedName, nd.Name, t) {
			b.probs.add(nd.QualifiedName, "duplicate parameter type name")
		}
	}
	b.walkType(t, prefix)
}

func (b *builder) walkType(t ParameterType, prefix string) {
	base := t.Base()
	b.walkEncoding(base.Encoding, prefix)
	switch t := t.(type) {
	case *IntegerParameterType:
		for _, ca := range t.ContextAlarms {
			b.walkCriteria(ca.Context, prefix)
		}
	case *FloatParameterType:
		for _, ca := range t.ContextAlarms {
			b.walkCriteria(ca.Context, prefix)
		}
	case *EnumeratedParameterType:
		for _, ca := range t.ContextAlarms {
			b.walkCriteria(ca.Context, prefix)
		}
	case *AbsoluteTimeParameterType:
		if t.OffsetFrom != nil {
			b.walkRef(t.OffsetFrom, prefix)
		}
	case *ArrayParameterType:
		b.addType(t.ElementType, prefix)
		for _, d := range t.Dims {
			b.walkIntegerValue(d, prefix)
		}
	case *AggregateParameterType:
		for _, m := range t.Members {
			b.addType(m.Type, prefix)
		}
	}
}

func (b *builder) walkEncoding(enc DataEncoding, prefix string) {
	var cal *Calibration
	switch e := enc.(type) {
	case *IntegerDataEncoding:
		cal = &e.Calibration
	case *FloatDataEncoding:
		cal = &e.Calibration
	case *BinaryDataEncoding:
		b.walkIntegerValue(e.Size, prefix)
	}
	if cal == nil {
		return
	}
	b.walkCalibrator(cal.DefaultCalibrator, prefix)
	for _, cc := range cal.ContextCalibrators {
		b.walkCriteria(cc.Context, prefix)
		b.walkCalibrator(cc.Calibrator, prefix)
	}
}

func (b *builder) walkCalibrator(c Calibrator, prefix string) {
	m, ok := c.(*MathOperationCalibrator)
	if !ok {
		return
	}
	for _, el := range m.Elements {
		if el.Kind == ParameterOperand && el.Ref != nil {
			b.walkRef(el.Ref, prefix)
		}
	}
}

func (b *builder) walkIntegerValue(iv IntegerValue, prefix string) {
	if dv, ok := iv.(*DynamicValue); ok {
		b.walkRef(&dv.Ref, prefix)
	}
}

func (b *builder) walkRef(r *ParameterRef, prefix string) {
	if r.Parameter == nil {
		b.probs.add(prefix, "parameter reference without a parameter")
		return
	}
	b.addParameter(r.Parameter, prefix)
}

func (b *builder) walkCriteria(mc MatchCriteria, prefix string) {
	if mc == nil {
		return
	}
	b.criteria = append(b.criteria, mc)
	for _, r := range CriteriaRefs(mc) {
		if r.Parameter == nil {
			b.probs.add(prefix, "criteria references no parameter")
			continue
		}
		b.addParameter(r.Parameter, prefix)
	}
}

func (b *builder) addParameter(p *Parameter, prefix string) {
	if p == nil || b.seenParams[p] {
		return
	}
	b.seenParams[p] = true
	if p.Name == "" {
		b.probs.add(prefix, "parameter without a name")
		return
	}
	if p.QualifiedName == "" {
		p.QualifiedName = join(prefix, p.Name)
	}
	if !b.db.parameters.add(p.QualifiedName, p.Name, p) {
		b.probs.add(p.QualifiedName, "duplicate parameter name")
	}
	if p.Type == nil {
		b.probs.add(p.QualifiedName, "parameter has no type")
		return
	}
	b.addType(p.Type, prefix)
}

func (b *builder) addContainer(c *SequenceContainer, prefix string) {
	if c == nil || b.seenConts[c] {
		return
	}
	b.seenConts[c] = true
	if c.Name == "" {
		b.probs.add(prefix, "container without a name")
		return
	}
	if c.QualifiedName == "" {
		c.QualifiedName = join(prefix, c.Name)
	}
	if !b.db.containers.add(c.QualifiedName, c.Name, c) {
		b.probs.add(c.QualifiedName, "duplicate container name")
	}
}

func (b *builder) walkContainer(c *SequenceContainer) {
	prefix := scope(&c.NameDescription)
	if c.Base != nil {
		b.addContainer(c.Base, prefix)
	}
	b.walkCriteria(c.Restriction, prefix)
	for _, e := range c.Entries {
		eb := e.Entry()
		b.walkCriteria(eb.IncludeCondition, prefix)
		if eb.Repeat != nil {
			b.walkIntegerValue(eb.Repeat.Count, prefix)
		}
		switch e := e.(type) {
		case *ParameterEntry:
			b.addParameter(e.Parameter, prefix)
		case *ArrayParameterEntry:
			b.addParameter(e.Parameter, prefix)
			for _, d := range e.Dims {
				b.walkIntegerValue(d, prefix)
			}
		case *ContainerEntry:
			b.addContainer(e.Container, prefix)
		}
	}
}

// prepareCalibrators sorts spline points by raw value.
func prepareCalibrators(t ParameterType) {
	cal := CalibrationOf(t)
	if cal == nil {
		return
	}
	sortSpline(cal.DefaultCalibrator)
	for _, cc := range cal.ContextCalibrators {
		sortSpline(cc.Calibrator)
	}
}

func sortSpline(c Calibrator) {
	if s, ok := c.(*SplineCalibrator); ok {
		sort.SliceStable(s.Points, func(i, j int) bool { return s.Points[i].Raw < s.Points[j].Raw })
	}
}

// typeLiterals converts every comparison literal to a value of the kind its
// reference produces.
func (b *builder) typeLiterals() {
	var visit func(MatchCriteria)
	visit = func(mc MatchCriteria) {
		switch c := mc.(type) {
		case *Comparison:
			lit, err := TypedLiteral(c.Ref, c.Value)
			if err != nil {
				b.probs.add(c.Ref.String(), "%v", err)
				return
			}
			c.literal = lit
		case *ComparisonList:
			for _, cmp := range c.Comparisons {
				visit(cmp)
			}
		case *Condition:
			if c.Right != nil {
				return
			}
			lit, err := TypedLiteral(c.Left, c.RightValue)
			if err != nil {
				b.probs.add(c.Left.String(), "%v", err)
				return
			}
			c.literal = lit
		case *ANDedConditions:
			for _, e := range c.Expressions {
				visit(e)
			}
		case *ORedConditions:
			for _, e := range c.Expressions {
				visit(e)
			}
		}
	}
	for _, mc := range b.criteria {
		visit(mc)
	}
}

// TypedLiteral parses lit as a value comparable with what ref resolves to.
// Enumeration labels and boolean one/zero strings are accepted for
// engineering values.
func TypedLiteral(ref ParameterRef, lit string) (value.Value, error) {
	if ref.Parameter == nil || ref.Parameter.Type == nil {
		return value.Value{}, fmt.Errorf("untyped reference")
	}
	t, ok := MemberType(ref.Parameter.Type, ref.MemberPath)
	if !ok {
		return value.Value{}, fmt.Errorf("no member %s", strings.Join(ref.MemberPath, "."))
	}
	if ref.UseRawValue {
		return value.ParseLiteral(lit, RawKind(t))
	}
	lit = strings.TrimSpace(lit)
	switch t := t.(type) {
	case *EnumeratedParameterType:
		if v, ok := t.ValueOf(lit); ok {
			return value.Enum(v, lit), nil
		}
		if v, err := strconv.ParseInt(lit, 0, 64); err == nil {
			label, _ := t.Label(v)
			return value.Enum(v, label), nil
		}
		return value.Value{}, fmt.Errorf("%q is not a label of %s", lit, t.TypeName())
	case *BooleanParameterType:
		switch {
		case t.OneStringValue != "" && lit == t.OneStringValue:
			return value.Bool(true), nil
		case t.ZeroStringValue != "" && lit == t.ZeroStringValue:
			return value.Bool(false), nil
		}
	}
	return value.ParseLiteral(lit, EngKind(t))
}
