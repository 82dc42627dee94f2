package mdb

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"example.com/tlmdecom/internal/bitbuf"
)

func validate(db *Database) problems {
	var p problems
	checkContainerCycles(db, &p)
	for _, t := range db.types.order {
		checkType(t, &p)
	}
	for _, prm := range db.parameters.order {
		if prm.Type != nil && prm.Type.Base().Name == "" {
			checkType(prm.Type, &p)
		}
	}
	for _, c := range db.containers.order {
		checkContainer(c, &p)
	}
	return p
}

// checkContainerCycles rejects cycles through base links and container
// entries. Containers are numbered by declaration order.
func checkContainerCycles(db *Database, p *problems) {
	n := len(db.containers.order)
	pos := make(map[*SequenceContainer]uint, n)
	for i, c := range db.containers.order {
		pos[c] = uint(i)
	}
	edges := func(c *SequenceContainer) []*SequenceContainer {
		var out []*SequenceContainer
		if c.Base != nil {
			out = append(out, c.Base)
		}
		for _, e := range c.Entries {
			if ce, ok := e.(*ContainerEntry); ok && ce.Container != nil {
				out = append(out, ce.Container)
			}
		}
		return out
	}
	visiting := bitset.New(uint(n))
	done := bitset.New(uint(n))
	var stack []string
	var visit func(c *SequenceContainer)
	visit = func(c *SequenceContainer) {
		i := pos[c]
		if done.Test(i) {
			return
		}
		if visiting.Test(i) {
			p.add(c.Qualified(), "cyclic container reference: %s -> %s", strings.Join(stack, " -> "), c.Qualified())
			return
		}
		visiting.Set(i)
		stack = append(stack, c.Qualified())
		for _, next := range edges(c) {
			visit(next)
		}
		stack = stack[:len(stack)-1]
		visiting.Clear(i)
		done.Set(i)
	}
	for _, c := range db.containers.order {
		visit(c)
	}
}

func checkType(t ParameterType, p *problems) {
	name := t.TypeName()
	if name == "" {
		name = "(anonymous type)"
	}
	if vr := t.Base().ValidRange; vr != nil && vr.Min > vr.Max {
		p.add(name, "valid range minimum %g above maximum %g", vr.Min, vr.Max)
	}
	checkEncoding(name, t.Base().Encoding, p)
	switch t := t.(type) {
	case *IntegerParameterType:
		if t.SizeInBits < 0 || t.SizeInBits > 64 {
			p.add(name, "integer size %d out of range 1..64", t.SizeInBits)
		}
		if e, ok := t.Encoding.(*IntegerDataEncoding); ok && t.SizeInBits > 0 && e.Size > t.SizeInBits && !e.HasCalibrator() {
			p.add(name, "encoding size %d exceeds type size %d", e.Size, t.SizeInBits)
		}
		if !t.Signed {
			if e, ok := t.Encoding.(*IntegerDataEncoding); ok && e.Encoding.Signed() && !e.HasCalibrator() {
				p.add(name, "unsigned type with %s encoding", e.Encoding)
			}
		}
		requireEncoding(name, t.Encoding, p, "integer", "float")
	case *FloatParameterType:
		if t.SizeInBits != 0 && t.SizeInBits != 32 && t.SizeInBits != 64 {
			p.add(name, "float size must be 32 or 64, got %d", t.SizeInBits)
		}
		requireEncoding(name, t.Encoding, p, "integer", "float")
	case *StringParameterType:
		requireEncoding(name, t.Encoding, p, "string")
	case *BooleanParameterType:
		requireEncoding(name, t.Encoding, p, "integer", "string")
	case *BinaryParameterType:
		requireEncoding(name, t.Encoding, p, "binary")
	case *EnumeratedParameterType:
		requireEncoding(name, t.Encoding, p, "integer", "float")
		labels := map[string]bool{}
		for _, e := range t.Enumerations {
			if labels[e.Label] {
				p.add(name, "duplicate enumeration label %q", e.Label)
			}
			labels[e.Label] = true
		}
		for _, r := range t.Ranges {
			if r.Min > r.Max {
				p.add(name, "enumeration range %q has minimum above maximum", r.Label)
			}
		}
	case *AbsoluteTimeParameterType:
		requireEncoding(name, t.Encoding, p, "integer", "float")
	case *ArrayParameterType:
		if t.ElementType == nil {
			p.add(name, "array without element type")
		} else if t.ElementType.Base().Name == "" {
			checkType(t.ElementType, p)
		}
		checkDims(name, t.Dims, p)
	case *AggregateParameterType:
		seen := map[string]bool{}
		for _, m := range t.Members {
			if m.Name == "" {
				p.add(name, "aggregate member without a name")
				continue
			}
			if seen[m.Name] {
				p.add(name, "duplicate aggregate member %q", m.Name)
			}
			seen[m.Name] = true
			if m.Type == nil {
				p.add(name, "member %q has no type", m.Name)
			} else if m.Type.Base().Name == "" {
				checkType(m.Type, p)
			}
		}
	default:
		p.add(name, "unsupported parameter type %T", t)
	}
}

func encodingKind(enc DataEncoding) string {
	switch enc.(type) {
	case *IntegerDataEncoding:
		return "integer"
	case *FloatDataEncoding:
		return "float"
	case *StringDataEncoding:
		return "string"
	case *BinaryDataEncoding:
		return "binary"
	}
	return ""
}

// requireEncoding accepts a nil encoding; entries check for that separately
// since a type may be used only inside an aggregate that is never decoded.
func requireEncoding(name string, enc DataEncoding, p *problems, kinds ...string) {
	if enc == nil {
		return
	}
	k := encodingKind(enc)
	for _, want := range kinds {
		if k == want {
			return
		}
	}
	p.add(name, "%s encoding not allowed, want %s", k, strings.Join(kinds, " or "))
}

func checkEncoding(name string, enc DataEncoding, p *problems) {
	switch e := enc.(type) {
	case nil:
	case *IntegerDataEncoding:
		if e.Size < 1 || e.Size > 64 {
			p.add(name, "integer encoding size %d out of range 1..64", e.Size)
		}
		checkOrder(name, e.Size, e.ByteOrder, p)
		checkCalibration(name, &e.Calibration, p)
	case *FloatDataEncoding:
		switch {
		case e.Encoding == IEEE754 && e.Size != 32 && e.Size != 64:
			p.add(name, "IEEE754 encoding size must be 32 or 64, got %d", e.Size)
		case e.Encoding == MILSTD1750A && e.Size != 32 && e.Size != 48:
			p.add(name, "MIL-STD-1750A encoding size must be 32 or 48, got %d", e.Size)
		}
		checkOrder(name, e.Size, e.ByteOrder, p)
		checkCalibration(name, &e.Calibration, p)
	case *StringDataEncoding:
		switch e.SizeType {
		case SizeFixed:
			if e.Size <= 0 || e.Size%8 != 0 {
				p.add(name, "fixed string size %d must be a positive multiple of 8", e.Size)
			}
		case SizeLeadingSize:
			if e.SizeOfSizeTag < 1 || e.SizeOfSizeTag > 64 {
				p.add(name, "size tag width %d out of range 1..64", e.SizeOfSizeTag)
			}
		}
		if e.MaxSizeInBits < 0 {
			p.add(name, "negative maximum string size")
		}
		switch strings.ToUpper(e.Charset) {
		case "", "UTF-8", "US-ASCII", "ISO-8859-1":
		default:
			p.add(name, "unsupported charset %q", e.Charset)
		}
	case *BinaryDataEncoding:
		switch s := e.Size.(type) {
		case nil:
			p.add(name, "binary encoding without a size")
		case *FixedIntegerValue:
			if s.Value < 0 || s.Value%8 != 0 {
				p.add(name, "binary size %d must be a non-negative multiple of 8", s.Value)
			}
		}
	default:
		p.add(name, "unsupported data encoding %T", enc)
	}
}

func checkOrder(name string, size int, order bitbuf.ByteOrder, p *problems) {
	if order == bitbuf.LeastSignificantByteFirst && size > 8 && size%8 != 0 {
		p.add(name, "little endian size %d is not a multiple of 8", size)
	}
}

func checkCalibration(name string, cal *Calibration, p *problems) {
	check := func(c Calibrator) {
		switch c := c.(type) {
		case nil, *PolynomialCalibrator, *SplineCalibrator:
		case *MathOperationCalibrator:
			for _, el := range c.Elements {
				if el.Kind != Operator {
					continue
				}
				if _, ok := el.Operator.Arity(); !ok {
					p.add(name, "unknown math operator %q", el.Operator)
				}
			}
		default:
			p.add(name, "unsupported calibrator %T", c)
		}
	}
	check(cal.DefaultCalibrator)
	for i, cc := range cal.ContextCalibrators {
		if cc.Context == nil {
			p.add(name, "context calibrator %d has no context", i)
		}
		check(cc.Calibrator)
	}
}

func checkDims(name string, dims []IntegerValue, p *problems) {
	for i, d := range dims {
		if f, ok := d.(*FixedIntegerValue); ok && f.Value < 0 {
			p.add(name, "dimension %d is negative", i)
		}
	}
}

func checkContainer(c *SequenceContainer, p *problems) {
	name := c.Qualified()
	for i, e := range c.Entries {
		subject := fmt.Sprintf("%s entry %d", name, i)
		eb := e.Entry()
		if eb.Repeat != nil {
			switch cnt := eb.Repeat.Count.(type) {
			case nil:
				p.add(subject, "repeat without a count")
			case *FixedIntegerValue:
				if cnt.Value < 0 {
					p.add(subject, "negative repeat count")
				}
			}
		}
		switch e := e.(type) {
		case *ParameterEntry:
			if e.Parameter == nil || e.Parameter.Type == nil {
				p.add(subject, "parameter entry without a typed parameter")
				continue
			}
			checkDecodable(subject, e.Parameter.Type, p)
		case *ArrayParameterEntry:
			if e.Parameter == nil || e.Parameter.Type == nil {
				p.add(subject, "array entry without a typed parameter")
				continue
			}
			at, ok := e.Parameter.Type.(*ArrayParameterType)
			if !ok {
				p.add(subject, "array entry for non-array parameter %s", e.Parameter.Qualified())
				continue
			}
			checkDims(subject, e.Dims, p)
			if len(e.Dims) == 0 && len(at.Dims) == 0 {
				p.add(subject, "array %s has no dimensions", e.Parameter.Qualified())
			}
			checkDecodable(subject, at, p)
		case *ContainerEntry:
			if e.Container == nil {
				p.add(subject, "container entry without a container")
			}
		case *FixedValueEntry:
			if e.SizeInBits <= 0 || e.SizeInBits > 8*len(e.BinaryValue) {
				p.add(subject, "fixed value size %d does not fit %d bytes", e.SizeInBits, len(e.BinaryValue))
			}
		default:
			p.add(subject, "unsupported entry %T", e)
		}
	}
}

// checkDecodable requires an encoding on every scalar reachable from t.
func checkDecodable(subject string, t ParameterType, p *problems) {
	switch t := t.(type) {
	case *ArrayParameterType:
		if t.ElementType != nil {
			checkDecodable(subject, t.ElementType, p)
		}
	case *AggregateParameterType:
		for _, m := range t.Members {
			if m.Type != nil {
				checkDecodable(subject, m.Type, p)
			}
		}
	default:
		if t.Base().Encoding == nil {
			p.add(subject, "type %s has no data encoding", t.TypeName())
		}
	}
}
