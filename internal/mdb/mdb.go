// Package mdb is the in-memory mission database: parameter types, data
// encodings, calibrators, match criteria and sequence containers.
//
// A schema is built once, either programmatically or with Load, and turned
// into a Database by NewDatabase. A Database is immutable afterwards and may
// be shared by any number of concurrent decoders.
package mdb

import (
	"strconv"
	"strings"
)

// NameDescription is embedded by every named schema item.
type NameDescription struct {
	Name             string
	QualifiedName    string
	ShortDescription string
	LongDescription  string
}

// Qualified returns the qualified name, or the plain name when the item has
// not been registered in a Database yet.
func (nd *NameDescription) Qualified() string {
	if nd.QualifiedName != "" {
		return nd.QualifiedName
	}
	return nd.Name
}

// SpaceSystem is a namespace holding types, parameters, containers and
// nested space systems.
type SpaceSystem struct {
	NameDescription
	ParameterTypes []ParameterType
	Parameters     []*Parameter
	Containers     []*SequenceContainer
	SubSystems     []*SpaceSystem
}

// Parameter is a named telemetry field of a given type.
type Parameter struct {
	NameDescription
	Type ParameterType
}

// ParameterRef points at a parameter instance from a criteria, a dynamic
// size, or an expression operand.
type ParameterRef struct {
	Parameter *Parameter
	// UseRawValue selects the raw value instead of the engineering value.
	UseRawValue bool
	// Instance 0 is the latest decoded instance, -1 the one before it.
	// Positive values count from the first instance (1 = first).
	Instance int
	// MemberPath addresses a member inside an aggregate value.
	MemberPath []string
}

// Name returns the qualified parameter name.
func (r ParameterRef) Name() string {
	if r.Parameter == nil {
		return ""
	}
	return r.Parameter.Qualified()
}

func (r ParameterRef) String() string {
	var b strings.Builder
	b.WriteString(r.Name())
	for _, m := range r.MemberPath {
		b.WriteByte('.')
		b.WriteString(m)
	}
	if r.Instance != 0 {
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(r.Instance))
	}
	if r.UseRawValue {
		b.WriteString(":raw")
	}
	return b.String()
}
