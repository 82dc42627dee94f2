package mdb

// IntegerValue is a size or count that is either a literal (*FixedIntegerValue)
// or read from an already decoded parameter (*DynamicValue).
type IntegerValue interface {
	isIntegerValue()
}

type FixedIntegerValue struct {
	Value int64
}

func (*FixedIntegerValue) isIntegerValue() {}

// Fixed is shorthand for a literal integer value.
func Fixed(v int64) *FixedIntegerValue { return &FixedIntegerValue{Value: v} }

// DynamicValue reads the referenced parameter and optionally applies
// Adjustment (value*Slope + Intercept).
type DynamicValue struct {
	Ref        ParameterRef
	Adjustment *LinearAdjustment
}

func (*DynamicValue) isIntegerValue() {}

type LinearAdjustment struct {
	Slope     float64
	Intercept float64
}

type ReferenceLocation uint8

const (
	// PreviousEntry positions an entry relative to the end of the previous
	// one. It is the default.
	PreviousEntry ReferenceLocation = iota
	// ContainerStart positions an entry relative to the start of the
	// container.
	ContainerStart
)

func (r ReferenceLocation) String() string {
	if r == ContainerStart {
		return "containerStart"
	}
	return "previousEntry"
}

// Repeat decodes an entry Count times with OffsetInBits between repetitions.
type Repeat struct {
	Count        IntegerValue
	OffsetInBits int
}

// EntryBase carries the placement rules common to every entry.
type EntryBase struct {
	Location         ReferenceLocation
	LocationInBits   int
	Repeat           *Repeat
	IncludeCondition MatchCriteria
}

func (e *EntryBase) Entry() *EntryBase { return e }

// SequenceEntry is one item of a container's entry list. The variants are
// *ParameterEntry, *ArrayParameterEntry, *ContainerEntry and
// *FixedValueEntry.
type SequenceEntry interface {
	Entry() *EntryBase
	isSequenceEntry()
}

type ParameterEntry struct {
	EntryBase
	Parameter *Parameter
}

func (*ParameterEntry) isSequenceEntry() {}

// ArrayParameterEntry decodes an array parameter. Dims overrides the
// dimensions of the array type when set.
type ArrayParameterEntry struct {
	EntryBase
	Parameter *Parameter
	Dims      []IntegerValue
}

func (*ArrayParameterEntry) isSequenceEntry() {}

type ContainerEntry struct {
	EntryBase
	Container *SequenceContainer
}

func (*ContainerEntry) isSequenceEntry() {}

// FixedValueEntry is a constant bit pattern such as a sync marker. The
// pattern is the low SizeInBits bits of BinaryValue read as a big endian
// number.
type FixedValueEntry struct {
	EntryBase
	Name        string
	BinaryValue []byte
	SizeInBits  int
}

func (*FixedValueEntry) isSequenceEntry() {}

// SequenceContainer is an ordered list of entries that may specialize a
// base container when Restriction holds.
type SequenceContainer struct {
	NameDescription
	Entries     []SequenceEntry
	Base        *SequenceContainer
	Restriction MatchCriteria
	Abstract    bool
}

// Ancestors returns the base chain from the root down to c, c included.
func (c *SequenceContainer) Ancestors() []*SequenceContainer {
	var chain []*SequenceContainer
	for cur := c; cur != nil; cur = cur.Base {
		chain = append(chain, cur)
		if len(chain) > 1<<16 {
			break
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
