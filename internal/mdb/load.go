package mdb

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"example.com/tlmdecom/internal/bitbuf"
	"example.com/tlmdecom/internal/value"
)

// SchemaFile is the YAML form of a space system.
type SchemaFile struct {
	Name           string              `yaml:"name"`
	Description    string              `yaml:"description,omitempty"`
	ParameterTypes []ParameterTypeFile `yaml:"parameterTypes,omitempty"`
	Parameters     []ParameterFile     `yaml:"parameters,omitempty"`
	Containers     []ContainerFile     `yaml:"containers,omitempty"`
	SubSystems     []SchemaFile        `yaml:"subsystems,omitempty"`
}

type ParameterTypeFile struct {
	Name          string             `yaml:"name"`
	Kind          string             `yaml:"kind"`
	Description   string             `yaml:"description,omitempty"`
	Units         []string           `yaml:"units,omitempty"`
	SizeInBits    int                `yaml:"sizeInBits,omitempty"`
	Signed        bool               `yaml:"signed,omitempty"`
	Encoding      *EncodingFile      `yaml:"encoding,omitempty"`
	InitialValue  *string            `yaml:"initialValue,omitempty"`
	ValidRange    *ValidRangeFile    `yaml:"validRange,omitempty"`
	Alarm         *AlarmFile         `yaml:"alarm,omitempty"`
	ContextAlarms []ContextAlarmFile `yaml:"contextAlarms,omitempty"`
	Enumerations  []EnumerationFile  `yaml:"enumerations,omitempty"`
	Ranges        []EnumRangeFile    `yaml:"ranges,omitempty"`
	OneString     string             `yaml:"oneString,omitempty"`
	ZeroString    string             `yaml:"zeroString,omitempty"`
	Scale         *float64           `yaml:"scale,omitempty"`
	Offset        float64            `yaml:"offset,omitempty"`
	Epoch         string             `yaml:"epoch,omitempty"`
	OffsetFrom    string             `yaml:"offsetFrom,omitempty"`
	ElementType   string             `yaml:"elementType,omitempty"`
	Dimensions    []IntegerValueFile `yaml:"dimensions,omitempty"`
	Members       []MemberFile       `yaml:"members,omitempty"`
}

type EncodingFile struct {
	Kind               string                  `yaml:"kind"`
	SizeInBits         *IntegerValueFile       `yaml:"sizeInBits,omitempty"`
	ByteOrder          string                  `yaml:"byteOrder,omitempty"`
	Encoding           string                  `yaml:"encoding,omitempty"`
	Charset            string                  `yaml:"charset,omitempty"`
	SizeType           string                  `yaml:"sizeType,omitempty"`
	SizeOfSizeTag      int                     `yaml:"sizeOfSizeTag,omitempty"`
	TerminationChar    *int                    `yaml:"terminationChar,omitempty"`
	MaxSizeInBits      int                     `yaml:"maxSizeInBits,omitempty"`
	Calibrator         *CalibratorFile         `yaml:"calibrator,omitempty"`
	ContextCalibrators []ContextCalibratorFile `yaml:"contextCalibrators,omitempty"`
}

type CalibratorFile struct {
	Polynomial []float64         `yaml:"polynomial,omitempty"`
	Spline     []SplinePointFile `yaml:"spline,omitempty"`
	// Expression is a postfix token list: numbers, x for the raw value,
	// $name (or $name:raw) for other parameters, and operators.
	Expression string `yaml:"expression,omitempty"`
}

type SplinePointFile struct {
	Raw        float64 `yaml:"raw"`
	Calibrated float64 `yaml:"calibrated"`
}

type ContextCalibratorFile struct {
	Context    CriteriaFile   `yaml:"context"`
	Calibrator CalibratorFile `yaml:"calibrator"`
}

type RangeFile struct {
	Min          *float64 `yaml:"min,omitempty"`
	Max          *float64 `yaml:"max,omitempty"`
	ExclusiveMin bool     `yaml:"exclusiveMin,omitempty"`
	ExclusiveMax bool     `yaml:"exclusiveMax,omitempty"`
}

type ValidRangeFile struct {
	RangeFile  `yaml:",inline"`
	Calibrated bool `yaml:"calibrated,omitempty"`
}

// AlarmFile covers numeric alarms (the level ranges) and enumeration alarms
// (default and items); which part applies depends on the type kind.
type AlarmFile struct {
	MinViolations int             `yaml:"minViolations,omitempty"`
	Watch         *RangeFile      `yaml:"watch,omitempty"`
	Warning       *RangeFile      `yaml:"warning,omitempty"`
	Distress      *RangeFile      `yaml:"distress,omitempty"`
	Critical      *RangeFile      `yaml:"critical,omitempty"`
	Severe        *RangeFile      `yaml:"severe,omitempty"`
	Default       string          `yaml:"default,omitempty"`
	Items         []AlarmItemFile `yaml:"items,omitempty"`
}

type AlarmItemFile struct {
	Label string `yaml:"label"`
	Level string `yaml:"level"`
}

type ContextAlarmFile struct {
	Context   CriteriaFile `yaml:"context"`
	AlarmFile `yaml:",inline"`
}

type EnumerationFile struct {
	Value       int64  `yaml:"value"`
	Label       string `yaml:"label"`
	Description string `yaml:"description,omitempty"`
}

type EnumRangeFile struct {
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Label string  `yaml:"label"`
}

type MemberFile struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

// IntegerValueFile is either a literal (a plain scalar or fixed:) or a
// reference to another parameter.
type IntegerValueFile struct {
	Fixed     *int64   `yaml:"fixed,omitempty"`
	Ref       string   `yaml:"ref,omitempty"`
	Instance  int      `yaml:"instance,omitempty"`
	Raw       bool     `yaml:"raw,omitempty"`
	Slope     *float64 `yaml:"slope,omitempty"`
	Intercept float64  `yaml:"intercept,omitempty"`
}

func (iv *IntegerValueFile) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: integer value %q: %w", n.Line, n.Value, err)
		}
		iv.Fixed = &v
		return nil
	}
	type plain IntegerValueFile
	return n.Decode((*plain)(iv))
}

type ParameterFile struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

type ContainerFile struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Abstract    bool        `yaml:"abstract,omitempty"`
	Base        *BaseFile   `yaml:"base,omitempty"`
	Entries     []EntryFile `yaml:"entries,omitempty"`
}

type BaseFile struct {
	Container   string        `yaml:"container"`
	Restriction *CriteriaFile `yaml:"restriction,omitempty"`
}

type EntryFile struct {
	Parameter  string             `yaml:"parameter,omitempty"`
	Array      string             `yaml:"array,omitempty"`
	Container  string             `yaml:"container,omitempty"`
	Fixed      *FixedValueFile    `yaml:"fixed,omitempty"`
	Dimensions []IntegerValueFile `yaml:"dimensions,omitempty"`
	Location   *LocationFile      `yaml:"location,omitempty"`
	Repeat     *RepeatFile        `yaml:"repeat,omitempty"`
	Include    *CriteriaFile      `yaml:"include,omitempty"`
}

type FixedValueFile struct {
	Name       string `yaml:"name,omitempty"`
	Value      string `yaml:"value"`
	SizeInBits int    `yaml:"sizeInBits,omitempty"`
}

type LocationFile struct {
	Reference string `yaml:"reference,omitempty"`
	Bits      int    `yaml:"bits"`
}

type RepeatFile struct {
	Count        IntegerValueFile `yaml:"count"`
	OffsetInBits int              `yaml:"offsetInBits,omitempty"`
}

// CriteriaFile holds exactly one of its fields.
type CriteriaFile struct {
	Comparison     *ComparisonFile  `yaml:"comparison,omitempty"`
	ComparisonList []ComparisonFile `yaml:"comparisonList,omitempty"`
	Condition      *ConditionFile   `yaml:"condition,omitempty"`
	And            []CriteriaFile   `yaml:"and,omitempty"`
	Or             []CriteriaFile   `yaml:"or,omitempty"`
}

type ComparisonFile struct {
	Ref      string `yaml:"ref"`
	Op       string `yaml:"op,omitempty"`
	Value    string `yaml:"value"`
	Raw      bool   `yaml:"raw,omitempty"`
	Instance int    `yaml:"instance,omitempty"`
}

type ConditionFile struct {
	Left     string `yaml:"left"`
	LeftRaw  bool   `yaml:"leftRaw,omitempty"`
	Op       string `yaml:"op,omitempty"`
	Right    string `yaml:"right,omitempty"`
	RightRaw bool   `yaml:"rightRaw,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// Load reads a YAML schema file and builds its Database.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// EnsureLoaded is Load with a friendlier error for empty or directory paths.
func EnsureLoaded(path string) (*Database, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty schema path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("schema path %s is a directory", path)
	}
	return Load(path)
}

// Parse builds a Database from YAML bytes.
func Parse(data []byte) (*Database, error) {
	return Read(bytes.NewReader(data))
}

func Read(r io.Reader) (*Database, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file SchemaFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	root, err := FromFile(file)
	if err != nil {
		return nil, err
	}
	return NewDatabase(root)
}

// FromFile converts the YAML form to a SpaceSystem, resolving every name.
func FromFile(file SchemaFile) (*SpaceSystem, error) {
	l := &loader{
		types:      map[string]ParameterType{},
		params:     map[string]*Parameter{},
		containers: map[string]*SequenceContainer{},
	}
	if strings.TrimSpace(file.Name) == "" {
		file.Name = "root"
	}
	root := l.declare(&file, "")
	l.fill(&file, root, root.Qualified())
	if len(l.probs) > 0 {
		return nil, l.probs.err()
	}
	return root, nil
}

type loader struct {
	types      map[string]ParameterType
	params     map[string]*Parameter
	containers map[string]*SequenceContainer
	probs      problems
}

func newType(kind string) (ParameterType, bool) {
	switch strings.ToLower(kind) {
	case "integer", "int":
		return &IntegerParameterType{}, true
	case "float":
		return &FloatParameterType{}, true
	case "string":
		return &StringParameterType{}, true
	case "boolean", "bool":
		return &BooleanParameterType{}, true
	case "binary":
		return &BinaryParameterType{}, true
	case "enumerated", "enum":
		return &EnumeratedParameterType{}, true
	case "absolutetime", "time":
		return &AbsoluteTimeParameterType{}, true
	case "array":
		return &ArrayParameterType{}, true
	case "aggregate":
		return &AggregateParameterType{}, true
	}
	return nil, false
}

// declare creates every named item so later references can be resolved
// regardless of declaration order.
func (l *loader) declare(file *SchemaFile, parent string) *SpaceSystem {
	ss := &SpaceSystem{NameDescription: NameDescription{Name: strings.TrimSpace(file.Name), ShortDescription: file.Description}}
	qn := join(parent, ss.Name)
	ss.QualifiedName = qn
	for i, tf := range file.ParameterTypes {
		t, ok := newType(tf.Kind)
		if !ok {
			l.probs.add(fmt.Sprintf("%s parameterTypes[%d]", qn, i), "unknown kind %q", tf.Kind)
			continue
		}
		name := strings.TrimSpace(tf.Name)
		if name == "" {
			l.probs.add(fmt.Sprintf("%s parameterTypes[%d]", qn, i), "missing name")
			continue
		}
		key := join(qn, name)
		if _, dup := l.types[key]; dup {
			l.probs.add(key, "duplicate parameter type")
			continue
		}
		t.Base().Name = name
		t.Base().ShortDescription = tf.Description
		l.types[key] = t
		ss.ParameterTypes = append(ss.ParameterTypes, t)
	}
	for i, pf := range file.Parameters {
		name := strings.TrimSpace(pf.Name)
		if name == "" {
			l.probs.add(fmt.Sprintf("%s parameters[%d]", qn, i), "missing name")
			continue
		}
		key := join(qn, name)
		if _, dup := l.params[key]; dup {
			l.probs.add(key, "duplicate parameter")
			continue
		}
		p := &Parameter{NameDescription: NameDescription{Name: name, ShortDescription: pf.Description}}
		l.params[key] = p
		ss.Parameters = append(ss.Parameters, p)
	}
	for i, cf := range file.Containers {
		name := strings.TrimSpace(cf.Name)
		if name == "" {
			l.probs.add(fmt.Sprintf("%s containers[%d]", qn, i), "missing name")
			continue
		}
		key := join(qn, name)
		if _, dup := l.containers[key]; dup {
			l.probs.add(key, "duplicate container")
			continue
		}
		c := &SequenceContainer{
			NameDescription: NameDescription{Name: name, ShortDescription: cf.Description},
			Abstract:        cf.Abstract,
		}
		l.containers[key] = c
		ss.Containers = append(ss.Containers, c)
	}
	for i := range file.SubSystems {
		ss.SubSystems = append(ss.SubSystems, l.declare(&file.SubSystems[i], qn))
	}
	return ss
}

// resolve looks name up from scope outwards. Names starting with / are
// absolute.
func resolve[T any](m map[string]T, scope, name string) (T, bool) {
	if strings.HasPrefix(name, "/") {
		v, ok := m[name]
		return v, ok
	}
	for s := scope; ; {
		if v, ok := m[s+"/"+name]; ok {
			return v, true
		}
		i := strings.LastIndexByte(s, '/')
		if i <= 0 {
			break
		}
		s = s[:i]
	}
	var zero T
	return zero, false
}

func (l *loader) fill(file *SchemaFile, ss *SpaceSystem, qn string) {
	for i := range file.ParameterTypes {
		tf := &file.ParameterTypes[i]
		t, ok := l.types[join(qn, strings.TrimSpace(tf.Name))]
		if !ok {
			continue
		}
		l.fillType(t, tf, qn)
	}
	for _, pf := range file.Parameters {
		p, ok := l.params[join(qn, strings.TrimSpace(pf.Name))]
		if !ok {
			continue
		}
		t, ok := resolve(l.types, qn, strings.TrimSpace(pf.Type))
		if !ok {
			l.probs.add(join(qn, p.Name), "unknown parameter type %q", pf.Type)
			continue
		}
		p.Type = t
	}
	for i := range file.Containers {
		cf := &file.Containers[i]
		c, ok := l.containers[join(qn, strings.TrimSpace(cf.Name))]
		if !ok {
			continue
		}
		l.fillContainer(c, cf, qn)
	}
	for i := range file.SubSystems {
		sub := &file.SubSystems[i]
		l.fill(sub, ss.SubSystems[i], join(qn, strings.TrimSpace(sub.Name)))
	}
}

func (l *loader) fillType(t ParameterType, tf *ParameterTypeFile, scope string) {
	subject := join(scope, t.Base().Name)
	base := t.Base()
	base.Units = tf.Units
	if tf.Encoding != nil {
		base.Encoding = l.encoding(subject, tf.Encoding, scope)
		switch e := base.Encoding.(type) {
		case *IntegerDataEncoding:
			if e.Size == 0 {
				e.Size = tf.SizeInBits
			}
		case *FloatDataEncoding:
			if tf.Encoding.SizeInBits == nil && tf.SizeInBits != 0 {
				e.Size = tf.SizeInBits
			}
		}
	}
	if tf.ValidRange != nil {
		base.ValidRange = &ValidRange{FloatRange: toRange(&tf.ValidRange.RangeFile), AppliesToCalibrated: tf.ValidRange.Calibrated}
	}
	switch t := t.(type) {
	case *IntegerParameterType:
		t.SizeInBits = tf.SizeInBits
		t.Signed = tf.Signed
		if e, ok := t.Encoding.(*IntegerDataEncoding); ok {
			t.Signed = t.Signed || e.Encoding.Signed()
		}
		t.Alarm, t.ContextAlarms = l.numericAlarms(subject, tf, scope)
	case *FloatParameterType:
		t.SizeInBits = tf.SizeInBits
		t.Alarm, t.ContextAlarms = l.numericAlarms(subject, tf, scope)
	case *BooleanParameterType:
		t.OneStringValue = tf.OneString
		t.ZeroStringValue = tf.ZeroString
	case *EnumeratedParameterType:
		for _, e := range tf.Enumerations {
			t.Enumerations = append(t.Enumerations, ValueEnumeration{Value: e.Value, Label: e.Label, Description: e.Description})
		}
		for _, r := range tf.Ranges {
			t.Ranges = append(t.Ranges, RangeEnumeration{Min: r.Min, Max: r.Max, Label: r.Label})
		}
		if tf.Alarm != nil {
			t.Alarm = l.enumAlarm(subject, tf.Alarm)
		}
		for _, ca := range tf.ContextAlarms {
			alarm := l.enumAlarm(subject, &ca.AlarmFile)
			t.ContextAlarms = append(t.ContextAlarms, EnumerationContextAlarm{
				Context:          l.criteria(subject, &ca.Context, scope),
				EnumerationAlarm: *alarm,
			})
		}
	case *AbsoluteTimeParameterType:
		t.Scale = 1
		if tf.Scale != nil {
			t.Scale = *tf.Scale
		}
		t.Offset = tf.Offset
		epoch, err := ParseEpoch(tf.Epoch)
		if err != nil {
			l.probs.add(subject, "%v", err)
		}
		t.Epoch = epoch
		if tf.OffsetFrom != "" {
			ref, ok := l.ref(subject, tf.OffsetFrom, scope)
			if ok {
				t.OffsetFrom = &ref
			}
		}
	case *ArrayParameterType:
		et, ok := resolve(l.types, scope, tf.ElementType)
		if !ok {
			l.probs.add(subject, "unknown element type %q", tf.ElementType)
		}
		t.ElementType = et
		t.Dims = l.integerValues(subject, tf.Dimensions, scope)
	case *AggregateParameterType:
		for _, mf := range tf.Members {
			mt, ok := resolve(l.types, scope, mf.Type)
			if !ok {
				l.probs.add(subject, "member %s: unknown type %q", mf.Name, mf.Type)
				continue
			}
			t.Members = append(t.Members, Member{
				NameDescription: NameDescription{Name: mf.Name, ShortDescription: mf.Description},
				Type:            mt,
			})
		}
	}
	if tf.InitialValue != nil {
		v, err := initialValue(t, *tf.InitialValue)
		if err != nil {
			l.probs.add(subject, "initial value: %v", err)
		} else {
			base.Initial = v
		}
	}
}

func initialValue(t ParameterType, lit string) (value.Value, error) {
	switch t := t.(type) {
	case *EnumeratedParameterType:
		if v, ok := t.ValueOf(lit); ok {
			return value.Enum(v, lit), nil
		}
		v, err := strconv.ParseInt(strings.TrimSpace(lit), 0, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("%q is not a label", lit)
		}
		label, _ := t.Label(v)
		return value.Enum(v, label), nil
	case *IntegerParameterType:
		v, err := value.ParseLiteral(lit, EngKind(t))
		if err != nil {
			return value.Value{}, err
		}
		if t.Signed {
			i, _ := v.AsInt()
			return value.Int(i), nil
		}
		if v.Kind() == value.KindInt && v.Int() >= 0 {
			return value.Uint(uint64(v.Int())), nil
		}
		return v, nil
	case *FloatParameterType:
		return value.ParseLiteral(lit, value.KindFloat)
	}
	return value.ParseLiteral(lit, EngKind(t))
}

// ParseEpoch accepts UNIX, GPS, J2000, TAI or an RFC 3339 date-time. An
// empty string means UNIX.
func ParseEpoch(s string) (time.Time, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UNIX":
		return EpochUNIX, nil
	case "GPS":
		return EpochGPS, nil
	case "J2000":
		return EpochJ2000, nil
	case "TAI":
		return EpochTAI, nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseByteOrder(s string) (bitbuf.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "big", "msb", "mostsignificantbytefirst":
		return bitbuf.MostSignificantByteFirst, nil
	case "little", "lsb", "leastsignificantbytefirst":
		return bitbuf.LeastSignificantByteFirst, nil
	}
	return 0, fmt.Errorf("unknown byte order %q", s)
}

func (l *loader) fixedSize(subject string, iv *IntegerValueFile) int {
	if iv == nil {
		return 0
	}
	if iv.Fixed == nil {
		l.probs.add(subject, "encoding size must be a literal")
		return 0
	}
	return int(*iv.Fixed)
}

func (l *loader) encoding(subject string, ef *EncodingFile, scope string) DataEncoding {
	order, err := parseByteOrder(ef.ByteOrder)
	if err != nil {
		l.probs.add(subject, "%v", err)
	}
	switch strings.ToLower(ef.Kind) {
	case "integer", "int":
		e := &IntegerDataEncoding{Size: l.fixedSize(subject, ef.SizeInBits), ByteOrder: order}
		switch strings.ToLower(ef.Encoding) {
		case "", "unsigned":
			e.Encoding = Unsigned
		case "twoscomplement", "twoscompliment", "signed":
			e.Encoding = TwosComplement
		case "onescomplement", "onescompliment":
			e.Encoding = OnesComplement
		case "signmagnitude":
			e.Encoding = SignMagnitude
		default:
			l.probs.add(subject, "unknown integer encoding %q", ef.Encoding)
		}
		e.Calibration = l.calibration(subject, ef, scope)
		return e
	case "float":
		e := &FloatDataEncoding{Size: l.fixedSize(subject, ef.SizeInBits), ByteOrder: order}
		if e.Size == 0 {
			e.Size = 32
		}
		switch strings.ToUpper(ef.Encoding) {
		case "", "IEEE754", "IEEE754_1985", "IEEE":
			e.Encoding = IEEE754
		case "MILSTD_1750A", "MIL1750A", "1750A":
			e.Encoding = MILSTD1750A
		default:
			l.probs.add(subject, "unknown float encoding %q", ef.Encoding)
		}
		e.Calibration = l.calibration(subject, ef, scope)
		return e
	case "string":
		e := &StringDataEncoding{
			Charset:       ef.Charset,
			Size:          l.fixedSize(subject, ef.SizeInBits),
			SizeOfSizeTag: ef.SizeOfSizeTag,
			MaxSizeInBits: ef.MaxSizeInBits,
		}
		switch strings.ToLower(ef.SizeType) {
		case "", "fixed":
			e.SizeType = SizeFixed
		case "leadingsize", "leading":
			e.SizeType = SizeLeadingSize
			if e.SizeOfSizeTag == 0 {
				e.SizeOfSizeTag = 16
			}
		case "terminationchar", "terminated":
			e.SizeType = SizeTerminationChar
		default:
			l.probs.add(subject, "unknown string size type %q", ef.SizeType)
		}
		if ef.TerminationChar != nil {
			if *ef.TerminationChar < 0 || *ef.TerminationChar > 0xFF {
				l.probs.add(subject, "termination char out of range")
			}
			e.TerminationChar = byte(*ef.TerminationChar)
		}
		return e
	case "binary":
		e := &BinaryDataEncoding{}
		if ef.SizeInBits == nil {
			l.probs.add(subject, "binary encoding needs sizeInBits")
			e.Size = Fixed(0)
		} else {
			e.Size = l.integerValue(subject, ef.SizeInBits, scope)
		}
		return e
	}
	l.probs.add(subject, "unknown encoding kind %q", ef.Kind)
	return nil
}

func (l *loader) calibration(subject string, ef *EncodingFile, scope string) Calibration {
	var cal Calibration
	if ef.Calibrator != nil {
		cal.DefaultCalibrator = l.calibrator(subject, ef.Calibrator, scope)
	}
	for _, cc := range ef.ContextCalibrators {
		cal.ContextCalibrators = append(cal.ContextCalibrators, ContextCalibrator{
			Context:    l.criteria(subject, &cc.Context, scope),
			Calibrator: l.calibrator(subject, &cc.Calibrator, scope),
		})
	}
	return cal
}

func (l *loader) calibrator(subject string, cf *CalibratorFile, scope string) Calibrator {
	switch {
	case len(cf.Polynomial) > 0:
		return &PolynomialCalibrator{Coefficients: cf.Polynomial}
	case len(cf.Spline) > 0:
		s := &SplineCalibrator{}
		for _, p := range cf.Spline {
			s.Points = append(s.Points, SplinePoint{Raw: p.Raw, Calibrated: p.Calibrated})
		}
		return s
	case strings.TrimSpace(cf.Expression) != "":
		els, err := l.expression(subject, cf.Expression, scope)
		if err != nil {
			l.probs.add(subject, "%v", err)
			return nil
		}
		return &MathOperationCalibrator{Elements: els}
	}
	l.probs.add(subject, "empty calibrator")
	return nil
}

func (l *loader) expression(subject, expr, scope string) ([]MathElement, error) {
	var out []MathElement
	for _, tok := range strings.Fields(expr) {
		switch {
		case tok == "x":
			out = append(out, MathElement{Kind: ThisParameterOperand})
		case strings.HasPrefix(tok, "$"):
			ref, ok := l.ref(subject, tok[1:], scope)
			if !ok {
				return nil, fmt.Errorf("expression %q: unresolved operand %s", expr, tok)
			}
			out = append(out, MathElement{Kind: ParameterOperand, Ref: &ref})
		default:
			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				out = append(out, MathElement{Kind: ValueOperand, Value: f})
				continue
			}
			op := MathOperator(tok)
			if _, ok := op.Arity(); !ok {
				return nil, fmt.Errorf("expression %q: unknown token %q", expr, tok)
			}
			out = append(out, MathElement{Kind: Operator, Operator: op})
		}
	}
	return out, nil
}

// ref parses name[.member...][:raw] relative to scope.
func (l *loader) ref(subject, s, scope string) (ParameterRef, bool) {
	var r ParameterRef
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutSuffix(s, ":raw"); ok {
		r.UseRawValue = true
		s = rest
	}
	dir, leaf := "", s
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		dir, leaf = s[:i+1], s[i+1:]
	}
	parts := strings.Split(leaf, ".")
	// longest prefix that names a parameter wins, the rest is a member path
	for n := len(parts); n > 0; n-- {
		if p, ok := resolve(l.params, scope, dir+strings.Join(parts[:n], ".")); ok {
			r.Parameter = p
			r.MemberPath = parts[n:]
			if len(r.MemberPath) == 0 {
				r.MemberPath = nil
			}
			return r, true
		}
	}
	l.probs.add(subject, "unknown parameter %q", s)
	return r, false
}

func (l *loader) integerValue(subject string, iv *IntegerValueFile, scope string) IntegerValue {
	if iv.Fixed != nil {
		return Fixed(*iv.Fixed)
	}
	if iv.Ref == "" {
		l.probs.add(subject, "integer value needs fixed or ref")
		return Fixed(0)
	}
	ref, ok := l.ref(subject, iv.Ref, scope)
	if !ok {
		return Fixed(0)
	}
	ref.Instance = iv.Instance
	ref.UseRawValue = ref.UseRawValue || iv.Raw
	dv := &DynamicValue{Ref: ref}
	if iv.Slope != nil || iv.Intercept != 0 {
		slope := 1.0
		if iv.Slope != nil {
			slope = *iv.Slope
		}
		dv.Adjustment = &LinearAdjustment{Slope: slope, Intercept: iv.Intercept}
	}
	return dv
}

func (l *loader) integerValues(subject string, ivs []IntegerValueFile, scope string) []IntegerValue {
	var out []IntegerValue
	for i := range ivs {
		out = append(out, l.integerValue(subject, &ivs[i], scope))
	}
	return out
}

func toRange(rf *RangeFile) FloatRange {
	r := FloatRange{Min: math.NaN(), Max: math.NaN(), ExclusiveMin: rf.ExclusiveMin, ExclusiveMax: rf.ExclusiveMax}
	if rf.Min != nil {
		r.Min = *rf.Min
	}
	if rf.Max != nil {
		r.Max = *rf.Max
	}
	return r
}

func optRange(rf *RangeFile) *FloatRange {
	if rf == nil {
		return nil
	}
	r := toRange(rf)
	return &r
}

func numericAlarm(af *AlarmFile) NumericAlarm {
	return NumericAlarm{
		MinViolations: af.MinViolations,
		Ranges: AlarmRanges{
			Watch:    optRange(af.Watch),
			Warning:  optRange(af.Warning),
			Distress: optRange(af.Distress),
			Critical: optRange(af.Critical),
			Severe:   optRange(af.Severe),
		},
	}
}

func (l *loader) numericAlarms(subject string, tf *ParameterTypeFile, scope string) (*NumericAlarm, []NumericContextAlarm) {
	var def *NumericAlarm
	if tf.Alarm != nil {
		a := numericAlarm(tf.Alarm)
		def = &a
	}
	var ctx []NumericContextAlarm
	for i := range tf.ContextAlarms {
		ca := &tf.ContextAlarms[i]
		ctx = append(ctx, NumericContextAlarm{
			Context:      l.criteria(subject, &ca.Context, scope),
			NumericAlarm: numericAlarm(&ca.AlarmFile),
		})
	}
	return def, ctx
}

func (l *loader) enumAlarm(subject string, af *AlarmFile) *EnumerationAlarm {
	a := &EnumerationAlarm{MinViolations: af.MinViolations}
	if af.Default != "" {
		lvl, err := ParseAlarmLevel(af.Default)
		if err != nil {
			l.probs.add(subject, "%v", err)
		}
		a.DefaultLevel = lvl
	}
	for _, it := range af.Items {
		lvl, err := ParseAlarmLevel(it.Level)
		if err != nil {
			l.probs.add(subject, "%v", err)
			continue
		}
		a.Items = append(a.Items, EnumerationAlarmItem{Label: it.Label, Level: lvl})
	}
	return a
}

func (l *loader) comparison(subject string, cf *ComparisonFile, scope string) *Comparison {
	ref, ok := l.ref(subject, cf.Ref, scope)
	if !ok {
		return nil
	}
	ref.UseRawValue = ref.UseRawValue || cf.Raw
	ref.Instance = cf.Instance
	op, err := ParseOperator(cf.Op)
	if err != nil {
		l.probs.add(subject, "%v", err)
	}
	return &Comparison{Ref: ref, Operator: op, Value: cf.Value}
}

func (l *loader) criteria(subject string, cf *CriteriaFile, scope string) MatchCriteria {
	set := 0
	for _, b := range []bool{cf.Comparison != nil, len(cf.ComparisonList) > 0, cf.Condition != nil, len(cf.And) > 0, len(cf.Or) > 0} {
		if b {
			set++
		}
	}
	if set != 1 {
		l.probs.add(subject, "criteria must hold exactly one of comparison, comparisonList, condition, and, or")
		return nil
	}
	switch {
	case cf.Comparison != nil:
		if c := l.comparison(subject, cf.Comparison, scope); c != nil {
			return c
		}
	case len(cf.ComparisonList) > 0:
		list := &ComparisonList{}
		for i := range cf.ComparisonList {
			if c := l.comparison(subject, &cf.ComparisonList[i], scope); c != nil {
				list.Comparisons = append(list.Comparisons, c)
			}
		}
		return list
	default:
		if e := l.boolExpr(subject, cf, scope); e != nil {
			return e
		}
	}
	return nil
}

func (l *loader) boolExpr(subject string, cf *CriteriaFile, scope string) BooleanExpression {
	switch {
	case cf.Condition != nil:
		c := cf.Condition
		left, ok := l.ref(subject, c.Left, scope)
		if !ok {
			return nil
		}
		left.UseRawValue = left.UseRawValue || c.LeftRaw
		op, err := ParseOperator(c.Op)
		if err != nil {
			l.probs.add(subject, "%v", err)
		}
		cond := &Condition{Left: left, Operator: op, RightValue: c.Value}
		if c.Right != "" {
			right, ok := l.ref(subject, c.Right, scope)
			if !ok {
				return nil
			}
			right.UseRawValue = right.UseRawValue || c.RightRaw
			cond.Right = &right
		}
		return cond
	case len(cf.And) > 0:
		and := &ANDedConditions{}
		for i := range cf.And {
			if e := l.boolExpr(subject, &cf.And[i], scope); e != nil {
				and.Expressions = append(and.Expressions, e)
			}
		}
		return and
	case len(cf.Or) > 0:
		or := &ORedConditions{}
		for i := range cf.Or {
			if e := l.boolExpr(subject, &cf.Or[i], scope); e != nil {
				or.Expressions = append(or.Expressions, e)
			}
		}
		return or
	}
	l.probs.add(subject, "boolean expressions hold condition, and, or")
	return nil
}

func (l *loader) fillContainer(c *SequenceContainer, cf *ContainerFile, scope string) {
	subject := join(scope, c.Name)
	if cf.Base != nil {
		base, ok := resolve(l.containers, scope, cf.Base.Container)
		if !ok {
			l.probs.add(subject, "unknown base container %q", cf.Base.Container)
		}
		c.Base = base
		if cf.Base.Restriction != nil {
			c.Restriction = l.criteria(subject, cf.Base.Restriction, scope)
		}
	}
	for i := range cf.Entries {
		ef := &cf.Entries[i]
		es := fmt.Sprintf("%s entries[%d]", subject, i)
		var eb EntryBase
		if ef.Location != nil {
			switch strings.ToLower(ef.Location.Reference) {
			case "", "previousentry", "previous":
				eb.Location = PreviousEntry
			case "containerstart", "start":
				eb.Location = ContainerStart
			default:
				l.probs.add(es, "unknown location reference %q", ef.Location.Reference)
			}
			eb.LocationInBits = ef.Location.Bits
		}
		if ef.Repeat != nil {
			eb.Repeat = &Repeat{Count: l.integerValue(es, &ef.Repeat.Count, scope), OffsetInBits: ef.Repeat.OffsetInBits}
		}
		if ef.Include != nil {
			eb.IncludeCondition = l.criteria(es, ef.Include, scope)
		}
		var entry SequenceEntry
		switch {
		case ef.Parameter != "":
			p, ok := resolve(l.params, scope, ef.Parameter)
			if !ok {
				l.probs.add(es, "unknown parameter %q", ef.Parameter)
				continue
			}
			entry = &ParameterEntry{EntryBase: eb, Parameter: p}
		case ef.Array != "":
			p, ok := resolve(l.params, scope, ef.Array)
			if !ok {
				l.probs.add(es, "unknown parameter %q", ef.Array)
				continue
			}
			entry = &ArrayParameterEntry{EntryBase: eb, Parameter: p, Dims: l.integerValues(es, ef.Dimensions, scope)}
		case ef.Container != "":
			ref, ok := resolve(l.containers, scope, ef.Container)
			if !ok {
				l.probs.add(es, "unknown container %q", ef.Container)
				continue
			}
			entry = &ContainerEntry{EntryBase: eb, Container: ref}
		case ef.Fixed != nil:
			raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(ef.Fixed.Value), "0x"), "0X")
			b, err := hex.DecodeString(raw)
			if err != nil {
				l.probs.add(es, "fixed value %q: %v", ef.Fixed.Value, err)
				continue
			}
			size := ef.Fixed.SizeInBits
			if size == 0 {
				size = 8 * len(b)
			}
			entry = &FixedValueEntry{EntryBase: eb, Name: ef.Fixed.Name, BinaryValue: b, SizeInBits: size}
		default:
			l.probs.add(es, "entry needs parameter, array, container or fixed")
			continue
		}
		c.Entries = append(c.Entries, entry)
	}
}
