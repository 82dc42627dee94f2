package decom

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"example.com/tlmdecom/internal/mdb"
)

// processEntry decodes one entry of the container in progress. An entry
// whose include condition does not hold leaves the cursor untouched.
func (pc *processingContext) processEntry(se mdb.SequenceEntry) error {
	eb := se.Entry()
	pc.field = entryName(se)
	pc.fieldStart = pc.buf.Position()

	if eb.IncludeCondition != nil && !Evaluate(eb.IncludeCondition, pc.result) {
		if pe, ok := se.(*mdb.ParameterEntry); ok && pe.Parameter != nil {
			pc.result.skip(pe.Parameter)
		} else if ae, ok := se.(*mdb.ArrayParameterEntry); ok && ae.Parameter != nil {
			pc.result.skip(ae.Parameter)
		}
		pc.log.WithFields(logrus.Fields{"container": pc.container, "entry": pc.field}).
			Trace("entry excluded")
		return nil
	}

	switch eb.Location {
	case mdb.ContainerStart:
		pc.buf.SetPosition(pc.containerStart + eb.LocationInBits)
	default:
		pc.buf.SetPosition(pc.buf.Position() + eb.LocationInBits)
	}
	pc.fieldStart = pc.buf.Position()

	count := int64(1)
	if eb.Repeat != nil {
		n, err := pc.integerValue(eb.Repeat.Count)
		if err != nil {
			return pc.fail(err)
		}
		if n < 0 || n > int64(pc.buf.Len())+1 {
			return pc.fail(fmt.Errorf("%w: repeat count %d", ErrInvalidSize, n))
		}
		count = n
	}
	for i := int64(0); i < count; i++ {
		if i > 0 {
			pc.buf.SetPosition(pc.buf.Position() + eb.Repeat.OffsetInBits)
		}
		pc.fieldStart = pc.buf.Position()
		if err := pc.processBody(se); err != nil {
			return pc.fail(err)
		}
		pc.advance()
	}
	return nil
}

func entryName(se mdb.SequenceEntry) string {
	switch e := se.(type) {
	case *mdb.ParameterEntry:
		if e.Parameter != nil {
			return e.Parameter.Qualified()
		}
	case *mdb.ArrayParameterEntry:
		if e.Parameter != nil {
			return e.Parameter.Qualified()
		}
	case *mdb.ContainerEntry:
		if e.Container != nil {
			return e.Container.Qualified()
		}
	case *mdb.FixedValueEntry:
		return e.Name
	}
	return ""
}

func (pc *processingContext) processBody(se mdb.SequenceEntry) error {
	switch e := se.(type) {
	case *mdb.ParameterEntry:
		return pc.parameter(e.Parameter, nil)
	case *mdb.ArrayParameterEntry:
		if e.Parameter == nil {
			return fmt.Errorf("%w: array entry without parameter", ErrUnsupportedConstruct)
		}
		if _, ok := e.Parameter.Type.(*mdb.ArrayParameterType); !ok {
			return fmt.Errorf("%w: %s is not an array", ErrUnsupportedConstruct, e.Parameter.Qualified())
		}
		return pc.parameter(e.Parameter, e.Dims)
	case *mdb.ContainerEntry:
		if e.Container == nil {
			return fmt.Errorf("%w: container entry without container", ErrUnsupportedConstruct)
		}
		return pc.nested(e.Container)
	case *mdb.FixedValueEntry:
		return pc.fixedValue(e)
	}
	return fmt.Errorf("%w: entry %T", ErrUnsupportedConstruct, se)
}

// parameter decodes one instance of p and adds it to the result.
func (pc *processingContext) parameter(p *mdb.Parameter, dims []mdb.IntegerValue) error {
	if p == nil {
		return fmt.Errorf("%w: entry without parameter", ErrUnsupportedConstruct)
	}
	start := pc.buf.Position()
	raw, eng, err := pc.decodeValue(p.Type, dims)
	pv := &ParameterValue{
		Parameter: p,
		Raw:       raw,
		Eng:       eng,
		Acquired:  true,
		BitOffset: start,
		BitSize:   pc.buf.Position() - start,
	}
	if err != nil {
		var ce *calError
		if !errors.As(err, &ce) || !pc.opts.ContinueOnCalibrationError {
			return err
		}
		pv.Acquired = false
		pc.calErrs = append(pc.calErrs, &DecodeError{
			Container: pc.container,
			Field:     p.Qualified(),
			BitOffset: start,
			Err:       ce.err,
		})
		pc.log.WithFields(logrus.Fields{"parameter": p.Qualified(), "bit": start}).
			WithError(ce.err).Warn("calibration failed, keeping raw value")
	} else {
		pv.Validity = checkValidity(p.Type, raw, eng)
	}
	pc.result.add(pv)
	return nil
}

// nested decodes a container entry starting at the cursor. With subtype
// resolution on, the referenced container descends into its matching
// inheritor like a top-level decode; the result keeps the outer container.
func (pc *processingContext) nested(c *mdb.SequenceContainer) error {
	saved := struct {
		container      string
		containerStart int
		selected       string
	}{pc.container, pc.containerStart, pc.result.Container}
	err := pc.decodeContainer(c, pc.opts.ResolveSubtypes)
	pc.container, pc.containerStart = saved.container, saved.containerStart
	pc.result.Container = saved.selected
	return err
}

// fixedValue checks a constant pattern, 64 bits at a time.
func (pc *processingContext) fixedValue(e *mdb.FixedValueEntry) error {
	if e.SizeInBits <= 0 || e.SizeInBits > 8*len(e.BinaryValue) {
		return fmt.Errorf("%w: fixed value of %d bits from %d bytes", ErrInvalidSize, e.SizeInBits, len(e.BinaryValue))
	}
	if e.SizeInBits > pc.buf.Remaining() {
		return fmt.Errorf("%w: fixed value of %d bits, %d bits left", ErrTruncatedBuffer, e.SizeInBits, pc.buf.Remaining())
	}
	// expected pattern is the low SizeInBits bits of BinaryValue
	pattern := newPatternReader(e.BinaryValue, 8*len(e.BinaryValue)-e.SizeInBits)
	for left := e.SizeInBits; left > 0; {
		n := min(left, 64)
		want := pattern.next(n)
		got, err := pc.buf.GetBits(n)
		if err != nil {
			return truncated(err)
		}
		if got != want {
			return fmt.Errorf("%w: %s expected %#x, got %#x", ErrPatternMismatch, e.Name, want, got)
		}
		left -= n
	}
	return nil
}

type patternReader struct {
	data []byte
	pos  int
}

func newPatternReader(data []byte, skip int) *patternReader {
	return &patternReader{data: data, pos: skip}
}

func (p *patternReader) next(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		bit := (p.data[p.pos>>3] >> uint(7-p.pos&7)) & 1
		v = v<<1 | uint64(bit)
		p.pos++
	}
	return v
}
