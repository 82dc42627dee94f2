// Package decom decodes telemetry packets against a mission database.
//
// A Decoder is built once per Database and is safe for concurrent use: each
// call to Decode keeps its state in a private processing context.
package decom

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"example.com/tlmdecom/internal/mdb"
)

// Options tune a Decoder.
type Options struct {
	// ResolveSubtypes descends from the requested container into the first
	// inheritor whose restriction holds.
	ResolveSubtypes bool
	// ContinueOnCalibrationError keeps decoding when a value cannot be
	// calibrated. The value is stored with Acquired false and the failure is
	// returned alongside the result.
	ContinueOnCalibrationError bool
	Logger                     logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{ResolveSubtypes: true}
}

type Decoder struct {
	db   *mdb.Database
	opts Options
	log  logrus.FieldLogger
}

func NewDecoder(db *mdb.Database, opts Options) *Decoder {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Decoder{db: db, opts: opts, log: log}
}

func (d *Decoder) Database() *mdb.Database { return d.db }

// Decode decodes data from its first bit as the named container.
func (d *Decoder) Decode(data []byte, container string) (*Result, error) {
	return d.DecodeAt(data, 0, container)
}

// DecodeAt decodes data from bitOffset as the named container.
func (d *Decoder) DecodeAt(data []byte, bitOffset int, container string) (*Result, error) {
	c, ok := d.db.Container(container)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContainer, container)
	}
	return d.DecodeContainer(data, bitOffset, c)
}

// DecodeContainer decodes data from bitOffset as c. On failure the result
// is nil. In lenient mode calibration failures are returned together with
// the result.
func (d *Decoder) DecodeContainer(data []byte, bitOffset int, c *mdb.SequenceContainer) (*Result, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil container", ErrUnknownContainer)
	}
	if bitOffset < 0 || bitOffset > len(data)*8 {
		return nil, &DecodeError{Container: c.Qualified(), BitOffset: bitOffset,
			Err: fmt.Errorf("%w: start at bit %d of %d", ErrTruncatedBuffer, bitOffset, len(data)*8)}
	}
	pc := newContext(d, data, bitOffset)
	if err := pc.decodeContainer(c, d.opts.ResolveSubtypes); err != nil {
		d.log.WithError(err).WithField("container", c.Qualified()).Debug("decode failed")
		return nil, err
	}
	res := pc.result
	if res.Container == "" {
		res.Container = c.Qualified()
	}
	res.BitsConsumed = pc.highWater - pc.start
	if len(pc.calErrs) > 0 {
		return res, errors.Join(pc.calErrs...)
	}
	return res, nil
}
