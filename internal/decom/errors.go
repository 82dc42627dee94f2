package decom

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedBuffer: fewer bits remain than a field needs.
	ErrTruncatedBuffer = errors.New("truncated buffer")
	// ErrPatternMismatch: a fixed value entry does not match the buffer.
	ErrPatternMismatch = errors.New("pattern mismatch")
	// ErrCalibrationDomain: a calibrator cannot produce a value.
	ErrCalibrationDomain = errors.New("calibration domain error")
	// ErrUnsupportedConstruct: a schema construct this decoder does not handle.
	ErrUnsupportedConstruct = errors.New("unsupported construct")
	// ErrUnresolvedReference: a dynamic value or operand refers to a
	// parameter with no value and no initial value.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrStackUnderflow: an expression operator lacks operands.
	ErrStackUnderflow = errors.New("stack underflow")
	// ErrInvalidSize: a size, count or dimension resolved to a value the
	// decoder cannot use.
	ErrInvalidSize = errors.New("invalid size")
	// ErrUnknownContainer: the requested container is not in the database.
	ErrUnknownContainer = errors.New("unknown container")
)

// DecodeError locates a decode failure.
type DecodeError struct {
	Container string
	Field     string
	BitOffset int
	Err       error
}

func (e *DecodeError) Error() string {
	field := e.Field
	if field == "" {
		field = "-"
	}
	return fmt.Sprintf("decode %s field %s at bit %d (byte %d): %v", e.Container, field, e.BitOffset, e.ByteOffset(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ByteOffset returns the byte holding the first bit of the failing field.
func (e *DecodeError) ByteOffset() int {
	if e.BitOffset < 0 {
		return -1
	}
	return e.BitOffset / 8
}
