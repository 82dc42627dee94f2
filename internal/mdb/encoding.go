package mdb

import "example.com/tlmdecom/internal/bitbuf"

// DataEncoding describes how a raw value is laid out in bits. The concrete
// variants are IntegerDataEncoding, FloatDataEncoding, StringDataEncoding
// and BinaryDataEncoding.
type DataEncoding interface {
	// SizeInBits returns the fixed size, or -1 when the size is only known
	// while decoding.
	SizeInBits() int
	isDataEncoding()
}

type IntegerEncoding uint8

const (
	Unsigned IntegerEncoding = iota
	TwosComplement
	OnesComplement
	SignMagnitude
)

var integerEncodingNames = map[IntegerEncoding]string{
	Unsigned:       "unsigned",
	TwosComplement: "twosComplement",
	OnesComplement: "onesComplement",
	SignMagnitude:  "signMagnitude",
}

func (e IntegerEncoding) String() string { return integerEncodingNames[e] }

// Signed reports whether the encoding carries a sign.
func (e IntegerEncoding) Signed() bool { return e != Unsigned }

// Calibration is shared by the numeric encodings: an ordered list of
// context calibrators and a default.
type Calibration struct {
	DefaultCalibrator  Calibrator
	ContextCalibrators []ContextCalibrator
}

// HasCalibrator reports whether any calibrator is configured.
func (c *Calibration) HasCalibrator() bool {
	return c.DefaultCalibrator != nil || len(c.ContextCalibrators) > 0
}

type IntegerDataEncoding struct {
	Size      int
	ByteOrder bitbuf.ByteOrder
	Encoding  IntegerEncoding
	Calibration
}

func (e *IntegerDataEncoding) SizeInBits() int { return e.Size }
func (*IntegerDataEncoding) isDataEncoding()    {}

type FloatEncoding uint8

const (
	IEEE754 FloatEncoding = iota
	MILSTD1750A
)

func (e FloatEncoding) String() string {
	if e == MILSTD1750A {
		return "MILSTD_1750A"
	}
	return "IEEE754_1985"
}

type FloatDataEncoding struct {
	Size      int
	ByteOrder bitbuf.ByteOrder
	Encoding  FloatEncoding
	Calibration
}

func (e *FloatDataEncoding) SizeInBits() int { return e.Size }
func (*FloatDataEncoding) isDataEncoding()    {}

type StringSizeType uint8

const (
	// SizeFixed reads exactly Size bits.
	SizeFixed StringSizeType = iota
	// SizeLeadingSize reads an unsigned tag of SizeOfSizeTag bits holding
	// the string length in bytes.
	SizeLeadingSize
	// SizeTerminationChar reads bytes up to TerminationChar or the end of
	// the buffer.
	SizeTerminationChar
)

func (t StringSizeType) String() string {
	switch t {
	case SizeLeadingSize:
		return "leadingSize"
	case SizeTerminationChar:
		return "terminationChar"
	}
	return "fixed"
}

type StringDataEncoding struct {
	// Charset is one of UTF-8 (default), US-ASCII or ISO-8859-1.
	Charset         string
	SizeType        StringSizeType
	Size            int
	SizeOfSizeTag   int
	TerminationChar byte
	// MaxSizeInBits bounds leading-size and terminated strings; 0 means
	// unbounded.
	MaxSizeInBits int
}

func (e *StringDataEncoding) SizeInBits() int {
	if e.SizeType == SizeFixed {
		return e.Size
	}
	return -1
}
func (*StringDataEncoding) isDataEncoding() {}

type BinaryDataEncoding struct {
	// Size is the size in bits, fixed or taken from another parameter.
	Size IntegerValue
}

func (e *BinaryDataEncoding) SizeInBits() int {
	if f, ok := e.Size.(*FixedIntegerValue); ok {
		return int(f.Value)
	}
	return -1
}
func (*BinaryDataEncoding) isDataEncoding() {}
