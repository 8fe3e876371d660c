// Package ds provides the generic hierarchical data structure layer that
// strided array views are built on: element types, packet and array
// descriptors, address offset tables, reference counted structures,
// element conversion and the non-threaded leaf reductions.
package ds

import (
	"errors"
	"fmt"
	"math"
)

// ElementType tags the storage type of a packet element.
type ElementType int

const (
	None ElementType = iota
	Float
	Double
	Byte
	Int
	Short
	Long
	UByte
	UInt
	UShort
	ULong
	Complex
	DComplex
	BComplex
	IComplex
	SComplex
	LComplex
	UBComplex
	UIComplex
	USComplex
	ULComplex

	// String is a variable length auxiliary text value (top level packets only)
	String

	// ArrayType marks a packet element holding an n-dimensional array
	ArrayType
)

// TooBig is the blank sentinel. Values at or above it are treated as
// missing data by reductions and passed through unchanged by clipping.
const TooBig = 1e30

var typeNames = map[ElementType]string{
	None:      "none",
	Float:     "float",
	Double:    "double",
	Byte:      "byte",
	Int:       "int",
	Short:     "short",
	Long:      "long",
	UByte:     "ubyte",
	UInt:      "uint",
	UShort:    "ushort",
	ULong:     "ulong",
	Complex:   "complex",
	DComplex:  "dcomplex",
	BComplex:  "bcomplex",
	IComplex:  "icomplex",
	SComplex:  "scomplex",
	LComplex:  "lcomplex",
	UBComplex: "ubcomplex",
	UIComplex: "uicomplex",
	USComplex: "uscomplex",
	ULComplex: "ulcomplex",
	String:    "string",
	ArrayType: "array",
}

func (t ElementType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseElementType is the inverse of String
func ParseElementType(s string) (ElementType, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return None, fmt.Errorf("unknown element type: %q", s)
}

// IsAtomic reports whether t is a fixed size numeric type
func (t ElementType) IsAtomic() bool {
	return t >= Float && t <= ULComplex
}

// IsComplex reports whether t stores a real and an imaginary component
func (t ElementType) IsComplex() bool {
	return t >= Complex && t <= ULComplex
}

// IsInteger reports whether t (or each component of a complex t) is an
// integer type. Output to these types receives the rounding nudge.
func (t ElementType) IsInteger() bool {
	switch t.Component() {
	case Byte, Int, Short, Long, UByte, UInt, UShort, ULong:
		return true
	}
	return false
}

// Component returns the real type of one component of t
func (t ElementType) Component() ElementType {
	switch t {
	case Complex:
		return Float
	case DComplex:
		return Double
	case BComplex:
		return Byte
	case IComplex:
		return Int
	case SComplex:
		return Short
	case LComplex:
		return Long
	case UBComplex:
		return UByte
	case UIComplex:
		return UInt
	case USComplex:
		return UShort
	case ULComplex:
		return ULong
	}
	return t
}

// Size returns the number of bytes one element of type t occupies.
// Non-atomic types have no fixed size and return 0.
func (t ElementType) Size() int {
	switch t {
	case Byte, UByte:
		return 1
	case Short, UShort:
		return 2
	case Float, Int, UInt:
		return 4
	case Double, Long, ULong:
		return 8
	}
	if t.IsComplex() {
		return 2 * t.Component().Size()
	}
	return 0
}

// ConvType selects which scalar is extracted from a complex sample.
type ConvType int

const (
	ConvReal ConvType = iota
	ConvImag
	ConvAbs
	ConvSquareAbs
	ConvPhase
	ConvContPhase
)

// ErrUnsupportedConversion is returned for conversions the reductions cannot perform
var ErrUnsupportedConversion = errors.New("unsupported complex conversion")

// Validate rejects conversions with no scalar equivalent
func (c ConvType) Validate() error {
	switch c {
	case ConvReal, ConvImag, ConvAbs, ConvSquareAbs, ConvPhase:
		return nil
	case ConvContPhase:
		return fmt.Errorf("continuous phase: %w", ErrUnsupportedConversion)
	}
	return fmt.Errorf("conversion %d: %w", int(c), ErrUnsupportedConversion)
}

// Extract converts a (re, im) sample to a scalar. Real types ignore conv.
func (c ConvType) Extract(re, im float64, complexType bool) float64 {
	if !complexType {
		return re
	}
	switch c {
	case ConvImag:
		return im
	case ConvAbs:
		return math.Hypot(re, im)
	case ConvSquareAbs:
		return re*re + im*im
	case ConvPhase:
		return math.Atan2(im, re)
	}
	return re
}
