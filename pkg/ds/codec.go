package ds

import (
	"encoding/binary"
	"math"
	"unsafe"

	"golang.org/x/exp/constraints"
)

var order = binary.LittleEndian

// toSigned rounds v down, saturating at the limits of T
func toSigned[T constraints.Signed](v float64) T {
	bits := unsafe.Sizeof(T(0)) * 8
	lo := T(-1) << (bits - 1)
	hi := ^lo
	switch {
	case v != v:
		return 0
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return T(math.Floor(v))
}

// toUnsigned rounds v down, saturating at 0 and the maximum of T
func toUnsigned[T constraints.Unsigned](v float64) T {
	hi := ^T(0)
	switch {
	case v != v, v <= 0:
		return 0
	case v >= float64(hi):
		return hi
	}
	return T(v)
}

func getScalar(b []byte, t ElementType) float64 {
	switch t {
	case Float:
		return float64(math.Float32frombits(order.Uint32(b)))
	case Double:
		return math.Float64frombits(order.Uint64(b))
	case Byte:
		return float64(int8(b[0]))
	case UByte:
		return float64(b[0])
	case Short:
		return float64(int16(order.Uint16(b)))
	case UShort:
		return float64(order.Uint16(b))
	case Int:
		return float64(int32(order.Uint32(b)))
	case UInt:
		return float64(order.Uint32(b))
	case Long:
		return float64(int64(order.Uint64(b)))
	case ULong:
		return float64(order.Uint64(b))
	}
	panic("ds: getScalar on non-atomic type " + t.String())
}

func putScalar(b []byte, t ElementType, v float64) {
	switch t {
	case Float:
		order.PutUint32(b, math.Float32bits(float32(v)))
	case Double:
		order.PutUint64(b, math.Float64bits(v))
	case Byte:
		b[0] = byte(toSigned[int8](v))
	case UByte:
		b[0] = toUnsigned[uint8](v)
	case Short:
		order.PutUint16(b, uint16(toSigned[int16](v)))
	case UShort:
		order.PutUint16(b, toUnsigned[uint16](v))
	case Int:
		order.PutUint32(b, uint32(toSigned[int32](v)))
	case UInt:
		order.PutUint32(b, toUnsigned[uint32](v))
	case Long:
		order.PutUint64(b, uint64(toSigned[int64](v)))
	case ULong:
		order.PutUint64(b, toUnsigned[uint64](v))
	default:
		panic("ds: putScalar on non-atomic type " + t.String())
	}
}

// GetElement decodes the element of type t at data[addr:]. Real types
// return a zero imaginary part.
func GetElement(data []byte, addr int, t ElementType) (re, im float64) {
	if t.IsComplex() {
		c := t.Component()
		size := c.Size()
		return getScalar(data[addr:], c), getScalar(data[addr+size:], c)
	}
	return getScalar(data[addr:], t), 0
}

// PutElement encodes (re, im) as type t at data[addr:]. Writing to a real
// type discards the imaginary part.
func PutElement(data []byte, addr int, t ElementType, re, im float64) {
	if t.IsComplex() {
		c := t.Component()
		putScalar(data[addr:], c, re)
		putScalar(data[addr+c.Size():], c, im)
		return
	}
	putScalar(data[addr:], t, re)
}

// GetElements decodes n elements spaced stride bytes apart starting at
// data[addr:]. With complexOut the buffer holds (re, im) pairs and real
// inputs get a zero imaginary part; otherwise it holds one value per
// element and complex inputs contribute their real part.
func GetElements(data []byte, addr, stride int, t ElementType, n int, buf []float64, complexOut bool) {
	if t.IsComplex() {
		c := t.Component()
		size := c.Size()
		for i := 0; i < n; i++ {
			p := addr + i*stride
			if complexOut {
				buf[2*i] = getScalar(data[p:], c)
				buf[2*i+1] = getScalar(data[p+size:], c)
			} else {
				buf[i] = getScalar(data[p:], c)
			}
		}
		return
	}
	for i := 0; i < n; i++ {
		v := getScalar(data[addr+i*stride:], t)
		if complexOut {
			buf[2*i] = v
			buf[2*i+1] = 0
		} else {
			buf[i] = v
		}
	}
}

// PutElements is the inverse of GetElements
func PutElements(data []byte, addr, stride int, t ElementType, n int, buf []float64, complexIn bool) {
	if t.IsComplex() {
		c := t.Component()
		size := c.Size()
		for i := 0; i < n; i++ {
			p := addr + i*stride
			if complexIn {
				putScalar(data[p:], c, buf[2*i])
				putScalar(data[p+size:], c, buf[2*i+1])
			} else {
				putScalar(data[p:], c, buf[i])
				putScalar(data[p+size:], c, 0)
			}
		}
		return
	}
	for i := 0; i < n; i++ {
		if complexIn {
			putScalar(data[addr+i*stride:], t, buf[2*i])
		} else {
			putScalar(data[addr+i*stride:], t, buf[i])
		}
	}
}
