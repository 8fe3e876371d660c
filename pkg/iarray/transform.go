package iarray

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"arrayvis/pkg/ds"
)

// integerEpsilon is added before storing into integer outputs so values
// computed as n-tiny round down to n
const integerEpsilon = 1e-6

var rowBuffers = sync.Pool{
	New: func() any { return new([]float64) },
}

func getRowBuffer(n int) *[]float64 {
	buf := rowBuffers.Get().(*[]float64)
	if cap(*buf) < n {
		*buf = make([]float64, n)
	}
	*buf = (*buf)[:n]
	return buf
}

// operand is one view taking part in a transform
type operand struct {
	name string
	view *View
}

func checkShapes(ops ...operand) error {
	ref := ops[0]
	for _, op := range ops {
		op.view.checkAlive()
	}
	for _, op := range ops[1:] {
		if op.view.NumDim() != ref.view.NumDim() {
			return fmt.Errorf("%s has %d dimensions but %s has %d: %w",
				op.name, op.view.NumDim(), ref.name, ref.view.NumDim(), ErrShapeMismatch)
		}
		for d := range ref.view.lengths {
			if op.view.lengths[d] != ref.view.lengths[d] {
				return fmt.Errorf("dimension %d (%q) has length %d in %s but %d in %s: %w",
					d, op.view.DimName(d), op.view.lengths[d], op.name, ref.view.lengths[d], ref.name, ErrShapeMismatch)
			}
		}
	}
	return nil
}

// rowFunc transforms n elements. Each buffer holds one value per element,
// or an (re, im) pair when the matching flag in complexIn/complexOut is set.
type rowFunc func(out []float64, ins [][]float64, n int)

// transform drives a rowFunc over every row of out. When the last
// dimension is contiguous in every operand a whole row is converted at a
// time; otherwise elements are converted one at a time.
func transform(out *View, ins []*View, complexIn []bool, complexOut bool, fn rowFunc) {
	n := out.NumDim()
	batched := out.contiguous[n-1]
	for _, in := range ins {
		batched = batched && in.contiguous[n-1]
	}
	rowLen := 1
	if batched {
		rowLen = out.lengths[n-1]
	}

	width := func(cplx bool) int {
		if cplx {
			return 2 * rowLen
		}
		return rowLen
	}
	outBuf := getRowBuffer(width(complexOut))
	defer rowBuffers.Put(outBuf)
	inBufs := make([][]float64, len(ins))
	for i := range ins {
		buf := getRowBuffer(width(complexIn[i]))
		defer rowBuffers.Put(buf)
		inBufs[i] = *buf
	}

	coords := make([]int, n)
	for ok := true; ok; _, ok = out.NextElement(coords, rowLen) {
		for i, in := range ins {
			load(in, in.Address(coords...), rowLen, inBufs[i], complexIn[i])
		}
		fn(*outBuf, inBufs, rowLen)
		store(out, out.Address(coords...), rowLen, *outBuf, complexOut)
	}
}

func load(v *View, addr, n int, buf []float64, cplx bool) {
	if n == 1 {
		re, im := ds.GetElement(v.arr.Data, addr, v.elemType)
		buf[0] = re
		if cplx {
			buf[1] = im
		}
		return
	}
	ds.GetElements(v.arr.Data, addr, v.strides[len(v.strides)-1], v.elemType, n, buf, cplx)
}

func store(v *View, addr, n int, buf []float64, cplx bool) {
	if n == 1 {
		im := 0.0
		if cplx {
			im = buf[1]
		}
		ds.PutElement(v.arr.Data, addr, v.elemType, buf[0], im)
		return
	}
	ds.PutElements(v.arr.Data, addr, v.strides[len(v.strides)-1], v.elemType, n, buf, cplx)
}

// Copy converts in into out. Real inputs gain a zero imaginary part;
// complex inputs written to a real output contribute their real part, or
// their magnitude when magnitude is set.
func Copy(out, in *View, magnitude bool) error {
	if err := checkShapes(operand{"output", out}, operand{"input", in}); err != nil {
		return err
	}
	if out.elemType == in.elemType {
		copyRaw(out, in)
		return nil
	}
	cin, cout := in.elemType.IsComplex(), out.elemType.IsComplex()
	transform(out, []*View{in}, []bool{cin}, cout, func(dst []float64, srcs [][]float64, n int) {
		src := srcs[0]
		switch {
		case cin == cout:
			copy(dst, src)
		case cout:
			for i := 0; i < n; i++ {
				dst[2*i], dst[2*i+1] = src[i], 0
			}
		default:
			for i := 0; i < n; i++ {
				if magnitude {
					dst[i] = math.Hypot(src[2*i], src[2*i+1])
				} else {
					dst[i] = src[2*i]
				}
			}
		}
	})
	return nil
}

// copyRaw copies elements of identical type byte for byte
func copyRaw(out, in *View) {
	size := out.elemType.Size()
	n := out.NumDim()
	coords := make([]int, n)
	if out.MaxContiguousRun() >= out.lengths[n-1] && in.MaxContiguousRun() >= in.lengths[n-1] {
		rowBytes := size * out.lengths[n-1]
		if out.desc.Packet.Size() == size && in.desc.Packet.Size() == size {
			for ok := true; ok; _, ok = out.NextElement(coords, out.lengths[n-1]) {
				src := in.Address(coords...)
				dst := out.Address(coords...)
				copy(out.arr.Data[dst:dst+rowBytes], in.arr.Data[src:src+rowBytes])
			}
			return
		}
	}
	for ok := true; ok; _, ok = out.NextElement(coords, 1) {
		src := in.Address(coords...)
		dst := out.Address(coords...)
		copy(out.arr.Data[dst:dst+size], in.arr.Data[src:src+size])
	}
}

// ScaleAndOffset computes out = in*scale + offset with complex arithmetic.
// Integer outputs get a small positive nudge before rounding down. A complex
// result written to a real output is reduced to its real part, or to its
// magnitude when magnitude is set.
func ScaleAndOffset(out, in *View, scale, offset complex128, magnitude bool) error {
	if err := checkShapes(operand{"output", out}, operand{"input", in}); err != nil {
		return err
	}
	eps := 0.0
	if out.elemType.IsInteger() {
		eps = integerEpsilon
	}
	cin, cout := in.elemType.IsComplex(), out.elemType.IsComplex()

	if !cin && !cout {
		s, o := real(scale), real(offset)+eps
		transform(out, []*View{in}, []bool{false}, false, func(dst []float64, srcs [][]float64, n int) {
			copy(dst, srcs[0])
			floats.Scale(s, dst)
			floats.AddConst(o, dst)
		})
		return nil
	}

	sr, si := real(scale), imag(scale)
	or, oi := real(offset)+eps, imag(offset)+eps
	transform(out, []*View{in}, []bool{true}, cout, func(dst []float64, srcs [][]float64, n int) {
		src := srcs[0]
		for i := 0; i < n; i++ {
			re, im := src[2*i], src[2*i+1]
			rr := re*sr - im*si + or
			ri := re*si + im*sr + oi
			switch {
			case cout:
				dst[2*i], dst[2*i+1] = rr, ri
			case magnitude:
				dst[i] = math.Hypot(rr, ri)
			default:
				dst[i] = rr
			}
		}
	})
	return nil
}

// ClipScaleAndOffset clips in to [lower, upper] then computes
// out = in*scale + offset. Values outside the range are clamped to the
// nearest bound, or with blank set replaced by ds.TooBig. Values already
// at or above ds.TooBig pass through unchanged. Both views must be real.
func ClipScaleAndOffset(out, in *View, lower, upper, scale, offset float64, blank bool) error {
	if err := checkShapes(operand{"output", out}, operand{"input", in}); err != nil {
		return err
	}
	if in.elemType.IsComplex() || out.elemType.IsComplex() {
		return fmt.Errorf("clip needs real views, got %s to %s: %w", in.elemType, out.elemType, ErrTypeMismatch)
	}
	if lower > upper {
		return fmt.Errorf("clip range [%g,%g] is empty", lower, upper)
	}
	if out.elemType.IsInteger() {
		offset += integerEpsilon
	}
	transform(out, []*View{in}, []bool{false}, false, func(dst []float64, srcs [][]float64, n int) {
		for i, v := range srcs[0][:n] {
			switch {
			case v >= ds.TooBig:
				dst[i] = v
				continue
			case v < lower:
				if blank {
					dst[i] = ds.TooBig
					continue
				}
				v = lower
			case v > upper:
				if blank {
					dst[i] = ds.TooBig
					continue
				}
				v = upper
			}
			dst[i] = v*scale + offset
		}
	})
	return nil
}

// AddAndScale computes out = in1 + in2*scale
func AddAndScale(out, in1, in2 *View, scale complex128, magnitude bool) error {
	return dyadic(out, in1, in2, scale, magnitude, 1)
}

// SubAndScale computes out = in1 - in2*scale
func SubAndScale(out, in1, in2 *View, scale complex128, magnitude bool) error {
	return dyadic(out, in1, in2, scale, magnitude, -1)
}

// dyadic computes out = in1 + sign*in2*scale. A complex result written to
// a real output is reduced to its magnitude only when magnitude is set and
// both inputs are complex; otherwise the real part is kept.
func dyadic(out, in1, in2 *View, scale complex128, magnitude bool, sign float64) error {
	err := checkShapes(operand{"output", out}, operand{"first input", in1}, operand{"second input", in2})
	if err != nil {
		return err
	}
	c1, c2, cout := in1.elemType.IsComplex(), in2.elemType.IsComplex(), out.elemType.IsComplex()
	ins := []*View{in1, in2}

	if !c1 && !c2 && !cout {
		s := sign * real(scale)
		transform(out, ins, []bool{false, false}, false, func(dst []float64, srcs [][]float64, n int) {
			copy(dst, srcs[0][:n])
			floats.AddScaled(dst, s, srcs[1][:n])
		})
		return nil
	}

	sr, si := sign*real(scale), sign*imag(scale)
	useMagnitude := magnitude && c1 && c2
	transform(out, ins, []bool{true, true}, cout, func(dst []float64, srcs [][]float64, n int) {
		a, b := srcs[0], srcs[1]
		for i := 0; i < n; i++ {
			br, bi := b[2*i], b[2*i+1]
			rr := a[2*i] + br*sr - bi*si
			ri := a[2*i+1] + br*si + bi*sr
			switch {
			case cout:
				dst[2*i], dst[2*i+1] = rr, ri
			case useMagnitude:
				dst[i] = math.Hypot(rr, ri)
			default:
				dst[i] = rr
			}
		}
	})
	return nil
}
