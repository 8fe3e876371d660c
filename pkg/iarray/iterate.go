package iarray

import (
	"iter"
)

// Stride returns the byte distance between consecutive indices of
// dimension d. It is only meaningful when Contiguous(d) is true.
func (v *View) Stride(d int) int { return v.strides[d] }

// Address returns the byte address within Data of the element at coords
func (v *View) Address(coords ...int) int {
	addr := v.base
	for d, c := range coords {
		addr += v.offsets[d][c+v.boundary]
	}
	return addr
}

// NextElement advances coords by increment along the last dimension,
// carrying into higher dimensions, and returns the address of the new
// element. ok is false once the first dimension overflows.
func (v *View) NextElement(coords []int, increment int) (addr int, ok bool) {
	n := len(v.lengths)
	coords[n-1] += increment
	for d := n - 1; d > 0; d-- {
		if coords[d] < v.lengths[d] {
			break
		}
		coords[d-1] += coords[d] / v.lengths[d]
		coords[d] %= v.lengths[d]
	}
	if coords[0] >= v.lengths[0] {
		return 0, false
	}
	return v.Address(coords...), true
}

// Elements iterates every element in row-major order, last dimension
// fastest. The coordinate slice is reused between iterations.
func (v *View) Elements() iter.Seq2[[]int, int] {
	return func(yield func([]int, int) bool) {
		coords := make([]int, len(v.lengths))
		addr, ok := v.Address(coords...), true
		for ok {
			if !yield(coords, addr) {
				return
			}
			addr, ok = v.NextElement(coords, 1)
		}
	}
}

// MaxContiguousRun returns the largest number of elements, starting at
// any row start, that lie at consecutive natural addresses. It walks from
// the last dimension outward while dimensions are contiguous and cover
// the whole underlying dimension.
func (v *View) MaxContiguousRun() int {
	run := 1
	expect := len(v.desc.Dims) - 1
	for d := len(v.lengths) - 1; d >= 0; d-- {
		orig := v.origDims[d]
		if !v.contiguous[d] || orig != expect {
			break
		}
		run *= v.lengths[d]
		if v.lengths[d] != v.desc.Dims[orig].Length {
			break
		}
		expect--
	}
	return run
}

// outerAddress sums the offsets of coords[:outer] only. Adding entries of
// the inner dimension tables gives element addresses within the block.
func (v *View) outerAddress(coords []int, outer int) int {
	addr := v.base
	for d := 0; d < outer; d++ {
		addr += v.offsets[d][coords[d]+v.boundary]
	}
	return addr
}
