package iarray

import (
	"fmt"
)

func (v *View) checkIndex(d, start, count int) error {
	lo, hi := -v.boundary, v.lengths[d]+v.boundary
	if start < lo || start >= hi || count < 1 || start+count > hi {
		return fmt.Errorf("range [%d,%d) of dimension %d outside [%d,%d): %w",
			start, start+count, d, lo, hi, ErrOutOfRange)
	}
	return nil
}

// derive returns a view sharing v's storage and provenance, with its own
// attachment. The caller fills in the shape.
func (v *View) derive() *View {
	child := &View{
		multi:        v.multi,
		structure:    v.structure,
		element:      v.element,
		desc:         v.desc,
		arr:          v.arr,
		field:        v.field,
		elemType:     v.elemType,
		base:         v.base,
		restrictions: append([]Restriction(nil), v.restrictions...),
	}
	v.multi.Attach()
	return child
}

// SubArray returns a view of the box of v starting at starts with the
// given counts in each dimension. Indices may reach into the toroidal
// boundary of v; the result has no boundary of its own.
func (v *View) SubArray(starts, counts []int) (*View, error) {
	v.checkAlive()
	n := len(v.lengths)
	if len(starts) != n || len(counts) != n {
		return nil, fmt.Errorf("sub-array of a %d-D view given %d starts and %d counts: %w",
			n, len(starts), len(counts), ErrWrongDimensionality)
	}
	for d := 0; d < n; d++ {
		if err := v.checkIndex(d, starts[d], counts[d]); err != nil {
			return nil, err
		}
	}
	child := v.derive()
	child.lengths = append([]int(nil), counts...)
	child.origDims = append([]int(nil), v.origDims...)
	child.offsets = make([][]int, n)
	for d := 0; d < n; d++ {
		lo := starts[d] + v.boundary
		child.offsets[d] = append([]int(nil), v.offsets[d][lo:lo+counts[d]]...)
	}
	child.computeContiguity()
	return child, nil
}

// SubArray2D returns a view of a rectangle of the 2-D view v
func (v *View) SubArray2D(startRow, startCol, numRows, numCols int) (*View, error) {
	if len(v.lengths) != 2 {
		return nil, fmt.Errorf("sub-array needs a 2-D view, got %d dimensions: %w", len(v.lengths), ErrWrongDimensionality)
	}
	return v.SubArray([]int{startRow, startCol}, []int{numRows, numCols})
}

// Slice2DFrom3D returns the plane of the 3-D view v where the remaining
// dimension is fixed at position. yDim and xDim become the rows and
// columns of the slice.
func (v *View) Slice2DFrom3D(yDim, xDim, position int) (*View, error) {
	v.checkAlive()
	if len(v.lengths) != 3 {
		return nil, fmt.Errorf("slice needs a 3-D view, got %d dimensions: %w", len(v.lengths), ErrWrongDimensionality)
	}
	if yDim < 0 || yDim > 2 || xDim < 0 || xDim > 2 || yDim == xDim {
		return nil, fmt.Errorf("invalid slice dimensions %d and %d", yDim, xDim)
	}
	fixed := 3 - yDim - xDim
	if err := v.checkIndex(fixed, position, 1); err != nil {
		return nil, err
	}
	child := v.derive()
	child.base += v.Offset(fixed, position)
	child.lengths = []int{v.lengths[yDim], v.lengths[xDim]}
	child.origDims = []int{v.origDims[yDim], v.origDims[xDim]}
	child.offsets = [][]int{
		append([]int(nil), v.Table(yDim)...),
		append([]int(nil), v.Table(xDim)...),
	}
	child.restrictions = append(child.restrictions, Restriction{Dim: v.origDims[fixed], Index: position})
	child.computeContiguity()
	return child, nil
}

// RemapToroidal extends every offset table by width entries at each end,
// wrapping to the opposite edge. Index -1 then addresses the last
// element and index Len(d) the first.
func (v *View) RemapToroidal(width int) error {
	v.checkAlive()
	if width < 0 {
		return fmt.Errorf("negative boundary width %d", width)
	}
	offsets := make([][]int, len(v.lengths))
	for d, l := range v.lengths {
		interior := v.Table(d)
		table := make([]int, l+2*width)
		for i := -width; i < l+width; i++ {
			table[i+width] = interior[((i%l)+l)%l]
		}
		offsets[d] = table
	}
	v.offsets = offsets
	v.boundary = width
	return nil
}
