package iarray

import (
	"fmt"

	"arrayvis/pkg/ds"
)

func checkConv(v *View, conv ds.ConvType) error {
	if !v.elemType.IsComplex() {
		return nil
	}
	return conv.Validate()
}

// MinMax returns the smallest and largest values in v using the shared pool
func MinMax(v *View, conv ds.ConvType) (min, max float64, err error) {
	return defaultEngine.MinMax(v, conv)
}

// MinMax returns the smallest and largest values in v. Complex elements
// are reduced to a scalar with conv. Blank values are ignored.
func (e *Engine) MinMax(v *View, conv ds.ConvType) (min, max float64, err error) {
	v.checkAlive()
	if err := checkConv(v, conv); err != nil {
		return 0, 0, err
	}
	data, t := v.arr.Data, v.elemType
	n := len(v.lengths)
	threads := e.pool().NumThreads()
	partial := make([]ds.Extremes, threads)

	switch {
	case v.IsFullArray():
		stride := v.strides[n-1]
		if threads < 2 {
			ds.ContiguousExtremes(data, v.base, t, conv, stride, v.NumElements(), &partial[0])
			break
		}
		e.contiguous(v, func(thread, addr, count int) {
			ds.ContiguousExtremes(data, addr, t, conv, stride, count, &partial[thread])
		})
	case n == 1:
		ds.OffsetExtremes(data, v.base, t, conv, v.Table(0), &partial[0])
	case n == 2 && threads < 2:
		ds.PlaneExtremes(data, v.base, t, conv, v.Table(0), v.Table(1), &partial[0])
	default:
		rows, cols := v.Table(n-2), v.Table(n-1)
		e.scatter(v, 2, func(thread, addr int) {
			ds.PlaneExtremes(data, addr, t, conv, rows, cols, &partial[thread])
		})
	}

	var total ds.Extremes
	for _, p := range partial {
		total.Merge(p)
	}
	if !total.Valid {
		return 0, 0, ErrNoData
	}
	return total.Min, total.Max, nil
}

// Histogram bins v into hist using the shared pool
func Histogram(v *View, conv ds.ConvType, min, max float64, hist []uint64) (peak uint64, mode int, err error) {
	return defaultEngine.Histogram(v, conv, min, max, hist)
}

// Histogram adds the values of v in [min, max] to the uniform bins of
// hist, which may already hold counts. It returns the largest bin count
// and its index, computed from the final totals.
func (e *Engine) Histogram(v *View, conv ds.ConvType, min, max float64, hist []uint64) (peak uint64, mode int, err error) {
	v.checkAlive()
	if err := checkConv(v, conv); err != nil {
		return 0, 0, err
	}
	if len(hist) < 1 {
		return 0, 0, fmt.Errorf("histogram needs at least one bin")
	}
	if !(max > min) {
		return 0, 0, fmt.Errorf("histogram range [%g,%g] is empty", min, max)
	}
	data, t := v.arr.Data, v.elemType
	n := len(v.lengths)
	threads := e.pool().NumThreads()
	partial := make([]*ds.Histogram, threads)
	for i := range partial {
		partial[i] = ds.NewHistogram(min, max, make([]uint64, len(hist)))
	}

	switch {
	case v.IsFullArray():
		stride := v.strides[n-1]
		if threads < 2 {
			ds.ContiguousHistogram(data, v.base, t, conv, stride, v.NumElements(), partial[0])
			break
		}
		e.contiguous(v, func(thread, addr, count int) {
			ds.ContiguousHistogram(data, addr, t, conv, stride, count, partial[thread])
		})
	case n == 1:
		ds.OffsetHistogram(data, v.base, t, conv, v.Table(0), partial[0])
	case n == 2 && threads < 2:
		ds.PlaneHistogram(data, v.base, t, conv, v.Table(0), v.Table(1), partial[0])
	default:
		rows, cols := v.Table(n-2), v.Table(n-1)
		e.scatter(v, 2, func(thread, addr int) {
			ds.PlaneHistogram(data, addr, t, conv, rows, cols, partial[thread])
		})
	}

	total := ds.NewHistogram(min, max, hist)
	for _, p := range partial {
		total.Merge(p)
	}
	return total.Peak, total.Mode, nil
}
