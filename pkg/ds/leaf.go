package ds

// Extremes accumulates the minimum and maximum of a run of values.
// Blank values (>= TooBig) and NaNs are skipped.
type Extremes struct {
	Min   float64
	Max   float64
	Valid bool
}

// Add folds one value into the accumulator
func (e *Extremes) Add(v float64) {
	if v != v || v >= TooBig {
		return
	}
	if !e.Valid {
		e.Min, e.Max, e.Valid = v, v, true
		return
	}
	if v < e.Min {
		e.Min = v
	}
	if v > e.Max {
		e.Max = v
	}
}

// Merge folds another accumulator into e
func (e *Extremes) Merge(o Extremes) {
	if !o.Valid {
		return
	}
	e.Add(o.Min)
	e.Add(o.Max)
}

// ContiguousExtremes scans n elements spaced stride bytes apart
func ContiguousExtremes(data []byte, addr int, t ElementType, conv ConvType, stride, n int, ext *Extremes) {
	cplx := t.IsComplex()
	for i := 0; i < n; i++ {
		re, im := GetElement(data, addr+i*stride, t)
		ext.Add(conv.Extract(re, im, cplx))
	}
}

// OffsetExtremes scans one dimension addressed through an offset table
func OffsetExtremes(data []byte, addr int, t ElementType, conv ConvType, offsets []int, ext *Extremes) {
	cplx := t.IsComplex()
	for _, off := range offsets {
		re, im := GetElement(data, addr+off, t)
		ext.Add(conv.Extract(re, im, cplx))
	}
}

// PlaneExtremes scans a plane addressed through two offset tables, the
// second varying fastest
func PlaneExtremes(data []byte, addr int, t ElementType, conv ConvType, rows, cols []int, ext *Extremes) {
	for _, row := range rows {
		OffsetExtremes(data, addr+row, t, conv, cols, ext)
	}
}

// Histogram bins values in [Min, Max] into len(Bins) uniform buckets.
// Values outside the range are ignored; Max itself falls in the last bin.
type Histogram struct {
	Min  float64
	Max  float64
	Bins []uint64

	// Peak is the largest bin count and Mode its index
	Peak uint64
	Mode int

	scale float64
}

// NewHistogram creates a histogram that accumulates into bins
func NewHistogram(min, max float64, bins []uint64) *Histogram {
	h := &Histogram{Min: min, Max: max, Bins: bins}
	if max > min {
		h.scale = float64(len(bins)) / (max - min)
	}
	h.Rescan()
	return h
}

// Add bins one value, tracking the running peak
func (h *Histogram) Add(v float64) {
	if v != v || v < h.Min || v > h.Max {
		return
	}
	b := int((v - h.Min) * h.scale)
	if b >= len(h.Bins) {
		b = len(h.Bins) - 1
	}
	h.Bins[b]++
	if h.Bins[b] > h.Peak {
		h.Peak = h.Bins[b]
		h.Mode = b
	}
}

// Rescan recomputes Peak and Mode from the bin totals. Ties resolve to
// the lowest bin so the result does not depend on accumulation order.
func (h *Histogram) Rescan() {
	h.Peak, h.Mode = 0, 0
	for i, c := range h.Bins {
		if c > h.Peak {
			h.Peak, h.Mode = c, i
		}
	}
}

// Merge adds the bins of o into h and rescans
func (h *Histogram) Merge(o *Histogram) {
	for i, c := range o.Bins {
		h.Bins[i] += c
	}
	h.Rescan()
}

// ContiguousHistogram bins n elements spaced stride bytes apart
func ContiguousHistogram(data []byte, addr int, t ElementType, conv ConvType, stride, n int, h *Histogram) {
	cplx := t.IsComplex()
	for i := 0; i < n; i++ {
		re, im := GetElement(data, addr+i*stride, t)
		h.Add(conv.Extract(re, im, cplx))
	}
}

// OffsetHistogram bins one dimension addressed through an offset table
func OffsetHistogram(data []byte, addr int, t ElementType, conv ConvType, offsets []int, h *Histogram) {
	cplx := t.IsComplex()
	for _, off := range offsets {
		re, im := GetElement(data, addr+off, t)
		h.Add(conv.Extract(re, im, cplx))
	}
}

// PlaneHistogram bins a plane addressed through two offset tables
func PlaneHistogram(data []byte, addr int, t ElementType, conv ConvType, rows, cols []int, h *Histogram) {
	for _, row := range rows {
		OffsetHistogram(data, addr+row, t, conv, cols, h)
	}
}
