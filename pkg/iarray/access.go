package iarray

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"arrayvis/pkg/ds"
)

func (v *View) addressOf(coords []int) int {
	if len(coords) != len(v.lengths) {
		panic(pkgerrors.Errorf("iarray: %d co-ordinates for %d dimensions", len(coords), len(v.lengths)))
	}
	for d, c := range coords {
		if c < -v.boundary || c >= v.lengths[d]+v.boundary {
			panic(pkgerrors.Errorf("iarray: index %d outside dimension %d of length %d", c, d, v.lengths[d]))
		}
	}
	return v.Address(coords...)
}

// Get returns the element at coords. Complex elements return their real part.
func (v *View) Get(coords ...int) float64 {
	re, _ := ds.GetElement(v.arr.Data, v.addressOf(coords), v.elemType)
	return re
}

// GetComplex returns the element at coords as a complex value
func (v *View) GetComplex(coords ...int) complex128 {
	re, im := ds.GetElement(v.arr.Data, v.addressOf(coords), v.elemType)
	return complex(re, im)
}

// Put stores value at coords
func (v *View) Put(value float64, coords ...int) {
	ds.PutElement(v.arr.Data, v.addressOf(coords), v.elemType, value, 0)
}

// PutComplex stores value at coords. Real views keep the real part.
func (v *View) PutComplex(value complex128, coords ...int) {
	ds.PutElement(v.arr.Data, v.addressOf(coords), v.elemType, real(value), imag(value))
}

// Fill stores value in every element of the view
func (v *View) Fill(value complex128) {
	v.checkAlive()
	re, im := real(value), imag(value)
	n := len(v.lengths)
	if run := v.MaxContiguousRun(); run > 1 && run%v.lengths[n-1] == 0 {
		stride := v.strides[n-1]
		coords := make([]int, n)
		buf := getRowBuffer(2 * run)
		defer rowBuffers.Put(buf)
		row := *buf
		for i := 0; i < run; i++ {
			row[2*i], row[2*i+1] = re, im
		}
		for ok := true; ok; _, ok = v.NextElement(coords, run) {
			ds.PutElements(v.arr.Data, v.Address(coords...), stride, v.elemType, run, row, true)
		}
		return
	}
	for _, addr := range v.Elements() {
		ds.PutElement(v.arr.Data, addr, v.elemType, re, im)
	}
}

// GetNamedValue returns the real auxiliary value called name
func (v *View) GetNamedValue(name string) (float64, error) {
	value, err := v.multi.GetNamedValue(name)
	if err != nil {
		return 0, err
	}
	switch x := value.(type) {
	case float64:
		return x, nil
	case complex128:
		return real(x), nil
	}
	return 0, fmt.Errorf("named value %q is not numeric: %w", name, ErrTypeMismatch)
}

// GetNamedComplex returns the auxiliary value called name as a complex number
func (v *View) GetNamedComplex(name string) (complex128, error) {
	value, err := v.multi.GetNamedValue(name)
	if err != nil {
		return 0, err
	}
	switch x := value.(type) {
	case float64:
		return complex(x, 0), nil
	case complex128:
		return x, nil
	}
	return 0, fmt.Errorf("named value %q is not numeric: %w", name, ErrTypeMismatch)
}

// GetNamedString returns the auxiliary string called name
func (v *View) GetNamedString(name string) (string, error) {
	value, err := v.multi.GetNamedValue(name)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("named value %q is not a string: %w", name, ErrTypeMismatch)
	}
	return s, nil
}

// PutNamedValue stores a real auxiliary value alongside the array
func (v *View) PutNamedValue(name string, value float64) error {
	return v.multi.PutNamedValue(v.structure, name, value)
}

// PutNamedComplex stores a complex auxiliary value alongside the array
func (v *View) PutNamedComplex(name string, value complex128) error {
	return v.multi.PutNamedValue(v.structure, name, value)
}

// PutNamedString stores an auxiliary string alongside the array
func (v *View) PutNamedString(name, value string) error {
	return v.multi.PutNamedValue(v.structure, name, value)
}
