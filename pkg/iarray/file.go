package iarray

import (
	"fmt"

	"arrayvis/pkg/ds"
)

// ReadRequest selects the array Read returns from an arrayfile. Its fields
// have the meaning of the matching Locate arguments.
type ReadRequest struct {
	Structure string
	NumDim    int
	DimNames  []string
	ElemName  string
}

// Read loads the named arrayfile and locates an array in it
func Read(name string, opts ds.ReadOptions, req ReadRequest) (*View, error) {
	m, err := ds.ReadMulti(name, opts)
	if err != nil {
		return nil, err
	}
	v, err := Locate(m, req.Structure, req.NumDim, req.DimNames, req.ElemName)
	if err != nil {
		m.Discard()
		return nil, fmt.Errorf("error locating array in %s: %w", ds.FileName(name), err)
	}
	return v, nil
}

// Write saves the structure holding v, including auxiliary values and
// sibling arrays, to the named arrayfile
func (v *View) Write(name string) error {
	v.checkAlive()
	if !v.original {
		return fmt.Errorf("cannot write %s: %w", v.describe(), ErrNotOriginal)
	}
	return ds.WriteMulti(name, v.multi)
}
