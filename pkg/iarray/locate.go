package iarray

import (
	"fmt"

	"arrayvis/pkg/ds"
)

// candidate is an array element of a top level structure
type candidate struct {
	element int
	desc    *ds.ArrayDesc
}

// Locate finds an array inside m and returns a view of one of its element
// fields. structName selects the top level structure; an empty name
// requires m to hold exactly one. numDim restricts the dimensionality (0
// accepts any), dimNames requires the named dimensions in that order and
// elemName selects the element field.
//
// When dimNames lists the dimensions in an order different from storage,
// the array is transposed in place before the view is built. Every other
// view of the same array is invalidated by the transpose.
func Locate(m *ds.Multi, structName string, numDim int, dimNames []string, elemName string) (*View, error) {
	s, err := findStructure(m, structName)
	if err != nil {
		return nil, err
	}

	var all []candidate
	for i, e := range m.Headers[s].Elements {
		if e.Type == ds.ArrayType && e.Array != nil {
			all = append(all, candidate{element: i, desc: e.Array})
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("structure %q holds no arrays: %w", m.Names[s], ErrNotFound)
	}

	var chosen candidate
	switch {
	case len(dimNames) > 0:
		chosen, err = matchDimNames(all, numDim, dimNames)
	default:
		chosen, err = matchDimensionality(all, numDim, elemName)
	}
	if err != nil {
		return nil, err
	}

	field, err := findField(chosen.desc, elemName)
	if err != nil {
		return nil, err
	}

	if len(dimNames) > 0 {
		if err := transposeTo(m, s, chosen, dimNames); err != nil {
			return nil, err
		}
	}

	v := newView(m, s, chosen.element, field)
	if Verbose {
		logf("located %s in structure %q", v.describe(), m.Names[s])
	}
	return v, nil
}

func findStructure(m *ds.Multi, name string) (int, error) {
	if name != "" {
		s := m.FindStructure(name)
		if s < 0 {
			return -1, fmt.Errorf("structure %q: %w", name, ErrNotFound)
		}
		return s, nil
	}
	switch len(m.Names) {
	case 0:
		return -1, fmt.Errorf("empty structure: %w", ErrNotFound)
	case 1:
		return 0, nil
	}
	return -1, fmt.Errorf("%d structures and no name given: %w", len(m.Names), ErrAmbiguous)
}

// matchDimNames finds the array holding the first requested dimension
// and checks that it carries all the others
func matchDimNames(all []candidate, numDim int, dimNames []string) (candidate, error) {
	if numDim > 0 && numDim != len(dimNames) {
		return candidate{}, fmt.Errorf("%d dimension names given for %d dimensions: %w",
			len(dimNames), numDim, ErrWrongDimensionality)
	}
	var chosen *candidate
	for i := range all {
		if all[i].desc.FindDim(dimNames[0]) >= 0 {
			chosen = &all[i]
			break
		}
	}
	if chosen == nil {
		return candidate{}, fmt.Errorf("dimension %q: %w", dimNames[0], ErrMissingDimension)
	}
	if len(chosen.desc.Dims) != len(dimNames) {
		return candidate{}, fmt.Errorf("array with dimension %q has %d dimensions, wanted %d: %w",
			dimNames[0], len(chosen.desc.Dims), len(dimNames), ErrWrongDimensionality)
	}
	for _, name := range dimNames[1:] {
		if chosen.desc.FindDim(name) < 0 {
			return candidate{}, fmt.Errorf("dimension %q: %w", name, ErrMissingDimension)
		}
	}
	return *chosen, nil
}

// matchDimensionality picks the unique array of the wanted dimensionality,
// or with elemName the first one carrying that element
func matchDimensionality(all []candidate, numDim int, elemName string) (candidate, error) {
	var matches []candidate
	for _, c := range all {
		if numDim == 0 || len(c.desc.Dims) == numDim {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return candidate{}, fmt.Errorf("no %d-dimensional array: %w", numDim, ErrWrongDimensionality)
	}
	if elemName != "" {
		for _, c := range matches {
			if c.desc.Packet.Find(elemName) >= 0 {
				return c, nil
			}
		}
		return candidate{}, fmt.Errorf("element %q: %w", elemName, ErrMissingField)
	}
	if len(matches) > 1 {
		return candidate{}, fmt.Errorf("%d candidate arrays: %w", len(matches), ErrAmbiguous)
	}
	return matches[0], nil
}

func findField(desc *ds.ArrayDesc, elemName string) (int, error) {
	if elemName != "" {
		field := desc.Packet.Find(elemName)
		if field < 0 {
			return -1, fmt.Errorf("element %q: %w", elemName, ErrMissingField)
		}
		return field, nil
	}
	if n := len(desc.Packet.Elements); n != 1 {
		return -1, fmt.Errorf("array packet has %d elements and none named: %w", n, ErrAmbiguous)
	}
	return 0, nil
}

func transposeTo(m *ds.Multi, s int, c candidate, dimNames []string) error {
	order := make([]int, len(dimNames))
	identity := true
	for i, name := range dimNames {
		order[i] = c.desc.FindDim(name)
		if order[i] != i {
			identity = false
		}
	}
	if identity {
		return nil
	}
	logf("transposing array in structure %q to dimension order %v", m.Names[s], dimNames)
	_, arr := m.ArrayAt(s, c.element)
	if err := ds.ReorderArray(c.desc, arr, order); err != nil {
		return fmt.Errorf("error transposing array: %w", err)
	}
	return nil
}
