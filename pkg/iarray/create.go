package iarray

import (
	"fmt"

	"arrayvis/pkg/ds"
)

// CreateOptions controls Create. The zero value creates a plain array.
type CreateOptions struct {
	// ElemName names the element field. Defaults to DefaultElementName.
	ElemName string

	// Template supplies auxiliary values and sibling arrays that are
	// copied into the new structure. The template's own array is replaced
	// by the new one.
	Template *View

	// BoundaryWidth remaps the new view toroidally with this halo width
	BoundaryWidth int
}

// Create allocates a new array of the given element type and returns an
// original view of it. Dimensions are listed most significant first.
func Create(t ds.ElementType, dimNames []string, lengths []int, opts *CreateOptions) (*View, error) {
	if opts == nil {
		opts = &CreateOptions{}
	}
	if !t.IsAtomic() {
		return nil, fmt.Errorf("cannot create array of %s: %w", t, ErrTypeMismatch)
	}
	elemName := opts.ElemName
	if elemName == "" {
		elemName = DefaultElementName
	}
	packet, err := ds.NewPacketDesc([]string{elemName}, []ds.ElementType{t})
	if err != nil {
		return nil, err
	}
	adesc, err := ds.NewArrayDesc(dimNames, lengths, packet)
	if err != nil {
		return nil, err
	}
	arr, err := ds.AllocArray(adesc)
	if err != nil {
		return nil, fmt.Errorf("error allocating array: %w", err)
	}

	var (
		m       *ds.Multi
		s, hole int
	)
	if opts.Template != nil {
		m, s, hole, err = copyTemplate(opts.Template, adesc)
		if err != nil {
			return nil, err
		}
	} else {
		top := &ds.PacketDesc{Elements: []ds.Element{{Name: "Array", Type: ds.ArrayType, Array: adesc}}}
		m = &ds.Multi{Names: []string{""}, Headers: []*ds.PacketDesc{top}}
		m.Data = []*ds.Packet{{Values: []any{nil}}}
	}
	m.Headers[s].Elements[hole].Array = adesc
	m.Data[s].Values[hole] = arr

	v := newView(m, s, hole, 0)
	if allocDebugEnabled() {
		logf("create %s", v.describe())
	}
	if opts.BoundaryWidth > 0 {
		if err := v.RemapToroidal(opts.BoundaryWidth); err != nil {
			v.Destroy()
			return nil, err
		}
	}
	return v, nil
}

// copyTemplate copies the template structure leaving its array as a hole
// and returns the location of the hole
func copyTemplate(tmpl *View, adesc *ds.ArrayDesc) (*ds.Multi, int, int, error) {
	tmpl.checkAlive()
	m, err := ds.CopyMultiUntil(tmpl.multi, tmpl.desc)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("error copying template: %w", err)
	}
	s := tmpl.structure
	hole, err := ds.FindHole(m.Headers[s])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("error filling template: %w", err)
	}
	// world co-ordinates survive when a dimension keeps its name and length
	for i, dim := range adesc.Dims {
		j := tmpl.desc.FindDim(dim.Name)
		if j >= 0 && tmpl.desc.Dims[j].Length == dim.Length {
			adesc.Dims[i].First = tmpl.desc.Dims[j].First
			adesc.Dims[i].Last = tmpl.desc.Dims[j].Last
		}
	}
	return m, s, hole, nil
}
