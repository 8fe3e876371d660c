package ds

import (
	"fmt"
	"log"
)

// Verbose enables diagnostic logging from this package
var Verbose = false

func logf(format string, args ...interface{}) {
	log.Printf("ds: "+format, args...)
}

// CopyMultiUntil deep copies m. The element whose array descriptor is
// target is left as a hole: its descriptor and data are dropped so the
// caller can fill it with a new array. Every other element, including
// sibling arrays, is copied with its data.
func CopyMultiUntil(m *Multi, target *ArrayDesc) (*Multi, error) {
	out := &Multi{
		Names:   append([]string(nil), m.Names...),
		Headers: make([]*PacketDesc, len(m.Headers)),
		Data:    make([]*Packet, len(m.Data)),
	}
	for s, header := range m.Headers {
		desc := &PacketDesc{Elements: make([]Element, len(header.Elements))}
		packet := &Packet{Values: make([]any, len(header.Elements))}
		for i, e := range header.Elements {
			desc.Elements[i] = Element{Name: e.Name, Type: e.Type}
			switch {
			case e.Type == ArrayType:
				if e.Array == nil || e.Array == target {
					continue
				}
				desc.Elements[i].Array = e.Array.clone()
				src, ok := m.Data[s].Values[i].(*Array)
				if !ok {
					return nil, fmt.Errorf("element %q has no array data", e.Name)
				}
				packet.Values[i] = &Array{Data: append([]byte(nil), src.Data...)}
			default:
				packet.Values[i] = m.Data[s].Values[i]
			}
		}
		out.Headers[s] = desc
		out.Data[s] = packet
	}
	return out, nil
}

// FindHole returns the index of the unique unfilled array element of desc
func FindHole(desc *PacketDesc) (int, error) {
	hole := -1
	for i, e := range desc.Elements {
		if e.Type != ArrayType || e.Array != nil {
			continue
		}
		if hole >= 0 {
			return -1, ErrMultipleHoles
		}
		hole = i
	}
	if hole < 0 {
		return -1, ErrNoHole
	}
	return hole, nil
}

// ReorderArray physically permutes the dimensions of an array so that new
// dimension i is old dimension order[i]. Data is rearranged in place and
// the offset tables are recomputed.
func ReorderArray(desc *ArrayDesc, arr *Array, order []int) error {
	n := len(desc.Dims)
	if len(order) != n {
		return fmt.Errorf("reorder needs %d dimensions, got %d", n, len(order))
	}
	seen := make([]bool, n)
	identity := true
	for i, o := range order {
		if o < 0 || o >= n || seen[o] {
			return fmt.Errorf("invalid dimension order %v", order)
		}
		seen[o] = true
		if o != i {
			identity = false
		}
	}
	if identity {
		return nil
	}

	oldOffsets := desc.Offsets()
	packetSize := desc.Packet.Size()
	newDims := make([]Dimension, n)
	for i, o := range order {
		newDims[i] = desc.Dims[o]
	}

	reordered := make([]byte, len(arr.Data))
	coords := make([]int, n)
	for dst := 0; dst < len(reordered); dst += packetSize {
		src := 0
		for i, o := range order {
			src += oldOffsets[o][coords[i]]
		}
		copy(reordered[dst:dst+packetSize], arr.Data[src:src+packetSize])
		for d := n - 1; d >= 0; d-- {
			coords[d]++
			if coords[d] < newDims[d].Length {
				break
			}
			coords[d] = 0
		}
	}
	copy(arr.Data, reordered)

	desc.mu.Lock()
	desc.Dims = newDims
	desc.computeOffsetsLocked()
	desc.mu.Unlock()
	return nil
}

// GetNamedValue searches the top level structures of m for an atomic or
// string element called name.
func (m *Multi) GetNamedValue(name string) (any, error) {
	for s, header := range m.Headers {
		i := header.Find(name)
		if i < 0 || header.Elements[i].Type == ArrayType {
			continue
		}
		return m.Data[s].Values[i], nil
	}
	return nil, fmt.Errorf("named value %q: %w", name, ErrNotFound)
}

// PutNamedValue stores value under name in structure s, adding a new
// element when the name is not present. Value must be a float64,
// complex128 or string.
func (m *Multi) PutNamedValue(s int, name string, value any) error {
	var t ElementType
	switch value.(type) {
	case float64:
		t = Double
	case complex128:
		t = DComplex
	case string:
		t = String
	default:
		return fmt.Errorf("named value %q has unsupported type %T", name, value)
	}
	header := m.Headers[s]
	if i := header.Find(name); i >= 0 {
		existing := header.Elements[i].Type
		switch {
		case existing == ArrayType:
			return fmt.Errorf("named value %q is an array", name)
		case (existing == String) != (t == String):
			return fmt.Errorf("named value %q has type %s", name, existing)
		case existing.IsAtomic() && !existing.IsComplex() && t == DComplex:
			return fmt.Errorf("named value %q is real", name)
		case existing.IsComplex() && t == Double:
			value = complex(value.(float64), 0)
		}
		m.Data[s].Values[i] = value
		return nil
	}
	header.Elements = append(header.Elements, Element{Name: name, Type: t})
	m.Data[s].Values = append(m.Data[s].Values, value)
	return nil
}
