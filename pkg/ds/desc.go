package ds

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

var (
	// ErrNotFound is returned when a named item does not exist
	ErrNotFound = errors.New("not found")

	// ErrNoHole is returned when a copied packet has no unfilled array element
	ErrNoHole = errors.New("no hole found in packet")

	// ErrMultipleHoles is returned when a copied packet has more than one unfilled array element
	ErrMultipleHoles = errors.New("multiple holes found in packet")

	// ErrAllocation is returned when an array is too large to allocate
	ErrAllocation = errors.New("allocation failed")
)

// Element describes one named field of a packet.
type Element struct {
	Name string
	Type ElementType

	// Array describes the array held by an ArrayType element. A nil Array
	// on an ArrayType element marks a hole waiting to be filled.
	Array *ArrayDesc
}

// PacketDesc describes the layout of a packet. Packets inside arrays hold
// atomic elements only and are stored packed in declaration order.
type PacketDesc struct {
	Elements []Element
}

// NewPacketDesc builds an array element packet of atomic fields
func NewPacketDesc(names []string, types []ElementType) (*PacketDesc, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("packet has %d names but %d types", len(names), len(types))
	}
	p := &PacketDesc{}
	for i, name := range names {
		if !types[i].IsAtomic() {
			return nil, fmt.Errorf("packet element %q has non-atomic type %s", name, types[i])
		}
		p.Elements = append(p.Elements, Element{Name: name, Type: types[i]})
	}
	return p, nil
}

// Find returns the index of the element with the given name, or -1
func (p *PacketDesc) Find(name string) int {
	for i, e := range p.Elements {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// Size returns the packed size in bytes of the atomic elements
func (p *PacketDesc) Size() int {
	size := 0
	for _, e := range p.Elements {
		size += e.Type.Size()
	}
	return size
}

// Offset returns the byte offset of element index within a packed packet
func (p *PacketDesc) Offset(index int) int {
	offset := 0
	for _, e := range p.Elements[:index] {
		offset += e.Type.Size()
	}
	return offset
}

// Dimension describes one axis of an array. First and Last are the world
// co-ordinates of the first and last index.
type Dimension struct {
	Name   string  `yaml:"name"`
	Length int     `yaml:"length"`
	First  float64 `yaml:"first"`
	Last   float64 `yaml:"last"`
}

// ArrayDesc describes an n-dimensional array of packets, most significant
// dimension first.
type ArrayDesc struct {
	Dims   []Dimension
	Packet *PacketDesc

	mu      sync.Mutex
	offsets [][]int
}

// NewArrayDesc creates a descriptor. Dimension co-ordinates default to
// the index range.
func NewArrayDesc(names []string, lengths []int, packet *PacketDesc) (*ArrayDesc, error) {
	if len(names) != len(lengths) {
		return nil, fmt.Errorf("array has %d dimension names but %d lengths", len(names), len(lengths))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("array must have at least one dimension")
	}
	desc := &ArrayDesc{Packet: packet}
	for i, name := range names {
		if lengths[i] < 1 {
			return nil, fmt.Errorf("dimension %q has length %d", name, lengths[i])
		}
		desc.Dims = append(desc.Dims, Dimension{
			Name:   name,
			Length: lengths[i],
			First:  0,
			Last:   float64(lengths[i] - 1),
		})
	}
	return desc, nil
}

// FindDim returns the index of the named dimension, or -1
func (a *ArrayDesc) FindDim(name string) int {
	for i, d := range a.Dims {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// NumElements returns the number of packets in the array
func (a *ArrayDesc) NumElements() int {
	n := 1
	for _, d := range a.Dims {
		n *= d.Length
	}
	return n
}

// Bytes returns the storage size of the array, or an error on overflow
func (a *ArrayDesc) Bytes() (int, error) {
	total := float64(a.Packet.Size())
	for _, d := range a.Dims {
		total *= float64(d.Length)
	}
	if total > math.MaxInt32*64.0 {
		return 0, fmt.Errorf("array of %.0f bytes: %w", total, ErrAllocation)
	}
	return int(total), nil
}

// Offsets returns the per-dimension address offset tables, computing them
// on first use. The tables are shared by every view of the array and must
// not be modified.
func (a *ArrayDesc) Offsets() [][]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offsets == nil {
		a.computeOffsetsLocked()
	}
	return a.offsets
}

// HasOffsets reports whether the offset tables have been computed
func (a *ArrayDesc) HasOffsets() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offsets != nil
}

func (a *ArrayDesc) computeOffsetsLocked() {
	offsets := make([][]int, len(a.Dims))
	stride := a.Packet.Size()
	for d := len(a.Dims) - 1; d >= 0; d-- {
		table := make([]int, a.Dims[d].Length)
		for i := range table {
			table[i] = i * stride
		}
		offsets[d] = table
		stride *= a.Dims[d].Length
	}
	a.offsets = offsets
}

// clone returns a deep copy of the descriptor without offset tables
func (a *ArrayDesc) clone() *ArrayDesc {
	packet := &PacketDesc{Elements: append([]Element(nil), a.Packet.Elements...)}
	return &ArrayDesc{
		Dims:   append([]Dimension(nil), a.Dims...),
		Packet: packet,
	}
}

// Array is an allocated array instance.
type Array struct {
	Data []byte
}

// AllocArray allocates zeroed storage for desc
func AllocArray(desc *ArrayDesc) (*Array, error) {
	size, err := desc.Bytes()
	if err != nil {
		return nil, err
	}
	return &Array{Data: make([]byte, size)}, nil
}

// Packet is a top level packet instance. Values holds one entry per
// element: float64 for real types, complex128 for complex types, string
// for String and *Array for ArrayType.
type Packet struct {
	Values []any
}

// AllocPacket allocates a top level packet, including any arrays it describes
func AllocPacket(desc *PacketDesc) (*Packet, error) {
	p := &Packet{Values: make([]any, len(desc.Elements))}
	for i, e := range desc.Elements {
		switch {
		case e.Type == ArrayType:
			if e.Array == nil {
				continue
			}
			arr, err := AllocArray(e.Array)
			if err != nil {
				return nil, fmt.Errorf("element %q: %w", e.Name, err)
			}
			p.Values[i] = arr
		case e.Type == String:
			p.Values[i] = ""
		case e.Type.IsComplex():
			p.Values[i] = complex128(0)
		default:
			p.Values[i] = float64(0)
		}
	}
	return p, nil
}

// Multi is a reference counted set of named top level structures. Views
// attach to a Multi while they use it; the last detach releases it.
type Multi struct {
	Names   []string
	Headers []*PacketDesc
	Data    []*Packet

	attachments atomic.Int32
	release     func() error
	released    atomic.Bool
}

// NewMulti allocates a structure with a single top level packet
func NewMulti(name string, desc *PacketDesc) (*Multi, error) {
	packet, err := AllocPacket(desc)
	if err != nil {
		return nil, err
	}
	return &Multi{
		Names:   []string{name},
		Headers: []*PacketDesc{desc},
		Data:    []*Packet{packet},
	}, nil
}

// Attach increments the attachment count
func (m *Multi) Attach() {
	m.attachments.Add(1)
}

// Detach decrements the attachment count, releasing the structure when it
// reaches zero. It reports whether the structure was released.
func (m *Multi) Detach() bool {
	n := m.attachments.Add(-1)
	if n < 0 {
		panic("ds: Multi detached more times than attached")
	}
	if n > 0 {
		return false
	}
	m.free()
	return true
}

// Attachments returns the current attachment count
func (m *Multi) Attachments() int {
	return int(m.attachments.Load())
}

// Discard releases a structure nobody attached to, for example after a
// failed lookup on a freshly read file.
func (m *Multi) Discard() {
	if m.attachments.Load() == 0 {
		m.free()
	}
}

// Released reports whether the structure storage has been released
func (m *Multi) Released() bool {
	return m.released.Load()
}

func (m *Multi) free() {
	if !m.released.CompareAndSwap(false, true) {
		return
	}
	if m.release != nil {
		if err := m.release(); err != nil {
			logf("releasing structure: %v", err)
		}
	}
	for _, p := range m.Data {
		for i := range p.Values {
			p.Values[i] = nil
		}
	}
}

// FindStructure returns the index of the named top level structure, or -1
func (m *Multi) FindStructure(name string) int {
	for i, n := range m.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// ArrayAt returns the array descriptor and instance for a top level element
func (m *Multi) ArrayAt(structure, element int) (*ArrayDesc, *Array) {
	desc := m.Headers[structure].Elements[element].Array
	arr, _ := m.Data[structure].Values[element].(*Array)
	return desc, arr
}
