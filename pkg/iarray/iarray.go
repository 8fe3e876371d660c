// Package iarray implements n-dimensional strided views over arrays held
// in ds structures. A View addresses its elements through per-dimension
// offset tables rather than strides, so sliced, transposed and toroidally
// wrapped layouts are all iterated the same way. The package also carries
// the threaded reductions (min/max, histogram) and the elementwise
// transforms (copy, scale and offset, clip, add and subtract) that operate
// directly on views.
package iarray

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"arrayvis/pkg/ds"
)

// Verbose enables diagnostic logging from this package
var Verbose = false

var (
	// ErrNotFound is returned when no candidate array exists
	ErrNotFound = errors.New("array not found")

	// ErrAmbiguous is returned when more than one candidate matches
	ErrAmbiguous = errors.New("ambiguous array match")

	// ErrWrongDimensionality is returned when the candidate has the wrong number of dimensions
	ErrWrongDimensionality = errors.New("wrong number of dimensions")

	// ErrMissingDimension is returned when a requested dimension name is absent
	ErrMissingDimension = errors.New("required dimension not found")

	// ErrMissingField is returned when a requested element name is absent
	ErrMissingField = errors.New("required element not found")

	// ErrShapeMismatch is returned when operand views differ in shape
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrTypeMismatch is returned for an element type an operation cannot handle
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNotOriginal is returned when saving a derived view
	ErrNotOriginal = errors.New("view is not an original array")

	// ErrOutOfRange is returned when a sub-view lies outside its parent
	ErrOutOfRange = errors.New("index out of range")

	// ErrNoData is returned when a reduction finds no usable values
	ErrNoData = errors.New("no valid data")
)

// DefaultElementName is used for new arrays when no element name is given
const DefaultElementName = "Data Value"

// Restriction records the fixed position of a dimension hidden by slicing.
type Restriction struct {
	Dim   int // dimension index in the underlying array
	Index int
}

// View is a strided view of one element field of an n-dimensional array.
// Views share the underlying storage and hold an attachment on the
// structure that owns it.
type View struct {
	multi     *ds.Multi
	structure int
	element   int
	desc      *ds.ArrayDesc
	arr       *ds.Array
	field     int
	elemType  ds.ElementType

	// base is the byte address of the element at index zero in every
	// dimension, relative to the start of the array data
	base int

	lengths []int

	// offsets[d] holds lengths[d]+2*boundary entries; index i is at i+boundary
	offsets    [][]int
	boundary   int
	strides    []int
	contiguous []bool

	origDims     []int
	restrictions []Restriction
	original     bool

	mu        sync.Mutex
	destroyed bool
	hooks     map[int]func()
	nextHook  int
}

var (
	allocDebugOnce sync.Once
	allocDebug     bool
)

func allocDebugEnabled() bool {
	allocDebugOnce.Do(func() {
		value := strings.TrimSpace(os.Getenv("IARRAY_ALLOC_DEBUG"))
		if value == "" {
			return
		}
		if b, err := strconv.ParseBool(value); err == nil {
			allocDebug = b
			return
		}
		allocDebug = true
	})
	return allocDebug
}

func logf(format string, args ...interface{}) {
	log.Printf("iarray: "+format, args...)
}

// newView builds a full view over element field of the array stored in
// element of structure. The caller owns the attachment made here.
func newView(m *ds.Multi, structure, element, field int) *View {
	desc, arr := m.ArrayAt(structure, element)
	tables := desc.Offsets()
	n := len(desc.Dims)
	v := &View{
		multi:     m,
		structure: structure,
		element:   element,
		desc:      desc,
		arr:       arr,
		field:     field,
		elemType:  desc.Packet.Elements[field].Type,
		base:      desc.Packet.Offset(field),
		lengths:   make([]int, n),
		offsets:   make([][]int, n),
		origDims:  make([]int, n),
		original:  true,
	}
	for d := 0; d < n; d++ {
		v.lengths[d] = desc.Dims[d].Length
		v.offsets[d] = tables[d]
		v.origDims[d] = d
	}
	v.computeContiguity()
	m.Attach()
	return v
}

// naturalStride returns the row-major byte stride of underlying dimension d
func naturalStride(desc *ds.ArrayDesc, d int) int {
	stride := desc.Packet.Size()
	for i := d + 1; i < len(desc.Dims); i++ {
		stride *= desc.Dims[i].Length
	}
	return stride
}

func (v *View) computeContiguity() {
	n := len(v.lengths)
	v.strides = make([]int, n)
	v.contiguous = make([]bool, n)
	for d := 0; d < n; d++ {
		stride := naturalStride(v.desc, v.origDims[d])
		table := v.Table(d)
		ok := true
		for i := 1; i < len(table); i++ {
			if table[i]-table[i-1] != stride {
				ok = false
				break
			}
		}
		v.strides[d] = stride
		v.contiguous[d] = ok
	}
}

func (v *View) checkAlive() {
	v.mu.Lock()
	destroyed := v.destroyed
	v.mu.Unlock()
	if destroyed {
		panic(pkgerrors.Errorf("iarray: use of destroyed view"))
	}
}

// Destroy releases the view. Destroy hooks run first, then the attachment
// on the underlying structure is dropped, freeing it when it was the last.
func (v *View) Destroy() {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		panic(pkgerrors.Errorf("iarray: view destroyed twice"))
	}
	v.destroyed = true
	hooks := make([]func(), 0, len(v.hooks))
	for id := 0; id < v.nextHook; id++ {
		if fn, ok := v.hooks[id]; ok {
			hooks = append(hooks, fn)
		}
	}
	v.hooks = nil
	v.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	if v.original && allocDebugEnabled() {
		logf("destroy %s", v.describe())
	}
	v.multi.Detach()
}

// OnDestroy registers fn to run when the view is destroyed. The returned
// function unregisters it.
func (v *View) OnDestroy(fn func()) (cancel func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.hooks == nil {
		v.hooks = map[int]func(){}
	}
	id := v.nextHook
	v.nextHook++
	v.hooks[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.hooks, id)
	}
}

func (v *View) describe() string {
	dims := make([]string, len(v.lengths))
	for d, l := range v.lengths {
		dims[d] = fmt.Sprintf("%s=%d", v.DimName(d), l)
	}
	return fmt.Sprintf("[%s] type %s", strings.Join(dims, " "), v.elemType)
}

// NumDim returns the number of visible dimensions
func (v *View) NumDim() int { return len(v.lengths) }

// Len returns the length of visible dimension d
func (v *View) Len(d int) int { return v.lengths[d] }

// Lengths returns a copy of the visible dimension lengths
func (v *View) Lengths() []int { return append([]int(nil), v.lengths...) }

// NumElements returns the number of elements in the view
func (v *View) NumElements() int {
	n := 1
	for _, l := range v.lengths {
		n *= l
	}
	return n
}

// Type returns the element type
func (v *View) Type() ds.ElementType { return v.elemType }

// BoundaryWidth returns the toroidal halo width
func (v *View) BoundaryWidth() int { return v.boundary }

// Contiguous reports whether consecutive indices of dimension d are
// adjacent in the natural layout of the underlying array
func (v *View) Contiguous(d int) bool { return v.contiguous[d] }

// OrigDim returns the underlying dimension shown as visible dimension d
func (v *View) OrigDim(d int) int { return v.origDims[d] }

// Restrictions returns the fixed positions of dimensions hidden by slicing
func (v *View) Restrictions() []Restriction {
	return append([]Restriction(nil), v.restrictions...)
}

// IsOriginal reports whether the view covers a whole array it may save
func (v *View) IsOriginal() bool { return v.original }

// Multi returns the structure the view is attached to
func (v *View) Multi() *ds.Multi { return v.multi }

// Data returns the underlying array storage
func (v *View) Data() []byte { return v.arr.Data }

// Base returns the byte address of the zero index within Data
func (v *View) Base() int { return v.base }

// DimName returns the name of visible dimension d
func (v *View) DimName(d int) string {
	return v.desc.Dims[v.origDims[d]].Name
}

// WorldRange returns the co-ordinates of the first and last index of
// visible dimension d
func (v *View) WorldRange(d int) (first, last float64) {
	dim := v.desc.Dims[v.origDims[d]]
	return dim.First, dim.Last
}

// SetWorldRange sets the co-ordinates of the first and last index of
// visible dimension d. It changes every view of the array.
func (v *View) SetWorldRange(d int, first, last float64) {
	dim := &v.desc.Dims[v.origDims[d]]
	dim.First, dim.Last = first, last
}

// Table returns the offset table of visible dimension d for indices
// [0, Len(d)). The slice is shared and must not be modified.
func (v *View) Table(d int) []int {
	return v.offsets[d][v.boundary : v.boundary+v.lengths[d]]
}

// Offset returns the byte offset of index i along dimension d. Valid
// indices lie in [-BoundaryWidth(), Len(d)+BoundaryWidth()).
func (v *View) Offset(d, i int) int {
	return v.offsets[d][i+v.boundary]
}

// IsFullArray reports whether the view has exactly the shape and layout
// of the underlying array, making it eligible for flat memory scans
func (v *View) IsFullArray() bool {
	if len(v.restrictions) > 0 || len(v.lengths) != len(v.desc.Dims) {
		return false
	}
	if v.base != v.desc.Packet.Offset(v.field) {
		return false
	}
	for d, l := range v.lengths {
		if v.origDims[d] != d || l != v.desc.Dims[d].Length || !v.contiguous[d] || v.Offset(d, 0) != 0 {
			return false
		}
	}
	return true
}
