package vrender

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"arrayvis/pkg/ds"
)

// ErrDuplicateShader is returned when registering an existing name without replace
var ErrDuplicateShader = errors.New("shader already registered")

// Samples is the sequence of voxel values along one ray, in the order the
// ray meets them.
type Samples interface {
	Len() int
	At(i int) byte
}

// byteSamples adapts a collected ray buffer to Samples
type byteSamples []byte

func (b byteSamples) Len() int      { return len(b) }
func (b byteSamples) At(i int) byte { return b[i] }

// Shader turns the samples of a ray into a pixel value.
type Shader struct {
	Name string

	// Slow shades a ray sampled on demand
	Slow func(s Samples) float64

	// Fast shades a collected ray buffer. Optional; Slow is used when nil.
	Fast func(ray []byte) float64

	// PixelType is the element type of images the shader renders into
	PixelType ds.ElementType

	// Blank is written to pixels whose ray misses the cube
	Blank float64
}

func (s *Shader) shade(ray []byte) float64 {
	if s.Fast != nil {
		return s.Fast(ray)
	}
	return s.Slow(byteSamples(ray))
}

// Registry maps names to shaders, keeping registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	shaders map[string]*Shader
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{shaders: map[string]*Shader{}}
}

// Register adds s. With front set it is listed first, otherwise last. An
// existing shader of the same name is replaced only when replace is set;
// a replaced shader keeps its position unless front is set.
func (r *Registry) Register(s *Shader, front, replace bool) error {
	if s == nil || s.Name == "" || s.Slow == nil {
		return fmt.Errorf("shader must have a name and a slow function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shaders[s.Name]; ok {
		if !replace {
			return fmt.Errorf("shader %q: %w", s.Name, ErrDuplicateShader)
		}
		r.shaders[s.Name] = s
		if front {
			r.removeLocked(s.Name)
			r.order = append([]string{s.Name}, r.order...)
		}
		return nil
	}
	r.shaders[s.Name] = s
	if front {
		r.order = append([]string{s.Name}, r.order...)
	} else {
		r.order = append(r.order, s.Name)
	}
	return nil
}

func (r *Registry) removeLocked(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Lookup returns the named shader
func (r *Registry) Lookup(name string) (*Shader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shaders[name]
	return s, ok
}

// Names returns the registered names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// DefaultRegistry holds the built in shaders
var DefaultRegistry = NewRegistry()

// Register adds a shader to DefaultRegistry
func Register(s *Shader, front, replace bool) error {
	return DefaultRegistry.Register(s, front, replace)
}

// Lookup finds a shader in DefaultRegistry
func Lookup(name string) (*Shader, bool) {
	return DefaultRegistry.Lookup(name)
}

// ShaderNames lists DefaultRegistry in sorted order
func ShaderNames() []string {
	names := DefaultRegistry.Names()
	sort.Strings(names)
	return names
}

func mipSlow(s Samples) float64 {
	var peak byte
	for i := 0; i < s.Len(); i++ {
		if v := s.At(i); v > peak {
			peak = v
		}
	}
	return float64(peak)
}

func mipFast(ray []byte) float64 {
	var peak byte
	for _, v := range ray {
		if v > peak {
			peak = v
		}
	}
	return float64(peak)
}

func sumSlow(s Samples) float64 {
	total := 0.0
	for i := 0; i < s.Len(); i++ {
		total += float64(s.At(i))
	}
	return total
}

func sumFast(ray []byte) float64 {
	total := 0
	for _, v := range ray {
		total += int(v)
	}
	return float64(total)
}

func init() {
	builtins := []*Shader{
		{Name: "mip", Slow: mipSlow, Fast: mipFast, PixelType: ds.UByte},
		{
			Name:      "average",
			Slow:      func(s Samples) float64 { return sumSlow(s) / float64(s.Len()) },
			Fast:      func(ray []byte) float64 { return sumFast(ray) / float64(len(ray)) },
			PixelType: ds.Float,
		},
		{Name: "sum", Slow: sumSlow, Fast: sumFast, PixelType: ds.Float},
	}
	for _, s := range builtins {
		if err := Register(s, false, false); err != nil {
			panic(err)
		}
	}
}
