// Package vrender ray casts a 3-D byte cube into 2-D images. A Context
// keeps per-eye caches of scanline visibility and of the voxel samples
// along every ray, built all at once, lazily, or a step at a time from a
// cooperative scheduler.
package vrender

import (
	"errors"
	"fmt"
	"log"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"arrayvis/internal/models"
	"arrayvis/pkg/background"
	"arrayvis/pkg/ds"
	"arrayvis/pkg/iarray"
	"arrayvis/pkg/threadpool"
)

// Verbose enables diagnostic logging from this package
var Verbose = false

var (
	// ErrNoCube is returned when rendering without a cube
	ErrNoCube = errors.New("no cube")

	// ErrBadCube is returned for a cube that is not a 3-D byte array
	ErrBadCube = errors.New("cube must be a 3-D byte array")

	// ErrBadView is returned for a degenerate view specification
	ErrBadView = errors.New("invalid view")

	// ErrNoImage is returned when the output image size is unknown
	ErrNoImage = errors.New("image size not set")

	// ErrNoShader is returned when rendering without a shader
	ErrNoShader = errors.New("no shader")
)

func logf(format string, args ...interface{}) {
	log.Printf("vrender: "+format, args...)
}

// Context holds a cube, a view of it and the caches derived from them.
// Its methods are safe for concurrent use.
type Context struct {
	mu sync.Mutex

	cube       *iarray.View
	cancelHook func()

	view       ViewSpec
	shader     *Shader
	subCube    models.SubCube
	projection models.Projection
	separation float64
	smooth     bool

	width, height int

	eyes      [models.NumEyes]*eyeInfo
	didStereo bool

	pool      *threadpool.Pool
	scheduler background.Scheduler

	computedHooks []func(eyes []models.Eye)
}

// Option changes one attribute of a Context.
type Option func(c *Context) error

// NewContext creates a context. Attributes may also be set later with Set.
func NewContext(opts ...Option) (*Context, error) {
	c := &Context{}
	c.eyes[models.Cyclops] = &eyeInfo{eye: models.Cyclops}
	if err := c.Set(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Set applies options in order. Each option invalidates exactly the
// caches it affects. Options applied before a failing one stay applied.
func (c *Context) Set(opts ...Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// WithCube sets the cube to render. It must be a 3-D UByte view. The
// context forgets the cube if it is destroyed elsewhere.
func WithCube(cube *iarray.View) Option {
	return func(c *Context) error {
		if cube != nil && (cube.NumDim() != 3 || cube.Type() != ds.UByte) {
			return fmt.Errorf("%d-D %s view: %w", cube.NumDim(), cube.Type(), ErrBadCube)
		}
		if c.cancelHook != nil {
			c.cancelHook()
			c.cancelHook = nil
		}
		c.cube = cube
		if cube != nil {
			nz, ny, nx := cube.Len(0), cube.Len(1), cube.Len(2)
			if c.subCube.IsZero() || c.subCube.Validate(nx, ny, nz) != nil {
				c.subCube = models.FullSubCube(nx, ny, nz)
			}
			c.cancelHook = cube.OnDestroy(c.dropCube)
		}
		c.invalidate(allEyes)
		return nil
	}
}

// WithView sets the eye position, focus and up vector
func WithView(view ViewSpec) Option {
	return func(c *Context) error {
		if err := view.Validate(); err != nil {
			return err
		}
		c.view = view
		c.invalidate(allEyes)
		return nil
	}
}

// WithShader selects a shader from DefaultRegistry
func WithShader(name string) Option {
	return func(c *Context) error {
		s, ok := Lookup(name)
		if !ok {
			return fmt.Errorf("shader %q: %w", name, ErrNoShader)
		}
		c.shader = s
		return nil
	}
}

// WithShaderFunc sets a shader that need not be registered
func WithShaderFunc(s *Shader) Option {
	return func(c *Context) error {
		if s == nil || s.Slow == nil {
			return ErrNoShader
		}
		c.shader = s
		return nil
	}
}

// WithSubCube restricts rendering to a box of voxels
func WithSubCube(box models.SubCube) Option {
	return func(c *Context) error {
		if c.cube != nil {
			if err := box.Validate(c.cube.Len(2), c.cube.Len(1), c.cube.Len(0)); err != nil {
				return err
			}
		}
		c.subCube = box
		c.invalidate(allEyes)
		return nil
	}
}

// WithProjection selects parallel or perspective rays
func WithProjection(p models.Projection) Option {
	return func(c *Context) error {
		c.projection = p
		c.invalidate(allEyes)
		return nil
	}
}

// WithEyeSeparation sets the stereo baseline in voxels
func WithEyeSeparation(separation float64) Option {
	return func(c *Context) error {
		c.separation = separation
		c.invalidate(stereoEyes)
		return nil
	}
}

// WithSmoothCache selects bilinear rather than nearest voxel sampling
func WithSmoothCache(smooth bool) Option {
	return func(c *Context) error {
		if c.smooth == smooth {
			return nil
		}
		c.smooth = smooth
		for _, e := range c.eyes {
			if e != nil {
				e.invalidateSamples()
			}
		}
		return nil
	}
}

// WithImageSize sets the output image size. Rendering sets it from the
// image, so this is only needed before projecting points or testing
// pixels.
func WithImageSize(width, height int) Option {
	return func(c *Context) error {
		if width < 1 || height < 1 {
			return fmt.Errorf("image size %dx%d: %w", width, height, ErrNoImage)
		}
		c.setImageSize(width, height)
		return nil
	}
}

// WithPool sets the thread pool. The shared pool is used by default.
func WithPool(pool *threadpool.Pool) Option {
	return func(c *Context) error {
		c.pool = pool
		return nil
	}
}

// WithScheduler sets where stereo cache computation is scheduled. Without
// one it runs inline.
func WithScheduler(s background.Scheduler) Option {
	return func(c *Context) error {
		c.scheduler = s
		return nil
	}
}

func (c *Context) setImageSize(width, height int) {
	if width == c.width && height == c.height {
		return
	}
	c.width, c.height = width, height
	c.invalidate(allEyes)
}

func (c *Context) threads() *threadpool.Pool {
	if c.pool == nil {
		return threadpool.Shared()
	}
	return c.pool
}

var (
	allEyes    = []models.Eye{models.Cyclops, models.Left, models.Right}
	stereoEyes = []models.Eye{models.Left, models.Right}
)

func (c *Context) invalidate(eyes []models.Eye) {
	for _, eye := range eyes {
		if e := c.eyes[eye]; e != nil {
			e.reset()
		}
	}
}

func (c *Context) dropCube() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if Verbose {
		logf("cube destroyed, invalidating caches")
	}
	c.cube = nil
	c.cancelHook = nil
	c.invalidate(allEyes)
}

// Cube returns the current cube, or nil
func (c *Context) Cube() *iarray.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cube
}

// View returns the current view specification
func (c *Context) View() ViewSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SubCube returns the current sub-cube
func (c *Context) SubCube() models.SubCube {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subCube
}

// OnCachesComputed registers fn to run whenever a cache builder finishes
func (c *Context) OnCachesComputed(fn func(eyes []models.Eye)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computedHooks = append(c.computedHooks, fn)
}

// Close releases every cache and the destroy hook on the cube
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelHook != nil {
		c.cancelHook()
		c.cancelHook = nil
	}
	c.cube = nil
	c.invalidate(allEyes)
}

// eyeLocked returns the record for eye, allocating stereo records on
// first use
func (c *Context) eyeLocked(eye models.Eye) *eyeInfo {
	if eye < 0 || int(eye) >= models.NumEyes {
		panic(pkgerrors.Errorf("vrender: unknown eye %d", int(eye)))
	}
	if c.eyes[eye] == nil {
		c.eyes[eye] = &eyeInfo{eye: eye}
	}
	return c.eyes[eye]
}

// prepare computes the frame of eye if its caches were invalidated. It
// returns an error when the context lacks a cube, view or image size.
func (c *Context) prepare(eye models.Eye) (*eyeInfo, error) {
	e := c.eyeLocked(eye)
	if e.phase != phaseUninitialized {
		return e, nil
	}
	if c.cube == nil {
		return nil, ErrNoCube
	}
	if err := c.view.Validate(); err != nil {
		return nil, err
	}
	if c.width < 1 || c.height < 1 {
		return nil, ErrNoImage
	}

	pos := c.view.Position
	if eye != models.Cyclops {
		cyclops := newFrame(c.view.Position, c.view.Focus, c.view.Up, c.projection, c.width, c.height, c.subCube)
		half := c.separation / 2
		if eye == models.Left {
			half = -half
		}
		pos = addScaled(pos, half, cyclops.horiz)
	}
	e.setup(newFrame(pos, c.view.Focus, c.view.Up, c.projection, c.width, c.height, c.subCube), c.cube)
	if Verbose {
		logf("%s eye prepared, depth axis %d", eye, e.frame.perm[2])
	}
	return e, nil
}
