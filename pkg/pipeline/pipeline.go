// Package pipeline loads or synthesizes a byte cube, reports its
// statistics and renders it through a vrender context.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"arrayvis/internal/models"
	"arrayvis/pkg/background"
	"arrayvis/pkg/config"
	"arrayvis/pkg/ds"
	"arrayvis/pkg/iarray"
	"arrayvis/pkg/threadpool"
	"arrayvis/pkg/visualization"
	"arrayvis/pkg/vrender"
)

// FrameStats summarises one rendered image
type FrameStats struct {
	Name     string
	Min, Max float64
	Mean     float64
	StdDev   float64
	Hits     int
}

// Metrics collects what a run measured
type Metrics struct {
	CubeMin, CubeMax float64
	Histogram        []uint64
	Mode             int
	CacheSteps       int
	Frames           []FrameStats
	MeanIntensity    float64
}

// Renderer runs the pipeline for one configuration
type Renderer struct {
	cfg *config.Config

	pool   *threadpool.Pool
	engine *iarray.Engine
	cube   *iarray.View
	shader *vrender.Shader

	metrics Metrics
}

// NewRenderer creates a renderer. Process validates the configuration.
func NewRenderer(cfg *config.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// GetMetrics returns the measurements of the last Process call
func (r *Renderer) GetMetrics() Metrics {
	return r.metrics
}

// Process runs every step, writing images below the output directory
func (r *Renderer) Process() error {
	cfg := r.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	shader, ok := vrender.Lookup(cfg.Render.Shader)
	if !ok {
		return fmt.Errorf("shader %q: %w (have %v)", cfg.Render.Shader, vrender.ErrNoShader, vrender.ShaderNames())
	}
	r.shader = shader
	iarray.Verbose = cfg.Output.Verbose
	vrender.Verbose = cfg.Output.Verbose

	r.pool = threadpool.New(cfg.Processing.NumThreads)
	defer r.pool.Close()
	r.engine = iarray.NewEngine(r.pool)
	r.metrics = Metrics{}

	// Step 1: Load or synthesize the cube
	fmt.Println("Step 1: Loading cube...")
	cube, err := r.loadCube()
	if err != nil {
		return err
	}
	r.cube = cube
	defer func() {
		r.cube.Destroy()
		r.cube = nil
	}()
	fmt.Printf("Cube dimensions %dx%dx%d (z, y, x)\n", cube.Len(0), cube.Len(1), cube.Len(2))

	// Step 2: Statistics
	fmt.Println("Step 2: Computing cube statistics...")
	if err := r.cubeStatistics(); err != nil {
		return err
	}

	// Step 3: Render
	fmt.Println("Step 3: Rendering frames...")
	if err := r.renderFrames(); err != nil {
		return err
	}

	// Step 4: Slices
	if cfg.Output.SaveSlices {
		fmt.Println("Step 4: Saving cube slices...")
		viewer, err := visualization.NewViewer(cube)
		if err != nil {
			return err
		}
		dir := filepath.Join(cfg.Output.Dir, "slices")
		if err := viewer.SaveSliceSequence("z", dir, cfg.Output.Format); err != nil {
			return fmt.Errorf("error saving slices: %w", err)
		}
		fmt.Printf("Slices saved to: %s\n", dir)
	}

	means := make([]float64, len(r.metrics.Frames))
	for i, f := range r.metrics.Frames {
		means[i] = f.Mean
	}
	r.metrics.MeanIntensity = stat.Mean(means, nil)
	return nil
}

// loadCube reads the configured arrayfile, or synthesizes a sphere, and
// returns it as a UByte cube
func (r *Renderer) loadCube() (*iarray.View, error) {
	in := r.cfg.Input
	var (
		src *iarray.View
		err error
	)
	if in.ArrayFile != "" {
		src, err = iarray.Read(in.ArrayFile, ds.ReadOptions{Mmap: in.Mmap, Cache: in.Cache},
			iarray.ReadRequest{Structure: in.Structure, NumDim: 3})
		if err != nil {
			return nil, fmt.Errorf("error reading cube: %w", err)
		}
		fmt.Printf("Read %s cube from %s\n", src.Type(), ds.FileName(in.ArrayFile))
	} else {
		src, err = SyntheticCube(in.SyntheticSize)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Synthesized %d^3 sphere cube\n", in.SyntheticSize)
		name := filepath.Join(r.cfg.Output.Dir, "synthetic")
		if err := os.MkdirAll(r.cfg.Output.Dir, 0755); err != nil {
			src.Destroy()
			return nil, err
		}
		if err := src.Write(name); err != nil {
			src.Destroy()
			return nil, fmt.Errorf("error writing synthetic cube: %w", err)
		}
	}
	if src.Type() == ds.UByte {
		return src, nil
	}
	defer src.Destroy()
	return r.toBytes(src)
}

// toBytes rescales src to a UByte cube spanning [0, 255]
func (r *Renderer) toBytes(src *iarray.View) (*iarray.View, error) {
	lo, hi, err := r.engine.MinMax(src, ds.ConvAbs)
	if err != nil {
		return nil, fmt.Errorf("error scanning cube: %w", err)
	}
	names := []string{src.DimName(0), src.DimName(1), src.DimName(2)}
	out, err := iarray.Create(ds.UByte, names, src.Lengths(), &iarray.CreateOptions{Template: templateOf(src)})
	if errors.Is(err, ds.ErrMultipleHoles) {
		// sibling arrays in the source structure; keep only the cube
		out, err = iarray.Create(ds.UByte, names, src.Lengths(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("error allocating byte cube: %w", err)
	}
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	if src.Type().IsComplex() {
		// magnitudes first, then the real clip path
		mag, err := iarray.Create(ds.Double, names, src.Lengths(), nil)
		if err != nil {
			out.Destroy()
			return nil, err
		}
		defer mag.Destroy()
		if err := iarray.Copy(mag, src, true); err != nil {
			out.Destroy()
			return nil, err
		}
		src = mag
	}
	if err := iarray.ClipScaleAndOffset(out, src, lo, hi, scale, -lo*scale, false); err != nil {
		out.Destroy()
		return nil, fmt.Errorf("error converting cube to bytes: %w", err)
	}
	return out, nil
}

// templateOf returns src when its structure can seed a copy, or nil
func templateOf(src *iarray.View) *iarray.View {
	if src.IsOriginal() {
		return src
	}
	return nil
}

// SyntheticCube returns an n^3 Double cube holding a soft sphere with a
// denser off-centre core
func SyntheticCube(n int) (*iarray.View, error) {
	cube, err := iarray.Create(ds.Double, []string{"z", "y", "x"}, []int{n, n, n}, nil)
	if err != nil {
		return nil, err
	}
	c := float64(n-1) / 2
	radius := 0.4 * float64(n)
	core := r3.Vec{X: c + radius/3, Y: c, Z: c - radius/4}
	for coords := range cube.Elements() {
		p := r3.Vec{X: float64(coords[2]), Y: float64(coords[1]), Z: float64(coords[0])}
		d := r3.Norm(r3.Sub(p, r3.Vec{X: c, Y: c, Z: c}))
		value := 0.0
		if d < radius {
			value = 1 - d/radius
		}
		if dc := r3.Norm(r3.Sub(p, core)); dc < radius/3 {
			value += 2 * (1 - 3*dc/radius)
		}
		cube.Put(value, coords...)
	}
	for d := 0; d < 3; d++ {
		cube.SetWorldRange(d, 0, float64(n-1))
	}
	return cube, nil
}

func (r *Renderer) cubeStatistics() error {
	lo, hi, err := r.engine.MinMax(r.cube, ds.ConvReal)
	if err != nil && !errors.Is(err, iarray.ErrNoData) {
		return err
	}
	hist := make([]uint64, r.cfg.Histogram.Bins)
	top := hi
	if top <= lo {
		top = lo + 1
	}
	peak, mode, err := r.engine.Histogram(r.cube, ds.ConvReal, lo, top, hist)
	if err != nil {
		return err
	}
	r.metrics.CubeMin, r.metrics.CubeMax = lo, hi
	r.metrics.Histogram = hist
	r.metrics.Mode = mode
	fmt.Printf("Value range [%g, %g]\n", lo, hi)
	fmt.Printf("Histogram of %d bins, mode bin %d holds %d voxels\n", len(hist), mode, peak)
	if r.cfg.Output.Verbose {
		width := (top - lo) / float64(len(hist))
		for i, count := range hist {
			fmt.Printf("  [%7.2f, %7.2f) %d\n", lo+float64(i)*width, lo+float64(i+1)*width, count)
		}
	}
	return nil
}

// baseView fills in the configured view, defaulting the focus to the
// cube centre and the eye to a point in front of it
func (r *Renderer) baseView() vrender.ViewSpec {
	v := r.cfg.View
	focus := r3.Vec{X: v.Focus.X, Y: v.Focus.Y, Z: v.Focus.Z}
	if focus == (r3.Vec{}) {
		focus = r3.Vec{
			X: float64(r.cube.Len(2)-1) / 2,
			Y: float64(r.cube.Len(1)-1) / 2,
			Z: float64(r.cube.Len(0)-1) / 2,
		}
	}
	eye := r3.Vec{X: v.Eye.X, Y: v.Eye.Y, Z: v.Eye.Z}
	if eye == (r3.Vec{}) {
		size := max(r.cube.Len(0), r.cube.Len(1), r.cube.Len(2))
		eye = r3.Add(focus, r3.Vec{Z: 2.5 * float64(size)})
	}
	up := r3.Vec{X: v.Up.X, Y: v.Up.Y, Z: v.Up.Z}
	if up == (r3.Vec{}) {
		up = r3.Vec{Y: 1}
	}
	return vrender.ViewSpec{Position: eye, Focus: focus, Up: up}
}

func (r *Renderer) renderFrames() error {
	cfg := r.cfg.Render
	projection, err := models.ParseProjection(cfg.Projection)
	if err != nil {
		return err
	}
	base := r.baseView()
	opts := []vrender.Option{
		vrender.WithCube(r.cube),
		vrender.WithView(base),
		vrender.WithShaderFunc(r.shader),
		vrender.WithProjection(projection),
		vrender.WithEyeSeparation(cfg.EyeSeparation),
		vrender.WithSmoothCache(cfg.SmoothCache),
		vrender.WithImageSize(cfg.Width, cfg.Height),
		vrender.WithPool(r.pool),
	}
	if !cfg.SubCube.IsZero() {
		opts = append(opts, vrender.WithSubCube(cfg.SubCube))
	}
	var queue *background.Queue
	if cfg.Incremental {
		queue = background.NewQueue()
		opts = append(opts, vrender.WithScheduler(queue))
	}
	ctx, err := vrender.NewContext(opts...)
	if err != nil {
		return fmt.Errorf("error creating render context: %w", err)
	}
	defer ctx.Close()

	eyes := []models.Eye{models.Cyclops}
	if cfg.Stereo {
		eyes = []models.Eye{models.Left, models.Right}
	}
	ctx.OnCachesComputed(func(done []models.Eye) {
		if r.cfg.Output.Verbose {
			fmt.Printf("Caches computed for %v\n", done)
		}
	})

	if x, y, visible, err := ctx.Project3D(base.Focus, eyes[0]); err == nil {
		fmt.Printf("Focus projects to (%.1f, %.1f), visible %v\n", x, y, visible)
	}

	images := make([]*iarray.View, len(eyes))
	for i := range images {
		images[i], err = iarray.Create(r.shader.PixelType, []string{"y", "x"}, []int{cfg.Height, cfg.Width}, nil)
		if err != nil {
			return err
		}
		defer images[i].Destroy()
	}

	axis := r3.Unit(base.Up)
	for frame := 0; frame < cfg.Frames; frame++ {
		angle := cfg.SpinDegrees * math.Pi / 180 * float64(frame) / float64(cfg.Frames)
		if err := ctx.Set(vrender.WithView(base.Rotated(angle, axis))); err != nil {
			return err
		}
		if err := r.buildCaches(ctx, queue, eyes); err != nil {
			return err
		}
		if cfg.Stereo {
			if _, _, err := ctx.ToStereoBuffers(images[0], images[1]); err != nil {
				return fmt.Errorf("error rendering frame %d: %w", frame, err)
			}
		} else if _, _, err := ctx.ToBuffer(images[0], models.Cyclops); err != nil {
			return fmt.Errorf("error rendering frame %d: %w", frame, err)
		}
		for i, eye := range eyes {
			name := fmt.Sprintf("frame_%03d", frame)
			if cfg.Stereo {
				name += "_" + eye.String()
			}
			fs, err := r.saveFrame(images[i], name)
			if err != nil {
				return err
			}
			r.metrics.Frames = append(r.metrics.Frames, fs)
		}
		fmt.Printf("\rRendering frames: %.1f%% complete", float64(frame+1)*100/float64(cfg.Frames))
	}
	fmt.Println()
	return nil
}

// buildCaches fills the eye caches, a step at a time through the queue
// when one is configured
func (r *Renderer) buildCaches(ctx *vrender.Context, queue *background.Queue, eyes []models.Eye) error {
	if queue == nil {
		return ctx.ComputeCaches(eyes...)
	}
	if err := ctx.ScheduleCaches(eyes...); err != nil {
		return err
	}
	steps, err := queue.Drain(0)
	r.metrics.CacheSteps += steps
	return err
}

// saveFrame writes image and returns its statistics over the pixels
// whose rays hit the cube
func (r *Renderer) saveFrame(image *iarray.View, name string) (FrameStats, error) {
	fs := FrameStats{Name: name}
	var hits []float64
	for coords := range image.Elements() {
		if v := image.Get(coords...); v != r.shader.Blank {
			hits = append(hits, v)
		}
	}
	fs.Hits = len(hits)
	if len(hits) > 0 {
		fs.Mean, fs.StdDev = stat.MeanStdDev(hits, nil)
		fs.Min, fs.Max = hits[0], hits[0]
		for _, v := range hits {
			fs.Min = math.Min(fs.Min, v)
			fs.Max = math.Max(fs.Max, v)
		}
	}
	img, err := visualization.ImageFromView(image, fs.Min, fs.Max)
	if err != nil {
		return fs, err
	}
	filename := filepath.Join(r.cfg.Output.Dir, name+"."+r.cfg.Output.Format)
	if err := visualization.SaveImage(img, filename); err != nil {
		return fs, fmt.Errorf("error saving %s: %w", filename, err)
	}
	return fs, nil
}
