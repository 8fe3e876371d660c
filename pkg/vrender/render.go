package vrender

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"arrayvis/internal/models"
	"arrayvis/pkg/ds"
	"arrayvis/pkg/iarray"
)

// CacheState reports the cache progress of eye
func (c *Context) CacheState(eye models.Eye) CacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.eyes[eye]; e != nil {
		return e.state()
	}
	return Uninitialized
}

// ToBuffer renders the cube as seen from eye into image, a 2-D view of the
// shader's pixel type indexed (row, column). Scanlines missing from the
// line cache are filled first. It returns the extremes of the pixels whose
// rays hit the cube; both are zero when none do.
func (c *Context) ToBuffer(image *iarray.View, eye models.Eye) (lo, hi float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ext, err := c.renderLocked(image, eye)
	if err != nil {
		return 0, 0, err
	}
	return ext.Min, ext.Max, nil
}

// ToStereoBuffers renders the left and right eyes. The first stereo render
// also starts building the stereo caches, on the scheduler when one is
// set. The extremes cover both images.
func (c *Context) ToStereoBuffers(left, right *iarray.View) (lo, hi float64, err error) {
	c.mu.Lock()
	ext, err := c.renderLocked(left, models.Left)
	if err == nil {
		var r ds.Extremes
		r, err = c.renderLocked(right, models.Right)
		ext.Merge(r)
	}
	first := err == nil && !c.didStereo
	if first {
		c.didStereo = true
	}
	c.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	if first {
		if Verbose {
			logf("first stereo render, building stereo caches")
		}
		if err := c.ScheduleCaches(stereoEyes...); err != nil {
			return 0, 0, err
		}
	}
	return ext.Min, ext.Max, nil
}

func (c *Context) renderLocked(image *iarray.View, eye models.Eye) (ds.Extremes, error) {
	var ext ds.Extremes
	if c.shader == nil {
		return ext, ErrNoShader
	}
	if image == nil || image.NumDim() != 2 {
		return ext, fmt.Errorf("image must be 2-D: %w", iarray.ErrWrongDimensionality)
	}
	if image.Type() != c.shader.PixelType {
		return ext, fmt.Errorf("shader %q writes %s pixels, image holds %s: %w",
			c.shader.Name, c.shader.PixelType, image.Type(), iarray.ErrTypeMismatch)
	}
	c.setImageSize(image.Len(1), image.Len(0))
	e, err := c.prepare(eye)
	if err != nil {
		return ext, err
	}

	pool := c.threads()
	w, h := c.width, c.height
	bands := min(4*pool.NumThreads(), h)
	batch := pool.NewBatch()
	if e.phase == phaseLineCache {
		// scanlines are independent once the frame is set up
		from := e.progress
		for b := 0; b < bands; b++ {
			y0, y1 := max(from, b*h/bands), (b+1)*h/bands
			batch.Launch(func(int) {
				for y := y0; y < y1; y++ {
					e.computeLine(y)
				}
			})
		}
		batch.Wait()
		e.phase, e.progress = phaseReorderSetup, 0
		if Verbose {
			logf("%s eye line cache filled while rendering", eye)
		}
	}

	partial := make([]ds.Extremes, bands)
	shader, smooth := c.shader, c.smooth
	for b := 0; b < bands; b++ {
		y0, y1 := b*h/bands, (b+1)*h/bands
		batch.Launch(func(int) {
			for y := y0; y < y1; y++ {
				for x := 0; x < w; x++ {
					value, ok := e.shadePixel(shader, x, y, smooth)
					if !ok {
						image.Put(shader.Blank, y, x)
						continue
					}
					image.Put(value, y, x)
					partial[b].Add(value)
				}
			}
		})
	}
	batch.Wait()
	for _, p := range partial {
		ext.Merge(p)
	}
	if !ext.Valid {
		ext.Min, ext.Max = 0, 0
	}
	return ext, nil
}

// shadePixel shades one pixel, reading collected samples where the
// caches allow and sampling the cube otherwise. It reports false for
// rays that miss the cube or cross no depth plane.
func (e *eyeInfo) shadePixel(s *Shader, x, y int, smooth bool) (float64, bool) {
	if e.lineCached(y) && (x < e.lineStart[y] || x > e.lineStop[y]) {
		return 0, false
	}
	if e.samplesCached(y) {
		rec := e.rays[y*e.frame.width+x]
		if rec.length == 0 {
			return 0, false
		}
		return s.shade(e.buffer[rec.offset : rec.offset+rec.length]), true
	}
	sm, _, ok := e.sampler(x, y, smooth)
	if !ok || sm.Len() == 0 {
		return 0, false
	}
	return s.Slow(sm), true
}

// Project3D returns the image position of a world point as seen from eye
// and whether it is visible: inside the image, in front of a perspective
// eye and not hidden behind the sub-cube.
func (c *Context) Project3D(point r3.Vec, eye models.Eye) (x, y float64, visible bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.prepare(eye)
	if err != nil {
		return 0, 0, false, err
	}
	f := &e.frame
	rel := r3.Sub(point, f.pos)
	du, dv, depth := r3.Dot(rel, f.horiz), r3.Dot(rel, f.vert), r3.Dot(rel, f.dir)
	t := depth
	if f.projection == models.Perspective {
		if depth <= 0 {
			return 0, 0, false, nil
		}
		du *= f.focal / depth
		dv *= f.focal / depth
		t = depth / f.focal
	}
	x = float64(f.width-1)/2 + du
	y = float64(f.height-1)/2 - dv
	if x < -0.5 || x > float64(f.width)-0.5 || y < -0.5 || y > float64(f.height)-0.5 {
		return x, y, false, nil
	}
	if _, _, h, ok := e.castPixel(x, y); ok && h.tEnter < t {
		return x, y, false, nil
	}
	return x, y, true, nil
}

// TestPixelSeesCube reports whether the ray through pixel (x, y) of eye
// hits the sub-cube
func (c *Context) TestPixelSeesCube(eye models.Eye, x, y int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.prepare(eye)
	if err != nil {
		return false, err
	}
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return false, fmt.Errorf("pixel (%d,%d) outside %dx%d image: %w", x, y, c.width, c.height, iarray.ErrOutOfRange)
	}
	if e.lineCached(y) {
		return x >= e.lineStart[y] && x <= e.lineStop[y], nil
	}
	return e.seesCube(x, y), nil
}
