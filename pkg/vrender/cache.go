package vrender

import (
	"math"

	pkgerrors "github.com/pkg/errors"

	"arrayvis/internal/models"
	"arrayvis/pkg/iarray"
	"arrayvis/pkg/threadpool"
)

// phase is the cache building stage of one eye
type phase int

const (
	phaseUninitialized phase = iota
	phaseLineCache
	phaseReorderSetup
	phaseReorderCollect
	phaseDone
)

// CacheState reports how far the caches of an eye have been built.
type CacheState int

const (
	Uninitialized CacheState = iota
	ViewValid
	LineCacheBuilding
	LineCacheDone
	ReorderSetupBuilding
	ReorderCollecting
	FullyCached
)

func (s CacheState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ViewValid:
		return "view valid"
	case LineCacheBuilding:
		return "line cache building"
	case LineCacheDone:
		return "line cache done"
	case ReorderSetupBuilding:
		return "reorder setup building"
	case ReorderCollecting:
		return "reorder collecting"
	case FullyCached:
		return "fully cached"
	}
	return "unknown"
}

// ray is the reorder cache record of one pixel
type ray struct {
	length         int
	tEnter, tLeave float64
	offset         int
}

// eyeInfo holds the frame and caches of one eye. progress counts the
// scanlines completed in the current phase.
type eyeInfo struct {
	eye   models.Eye
	frame frame

	phase    phase
	progress int

	// cube storage and offset tables indexed by rotated axis
	data []byte
	base int
	offs [3][]int

	lineStart, lineStop []int

	rays     []ray
	nextFree int
	buffer   []byte
}

func (e *eyeInfo) reset() {
	*e = eyeInfo{eye: e.eye}
}

// invalidateSamples discards collected samples but keeps ray layout
func (e *eyeInfo) invalidateSamples() {
	if e.phase == phaseReorderCollect || e.phase == phaseDone {
		e.phase = phaseReorderCollect
		e.progress = 0
	}
}

func (e *eyeInfo) setup(f frame, cube *iarray.View) {
	e.frame = f
	e.data = cube.Data()
	e.base = cube.Base()
	for a := 0; a < 3; a++ {
		// cube dimensions are ordered z, y, x
		e.offs[a] = cube.Table(2 - f.perm[a])
	}
	e.lineStart = make([]int, f.height)
	e.lineStop = make([]int, f.height)
	e.rays = make([]ray, f.width*f.height)
	e.nextFree = 0
	e.buffer = nil
	e.phase = phaseLineCache
	e.progress = 0
}

func (e *eyeInfo) state() CacheState {
	switch e.phase {
	case phaseUninitialized:
		return Uninitialized
	case phaseLineCache:
		if e.progress == 0 {
			return ViewValid
		}
		return LineCacheBuilding
	case phaseReorderSetup:
		if e.progress == 0 {
			return LineCacheDone
		}
		return ReorderSetupBuilding
	case phaseReorderCollect:
		return ReorderCollecting
	case phaseDone:
		return FullyCached
	}
	panic(pkgerrors.Errorf("vrender: unknown cache phase %d", int(e.phase)))
}

func (e *eyeInfo) lineCached(y int) bool {
	return e.phase > phaseLineCache || (e.phase == phaseLineCache && y < e.progress)
}

func (e *eyeInfo) samplesCached(y int) bool {
	return e.phase == phaseDone || (e.phase == phaseReorderCollect && y < e.progress)
}

// castPixel intersects the ray through pixel (x, y) with the sub-cube
func (e *eyeInfo) castPixel(x, y float64) (o, r [3]float64, h hit, ok bool) {
	o, r = e.frame.ray(x, y)
	h, ok = intersectBox(o, r, e.frame.lo, e.frame.hi)
	return o, r, h, ok
}

func (e *eyeInfo) seesCube(x, y int) bool {
	_, _, _, ok := e.castPixel(float64(x), float64(y))
	return ok
}

// computeLine fills the visibility range of scanline y. An empty line
// has start greater than stop.
func (e *eyeInfo) computeLine(y int) {
	w := e.frame.width
	visible := func(x int) bool { return e.seesCube(x, y) }
	// first visible in (lo, hi] given lo invisible and hi visible
	firstVisible := func(lo, hi int) int {
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if visible(mid) {
				hi = mid
			} else {
				lo = mid
			}
		}
		return hi
	}
	// last visible in [lo, hi) given lo visible and hi invisible
	lastVisible := func(lo, hi int) int {
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if visible(mid) {
				lo = mid
			} else {
				hi = mid
			}
		}
		return lo
	}
	rightEdge := func(from int) int {
		if visible(w - 1) {
			return w - 1
		}
		return lastVisible(from, w-1)
	}

	start, stop := w, -1
	centre := (w - 1) / 2
	switch {
	case visible(0):
		start = 0
		stop = rightEdge(0)
	case visible(centre):
		start = firstVisible(0, centre)
		stop = rightEdge(centre)
	default:
		for x := 1; x < w; x++ {
			if visible(x) {
				start = x
				stop = rightEdge(x)
				break
			}
		}
	}
	e.lineStart[y], e.lineStop[y] = start, stop
}

// sampler returns the on demand samples of the ray through pixel (x, y)
func (e *eyeInfo) sampler(x, y int, smooth bool) (*raySampler, hit, bool) {
	o, r, h, ok := e.castPixel(float64(x), float64(y))
	if !ok {
		return nil, h, false
	}
	s := &raySampler{e: e, o: o, r: r, smooth: smooth}
	s.first, s.step, s.n = depthPlanes(h, r[2], e.frame.lo[2], e.frame.hi[2])
	return s, h, true
}

// setupLine records the ray lengths of scanline y and carves their
// slices from the shared buffer
func (e *eyeInfo) setupLine(y int) {
	w := e.frame.width
	for x := e.lineStart[y]; x <= e.lineStop[y]; x++ {
		rec := &e.rays[y*w+x]
		s, h, ok := e.sampler(x, y, false)
		if !ok {
			*rec = ray{}
			continue
		}
		*rec = ray{length: s.n, tEnter: h.tEnter, tLeave: h.tLeave, offset: e.nextFree}
		e.nextFree += s.n
	}
}

// collectLine samples every ray of scanline y into its slice. Lines write
// disjoint slices, so several may be collected concurrently.
func (e *eyeInfo) collectLine(y int, smooth bool) {
	w := e.frame.width
	if len(e.buffer) != e.nextFree {
		panic(pkgerrors.Errorf("vrender: %s eye buffer holds %d bytes, setup carved %d", e.eye, len(e.buffer), e.nextFree))
	}
	for x := e.lineStart[y]; x <= e.lineStop[y]; x++ {
		rec := e.rays[y*w+x]
		s, _, ok := e.sampler(x, y, smooth)
		n := 0
		if ok {
			n = s.n
		}
		if n != rec.length {
			panic(pkgerrors.Errorf("vrender: %s eye ray (%d,%d) has length %d, setup recorded %d", e.eye, x, y, n, rec.length))
		}
		dst := e.buffer[rec.offset : rec.offset+n]
		for i := range dst {
			dst[i] = s.At(i)
		}
	}
}

// step advances the caches of e by one unit of work. It returns false
// once the eye is fully cached.
func (e *eyeInfo) step(pool *threadpool.Pool, smooth bool) bool {
	h := e.frame.height
	switch e.phase {
	case phaseLineCache:
		e.computeLine(e.progress)
		e.progress++
		if e.progress == h {
			e.phase, e.progress = phaseReorderSetup, 0
		}
	case phaseReorderSetup:
		e.setupLine(e.progress)
		e.progress++
		if e.progress == h {
			e.buffer = make([]byte, e.nextFree)
			e.phase, e.progress = phaseReorderCollect, 0
		}
	case phaseReorderCollect:
		n := min(pool.NumThreads(), h-e.progress)
		batch := pool.NewBatch()
		for i := 0; i < n; i++ {
			y := e.progress + i
			batch.Launch(func(int) {
				e.collectLine(y, smooth)
			})
		}
		batch.Wait()
		e.progress += n
		if e.progress == h {
			e.phase, e.progress = phaseDone, 0
		}
	case phaseDone:
		return false
	default:
		panic(pkgerrors.Errorf("vrender: cannot step %s eye in phase %d", e.eye, int(e.phase)))
	}
	return true
}

// raySampler reads the voxels along one ray, one depth plane per sample
type raySampler struct {
	e      *eyeInfo
	o, r   [3]float64
	first  int
	step   int
	n      int
	smooth bool
}

func (s *raySampler) Len() int { return s.n }

func (s *raySampler) At(i int) byte {
	f := &s.e.frame
	k := s.first + i*s.step
	t := (float64(k) - s.o[2]) / s.r[2]
	h := s.o[0] + t*s.r[0]
	v := s.o[1] + t*s.r[1]
	if !s.smooth {
		return s.voxel(nearest(h, f.lo[0], f.hi[0]), nearest(v, f.lo[1], f.hi[1]), k)
	}
	h0, h1, wh := bilinearAxis(h, f.lo[0], f.hi[0])
	v0, v1, wv := bilinearAxis(v, f.lo[1], f.hi[1])
	if wh == 0 && wv == 0 {
		return s.voxel(h0, v0, k)
	}
	top := (1-wh)*float64(s.voxel(h0, v0, k)) + wh*float64(s.voxel(h1, v0, k))
	bottom := (1-wh)*float64(s.voxel(h0, v1, k)) + wh*float64(s.voxel(h1, v1, k))
	value := (1-wv)*top + wv*bottom + 0.5
	if value >= 255 {
		return 255
	}
	return byte(value)
}

func (s *raySampler) voxel(h, v, d int) byte {
	e := s.e
	return e.data[e.base+e.offs[0][h]+e.offs[1][v]+e.offs[2][d]]
}

// nearest rounds x to the closest voxel index in [lo, hi]
func nearest(x, lo, hi float64) int {
	return int(math.Max(lo, math.Min(hi, math.Floor(x+0.5))))
}

// bilinearAxis returns the two voxel indices enclosing x and the weight
// of the second. Positions within 0.01 of a voxel snap to it, and the
// nearest voxel is used when the second index would leave the box.
func bilinearAxis(x, lo, hi float64) (i0, i1 int, w float64) {
	x = math.Max(lo, math.Min(hi, x))
	f := math.Floor(x)
	frac := x - f
	switch {
	case frac < 0.01:
		return int(f), int(f), 0
	case frac > 0.99:
		return int(f) + 1, int(f) + 1, 0
	case f+1 > hi:
		n := nearest(x, lo, hi)
		return n, n, 0
	}
	return int(f), int(f) + 1, frac
}
