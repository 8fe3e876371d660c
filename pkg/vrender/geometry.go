package vrender

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"arrayvis/internal/models"
)

// ViewSpec places the eye. Co-ordinates are in voxel units with x, y and
// z indexing the last, middle and first cube dimensions.
type ViewSpec struct {
	Position r3.Vec
	Focus    r3.Vec
	Up       r3.Vec
}

// Direction returns the unit vector from the eye to the focus
func (v ViewSpec) Direction() r3.Vec {
	return r3.Unit(r3.Sub(v.Focus, v.Position))
}

// Validate rejects a coincident eye and focus or an up vector parallel
// to the view direction
func (v ViewSpec) Validate() error {
	dir := r3.Sub(v.Focus, v.Position)
	if r3.Norm(dir) == 0 {
		return fmt.Errorf("eye position equals focus: %w", ErrBadView)
	}
	if r3.Norm(v.Up) == 0 || r3.Norm(r3.Cross(r3.Unit(dir), r3.Unit(v.Up))) < 1e-9 {
		return fmt.Errorf("up vector %v parallel to view direction: %w", v.Up, ErrBadView)
	}
	return nil
}

// Rotated returns the view with the eye turned by angle radians about an
// axis through the focus. The up vector turns with it.
func (v ViewSpec) Rotated(angle float64, axis r3.Vec) ViewSpec {
	rot := r3.NewRotation(angle, axis)
	return ViewSpec{
		Position: r3.Add(v.Focus, rot.Rotate(r3.Sub(v.Position, v.Focus))),
		Focus:    v.Focus,
		Up:       rot.Rotate(v.Up),
	}
}

// axis is a cube axis used as the traversal direction
type axis int

const (
	axisX axis = iota
	axisY
	axisZ
)

// dominantAxis returns the cube axis most nearly parallel to dir
func dominantAxis(dir r3.Vec) axis {
	ax, ay, az := math.Abs(dir.X), math.Abs(dir.Y), math.Abs(dir.Z)
	switch {
	case az >= ax && az >= ay:
		return axisZ
	case ay >= ax:
		return axisY
	}
	return axisX
}

// permutation maps rotated axes (horizontal, vertical, depth) to world
// axes (0 = x, 1 = y, 2 = z)
func (a axis) permutation() [3]int {
	switch a {
	case axisZ:
		return [3]int{0, 1, 2}
	case axisY:
		return [3]int{0, 2, 1}
	case axisX:
		return [3]int{1, 2, 0}
	}
	panic(pkgerrors.Errorf("vrender: unknown axis %d", int(a)))
}

func addScaled(p r3.Vec, f float64, v r3.Vec) r3.Vec {
	return r3.Add(p, r3.Scale(f, v))
}

func component(v r3.Vec, a int) float64 {
	switch a {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	panic(pkgerrors.Errorf("vrender: unknown world axis %d", a))
}

// frame is the rotated co-ordinate frame of one eye
type frame struct {
	pos, dir, horiz, vert r3.Vec

	projection    models.Projection
	width, height int
	focal         float64

	// perm maps rotated axes to world axes; lo and hi bound the
	// sub-cube in rotated axes
	perm   [3]int
	lo, hi [3]float64
}

func newFrame(pos, focus, up r3.Vec, projection models.Projection, width, height int, box models.SubCube) frame {
	dir := r3.Unit(r3.Sub(focus, pos))
	horiz := r3.Unit(r3.Cross(dir, up))
	f := frame{
		pos:        pos,
		dir:        dir,
		horiz:      horiz,
		vert:       r3.Cross(horiz, dir),
		projection: projection,
		width:      width,
		height:     height,
		focal:      float64(max(width, height)),
		perm:       dominantAxis(dir).permutation(),
	}
	lo, hi := box.Bounds()
	for a := 0; a < 3; a++ {
		f.lo[a] = lo[f.perm[a]]
		f.hi[a] = hi[f.perm[a]]
	}
	return f
}

func (f *frame) rotate(v r3.Vec) [3]float64 {
	return [3]float64{component(v, f.perm[0]), component(v, f.perm[1]), component(v, f.perm[2])}
}

// worldRay returns the ray through image position (px, py). Rows run
// downwards, so py increasing moves against the vertical axis.
func (f *frame) worldRay(px, py float64) (origin, direction r3.Vec) {
	du := px - float64(f.width-1)/2
	dv := float64(f.height-1)/2 - py
	offset := r3.Add(r3.Scale(du, f.horiz), r3.Scale(dv, f.vert))
	if f.projection == models.Perspective {
		return f.pos, r3.Add(r3.Scale(f.focal, f.dir), offset)
	}
	return r3.Add(f.pos, offset), f.dir
}

// ray returns the ray through (px, py) in rotated co-ordinates
func (f *frame) ray(px, py float64) (o, r [3]float64) {
	origin, direction := f.worldRay(px, py)
	return f.rotate(origin), f.rotate(direction)
}

// hit describes where a ray crosses the sub-cube. Depths are rotated
// depth co-ordinates and t values are ray parameters.
type hit struct {
	minDepth, maxDepth float64
	tEnter, tLeave     float64
}

const faceTolerance = 1e-9

// intersectBox tests the ray o + t*r against the six faces of the box
// [lo, hi]. Faces parallel to the ray are skipped. It reports no
// intersection when the accepted face hits span no depth.
func intersectBox(o, r, lo, hi [3]float64) (hit, bool) {
	h := hit{
		minDepth: math.Inf(1), maxDepth: math.Inf(-1),
		tEnter: math.Inf(1), tLeave: math.Inf(-1),
	}
	for a := 0; a < 3; a++ {
		if r[a] == 0 {
			continue
		}
		for _, plane := range [2]float64{lo[a], hi[a]} {
			t := (plane - o[a]) / r[a]
			var q [3]float64
			inside := true
			for b := 0; b < 3; b++ {
				if b == a {
					q[b] = plane
					continue
				}
				q[b] = o[b] + t*r[b]
				if q[b] < lo[b]-faceTolerance || q[b] > hi[b]+faceTolerance {
					inside = false
					break
				}
			}
			if !inside {
				continue
			}
			h.minDepth = math.Min(h.minDepth, q[2])
			h.maxDepth = math.Max(h.maxDepth, q[2])
			h.tEnter = math.Min(h.tEnter, t)
			h.tLeave = math.Max(h.tLeave, t)
		}
	}
	return h, h.minDepth < h.maxDepth
}

// depthPlanes returns the integer depth planes a hit crosses, in the
// order the ray meets them
func depthPlanes(h hit, rd, lo, hi float64) (first, step, n int) {
	start := math.Max(math.Ceil(h.minDepth-faceTolerance), lo)
	stop := math.Min(math.Floor(h.maxDepth+faceTolerance), hi)
	n = int(stop-start) + 1
	if n < 0 {
		n = 0
	}
	if rd < 0 {
		return int(stop), -1, n
	}
	return int(start), 1, n
}
