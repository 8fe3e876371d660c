package models

import "fmt"

// Eye identifies one of the three viewpoints a render context keeps caches for.
type Eye int

const (
	// Cyclops is the single centred eye used for mono rendering
	Cyclops Eye = iota

	// Left is the left eye of a stereo pair
	Left

	// Right is the right eye of a stereo pair
	Right
)

// NumEyes is the number of eye records held per render context
const NumEyes = 3

func (e Eye) String() string {
	switch e {
	case Cyclops:
		return "cyclops"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("eye(%d)", int(e))
}

// Projection selects how rays leave the eye.
type Projection int

const (
	// Parallel casts parallel rays, one per pixel, along the view direction
	Parallel Projection = iota

	// Perspective casts all rays from the eye position through the image plane
	Perspective
)

func (p Projection) String() string {
	switch p {
	case Parallel:
		return "parallel"
	case Perspective:
		return "perspective"
	}
	return fmt.Sprintf("projection(%d)", int(p))
}

// ParseProjection converts a configuration string into a Projection
func ParseProjection(s string) (Projection, error) {
	switch s {
	case "parallel", "":
		return Parallel, nil
	case "perspective":
		return Perspective, nil
	}
	return Parallel, fmt.Errorf("unknown projection: %q (must be parallel or perspective)", s)
}

// SubCube restricts rendering to an axis-aligned box of voxels.
// Start and End are inclusive voxel indices.
type SubCube struct {
	XStart int `yaml:"xStart"`
	XEnd   int `yaml:"xEnd"`
	YStart int `yaml:"yStart"`
	YEnd   int `yaml:"yEnd"`
	ZStart int `yaml:"zStart"`
	ZEnd   int `yaml:"zEnd"`
}

// FullSubCube returns the box covering a whole cube of the given size
func FullSubCube(nx, ny, nz int) SubCube {
	return SubCube{XEnd: nx - 1, YEnd: ny - 1, ZEnd: nz - 1}
}

// IsZero reports whether the box was never set
func (s SubCube) IsZero() bool {
	return s == SubCube{}
}

// Validate checks the box against the cube dimensions
func (s SubCube) Validate(nx, ny, nz int) error {
	check := func(axis string, start, end, n int) error {
		if start < 0 || end >= n || start > end {
			return fmt.Errorf("sub-cube %s range [%d,%d] invalid for length %d", axis, start, end, n)
		}
		return nil
	}
	if err := check("x", s.XStart, s.XEnd, nx); err != nil {
		return err
	}
	if err := check("y", s.YStart, s.YEnd, ny); err != nil {
		return err
	}
	return check("z", s.ZStart, s.ZEnd, nz)
}

// Bounds returns the box as (min, max) triples ordered x, y, z
func (s SubCube) Bounds() (lo, hi [3]float64) {
	lo = [3]float64{float64(s.XStart), float64(s.YStart), float64(s.ZStart)}
	hi = [3]float64{float64(s.XEnd), float64(s.YEnd), float64(s.ZEnd)}
	return lo, hi
}
