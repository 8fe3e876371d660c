// Package visualization turns 2-D array views into grey scale images and
// writes them to disk.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"arrayvis/pkg/ds"
	"arrayvis/pkg/iarray"
)

// ImageFromView maps the 2-D view v onto a 16 bit grey image, with lo
// black and hi white. Blank values become black. Rows of v become image
// rows.
func ImageFromView(v *iarray.View, lo, hi float64) (*image.Gray16, error) {
	if v.NumDim() != 2 {
		return nil, fmt.Errorf("image needs a 2-D view, got %d dimensions: %w", v.NumDim(), iarray.ErrWrongDimensionality)
	}
	rows, cols := v.Len(0), v.Len(1)
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			value := v.Get(y, x)
			if value >= ds.TooBig || math.IsNaN(value) {
				continue
			}
			level := math.Max(0, math.Min(65535, (value-lo)*scale))
			img.SetGray16(x, y, color.Gray16{Y: uint16(level)})
		}
	}
	return img, nil
}

// SaveImage writes img to filename, as PNG when the name ends in .png and
// as JPEG otherwise
func SaveImage(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(filename), ".png") {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveView scales v to its own extremes and writes it to filename
func SaveView(v *iarray.View, filename string) error {
	lo, hi, err := iarray.MinMax(v, ds.ConvAbs)
	if err != nil && !errors.Is(err, iarray.ErrNoData) {
		return err
	}
	img, err := ImageFromView(v, lo, hi)
	if err != nil {
		return err
	}
	return SaveImage(img, filename)
}

// Viewer extracts slices and regions from a 3-D cube indexed (z, y, x)
type Viewer struct {
	cube *iarray.View

	// grey levels span [lo, hi]
	lo, hi float64
}

// NewViewer creates a viewer scaled to the extremes of cube
func NewViewer(cube *iarray.View) (*Viewer, error) {
	if cube.NumDim() != 3 {
		return nil, fmt.Errorf("viewer needs a 3-D cube, got %d dimensions: %w", cube.NumDim(), iarray.ErrWrongDimensionality)
	}
	lo, hi, err := iarray.MinMax(cube, ds.ConvAbs)
	if err != nil && !errors.Is(err, iarray.ErrNoData) {
		return nil, err
	}
	return &Viewer{cube: cube, lo: lo, hi: hi}, nil
}

// sliceDims returns the row and column cube dimensions of a slice
// perpendicular to axis, and the dimension it fixes
func sliceDims(axis string) (rows, cols, fixed int, err error) {
	switch axis {
	case "x", "X":
		return 1, 0, 2, nil
	case "y", "Y":
		return 0, 2, 1, nil
	case "z", "Z":
		return 1, 2, 0, nil
	}
	return 0, 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice returns the plane of the cube perpendicular to axis at
// position as an image
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	rows, cols, fixed, err := sliceDims(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= v.cube.Len(fixed) {
		return nil, fmt.Errorf("position %d outside %s range [0,%d)", position, axis, v.cube.Len(fixed))
	}
	slice, err := v.cube.Slice2DFrom3D(rows, cols, position)
	if err != nil {
		return nil, err
	}
	defer slice.Destroy()
	return ImageFromView(slice, v.lo, v.hi)
}

// ExtractRegion returns a view of a box of the cube. The caller destroys it.
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*iarray.View, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	return v.cube.SubArray([]int{startZ, startY, startX}, []int{sizeZ, sizeY, sizeX})
}

// SaveSliceSequence extracts and saves every slice along axis
func (v *Viewer) SaveSliceSequence(axis, outputDir, format string) error {
	_, _, fixed, err := sliceDims(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.cube.Len(fixed); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", strings.ToLower(axis), pos, format))
		if err := SaveImage(img, filename); err != nil {
			return err
		}
	}

	return nil
}
