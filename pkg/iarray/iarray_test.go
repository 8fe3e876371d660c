package iarray

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"gonum.org/v1/gonum/floats"

	"arrayvis/pkg/ds"
	"arrayvis/pkg/threadpool"
)

// createView is a test helper that fails the test on error
func createView(t *testing.T, typ ds.ElementType, names []string, lengths []int) *View {
	t.Helper()
	v, err := Create(typ, names, lengths, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return v
}

// fillPattern stores a deterministic pseudo-random value in every element
func fillPattern(v *View, seed uint32) {
	state := seed
	for coords := range v.Elements() {
		state = state*1664525 + 1013904223
		v.Put(float64(state>>20)/16-100, coords...)
	}
}

// values collects the view in row-major order
func values(v *View) []float64 {
	var out []float64
	for _, addr := range v.Elements() {
		re, _ := ds.GetElement(v.Data(), addr, v.Type())
		out = append(out, re)
	}
	return out
}

// TestNextElementCompleteness verifies odometer order and carry
func TestNextElementCompleteness(t *testing.T) {
	v := createView(t, ds.Int, []string{"z", "y", "x"}, []int{3, 4, 5})
	defer v.Destroy()

	i := 0
	for coords := range v.Elements() {
		v.Put(float64(i), coords...)
		i++
	}
	if i != 60 {
		t.Fatalf("Expected 60 elements, visited %d", i)
	}

	// row-major: last dimension fastest
	coords := make([]int, 3)
	seen := map[int]bool{v.Address(coords...): true}
	expected := 1.0
	for {
		addr, ok := v.NextElement(coords, 1)
		if !ok {
			break
		}
		if seen[addr] {
			t.Fatalf("Address %d visited twice", addr)
		}
		seen[addr] = true
		got, _ := ds.GetElement(v.Data(), addr, ds.Int)
		if got != expected {
			t.Fatalf("At %v expected %v, got %v", coords, expected, got)
		}
		expected++
	}
	if len(seen) != 60 {
		t.Errorf("Expected 60 distinct addresses, got %d", len(seen))
	}

	// one jump of 7 lands where 7 single steps do
	single := []int{0, 1, 3}
	var addrSingle int
	for k := 0; k < 7; k++ {
		addrSingle, _ = v.NextElement(single, 1)
	}
	jump := []int{0, 1, 3}
	addrJump, ok := v.NextElement(jump, 7)
	if !ok || addrJump != addrSingle {
		t.Errorf("Jump landed at %d, single steps at %d", addrJump, addrSingle)
	}
	for d := range jump {
		if jump[d] != single[d] {
			t.Errorf("Jump co-ordinates %v differ from %v", jump, single)
			break
		}
	}
	if jump[0] != 0 || jump[1] != 3 || jump[2] != 0 {
		t.Errorf("Expected co-ordinates [0 3 0], got %v", jump)
	}

	last := []int{2, 3, 4}
	if _, ok := v.NextElement(last, 1); ok {
		t.Error("Expected end of iteration after last element")
	}
}

// TestMaxContiguousRun checks run detection on full and partial views
func TestMaxContiguousRun(t *testing.T) {
	cube := createView(t, ds.Float, []string{"z", "y", "x"}, []int{3, 4, 5})
	defer cube.Destroy()
	if run := cube.MaxContiguousRun(); run != 60 {
		t.Errorf("Full cube: expected run 60, got %d", run)
	}
	if !cube.IsFullArray() {
		t.Error("Fresh view should be a full array")
	}

	image := createView(t, ds.Float, []string{"y", "x"}, []int{6, 8})
	defer image.Destroy()

	testCases := []struct {
		name                       string
		row, col, numRows, numCols int
		expected                   int
	}{
		{"full rows", 1, 0, 3, 8, 24},
		{"partial rows", 1, 2, 3, 4, 4},
		{"single column", 0, 3, 6, 1, 1},
	}
	for _, tc := range testCases {
		sub, err := image.SubArray2D(tc.row, tc.col, tc.numRows, tc.numCols)
		if err != nil {
			t.Fatalf("%s: SubArray2D failed: %v", tc.name, err)
		}
		if run := sub.MaxContiguousRun(); run != tc.expected {
			t.Errorf("%s: expected run %d, got %d", tc.name, tc.expected, run)
		}
		sub.Destroy()
	}

	slice, err := cube.Slice2DFrom3D(0, 2, 1)
	if err != nil {
		t.Fatalf("Slice2DFrom3D failed: %v", err)
	}
	defer slice.Destroy()
	if run := slice.MaxContiguousRun(); run != 5 {
		t.Errorf("Slice: expected run 5, got %d", run)
	}
	if slice.IsFullArray() {
		t.Error("Slice should not be a full array")
	}
}

// TestSubViews verifies aliasing, provenance and attachment counting
func TestSubViews(t *testing.T) {
	cube := createView(t, ds.Double, []string{"z", "y", "x"}, []int{3, 4, 5})
	fillPattern(cube, 1)
	m := cube.Multi()
	if m.Attachments() != 1 {
		t.Fatalf("Expected 1 attachment, got %d", m.Attachments())
	}

	slice, err := cube.Slice2DFrom3D(0, 2, 2)
	if err != nil {
		t.Fatalf("Slice2DFrom3D failed: %v", err)
	}
	if m.Attachments() != 2 {
		t.Errorf("Expected 2 attachments, got %d", m.Attachments())
	}
	for z := 0; z < 3; z++ {
		for x := 0; x < 5; x++ {
			if slice.Get(z, x) != cube.Get(z, 2, x) {
				t.Fatalf("Slice (%d,%d) differs from cube", z, x)
			}
		}
	}
	if slice.DimName(0) != "z" || slice.DimName(1) != "x" || slice.OrigDim(1) != 2 {
		t.Errorf("Unexpected slice dimensions %s %s", slice.DimName(0), slice.DimName(1))
	}
	restrictions := slice.Restrictions()
	if len(restrictions) != 1 || restrictions[0] != (Restriction{Dim: 1, Index: 2}) {
		t.Errorf("Unexpected restrictions %v", restrictions)
	}
	if slice.IsOriginal() {
		t.Error("Slice should not be original")
	}
	if err := slice.Write(filepath.Join(t.TempDir(), "slice")); !errors.Is(err, ErrNotOriginal) {
		t.Errorf("Expected ErrNotOriginal, got %v", err)
	}

	// writes through a sub-view reach the parent
	sub, err := slice.SubArray2D(1, 1, 2, 3)
	if err != nil {
		t.Fatalf("SubArray2D failed: %v", err)
	}
	sub.Put(42, 0, 0)
	if cube.Get(1, 2, 1) != 42 {
		t.Errorf("Expected write through sub-view, got %v", cube.Get(1, 2, 1))
	}
	if len(sub.Restrictions()) != 1 {
		t.Error("Sub-array should inherit restrictions")
	}
	if _, err := slice.SubArray2D(2, 0, 2, 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if _, err := cube.Slice2DFrom3D(0, 2, 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for slice position, got %v", err)
	}

	sub.Destroy()
	slice.Destroy()
	if m.Attachments() != 1 || m.Released() {
		t.Errorf("Expected parent to remain attached, count %d", m.Attachments())
	}
	cube.Destroy()
	if !m.Released() {
		t.Error("Structure should be released after last destroy")
	}
}

// TestToroidalRemap verifies wrapped indices alias the opposite edge
func TestToroidalRemap(t *testing.T) {
	v, err := Create(ds.Float, []string{"y", "x"}, []int{3, 4}, &CreateOptions{BoundaryWidth: 1})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer v.Destroy()
	fillPattern(v, 7)

	if v.BoundaryWidth() != 1 {
		t.Fatalf("Expected boundary width 1, got %d", v.BoundaryWidth())
	}
	if v.Get(-1, 0) != v.Get(2, 0) || v.Get(3, 4) != v.Get(0, 0) || v.Get(1, -1) != v.Get(1, 3) {
		t.Error("Wrapped indices should alias the opposite edge")
	}

	// a sub-array spanning the wrap is not contiguous
	sub, err := v.SubArray2D(-1, -1, 3, 3)
	if err != nil {
		t.Fatalf("SubArray2D into boundary failed: %v", err)
	}
	defer sub.Destroy()
	if sub.Contiguous(1) {
		t.Error("Wrapped columns should not be contiguous")
	}
	if sub.Get(0, 0) != v.Get(2, 3) || sub.Get(1, 1) != v.Get(0, 0) {
		t.Error("Sub-array of boundary region has wrong values")
	}

	out := createView(t, ds.Double, []string{"y", "x"}, []int{3, 3})
	defer out.Destroy()
	if err := Copy(out, sub, false); err != nil {
		t.Fatalf("Copy from non-contiguous view failed: %v", err)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if out.Get(r, c) != v.Get(r-1, c-1) {
				t.Errorf("Copy (%d,%d): expected %v, got %v", r, c, v.Get(r-1, c-1), out.Get(r, c))
			}
		}
	}
}

// buildMulti creates a structure holding a 2-D image, a 3-D cube and a
// named value
func buildMulti(t *testing.T) *ds.Multi {
	t.Helper()
	imagePacket, _ := ds.NewPacketDesc([]string{"Intensity"}, []ds.ElementType{ds.Float})
	image, err := ds.NewArrayDesc([]string{"y", "x"}, []int{2, 3}, imagePacket)
	if err != nil {
		t.Fatal(err)
	}
	cubePacket, _ := ds.NewPacketDesc([]string{"Voxel", "Mask"}, []ds.ElementType{ds.UByte, ds.UByte})
	cube, err := ds.NewArrayDesc([]string{"z", "y", "x"}, []int{2, 2, 2}, cubePacket)
	if err != nil {
		t.Fatal(err)
	}
	top := &ds.PacketDesc{Elements: []ds.Element{
		{Name: "Image", Type: ds.ArrayType, Array: image},
		{Name: "Cube", Type: ds.ArrayType, Array: cube},
		{Name: "BSCALE", Type: ds.Double},
	}}
	m, err := ds.NewMulti("frame", top)
	if err != nil {
		t.Fatal(err)
	}
	_, arr := m.ArrayAt(0, 0)
	offsets := image.Offsets()
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			ds.PutElement(arr.Data, offsets[0][y]+offsets[1][x], ds.Float, float64(10*y+x), 0)
		}
	}
	return m
}

// TestLocate verifies lookup rules and distinct failure kinds
func TestLocate(t *testing.T) {
	m := buildMulti(t)
	m.Attach()
	defer m.Detach()

	v, err := Locate(m, "", 2, nil, "")
	if err != nil {
		t.Fatalf("Locate 2-D failed: %v", err)
	}
	if v.Get(1, 2) != 12 {
		t.Errorf("Expected 12, got %v", v.Get(1, 2))
	}
	v.Destroy()

	mask, err := Locate(m, "frame", 3, nil, "Mask")
	if err != nil {
		t.Fatalf("Locate by element failed: %v", err)
	}
	if mask.Base() != 1 || mask.IsFullArray() != true {
		t.Errorf("Mask field should start at byte 1 and span the array")
	}
	mask.Destroy()

	failures := []struct {
		name      string
		structure string
		numDim    int
		dimNames  []string
		elemName  string
		expected  error
	}{
		{"unknown structure", "nope", 0, nil, "", ErrNotFound},
		{"two candidates", "", 0, nil, "", ErrAmbiguous},
		{"no 4-D array", "", 4, nil, "", ErrWrongDimensionality},
		{"missing dimension", "", 0, []string{"w"}, "", ErrMissingDimension},
		{"dimension count", "", 0, []string{"y"}, "", ErrWrongDimensionality},
		{"second dimension", "", 0, []string{"y", "q"}, "", ErrMissingDimension},
		{"missing element", "", 0, nil, "Missing", ErrMissingField},
		{"unnamed packet field", "", 3, nil, "", ErrAmbiguous},
	}
	m2 := buildMulti(t)
	for _, tc := range failures {
		_, err := Locate(m2, tc.structure, tc.numDim, tc.dimNames, tc.elemName)
		if !errors.Is(err, tc.expected) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.expected, err)
		}
	}
}

// TestLocateTranspose verifies a requested dimension order reorders storage
func TestLocateTranspose(t *testing.T) {
	m := buildMulti(t)
	v, err := Locate(m, "", 2, []string{"x", "y"}, "")
	if err != nil {
		t.Fatalf("Locate with transpose failed: %v", err)
	}
	defer v.Destroy()

	if v.DimName(0) != "x" || v.Len(0) != 3 || v.Len(1) != 2 {
		t.Fatalf("Expected x-major 3x2 view, got %s %dx%d", v.DimName(0), v.Len(0), v.Len(1))
	}
	for x := 0; x < 3; x++ {
		for y := 0; y < 2; y++ {
			if v.Get(x, y) != float64(10*y+x) {
				t.Errorf("(%d,%d): expected %d, got %v", x, y, 10*y+x, v.Get(x, y))
			}
		}
	}
	if !v.IsFullArray() {
		t.Error("Transposed view should be full")
	}
}

// TestCreateWithTemplate verifies auxiliary data survives re-creation
func TestCreateWithTemplate(t *testing.T) {
	tmpl := createView(t, ds.Float, []string{"y", "x"}, []int{2, 3})
	defer tmpl.Destroy()
	if err := tmpl.PutNamedString("OBJECT", "M31"); err != nil {
		t.Fatal(err)
	}
	if err := tmpl.PutNamedValue("EXPTIME", 30); err != nil {
		t.Fatal(err)
	}
	tmpl.SetWorldRange(1, -1, 1)

	v, err := Create(ds.Double, []string{"y", "x"}, []int{2, 3}, &CreateOptions{Template: tmpl, ElemName: "Flux"})
	if err != nil {
		t.Fatalf("Create with template failed: %v", err)
	}
	defer v.Destroy()

	if s, err := v.GetNamedString("OBJECT"); err != nil || s != "M31" {
		t.Errorf("Expected OBJECT M31, got %q (%v)", s, err)
	}
	if e, err := v.GetNamedValue("EXPTIME"); err != nil || e != 30 {
		t.Errorf("Expected EXPTIME 30, got %v (%v)", e, err)
	}
	if first, last := v.WorldRange(1); first != -1 || last != 1 {
		t.Errorf("Expected world range (-1,1), got (%v,%v)", first, last)
	}
	if v.Type() != ds.Double || v.Multi() == tmpl.Multi() {
		t.Error("New view should have its own Double array")
	}
	v.Put(5, 0, 0)
	if tmpl.Get(0, 0) != 0 {
		t.Error("Template data should be unaffected")
	}

	// a second unfilled array makes the hole ambiguous
	header := tmpl.Multi().Headers[0]
	header.Elements = append(header.Elements, ds.Element{Name: "Spare", Type: ds.ArrayType})
	tmpl.Multi().Data[0].Values = append(tmpl.Multi().Data[0].Values, nil)
	if _, err := Create(ds.Float, []string{"y", "x"}, []int{2, 3}, &CreateOptions{Template: tmpl}); !errors.Is(err, ds.ErrMultipleHoles) {
		t.Errorf("Expected ErrMultipleHoles, got %v", err)
	}
}

// TestScenarioConstantMinMax checks a constant 4x5 float view
func TestScenarioConstantMinMax(t *testing.T) {
	v := createView(t, ds.Float, []string{"y", "x"}, []int{4, 5})
	defer v.Destroy()
	v.Fill(2.5)

	min, max, err := MinMax(v, ds.ConvReal)
	if err != nil {
		t.Fatalf("MinMax failed: %v", err)
	}
	if min != 2.5 || max != 2.5 {
		t.Errorf("Expected (2.5, 2.5), got (%v, %v)", min, max)
	}
}

// TestScenarioSingleVoxelHistogram checks the two bin byte cube histogram
func TestScenarioSingleVoxelHistogram(t *testing.T) {
	cube := createView(t, ds.UByte, []string{"z", "y", "x"}, []int{10, 10, 10})
	defer cube.Destroy()
	cube.Put(255, 5, 5, 5)

	for _, threads := range []int{1, 4} {
		pool := threadpool.New(threads)
		engine := NewEngine(pool)
		bins := make([]uint64, 2)
		peak, mode, err := engine.Histogram(cube, ds.ConvReal, 0, 255, bins)
		pool.Close()
		if err != nil {
			t.Fatalf("Histogram failed: %v", err)
		}
		if bins[0] != 999 || bins[1] != 1 {
			t.Errorf("%d threads: expected bins [999 1], got %v", threads, bins)
		}
		if peak != 999 || mode != 0 {
			t.Errorf("%d threads: expected peak 999 mode 0, got %d %d", threads, peak, mode)
		}
	}
}

// TestReductionOrderIndependence compares pool sizes across view shapes
func TestReductionOrderIndependence(t *testing.T) {
	cube := createView(t, ds.Float, []string{"z", "y", "x"}, []int{6, 7, 8})
	defer cube.Destroy()
	fillPattern(cube, 99)

	slice, err := cube.Slice2DFrom3D(0, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer slice.Destroy()
	sub, err := slice.SubArray2D(1, 2, 4, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Destroy()
	inner, err := cube.SubArray([]int{1, 1, 1}, []int{4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	defer inner.Destroy()
	line, err := Create(ds.Double, []string{"x"}, []int{50}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer line.Destroy()
	fillPattern(line, 3)

	single := threadpool.New(1)
	defer single.Close()
	multi := threadpool.New(5)
	defer multi.Close()
	one, many := NewEngine(single), NewEngine(multi)

	for _, v := range []*View{cube, slice, sub, inner, line} {
		vals := values(v)
		min1, max1, err := one.MinMax(v, ds.ConvReal)
		if err != nil {
			t.Fatal(err)
		}
		minN, maxN, err := many.MinMax(v, ds.ConvReal)
		if err != nil {
			t.Fatal(err)
		}
		if min1 != minN || max1 != maxN {
			t.Errorf("%s: min/max differ between pools: (%v,%v) vs (%v,%v)", v.describe(), min1, max1, minN, maxN)
		}
		if min1 != floats.Min(vals) || max1 != floats.Max(vals) {
			t.Errorf("%s: expected (%v,%v), got (%v,%v)", v.describe(), floats.Min(vals), floats.Max(vals), min1, max1)
		}

		bins1 := make([]uint64, 7)
		binsN := make([]uint64, 7)
		peak1, mode1, err := one.Histogram(v, ds.ConvReal, min1, max1, bins1)
		if err != nil {
			t.Fatal(err)
		}
		peakN, modeN, err := many.Histogram(v, ds.ConvReal, min1, max1, binsN)
		if err != nil {
			t.Fatal(err)
		}
		if peak1 != peakN || mode1 != modeN {
			t.Errorf("%s: peak/mode differ: %d/%d vs %d/%d", v.describe(), peak1, mode1, peakN, modeN)
		}
		var mass uint64
		for i := range bins1 {
			if bins1[i] != binsN[i] {
				t.Errorf("%s: bin %d differs: %d vs %d", v.describe(), i, bins1[i], binsN[i])
			}
			mass += bins1[i]
		}
		if mass != uint64(v.NumElements()) {
			t.Errorf("%s: histogram holds %d values, view has %d", v.describe(), mass, v.NumElements())
		}
	}
}

// TestComplexReductions checks conversions on complex data
func TestComplexReductions(t *testing.T) {
	v := createView(t, ds.DComplex, []string{"x"}, []int{4})
	defer v.Destroy()
	v.Fill(3 + 4i)
	v.PutComplex(-6+8i, 2)

	testCases := []struct {
		conv     ds.ConvType
		min, max float64
	}{
		{ds.ConvReal, -6, 3},
		{ds.ConvImag, 4, 8},
		{ds.ConvAbs, 5, 10},
		{ds.ConvSquareAbs, 25, 100},
	}
	for _, tc := range testCases {
		min, max, err := MinMax(v, tc.conv)
		if err != nil {
			t.Fatalf("MinMax(%d) failed: %v", tc.conv, err)
		}
		if math.Abs(min-tc.min) > 1e-12 || math.Abs(max-tc.max) > 1e-12 {
			t.Errorf("conv %d: expected (%v,%v), got (%v,%v)", tc.conv, tc.min, tc.max, min, max)
		}
	}
	if _, _, err := MinMax(v, ds.ConvContPhase); !errors.Is(err, ds.ErrUnsupportedConversion) {
		t.Errorf("Expected ErrUnsupportedConversion, got %v", err)
	}
	if _, _, err := Histogram(v, ds.ConvContPhase, 0, 1, make([]uint64, 2)); !errors.Is(err, ds.ErrUnsupportedConversion) {
		t.Errorf("Expected ErrUnsupportedConversion from histogram, got %v", err)
	}
}

// TestBlankValuesIgnored verifies blank values do not affect min/max
func TestBlankValuesIgnored(t *testing.T) {
	v := createView(t, ds.Double, []string{"x"}, []int{3})
	defer v.Destroy()
	v.Put(1, 0)
	v.Put(ds.TooBig, 1)
	v.Put(-2, 2)
	min, max, err := MinMax(v, ds.ConvReal)
	if err != nil || min != -2 || max != 1 {
		t.Errorf("Expected (-2,1), got (%v,%v) %v", min, max, err)
	}

	v.Fill(complex(ds.TooBig, 0))
	if _, _, err := MinMax(v, ds.ConvReal); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

// TestCopyRoundTrip verifies identical-type copies and real/complex round trips
func TestCopyRoundTrip(t *testing.T) {
	in := createView(t, ds.Float, []string{"y", "x"}, []int{5, 6})
	defer in.Destroy()
	fillPattern(in, 11)

	out := createView(t, ds.Float, []string{"y", "x"}, []int{5, 6})
	defer out.Destroy()
	if err := Copy(out, in, false); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Data(), in.Data()) {
		t.Error("Same-type copy should be byte identical")
	}

	ints := createView(t, ds.Int, []string{"y", "x"}, []int{5, 6})
	defer ints.Destroy()
	if err := Copy(ints, in, false); err != nil {
		t.Fatal(err)
	}
	cplx := createView(t, ds.DComplex, []string{"y", "x"}, []int{5, 6})
	defer cplx.Destroy()
	if err := Copy(cplx, ints, false); err != nil {
		t.Fatal(err)
	}
	if imag(cplx.GetComplex(2, 3)) != 0 {
		t.Error("Real to complex copy should zero the imaginary part")
	}
	back := createView(t, ds.Int, []string{"y", "x"}, []int{5, 6})
	defer back.Destroy()
	if err := Copy(back, cplx, false); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.Data(), ints.Data()) {
		t.Error("Int to complex and back should be exact")
	}

	cplx.Fill(3 + 4i)
	mag := createView(t, ds.Double, []string{"y", "x"}, []int{5, 6})
	defer mag.Destroy()
	if err := Copy(mag, cplx, true); err != nil {
		t.Fatal(err)
	}
	if mag.Get(4, 5) != 5 {
		t.Errorf("Expected magnitude 5, got %v", mag.Get(4, 5))
	}
	if err := Copy(mag, cplx, false); err != nil {
		t.Fatal(err)
	}
	if mag.Get(0, 0) != 3 {
		t.Errorf("Expected real part 3, got %v", mag.Get(0, 0))
	}
}

// TestShapeMismatch verifies operand validation
func TestShapeMismatch(t *testing.T) {
	a := createView(t, ds.Float, []string{"y", "x"}, []int{2, 3})
	defer a.Destroy()
	b := createView(t, ds.Float, []string{"y", "x"}, []int{3, 2})
	defer b.Destroy()
	c := createView(t, ds.Float, []string{"x"}, []int{6})
	defer c.Destroy()

	if err := Copy(a, b, false); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for lengths, got %v", err)
	}
	if err := ScaleAndOffset(a, c, 1, 0, false); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for dimensionality, got %v", err)
	}
	if err := AddAndScale(a, a, b, 1, false); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for second input, got %v", err)
	}
}

// TestConcurrentReductions shares one pool between goroutines reducing
// a strided sub-array
func TestConcurrentReductions(t *testing.T) {
	cube := createView(t, ds.Float, []string{"z", "y", "x"}, []int{6, 7, 8})
	defer cube.Destroy()
	fillPattern(cube, 11)
	inner, err := cube.SubArray([]int{1, 1, 1}, []int{4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	defer inner.Destroy()
	vals := values(inner)
	wantMin, wantMax := floats.Min(vals), floats.Max(vals)

	pool := threadpool.New(4)
	defer pool.Close()
	engine := NewEngine(pool)

	const callers, rounds = 8, 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	mismatches := 0
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hist := make([]uint64, 10)
			for r := 0; r < rounds; r++ {
				lo, hi, err := engine.MinMax(inner, ds.ConvReal)
				_, _, herr := engine.Histogram(inner, ds.ConvReal, wantMin, wantMax, hist)
				if err != nil || herr != nil || lo != wantMin || hi != wantMax {
					mu.Lock()
					mismatches++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if mismatches != 0 {
		t.Errorf("%d concurrent reductions disagreed with the serial extremes", mismatches)
	}
}

// TestScaleAndOffset covers identity, integer nudging and complex scaling
func TestScaleAndOffset(t *testing.T) {
	in := createView(t, ds.Double, []string{"x"}, []int{9})
	defer in.Destroy()
	for i := 0; i < 9; i++ {
		in.Put(float64(3*i-12), i)
	}

	same := createView(t, ds.Double, []string{"x"}, []int{9})
	defer same.Destroy()
	if err := ScaleAndOffset(same, in, 1, 0, false); err != nil {
		t.Fatal(err)
	}
	ints := createView(t, ds.Int, []string{"x"}, []int{9})
	defer ints.Destroy()
	if err := ScaleAndOffset(ints, in, 1, 0, false); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		if same.Get(i) != in.Get(i) {
			t.Errorf("Double identity at %d: %v vs %v", i, same.Get(i), in.Get(i))
		}
		if ints.Get(i) != in.Get(i) {
			t.Errorf("Int identity at %d: %v vs %v", i, ints.Get(i), in.Get(i))
		}
	}

	// 0.57*100 is 56.99999999999999 in floating point
	frac := createView(t, ds.Double, []string{"x"}, []int{1})
	defer frac.Destroy()
	frac.Put(0.57, 0)
	one := createView(t, ds.Int, []string{"x"}, []int{1})
	defer one.Destroy()
	if err := ScaleAndOffset(one, frac, 100, 0, false); err != nil {
		t.Fatal(err)
	}
	if one.Get(0) != 57 {
		t.Errorf("Expected integer nudge to give 57, got %v", one.Get(0))
	}
	if err := ScaleAndOffset(one, frac, -100, 0, false); err != nil {
		t.Fatal(err)
	}
	if one.Get(0) != -57 {
		t.Errorf("Expected integer nudge to give -57, got %v", one.Get(0))
	}

	// integer to integer keeps negative values
	signed := createView(t, ds.Int, []string{"x"}, []int{3})
	defer signed.Destroy()
	for i, v := range []float64{-3, -1, 5} {
		signed.Put(v, i)
	}
	copied := createView(t, ds.Int, []string{"x"}, []int{3})
	defer copied.Destroy()
	if err := ScaleAndOffset(copied, signed, 1, 0, false); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if copied.Get(i) != signed.Get(i) {
			t.Errorf("Int to Int identity at %d: %v vs %v", i, copied.Get(i), signed.Get(i))
		}
	}

	cin := createView(t, ds.DComplex, []string{"x"}, []int{2})
	defer cin.Destroy()
	cin.Fill(1 + 2i)
	cout := createView(t, ds.DComplex, []string{"x"}, []int{2})
	defer cout.Destroy()
	if err := ScaleAndOffset(cout, cin, 1i, 1, false); err != nil {
		t.Fatal(err)
	}
	if got := cout.GetComplex(1); got != -1+1i {
		t.Errorf("Expected -1+1i, got %v", got)
	}
	mag := createView(t, ds.Double, []string{"x"}, []int{2})
	defer mag.Destroy()
	if err := ScaleAndOffset(mag, cin, 1i, 1, true); err != nil {
		t.Fatal(err)
	}
	if math.Abs(mag.Get(0)-math.Sqrt2) > 1e-12 {
		t.Errorf("Expected sqrt(2), got %v", mag.Get(0))
	}
}

// TestClipScaleAndOffset covers clamping, blanking and type checks
func TestClipScaleAndOffset(t *testing.T) {
	in := createView(t, ds.Double, []string{"x"}, []int{5})
	defer in.Destroy()
	for i, v := range []float64{-5, 0, 5, 10, ds.TooBig} {
		in.Put(v, i)
	}
	out := createView(t, ds.Double, []string{"x"}, []int{5})
	defer out.Destroy()

	testCases := []struct {
		blank    bool
		expected []float64
	}{
		{false, []float64{1, 1, 11, 13, ds.TooBig}},
		{true, []float64{ds.TooBig, 1, 11, ds.TooBig, ds.TooBig}},
	}
	for _, tc := range testCases {
		if err := ClipScaleAndOffset(out, in, 0, 6, 2, 1, tc.blank); err != nil {
			t.Fatal(err)
		}
		for i, e := range tc.expected {
			if out.Get(i) != e {
				t.Errorf("blank=%v index %d: expected %v, got %v", tc.blank, i, e, out.Get(i))
			}
		}
	}

	cplx := createView(t, ds.Complex, []string{"x"}, []int{5})
	defer cplx.Destroy()
	if err := ClipScaleAndOffset(out, cplx, 0, 1, 1, 0, false); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch, got %v", err)
	}
}

// TestAddAndSubAndScale covers real and complex dyadic operations
func TestAddAndSubAndScale(t *testing.T) {
	a := createView(t, ds.Double, []string{"x"}, []int{3})
	defer a.Destroy()
	b := createView(t, ds.Float, []string{"x"}, []int{3})
	defer b.Destroy()
	out := createView(t, ds.Double, []string{"x"}, []int{3})
	defer out.Destroy()
	for i := 0; i < 3; i++ {
		a.Put(float64(i+1), i)
		b.Put(float64(10*(i+1)), i)
	}

	if err := AddAndScale(out, a, b, 0.5, false); err != nil {
		t.Fatal(err)
	}
	for i, e := range []float64{6, 12, 18} {
		if out.Get(i) != e {
			t.Errorf("Add index %d: expected %v, got %v", i, e, out.Get(i))
		}
	}
	if err := SubAndScale(out, a, b, 0.5, false); err != nil {
		t.Fatal(err)
	}
	for i, e := range []float64{-4, -8, -12} {
		if out.Get(i) != e {
			t.Errorf("Sub index %d: expected %v, got %v", i, e, out.Get(i))
		}
	}

	c1 := createView(t, ds.DComplex, []string{"x"}, []int{3})
	defer c1.Destroy()
	c2 := createView(t, ds.DComplex, []string{"x"}, []int{3})
	defer c2.Destroy()
	c1.Fill(3)
	c2.Fill(4i)
	if err := AddAndScale(out, c1, c2, 1, true); err != nil {
		t.Fatal(err)
	}
	if out.Get(0) != 5 {
		t.Errorf("Expected magnitude 5 with two complex inputs, got %v", out.Get(0))
	}
	// one real input keeps the real part even with magnitude set
	if err := AddAndScale(out, a, c2, 1, true); err != nil {
		t.Fatal(err)
	}
	if out.Get(0) != 1 {
		t.Errorf("Expected real part 1, got %v", out.Get(0))
	}
	cout := createView(t, ds.DComplex, []string{"x"}, []int{3})
	defer cout.Destroy()
	if err := SubAndScale(cout, c1, c2, 1i, false); err != nil {
		t.Fatal(err)
	}
	// 3 - 4i*i = 7
	if got := cout.GetComplex(2); got != 7 {
		t.Errorf("Expected 7, got %v", got)
	}
}

// TestArrayFileRoundTrip writes a view and reads it back
func TestArrayFileRoundTrip(t *testing.T) {
	v := createView(t, ds.Short, []string{"y", "x"}, []int{4, 3})
	defer v.Destroy()
	fillPattern(v, 5)
	if err := v.PutNamedValue("BZERO", 32768); err != nil {
		t.Fatal(err)
	}
	name := filepath.Join(t.TempDir(), "frame")
	if err := v.Write(name); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for _, mmap := range []bool{false, true} {
		r, err := Read(name, ds.ReadOptions{Mmap: mmap}, ReadRequest{NumDim: 2})
		if err != nil {
			t.Fatalf("Read (mmap=%v) failed: %v", mmap, err)
		}
		if !bytes.Equal(r.Data(), v.Data()) {
			t.Errorf("mmap=%v: data differs after round trip", mmap)
		}
		if bz, err := r.GetNamedValue("BZERO"); err != nil || bz != 32768 {
			t.Errorf("mmap=%v: expected BZERO 32768, got %v (%v)", mmap, bz, err)
		}
		if r.DimName(1) != "x" || r.Type() != ds.Short {
			t.Errorf("mmap=%v: unexpected layout", mmap)
		}
		r.Destroy()
	}

	if _, err := Read(name, ds.ReadOptions{}, ReadRequest{NumDim: 3}); !errors.Is(err, ErrWrongDimensionality) {
		t.Errorf("Expected ErrWrongDimensionality, got %v", err)
	}
}

// TestDestroyHooks verifies hook ordering, cancellation and double destroy
func TestDestroyHooks(t *testing.T) {
	v := createView(t, ds.Float, []string{"x"}, []int{2})
	var order []int
	v.OnDestroy(func() { order = append(order, 1) })
	cancel := v.OnDestroy(func() { order = append(order, 2) })
	v.OnDestroy(func() { order = append(order, 3) })
	cancel()
	v.Destroy()
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Errorf("Expected hooks [1 3], got %v", order)
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on second destroy")
		}
	}()
	v.Destroy()
}
