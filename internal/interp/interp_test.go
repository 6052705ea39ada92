package interp

import (
	"math"
	"testing"

	"github.com/jcom-dev/elevation-service/internal/raster"
)

func TestParseKernel(t *testing.T) {
	cases := map[string]Kernel{
		"":         Nearest,
		"nearest":  Nearest,
		"bilinear": Bilinear,
		"cubic":    Cubic,
	}
	for s, want := range cases {
		got, err := ParseKernel(s)
		if err != nil {
			t.Fatalf("ParseKernel(%q) returned error: %v", s, err)
		}
		if got != want {
			t.Fatalf("ParseKernel(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := ParseKernel("lanczos"); err == nil {
		t.Fatalf("expected error for unknown kernel name")
	}
}

func window(width, height int, values []float64) raster.Window {
	return raster.Window{Width: width, Height: height, Values: values}
}

func TestFootprintOriginSizes(t *testing.T) {
	cases := []struct {
		k    Kernel
		size int
	}{
		{Nearest, 1},
		{Bilinear, 2},
		{Cubic, 4},
	}
	for _, c := range cases {
		_, _, size := FootprintOrigin(c.k, 3.2, 4.7)
		if size != c.size {
			t.Fatalf("FootprintOrigin(%v) size = %d, want %d", c.k, size, c.size)
		}
	}
}

func TestSampleNearestPicksSingleSample(t *testing.T) {
	// Seed scenario: 2x2 raster [[815, 820], [810, 805]], pixel (0.40,0.35)
	// rounds to the top-left pixel under the pixel-center convention.
	w := window(1, 1, []float64{815})
	v, isNoData := Sample(Nearest, w, 0.4, 0.35, -9999, true)
	if isNoData {
		t.Fatalf("unexpected NODATA")
	}
	if v != 815 {
		t.Fatalf("Sample(Nearest) = %v, want 815", v)
	}
}

func TestSampleBilinearInterpolatesCenter(t *testing.T) {
	w := window(2, 2, []float64{0, 10, 20, 30})
	// Exact pixel centers at px=0.5,1.5 map fx=0 exactly; the midpoint
	// between them (px=1.0) should average the top row.
	v, isNoData := Sample(Bilinear, w, 1.0, 0.5, math.NaN(), false)
	if isNoData {
		t.Fatalf("unexpected NODATA")
	}
	if math.Abs(v-5) > 1e-9 {
		t.Fatalf("Sample(Bilinear) = %v, want 5", v)
	}
}

func TestSampleBilinearCorners(t *testing.T) {
	w := window(2, 2, []float64{0, 10, 20, 30})
	v, isNoData := Sample(Bilinear, w, 0.5, 0.5, math.NaN(), false)
	if isNoData || v != 0 {
		t.Fatalf("Sample(Bilinear) at exact top-left = %v, isNoData=%v, want 0", v, isNoData)
	}
	// The bottom-right sample's own center (1.5, 1.5) anchors the bilinear
	// footprint at pixel (1, 1), so the window read for it starts with 30.
	w = window(2, 2, []float64{30, 31, 32, 33})
	v, isNoData = Sample(Bilinear, w, 1.5, 1.5, math.NaN(), false)
	if isNoData || v != 30 {
		t.Fatalf("Sample(Bilinear) at exact bottom-right = %v, isNoData=%v, want 30", v, isNoData)
	}
}

func TestSampleDetectsNaNFootprint(t *testing.T) {
	w := window(2, 2, []float64{1, 2, 3, math.NaN()})
	_, isNoData := Sample(Bilinear, w, 1.0, 1.0, -9999, true)
	if !isNoData {
		t.Fatalf("expected NaN in footprint to report NODATA")
	}
}

func TestSampleDetectsSentinelNoData(t *testing.T) {
	w := window(1, 1, []float64{-9999})
	_, isNoData := Sample(Nearest, w, 0.5, 0.5, -9999, true)
	if !isNoData {
		t.Fatalf("expected sentinel NODATA value to report NODATA")
	}
}

func TestCubicWeightsSumToOne(t *testing.T) {
	for _, frac := range []float64{0, 0.25, 0.5, 0.75, 0.999} {
		w := cubicWeights(frac)
		sum := w[0] + w[1] + w[2] + w[3]
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("cubicWeights(%v) sums to %v, want 1", frac, sum)
		}
	}
}

func TestSampleCubicAtGridPointReturnsExactValue(t *testing.T) {
	values := make([]float64, 16)
	for i := range values {
		values[i] = float64(i)
	}
	w := window(4, 4, values)
	// Tap index 1 (row 1, col 1) sits at pixel center (1.5, 1.5); value 5.
	v, isNoData := Sample(Cubic, w, 1.5, 1.5, math.NaN(), false)
	if isNoData {
		t.Fatalf("unexpected NODATA")
	}
	if math.Abs(v-5) > 1e-6 {
		t.Fatalf("Sample(Cubic) at grid point = %v, want 5", v)
	}
}
