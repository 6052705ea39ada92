// Package interp implements the resampling kernels used to turn a small
// window of raster samples plus a fractional pixel coordinate into a
// single elevation value: nearest-neighbor, bilinear, and cubic
// convolution (Keys, a=-0.5).
package interp

import (
	"fmt"
	"math"

	"github.com/jcom-dev/elevation-service/internal/raster"
)

// Kernel selects a resampling method.
type Kernel int

const (
	Nearest Kernel = iota
	Bilinear
	Cubic
)

// keysA is the Keys cubic convolution shape parameter. -0.5 reproduces the
// derivative-matching cubic used by most GIS resampling implementations.
const keysA = -0.5

// ParseKernel maps a config/query string to a Kernel.
func ParseKernel(s string) (Kernel, error) {
	switch s {
	case "", "nearest":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	case "cubic":
		return Cubic, nil
	default:
		return 0, fmt.Errorf("unknown interpolation kernel %q", s)
	}
}

func (k Kernel) String() string {
	switch k {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case Cubic:
		return "cubic"
	default:
		return "unknown"
	}
}

// FootprintOrigin returns the top-left pixel coordinate of the window this
// kernel needs in order to sample the point at fractional pixel coordinate
// (px, py), along with the window's side length.
func FootprintOrigin(k Kernel, px, py float64) (x, y, size int) {
	switch k {
	case Nearest:
		col := int(math.RoundToEven(px - 0.5))
		row := int(math.RoundToEven(py - 0.5))
		return col, row, 1
	case Bilinear:
		col := int(math.Floor(px - 0.5))
		row := int(math.Floor(py - 0.5))
		return col, row, 2
	case Cubic:
		col := int(math.Floor(px-0.5)) - 1
		row := int(math.Floor(py-0.5)) - 1
		return col, row, 4
	default:
		return int(px), int(py), 1
	}
}

// Sample resolves the value at fractional pixel coordinate (px, py) from a
// window that must have been read at the origin FootprintOrigin returned
// for this kernel and px/py. isNoData is true if any sample the kernel's
// footprint touched is either NaN (outside the raster) or bit-exact equal
// to the raster's NODATA sentinel: per the no-fallback NODATA policy, a
// single missing sample poisons the whole interpolated result.
func Sample(k Kernel, w raster.Window, px, py float64, noData float64, hasNoData bool) (value float64, isNoData bool) {
	isMissing := func(v float64) bool {
		if math.IsNaN(v) {
			return true
		}
		return hasNoData && v == noData
	}

	switch k {
	case Nearest:
		v := w.At(0, 0)
		if isMissing(v) {
			return 0, true
		}
		return v, false

	case Bilinear:
		fx := px - 0.5 - math.Floor(px-0.5)
		fy := py - 0.5 - math.Floor(py-0.5)

		v00, v10 := w.At(0, 0), w.At(1, 0)
		v01, v11 := w.At(0, 1), w.At(1, 1)
		if isMissing(v00) || isMissing(v10) || isMissing(v01) || isMissing(v11) {
			return 0, true
		}

		top := v00 + (v10-v00)*fx
		bottom := v01 + (v11-v01)*fx
		return top + (bottom-top)*fy, false

	case Cubic:
		fx := px - 0.5 - math.Floor(px-0.5)
		fy := py - 0.5 - math.Floor(py-0.5)

		wx := cubicWeights(fx)
		wy := cubicWeights(fy)

		rows := make([]float64, 4)
		for row := 0; row < 4; row++ {
			var sum float64
			for col := 0; col < 4; col++ {
				v := w.At(col, row)
				if isMissing(v) {
					return 0, true
				}
				sum += v * wx[col]
			}
			rows[row] = sum
		}

		var result float64
		for row := 0; row < 4; row++ {
			result += rows[row] * wy[row]
		}
		return result, false

	default:
		return 0, true
	}
}

// cubicWeights returns the four Keys convolution weights for taps at
// offsets -1, 0, 1, 2 from the sample at fractional position frac within
// [0,1) of tap 0.
func cubicWeights(frac float64) [4]float64 {
	return [4]float64{
		keysWeight(1 + frac),
		keysWeight(frac),
		keysWeight(1 - frac),
		keysWeight(2 - frac),
	}
}

func keysWeight(x float64) float64 {
	x = math.Abs(x)
	a := keysA
	switch {
	case x <= 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a*x*x*x - 5*a*x*x + 8*a*x - 4*a
	default:
		return 0
	}
}
