package dataset

import (
	"math"

	"github.com/jcom-dev/elevation-service/internal/elevation"
	"github.com/jcom-dev/elevation-service/internal/interp"
	"github.com/jcom-dev/elevation-service/internal/raster"
	"github.com/jcom-dev/elevation-service/internal/tileindex"
)

// Point is a geographic query coordinate.
type Point struct {
	Lat, Lon float64
}

// Result is one point's resolved elevation. Err is non-nil for an invalid
// point, a point whose raster could not be opened or read (a RasterIO
// error), or (under a strict nodata policy) a point that is uncovered or
// whose kernel footprint touches NODATA. Value is nil whenever Err is set, and
// also nil for a point that resolved cleanly to NODATA or fell outside
// every raster's coverage under the default (non-strict) policy.
type Result struct {
	Value *float64
	Err   error
}

// areaThresholdFraction bounds how much of a tile's area the union of a
// batch's kernel footprints may span before the engine gives up on one
// combined read: beyond this, most of the bounding window would be unread
// padding, so per-point small reads waste less I/O.
const areaThresholdFraction = 0.5

// Engine answers batched elevation queries against one dataset. A batch of
// N points run together must always produce exactly the results N separate
// single-point queries would: batching only changes how many times a
// raster file is opened and how pixel windows are read, never what a query
// returns.
type Engine struct {
	name         string
	index        tileindex.Index
	cache        *raster.HandleCache
	kernel       interp.Kernel
	strictNoData bool
	precision    *int

	// open decodes a raster file. It is raster.Open outside of tests; tests
	// substitute a counting/fake opener to verify batching behavior without
	// touching the filesystem.
	open func(path string) (raster.Reader, error)
}

// Name returns the dataset's configured name.
func (e *Engine) Name() string {
	return e.name
}

// group collects the subset of a batch that resolved to the same raster
// file, along with where each point's answer belongs in the final result
// slice.
type group struct {
	path    string
	points  []Point
	indexes []int
}

// Query resolves elevations for every point, in input order. Points that
// share a tile are read and interpolated together against a single opened
// raster handle, but the output is indistinguishable from having queried
// each point alone.
func (e *Engine) Query(points []Point) []Result {
	results := make([]Result, len(points))
	groups := make(map[string]*group)
	var order []string

	for i, p := range points {
		// lng wraps modulo 360 into the canonical range before anything
		// else touches it, so a query at lng=181 behaves identically to
		// one at lng=-179. Only latitude is ever rejected for range.
		p.Lon = canonicalizeLon(p.Lon)

		if !validCoord(p.Lat, p.Lon) {
			results[i] = Result{Err: elevation.InvalidPointf("invalid point lat=%v lon=%v", p.Lat, p.Lon)}
			continue
		}

		path, ok := e.index.Locate(p.Lat, p.Lon)
		if !ok {
			if e.strictNoData {
				results[i] = Result{Err: elevation.Uncoveredf("no coverage for lat=%v lon=%v", p.Lat, p.Lon)}
			} else {
				results[i] = Result{}
			}
			continue
		}

		g, exists := groups[path]
		if !exists {
			g = &group{path: path}
			groups[path] = g
			order = append(order, path)
		}
		g.points = append(g.points, p)
		g.indexes = append(g.indexes, i)
	}

	for _, path := range order {
		e.resolveGroup(groups[path], results)
	}

	return results
}

// footprint is one point's resolved pixel-space query: its fractional pixel
// coordinate and the kernel-sized window of samples that coordinate needs.
type footprint struct {
	px, py     float64
	x, y, size int
}

func (e *Engine) resolveGroup(g *group, results []Result) {
	reader, err := e.cache.Get(g.path, e.open)
	if err != nil {
		rioErr := elevation.RasterIOf(err, "opening %s", g.path)
		for _, idx := range g.indexes {
			results[idx] = Result{Err: rioErr}
		}
		return
	}

	meta := reader.Metadata()

	footprints := make([]footprint, len(g.points))
	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt
	for n, p := range g.points {
		px, py := meta.PixelCoord(p.Lat, p.Lon)
		x, y, size := interp.FootprintOrigin(e.kernel, px, py)
		footprints[n] = footprint{px: px, py: py, x: x, y: y, size: size}
		minX, minY = min(minX, x), min(minY, y)
		maxX, maxY = max(maxX, x+size), max(maxY, y+size)
	}

	boundWidth, boundHeight := maxX-minX, maxY-minY
	tileArea := meta.Width * meta.Height
	boundArea := boundWidth * boundHeight

	// The central optimization (spec.md §4.4 steps 4-5): read the union of
	// every point's footprint once, unless that span is so large relative
	// to the tile that most of it would go unused, in which case per-point
	// small reads waste less I/O.
	if tileArea == 0 || float64(boundArea) <= areaThresholdFraction*float64(tileArea) {
		win, err := reader.ReadWindow(minX, minY, boundWidth, boundHeight)
		if err != nil {
			rioErr := elevation.RasterIOf(err, "reading window")
			for _, idx := range g.indexes {
				results[idx] = Result{Err: rioErr}
			}
			return
		}
		for n, p := range g.points {
			idx := g.indexes[n]
			fp := footprints[n]
			sub := subWindow(win, fp.x, fp.y, fp.size)
			results[idx] = e.sampleFromWindow(sub, fp.px, fp.py, meta, p)
		}
		return
	}

	for n, p := range g.points {
		idx := g.indexes[n]
		fp := footprints[n]
		win, err := reader.ReadWindow(fp.x, fp.y, fp.size, fp.size)
		if err != nil {
			results[idx] = Result{Err: elevation.RasterIOf(err, "reading window")}
			continue
		}
		results[idx] = e.sampleFromWindow(win, fp.px, fp.py, meta, p)
	}
}

// subWindow extracts the size x size block anchored at (x, y) out of a
// larger window that is known to fully contain it.
func subWindow(win raster.Window, x, y, size int) raster.Window {
	values := make([]float64, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			values[row*size+col] = win.At(x-win.X+col, y-win.Y+row)
		}
	}
	return raster.Window{X: x, Y: y, Width: size, Height: size, Values: values}
}

func (e *Engine) sampleFromWindow(win raster.Window, px, py float64, meta raster.Metadata, p Point) Result {
	value, isNoData := interp.Sample(e.kernel, win, px, py, meta.NoData, meta.HasNoData)
	if isNoData {
		if e.strictNoData {
			return Result{Err: elevation.NoDataf("point resolves to NODATA (lat=%v lon=%v)", p.Lat, p.Lon)}
		}
		return Result{}
	}

	value = e.round(value)
	return Result{Value: &value}
}

func (e *Engine) round(v float64) float64 {
	if e.precision == nil {
		return v
	}
	scale := math.Pow(10, float64(*e.precision))
	return math.Round(v*scale) / scale
}

// canonicalizeLon wraps lon modulo 360 into the canonical [-180,180) range.
func canonicalizeLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return lon
	}
	wrapped := math.Mod(lon+180, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return wrapped - 180
}

func validCoord(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90
}
