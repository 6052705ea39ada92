// Package tileindex resolves a geographic point to the path of the raster
// file that covers it, for each of the three tiling schemes a dataset may
// use: a single file, a uniform one-degree grid (SRTM-style naming), or an
// arbitrary set of rasters described by a manifest.
package tileindex

import (
	"fmt"
	"math"
	"sync"
)

// Index resolves a point to the raster file path that covers it. ok is
// false when no raster in the dataset covers the point.
type Index interface {
	Locate(lat, lon float64) (path string, ok bool)
}

// Single is the tiling scheme for a dataset backed by exactly one raster
// file covering its entire extent.
type Single struct {
	Path string
}

// NewSingle returns an Index that always resolves to path.
func NewSingle(path string) *Single {
	return &Single{Path: path}
}

func (s *Single) Locate(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return "", false
	}
	return s.Path, true
}

// Grid is the tiling scheme for SRTM-style datasets: one raster per
// gridSizeDegrees x gridSizeDegrees cell, named by a template applied to
// the cell's southwest corner. Lookups for cells known not to exist are
// cached negatively so a sparse dataset (e.g. ocean cells with no land
// tile) isn't re-stat'd by the registry on every query.
type Grid struct {
	gridSize float64
	nameFunc func(cellLat, cellLon int) string
	exists   func(path string) bool

	mu       sync.Mutex
	negative map[string]bool
}

// NewGrid builds a Grid index. nameFunc maps a cell's integer southwest
// corner (e.g. floor(lat), floor(lon)) to a filename; exists reports
// whether that file is actually present (typically os.Stat).
func NewGrid(gridSizeDegrees float64, nameFunc func(cellLat, cellLon int) string, exists func(path string) bool) *Grid {
	return &Grid{
		gridSize: gridSizeDegrees,
		nameFunc: nameFunc,
		exists:   exists,
		negative: make(map[string]bool),
	}
}

func (g *Grid) Locate(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return "", false
	}

	cellLat := int(math.Floor(lat / g.gridSize))
	cellLon := int(math.Floor(lon / g.gridSize))
	path := g.nameFunc(cellLat, cellLon)

	g.mu.Lock()
	if g.negative[path] {
		g.mu.Unlock()
		return "", false
	}
	g.mu.Unlock()

	if !g.exists(path) {
		g.mu.Lock()
		g.negative[path] = true
		g.mu.Unlock()
		return "", false
	}
	return path, true
}

// GLO90CellName builds the Copernicus GLO-90 / GLO-30 DEM directory naming
// convention from a cell's southwest corner, matching the layout elevation
// providers distribute 1-degree DEM tiles under.
func GLO90CellName(baseDir string, cellLat, cellLon int) string {
	latDir, latVal := "N", cellLat
	if cellLat < 0 {
		latDir, latVal = "S", -cellLat
	}
	lonDir, lonVal := "E", cellLon
	if cellLon < 0 {
		lonDir, lonVal = "W", -cellLon
	}
	name := fmt.Sprintf("Copernicus_DSM_COG_30_%s%02d_00_%s%03d_00_DEM", latDir, latVal, lonDir, lonVal)
	return baseDir + "/" + name + "/" + name + ".tif"
}

// SRTMHGTName builds the standard SRTM .hgt naming convention (e.g.
// N37W123.hgt) from a cell's southwest corner.
func SRTMHGTName(baseDir string, cellLat, cellLon int) string {
	latDir, latVal := "N", cellLat
	if cellLat < 0 {
		latDir, latVal = "S", -cellLat
	}
	lonDir, lonVal := "E", cellLon
	if cellLon < 0 {
		lonDir, lonVal = "W", -cellLon
	}
	return fmt.Sprintf("%s/%s%02d%s%03d.hgt", baseDir, latDir, latVal, lonDir, lonVal)
}
