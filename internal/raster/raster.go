// Package raster implements read-only raster decoding: GeoTIFF and raw SRTM
// .hgt grids, opened read-only and sampled through a small, format-agnostic
// window interface. No GDAL or other ambient geospatial library is used —
// both formats are decoded directly against the files' own specifications.
package raster

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/jcom-dev/elevation-service/internal/elevation"
)

// Metadata describes a raster's georeferencing and pixel layout. Origin is
// the geographic coordinate of the top-left corner of pixel (0,0);
// PixelSizeX/PixelSizeY are degrees per pixel, with PixelSizeY stored
// positive (rows advance southward).
type Metadata struct {
	Width, Height     int
	OriginX, OriginY  float64
	PixelSizeX        float64
	PixelSizeY        float64
	NoData            float64
	HasNoData         bool
}

// Bounds returns the geographic extent covered by the raster.
func (m Metadata) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	minLon = m.OriginX
	maxLon = m.OriginX + float64(m.Width)*m.PixelSizeX
	maxLat = m.OriginY
	minLat = m.OriginY - float64(m.Height)*m.PixelSizeY
	return
}

// Contains reports whether (lat, lon) falls within the raster's bounds.
func (m Metadata) Contains(lat, lon float64) bool {
	minLon, minLat, maxLon, maxLat := m.Bounds()
	return lon >= minLon && lon < maxLon && lat > minLat && lat <= maxLat
}

// PixelCoord converts a geographic coordinate to fractional pixel space.
func (m Metadata) PixelCoord(lat, lon float64) (px, py float64) {
	px = (lon - m.OriginX) / m.PixelSizeX
	py = (m.OriginY - lat) / m.PixelSizeY
	return
}

// Window is a rectangular block of samples read from a raster, stored in
// row-major order. Values outside the raster's own extent are filled with
// NaN, so callers never have to special-case a short read.
type Window struct {
	X, Y          int
	Width, Height int
	Values        []float64
}

// At returns the sample at the window-local (col, row).
func (w Window) At(col, row int) float64 {
	return w.Values[row*w.Width+col]
}

// Reader is satisfied by every raster decoder. It is intentionally narrow:
// enough for the dataset query engine to resolve a window of samples
// without knowing whether the backing file is GeoTIFF or .hgt.
type Reader interface {
	Metadata() Metadata
	// ReadWindow returns a Width x Height block of samples whose top-left
	// corner is pixel (x, y). The request is clipped internally against the
	// raster's own bounds; out-of-range cells come back as NaN so the
	// returned Window always has exactly Width*Height values.
	ReadWindow(x, y, width, height int) (Window, error)
	Close() error
}

// Open opens path with the decoder appropriate to its extension. GeoTIFF
// (.tif/.tiff) and raw SRTM (.hgt) are the only formats this reader speaks.
func Open(path string) (Reader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".tif", ".tiff":
		return OpenGeoTIFF(path)
	case ".hgt":
		return OpenHGT(path)
	default:
		return nil, elevation.UnsupportedFormatf("unrecognized raster extension %q for %s", ext, path)
	}
}

// fillWindow copies the overlap between the requested [x,y,width,height]
// rectangle and a source grid of size (srcWidth, srcHeight) into a Window,
// leaving every cell outside the source as NaN. sample is called with
// source-space (col, row) and must return the raw decoded value.
func fillWindow(x, y, width, height, srcWidth, srcHeight int, sample func(col, row int) float64) Window {
	values := make([]float64, width*height)
	for i := range values {
		values[i] = math.NaN()
	}

	startCol := max(0, x)
	endCol := min(srcWidth, x+width)
	startRow := max(0, y)
	endRow := min(srcHeight, y+height)

	for row := startRow; row < endRow; row++ {
		localRow := row - y
		for col := startCol; col < endCol; col++ {
			localCol := col - x
			values[localRow*width+localCol] = sample(col, row)
		}
	}

	return Window{X: x, Y: y, Width: width, Height: height, Values: values}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ErrOutOfRange is returned by HandleCache.Get for a path whose earlier
// open failed and was cached as a negative entry.
type ErrOutOfRange struct {
	Path string
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("raster previously failed to open: %s", e.Path)
}
