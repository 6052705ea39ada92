package raster

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jcom-dev/elevation-service/internal/elevation"
)

// hgtNoData is the SRTM sentinel for a missing sample.
const hgtNoData = -32768

// hgtReader decodes a raw SRTM .hgt grid: a square array of big-endian
// int16 elevations, one degree on a side, named by its southwest corner
// (e.g. N37W123.hgt). There is no header to parse — the side length (1201
// for SRTM3, 3601 for SRTM1) is inferred from the file size, and every
// sample's byte offset is computed directly from its row and column.
type hgtReader struct {
	f    *os.File
	side int
	meta Metadata
}

// OpenHGT opens a raw SRTM .hgt file. The file's southwest corner is parsed
// from its basename (Nxx/Sxx, Exxx/Wxxx), matching the standard SRTM naming
// convention.
func OpenHGT(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, elevation.RasterIOf(err, "open %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, elevation.RasterIOf(err, "stat %s", path)
	}

	side, err := hgtSideFromSize(info.Size())
	if err != nil {
		f.Close()
		return nil, elevation.UnsupportedFormatf("%s: %v", path, err)
	}

	swLat, swLon, err := parseHGTName(filepath.Base(path))
	if err != nil {
		f.Close()
		return nil, elevation.UnsupportedFormatf("%s: %v", path, err)
	}

	pixelSize := 1.0 / float64(side-1)
	meta := Metadata{
		Width:      side,
		Height:     side,
		OriginX:    swLon,
		OriginY:    swLat + 1.0,
		PixelSizeX: pixelSize,
		PixelSizeY: pixelSize,
		NoData:     hgtNoData,
		HasNoData:  true,
	}

	return &hgtReader{f: f, side: side, meta: meta}, nil
}

// hgtSideFromSize infers the grid dimension (1201 or 3601) from a file's
// byte size: side*side samples of 2 bytes each.
func hgtSideFromSize(size int64) (int, error) {
	for _, side := range []int64{1201, 3601} {
		if size == side*side*2 {
			return int(side), nil
		}
	}
	return 0, fmt.Errorf("unexpected .hgt file size %d (expected 1201x1201 or 3601x3601 samples)", size)
}

// parseHGTName parses the standard SRTM filename convention, e.g.
// "N37W123.hgt" -> (37, -123), "S08E110.hgt" -> (-8, 110).
func parseHGTName(name string) (lat, lon float64, err error) {
	const usage = "expected NSxxEWyyy.hgt naming"
	if len(name) < 7 {
		return 0, 0, fmt.Errorf(usage)
	}

	var latSign float64
	switch name[0] {
	case 'N', 'n':
		latSign = 1
	case 'S', 's':
		latSign = -1
	default:
		return 0, 0, fmt.Errorf(usage)
	}
	latVal, err := strconv.Atoi(name[1:3])
	if err != nil {
		return 0, 0, fmt.Errorf(usage)
	}

	var lonSign float64
	switch name[3] {
	case 'E', 'e':
		lonSign = 1
	case 'W', 'w':
		lonSign = -1
	default:
		return 0, 0, fmt.Errorf(usage)
	}
	lonVal, err := strconv.Atoi(name[4:7])
	if err != nil {
		return 0, 0, fmt.Errorf(usage)
	}

	return latSign * float64(latVal), lonSign * float64(lonVal), nil
}

func (r *hgtReader) Metadata() Metadata { return r.meta }

func (r *hgtReader) ReadWindow(x, y, width, height int) (Window, error) {
	return fillWindow(x, y, width, height, r.side, r.side, func(col, row int) float64 {
		var buf [2]byte
		offset := int64(row*r.side+col) * 2
		if _, err := r.f.ReadAt(buf[:], offset); err != nil {
			return float64(hgtNoData)
		}
		return float64(int16(binary.BigEndian.Uint16(buf[:])))
	}), nil
}

func (r *hgtReader) Close() error {
	return r.f.Close()
}
