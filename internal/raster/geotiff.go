package raster

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/jcom-dev/elevation-service/internal/elevation"
)

// stripLayout records how image rows are grouped into strips so a strip
// file can be addressed the same way a tiled file is: as a grid of virtual
// tiles, each spanning one or more whole strips.
type stripLayout struct {
	offsets       []uint64
	byteCounts    []uint64
	rowsPerStrip  uint32
	stripsPerTile int
	tileHeight    uint32
}

// geotiffReader decodes a single-band GeoTIFF (tiled or strip-organized)
// entirely from a read-only memory mapping, without GDAL or libtiff.
type geotiffReader struct {
	file *os.File
	data []byte
	bo   binary.ByteOrder
	d    *ifd
	strip *stripLayout
	meta Metadata

	// lastTile caches the most recently decoded tile so that repeated
	// small windows against the same tile (typical of a batch of nearby
	// points) don't re-decompress on every call. tileMu guards it, since
	// the handle cache hands the same reader to concurrent requests.
	tileMu        sync.Mutex
	lastTileIndex int
	lastTileValid bool
	lastTile      []float64
	lastTileW     int
	lastTileH     int
}

// OpenGeoTIFF opens and validates a GeoTIFF file, memory-mapping it
// read-only. Only the first image (IFD) is used; elevation rasters are
// single-image files.
func OpenGeoTIFF(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, elevation.RasterIOf(err, "open %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, elevation.RasterIOf(err, "stat %s", path)
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return nil, elevation.UnsupportedFormatf("%s: empty file", path)
	}

	data, err := mmapFile(f.Fd(), int(size))
	if err != nil {
		f.Close()
		return nil, elevation.RasterIOf(err, "mmap %s", path)
	}

	ifds, bo, err := parseTIFF(bytes.NewReader(data))
	if err != nil {
		munmapFile(data)
		f.Close()
		return nil, elevation.UnsupportedFormatf("%s: %v", path, err)
	}
	if len(ifds) == 0 {
		munmapFile(data)
		f.Close()
		return nil, elevation.UnsupportedFormatf("%s: no image directories", path)
	}
	d := &ifds[0]

	switch d.Compression {
	case 0, 1, 5, 8, 32946:
		// none, LZW, Deflate/zlib — supported.
	default:
		munmapFile(data)
		f.Close()
		return nil, elevation.UnsupportedFormatf("%s: unsupported TIFF compression %d (JPEG-compressed elevation data is not supported: lossy compression is unsuitable for scalar samples)", path, d.Compression)
	}

	r := &geotiffReader{file: f, data: data, bo: bo, d: d}

	if !d.isTiled() {
		if d.RowsPerStrip == 0 || len(d.StripOffsets) == 0 {
			munmapFile(data)
			f.Close()
			return nil, elevation.UnsupportedFormatf("%s: neither tiled nor strip layout present", path)
		}
		r.strip = promoteStripsToTiles(d)
	}

	if d.ModelPixelScale == nil || len(d.ModelPixelScale) < 2 || d.ModelTiepoint == nil || len(d.ModelTiepoint) < 6 {
		munmapFile(data)
		f.Close()
		return nil, elevation.UnsupportedFormatf("%s: missing georeferencing tags (ModelPixelScale/ModelTiepoint)", path)
	}

	pixelSizeX := d.ModelPixelScale[0]
	pixelSizeY := d.ModelPixelScale[1]
	originX := d.ModelTiepoint[3] - d.ModelTiepoint[0]*pixelSizeX
	originY := d.ModelTiepoint[4] + d.ModelTiepoint[1]*pixelSizeY

	r.meta = Metadata{
		Width:      int(d.Width),
		Height:     int(d.Height),
		OriginX:    originX,
		OriginY:    originY,
		PixelSizeX: pixelSizeX,
		PixelSizeY: pixelSizeY,
		NoData:     d.NoData,
		HasNoData:  d.HasNoData,
	}

	return r, nil
}

// promoteStripsToTiles groups consecutive strips into virtual tiles at
// least 256 rows tall, so a windowed read never decodes more of the image
// than a tiled file would for an equivalent-size tile.
func promoteStripsToTiles(d *ifd) *stripLayout {
	const minTileRows = 256
	stripsPerTile := 1
	if d.RowsPerStrip > 0 && d.RowsPerStrip < minTileRows {
		stripsPerTile = int((minTileRows + d.RowsPerStrip - 1) / d.RowsPerStrip)
	}
	tileHeight := uint32(stripsPerTile) * d.RowsPerStrip

	d.TileWidth = d.Width
	d.TileHeight = tileHeight

	return &stripLayout{
		offsets:       d.StripOffsets,
		byteCounts:    d.StripByteCounts,
		rowsPerStrip:  d.RowsPerStrip,
		stripsPerTile: stripsPerTile,
		tileHeight:    tileHeight,
	}
}

func (r *geotiffReader) Metadata() Metadata { return r.meta }

func (r *geotiffReader) Close() error {
	if err := munmapFile(r.data); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ReadWindow decodes every tile overlapping [x,y,width,height] and copies
// the overlap into the returned Window, leaving out-of-bounds cells as NaN.
func (r *geotiffReader) ReadWindow(x, y, width, height int) (Window, error) {
	tw := int(r.d.TileWidth)
	th := int(r.d.TileHeight)

	startCol := max(0, x)
	endCol := min(r.meta.Width, x+width)
	startRow := max(0, y)
	endRow := min(r.meta.Height, y+height)

	values := make([]float64, width*height)
	for i := range values {
		values[i] = math.NaN()
	}

	if startCol >= endCol || startRow >= endRow {
		return Window{X: x, Y: y, Width: width, Height: height, Values: values}, nil
	}

	firstTileCol := startCol / tw
	lastTileCol := (endCol - 1) / tw
	firstTileRow := startRow / th
	lastTileRow := (endRow - 1) / th

	for tileRow := firstTileRow; tileRow <= lastTileRow; tileRow++ {
		for tileCol := firstTileCol; tileCol <= lastTileCol; tileCol++ {
			tile, tileW, tileH, err := r.decodedTile(tileCol, tileRow)
			if err != nil {
				return Window{}, err
			}

			tileOriginX := tileCol * tw
			tileOriginY := tileRow * th

			overlapStartCol := max(startCol, tileOriginX)
			overlapEndCol := min(endCol, tileOriginX+tileW)
			overlapStartRow := max(startRow, tileOriginY)
			overlapEndRow := min(endRow, tileOriginY+tileH)

			for row := overlapStartRow; row < overlapEndRow; row++ {
				localRow := row - y
				tileLocalRow := row - tileOriginY
				for col := overlapStartCol; col < overlapEndCol; col++ {
					localCol := col - x
					tileLocalCol := col - tileOriginX
					var v float64
					if tile != nil {
						v = tile[tileLocalRow*tileW+tileLocalCol]
					} else if r.meta.HasNoData {
						v = r.meta.NoData
					} else {
						v = math.NaN()
					}
					values[localRow*width+localCol] = v
				}
			}
		}
	}

	return Window{X: x, Y: y, Width: width, Height: height, Values: values}, nil
}

// decodedTile returns the decoded float64 samples for tile (tileCol,
// tileRow), using the single-tile cache when possible. A nil slice with no
// error means the tile is empty (all NODATA) on disk.
func (r *geotiffReader) decodedTile(tileCol, tileRow int) ([]float64, int, int, error) {
	tilesAcross := r.d.tilesAcross()
	index := tileRow*tilesAcross + tileCol

	r.tileMu.Lock()
	defer r.tileMu.Unlock()

	if r.lastTileValid && r.lastTileIndex == index {
		return r.lastTile, r.lastTileW, r.lastTileH, nil
	}

	raw, tileW, tileH, err := r.readTileRaw(tileCol, tileRow)
	if err != nil {
		return nil, 0, 0, err
	}

	var decoded []float64
	if raw != nil {
		decoded, err = decodeSamples(r.d, r.bo, raw, tileW, tileH)
		if err != nil {
			return nil, 0, 0, elevation.RasterIOf(err, "decode tile (%d,%d)", tileCol, tileRow)
		}
	}

	r.lastTileIndex = index
	r.lastTileValid = true
	r.lastTile = decoded
	r.lastTileW = tileW
	r.lastTileH = tileH

	return decoded, tileW, tileH, nil
}

// readTileRaw returns the decompressed, predictor-reversed raw bytes for a
// tile (or virtual strip-tile), plus its pixel dimensions. A nil byte slice
// with no error means an empty (zero-length) tile.
func (r *geotiffReader) readTileRaw(tileCol, tileRow int) ([]byte, int, int, error) {
	tw := int(r.d.TileWidth)
	th := int(r.d.TileHeight)
	tileW := min(tw, r.meta.Width-tileCol*tw)
	tileH := min(th, r.meta.Height-tileRow*th)

	if r.strip != nil {
		data, err := r.readStripTile(tileRow)
		if err != nil {
			return nil, 0, 0, err
		}
		if data != nil && r.d.Predictor == 2 {
			undoHorizontalDifferencing(data, tileW, int(r.d.SamplesPerPixel), bytesPerSample(r.d))
		}
		return data, tileW, tileH, nil
	}

	tilesAcross := r.d.tilesAcross()
	idx := tileRow*tilesAcross + tileCol
	if idx >= len(r.d.TileOffsets) || idx >= len(r.d.TileByteCounts) {
		return nil, tileW, tileH, elevation.RasterIOf(nil, "tile index %d out of range", idx)
	}

	offset := r.d.TileOffsets[idx]
	size := r.d.TileByteCounts[idx]
	if size == 0 {
		return nil, tileW, tileH, nil
	}
	end := offset + size
	if end > uint64(len(r.data)) {
		return nil, 0, 0, elevation.RasterIOf(nil, "tile data [%d:%d] exceeds file size %d", offset, end, len(r.data))
	}

	decompressed, err := decompress(r.d.Compression, r.data[offset:end])
	if err != nil {
		return nil, 0, 0, err
	}
	if r.d.Predictor == 2 {
		undoHorizontalDifferencing(decompressed, tileW, int(r.d.SamplesPerPixel), bytesPerSample(r.d))
	}
	return decompressed, tileW, tileH, nil
}

// readStripTile concatenates the strips composing virtual tile row
// tileRow, decompressing each before concatenation.
func (r *geotiffReader) readStripTile(tileRow int) ([]byte, error) {
	sl := r.strip
	startStrip := tileRow * sl.stripsPerTile
	endStrip := min(startStrip+sl.stripsPerTile, len(sl.offsets))

	var combined []byte
	for s := startStrip; s < endStrip; s++ {
		size := sl.byteCounts[s]
		if size == 0 {
			continue
		}
		offset := sl.offsets[s]
		end := offset + size
		if end > uint64(len(r.data)) {
			return nil, elevation.RasterIOf(nil, "strip %d data [%d:%d] exceeds file size %d", s, offset, end, len(r.data))
		}
		chunk, err := decompress(r.d.Compression, r.data[offset:end])
		if err != nil {
			return nil, err
		}
		combined = append(combined, chunk...)
	}
	if len(combined) == 0 {
		return nil, nil
	}
	return combined, nil
}

func decompress(compression uint16, data []byte) ([]byte, error) {
	switch compression {
	case 0, 1:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case 8, 32946:
		return decompressDeflate(data)
	case 5:
		return decompressTIFFLZW(data)
	default:
		return nil, elevation.UnsupportedFormatf("unsupported TIFF compression %d", compression)
	}
}

func decompressDeflate(data []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		defer zr.Close()
		if out, err := io.ReadAll(zr); err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

// undoHorizontalDifferencing reverses TIFF predictor=2: each sample (after
// the first in a row) is stored as the delta from the previous sample.
func undoHorizontalDifferencing(data []byte, width, samplesPerPixel, bps int) {
	stride := samplesPerPixel * bps
	rowBytes := width * stride
	for off := 0; off+rowBytes <= len(data); off += rowBytes {
		row := data[off : off+rowBytes]
		for x := stride; x < rowBytes; x++ {
			row[x] += row[x-stride]
		}
	}
}

func bytesPerSample(d *ifd) int {
	if d.BitsPerSample == 0 {
		return 2
	}
	return int(d.BitsPerSample) / 8
}

// decodeSamples interprets raw decompressed bytes as this IFD's sample
// format (unsigned/signed 8/16/32-bit integer or 32/64-bit IEEE float;
// any other width decodes as NaN) and
// returns them as float64, taking only the first band of multi-band data.
func decodeSamples(d *ifd, bo binary.ByteOrder, data []byte, width, height int) ([]float64, error) {
	spp := int(d.SamplesPerPixel)
	if spp < 1 {
		spp = 1
	}
	bps := bytesPerSample(d)
	stride := spp * bps
	count := width * height

	if len(data) < count*stride {
		return nil, fmt.Errorf("tile data too short: got %d bytes, need %d", len(data), count*stride)
	}

	out := make([]float64, count)
	for i := 0; i < count; i++ {
		off := i * stride
		out[i] = decodeOneSample(d, bo, data[off:off+bps])
	}
	return out, nil
}

func decodeOneSample(d *ifd, bo binary.ByteOrder, b []byte) float64 {
	switch d.SampleFormat {
	case sampleFormatFloat:
		switch len(b) {
		case 4:
			return float64(math.Float32frombits(bo.Uint32(b)))
		case 8:
			return math.Float64frombits(bo.Uint64(b))
		}
	case sampleFormatInt:
		switch len(b) {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(bo.Uint16(b)))
		case 4:
			return float64(int32(bo.Uint32(b)))
		}
	default: // unsigned integer
		switch len(b) {
		case 1:
			return float64(b[0])
		case 2:
			return float64(bo.Uint16(b))
		case 4:
			return float64(bo.Uint32(b))
		}
	}
	return math.NaN()
}
