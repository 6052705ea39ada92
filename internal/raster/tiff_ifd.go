package raster

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TIFF tag IDs this decoder understands. Elevation GeoTIFFs are scalar,
// single-band rasters, so only the tags needed to locate and decompress
// pixel data plus the georeferencing tags are tracked.
const (
	tagImageWidth         = 256
	tagImageLength        = 257
	tagBitsPerSample      = 258
	tagCompression        = 259
	tagPhotometric        = 262
	tagStripOffsets       = 273
	tagSamplesPerPixel    = 277
	tagRowsPerStrip       = 278
	tagStripByteCounts    = 279
	tagPlanarConfig       = 284
	tagPredictor          = 317
	tagTileWidth          = 322
	tagTileLength         = 323
	tagTileOffsets        = 324
	tagTileByteCounts     = 325
	tagSampleFormat       = 339
	tagModelTiepointTag   = 33922
	tagModelPixelScaleTag = 33550
	tagGDALNoData         = 42113
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// sampleFormat values (tag 339).
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// ifd is a parsed TIFF Image File Directory, narrowed to what a
// single-band elevation raster needs.
type ifd struct {
	Width, Height   uint32
	TileWidth       uint32
	TileHeight      uint32
	RowsPerStrip    uint32
	BitsPerSample   uint16
	SampleFormat    uint16
	SamplesPerPixel uint16
	Compression     uint16
	Predictor       uint16
	PlanarConfig    uint16

	StripOffsets    []uint64
	StripByteCounts []uint64
	TileOffsets     []uint64
	TileByteCounts  []uint64

	ModelTiepoint   []float64
	ModelPixelScale []float64

	NoData    float64
	HasNoData bool
}

func (d *ifd) isTiled() bool {
	return d.TileWidth > 0 && d.TileHeight > 0
}

func (d *ifd) tilesAcross() int {
	return int((d.Width + d.TileWidth - 1) / d.TileWidth)
}

func (d *ifd) tilesDown() int {
	return int((d.Height + d.TileHeight - 1) / d.TileHeight)
}

// tiffEntry is a raw TIFF directory entry before its value is resolved.
type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte
}

// parseTIFF reads every IFD in a TIFF or BigTIFF stream. Elevation rasters
// this reader targets have exactly one IFD (one image), but the chain is
// still walked so a multi-IFD file degrades to "use the first image"
// rather than misparsing.
func parseTIFF(r io.ReadSeeker) ([]ifd, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, fmt.Errorf("reading TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("not a TIFF file (bad byte-order mark %x)", header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	isBigTIFF := magic == 43
	if magic != 42 && magic != 43 {
		return nil, nil, fmt.Errorf("invalid TIFF magic %d", magic)
	}

	var firstOffset uint64
	if isBigTIFF {
		var big [8]byte
		if _, err := io.ReadFull(r, big[:]); err != nil {
			return nil, nil, fmt.Errorf("reading BigTIFF header: %w", err)
		}
		firstOffset = bo.Uint64(big[:])
	} else {
		firstOffset = uint64(bo.Uint32(header[4:8]))
	}

	var ifds []ifd
	offset := firstOffset
	for offset != 0 {
		parsed, next, err := parseOneIFD(r, bo, offset, isBigTIFF)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing IFD at offset %d: %w", offset, err)
		}
		ifds = append(ifds, parsed)
		offset = next
	}
	return ifds, bo, nil
}

func parseOneIFD(r io.ReadSeeker, bo binary.ByteOrder, offset uint64, bigTIFF bool) (ifd, uint64, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return ifd{}, 0, err
	}

	var numEntries uint64
	if bigTIFF {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return ifd{}, 0, err
		}
		numEntries = bo.Uint64(buf[:])
	} else {
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return ifd{}, 0, err
		}
		numEntries = uint64(bo.Uint16(buf[:]))
	}

	entrySize := 12
	if bigTIFF {
		entrySize = 20
	}

	entries := make([]tiffEntry, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		buf := make([]byte, entrySize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return ifd{}, 0, err
		}
		entries[i] = parseTiffEntry(buf, bo, bigTIFF)
	}

	var nextOffset uint64
	if bigTIFF {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return ifd{}, 0, err
		}
		nextOffset = bo.Uint64(buf[:])
	} else {
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return ifd{}, 0, err
		}
		nextOffset = uint64(bo.Uint32(buf[:]))
	}

	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i], bigTIFF); err != nil {
			return ifd{}, 0, fmt.Errorf("resolving tag %d: %w", entries[i].Tag, err)
		}
	}

	return buildIFD(entries, bo), nextOffset, nil
}

func parseTiffEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) tiffEntry {
	tag := bo.Uint16(buf[0:2])
	dt := bo.Uint16(buf[2:4])

	var count uint64
	var value []byte
	if bigTIFF {
		count = bo.Uint64(buf[4:12])
		value = append([]byte(nil), buf[12:20]...)
	} else {
		count = uint64(bo.Uint32(buf[4:8]))
		value = append([]byte(nil), buf[8:12]...)
	}
	return tiffEntry{Tag: tag, DataType: dt, Count: count, Value: value}
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat, dtIFD8:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8:
		return 8
	default:
		return 1
	}
}

func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *tiffEntry, bigTIFF bool) error {
	totalSize := int(e.Count) * dataTypeSize(e.DataType)
	inlineSize := 4
	if bigTIFF {
		inlineSize = 8
	}
	if totalSize <= inlineSize {
		return nil
	}

	var dataOffset uint64
	if bigTIFF {
		dataOffset = bo.Uint64(e.Value)
	} else {
		dataOffset = uint64(bo.Uint32(e.Value))
	}

	if _, err := r.Seek(int64(dataOffset), io.SeekStart); err != nil {
		return err
	}
	data := make([]byte, totalSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.Value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) ifd {
	d := ifd{SamplesPerPixel: 1, PlanarConfig: 1, Predictor: 1, SampleFormat: sampleFormatUint}

	for _, e := range entries {
		switch e.Tag {
		case tagImageWidth:
			d.Width = getUint32(e, bo)
		case tagImageLength:
			d.Height = getUint32(e, bo)
		case tagTileWidth:
			d.TileWidth = getUint32(e, bo)
		case tagTileLength:
			d.TileHeight = getUint32(e, bo)
		case tagRowsPerStrip:
			d.RowsPerStrip = getUint32(e, bo)
		case tagBitsPerSample:
			d.BitsPerSample = getUint16Val(e, bo)
		case tagSampleFormat:
			d.SampleFormat = getUint16Val(e, bo)
		case tagSamplesPerPixel:
			d.SamplesPerPixel = getUint16Val(e, bo)
		case tagCompression:
			d.Compression = getUint16Val(e, bo)
		case tagPredictor:
			d.Predictor = getUint16Val(e, bo)
		case tagPlanarConfig:
			d.PlanarConfig = getUint16Val(e, bo)
		case tagStripOffsets:
			d.StripOffsets = getUint64Slice(e, bo)
		case tagStripByteCounts:
			d.StripByteCounts = getUint64Slice(e, bo)
		case tagTileOffsets:
			d.TileOffsets = getUint64Slice(e, bo)
		case tagTileByteCounts:
			d.TileByteCounts = getUint64Slice(e, bo)
		case tagModelTiepointTag:
			d.ModelTiepoint = getFloat64Slice(e, bo)
		case tagModelPixelScaleTag:
			d.ModelPixelScale = getFloat64Slice(e, bo)
		case tagGDALNoData:
			if v, err := parseNoDataASCII(e.Value); err == nil {
				d.NoData = v
				d.HasNoData = true
			}
		}
	}

	return d
}

func parseNoDataASCII(raw []byte) (float64, error) {
	s := string(raw)
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}

func getUint16Val(e tiffEntry, bo binary.ByteOrder) uint16 {
	switch e.DataType {
	case dtShort:
		return bo.Uint16(e.Value)
	case dtLong:
		return uint16(bo.Uint32(e.Value))
	default:
		if len(e.Value) == 0 {
			return 0
		}
		return uint16(e.Value[0])
	}
}

func getUint32(e tiffEntry, bo binary.ByteOrder) uint32 {
	switch e.DataType {
	case dtShort:
		return uint32(bo.Uint16(e.Value))
	case dtLong:
		return bo.Uint32(e.Value)
	case dtLong8:
		return uint32(bo.Uint64(e.Value))
	default:
		if len(e.Value) == 0 {
			return 0
		}
		return uint32(e.Value[0])
	}
}

func getUint64Slice(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.Count)
	result := make([]uint64, n)
	switch e.DataType {
	case dtLong:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint32(e.Value[i*4 : i*4+4]))
		}
	case dtLong8:
		for i := 0; i < n; i++ {
			result[i] = bo.Uint64(e.Value[i*8 : i*8+8])
		}
	case dtShort:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint16(e.Value[i*2 : i*2+2]))
		}
	}
	return result
}

func getFloat64Slice(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.Count)
	result := make([]float64, n)
	size := dataTypeSize(e.DataType)
	for i := 0; i < n; i++ {
		off := i * size
		switch e.DataType {
		case dtDouble:
			result[i] = math.Float64frombits(bo.Uint64(e.Value[off : off+8]))
		case dtFloat:
			result[i] = float64(math.Float32frombits(bo.Uint32(e.Value[off : off+4])))
		}
	}
	return result
}
