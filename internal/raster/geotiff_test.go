package raster

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestUndoHorizontalDifferencingSingleBandInt16(t *testing.T) {
	// Two rows of four int16 samples, each row delta-encoded against the
	// previous sample: row 0 true values [10,12,11,15], row 1 [100,90,95,95].
	bo := binary.LittleEndian
	encode := func(v int16) []byte {
		b := make([]byte, 2)
		bo.PutUint16(b, uint16(v))
		return b
	}
	data := append([]byte{}, encode(10)...)
	data = append(data, encode(2)...)  // 12-10
	data = append(data, encode(-1)...) // 11-12
	data = append(data, encode(4)...)  // 15-11
	data = append(data, encode(100)...)
	data = append(data, encode(-10)...) // 90-100
	data = append(data, encode(5)...)   // 95-90
	data = append(data, encode(0)...)   // 95-95

	undoHorizontalDifferencing(data, 4, 1, 2)

	want := []int16{10, 12, 11, 15, 100, 90, 95, 95}
	for i, w := range want {
		got := int16(bo.Uint16(data[i*2 : i*2+2]))
		if got != w {
			t.Fatalf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestUndoHorizontalDifferencingMultiBand(t *testing.T) {
	// Two RGB-like pixels per row (samplesPerPixel=3, 1 byte each): a
	// single-byte stride per band must be undone independently per band,
	// not per raw byte.
	data := []byte{
		10, 20, 30, // pixel 0
		5, 5, 5, // deltas for pixel 1
	}
	undoHorizontalDifferencing(data, 2, 3, 1)
	want := []byte{10, 20, 30, 15, 25, 35}
	for i, w := range want {
		if data[i] != w {
			t.Fatalf("byte %d = %d, want %d", i, data[i], w)
		}
	}
}

func TestBytesPerSample(t *testing.T) {
	cases := []struct {
		bits uint16
		want int
	}{
		{0, 2},
		{8, 1},
		{16, 2},
		{32, 4},
		{64, 8},
	}
	for _, c := range cases {
		d := &ifd{BitsPerSample: c.bits}
		if got := bytesPerSample(d); got != c.want {
			t.Fatalf("bytesPerSample(bits=%d) = %d, want %d", c.bits, got, c.want)
		}
	}
}

func TestDecodeOneSampleUnsignedInt(t *testing.T) {
	bo := binary.LittleEndian
	d := &ifd{SampleFormat: sampleFormatUint}

	b1 := []byte{200}
	if got := decodeOneSample(d, bo, b1); got != 200 {
		t.Fatalf("uint8 sample = %v, want 200", got)
	}

	b2 := make([]byte, 2)
	bo.PutUint16(b2, 40000)
	if got := decodeOneSample(d, bo, b2); got != 40000 {
		t.Fatalf("uint16 sample = %v, want 40000", got)
	}
}

func TestDecodeOneSampleSignedInt16(t *testing.T) {
	bo := binary.LittleEndian
	d := &ifd{SampleFormat: sampleFormatInt}

	b := make([]byte, 2)
	bo.PutUint16(b, uint16(int16(-32768)))
	if got := decodeOneSample(d, bo, b); got != -32768 {
		t.Fatalf("int16 sample = %v, want -32768", got)
	}
}

func TestDecodeOneSampleFloat32(t *testing.T) {
	bo := binary.LittleEndian
	d := &ifd{SampleFormat: sampleFormatFloat}

	b := make([]byte, 4)
	bo.PutUint32(b, math.Float32bits(123.5))
	if got := decodeOneSample(d, bo, b); got != 123.5 {
		t.Fatalf("float32 sample = %v, want 123.5", got)
	}
}

func TestDecodeOneSampleFloat64(t *testing.T) {
	bo := binary.LittleEndian
	d := &ifd{SampleFormat: sampleFormatFloat}

	b := make([]byte, 8)
	bo.PutUint64(b, math.Float64bits(-9999.25))
	if got := decodeOneSample(d, bo, b); got != -9999.25 {
		t.Fatalf("float64 sample = %v, want -9999.25", got)
	}
}

func TestDecodeSamplesReadsFirstBandOnly(t *testing.T) {
	bo := binary.LittleEndian
	d := &ifd{SamplesPerPixel: 2, BitsPerSample: 16, SampleFormat: sampleFormatUint}

	// 2x1 image, 2 samples per pixel: pixel0=(10,999), pixel1=(20,999).
	data := make([]byte, 2*2*2)
	bo.PutUint16(data[0:2], 10)
	bo.PutUint16(data[2:4], 999)
	bo.PutUint16(data[4:6], 20)
	bo.PutUint16(data[6:8], 999)

	out, err := decodeSamples(d, bo, data, 2, 1)
	if err != nil {
		t.Fatalf("decodeSamples returned error: %v", err)
	}
	if len(out) != 2 || out[0] != 10 || out[1] != 20 {
		t.Fatalf("decodeSamples = %v, want [10 20]", out)
	}
}

func TestDecodeSamplesRejectsShortBuffer(t *testing.T) {
	bo := binary.LittleEndian
	d := &ifd{SamplesPerPixel: 1, BitsPerSample: 16, SampleFormat: sampleFormatUint}

	if _, err := decodeSamples(d, bo, make([]byte, 2), 2, 2); err == nil {
		t.Fatalf("expected error for a buffer too short for the requested window")
	}
}

func TestDecompressPassthroughForUncompressed(t *testing.T) {
	for _, compression := range []uint16{0, 1} {
		out, err := decompress(compression, []byte{1, 2, 3})
		if err != nil {
			t.Fatalf("decompress(%d) returned error: %v", compression, err)
		}
		if len(out) != 3 || out[0] != 1 || out[2] != 3 {
			t.Fatalf("decompress(%d) = %v, want [1 2 3]", compression, out)
		}
	}
}

func TestDecompressRejectsUnsupportedCompression(t *testing.T) {
	if _, err := decompress(7, []byte{1}); err == nil {
		t.Fatalf("expected error for JPEG compression (7)")
	}
}
