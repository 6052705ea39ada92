package tileindex

import "testing"

func sampleEntries() []ManifestEntry {
	return []ManifestEntry{
		{Path: "a.tif", MinLat: 40, MinLon: -120, MaxLat: 41, MaxLon: -119},
		{Path: "b.tif", MinLat: 40, MinLon: -119, MaxLat: 41, MaxLon: -118},
		{Path: "c.tif", MinLat: 10, MinLon: 30, MaxLat: 12, MaxLon: 33},
	}
}

func TestManifestLocateFindsContainingRaster(t *testing.T) {
	m := NewManifest(sampleEntries())

	path, ok := m.Locate(40.5, -119.5)
	if !ok || path != "a.tif" {
		t.Fatalf("Locate(40.5,-119.5) = (%q, %v), want (a.tif, true)", path, ok)
	}

	path, ok = m.Locate(11, 31)
	if !ok || path != "c.tif" {
		t.Fatalf("Locate(11,31) = (%q, %v), want (c.tif, true)", path, ok)
	}
}

func TestManifestLocateBoundaryTieBreak(t *testing.T) {
	m := NewManifest(sampleEntries())

	// Exactly on the shared edge between a.tif and b.tif: MaxLon of a.tif
	// is exclusive, MinLon of b.tif is inclusive, so b.tif wins.
	path, ok := m.Locate(40.5, -119)
	if !ok || path != "b.tif" {
		t.Fatalf("Locate at shared edge = (%q, %v), want (b.tif, true)", path, ok)
	}
}

func TestManifestLocateOutsideAllRasters(t *testing.T) {
	m := NewManifest(sampleEntries())
	if _, ok := m.Locate(0, 0); ok {
		t.Fatalf("expected no coverage at (0,0)")
	}
}

func TestManifestLocateEmpty(t *testing.T) {
	m := NewManifest(nil)
	if _, ok := m.Locate(1, 1); ok {
		t.Fatalf("expected no coverage from an empty manifest")
	}
}
