package tileindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingleLocate(t *testing.T) {
	idx := NewSingle("/data/world.tif")
	path, ok := idx.Locate(12.3, 45.6)
	require.True(t, ok)
	require.Equal(t, "/data/world.tif", path)
}

func TestGridLocateUsesFloorOfCell(t *testing.T) {
	var seen []string
	exists := func(path string) bool {
		seen = append(seen, path)
		return path == "/data/N34W118.hgt"
	}
	nameFunc := func(cellLat, cellLon int) string {
		return SRTMHGTName("/data", cellLat, cellLon)
	}
	idx := NewGrid(1, nameFunc, exists)

	path, ok := idx.Locate(34.5, -117.5)
	require.True(t, ok)
	require.Equal(t, "/data/N34W118.hgt", path)

	_, ok = idx.Locate(0.1, 0.1)
	require.False(t, ok, "N00E000.hgt is absent, so (0.1,0.1) should report no coverage")
}

func TestGridCachesNegativeLookups(t *testing.T) {
	calls := 0
	exists := func(path string) bool {
		calls++
		return false
	}
	idx := NewGrid(1, func(lat, lon int) string { return "missing.hgt" }, exists)

	idx.Locate(1, 1)
	idx.Locate(1, 1)
	idx.Locate(1, 1)

	require.Equal(t, 1, calls, "negative lookups should be cached")
}

func TestGridRejectsNaN(t *testing.T) {
	idx := NewGrid(1, func(lat, lon int) string { return "x" }, func(string) bool { return true })
	nan := 0.0
	nan = nan / nan
	_, ok := idx.Locate(nan, 1)
	require.False(t, ok, "NaN latitude should be rejected")
}
