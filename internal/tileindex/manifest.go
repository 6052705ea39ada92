package tileindex

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ManifestEntry describes one raster's coverage, as recorded by the
// index-builder CLI.
type ManifestEntry struct {
	Path                         string  `json:"path"`
	MinLat                       float64 `json:"min_lat"`
	MinLon                       float64 `json:"min_lon"`
	MaxLat                       float64 `json:"max_lat"`
	MaxLon                       float64 `json:"max_lon"`
}

// manifestDoc is the on-disk shape of a manifest.json file.
type manifestDoc struct {
	Rasters []ManifestEntry `json:"rasters"`
}

// Manifest is the tiling scheme for a dataset whose rasters are enumerated
// explicitly (rather than following a uniform grid). Lookups use a
// lon-sorted array with binary search to prune candidates, rather than an
// R-tree, since a dataset's rasters never overlap: the sorted-array
// approach spec.md itself allows for this case.
type Manifest struct {
	byMinLon   []ManifestEntry // sorted ascending by MinLon
	maxWidth   float64         // widest raster's longitude span, bounds the backward scan
}

// LoadManifest reads a manifest.json file produced by the index-builder
// CLI and returns a Manifest index over its entries.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return NewManifest(doc.Rasters), nil
}

// NewManifest builds a Manifest index directly from a list of entries.
func NewManifest(entries []ManifestEntry) *Manifest {
	sorted := append([]ManifestEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinLon < sorted[j].MinLon })

	var maxWidth float64
	for _, e := range sorted {
		if w := e.MaxLon - e.MinLon; w > maxWidth {
			maxWidth = w
		}
	}

	return &Manifest{byMinLon: sorted, maxWidth: maxWidth}
}

func (m *Manifest) Locate(lat, lon float64) (string, bool) {
	if len(m.byMinLon) == 0 {
		return "", false
	}

	// Rightmost index whose MinLon <= lon.
	idx := sort.Search(len(m.byMinLon), func(i int) bool {
		return m.byMinLon[i].MinLon > lon
	})

	for i := idx - 1; i >= 0; i-- {
		e := m.byMinLon[i]
		if lon-e.MinLon > m.maxWidth {
			// No earlier entry can possibly reach lon: its MinLon is
			// further back than the widest raster in the set spans.
			break
		}
		if lon >= e.MinLon && lon < e.MaxLon && lat > e.MinLat && lat <= e.MaxLat {
			return e.Path, true
		}
	}
	return "", false
}

// Entries returns the manifest's rasters, for diagnostics and tests.
func (m *Manifest) Entries() []ManifestEntry {
	return m.byMinLon
}
