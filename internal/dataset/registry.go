package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jcom-dev/elevation-service/internal/elevation"
	"github.com/jcom-dev/elevation-service/internal/interp"
	"github.com/jcom-dev/elevation-service/internal/raster"
	"github.com/jcom-dev/elevation-service/internal/tileindex"
)

// Registry holds every configured dataset's ready-to-query Engine,
// published atomically so a reload never exposes a half-built set of
// datasets to concurrent requests.
type Registry struct {
	datasets atomic.Pointer[map[string]*Engine]
}

// NewRegistry loads cfg, probing one raster per single-file or manifest
// dataset to validate its format before publishing (grid datasets are not
// probed), and returns a ready Registry. Any failure is a
// ConfigError or UnsupportedFormat error — both are startup-fatal.
func NewRegistry(cfg *Config, handleCacheSize int) (*Registry, error) {
	built := make(map[string]*Engine, len(cfg.Datasets))

	for _, dc := range cfg.Datasets {
		engine, err := buildEngine(dc, handleCacheSize)
		if err != nil {
			return nil, err
		}
		built[dc.Name] = engine
	}

	r := &Registry{}
	r.datasets.Store(&built)
	return r, nil
}

// Get returns the named dataset's query engine, or a DatasetNotFound error.
func (r *Registry) Get(name string) (*Engine, error) {
	datasets := *r.datasets.Load()
	e, ok := datasets[name]
	if !ok {
		return nil, elevation.DatasetNotFoundf("no such dataset: %q", name)
	}
	return e, nil
}

// Names returns every currently published dataset name, for health checks.
func (r *Registry) Names() []string {
	datasets := *r.datasets.Load()
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	return names
}

func buildEngine(dc DatasetConfig, handleCacheSize int) (*Engine, error) {
	kernel, err := interp.ParseKernel(dc.Kernel)
	if err != nil {
		return nil, elevation.ConfigErrorf("dataset %q: %v", dc.Name, err)
	}

	index, probePath, err := buildIndex(dc)
	if err != nil {
		return nil, err
	}

	cache := raster.NewHandleCache(handleCacheSize)

	// Probe one raster now so a broken dataset fails at load time rather
	// than on the first request that happens to touch it.
	if probePath != "" {
		if _, err := raster.Open(probePath); err != nil {
			return nil, elevation.UnsupportedFormatf("dataset %q: probing %s: %v", dc.Name, probePath, err)
		}
	}

	return &Engine{
		name:         dc.Name,
		index:        index,
		cache:        cache,
		kernel:       kernel,
		strictNoData: dc.StrictNoData(),
		precision:    dc.OutputPrecision,
		open:         raster.Open,
	}, nil
}

func buildIndex(dc DatasetConfig) (tileindex.Index, string, error) {
	switch dc.Tiling {
	case "single":
		return tileindex.NewSingle(dc.Path), dc.Path, nil

	case "grid":
		nameFunc, err := gridNameFunc(dc.PathTemplate)
		if err != nil {
			return nil, "", elevation.ConfigErrorf("dataset %q: %v", dc.Name, err)
		}
		exists := func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
		// No cell is guaranteed to exist (a grid dataset may not cover
		// (0,0)), so there is no representative path to probe at load
		// time; the first real query against each cell validates itself.
		return tileindex.NewGrid(dc.GridSizeDegrees, nameFunc, exists), "", nil

	case "manifest":
		idx, err := tileindex.LoadManifest(dc.ManifestPath)
		if err != nil {
			return nil, "", elevation.ConfigErrorf("dataset %q: %v", dc.Name, err)
		}
		var probe string
		if entries := idx.Entries(); len(entries) > 0 {
			probe = entries[0].Path
		}
		return idx, probe, nil

	default:
		return nil, "", elevation.ConfigErrorf("dataset %q: unknown tiling scheme %q", dc.Name, dc.Tiling)
	}
}

// gridNameFunc turns a path_template like
// "data/srtm90m/{NS}{lat:02d}{EW}{lng:03d}.hgt" into a function from a
// cell's integer southwest corner to a concrete path.
func gridNameFunc(template string) (func(cellLat, cellLon int) string, error) {
	if !strings.Contains(template, "{NS}") || !strings.Contains(template, "{EW}") {
		return nil, fmt.Errorf("path_template must reference {NS} and {EW}")
	}

	render := func(cellLat, cellLon int) string {
		ns, latVal := "N", cellLat
		if cellLat < 0 {
			ns, latVal = "S", -cellLat
		}
		ew, lonVal := "E", cellLon
		if cellLon < 0 {
			ew, lonVal = "W", -cellLon
		}
		s := template
		s = strings.ReplaceAll(s, "{NS}", ns)
		s = strings.ReplaceAll(s, "{EW}", ew)
		s = replaceField(s, "lat", latVal)
		s = replaceField(s, "lng", lonVal)
		return filepath.Clean(s)
	}

	return render, nil
}

// replaceField replaces every occurrence of "{name}" or "{name:0Nd}" with
// value, zero-padded per the format spec when one is given.
func replaceField(s, name string, value int) string {
	plain := "{" + name + "}"
	s = strings.ReplaceAll(s, plain, strconv.Itoa(value))

	prefix := "{" + name + ":0"
	for {
		start := strings.Index(s, prefix)
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		spec := s[start+len(prefix) : start+end] // e.g. "2d" or "3d"
		width, err := strconv.Atoi(strings.TrimSuffix(spec, "d"))
		if err != nil {
			break
		}
		formatted := fmt.Sprintf("%0*d", width, value)
		s = s[:start] + formatted + s[start+end+1:]
	}
	return s
}

// Close closes every dataset's handle cache.
func (r *Registry) Close() error {
	datasets := *r.datasets.Load()
	var firstErr error
	for _, e := range datasets {
		if err := e.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
