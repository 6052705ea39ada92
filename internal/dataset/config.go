package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jcom-dev/elevation-service/internal/elevation"
	"github.com/jcom-dev/elevation-service/internal/interp"
)

// Config is the on-disk shape of the dataset manifest YAML file: one entry
// per dataset the service exposes.
type Config struct {
	Datasets []DatasetConfig `yaml:"datasets"`
}

// DatasetConfig describes one dataset's tiling scheme and query policy.
type DatasetConfig struct {
	Name             string  `yaml:"name"`
	Tiling           string  `yaml:"tiling"` // "single" | "grid" | "manifest"
	Path             string  `yaml:"path"`   // tiling: single
	PathTemplate     string  `yaml:"path_template"`
	GridSizeDegrees  float64 `yaml:"grid_size_degrees"` // tiling: grid
	ManifestPath     string  `yaml:"manifest_path"`     // tiling: manifest
	Kernel           string  `yaml:"kernel"`
	NoDataPolicy     string  `yaml:"nodata_policy"` // "null" (default) | "error"
	OutputPrecision  *int    `yaml:"output_precision"`
}

// LoadConfig reads and validates a dataset configuration file. Every
// problem found is a ConfigError: the process should refuse to start
// rather than serve a partially-working registry.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, elevation.ConfigErrorf("reading dataset config %s: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, elevation.ConfigErrorf("parsing dataset config %s: %v", path, err)
	}

	if len(cfg.Datasets) == 0 {
		return nil, elevation.ConfigErrorf("dataset config %s declares no datasets", path)
	}

	seen := make(map[string]bool)
	for i := range cfg.Datasets {
		d := &cfg.Datasets[i]
		if d.Name == "" {
			return nil, elevation.ConfigErrorf("dataset %d: missing name", i)
		}
		if seen[d.Name] {
			return nil, elevation.ConfigErrorf("dataset %q: duplicate name", d.Name)
		}
		seen[d.Name] = true

		if _, err := interp.ParseKernel(d.Kernel); err != nil {
			return nil, elevation.ConfigErrorf("dataset %q: %v", d.Name, err)
		}

		switch d.NoDataPolicy {
		case "", "null", "error":
		default:
			return nil, elevation.ConfigErrorf("dataset %q: invalid nodata_policy %q", d.Name, d.NoDataPolicy)
		}

		switch d.Tiling {
		case "single":
			if d.Path == "" {
				return nil, elevation.ConfigErrorf("dataset %q: tiling=single requires path", d.Name)
			}
		case "grid":
			if d.PathTemplate == "" {
				return nil, elevation.ConfigErrorf("dataset %q: tiling=grid requires path_template", d.Name)
			}
			if d.GridSizeDegrees <= 0 {
				d.GridSizeDegrees = 1
			}
		case "manifest":
			if d.ManifestPath == "" {
				return nil, elevation.ConfigErrorf("dataset %q: tiling=manifest requires manifest_path", d.Name)
			}
		default:
			return nil, elevation.ConfigErrorf("dataset %q: unknown tiling scheme %q", d.Name, d.Tiling)
		}
	}

	return &cfg, nil
}

// StrictNoData reports whether a point touching NODATA should surface as a
// per-point error rather than a null result.
func (d DatasetConfig) StrictNoData() bool {
	return d.NoDataPolicy == "error"
}

func (d DatasetConfig) String() string {
	return fmt.Sprintf("dataset(name=%s, tiling=%s, kernel=%s)", d.Name, d.Tiling, d.Kernel)
}
