package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "datasets.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadConfigValid(t *testing.T) {
	path := writeConfig(t, `
datasets:
  - name: test
    tiling: single
    path: /data/test.tif
    kernel: nearest
  - name: srtm
    tiling: grid
    path_template: "data/{NS}{lat:02d}{EW}{lng:03d}.hgt"
    kernel: bilinear
  - name: custom
    tiling: manifest
    manifest_path: /data/custom/manifest.json
    kernel: cubic
    nodata_policy: error
    output_precision: 2
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.Datasets) != 3 {
		t.Fatalf("got %d datasets, want 3", len(cfg.Datasets))
	}
	if cfg.Datasets[1].GridSizeDegrees != 1 {
		t.Fatalf("grid dataset should default grid_size_degrees to 1, got %v", cfg.Datasets[1].GridSizeDegrees)
	}
	if !cfg.Datasets[2].StrictNoData() {
		t.Fatalf("custom dataset should have strict nodata policy")
	}
}

func TestLoadConfigRejectsDuplicateNames(t *testing.T) {
	path := writeConfig(t, `
datasets:
  - name: dup
    tiling: single
    path: /a.tif
  - name: dup
    tiling: single
    path: /b.tif
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for duplicate dataset names")
	}
}

func TestLoadConfigRejectsUnknownKernel(t *testing.T) {
	path := writeConfig(t, `
datasets:
  - name: bad
    tiling: single
    path: /a.tif
    kernel: lanczos
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for unknown kernel")
	}
}

func TestLoadConfigRejectsMissingTilingFields(t *testing.T) {
	cases := []string{
		`datasets:
  - name: a
    tiling: single
`,
		`datasets:
  - name: a
    tiling: grid
`,
		`datasets:
  - name: a
    tiling: manifest
`,
		`datasets:
  - name: a
    tiling: nonsense
`,
	}
	for _, body := range cases {
		path := writeConfig(t, body)
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected error for config:\n%s", body)
		}
	}
}

func TestLoadConfigRejectsEmptyDatasetList(t *testing.T) {
	path := writeConfig(t, "datasets: []\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for empty dataset list")
	}
}
