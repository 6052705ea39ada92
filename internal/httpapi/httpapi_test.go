package httpapi

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jcom-dev/elevation-service/internal/dataset"
)

// writeFlatHGT writes a minimal SRTM3-sized (1201x1201) raw .hgt fixture
// named name (which fixes the one-degree cell it covers), with every sample
// set to value.
func writeFlatHGT(t *testing.T, dir, name string, value int16) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer f.Close()

	const side = 1201
	buf := make([]byte, 2)
	for i := 0; i < side*side; i++ {
		binary.BigEndian.PutUint16(buf, uint16(value))
		if _, err := f.Write(buf); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}
	return path
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()
	writeFlatHGT(t, dir, "N10E020.hgt", 500)

	cfgPath := filepath.Join(dir, "datasets.yaml")
	yaml := `
datasets:
  - name: terrain
    tiling: grid
    path_template: "` + dir + `/{NS}{lat:02d}{EW}{lng:03d}.hgt"
    kernel: nearest
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := dataset.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	registry, err := dataset.NewRegistry(cfg, 8)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	return NewHandler(registry, nil)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestQueryUnknownDatasetReturnsInvalidEnvelope(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/does-not-exist?locations=10.5,20.5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Status != statusError {
		t.Fatalf("status field = %q, want %q", env.Status, statusError)
	}
	if len(env.Results) != 0 {
		t.Fatalf("expected no results for an unknown dataset, got %d", len(env.Results))
	}
}

func TestQueryInvalidPointReturnsPerPointErrorWithBatchOK(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/terrain?locations=91,20|10.5,20.5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Status != statusOK {
		t.Fatalf("envelope status = %q, want %q", env.Status, statusOK)
	}
	if len(env.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(env.Results))
	}
	if env.Results[0].Error == "" {
		t.Fatalf("expected an error on the invalid point")
	}
	if env.Results[1].Error != "" {
		t.Fatalf("unexpected error on the valid point: %s", env.Results[1].Error)
	}
	if env.Results[1].Elevation == nil || *env.Results[1].Elevation != 500 {
		t.Fatalf("got elevation %v, want 500", env.Results[1].Elevation)
	}
}

func TestQueryMissingLocationsParam(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/terrain", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthCheckListsDatasets(t *testing.T) {
	h := newTestHandler(t)
	router := newRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	datasets, ok := body["datasets"].([]interface{})
	if !ok || len(datasets) != 1 || datasets[0] != "terrain" {
		t.Fatalf("datasets = %v, want [terrain]", body["datasets"])
	}
}
