// Package httpapi adapts external batch-elevation-query requests into
// dataset.Engine calls and engine results back into the external response
// schema. It stays thin by design: all interpolation and tiling policy
// lives in internal/dataset.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jcom-dev/elevation-service/internal/cache"
	"github.com/jcom-dev/elevation-service/internal/dataset"
	"github.com/jcom-dev/elevation-service/internal/elevation"
)

// status values for the top-level response envelope.
const (
	statusOK    = "OK"
	statusError = "INVALID"
	statusFail  = "SERVER_ERROR"
)

// Handler serves the batch elevation query endpoints against a dataset
// registry, optionally memoizing responses in a Cache.
type Handler struct {
	registry *dataset.Registry
	cache    *cache.Cache
}

// NewHandler builds a Handler. cache may be nil to disable response
// caching.
func NewHandler(registry *dataset.Registry, respCache *cache.Cache) *Handler {
	return &Handler{registry: registry, cache: respCache}
}

// Routes mounts the handler's endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.HealthCheck)
	r.Get("/v1/{dataset}", h.Query)
	r.Post("/v1/{dataset}", h.Query)
}

// pointRequest is one location in a request body, or the parsed form of a
// "lat,lng" query-string segment.
type pointRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type queryBody struct {
	Locations     []pointRequest `json:"locations"`
	Interpolation string         `json:"interpolation"`
}

// pointResult is one point's answer in the response envelope.
type pointResult struct {
	Elevation *float64      `json:"elevation"`
	Location  pointRequest  `json:"location"`
	Error     string        `json:"error,omitempty"`
}

type envelope struct {
	Status  string        `json:"status"`
	Results []pointResult `json:"results,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// HealthCheck reports process liveness and the set of datasets currently
// published by the registry.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"datasets": h.registry.Names(),
	})
}

// Query answers a batch elevation request for the dataset named in the URL
// path, reading locations from either the query string (GET) or a JSON
// body (POST). Per-point failures stay in the results; a raster I/O error
// on any point fails the whole request with SERVER_ERROR. The request's
// interpolation value only goes into the response-cache key: every point
// is sampled with the dataset's configured kernel, and the value is not
// validated.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	datasetName := chi.URLParam(r, "dataset")

	body, err := parseQuery(r)
	if err != nil {
		respondEnvelope(w, http.StatusBadRequest, envelope{Status: statusError, Error: err.Error()})
		return
	}

	engine, err := h.registry.Get(datasetName)
	if err != nil {
		respondEnvelope(w, http.StatusNotFound, envelope{Status: statusError, Error: err.Error()})
		return
	}

	cacheKey := ""
	if h.cache != nil {
		lats := make([]float64, len(body.Locations))
		lons := make([]float64, len(body.Locations))
		for i, l := range body.Locations {
			lats[i], lons[i] = l.Latitude, l.Longitude
		}
		cacheKey = cache.QueryKey(datasetName, body.Interpolation, lats, lons)

		if entry, err := h.cache.GetQuery(r.Context(), cacheKey); err == nil && entry != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(entry.Data)
			return
		}
	}

	points := make([]dataset.Point, len(body.Locations))
	for i, l := range body.Locations {
		points[i] = dataset.Point{Lat: l.Latitude, Lon: l.Longitude}
	}

	results := engine.Query(points)

	for _, res := range results {
		if elevation.Is(res.Err, elevation.KindRasterIO) {
			respondEnvelope(w, http.StatusInternalServerError, envelope{Status: statusFail, Error: res.Err.Error()})
			return
		}
	}

	resp := envelope{Status: statusOK, Results: make([]pointResult, len(results))}
	for i, res := range results {
		pr := pointResult{Location: body.Locations[i]}
		switch {
		case res.Err != nil:
			pr.Error = res.Err.Error()
		case res.Value != nil:
			pr.Elevation = res.Value
		}
		resp.Results[i] = pr
	}

	data, err := json.Marshal(resp)
	if err != nil {
		respondEnvelope(w, http.StatusInternalServerError, envelope{Status: statusFail, Error: "failed to encode response"})
		return
	}

	if h.cache != nil && cacheKey != "" {
		if err := h.cache.SetQuery(r.Context(), cacheKey, data); err != nil {
			slog.Warn("response cache write failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseQuery reads a batch query from either the request body (POST) or
// the query string (GET: locations=lat,lng|lat,lng&interpolation=...).
func parseQuery(r *http.Request) (queryBody, error) {
	if r.Method == http.MethodPost {
		var body queryBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return queryBody{}, elevation.InvalidPointf("invalid request body: %v", err)
		}
		return body, nil
	}

	q := r.URL.Query()
	raw := q.Get("locations")
	if raw == "" {
		return queryBody{}, elevation.InvalidPointf("missing locations parameter")
	}

	var body queryBody
	body.Interpolation = q.Get("interpolation")

	for _, pair := range strings.Split(raw, "|") {
		parts := strings.SplitN(pair, ",", 2)
		if len(parts) != 2 {
			return queryBody{}, elevation.InvalidPointf("malformed location %q", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return queryBody{}, elevation.InvalidPointf("malformed latitude in %q", pair)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return queryBody{}, elevation.InvalidPointf("malformed longitude in %q", pair)
		}
		body.Locations = append(body.Locations, pointRequest{Latitude: lat, Longitude: lng})
	}

	return body, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func respondEnvelope(w http.ResponseWriter, status int, env envelope) {
	respondJSON(w, status, env)
}
