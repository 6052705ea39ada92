package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestCache creates a Cache backed by an in-memory Redis server.
func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Cache{client: client, redisURL: "redis://" + mr.Addr()}, mr
}

func TestQueryKeyIsOrderAndFormatStable(t *testing.T) {
	k1 := QueryKey("terrain", "nearest", []float64{10.123456789, 20}, []float64{30, 40})
	k2 := QueryKey("terrain", "nearest", []float64{10.1234567, 20}, []float64{30, 40})
	if k1 != k2 {
		t.Fatalf("keys should match after rounding to 1e-6 degrees: %q != %q", k1, k2)
	}

	k3 := QueryKey("terrain", "bilinear", []float64{10.123456789, 20}, []float64{30, 40})
	if k1 == k3 {
		t.Fatalf("keys for different kernels should differ")
	}

	k4 := QueryKey("other-dataset", "nearest", []float64{10.123456789, 20}, []float64{30, 40})
	if k1 == k4 {
		t.Fatalf("keys for different datasets should differ")
	}
}

func TestSetQueryThenGetQueryRoundTrips(t *testing.T) {
	c, mr := setupTestCache(t)
	defer mr.Close()
	defer c.Close()

	ctx := context.Background()
	key := QueryKey("terrain", "nearest", []float64{10}, []float64{20})
	body := []byte(`{"status":"OK","results":[]}`)

	if err := c.SetQuery(ctx, key, body); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	entry, err := c.GetQuery(ctx, key)
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if entry == nil {
		t.Fatalf("expected a cache hit")
	}
	if string(entry.Data) != string(body) {
		t.Fatalf("entry.Data = %s, want %s", entry.Data, body)
	}
}

func TestGetQueryMissReturnsNilNoError(t *testing.T) {
	c, mr := setupTestCache(t)
	defer mr.Close()
	defer c.Close()

	entry, err := c.GetQuery(context.Background(), "query:terrain:nearest:doesnotexist")
	if err != nil {
		t.Fatalf("unexpected error on cache miss: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry on a cache miss, got %+v", entry)
	}
}

func TestInvalidateDatasetRemovesOnlyThatDataset(t *testing.T) {
	c, mr := setupTestCache(t)
	defer mr.Close()
	defer c.Close()

	ctx := context.Background()
	terrainKey := QueryKey("terrain", "nearest", []float64{10}, []float64{20})
	bathymetryKey := QueryKey("bathymetry", "nearest", []float64{10}, []float64{20})

	if err := c.SetQuery(ctx, terrainKey, []byte(`{}`)); err != nil {
		t.Fatalf("SetQuery(terrain): %v", err)
	}
	if err := c.SetQuery(ctx, bathymetryKey, []byte(`{}`)); err != nil {
		t.Fatalf("SetQuery(bathymetry): %v", err)
	}

	if err := c.InvalidateDataset(ctx, "terrain"); err != nil {
		t.Fatalf("InvalidateDataset: %v", err)
	}

	if entry, _ := c.GetQuery(ctx, terrainKey); entry != nil {
		t.Fatalf("expected terrain's cached entry to be gone")
	}
	if entry, _ := c.GetQuery(ctx, bathymetryKey); entry == nil {
		t.Fatalf("expected bathymetry's cached entry to survive")
	}
}

func TestFlushAllRemovesEverything(t *testing.T) {
	c, mr := setupTestCache(t)
	defer mr.Close()
	defer c.Close()

	ctx := context.Background()
	key := QueryKey("terrain", "nearest", []float64{10}, []float64{20})
	if err := c.SetQuery(ctx, key, []byte(`{}`)); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	if err := c.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if entry, _ := c.GetQuery(ctx, key); entry != nil {
		t.Fatalf("expected cache to be empty after FlushAll")
	}
}
