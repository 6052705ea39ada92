package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides Redis-based response caching for elevation queries.
type Cache struct {
	client   *redis.Client
	redisURL string // For logging purposes
}

// ResponseEntry is a cached batch query response, keyed by dataset,
// interpolation kernel, and the exact set of locations queried.
type ResponseEntry struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
}

// QueryTTL is the TTL for cached query responses. Elevation data changes
// only when an operator replaces a dataset's raster files, so a cached
// response is safe to serve well past the request that produced it.
const QueryTTL = 1 * time.Hour

// New creates a new Redis cache client.
func New() (*Cache, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	isUpstash := strings.Contains(redisURL, "upstash.io")
	provider := "Redis"
	if isUpstash {
		provider = "Upstash Redis"
	}
	slog.Info("cache connection established",
		"provider", provider,
		"host", opt.Addr,
	)

	return &Cache{client: client, redisURL: redisURL}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client for direct access (health
// checks, metrics).
func (c *Cache) Client() *redis.Client {
	return c.client
}

// QueryKey builds a deterministic cache key for a batch query: the
// dataset name, interpolation kernel, and every location rounded to 1e-6
// degrees (~11cm), joined in request order so the same batch always hashes
// to the same key regardless of how its caller built it.
func QueryKey(dataset, kernel string, lats, lons []float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s", dataset, kernel)
	for i := range lats {
		fmt.Fprintf(h, ":%.6f,%.6f", lats[i], lons[i])
	}
	digest := hex.EncodeToString(h.Sum(nil))[:32]
	return fmt.Sprintf("query:%s:%s:%s", dataset, kernel, digest)
}

// GetQuery retrieves a cached batch query response.
func (c *Cache) GetQuery(ctx context.Context, key string) (*ResponseEntry, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		slog.Debug("cache miss", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("cache get error", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get cached query: %w", err)
	}

	var entry ResponseEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached query: %w", err)
	}

	slog.Debug("cache hit", "key", key, "cached_at", entry.CachedAt.Format(time.RFC3339))
	return &entry, nil
}

// SetQuery caches a batch query response body under key.
func (c *Cache) SetQuery(ctx context.Context, key string, responseBody []byte) error {
	entry := ResponseEntry{
		Data:     responseBody,
		CachedAt: time.Now(),
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, key, entryJSON, QueryTTL).Err(); err != nil {
		slog.Error("cache set error", "key", key, "error", err)
		return err
	}
	slog.Debug("cache set", "key", key, "ttl", QueryTTL, "size_bytes", len(entryJSON))
	return nil
}

// InvalidateDataset removes every cached query response for a dataset.
// Used when an operator reloads a dataset's underlying raster files.
func (c *Cache) InvalidateDataset(ctx context.Context, dataset string) error {
	pattern := fmt.Sprintf("query:%s:*", dataset)
	slog.Info("invalidating query cache", "dataset", dataset)
	return c.deleteByPattern(ctx, pattern)
}

// FlushAll removes every cached query response.
func (c *Cache) FlushAll(ctx context.Context) error {
	return c.deleteByPattern(ctx, "query:*")
}

// DeleteByPattern deletes all keys matching a pattern (public method).
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	return c.deleteByPattern(ctx, pattern)
}

func (c *Cache) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			result, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += result
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	if deleted > 0 {
		slog.Debug("cache keys deleted", "count", deleted, "pattern", pattern)
	}
	return nil
}

// Stats returns cache statistics.
func (c *Cache) Stats(ctx context.Context) (map[string]interface{}, error) {
	info, err := c.client.Info(ctx, "stats", "memory", "keyspace").Result()
	if err != nil {
		return nil, err
	}

	queryCount, _ := c.countKeys(ctx, "query:*")

	return map[string]interface{}{
		"redis_info":    info,
		"query_entries": queryCount,
	}, nil
}

func (c *Cache) countKeys(ctx context.Context, pattern string) (int64, error) {
	var count int64
	var cursor uint64

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count, nil
}
