// Package config loads the service's ambient runtime configuration from
// environment variables (and an optional .env file for local development),
// separately from the dataset manifest that internal/dataset owns.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the service's ambient configuration.
type Config struct {
	Port             string
	DatasetConfigPath string
	HandleCacheSize  int
	RequestTimeout   time.Duration
	SlowRequestLog   time.Duration
	CORSOrigins      []string
	RedisURL         string
	CacheEnabled     bool
	LogLevel         slog.Level
}

// Load reads a .env file if present (missing is not an error — production
// deployments set real environment variables instead) and builds a Config
// from the environment, applying defaults for anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatasetConfigPath: getEnv("DATASET_CONFIG", "datasets.yaml"),
		RequestTimeout:    getDuration("REQUEST_TIMEOUT", 15*time.Second),
		SlowRequestLog:    getDuration("SLOW_REQUEST_THRESHOLD", 500*time.Millisecond),
		RedisURL:          os.Getenv("REDIS_URL"),
		LogLevel:          parseLevel(getEnv("LOG_LEVEL", "info")),
	}

	size, err := getInt("HANDLE_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	cfg.HandleCacheSize = size

	cfg.CacheEnabled = getBool("CACHE_ENABLED", cfg.RedisURL != "")
	cfg.CORSOrigins = splitCSV(getEnv("CORS_ORIGINS", "*"))

	if cfg.DatasetConfigPath == "" {
		return nil, fmt.Errorf("DATASET_CONFIG must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, trimSpace(s[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}
