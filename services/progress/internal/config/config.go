package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the progress service's own settings. Shared settings
// (HTTP_ADDR, LOG_LEVEL, DATABASE_URL) live in the platform config and db
// packages.
type Config struct {
	JWTSecret       []byte
	CatalogBaseURL  string
	RedisURL        string
	OutlineCacheTTL time.Duration
	FlushRate       float64 // flush requests per second per learner
	FlushBurst      int
}

func Load() (Config, error) {
	cfg := Config{
		JWTSecret:       []byte(strings.TrimSpace(os.Getenv("JWT_SECRET"))),
		CatalogBaseURL:  strings.TrimSpace(os.Getenv("PROGRESS_CATALOG_URL")),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		OutlineCacheTTL: envDuration("PROGRESS_OUTLINE_CACHE_TTL", 5*time.Minute),
		FlushRate:       envFloat("PROGRESS_FLUSH_RATE", 2),
		FlushBurst:      envInt("PROGRESS_FLUSH_BURST", 10),
	}
	if len(cfg.JWTSecret) == 0 {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
