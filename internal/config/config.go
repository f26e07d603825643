package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Scryfall upstream
	ScryfallBaseURL string
	BulkTimeout     time.Duration

	// Expo push sink
	PushURL string

	// Scheduled jobs
	IngestInterval time.Duration
	AlertInterval  time.Duration
	IngestBatch    int

	// Live price cache
	CacheTTL     time.Duration
	CacheMaxSize int
}

func Load() *Config {
	defaultDSN := "mtg:mtg@tcp(127.0.0.1:3306)/mtg_tracker?charset=utf8mb4&parseTime=True&loc=UTC"

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", defaultDSN),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		ScryfallBaseURL: getEnv("SCRYFALL_BASE_URL", "https://api.scryfall.com"),
		BulkTimeout:     getDuration("BULK_DOWNLOAD_TIMEOUT", 15*time.Minute),

		PushURL: getEnv("PUSH_URL", "https://exp.host/--/api/v2/push/send"),

		IngestInterval: getDuration("INGEST_INTERVAL", 24*time.Hour),
		AlertInterval:  getDuration("ALERT_INTERVAL", time.Hour),
		IngestBatch:    getInt("INGEST_BATCH_SIZE", 150),

		CacheTTL:     getDuration("PRICE_CACHE_TTL", 10*time.Minute),
		CacheMaxSize: getInt("PRICE_CACHE_MAX_SIZE", 5000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
