package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort        string
	DatabaseURL       string
	RedisURL          string
	CatalogServiceURL string
	DefaultCountry    string
	LogLevel          string
	RunWorker         bool

	CacheTTLHours        string
	StaleThresholdHours  string
	StoreWindowDays      string
	ScrapeTimeoutSeconds string
	SyncWaitSeconds      string
	BrowserPoolSize      int
	WorkerCount          int
	RedeliveryLimit      int
	TrustedRetailers     []string
}

// GetCacheTTL returns the cache TTL from environment or default
func (c *Config) GetCacheTTL() time.Duration {
	return hoursOrDefault("CACHE_TTL_HOURS", c.CacheTTLHours, 24*time.Hour)
}

// GetStaleThreshold returns the staleness threshold. A best price older than
// this is still served, but flagged stale and refreshed in the background.
func (c *Config) GetStaleThreshold() time.Duration {
	return hoursOrDefault("STALE_THRESHOLD_HOURS", c.StaleThresholdHours, 24*time.Hour)
}

// GetStoreWindow returns how far back the store lookup searches for usable
// observations. Wider than the staleness threshold on purpose: old prices
// are served as stale, not discarded.
func (c *Config) GetStoreWindow() time.Duration {
	if c.StoreWindowDays == "" {
		return 7 * 24 * time.Hour
	}
	days, err := strconv.Atoi(c.StoreWindowDays)
	if err != nil || days <= 0 {
		logrus.Warnf("Invalid STORE_WINDOW_DAYS value: %s, using default 7 days", c.StoreWindowDays)
		return 7 * 24 * time.Hour
	}
	return time.Duration(days) * 24 * time.Hour
}

// GetScrapeTimeout returns the per-retailer scrape timeout
func (c *Config) GetScrapeTimeout() time.Duration {
	return secondsOrDefault("SCRAPE_TIMEOUT_SECONDS", c.ScrapeTimeoutSeconds, 45*time.Second)
}

// GetSyncWait returns the bounded wait for synchronous single-item refreshes
func (c *Config) GetSyncWait() time.Duration {
	return secondsOrDefault("SYNC_WAIT_SECONDS", c.SyncWaitSeconds, 8*time.Second)
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CatalogServiceURL: getEnv("CATALOG_SERVICE_URL", "http://localhost:8001"),
		DefaultCountry:    getEnv("DEFAULT_COUNTRY", "MX"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		RunWorker:         getEnvBool("RUN_WORKER", true),

		CacheTTLHours:        getEnv("CACHE_TTL_HOURS", "24"),
		StaleThresholdHours:  getEnv("STALE_THRESHOLD_HOURS", "24"),
		StoreWindowDays:      getEnv("STORE_WINDOW_DAYS", "7"),
		ScrapeTimeoutSeconds: getEnv("SCRAPE_TIMEOUT_SECONDS", "45"),
		SyncWaitSeconds:      getEnv("SYNC_WAIT_SECONDS", "8"),
		BrowserPoolSize:      getEnvInt("BROWSER_POOL_SIZE", 4),
		WorkerCount:          getEnvInt("WORKER_COUNT", 2),
		RedeliveryLimit:      getEnvInt("QUEUE_REDELIVERY_LIMIT", 5),
		TrustedRetailers:     getEnvList("TRUSTED_RETAILERS", []string{"amazon", "mercadolibre", "cyberpuerta"}),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func hoursOrDefault(key, raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return time.Duration(hours) * time.Hour
}

func secondsOrDefault(key, raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
