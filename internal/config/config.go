package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the banner analytics service.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ClickHouse  ClickHouseConfig
	RateLimit   RateLimitConfig
	Aggregation AggregationConfig
	Report      ReportConfig
	Geo         GeoConfig
	Log         LogConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// SessionTTL bounds session rollups and first-view markers.
	SessionTTL time.Duration
}

type ClickHouseConfig struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// RateLimitConfig bounds ingestion throughput.
type RateLimitConfig struct {
	Enabled bool
	// Per-session (or per-IP fallback) ingestion limits.
	EventsPerSec float64
	EventsBurst  int
	// Global server-wide limits applied as middleware.
	GlobalRPS   float64
	GlobalBurst int
}

// AggregationConfig drives the periodic rollup job.
type AggregationConfig struct {
	Interval       time.Duration
	HourlyLookback time.Duration
	DailyLookback  time.Duration
	ClaimTTL       time.Duration
}

// ReportConfig tunes the reporting endpoint.
type ReportConfig struct {
	// CacheTTL is advertised to HTTP caches; reports reflect
	// eventually-consistent aggregates anyway.
	CacheTTL time.Duration
	// RawEventCap bounds the raw-event debug feed.
	RawEventCap int
}

// GeoConfig configures GeoIP country enrichment.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("BANNER_ANALYTICS_HTTP_ADDR", ":8080"),
			Env:             getEnv("BANNER_ANALYTICS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("BANNER_ANALYTICS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("BANNER_ANALYTICS_DB_HOST", "localhost"),
			Port:     getIntEnv("BANNER_ANALYTICS_DB_PORT", 5432),
			User:     getEnv("BANNER_ANALYTICS_DB_USER", "banneranalytics"),
			Password: getEnv("BANNER_ANALYTICS_DB_PASSWORD", "banneranalytics_secret"),
			DBName:   getEnv("BANNER_ANALYTICS_DB_NAME", "banneranalytics"),
			SSLMode:  getEnv("BANNER_ANALYTICS_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("BANNER_ANALYTICS_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("BANNER_ANALYTICS_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:       getEnv("BANNER_ANALYTICS_REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("BANNER_ANALYTICS_REDIS_PASSWORD", ""),
			DB:         getIntEnv("BANNER_ANALYTICS_REDIS_DB", 0),
			SessionTTL: getDurationEnv("BANNER_ANALYTICS_SESSION_TTL", 48*time.Hour),
		},
		ClickHouse: ClickHouseConfig{
			Addr:        getEnv("BANNER_ANALYTICS_CLICKHOUSE_ADDR", "localhost:9000"),
			Database:    getEnv("BANNER_ANALYTICS_CLICKHOUSE_DB", "default"),
			Username:    getEnv("BANNER_ANALYTICS_CLICKHOUSE_USER", "default"),
			Password:    getEnv("BANNER_ANALYTICS_CLICKHOUSE_PASSWORD", ""),
			DialTimeout: getDurationEnv("BANNER_ANALYTICS_CLICKHOUSE_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getBoolEnv("BANNER_ANALYTICS_RATE_LIMIT_ENABLED", true),
			EventsPerSec: getFloatEnv("BANNER_ANALYTICS_RATE_LIMIT_EVENTS_PER_SEC", 10),
			EventsBurst:  getIntEnv("BANNER_ANALYTICS_RATE_LIMIT_EVENTS_BURST", 30),
			GlobalRPS:    getFloatEnv("BANNER_ANALYTICS_RATE_LIMIT_GLOBAL_RPS", 1000),
			GlobalBurst:  getIntEnv("BANNER_ANALYTICS_RATE_LIMIT_GLOBAL_BURST", 200),
		},
		Aggregation: AggregationConfig{
			Interval:       getDurationEnv("BANNER_ANALYTICS_AGG_INTERVAL", 5*time.Minute),
			HourlyLookback: getDurationEnv("BANNER_ANALYTICS_AGG_HOURLY_LOOKBACK", 48*time.Hour),
			DailyLookback:  getDurationEnv("BANNER_ANALYTICS_AGG_DAILY_LOOKBACK", 35*24*time.Hour),
			ClaimTTL:       getDurationEnv("BANNER_ANALYTICS_AGG_CLAIM_TTL", 2*time.Minute),
		},
		Report: ReportConfig{
			CacheTTL:    getDurationEnv("BANNER_ANALYTICS_REPORT_CACHE_TTL", 3*time.Minute),
			RawEventCap: getIntEnv("BANNER_ANALYTICS_REPORT_RAW_CAP", 1000),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("BANNER_ANALYTICS_GEO_ENABLED", false),
			DatabasePath: getEnv("BANNER_ANALYTICS_GEO_DB_PATH", "/app/data/GeoLite2-Country.mmdb"),
		},
		Log: LogConfig{
			Level:  getEnv("BANNER_ANALYTICS_LOG_LEVEL", "info"),
			Format: getEnv("BANNER_ANALYTICS_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("BANNER_ANALYTICS_METRICS_ENABLED", true),
			Path:    getEnv("BANNER_ANALYTICS_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent.
func (c *Config) Validate() error {
	if c.RateLimit.Enabled && c.RateLimit.EventsPerSec <= 0 {
		return fmt.Errorf("BANNER_ANALYTICS_RATE_LIMIT_EVENTS_PER_SEC must be positive when rate limiting is enabled")
	}
	if c.Aggregation.Interval <= 0 {
		return fmt.Errorf("BANNER_ANALYTICS_AGG_INTERVAL must be positive")
	}
	if c.Report.RawEventCap <= 0 {
		return fmt.Errorf("BANNER_ANALYTICS_REPORT_RAW_CAP must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
