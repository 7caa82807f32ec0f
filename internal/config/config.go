package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the autocontentd application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseURL string `json:"database_url,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty"`

	// DomainsFile points at the YAML file with per-domain posting settings.
	DomainsFile string `json:"domains_file,omitempty"`

	// ImageAPIKeys: comma-separated image-search credentials rotated by the key pool.
	ImageAPIKeys  []string `json:"-"`
	ImageAPIURL   string   `json:"image_api_url"`
	GeneratorURL  string   `json:"generator_url"`
	GeneratorKey  string   `json:"-"`
	GeneratorName string   `json:"generator_model"`

	// KeyCeiling/KeyBuffer bound each credential's sliding-hour usage;
	// a key is rotated out once it reaches ceiling minus buffer.
	KeyCeiling int `json:"key_ceiling"`
	KeyBuffer  int `json:"key_buffer"`

	CallTimeout    time.Duration `json:"-"`
	CallTimeoutStr string        `json:"call_timeout"`

	CapBackoff    time.Duration `json:"-"`
	CapBackoffStr string        `json:"cap_backoff"`

	RetryBackoff    time.Duration `json:"-"`
	RetryBackoffStr string        `json:"retry_backoff"`

	CheckGranularity    time.Duration `json:"-"`
	CheckGranularityStr string        `json:"check_granularity"`

	// ImageRatePerSec throttles outbound image-search calls across all domains.
	ImageRatePerSec float64 `json:"image_rate_per_sec"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	// SchedulerDrainTimeout bounds how long shutdown waits for domain loops to exit.
	SchedulerDrainTimeout    time.Duration `json:"-"`
	SchedulerDrainTimeoutStr string        `json:"scheduler_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	// AnalyticsRetention: how long per-domain generation counters live in Redis.
	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	// ArchiveRetention: how long archived records are kept in Postgres.
	// Zero disables the retention sweeper.
	ArchiveRetention    time.Duration `json:"-"`
	ArchiveRetentionStr string        `json:"archive_retention"`

	// LeaderElectionEnabled gates the Postgres advisory-lock election;
	// only the leader runs the domain schedulers.
	LeaderElectionEnabled bool `json:"leader_election_enabled"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		HTTPAddr:                 os.Getenv("HTTP_ADDR"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		DomainsFile:              os.Getenv("DOMAINS_FILE"),
		ImageAPIURL:              os.Getenv("IMAGE_API_URL"),
		GeneratorURL:             os.Getenv("GENERATOR_URL"),
		GeneratorKey:             os.Getenv("GENERATOR_API_KEY"),
		GeneratorName:            os.Getenv("GENERATOR_MODEL"),
		CallTimeoutStr:           os.Getenv("CALL_TIMEOUT"),
		CapBackoffStr:            os.Getenv("CAP_BACKOFF"),
		RetryBackoffStr:          os.Getenv("RETRY_BACKOFF"),
		CheckGranularityStr:      os.Getenv("CHECK_GRANULARITY"),
		DBOpTimeoutStr:           os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:     os.Getenv("DB_CONN_MAX_LIFETIME"),
		HTTPShutdownTimeoutStr:   os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		SchedulerDrainTimeoutStr: os.Getenv("SCHEDULER_DRAIN_TIMEOUT"),
		MetricsEnabled:           os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:              os.Getenv("METRICS_PATH"),
		AnalyticsRetentionStr:    os.Getenv("ANALYTICS_RETENTION"),
		ArchiveRetentionStr:      os.Getenv("ARCHIVE_RETENTION"),
		LeaderElectionEnabled:    os.Getenv("LEADER_ELECTION_ENABLED") == "true",
	}

	cfg.ImageAPIKeys = splitKeys(os.Getenv("IMAGE_API_KEYS"))

	if ceilStr := os.Getenv("KEY_CEILING"); ceilStr != "" {
		if n, err := parseInt(ceilStr); err == nil && n > 0 {
			cfg.KeyCeiling = n
		} else {
			log.Printf("config: invalid KEY_CEILING %q (must be a positive integer), using default 1000", ceilStr)
		}
	}
	if cfg.KeyCeiling == 0 {
		cfg.KeyCeiling = 1000
	}

	if bufStr := os.Getenv("KEY_BUFFER"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.KeyBuffer = n
		} else {
			log.Printf("config: invalid KEY_BUFFER %q (must be a positive integer), using default 10", bufStr)
		}
	}
	if cfg.KeyBuffer == 0 {
		cfg.KeyBuffer = 10
	}

	if rateStr := os.Getenv("IMAGE_RATE_PER_SEC"); rateStr != "" {
		if f, err := parseFloat(rateStr); err == nil && f > 0 {
			cfg.ImageRatePerSec = f
		} else {
			log.Printf("config: invalid IMAGE_RATE_PER_SEC %q (must be a positive number), using default 2", rateStr)
		}
	}
	if cfg.ImageRatePerSec == 0 {
		cfg.ImageRatePerSec = 2
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.CallTimeoutStr == "" {
		cfg.CallTimeoutStr = "30s"
	}
	if cfg.CapBackoffStr == "" {
		cfg.CapBackoffStr = "1h"
	}
	if cfg.RetryBackoffStr == "" {
		cfg.RetryBackoffStr = "30m"
	}
	if cfg.CheckGranularityStr == "" {
		cfg.CheckGranularityStr = "1m"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.SchedulerDrainTimeoutStr == "" {
		cfg.SchedulerDrainTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "720h"
	}
	if cfg.GeneratorName == "" {
		cfg.GeneratorName = "gpt-4o-mini"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.CallTimeoutStr); err == nil {
		cfg.CallTimeout = d
	}
	if d, err := time.ParseDuration(cfg.CapBackoffStr); err == nil {
		cfg.CapBackoff = d
	}
	if d, err := time.ParseDuration(cfg.RetryBackoffStr); err == nil {
		cfg.RetryBackoff = d
	}
	if d, err := time.ParseDuration(cfg.CheckGranularityStr); err == nil {
		cfg.CheckGranularity = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.SchedulerDrainTimeoutStr); err == nil {
		cfg.SchedulerDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if cfg.ArchiveRetentionStr != "" {
		if d, err := time.ParseDuration(cfg.ArchiveRetentionStr); err == nil {
			cfg.ArchiveRetention = d
		} else {
			log.Printf("config: invalid ARCHIVE_RETENTION %q, retention sweeper disabled", cfg.ArchiveRetentionStr)
		}
	}

	return cfg
}

// splitKeys splits a comma-separated credential list, trimming whitespace
// and dropping empty items.
func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// parseFloat parses simple decimal numbers like "2" or "0.5".
func parseFloat(s string) (float64, error) {
	whole, frac, found := strings.Cut(s, ".")
	n, err := parseInt(whole)
	if err != nil {
		return 0, err
	}
	f := float64(n)
	if found {
		m, err := parseInt(frac)
		if err != nil {
			return 0, err
		}
		div := 1.0
		for range frac {
			div *= 10
		}
		f += float64(m) / div
	}
	return f, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
// Credentials are reported only as a count.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		HTTPAddr              string  `json:"http_addr"`
		DatabaseURL           string  `json:"database_url,omitempty"`
		RedisAddr             string  `json:"redis_addr,omitempty"`
		DomainsFile           string  `json:"domains_file,omitempty"`
		ImageAPIKeys          int     `json:"image_api_keys"`
		ImageAPIURL           string  `json:"image_api_url"`
		GeneratorURL          string  `json:"generator_url"`
		GeneratorKey          string  `json:"generator_api_key"`
		GeneratorName         string  `json:"generator_model"`
		KeyCeiling            int     `json:"key_ceiling"`
		KeyBuffer             int     `json:"key_buffer"`
		CallTimeout           string  `json:"call_timeout"`
		CapBackoff            string  `json:"cap_backoff"`
		RetryBackoff          string  `json:"retry_backoff"`
		CheckGranularity      string  `json:"check_granularity"`
		ImageRatePerSec       float64 `json:"image_rate_per_sec"`
		DBOpTimeout           string  `json:"db_op_timeout"`
		DBMaxOpenConns        int     `json:"db_max_open_conns"`
		DBMaxIdleConns        int     `json:"db_max_idle_conns"`
		DBConnMaxLifetime     string  `json:"db_conn_max_lifetime"`
		HTTPShutdownTimeout   string  `json:"http_shutdown_timeout"`
		SchedulerDrainTimeout string  `json:"scheduler_drain_timeout"`
		MetricsEnabled        bool    `json:"metrics_enabled"`
		MetricsPath           string  `json:"metrics_path"`
		AnalyticsRetention    string  `json:"analytics_retention"`
		ArchiveRetention      string  `json:"archive_retention,omitempty"`
		LeaderElection        bool    `json:"leader_election_enabled"`
	}{
		HTTPAddr:              c.HTTPAddr,
		DatabaseURL:           maskSecret(c.DatabaseURL),
		RedisAddr:             c.RedisAddr,
		DomainsFile:           c.DomainsFile,
		ImageAPIKeys:          len(c.ImageAPIKeys),
		ImageAPIURL:           c.ImageAPIURL,
		GeneratorKey:          maskSecret(c.GeneratorKey),
		GeneratorURL:          c.GeneratorURL,
		GeneratorName:         c.GeneratorName,
		KeyCeiling:            c.KeyCeiling,
		KeyBuffer:             c.KeyBuffer,
		CallTimeout:           c.CallTimeoutStr,
		CapBackoff:            c.CapBackoffStr,
		RetryBackoff:          c.RetryBackoffStr,
		CheckGranularity:      c.CheckGranularityStr,
		ImageRatePerSec:       c.ImageRatePerSec,
		DBOpTimeout:           c.DBOpTimeoutStr,
		DBMaxOpenConns:        c.DBMaxOpenConns,
		DBMaxIdleConns:        c.DBMaxIdleConns,
		DBConnMaxLifetime:     c.DBConnMaxLifetimeStr,
		HTTPShutdownTimeout:   c.HTTPShutdownTimeoutStr,
		SchedulerDrainTimeout: c.SchedulerDrainTimeoutStr,
		MetricsEnabled:        c.MetricsEnabled,
		MetricsPath:           c.MetricsPath,
		AnalyticsRetention:    c.AnalyticsRetentionStr,
		ArchiveRetention:      c.ArchiveRetentionStr,
		LeaderElection:        c.LeaderElectionEnabled,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
