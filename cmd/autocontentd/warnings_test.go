package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/tontroys3/AutoWebBuilder/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func TestLogConfigWarnings_BareConfig(t *testing.T) {
	output := captureLogOutput(config.Config{})

	if !strings.Contains(output, "IMAGE_API_KEYS not set") {
		t.Error("expected scrape-fallback warning, got:", output)
	}
	if !strings.Contains(output, "DATABASE_URL not set") {
		t.Error("expected no-archive warning, got:", output)
	}
	if !strings.Contains(output, "REDIS_ADDR not set") {
		t.Error("expected no-analytics notice, got:", output)
	}
	if !strings.Contains(output, "METRICS_ENABLED not set") {
		t.Error("expected metrics-disabled notice, got:", output)
	}
}

func TestLogConfigWarnings_FullConfig(t *testing.T) {
	cfg := config.Config{
		ImageAPIKeys:   []string{"key-1"},
		DatabaseURL:    "postgres://localhost/autocontent",
		RedisAddr:      "localhost:6379",
		MetricsEnabled: true,
	}
	output := captureLogOutput(cfg)

	if strings.Contains(output, "WARNING") {
		t.Error("fully configured service should not warn, got:", output)
	}
	if strings.Contains(output, "not set") {
		t.Error("fully configured service should not report missing settings, got:", output)
	}
}
