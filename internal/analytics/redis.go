// Package analytics keeps per-domain generation counters in Redis so the
// panel can chart posting activity without touching the archive database.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcomes tracked per domain.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisSink(client *redis.Client, retention time.Duration) *RedisSink {
	return &RedisSink{client: client, retention: retention}
}

// RecordGeneration increments the domain's hourly and daily counters for
// the given outcome. Both keys expire after the configured retention.
func (s *RedisSink) RecordGeneration(ctx context.Context, domainName, outcome string, at time.Time) error {
	pipe := s.client.Pipeline()
	for _, key := range []string{
		dailyKey(domainName, outcome, at),
		hourlyKey(domainName, outcome, at),
	} {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.retention)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// DayCounts returns the domain's success and failure counts for one day.
// Missing keys read as zero.
func (s *RedisSink) DayCounts(ctx context.Context, domainName string, day time.Time) (success, failure int64, err error) {
	keys := []string{
		dailyKey(domainName, OutcomeSuccess, day),
		dailyKey(domainName, OutcomeFailure, day),
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis mget: %w", err)
	}
	return parseCount(vals[0]), parseCount(vals[1]), nil
}

func parseCount(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	for _, c := range str {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

func dailyKey(domainName, outcome string, t time.Time) string {
	return fmt.Sprintf("d:%s:gen:%s:day:%s", domainName, outcome, t.UTC().Format("20060102"))
}

func hourlyKey(domainName, outcome string, t time.Time) string {
	return fmt.Sprintf("d:%s:gen:%s:hour:%s", domainName, outcome, t.UTC().Format("2006010215"))
}
