// Package retention prunes old archived content records.
//
// The archive grows without bound otherwise: every generated record is
// written and nothing ever deletes it. The sweeper periodically removes
// records older than the configured age, in bounded batches so a large
// backlog cannot hold a long-running delete against the table.
package retention

import (
	"context"
	"log"
	"time"
)

// Store deletes archived records older than a cutoff.
type Store interface {
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Config holds sweeper configuration.
type Config struct {
	// Interval is how often the sweeper runs.
	// Default: 12 hours.
	Interval time.Duration

	// MaxAge is how long archived records are kept.
	// Default: 90 days.
	MaxAge time.Duration

	// BatchSize is the maximum number of records deleted per statement.
	// Default: 500.
	BatchSize int
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  12 * time.Hour,
		MaxAge:    90 * 24 * time.Hour,
		BatchSize: 500,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}

// Sweeper deletes expired archive records on a fixed interval.
type Sweeper struct {
	config Config
	store  Store
	clock  func() time.Time
}

func New(config Config, store Store) *Sweeper {
	return &Sweeper{
		config: config.withDefaults(),
		store:  store,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Printf("retention: started (interval=%s, max_age=%s, batch=%d)",
		s.config.Interval, s.config.MaxAge, s.config.BatchSize)

	// Run immediately on startup, then on ticker
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("retention: stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle deletes expired records batch by batch until the table is
// clean or the context is cancelled.
func (s *Sweeper) runCycle(ctx context.Context) {
	cutoff := s.clock().UTC().Add(-s.config.MaxAge)

	var total int64
	for {
		if ctx.Err() != nil {
			log.Printf("retention: cycle interrupted, deleted=%d", total)
			return
		}

		deleted, err := s.store.DeleteRecordsBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			// DB error: log and abort cycle. Will retry next interval.
			log.Printf("retention: delete failed: %v", err)
			return
		}
		total += deleted

		if deleted < int64(s.config.BatchSize) {
			break
		}
	}

	if total > 0 {
		log.Printf("retention: cycle complete, deleted=%d (cutoff=%s)",
			total, cutoff.Format(time.RFC3339))
	}
}
