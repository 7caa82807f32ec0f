// Package scheduler runs the posting cadence for exactly one domain:
// an independent loop that enforces the daily post cap, invokes the
// content pipeline, and appends results to the domain's queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/queue"
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
)

// Generator produces one content record per cycle. Implemented by the
// content pipeline.
type Generator interface {
	Generate(ctx context.Context, domainName, category string, settings domain.Settings) (domain.ContentRecord, error)
}

// CronSchedule yields the next fire time for an optional cron cadence.
type CronSchedule interface {
	Next(after time.Time) time.Time
}

// MetricsSink records scheduling metrics. All methods must be
// non-blocking and fire-and-forget; nil disables metrics.
type MetricsSink interface {
	GenerationOutcome(domainName, outcome string)
	PostsToday(domainName string, count int)
	QueueLength(domainName string, length int)
}

// Outcome labels for MetricsSink.GenerationOutcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCapped  = "capped"
)

// Config carries the loop timing knobs. The historical panel hard-coded
// the backoffs (1h on cap, 30m on failure); they are configurable here
// with those values as defaults.
type Config struct {
	// CapBackoff is slept when the daily cap is reached, short enough
	// that a raised cap or midnight rollover is noticed promptly.
	CapBackoff time.Duration
	// RetryBackoff is slept after a failed generation cycle.
	RetryBackoff time.Duration
	// CheckGranularity bounds how long a Stop can go unobserved during
	// any sleep.
	CheckGranularity time.Duration
}

func (c Config) withDefaults() Config {
	if c.CapBackoff <= 0 {
		c.CapBackoff = time.Hour
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 30 * time.Minute
	}
	if c.CheckGranularity <= 0 {
		c.CheckGranularity = time.Minute
	}
	return c
}

// DomainScheduler owns one domain's schedule state. Stopped -> Running
// -> Stopped; no other states. All coordination with other domains goes
// through internally-synchronized collaborators (pipeline, key pool).
type DomainScheduler struct {
	domainName string
	settings   domain.Settings
	config     Config
	generator  Generator
	queue      *queue.Queue
	cron       CronSchedule // nil = fixed interval cadence
	metrics    MetricsSink  // nil = disabled
	clock      func() time.Time

	seedPosts int // applied to postsToday on Start

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
	postsToday    int
	lastResetDate string
	lastRunAt     time.Time
	startedAt     time.Time
}

func New(domainName string, settings domain.Settings, config Config, generator Generator, q *queue.Queue) *DomainScheduler {
	return &DomainScheduler{
		domainName: domainName,
		settings:   settings.Normalized(),
		config:     config.withDefaults(),
		generator:  generator,
		queue:      q,
		clock:      time.Now,
	}
}

// WithCron switches the cadence from the fixed interval to a cron schedule.
func (s *DomainScheduler) WithCron(sched CronSchedule) *DomainScheduler {
	s.cron = sched
	return s
}

// WithMetrics attaches a metrics sink.
func (s *DomainScheduler) WithMetrics(sink MetricsSink) *DomainScheduler {
	s.metrics = sink
	return s
}

// WithClock overrides the time source. Tests only.
func (s *DomainScheduler) WithClock(clock func() time.Time) *DomainScheduler {
	s.clock = clock
	return s
}

// WithPostsToday seeds today's post counter before Start, so records
// already archived for the current day keep counting against the cap
// after a process restart. The counter still resets on date rollover.
func (s *DomainScheduler) WithPostsToday(count int) *DomainScheduler {
	if count > 0 {
		s.seedPosts = count
	}
	return s
}

// Start transitions Stopped -> Running and launches the loop goroutine.
// A second Start while running returns ErrAlreadyRunning instead of
// silently succeeding or spawning a second loop.
func (s *DomainScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startedAt = s.clock()
	s.lastResetDate = dateOf(s.startedAt)
	s.postsToday = s.seedPosts

	go s.run(ctx, s.done)

	log.Printf("scheduler: started domain=%s interval=%dh cap=%d/day", s.domainName, s.settings.IntervalHours, s.settings.MaxPostsPerDay)
	return nil
}

// Stop flips the cooperative cancellation flag. The loop observes it
// within CheckGranularity, so stopping never waits out a full posting
// interval. Returns ErrNotRunning when already stopped.
func (s *DomainScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	s.cancel()
	s.running = false
	log.Printf("scheduler: stop requested domain=%s", s.domainName)
	return nil
}

// Done is closed when the loop goroutine has fully exited.
func (s *DomainScheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Running reports whether the loop is active.
func (s *DomainScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// State returns a snapshot of the schedule state.
func (s *DomainScheduler) State() domain.ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ScheduleState{
		Domain:        s.domainName,
		Running:       s.running,
		PostsToday:    s.postsToday,
		LastResetDate: s.lastResetDate,
		LastRunAt:     s.lastRunAt,
		StartedAt:     s.startedAt,
	}
}

// Queue exposes the domain's record queue for the registry's accessors.
func (s *DomainScheduler) Queue() *queue.Queue {
	return s.queue
}

func (s *DomainScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer log.Printf("scheduler: stopped domain=%s", s.domainName)

	for {
		if ctx.Err() != nil {
			return
		}
		wait := s.cycle(ctx)
		if !s.sleepOrCancel(ctx, wait) {
			return
		}
	}
}

// cycle executes one loop iteration and returns how long to sleep before
// the next one. Errors never escape: a failed or panicked cycle yields
// the retry backoff, not a dead loop.
func (s *DomainScheduler) cycle(ctx context.Context) time.Duration {
	now := s.clock()

	s.mu.Lock()
	if today := dateOf(now); today != s.lastResetDate {
		s.postsToday = 0
		s.lastResetDate = today
	}
	capped := s.postsToday >= s.settings.MaxPostsPerDay
	s.mu.Unlock()

	if capped {
		s.recordOutcome(OutcomeCapped)
		return s.config.CapBackoff
	}

	rec, err := s.generate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		log.Printf("scheduler: domain=%s generation failed: %v", s.domainName, err)
		s.recordOutcome(OutcomeFailure)
		return s.config.RetryBackoff
	}

	s.queue.Append(rec)

	s.mu.Lock()
	s.postsToday++
	s.lastRunAt = now
	posts := s.postsToday
	s.mu.Unlock()

	log.Printf("scheduler: domain=%s generated %q (%d/%d today)", s.domainName, rec.Title, posts, s.settings.MaxPostsPerDay)
	s.recordOutcome(OutcomeSuccess)
	if s.metrics != nil {
		s.metrics.PostsToday(s.domainName, posts)
		s.metrics.QueueLength(s.domainName, s.queue.Len())
	}

	return s.untilNext(now)
}

// generate wraps the pipeline call so a panic in a collaborator is
// contained to the cycle.
func (s *DomainScheduler) generate(ctx context.Context) (rec domain.ContentRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
		}
	}()
	return s.generator.Generate(ctx, s.domainName, s.settings.Category, s.settings)
}

func (s *DomainScheduler) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.GenerationOutcome(s.domainName, outcome)
	}
}

// untilNext computes the post-success sleep: the cron schedule when one
// is configured, otherwise the fixed posting interval.
func (s *DomainScheduler) untilNext(now time.Time) time.Duration {
	if s.cron != nil {
		next := s.cron.Next(now)
		if wait := next.Sub(now); wait > 0 {
			return wait
		}
		return s.config.CheckGranularity
	}
	return time.Duration(s.settings.IntervalHours) * time.Hour
}

// sleepOrCancel sleeps d in CheckGranularity slices, bailing out as soon
// as the context is cancelled. Returns false when cancelled.
func (s *DomainScheduler) sleepOrCancel(ctx context.Context, d time.Duration) bool {
	deadline := s.clock().Add(d)

	for {
		remaining := deadline.Sub(s.clock())
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > s.config.CheckGranularity {
			slice = s.config.CheckGranularity
		}

		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return false
		case <-timer.C:
		}
	}
}

func dateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
