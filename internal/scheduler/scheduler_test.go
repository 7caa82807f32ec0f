package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/queue"
	"github.com/tontroys3/AutoWebBuilder/internal/testutil"
)

// mockGenerator counts calls and returns canned records or errors.
type mockGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
	panic bool
}

func (g *mockGenerator) Generate(ctx context.Context, domainName, category string, settings domain.Settings) (domain.ContentRecord, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if g.panic {
		panic("collaborator exploded")
	}
	if g.err != nil {
		return domain.ContentRecord{}, g.err
	}
	return domain.ContentRecord{Domain: domainName, Title: fmt.Sprintf("title-%d", n)}, nil
}

func (g *mockGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testConfig() Config {
	return Config{
		CapBackoff:       time.Hour,
		RetryBackoff:     30 * time.Minute,
		CheckGranularity: 5 * time.Millisecond,
	}
}

func newTestScheduler(gen Generator, settings domain.Settings, clk *testutil.FakeClock) (*DomainScheduler, *queue.Queue) {
	q := queue.New()
	s := New("a.com", settings, testConfig(), gen, q)
	if clk != nil {
		s.WithClock(clk.Now)
	}
	return s, q
}

func TestStartStop_Preconditions(t *testing.T) {
	gen := &mockGenerator{err: errors.New("not relevant")}
	s, _ := newTestScheduler(gen, domain.Settings{IntervalHours: 1}, nil)

	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop before Start: expected ErrNotRunning, got %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: expected ErrAlreadyRunning, got %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second Stop: expected ErrNotRunning, got %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
}

// TestStop_PromptDuringSleep verifies the loop observes cancellation at
// sub-interval granularity instead of waiting out the posting interval.
func TestStop_PromptDuringSleep(t *testing.T) {
	gen := &mockGenerator{}
	s, _ := newTestScheduler(gen, domain.Settings{IntervalHours: 6, MaxPostsPerDay: 10}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the first cycle complete and enter its 6h interval sleep.
	deadline := time.Now().Add(2 * time.Second)
	for gen.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if gen.callCount() == 0 {
		t.Fatal("first cycle never ran")
	}

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		<-s.Done()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop not observed within the check granularity")
	}

	if s.Running() {
		t.Fatal("scheduler still reports running after Stop")
	}
}

func TestCycle_SuccessAppendsAndCounts(t *testing.T) {
	clk := testutil.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	gen := &mockGenerator{}
	s, q := newTestScheduler(gen, domain.Settings{IntervalHours: 2, MaxPostsPerDay: 2}, clk)
	s.lastResetDate = dateOf(clk.Now())

	wait := s.cycle(context.Background())
	if wait != 2*time.Hour {
		t.Fatalf("expected posting-interval sleep of 2h, got %s", wait)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued record, got %d", q.Len())
	}
	if st := s.State(); st.PostsToday != 1 {
		t.Fatalf("expected postsToday=1, got %d", st.PostsToday)
	}
}

func TestCycle_DailyCapDefers(t *testing.T) {
	clk := testutil.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	gen := &mockGenerator{}
	s, q := newTestScheduler(gen, domain.Settings{IntervalHours: 1, MaxPostsPerDay: 2}, clk)
	s.lastResetDate = dateOf(clk.Now())

	ctx := context.Background()
	s.cycle(ctx)
	s.cycle(ctx)

	if q.Len() != 2 {
		t.Fatalf("expected 2 records before the cap, got %d", q.Len())
	}

	// Third cycle the same day: deferred with the cap backoff, no record.
	wait := s.cycle(ctx)
	if wait != time.Hour {
		t.Fatalf("expected cap backoff of 1h, got %s", wait)
	}
	if q.Len() != 2 {
		t.Fatalf("capped cycle appended a record: queue=%d", q.Len())
	}
	if gen.callCount() != 2 {
		t.Fatalf("capped cycle invoked the generator: calls=%d", gen.callCount())
	}
}

func TestCycle_DateRolloverResetsCounter(t *testing.T) {
	clk := testutil.NewFakeClock(time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC))
	gen := &mockGenerator{}
	s, q := newTestScheduler(gen, domain.Settings{IntervalHours: 1, MaxPostsPerDay: 1}, clk)
	s.lastResetDate = dateOf(clk.Now())

	ctx := context.Background()
	s.cycle(ctx)
	if wait := s.cycle(ctx); wait != time.Hour {
		t.Fatalf("expected capped cycle, got wait=%s", wait)
	}

	// Midnight passes: the counter resets before the next generation.
	clk.Advance(2 * time.Hour)
	if wait := s.cycle(ctx); wait != time.Hour {
		// IntervalHours=1, so a success sleeps the 1h interval.
		t.Fatalf("expected successful post-rollover cycle, got wait=%s", wait)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 records across the rollover, got %d", q.Len())
	}
	if st := s.State(); st.PostsToday != 1 {
		t.Fatalf("expected postsToday reset then incremented to 1, got %d", st.PostsToday)
	}
}

func TestCycle_FailureUsesRetryBackoffAndNoIncrement(t *testing.T) {
	clk := testutil.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	gen := &mockGenerator{err: errors.New("titles empty")}
	s, q := newTestScheduler(gen, domain.Settings{IntervalHours: 1, MaxPostsPerDay: 5}, clk)
	s.lastResetDate = dateOf(clk.Now())

	wait := s.cycle(context.Background())
	if wait != 30*time.Minute {
		t.Fatalf("expected retry backoff of 30m, got %s", wait)
	}
	if q.Len() != 0 {
		t.Fatal("failed cycle appended a record")
	}
	if st := s.State(); st.PostsToday != 0 {
		t.Fatalf("failed cycle incremented postsToday to %d", st.PostsToday)
	}
}

func TestCycle_PanicContained(t *testing.T) {
	clk := testutil.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	gen := &mockGenerator{panic: true}
	s, _ := newTestScheduler(gen, domain.Settings{IntervalHours: 1, MaxPostsPerDay: 5}, clk)
	s.lastResetDate = dateOf(clk.Now())

	wait := s.cycle(context.Background())
	if wait != 30*time.Minute {
		t.Fatalf("expected panic to be treated as cycle failure, got wait=%s", wait)
	}
}

type fixedCron struct{ next time.Time }

func (c fixedCron) Next(after time.Time) time.Time { return c.next }

func TestUntilNext_CronOverridesInterval(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	gen := &mockGenerator{}
	s, _ := newTestScheduler(gen, domain.Settings{IntervalHours: 6}, testutil.NewFakeClock(now))
	s.WithCron(fixedCron{next: now.Add(45 * time.Minute)})

	if wait := s.untilNext(now); wait != 45*time.Minute {
		t.Fatalf("expected 45m until cron fire, got %s", wait)
	}
}

func TestUntilNext_CronInPastFallsBackToGranularity(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	gen := &mockGenerator{}
	s, _ := newTestScheduler(gen, domain.Settings{IntervalHours: 6}, testutil.NewFakeClock(now))
	s.WithCron(fixedCron{next: now.Add(-time.Minute)})

	if wait := s.untilNext(now); wait != s.config.CheckGranularity {
		t.Fatalf("expected granularity fallback, got %s", wait)
	}
}

// TestStart_SeededPostsCountAgainstCap: a counter seeded before Start
// puts the loop straight into cap deferral, and the seed still clears on
// date rollover like any other day's posts.
func TestStart_SeededPostsCountAgainstCap(t *testing.T) {
	clk := testutil.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	gen := &mockGenerator{}
	s, q := newTestScheduler(gen, domain.Settings{IntervalHours: 1, MaxPostsPerDay: 2}, clk)
	s.WithPostsToday(2)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Stop()
		<-s.Done()
	})

	if st := s.State(); st.PostsToday != 2 {
		t.Fatalf("expected seeded postsToday=2, got %d", st.PostsToday)
	}

	time.Sleep(50 * time.Millisecond)
	if gen.callCount() != 0 || q.Len() != 0 {
		t.Fatalf("seeded-capped scheduler generated: calls=%d queue=%d", gen.callCount(), q.Len())
	}

	// Midnight passes: the rollover clears the seeded counter.
	clk.Advance(15 * time.Hour)
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if q.Len() != 1 {
		t.Fatalf("expected a post after rollover, got queue=%d", q.Len())
	}
}
