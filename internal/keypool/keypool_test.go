package keypool

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAcquire_Empty(t *testing.T) {
	p := New(nil)

	_, err := p.Acquire()
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestAcquire_DropsEmptyKeys(t *testing.T) {
	p := New([]string{"", "key-a", ""})
	if p.Size() != 1 {
		t.Fatalf("expected 1 credential, got %d", p.Size())
	}
}

// TestAcquire_RotatesNearCeiling: with ceiling 5 and buffer 1, a credential
// with 4 recorded requests in the window is saturated and the pool must
// hand out the next one.
func TestAcquire_RotatesNearCeiling(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := New([]string{"key-1", "key-2", "key-3"}).
		WithLimits(5, 1).
		WithClock(fixedClock(now))

	for i := 0; i < 4; i++ {
		cred, err := p.Acquire()
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if cred.Key != "key-1" {
			t.Fatalf("acquire %d: expected key-1, got %s", i, cred.Key)
		}
		p.Record(cred)
	}

	cred, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire after saturation: %v", err)
	}
	if cred.Key != "key-2" {
		t.Fatalf("expected rotation to key-2, got %s", cred.Key)
	}
}

func TestAcquire_AllSaturatedReturnsLeastUtilized(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := New([]string{"key-1", "key-2"}).
		WithLimits(3, 1).
		WithClock(fixedClock(now))

	// key-1: 3 requests, key-2: 2 requests. Both at or past ceiling-buffer.
	for i := 0; i < 3; i++ {
		p.Record(Credential{Key: "key-1"})
	}
	for i := 0; i < 2; i++ {
		p.Record(Credential{Key: "key-2"})
	}

	cred, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if cred.Key != "key-2" {
		t.Fatalf("expected least-utilized key-2, got %s", cred.Key)
	}
}

func TestAcquire_WindowExpiry(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	p := New([]string{"key-1", "key-2"}).
		WithLimits(2, 1).
		WithClock(clock)

	p.Record(Credential{Key: "key-1"})

	// key-1 saturated right now.
	cred, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if cred.Key != "key-2" {
		t.Fatalf("expected key-2 while key-1 saturated, got %s", cred.Key)
	}

	// After the window passes, key-1's log is pruned and it becomes
	// eligible again (cursor is on key-2, which stays eligible too).
	mu.Lock()
	current = base.Add(61 * time.Minute)
	mu.Unlock()

	util := p.Utilization()
	if util["key-1"] != 0 {
		t.Fatalf("expected pruned log for key-1, got %d", util["key-1"])
	}
}

func TestRotateOnThrottle(t *testing.T) {
	p := New([]string{"key-1", "key-2", "key-3"})

	cred, _ := p.Acquire()
	if cred.Key != "key-1" {
		t.Fatalf("expected key-1, got %s", cred.Key)
	}

	p.RotateOnThrottle()

	cred, _ = p.Acquire()
	if cred.Key != "key-2" {
		t.Fatalf("expected key-2 after throttle, got %s", cred.Key)
	}
}

func TestRotateOnThrottle_SingleCredentialNoop(t *testing.T) {
	p := New([]string{"only"})
	p.RotateOnThrottle()

	cred, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if cred.Key != "only" {
		t.Fatalf("expected only, got %s", cred.Key)
	}
}

// TestConcurrentAccess exercises the mutex under contention; run with -race.
func TestConcurrentAccess(t *testing.T) {
	p := New([]string{"key-1", "key-2", "key-3"}).WithLimits(100, 10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cred, err := p.Acquire()
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				p.Record(cred)
				if j%10 == 0 {
					p.RotateOnThrottle()
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range p.Utilization() {
		total += n
	}
	if total != 8*50 {
		t.Fatalf("expected 400 recorded requests, got %d", total)
	}
}

type recordingSink struct {
	mu        sync.Mutex
	rotations []string
	counts    map[string]int
}

func (s *recordingSink) KeyRotation(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotations = append(s.rotations, reason)
}

func (s *recordingSink) KeyUtilization(credential string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[credential] = count
}

func TestMetricsSinkObservesRotationsAndCounts(t *testing.T) {
	sink := &recordingSink{}
	p := New([]string{"key-1", "key-2"}).WithLimits(5, 1).WithMetrics(sink)

	cred, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Record(cred)
	p.Record(cred)
	p.RotateOnThrottle()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.rotations) != 1 || sink.rotations[0] != "throttle" {
		t.Fatalf("rotations = %v, want [throttle]", sink.rotations)
	}
	if sink.counts["credential-0"] != 2 {
		t.Fatalf("credential-0 count = %d, want 2", sink.counts["credential-0"])
	}
}
