// Package keypool shares a small set of rate-limited API credentials
// between all domain schedulers. Each credential carries a rolling log of
// request timestamps; the pool rotates round-robin away from credentials
// approaching their hourly ceiling.
package keypool

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var ErrNoCredentials = errors.New("no credentials configured")

// MetricsSink records pool activity. Implementations must not block;
// calls are made with the pool lock held. nil disables metrics.
type MetricsSink interface {
	KeyRotation(reason string)
	KeyUtilization(credential string, count int)
}

// Rotation reasons reported to the metrics sink.
const (
	rotationCeiling  = "ceiling"
	rotationDegraded = "degraded"
	rotationThrottle = "throttle"
)

const (
	DefaultCeiling      = 1000
	DefaultSafetyBuffer = 10

	window = time.Hour
)

// Credential identifies one rate-limited access token.
type Credential struct {
	Key string
}

type entry struct {
	key      string
	requests []time.Time
}

// Pool owns the credential set. All mutation of the cursor and the
// per-credential logs happens under a single mutex; the pool is shared
// by every running domain scheduler.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	cursor  int

	ceiling int
	buffer  int
	clock   func() time.Time
	metrics MetricsSink
}

// New builds a pool over the given keys. Empty keys are dropped.
func New(keys []string) *Pool {
	p := &Pool{
		ceiling: DefaultCeiling,
		buffer:  DefaultSafetyBuffer,
		clock:   time.Now,
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		p.entries = append(p.entries, &entry{key: k})
	}
	return p
}

// WithLimits overrides the hourly ceiling and safety buffer.
func (p *Pool) WithLimits(ceiling, buffer int) *Pool {
	if ceiling > 0 {
		p.ceiling = ceiling
	}
	if buffer >= 0 {
		p.buffer = buffer
	}
	return p
}

// WithClock overrides the time source. Tests only.
func (p *Pool) WithClock(clock func() time.Time) *Pool {
	p.clock = clock
	return p
}

// WithMetrics attaches a metrics sink.
func (p *Pool) WithMetrics(sink MetricsSink) *Pool {
	p.metrics = sink
	return p
}

// Size returns the number of configured credentials.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Acquire returns the currently-selected credential without blocking.
// A credential whose trailing-hour request count reaches ceiling-buffer
// is skipped and the cursor advances. When every credential is saturated
// the least-utilized one is returned anyway: the remote service is
// authoritative and availability beats strict local enforcement.
func (p *Pool) Acquire() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return Credential{}, ErrNoCredentials
	}

	now := p.clock()
	limit := p.ceiling - p.buffer

	for i := 0; i < len(p.entries); i++ {
		idx := (p.cursor + i) % len(p.entries)
		e := p.entries[idx]
		if p.countLocked(e, now) < limit {
			if idx != p.cursor {
				log.Printf("keypool: rotated to credential %d", idx)
				p.cursor = idx
				if p.metrics != nil {
					p.metrics.KeyRotation(rotationCeiling)
				}
			}
			return Credential{Key: e.key}, nil
		}
	}

	// All saturated: degrade to the least-utilized credential.
	best := p.cursor
	bestCount := p.countLocked(p.entries[best], now)
	for i := range p.entries {
		if c := p.countLocked(p.entries[i], now); c < bestCount {
			best, bestCount = i, c
		}
	}
	log.Printf("keypool: all credentials saturated, using least-utilized %d (count=%d)", best, bestCount)
	p.cursor = best
	if p.metrics != nil {
		p.metrics.KeyRotation(rotationDegraded)
	}
	return Credential{Key: p.entries[best].key}, nil
}

// Record appends the current timestamp to the credential's request log.
// Callers must invoke it immediately after each successful remote call.
func (p *Pool) Record(cred Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	for i, e := range p.entries {
		if e.key == cred.Key {
			e.requests = append(e.requests, now)
			if p.metrics != nil {
				// Credentials are secrets; label by position only.
				p.metrics.KeyUtilization(fmt.Sprintf("credential-%d", i), p.countLocked(e, now))
			}
			return
		}
	}
}

// RotateOnThrottle advances the cursor unconditionally. A live throttle
// response from the remote service wins over the local estimate.
func (p *Pool) RotateOnThrottle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) < 2 {
		return
	}
	p.cursor = (p.cursor + 1) % len(p.entries)
	log.Printf("keypool: throttled, rotated to credential %d", p.cursor)
	if p.metrics != nil {
		p.metrics.KeyRotation(rotationThrottle)
	}
}

// Utilization reports the trailing-hour request count per credential key.
func (p *Pool) Utilization() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	out := make(map[string]int, len(p.entries))
	for _, e := range p.entries {
		out[e.key] = p.countLocked(e, now)
	}
	return out
}

// countLocked prunes expired timestamps and returns the in-window count.
// Caller holds p.mu.
func (p *Pool) countLocked(e *entry, now time.Time) int {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(e.requests); i++ {
		if e.requests[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		e.requests = append(e.requests[:0], e.requests[i:]...)
	}
	return len(e.requests)
}
