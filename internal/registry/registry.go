// Package registry manages the set of active domain schedulers: at most
// one per domain identity, with start/stop/status/queue operations for
// the presentation layer.
package registry

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/queue"
	"github.com/tontroys3/AutoWebBuilder/internal/scheduler"
)

var (
	ErrAlreadyActive = errors.New("auto posting already active for this domain")
	ErrNotActive     = errors.New("auto posting not active for this domain")

	// ErrDuplicateRecord is returned by ArchiveSink implementations when
	// the record was already persisted.
	ErrDuplicateRecord = errors.New("record already archived")
)

// CronParser parses a cron expression into a schedule. Implemented by
// internal/cron.
type CronParser interface {
	Parse(expression string) (scheduler.CronSchedule, error)
}

// ArchiveSink persists generated records outside the in-memory queue.
// Optional; nil disables archiving. Failures are logged, never fatal.
type ArchiveSink interface {
	SaveRecord(ctx context.Context, rec domain.ContentRecord) error
}

// DailyCounter is an optional ArchiveSink capability: how many records a
// domain archived since the given day start. When the archive supports
// it, StartFor seeds the daily cap counter so a mid-day restart cannot
// double a domain's cap.
type DailyCounter interface {
	CountToday(ctx context.Context, domainName string, dayStart time.Time) (int, error)
}

// AnalyticsSink counts generation outcomes for the panel's activity
// charts. Optional; nil disables. Failures are logged, never fatal.
type AnalyticsSink interface {
	RecordGeneration(ctx context.Context, domainName, outcome string, at time.Time) error
}

// Status is the per-domain view the presentation layer consumes.
type Status struct {
	Domain      string
	Active      bool
	QueueLength int
	PostsToday  int
	LastRunAt   time.Time
	StartedAt   time.Time
}

type entry struct {
	sched *scheduler.DomainScheduler
	queue *queue.Queue
}

// Registry keys schedulers by domain. The map is guarded by its own
// mutex, separate from each scheduler's internal state guard; the lock
// is never held across a scheduler's loop work.
type Registry struct {
	config    scheduler.Config
	generator scheduler.Generator
	parser    CronParser
	metrics   scheduler.MetricsSink
	archive   ArchiveSink
	analytics AnalyticsSink
	clock     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func New(config scheduler.Config, generator scheduler.Generator) *Registry {
	return &Registry{
		config:    config,
		generator: generator,
		clock:     time.Now,
		entries:   make(map[string]*entry),
	}
}

// WithCronParser enables per-domain cron-expression cadences.
func (r *Registry) WithCronParser(parser CronParser) *Registry {
	r.parser = parser
	return r
}

// WithMetrics attaches a metrics sink handed to every scheduler.
func (r *Registry) WithMetrics(sink scheduler.MetricsSink) *Registry {
	r.metrics = sink
	return r
}

// WithArchive attaches a persistence sink for generated records.
func (r *Registry) WithArchive(sink ArchiveSink) *Registry {
	r.archive = sink
	return r
}

// WithAnalytics attaches an outcome counter sink.
func (r *Registry) WithAnalytics(sink AnalyticsSink) *Registry {
	r.analytics = sink
	return r
}

// WithClock overrides the time source handed to schedulers. Tests only.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// StartFor creates and starts the scheduler for a domain. Exactly one
// caller wins when invoked concurrently for the same domain; the rest
// get ErrAlreadyActive.
func (r *Registry) StartFor(domainName string, settings domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		prev, ok := r.entries[domainName]
		if !ok {
			break
		}
		if prev.sched.Running() {
			return ErrAlreadyActive
		}
		// Stop flips Running before the loop goroutine exits; wait the
		// old loop out (lock released) so an in-flight cycle cannot
		// append alongside the replacement's first cycle.
		done := prev.sched.Done()
		select {
		case <-done:
		default:
			r.mu.Unlock()
			<-done
			r.mu.Lock()
			continue
		}
		break
	}

	// A stopped entry keeps its queue across restarts so queued content
	// stays inspectable.
	q := queue.New()
	if e, ok := r.entries[domainName]; ok {
		q = e.queue
	}

	gen := r.generator
	if r.archive != nil {
		gen = &archivingGenerator{next: gen, archive: r.archive}
	}
	if r.analytics != nil {
		gen = &analyticsGenerator{next: gen, analytics: r.analytics, clock: r.clock}
	}

	sched := scheduler.New(domainName, settings, r.config, gen, q).
		WithClock(r.clock)
	if r.metrics != nil {
		sched.WithMetrics(r.metrics)
	}
	if expr := settings.CronExpression; expr != "" && r.parser != nil {
		cronSched, err := r.parser.Parse(expr)
		if err != nil {
			log.Printf("registry: domain=%s invalid cron %q, using interval cadence: %v", domainName, expr, err)
		} else {
			sched.WithCron(cronSched)
		}
	}

	// Records archived earlier today still count against the daily cap.
	if counter, ok := r.archive.(DailyCounter); ok {
		now := r.clock()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		count, err := counter.CountToday(context.Background(), domainName, dayStart)
		if err != nil {
			log.Printf("registry: domain=%s cap seed failed, counting from zero: %v", domainName, err)
		} else if count > 0 {
			sched.WithPostsToday(count)
			log.Printf("registry: domain=%s seeded %d posts from today's archive", domainName, count)
		}
	}

	if err := sched.Start(); err != nil {
		return err
	}
	r.entries[domainName] = &entry{sched: sched, queue: q}
	return nil
}

// StopFor stops the domain's scheduler. The entry is retained so queue
// contents and last-run metadata remain inspectable after stopping.
func (r *Registry) StopFor(domainName string) error {
	r.mu.Lock()
	e, ok := r.entries[domainName]
	r.mu.Unlock()

	if !ok {
		return ErrNotActive
	}
	if err := e.sched.Stop(); err != nil {
		if errors.Is(err, scheduler.ErrNotRunning) {
			return ErrNotActive
		}
		return err
	}
	return nil
}

// StatusFor reports the domain's schedule and queue state. Unknown
// domains report inactive with an empty queue.
func (r *Registry) StatusFor(domainName string) Status {
	r.mu.Lock()
	e, ok := r.entries[domainName]
	r.mu.Unlock()

	if !ok {
		return Status{Domain: domainName}
	}
	st := e.sched.State()
	return Status{
		Domain:      domainName,
		Active:      st.Running,
		QueueLength: e.queue.Len(),
		PostsToday:  st.PostsToday,
		LastRunAt:   st.LastRunAt,
		StartedAt:   st.StartedAt,
	}
}

// QueueFor returns a read-only snapshot of the domain's queue.
func (r *Registry) QueueFor(domainName string) []domain.ContentRecord {
	r.mu.Lock()
	e, ok := r.entries[domainName]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return e.queue.Snapshot()
}

// ClearQueueFor empties the domain's queue after the presentation layer
// has consumed the records.
func (r *Registry) ClearQueueFor(domainName string) error {
	r.mu.Lock()
	e, ok := r.entries[domainName]
	r.mu.Unlock()

	if !ok {
		return ErrNotActive
	}
	e.queue.Clear()
	return nil
}

// Domains returns the status of every known domain, sorted by name, for
// the panel's grid view.
func (r *Registry) Domains() []Status {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	out := make([]Status, 0, len(names))
	for _, name := range names {
		out = append(out, r.StatusFor(name))
	}
	return out
}

// StopAll stops every running scheduler and waits for the loops to exit
// or the context to expire. Used during shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	scheds := make([]*scheduler.DomainScheduler, 0, len(r.entries))
	for _, e := range r.entries {
		scheds = append(scheds, e.sched)
	}
	r.mu.Unlock()

	for _, s := range scheds {
		if err := s.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			log.Printf("registry: stop: %v", err)
		}
	}
	for _, s := range scheds {
		select {
		case <-s.Done():
		case <-ctx.Done():
			log.Printf("registry: shutdown wait expired")
			return
		}
	}
}

// archivingGenerator persists each successful record as a best-effort
// side effect before it reaches the queue.
type archivingGenerator struct {
	next    scheduler.Generator
	archive ArchiveSink
}

func (g *archivingGenerator) Generate(ctx context.Context, domainName, category string, settings domain.Settings) (domain.ContentRecord, error) {
	rec, err := g.next.Generate(ctx, domainName, category, settings)
	if err != nil {
		return rec, err
	}
	if archiveErr := g.archive.SaveRecord(ctx, rec); archiveErr != nil && !errors.Is(archiveErr, ErrDuplicateRecord) {
		log.Printf("registry: domain=%s archive failed: %v", domainName, archiveErr)
	}
	return rec, nil
}

// analyticsGenerator counts every cycle's outcome as a best-effort side
// effect.
type analyticsGenerator struct {
	next      scheduler.Generator
	analytics AnalyticsSink
	clock     func() time.Time
}

func (g *analyticsGenerator) Generate(ctx context.Context, domainName, category string, settings domain.Settings) (domain.ContentRecord, error) {
	rec, err := g.next.Generate(ctx, domainName, category, settings)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if recordErr := g.analytics.RecordGeneration(ctx, domainName, outcome, g.clock()); recordErr != nil {
		log.Printf("registry: domain=%s analytics failed: %v", domainName, recordErr)
	}
	return rec, err
}
