package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	generationOutcomes *prometheus.CounterVec
	postsToday         *prometheus.GaugeVec
	queueLength        *prometheus.GaugeVec

	// Key pool metrics
	keyRotationsTotal *prometheus.CounterVec
	keyUtilization    *prometheus.GaugeVec

	// Outbound API metrics
	apiCallsTotal   *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec

	// Leader election metrics
	leaderStatus    prometheus.Gauge
	leaderAcquired  prometheus.Counter
	leaderLostTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initKeyPoolMetrics(reg)
	s.initAPIMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.generationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autocontent_generation_outcomes_total",
		Help: "Total generation cycle outcomes per domain.",
	}, []string{"domain", "outcome"})

	s.postsToday = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autocontent_posts_today",
		Help: "Posts generated today per domain.",
	}, []string{"domain"})

	s.queueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autocontent_queue_length",
		Help: "Pending records in each domain's content queue.",
	}, []string{"domain"})

	s.register(reg, s.generationOutcomes, "autocontent_generation_outcomes_total")
	s.register(reg, s.postsToday, "autocontent_posts_today")
	s.register(reg, s.queueLength, "autocontent_queue_length")
}

func (s *PrometheusSink) initKeyPoolMetrics(reg prometheus.Registerer) {
	s.keyRotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autocontent_keypool_rotations_total",
		Help: "Credential rotations by reason (ceiling, degraded, throttle).",
	}, []string{"reason"})

	s.keyUtilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autocontent_keypool_utilization",
		Help: "Trailing-hour request count per credential.",
	}, []string{"credential"})

	s.register(reg, s.keyRotationsTotal, "autocontent_keypool_rotations_total")
	s.register(reg, s.keyUtilization, "autocontent_keypool_utilization")
}

func (s *PrometheusSink) initAPIMetrics(reg prometheus.Registerer) {
	s.apiCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autocontent_api_calls_total",
		Help: "Outbound API calls by target and status class.",
	}, []string{"target", "status_class"})

	s.apiCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autocontent_api_call_duration_seconds",
		Help:    "Outbound API request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"target"})

	s.register(reg, s.apiCallsTotal, "autocontent_api_calls_total")
	s.register(reg, s.apiCallDuration, "autocontent_api_call_duration_seconds")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autocontent_leader_status",
		Help: "1 when this instance holds the scheduler leadership lock.",
	})

	s.leaderAcquired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autocontent_leader_acquired_total",
		Help: "Times this instance acquired leadership.",
	})

	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autocontent_leader_lost_total",
		Help: "Times this instance lost leadership, by reason.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "autocontent_leader_status")
	s.register(reg, s.leaderAcquired, "autocontent_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "autocontent_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) GenerationOutcome(domain, outcome string) {
	s.generationOutcomes.WithLabelValues(domain, outcome).Inc()
}

func (s *PrometheusSink) PostsToday(domain string, count int) {
	s.postsToday.WithLabelValues(domain).Set(float64(count))
}

func (s *PrometheusSink) QueueLength(domain string, length int) {
	s.queueLength.WithLabelValues(domain).Set(float64(length))
}

func (s *PrometheusSink) KeyRotation(reason string) {
	s.keyRotationsTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) KeyUtilization(credential string, count int) {
	s.keyUtilization.WithLabelValues(credential).Set(float64(count))
}

func (s *PrometheusSink) APICallCompleted(target, statusClass string, duration time.Duration) {
	s.apiCallsTotal.WithLabelValues(target, statusClass).Inc()
	s.apiCallDuration.WithLabelValues(target).Observe(duration.Seconds())
}

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquired.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}

// Verify PrometheusSink implements Sink.
var _ Sink = (*PrometheusSink)(nil)
