package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) GenerationOutcome(domain, outcome string)                          {}
func (n *NoopSink) PostsToday(domain string, count int)                               {}
func (n *NoopSink) QueueLength(domain string, length int)                             {}
func (n *NoopSink) KeyRotation(reason string)                                         {}
func (n *NoopSink) KeyUtilization(credential string, count int)                       {}
func (n *NoopSink) APICallCompleted(target, statusClass string, d time.Duration)      {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                 {}
func (n *NoopSink) LeaderAcquired()                                                   {}
func (n *NoopSink) LeaderLost(reason string)                                          {}
