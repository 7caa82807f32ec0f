// Package queue buffers generated content records for one domain until
// the presentation layer consumes them.
package queue

import (
	"sync"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
)

// Queue is an insertion-ordered record buffer. Appends come from the
// domain's scheduler loop; snapshots and clears come from the registry's
// read accessors, so every access is serialized by the internal mutex.
type Queue struct {
	mu      sync.Mutex
	records []domain.ContentRecord
}

func New() *Queue {
	return &Queue{}
}

// Append adds a record at the tail. Records are never reordered or
// deduplicated here.
func (q *Queue) Append(rec domain.ContentRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, rec)
}

// Snapshot returns a copy of the queue contents without draining.
func (q *Queue) Snapshot() []domain.ContentRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.ContentRecord, len(q.records))
	copy(out, q.records)
	return out
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = nil
}
