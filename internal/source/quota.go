package source

import (
	"sync"
	"time"
)

// quota enforces a source's daily request budget. The counter resets lazily:
// the first allowance check observed after resetAt zeroes the count and
// advances the window by 24h, so no background timer is needed.
type quota struct {
	mu      sync.Mutex
	limit   int
	used    int
	resetAt time.Time
}

func newQuota(limit int, now time.Time) *quota {
	return &quota{limit: limit, resetAt: now.Add(24 * time.Hour)}
}

// allow consumes one request from the budget if any remains. A non-positive
// limit means the source is unmetered.
func (q *quota) allow(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if now.After(q.resetAt) {
		q.used = 0
		q.resetAt = now.Add(24 * time.Hour)
	}
	if q.limit <= 0 {
		return true
	}
	if q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

// snapshot reports the current usage for status endpoints.
func (q *quota) snapshot() (used, limit int, resetAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used, q.limit, q.resetAt
}
