package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SubmissionLimiter throttles grading requests per learner.
// A nil limiter allows everything.
type SubmissionLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSubmissionLimiter allows submissions per window for each learner. It returns nil
// when either value is not positive.
func NewSubmissionLimiter(submissions int, window time.Duration) *SubmissionLimiter {
	if submissions <= 0 || window <= 0 {
		return nil
	}
	return &SubmissionLimiter{
		limit:    rate.Every(window / time.Duration(submissions)),
		burst:    submissions,
		idle:     window * 3,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow reports whether learnerID may submit now.
func (l *SubmissionLimiter) Allow(learnerID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)
	v, ok := l.visitors[learnerID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[learnerID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweepLocked forgets learners idle for longer than three windows, at most once per window.
func (l *SubmissionLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle/3 {
		return
	}
	l.lastSweep = now
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, id)
		}
	}
}
