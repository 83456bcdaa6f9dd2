package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ChatThrottle keeps one token bucket per chat.
type ChatThrottle struct {
	mu       sync.Mutex
	limiters map[int64]*chatLimiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

func NewChatThrottle(perSecond float64, burst int) *ChatThrottle {
	if burst < 1 {
		burst = 1
	}
	return &ChatThrottle{
		limiters: make(map[int64]*chatLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow takes a token from the chat's bucket.
func (t *ChatThrottle) Allow(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cl, ok := t.limiters[chatID]
	if !ok {
		cl = &chatLimiter{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[chatID] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Prune drops buckets idle for longer than maxIdle and returns how many
// were removed.
func (t *ChatThrottle) Prune(maxIdle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxIdle)
	removed := 0
	for id, cl := range t.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(t.limiters, id)
			removed++
		}
	}
	return removed
}

// StartPruning prunes idle buckets every interval until stop is closed.
func (t *ChatThrottle) StartPruning(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Prune(maxIdle)
			case <-stop:
				return
			}
		}
	}()
}
