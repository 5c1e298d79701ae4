package alerts

import (
	"sync"
	"time"
)

// throttler is a token bucket limiting alerts per minute.
type throttler struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	bucketSize float64
	tokens     float64
	lastUpdate time.Time
}

func newThrottler(ratePerMinute int) *throttler {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &throttler{
		rate:       float64(ratePerMinute) / 60.0,
		bucketSize: float64(ratePerMinute),
		tokens:     float64(ratePerMinute),
		lastUpdate: time.Now(),
	}
}

// Allow consumes one token if available.
func (t *throttler) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()
	if t.tokens >= 1 {
		t.tokens--
		return true
	}
	return false
}

func (t *throttler) refill() {
	now := time.Now()
	elapsed := now.Sub(t.lastUpdate).Seconds()
	t.lastUpdate = now

	t.tokens += t.rate * elapsed
	if t.tokens > t.bucketSize {
		t.tokens = t.bucketSize
	}
}
