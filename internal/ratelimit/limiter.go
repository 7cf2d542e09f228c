// Package ratelimit provides the token-pacing gate consulted before every
// outbound request to the remote catalog service.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultRequestsPerSecond matches the remote service's sustained
	// request budget for a standard plan.
	DefaultRequestsPerSecond = 2.0

	// DefaultBurstSize is the number of requests the service accepts
	// before throttling kicks in.
	DefaultBurstSize = 40
)

// Limiter is a token bucket with continuous refill. Tokens accrue at
// RequestsPerSecond up to BurstSize; each outbound request consumes one.
// When the bucket is empty a caller reserves the next token and sleeps for
// exactly the time it takes to accrue, so concurrent callers never
// under-delay and never consume the same fractional token twice.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	burst  int
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter. Non-positive arguments fall back to the
// remote service defaults.
func NewLimiter(requestsPerSecond float64, burstSize int) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	if burstSize <= 0 {
		burstSize = DefaultBurstSize
	}
	return &Limiter{
		rate:   requestsPerSecond,
		burst:  burstSize,
		tokens: float64(burstSize),
		last:   time.Now(),
	}
}

// WaitIfNeeded blocks until a token is available, consumes it, and returns
// how long the caller was delayed. It never fails, only delays. Call this
// before making an API request.
func (l *Limiter) WaitIfNeeded() time.Duration {
	delay := l.reserve()
	if delay > 0 {
		time.Sleep(delay)
	}
	return delay
}

// reserve consumes one token under the lock, going negative when the bucket
// is empty; the returned duration is how long the caller must park before
// its reservation is honored. The sleep happens outside the critical
// section so waiting callers do not serialize behind each other.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}

	wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
	l.tokens--
	return wait
}

// Reset restores a full bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = float64(l.burst)
	l.last = time.Now()
}

// Tokens returns a snapshot of the available token count.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	tokens := l.tokens + now.Sub(l.last).Seconds()*l.rate
	if tokens > float64(l.burst) {
		tokens = float64(l.burst)
	}
	return tokens
}
