// Package clients provides rate limiting and the HTTP client used to talk to simPRO
package clients

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Clock abstracts time so limiter behaviour can be simulated in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// RateLimiter defines the interface for rate limiting implementations.
type RateLimiter interface {
	// Wait blocks until a request is allowed
	Wait(ctx context.Context) error

	// GetStats returns rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats provides statistics about rate limiter state
type RateLimiterStats struct {
	Rate            float64       `json:"rate"`
	Burst           int           `json:"burst"`
	AllowedRequests int64         `json:"allowed_requests"`
	DelayedRequests int64         `json:"delayed_requests"`
	CurrentTokens   float64       `json:"current_tokens"`
	LastRefill      time.Time     `json:"last_refill"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}

// TokenBucketRateLimiter implements the token bucket algorithm for rate limiting.
// Tokens refill continuously at rate per second up to burst. A waiter reserves
// its token up front, letting the balance go negative, and sleeps for the
// deficit; admission order therefore follows arrival order.
type TokenBucketRateLimiter struct {
	rate     float64
	burst    int
	tokens   float64
	lastTime time.Time
	clock    Clock

	// Stats
	allowedRequests int64
	delayedRequests int64
	totalWaitTime   int64

	mu sync.Mutex
}

// NewTokenBucketRateLimiter creates a full bucket with the given refill rate
// (tokens per second) and capacity.
func NewTokenBucketRateLimiter(rate float64, burst int, clock Clock) *TokenBucketRateLimiter {
	if clock == nil {
		clock = SystemClock
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketRateLimiter{
		rate:     rate,
		burst:    burst,
		tokens:   float64(burst),
		lastTime: clock.Now(),
		clock:    clock,
	}
}

// reserve takes one token and returns how long the caller must wait for it
func (tb *TokenBucketRateLimiter) reserve() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.tokens--
	if tb.tokens >= 0 {
		return 0
	}
	return time.Duration(-tb.tokens / tb.rate * float64(time.Second))
}

// cancel returns a reserved token that was never used
func (tb *TokenBucketRateLimiter) cancel() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.tokens++
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
}

// Wait blocks until a request is allowed
func (tb *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay := tb.reserve()
	atomic.AddInt64(&tb.allowedRequests, 1)
	if delay <= 0 {
		return nil
	}

	atomic.AddInt64(&tb.delayedRequests, 1)
	atomic.AddInt64(&tb.totalWaitTime, delay.Nanoseconds())

	select {
	case <-tb.clock.After(delay):
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&tb.allowedRequests, -1)
		tb.cancel()
		return ctx.Err()
	}
}

// refill adds tokens based on elapsed time
func (tb *TokenBucketRateLimiter) refill() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastTime).Seconds()
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}

	tb.lastTime = now
}

// GetStats returns rate limiter statistics
func (tb *TokenBucketRateLimiter) GetStats() RateLimiterStats {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	allowed := atomic.LoadInt64(&tb.allowedRequests)
	delayed := atomic.LoadInt64(&tb.delayedRequests)
	totalWait := atomic.LoadInt64(&tb.totalWaitTime)

	avgWait := time.Duration(0)
	if allowed > 0 {
		avgWait = time.Duration(totalWait / allowed)
	}

	return RateLimiterStats{
		Rate:            tb.rate,
		Burst:           tb.burst,
		AllowedRequests: allowed,
		DelayedRequests: delayed,
		CurrentTokens:   tb.tokens,
		LastRefill:      tb.lastTime,
		AverageWaitTime: avgWait,
	}
}

// RequestGate admits a request only when a concurrency slot is free and the
// rate limiter has a token. Every outbound call goes through Acquire.
type RequestGate struct {
	slots    *semaphore.Weighted
	limiter  RateLimiter
	capacity int64
	inFlight int64
	observe  func(wait time.Duration)
	clock    Clock
}

// GateConfig configures a RequestGate
type GateConfig struct {
	MaxConcurrency int
	RatePerSec     float64
	Burst          int
	Clock          Clock
	// ObserveWait, when set, receives the time each Acquire spent blocked
	ObserveWait func(wait time.Duration)
}

// NewRequestGate creates a gate backed by a token bucket
func NewRequestGate(cfg GateConfig) *RequestGate {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &RequestGate{
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		limiter:  NewTokenBucketRateLimiter(cfg.RatePerSec, cfg.Burst, clock),
		capacity: int64(cfg.MaxConcurrency),
		observe:  cfg.ObserveWait,
		clock:    clock,
	}
}

// Acquire blocks until the request may proceed. The returned release must be
// called once the response has been consumed. It only fails when ctx ends.
func (g *RequestGate) Acquire(ctx context.Context) (func(), error) {
	start := g.clock.Now()

	if err := g.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.slots.Release(1)
		return nil, err
	}
	atomic.AddInt64(&g.inFlight, 1)

	if g.observe != nil {
		g.observe(g.clock.Now().Sub(start))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			atomic.AddInt64(&g.inFlight, -1)
			g.slots.Release(1)
		})
	}, nil
}

// InFlight returns the number of admitted, unreleased requests
func (g *RequestGate) InFlight() int64 {
	return atomic.LoadInt64(&g.inFlight)
}

// Capacity returns the concurrency bound
func (g *RequestGate) Capacity() int64 {
	return g.capacity
}

// Stats returns the underlying limiter statistics
func (g *RequestGate) Stats() RateLimiterStats {
	return g.limiter.GetStats()
}
