package providers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter keyed to requests per minute.
// It exists so the pipeline can spread checkpointed AI calls over time
// instead of tripping provider-side throttles mid phase.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	maxTokens         float64
	lastRefill        time.Time

	// Server-driven backoff window. No requests are released until it
	// passes.
	backoffUntil time.Time

	logger *slog.Logger
}

// NewRateLimiter creates a limiter allowing requestsPerMinute requests.
// A non-positive rate disables limiting.
func NewRateLimiter(requestsPerMinute int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		logger:            logger,
		lastRefill:        time.Now(),
	}
	if requestsPerMinute > 0 {
		rl.maxTokens = float64(requestsPerMinute)
		rl.tokens = rl.maxTokens
	}
	return rl
}

// Wait blocks until a request slot is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.requestsPerMinute <= 0 {
		return ctx.Err()
	}

	for {
		wait := rl.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryConsume takes a slot without blocking. It reports false when the
// bucket is empty or a backoff window is active.
func (rl *RateLimiter) TryConsume() bool {
	if rl == nil || rl.requestsPerMinute <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.backoffUntil) {
		return false
	}
	rl.refillLocked(now)
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Record429 registers a provider throttle response. Subsequent requests
// wait out retryAfter (or a 15s default) before resuming.
func (rl *RateLimiter) Record429(retryAfter time.Duration) {
	if rl == nil {
		return
	}
	if retryAfter <= 0 {
		retryAfter = 15 * time.Second
	}

	rl.mu.Lock()
	until := time.Now().Add(retryAfter)
	if until.After(rl.backoffUntil) {
		rl.backoffUntil = until
	}
	rl.mu.Unlock()

	rl.logger.Warn("provider throttled, backing off",
		"retry_after", retryAfter.String())
}

// Status reports available slots and any active backoff remaining.
func (rl *RateLimiter) Status() (available float64, backoff time.Duration) {
	if rl == nil || rl.requestsPerMinute <= 0 {
		return 0, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.refillLocked(now)
	if now.Before(rl.backoffUntil) {
		backoff = rl.backoffUntil.Sub(now)
	}
	return rl.tokens, backoff
}

// reserve consumes a token if one is available, otherwise returns how
// long the caller should wait before trying again.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.backoffUntil) {
		return rl.backoffUntil.Sub(now)
	}

	rl.refillLocked(now)
	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}

	// Time until one token refills.
	perToken := time.Minute / time.Duration(rl.requestsPerMinute)
	deficit := 1 - rl.tokens
	return time.Duration(deficit * float64(perToken))
}

func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return
	}
	rl.lastRefill = now

	refill := elapsed.Minutes() * float64(rl.requestsPerMinute)
	rl.tokens += refill
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
}
