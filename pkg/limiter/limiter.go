// Package limiter provides provider-level token-bucket rate limiting and a
// daily USD spend cap shared by every LLM client in the process.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"devopsteam/pkg/config"
	"devopsteam/pkg/logx"
)

// bufferFactor shaves the advertised tokens-per-minute to absorb token
// estimation inaccuracies.
const bufferFactor = 0.9

// refillInterval splits the per-minute allowance into ten refill ticks.
const refillInterval = 6 * time.Second

// acquireTimeout bounds how long Reserve waits. A bucket refills to full
// capacity in about a minute, so waiting much longer means the request
// cannot fit at all.
const acquireTimeout = 2 * time.Minute

// ErrBudgetExceeded is returned when a reservation would push the day's
// spend past the configured cap.
var ErrBudgetExceeded = errors.New("daily LLM budget exceeded")

// BucketStats describes the current state of one provider bucket.
type BucketStats struct {
	Provider        string `json:"provider"`
	AvailableTokens int    `json:"available_tokens"`
	MaxCapacity     int    `json:"max_capacity"`
	ActiveRequests  int    `json:"active_requests"`
	MaxConcurrency  int    `json:"max_concurrency"`
	ThrottleHits    int64  `json:"throttle_hits"`
}

// bucket is a token bucket plus a concurrency semaphore for one provider.
type bucket struct {
	mu sync.Mutex

	provider string

	availableTokens int       // Tokens currently available
	tokensPerRefill int       // Tokens added per refill tick (tokens_per_minute / 10)
	maxCapacity     int       // Bucket capacity (tokens_per_minute * bufferFactor)
	lastRefill      time.Time // Start of the current refill tick

	activeRequests int // Current in-flight requests
	maxConcurrency int // Maximum concurrent requests

	throttleHits int64 // Times a reservation had to wait
}

func newBucket(provider string, limits config.ProviderLimits) *bucket {
	capacity := int(float64(limits.TokensPerMinute) * bufferFactor)
	return &bucket{
		provider:        provider,
		availableTokens: capacity, // Start with a full bucket
		tokensPerRefill: limits.TokensPerMinute / 10,
		maxCapacity:     capacity,
		lastRefill:      time.Now(),
		maxConcurrency:  limits.MaxConcurrency,
	}
}

// acquire blocks until tokens and a concurrency slot are both available.
// The returned func releases the concurrency slot; consumed tokens come
// back only through refill ticks.
func (b *bucket) acquire(ctx context.Context, tokens int) (func(), error) {
	firstAttempt := true
	start := time.Now()

	for {
		b.mu.Lock()
		b.refillLocked()

		// Check both conditions atomically under the same lock
		hasTokens := b.availableTokens >= tokens
		hasSlot := b.activeRequests < b.maxConcurrency

		if hasTokens && hasSlot {
			b.availableTokens -= tokens
			b.activeRequests++
			b.mu.Unlock()
			return b.releaseSlot, nil
		}

		if elapsed := time.Since(start); elapsed > acquireTimeout {
			b.mu.Unlock()
			return nil, fmt.Errorf("rate limit acquisition timed out after %v "+
				"(requested %d tokens, capacity %d, provider: %s)",
				elapsed.Round(time.Second), tokens, b.maxCapacity, b.provider)
		}

		// Log what blocked us, once per reservation
		if firstAttempt {
			b.throttleHits++
			if !hasTokens {
				logx.Infof("⏳ %s rate limit: waiting for refill (need %d tokens, have %d)",
					b.provider, tokens, b.availableTokens)
			}
			if !hasSlot {
				logx.Infof("⏳ %s rate limit: waiting for a slot (active %d/%d)",
					b.provider, b.activeRequests, b.maxConcurrency)
			}
			firstAttempt = false
		}

		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (b *bucket) releaseSlot() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeRequests--
}

// refillLocked adds one tick's allowance per elapsed refill interval,
// capped at capacity. Caller holds the lock.
func (b *bucket) refillLocked() {
	elapsed := time.Since(b.lastRefill)
	if elapsed < refillInterval {
		return
	}

	ticks := int(elapsed / refillInterval)
	before := b.availableTokens

	b.availableTokens += ticks * b.tokensPerRefill
	if b.availableTokens > b.maxCapacity {
		b.availableTokens = b.maxCapacity
	}

	// Advance by whole ticks so partial intervals keep accruing
	b.lastRefill = b.lastRefill.Add(time.Duration(ticks) * refillInterval)

	if b.availableTokens != before {
		logx.Debugf("rate limit: %s bucket refilled %d -> %d tokens (max %d)",
			b.provider, before, b.availableTokens, b.maxCapacity)
	}
}

// reset restores the bucket to full capacity.
func (b *bucket) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.availableTokens = b.maxCapacity
	b.lastRefill = time.Now()
}

func (b *bucket) stats() BucketStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BucketStats{
		Provider:        b.provider,
		AvailableTokens: b.availableTokens,
		MaxCapacity:     b.maxCapacity,
		ActiveRequests:  b.activeRequests,
		MaxConcurrency:  b.maxConcurrency,
		ThrottleHits:    b.throttleHits,
	}
}

// Limiter owns one bucket per provider and the shared daily budget ledger.
type Limiter struct {
	buckets map[string]*bucket

	mu          sync.Mutex
	dailyCapUSD float64     // 0 disables the cap
	spentUSD    float64     // Spend reserved during the current UTC day
	resetTimer  *time.Timer // Fires at the next midnight UTC
}

// NewLimiter creates a limiter with one bucket per provider and schedules
// the daily reset. Close releases the reset timer.
func NewLimiter(cfg config.RateLimitConfig, budget config.BudgetConfig) *Limiter {
	l := &Limiter{
		buckets: map[string]*bucket{
			config.ProviderGroq:      newBucket(config.ProviderGroq, cfg.Groq),
			config.ProviderAnthropic: newBucket(config.ProviderAnthropic, cfg.Anthropic),
			config.ProviderGoogle:    newBucket(config.ProviderGoogle, cfg.Google),
			config.ProviderOllama:    newBucket(config.ProviderOllama, cfg.Ollama),
		},
		dailyCapUSD: budget.DailyUSD,
	}

	l.scheduleDailyReset()
	return l
}

// Reserve blocks until the provider serving model has both tokens and a
// concurrency slot, or ctx is cancelled. The returned func must be called
// (via defer) to release the concurrency slot.
func (l *Limiter) Reserve(ctx context.Context, model string, tokens int) (func(), error) {
	b, err := l.bucketFor(model)
	if err != nil {
		return nil, err
	}
	return b.acquire(ctx, tokens)
}

// ReserveBudget adds the estimated cost of a request to today's ledger.
// It fails with ErrBudgetExceeded when the reservation would push spend
// past the daily cap. A zero cap disables the check.
func (l *Limiter) ReserveBudget(model string, estCost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dailyCapUSD > 0 && l.spentUSD+estCost > l.dailyCapUSD {
		return fmt.Errorf("%w: $%.4f spent of $%.2f cap, refusing $%.4f for %s",
			ErrBudgetExceeded, l.spentUSD, l.dailyCapUSD, estCost, model)
	}

	l.spentUSD += estCost
	return nil
}

// SpentToday returns the spend reserved so far in the current UTC day.
func (l *Limiter) SpentToday() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spentUSD
}

// Stats returns a snapshot of every provider bucket.
func (l *Limiter) Stats() map[string]BucketStats {
	stats := make(map[string]BucketStats, len(l.buckets))
	for provider, b := range l.buckets {
		stats[provider] = b.stats()
	}
	return stats
}

// ResetDaily clears the spend ledger and restores every bucket to full.
func (l *Limiter) ResetDaily() {
	l.mu.Lock()
	l.spentUSD = 0
	l.mu.Unlock()

	for _, b := range l.buckets {
		b.reset()
	}
}

// Close stops the daily reset timer.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resetTimer != nil {
		l.resetTimer.Stop()
	}
}

// bucketFor resolves a model name to its provider's bucket.
func (l *Limiter) bucketFor(model string) (*bucket, error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("cannot determine provider for model %s: %w", model, err)
	}

	b, ok := l.buckets[provider]
	if !ok {
		return nil, fmt.Errorf("no rate limiter configured for provider %s", provider)
	}
	return b, nil
}

// scheduleDailyReset arms a timer for the next midnight UTC and rearms it
// after each firing.
func (l *Limiter) scheduleDailyReset() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	l.mu.Lock()
	l.resetTimer = time.AfterFunc(time.Until(nextMidnight), func() {
		l.ResetDaily()
		l.scheduleDailyReset()
	})
	l.mu.Unlock()
}
