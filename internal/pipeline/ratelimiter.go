package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// RateLimiterConfig bounds a provider's admission under three constraints:
// requests/minute, tokens/minute, and in-flight concurrency.
type RateLimiterConfig struct {
	MaxRequestsPerMinute int
	MaxTokensPerMinute   int
	MaxConcurrency       int
}

const slidingWindow = 60 * time.Second

// requestRecord is always referenced by pointer so a caller's handle to its
// own entry survives concurrent purges/appends to the log.
type requestRecord struct {
	at     time.Time
	tokens int
}

// RateLimiter gates admission of work under 60-second sliding request and
// token windows plus a concurrency semaphore. Execute waits until all three
// constraints admit the call, runs work, and records its actual token
// usage; if the caller's context is cancelled while queued the slot is
// released without recording any usage.
type RateLimiter struct {
	cfg RateLimiterConfig
	mu  sync.Mutex
	log []*requestRecord
	sem *semaphore.Weighted
}

// NewRateLimiter constructs a RateLimiter from the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &RateLimiter{cfg: cfg, sem: semaphore.NewWeighted(int64(cfg.MaxConcurrency))}
}

// Execute waits for admission under the concurrency cap and the rolling
// request/token windows, then runs work. work returns the actual number of
// tokens consumed, which is recorded against the token window (the estimate
// passed in is only used for admission, the same way spec.md's AdaptiveBatcher
// tracks estimated vs. actual usage separately).
func (rl *RateLimiter) Execute(ctx context.Context, estimatedTokens int, work func(ctx context.Context) (actualTokens int, err error)) (int, error) {
	if err := rl.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer rl.sem.Release(1)

	rec, err := rl.awaitAdmission(ctx, estimatedTokens)
	if err != nil {
		return 0, err
	}

	actual, err := work(ctx)
	if err != nil {
		return 0, err
	}

	rl.record(rec, actual)
	return actual, nil
}

func (rl *RateLimiter) awaitAdmission(ctx context.Context, estimatedTokens int) (*requestRecord, error) {
	for {
		rec, wait, admitted := rl.tryAdmit(estimatedTokens)
		if admitted {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAdmit atomically tests both windows against their limits; returns the
// caller's own log entry on admission so record writes back into that exact
// entry instead of guessing at the log's current tail.
func (rl *RateLimiter) tryAdmit(estimatedTokens int) (*requestRecord, time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.purgeLocked(now)

	if rl.cfg.MaxRequestsPerMinute > 0 && len(rl.log) >= rl.cfg.MaxRequestsPerMinute {
		return nil, rl.waitForSlotLocked(now), false
	}

	tokens := rl.tokensInWindowLocked()
	if rl.cfg.MaxTokensPerMinute > 0 && tokens+estimatedTokens > rl.cfg.MaxTokensPerMinute {
		return nil, rl.waitForSlotLocked(now), false
	}

	rec := &requestRecord{at: now, tokens: 0}
	rl.log = append(rl.log, rec)
	return rec, 0, true
}

func (rl *RateLimiter) record(rec *requestRecord, actualTokens int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rec != nil {
		rec.tokens = actualTokens
	}
}

func (rl *RateLimiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-slidingWindow)
	i := 0
	for i < len(rl.log) && rl.log[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		rl.log = rl.log[i:]
	}
}

func (rl *RateLimiter) tokensInWindowLocked() int {
	total := 0
	for _, r := range rl.log {
		total += r.tokens
	}
	return total
}

func (rl *RateLimiter) waitForSlotLocked(now time.Time) time.Duration {
	if len(rl.log) == 0 {
		return 100 * time.Millisecond
	}
	oldest := rl.log[0].at
	wait := oldest.Add(slidingWindow).Sub(now)
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait
}
