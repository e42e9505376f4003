package ratelimit

import (
	"sync"
	"time"
)

// Rate-limited chat actions.
const (
	ActionSendMessage  = "send_message"
	ActionCreateThread = "create_thread"
	ActionTyping       = "typing"
	ActionCreateTicket = "create_ticket"
	ActionUpload       = "upload_attachment"
)

// Limit describes a bucket: Burst tokens, refilled by Refill every Every.
type Limit struct {
	Burst  int
	Refill int
	Every  time.Duration
}

// DefaultLimits are the per-user limits applied to each action.
var DefaultLimits = map[string]Limit{
	// 10 messages per minute
	ActionSendMessage: {Burst: 10, Refill: 1, Every: 6 * time.Second},
	// 5 thread creations per hour
	ActionCreateThread: {Burst: 5, Refill: 1, Every: 12 * time.Minute},
	// 30 typing events per minute
	ActionTyping: {Burst: 30, Refill: 1, Every: 2 * time.Second},
	// 3 tickets per hour
	ActionCreateTicket: {Burst: 3, Refill: 1, Every: 20 * time.Minute},
	// 20 uploads per 10 minutes
	ActionUpload: {Burst: 20, Refill: 1, Every: 30 * time.Second},
}

var defaultLimit = Limit{Burst: 20, Refill: 1, Every: 3 * time.Second}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int
	refillTime time.Duration
	lastRefill time.Time
	lastUsed   time.Time
	mutex      sync.Mutex
}

// RateLimiter manages rate limiting for different users and actions
type RateLimiter struct {
	buckets map[string]*TokenBucket
	limits  map[string]Limit
	now     func() time.Time
	mutex   sync.RWMutex
}

// NewRateLimiter creates a rate limiter with DefaultLimits.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithLimits(DefaultLimits)
}

// NewRateLimiterWithLimits overrides the limit of the listed actions.
// Unlisted actions fall back to 20 per minute.
func NewRateLimiterWithLimits(limits map[string]Limit) *RateLimiter {
	l := make(map[string]Limit, len(limits))
	for action, limit := range limits {
		l[action] = limit
	}
	return &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		limits:  l,
		now:     time.Now,
	}
}

// WithClock replaces the limiter's time source.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens, refillRate int, refillTime time.Duration, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		refillTime: refillTime,
		lastRefill: now,
		lastUsed:   now,
	}
}

// Allow checks if an action is allowed and consumes a token if so
func (tb *TokenBucket) Allow(now time.Time) (bool, time.Duration) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.lastUsed = now

	elapsed := now.Sub(tb.lastRefill)
	intervals := int(elapsed / tb.refillTime)
	if intervals > 0 {
		tb.tokens += intervals * tb.refillRate
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
		tb.lastRefill = tb.lastRefill.Add(time.Duration(intervals) * tb.refillTime)
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}

	// Wait until the next refill
	return false, tb.lastRefill.Add(tb.refillTime).Sub(now)
}

// GetTokens returns current token count
func (tb *TokenBucket) GetTokens() int {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return tb.tokens
}

// Allow checks if a user action is allowed
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()

	if !exists {
		rl.mutex.Lock()
		// Double-check pattern
		if bucket, exists = rl.buckets[key]; !exists {
			limit, ok := rl.limits[action]
			if !ok {
				limit = defaultLimit
			}
			bucket = NewTokenBucket(limit.Burst, limit.Refill, limit.Every, rl.now())
			rl.buckets[key] = bucket
		}
		rl.mutex.Unlock()
	}

	return bucket.Allow(rl.now())
}

// GetStatus returns current rate limit status for a user action
func (rl *RateLimiter) GetStatus(userID, action string) (tokens int, maxTokens int) {
	key := userID + ":" + action

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()

	if !exists {
		return 0, 0
	}

	return bucket.GetTokens(), bucket.maxTokens
}

// Cleanup removes buckets that have not been used for an hour.
func (rl *RateLimiter) Cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		idle := now.Sub(bucket.lastUsed)
		bucket.mutex.Unlock()
		if idle > time.Hour {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup every 30 minutes until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}
