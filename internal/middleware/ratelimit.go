package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter provides token bucket rate limiting keyed by creator ID when
// authenticated, client IP otherwise.
type RateLimiter struct {
	rate  float64 // tokens per second
	burst int
	store *bucketStore
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	Enabled           bool
}

// DefaultRateLimitConfig returns default rate limit configuration.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 10.0,
		Burst:             20,
		Enabled:           true,
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	var store *bucketStore
	if config.Enabled {
		store = newBucketStore()
	}

	return &RateLimiter{
		rate:  config.RequestsPerSecond,
		burst: config.Burst,
		store: store,
	}
}

// GinMiddleware returns the Gin middleware for rate limiting.
func (r *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.store == nil {
			c.Next()
			return
		}

		key := r.getRateLimitKey(c)
		remaining, resetTime, allowed := r.store.take(key, r.rate, r.burst)

		c.Header("X-RateLimit-Limit", strconv.Itoa(r.burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", resetTime.Format(time.RFC3339))

		if !allowed {
			retryAfter := time.Until(resetTime)
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "too many requests, please retry later",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": retryAfter.Seconds(),
				"limit":       r.burst,
				"remaining":   0,
				"reset_at":    resetTime.Format(time.RFC3339),
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey generates a unique key for rate limiting.
func (r *RateLimiter) getRateLimitKey(c *gin.Context) string {
	if creatorID, ok := GetCreatorID(c); ok {
		return "creator:" + creatorID
	}
	return "ip:" + c.ClientIP()
}

// bucketStore holds per-key token buckets in memory. A single node serves
// its own swarm peers and local submitters, so no distributed store is needed.
type bucketStore struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

func newBucketStore() *bucketStore {
	return &bucketStore{
		buckets: make(map[string]*tokenBucket),
	}
}

// take consumes one token for key, returning (remaining, resetTime, allowed).
func (s *bucketStore) take(key string, rate float64, burst int) (int, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	reset := now.Add(time.Second)

	bucket, exists := s.buckets[key]
	if !exists {
		s.buckets[key] = &tokenBucket{
			tokens:     float64(burst) - 1,
			lastRefill: now,
		}
		return burst - 1, reset, true
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.tokens += elapsed * rate
	if bucket.tokens > float64(burst) {
		bucket.tokens = float64(burst)
	}
	bucket.lastRefill = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		remaining := int(bucket.tokens)
		if remaining < 0 {
			remaining = 0
		}
		return remaining, reset, true
	}

	return 0, reset, false
}

// ConnectionLimiter caps concurrent peer connections per IP so one remote
// host cannot exhaust the gossip hub.
type ConnectionLimiter struct {
	connections map[string]int
	mu          sync.RWMutex
	limit       int
}

// NewConnectionLimiter creates a new connection limiter.
func NewConnectionLimiter(limit int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		limit:       limit,
	}
}

// Allow checks if a new connection is allowed.
func (l *ConnectionLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[ip] >= l.limit {
		return false
	}
	l.connections[ip]++
	return true
}

// Release removes a connection for an IP.
func (l *ConnectionLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count, exists := l.connections[ip]; exists && count > 0 {
		l.connections[ip]--
		if l.connections[ip] == 0 {
			delete(l.connections, ip)
		}
	}
}

// Count returns the current connection count for an IP.
func (l *ConnectionLimiter) Count(ip string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connections[ip]
}
