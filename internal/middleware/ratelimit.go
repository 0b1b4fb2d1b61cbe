package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/metrics"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a simple per-IP token bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	name     string
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute).
// name labels rejections in the rate limiter metric.
func NewRateLimiter(name string, rate int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		name:     name,
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
	}

	// Cleanup stale visitors every minute.
	go func() {
		for range time.Tick(time.Minute) {
			rl.cleanup()
		}
	}()

	return rl
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP(), time.Now()) {
			metrics.RateLimiterRejections.WithLabelValues(rl.name).Inc()
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[ip] = v
	}

	// Refill tokens based on elapsed time.
	refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate
	if refill > 0 {
		v.tokens += refill
		if v.tokens > rl.rate {
			v.tokens = rl.rate
		}
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if time.Since(v.lastSeen) > 3*time.Minute {
			delete(rl.visitors, ip)
		}
	}
}

// AutosaveLimiter caps progress saves per user with a fixed one-minute
// window counted in Redis, so the limit holds across server replicas.
type AutosaveLimiter struct {
	rdb   *redis.Client
	limit int
	now   func() time.Time
}

// NewAutosaveLimiter creates an AutosaveLimiter. A limit of zero disables it.
func NewAutosaveLimiter(rdb *redis.Client, limit int) *AutosaveLimiter {
	return &AutosaveLimiter{rdb: rdb, limit: limit, now: time.Now}
}

// Middleware must run after RequireAuth. Redis failures let the request through.
func (al *AutosaveLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if al.limit <= 0 || claims == nil {
			c.Next()
			return
		}

		window := al.now().Unix() / 60
		key := config.CacheKey.AutosaveRateKey(claims.UserID, window)

		pipe := al.rdb.TxPipeline()
		incr := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, 2*time.Minute)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		if incr.Val() > int64(al.limit) {
			metrics.RateLimiterRejections.WithLabelValues("autosave").Inc()
			retry := 60 - al.now().Unix()%60
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
