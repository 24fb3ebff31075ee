package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"soundwork/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller address, falling back to
// the client IP for anonymous requests.
type RateLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware limits requests per caller. A zero rate disables limiting.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}
		key := c.ClientIP()
		if addr, ok := Caller(c); ok {
			key = addr.String()
		}
		if !rl.Allow(key) {
			response.SendError(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		c.Next()
	}
}
