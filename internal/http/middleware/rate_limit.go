package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/crawlshastra-backend/internal/http/response"
	"github.com/yungbote/crawlshastra-backend/internal/observability"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/ctxutil"
)

type RateLimitConfig struct {
	RPS   float64
	Burst int
	// Idle limiters are dropped after TTL.
	TTL time.Duration
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per key. Expired entries are swept
// inline on access, at most once per TTL.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	cfg       RateLimitConfig
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &limiterPool{m: map[string]*limiterEntry{}, cfg: cfg, now: time.Now}
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	now := p.now()
	if now.Sub(p.lastSweep) >= p.cfg.TTL {
		cutoff := now.Add(-p.cfg.TTL)
		for k, e := range p.m {
			if e.lastSeen.Before(cutoff) {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(rate.Limit(p.cfg.RPS), p.cfg.Burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	l := e.l
	p.mu.Unlock()
	return l.AllowN(now, 1)
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// RateLimit throttles per principal, falling back to the client IP on routes
// mounted without authentication. Mount it after RequireAuth, and build it
// once per budget: each call owns its own buckets. Rejections answer 429 with
// the standard error envelope.
func RateLimit(cfg RateLimitConfig, m *observability.Metrics) gin.HandlerFunc {
	pool := newLimiterPool(cfg)
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id := ctxutil.PrincipalFrom(c.Request.Context()); id != uuid.Nil {
			key = "user:" + id.String()
		}
		if !pool.Allow(key) {
			m.IncRateLimited(c.FullPath())
			c.Header("Retry-After", "1")
			response.AbortError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited)
			return
		}
		c.Next()
	}
}

var errRateLimited = rateLimitError{}

type rateLimitError struct{}

func (rateLimitError) Error() string { return "too many requests" }
