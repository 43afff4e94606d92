package handler

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/domain"
	"golang.org/x/time/rate"
)

const visitorIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client address
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewRateLimiter creates a limiter from the rate_limit config section
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow reports whether the client may make another request now
func (l *RateLimiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTimeout {
			delete(l.visitors, id)
		}
	}

	v, ok := l.visitors[clientID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[clientID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// rateLimited rejects requests over the limit with 429
func (h *Handler) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow(clientID(r)) {
			h.writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID identifies the caller; middleware.RealIP has already applied proxy headers
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
