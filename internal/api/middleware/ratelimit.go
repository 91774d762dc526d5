// internal/api/middleware/ratelimit.go
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"ridewallet/internal/api/types"
	"ridewallet/internal/util"

	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	r         rate.Limit
	b         int
	idle      time.Duration
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter allows rps requests per second per IP with the given burst.
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		visitors:  make(map[string]*visitor),
		r:         rate.Limit(rps),
		b:         burst,
		idle:      3 * time.Minute,
		lastSweep: time.Now(),
	}
}

// Limiter returns the bucket for ip, creating it on first use. Buckets idle
// for longer than the idle window are dropped once a minute.
func (i *IPRateLimiter) Limiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	if now.Sub(i.lastSweep) > time.Minute {
		for key, v := range i.visitors {
			if now.Sub(v.lastSeen) > i.idle {
				delete(i.visitors, key)
			}
		}
		i.lastSweep = now
	}

	v, ok := i.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimit answers 429 once a client IP exceeds its budget. It expects
// chi's RealIP middleware to have normalised RemoteAddr.
func RateLimit(limiter *IPRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}
			if !limiter.Limiter(ip).Allow() {
				types.WriteError(w, logger, http.StatusTooManyRequests, string(util.KindRateLimited), util.ErrRateLimited.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
