package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/keyxmakerx/rollcall/internal/apperror"
)

// idleTTL is how long an IP's bucket survives without requests.
const idleTTL = 10 * time.Minute

// sweepEvery controls how often idle buckets are swept, counted in requests.
const sweepEvery = 512

// visitor is one IP's token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out a token bucket per client IP.
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	calls    int
	now      func() time.Time
}

func newIPLimiter(maxRequests int, window time.Duration) *ipLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		now:      time.Now,
	}
}

// wait reserves one token for ip and returns how long the caller would have
// to wait for it. Zero means the request may proceed now.
func (l *ipLimiter) wait(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > idleTTL {
				delete(l.visitors, k)
			}
		}
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

// RateLimit returns middleware that allows each IP maxRequests per window as
// a token bucket (burst of maxRequests, refilled evenly across the window).
// Excess requests get a 429 with Retry-After. Buckets idle for 10 minutes
// are dropped lazily; no goroutine is started.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return rateLimit(newIPLimiter(maxRequests, window))
}

func rateLimit(l *ipLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if delay := l.wait(c.RealIP()); delay > 0 {
				secs := int(math.Ceil(delay.Seconds()))
				return apperror.NewTooManyRequests("rate limit exceeded, please try again later", secs)
			}
			return next(c)
		}
	}
}
