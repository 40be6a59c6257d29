package middleware

import (
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/handler/http/response"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// EmployeeRateLimiter keeps one token bucket per employee. Buckets idle for longer
// than the expiry are dropped.
type EmployeeRateLimiter struct {
	limiters *gocache.Cache
	r        rate.Limit
	b        int
}

func NewEmployeeRateLimiter(r rate.Limit, b int, idleExpiry time.Duration) *EmployeeRateLimiter {
	return &EmployeeRateLimiter{
		limiters: gocache.New(idleExpiry, idleExpiry),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the rate limiter for an employee.
func (l *EmployeeRateLimiter) GetLimiter(employeeID string) *rate.Limiter {
	if v, ok := l.limiters.Get(employeeID); ok {
		l.limiters.SetDefault(employeeID, v)
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.r, l.b)
	if err := l.limiters.Add(employeeID, limiter, gocache.DefaultExpiration); err != nil {
		// Lost the race to another request.
		if v, ok := l.limiters.Get(employeeID); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// RateLimit limits requests per employee. It must run after AuthRequired.
func RateLimit(limiter *EmployeeRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "Missing employee claims")
				return
			}
			if !limiter.GetLimiter(claims.EmployeeID).Allow() {
				response.TooManyRequests(w, "Too many attendance requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
