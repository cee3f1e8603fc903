package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// windowLimiter counts requests per key in fixed windows. Expired windows are
// swept at most once per window length.
type windowLimiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

type window struct {
	count int
	ends  time.Time
}

// allow records a request for key and reports whether it fits the window,
// along with the remaining quota and the time left until the window resets.
func (l *windowLimiter) allow(key string) (bool, int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if t.Sub(l.lastSweep) > l.per {
		for k, w := range l.windows {
			if !t.Before(w.ends) {
				delete(l.windows, k)
			}
		}
		l.lastSweep = t
	}
	w, ok := l.windows[key]
	if !ok || !t.Before(w.ends) {
		w = &window{ends: t.Add(l.per)}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return false, 0, w.ends.Sub(t)
	}
	w.count++
	return true, l.limit - w.count, w.ends.Sub(t)
}

// RateLimit allows limit requests per client address in each window of length
// per; limit <= 0 disables it. It expects chi's RealIP to have run so that
// RemoteAddr already reflects X-Forwarded-For.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return rateLimit(limit, per, time.Now)
}

func rateLimit(limit int, per time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := &windowLimiter{limit: limit, per: per, now: now, windows: make(map[string]*window)}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, reset := l.allow(clientKey(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				secs := int(math.Ceil(reset.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey is the host part of RemoteAddr, or RemoteAddr itself when it has
// no port.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
