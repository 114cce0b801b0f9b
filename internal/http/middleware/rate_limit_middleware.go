package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sandeepkv93/shooter-auth/internal/http/response"
)

// Limiter counts hits for key inside a fixed window. It reports whether the
// hit is within limit and, when it is not, how long until the window resets.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

type fixedWindow struct {
	count int
	start time.Time
}

type LocalFixedWindowLimiter struct {
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	nextSweep time.Time
	now       func() time.Time
}

func NewLocalFixedWindowLimiter(now func() time.Time) *LocalFixedWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &LocalFixedWindowLimiter{windows: make(map[string]*fixedWindow), now: now}
}

func (l *LocalFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if !now.Before(l.nextSweep) {
		for k, w := range l.windows {
			if now.Sub(w.start) >= window {
				delete(l.windows, k)
			}
		}
		l.nextSweep = now.Add(window)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= window {
		l.windows[key] = &fixedWindow{count: 1, start: now}
		return true, 0, nil
	}
	if w.count >= limit {
		return false, window - now.Sub(w.start), nil
	}
	w.count++
	return true, 0, nil
}

// RateLimiter throttles requests per client IP within one named scope.
type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	scope   string
}

func NewRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{limiter: limiter, limit: limit, window: window, mode: mode, scope: scope}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || rl.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			key := rl.scope + ":" + clientIPKey(r)
			allowed, retryAfter, err := rl.limiter.Allow(r.Context(), key, rl.limit, rl.window)
			if err != nil {
				slog.WarnContext(r.Context(), "rate limiter backend unavailable",
					"scope", rl.scope,
					"mode", string(rl.mode),
					"error", err,
				)
				if rl.mode == FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				retryAfter, allowed = rl.window, false
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// retryAfterHeader rounds up to whole seconds, never below one.
func retryAfterHeader(d time.Duration) string {
	seconds := int64((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}
