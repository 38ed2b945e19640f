package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyFunc extracts the subject a request is counted against. ok=false lets
// the request through uncounted.
type KeyFunc func(r *http.Request) (key string, ok bool)

// ByClientIP keys on the remote address, as rewritten by chi's RealIP.
func ByClientIP(r *http.Request) (string, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host, host != ""
}

// ByUser keys on the authenticated account. It must run after RequireAuth.
func ByUser(r *http.Request) (string, bool) {
	c, ok := auth.FromContext(r.Context())
	if !ok {
		return "", false
	}
	return c.UserID.String(), true
}

// Limiter is a fixed-window request counter stored in Redis. The first hit
// in a window creates the key and sets its TTL; later hits only increment.
type Limiter struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
	key    KeyFunc
	logger *zap.SugaredLogger
}

// NewLimiter creates a limiter allowing limit requests per window for each
// key. A nil client or non-positive limit disables limiting.
func NewLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration, key KeyFunc, logger *zap.SugaredLogger) *Limiter {
	return &Limiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		key:    key,
		logger: logger,
	}
}

// Handler enforces the limit. Redis failures let the request through.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	if l.client == nil || l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := l.key(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		count, retryAfter, err := l.hit(r.Context(), l.prefix+":"+subject)
		if err != nil {
			l.logger.Warnw("Rate limiter unavailable, allowing request", "prefix", l.prefix, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := l.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > l.limit {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			respondLimited(w, seconds)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hit counts one request and returns the new count and the window's
// remaining lifetime.
func (l *Limiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, 0, err
		}
		return count, l.window, nil
	}
	if count <= l.limit {
		return count, 0, nil
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// Key lost its expiry; restart the window.
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = l.window
	}
	return count, ttl, nil
}

func respondLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":       "Rate limit exceeded",
		"code":        string(apperr.KindTooManyRequests),
		"retry_after": retryAfter,
	})
}
