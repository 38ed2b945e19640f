// Package middleware provides HTTP middleware for the incident portal server.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/models"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// StructuredLogger returns a middleware that logs HTTP requests with zap
func StructuredLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			}

			switch {
			case ww.statusCode >= 500:
				logger.Error("HTTP Request", fields...)
			case ww.statusCode >= 400:
				logger.Warn("HTTP Request", fields...)
			default:
				logger.Info("HTTP Request", fields...)
			}
		})
	}
}

// SecureHeaders sets conservative response headers for a JSON API.
func SecureHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}

// TokenVerifier checks a bearer token and returns the identity it asserts.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// RequireAuth validates bearer tokens for protected routes and stores the
// verified claims in the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || strings.TrimSpace(tokenStr) == "" {
				writeError(w, apperr.KindUnauthorized, "Authorization required")
				return
			}

			claims, err := verifier.Verify(strings.TrimSpace(tokenStr))
			if err != nil {
				writeError(w, apperr.KindUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects requests whose verified role differs from role. It must
// run after RequireAuth.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, apperr.KindUnauthorized, "Authorization required")
				return
			}
			if c.Role != role {
				writeError(w, apperr.KindForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OriginAllowed builds the CORS origin predicate: exact matches from origins,
// or any https origin whose host ends with suffix. A "*" entry allows all.
func OriginAllowed(origins []string, suffix string) func(r *http.Request, origin string) bool {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	suffix = strings.TrimSpace(suffix)
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}

	return func(_ *http.Request, origin string) bool {
		if wildcard {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		if suffix == "" {
			return false
		}
		host, ok := strings.CutPrefix(origin, "https://")
		return ok && len(host) > len(suffix) && strings.HasSuffix(host, suffix)
	}
}

func writeError(w http.ResponseWriter, kind apperr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.Status(kind))
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": string(kind)})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
