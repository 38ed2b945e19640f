package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type fakeVerifier struct {
	claims auth.Claims
	err    error
}

func (f fakeVerifier) Verify(string) (auth.Claims, error) { return f.claims, f.err }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	claims := auth.Claims{UserID: uuid.New(), Email: "ana@example.com", Role: models.RoleCitizen}

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireAuth(fakeVerifier{claims: claims})(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Authorization required", decodeBody(t, rec)["error"])
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		RequireAuth(fakeVerifier{err: errors.New("bad")})(okHandler).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", decodeBody(t, rec)["code"])
	})

	t.Run("valid token stores claims", func(t *testing.T) {
		var got auth.Claims
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = auth.FromContext(r.Context())
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		RequireAuth(fakeVerifier{claims: claims})(next).ServeHTTP(rec, req)
		assert.Equal(t, claims, got)
	})
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleAuthority)(okHandler)

	req := httptest.NewRequest(http.MethodPatch, "/", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), auth.Claims{UserID: uuid.New(), Role: models.RoleCitizen}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(auth.WithClaims(req.Context(), auth.Claims{UserID: uuid.New(), Role: models.RoleAuthority}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOriginAllowed(t *testing.T) {
	allow := OriginAllowed([]string{"http://localhost:5173", "https://portal.example.org/"}, ".vercel.app")

	assert.True(t, allow(nil, "http://localhost:5173"))
	assert.True(t, allow(nil, "https://portal.example.org"))
	assert.True(t, allow(nil, "https://incident-portal-git-main.vercel.app"))
	assert.False(t, allow(nil, "http://preview.vercel.app"))
	assert.False(t, allow(nil, "https://evilvercel.app"))
	assert.False(t, allow(nil, "https://attacker.example.com"))

	assert.True(t, OriginAllowed([]string{"*"}, "")(nil, "https://anything.test"))
	assert.False(t, OriginAllowed(nil, "")(nil, "https://anything.test"))
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeaders()(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func hitFrom(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLimiterFixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	h := NewLimiter(client, "rl:global", 2, time.Minute, ByClientIP, zap.NewNop().Sugar()).Handler(okHandler)

	assert.Equal(t, http.StatusOK, hitFrom(h, "10.0.0.1").Code)
	rec := hitFrom(h, "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = hitFrom(h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "too_many_requests", body["code"])
	assert.Equal(t, float64(60), body["retry_after"])
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other clients have their own window.
	assert.Equal(t, http.StatusOK, hitFrom(h, "10.0.0.2").Code)

	assert.Equal(t, time.Minute, mr.TTL("rl:global:10.0.0.1"))
	mr.FastForward(time.Minute)
	assert.Equal(t, http.StatusOK, hitFrom(h, "10.0.0.1").Code)
}

func TestLimiterPerUser(t *testing.T) {
	_, client := newRedis(t)
	h := NewLimiter(client, "rl:incidents", 1, 24*time.Hour, ByUser, zap.NewNop().Sugar()).Handler(okHandler)
	me := uuid.New()

	post := func(id uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/api/incidents", nil)
		req = req.WithContext(auth.WithClaims(req.Context(), auth.Claims{UserID: id, Role: models.RoleCitizen}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post(me))
	assert.Equal(t, http.StatusTooManyRequests, post(me))
	assert.Equal(t, http.StatusOK, post(uuid.New()))

	// No identity in context: not counted.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/incidents", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiterFailsOpen(t *testing.T) {
	// Nothing listens on the discard port.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:9", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	h := NewLimiter(client, "rl:global", 1, time.Minute, ByClientIP, zap.NewNop().Sugar()).Handler(okHandler)

	assert.Equal(t, http.StatusOK, hitFrom(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hitFrom(h, "10.0.0.1").Code)
}

func TestLimiterDisabled(t *testing.T) {
	h := NewLimiter(nil, "rl:global", 1, time.Minute, ByClientIP, zap.NewNop().Sugar()).Handler(okHandler)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hitFrom(h, "10.0.0.1").Code)
	}
}

func TestStructuredLoggerPassesStatus(t *testing.T) {
	h := StructuredLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
