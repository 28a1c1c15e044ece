package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrone-Ward/nodeify/internal/auth"
	"github.com/Tyrone-Ward/nodeify/internal/models"
)

type tokenMap map[string]string

func (m tokenMap) GetClientToken(ctx context.Context, token string) (*models.ClientToken, error) {
	identity, ok := m[token]
	if !ok {
		return nil, nil
	}
	return &models.ClientToken{Token: token, Identity: identity}, nil
}

func TestRequireClientToken(t *testing.T) {
	m := NewAuthMiddleware(tokenMap{"abc": "alice"}, zerolog.Nop())

	var seen string
	h := m.RequireClientToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		header   string
		status   int
		identity string
	}{
		{"valid", "Bearer abc", http.StatusNoContent, "alice"},
		{"lowercase scheme", "bearer abc", http.StatusNoContent, "alice"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"empty token", "Bearer  ", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer xyz", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/who/bob", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.identity, seen)
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/":          "/",
		"/health":    "/health",
		"/message":   "/message",
		"/who/alice": "/who/:identity",
		"/ws/abc":    "/ws/:token",
		"/abc123":    "/:token",
		"/a/b/c":     "other",
		"/who/":      "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestMetrics_AllowsWebsocketUpgrade(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(Metrics(Logger(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte("hello"))
	}))))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/abc", nil)
	require.NoError(t, err)
	defer ws.Close()

	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRateLimiter_NoRedisPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_FindLimit(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	assert.NotNil(t, rl.findLimit(httptest.NewRequest(http.MethodPost, "/message", nil)))
	assert.NotNil(t, rl.findLimit(httptest.NewRequest(http.MethodGet, "/who/alice", nil)))
	assert.Nil(t, rl.findLimit(httptest.NewRequest(http.MethodGet, "/health", nil)))

	hs := httptest.NewRequest(http.MethodGet, "/abc", nil)
	hs.Header.Set("Connection", "Upgrade")
	hs.Header.Set("Upgrade", "websocket")
	limit := rl.findLimit(hs)
	require.NotNil(t, limit)
	assert.Equal(t, 30, limit.Requests)
	assert.Equal(t, websocketLimitKey, limitName(hs))
}

func TestRateLimiter_Whitelist(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{Whitelist: []string{"10.0.0.1", "192.168.0.0/16", "bogus/99"}})

	assert.True(t, rl.isWhitelisted("10.0.0.1"))
	assert.True(t, rl.isWhitelisted("192.168.4.2"))
	assert.False(t, rl.isWhitelisted("10.0.0.2"))
	assert.False(t, rl.isWhitelisted("not-an-ip"))
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	assert.Equal(t, "1.2.3.4", RealIP(req))

	req.Header.Set("X-Forwarded-For", "5.6.7.8, 9.9.9.9")
	assert.Equal(t, "5.6.7.8", RealIP(req))
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`clientId=abc`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/..%2Fetc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/abc", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func newRedisLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, zerolog.Nop(), cfg), mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func fromIP(req *http.Request, ip string) *http.Request {
	req.RemoteAddr = net.JoinHostPort(ip, "40000")
	return req
}

func handshake(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	return req
}

func TestCheckAndIncrement(t *testing.T) {
	rl, _ := newRedisLimiter(t, RateLimiterConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.CheckAndIncrement(ctx, "ratelimit:ip:1.1.1.1", 3, time.Hour)
		require.True(t, allowed, "request %d", i)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, resetAt := rl.CheckAndIncrement(ctx, "ratelimit:ip:1.1.1.1", 3, time.Hour)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.True(t, resetAt.After(time.Now()))

	allowed, _, _ = rl.CheckAndIncrement(ctx, "ratelimit:ip:2.2.2.2", 3, time.Hour)
	assert.True(t, allowed, "keys are independent")
}

func TestRateLimiter_RedisEnforcesLimit(t *testing.T) {
	rl, _ := newRedisLimiter(t, RateLimiterConfig{})
	rl.limits["GET /stats"] = RateLimit{2, time.Hour, ipKey}
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/stats", nil), "1.2.3.4"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/stats", nil), "1.2.3.4"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/stats", nil), "5.6.7.8"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unlimited paths never touch Redis counters
	for i := 0; i < 5; i++ {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/health", nil), "1.2.3.4"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_WhitelistSkipsRedis(t *testing.T) {
	rl, _ := newRedisLimiter(t, RateLimiterConfig{Whitelist: []string{"10.0.0.0/8"}})
	rl.limits["GET /stats"] = RateLimit{1, time.Hour, ipKey}
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/stats", nil), "10.1.2.3"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_AutoBlock(t *testing.T) {
	rl, mr := newRedisLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})
	rl.limits["GET /stats"] = RateLimit{1, time.Hour, ipKey}
	h := rl.Middleware(okHandler())

	do := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/stats", nil), "9.9.9.9"))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do())
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusTooManyRequests, do(), "violation %d", i+1)
	}

	assert.True(t, mr.Exists("blocked:ip:9.9.9.9"))
	assert.Equal(t, http.StatusForbidden, do())

	// Blocks are per IP; other callers are untouched
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/health", nil), "8.8.8.8"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_NoAutoBlockByDefault(t *testing.T) {
	rl, mr := newRedisLimiter(t, RateLimiterConfig{})
	rl.limits["GET /stats"] = RateLimit{1, time.Hour, ipKey}
	h := rl.Middleware(okHandler())

	for i := 0; i < 15; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP(httptest.NewRequest(http.MethodGet, "/stats", nil), "9.9.9.9"))
	}
	assert.False(t, mr.Exists("blocked:ip:9.9.9.9"))
	assert.False(t, mr.Exists("violations:ip:9.9.9.9"))
}

func TestRateLimiter_BridgeHandshakeExempt(t *testing.T) {
	rl, _ := newRedisLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})
	rl.limits[websocketLimitKey] = RateLimit{1, time.Hour, ipKey}
	h := rl.Middleware(okHandler())

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP(handshake("/ws/abc?mode=send"), "127.0.0.1"))
		require.Equal(t, http.StatusOK, rec.Code, "bridge handshake %d", i)
	}

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"client handshake from loopback", func() *http.Request {
			return fromIP(handshake("/ws/abc"), "127.0.0.2")
		}},
		{"send-only from a remote peer", func() *http.Request {
			return fromIP(handshake("/ws/abc?mode=send"), "203.0.113.9")
		}},
		{"forwarded header claiming loopback", func() *http.Request {
			req := fromIP(handshake("/ws/abc?mode=send"), "::1")
			req.Header.Set("X-Forwarded-For", "127.0.0.1")
			return req
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			require.Equal(t, http.StatusOK, rec.Code)

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		})
	}
}

func TestIsBridgeHandshake(t *testing.T) {
	assert.True(t, isBridgeHandshake(fromIP(handshake("/ws/abc?mode=send"), "127.0.0.1")))
	assert.True(t, isBridgeHandshake(fromIP(handshake("/abc?mode=send"), "::1")))
	assert.False(t, isBridgeHandshake(fromIP(handshake("/ws/abc"), "127.0.0.1")))
	assert.False(t, isBridgeHandshake(fromIP(httptest.NewRequest(http.MethodGet, "/ws/abc?mode=send", nil), "127.0.0.1")))
	assert.False(t, isBridgeHandshake(fromIP(handshake("/ws/abc?mode=send"), "192.0.2.1")))
}
