package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrone-Ward/nodeify/internal/bridge"
	"github.com/Tyrone-Ward/nodeify/internal/delivery"
	"github.com/Tyrone-Ward/nodeify/internal/gateway"
	"github.com/Tyrone-Ward/nodeify/internal/presence"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

type server struct {
	*httptest.Server
	store    *store.SQLiteStore
	presence *presence.Directory
}

func newServer(t *testing.T) *server {
	t.Helper()
	return newServerWithRedis(t, nil)
}

func newServerWithRedis(t *testing.T, rs *store.RedisStore) *server {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = s.CreateClientToken(ctx, "abc", "alice")
	require.NoError(t, err)
	_, err = s.CreateClientToken(ctx, "bobtok", "bob")
	require.NoError(t, err)

	dir := presence.NewDirectory()
	router := delivery.NewRouter(s, s, dir, zerolog.Nop())
	gw := gateway.New(s, s, dir, router, zerolog.Nop(), gateway.Options{})

	srv := httptest.NewUnstartedServer(nil)
	dispatcher := bridge.NewWSDispatcher("ws://"+srv.Listener.Addr().String(), zerolog.Nop())
	srv.Config.Handler = NewRouter(zerolog.Nop(), Deps{
		Store:      s,
		Redis:      rs,
		Presence:   dir,
		Gateway:    gw,
		Dispatcher: dispatcher,
	})
	srv.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
		srv.Close()
	})

	return &server{Server: srv, store: s, presence: dir}
}

func (s *server) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (s *server) post(t *testing.T, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(s.URL+"/message", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHTTPBridge_EndToEnd(t *testing.T) {
	srv := newServer(t)

	// Root-path handshake, as the original clients connect
	alice := srv.dial(t, "/abc")
	require.Eventually(t, func() bool { return srv.presence.IsPresent("alice") }, 2*time.Second, 10*time.Millisecond)

	status, body := srv.post(t, `{"clientId":"bobtok","message":"hi","recipient":"alice"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "delivered", body)

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)

	var push delivery.PushFrame
	require.NoError(t, json.Unmarshal(data, &push))
	assert.Equal(t, "hi", push.Message)
	assert.Equal(t, "bob", push.Sender)

	assert.False(t, srv.presence.IsPresent("bob"))
}

func TestHTTPBridge_UnknownClient(t *testing.T) {
	srv := newServer(t)

	status, body := srv.post(t, `{"clientId":"xyz","message":"hi","recipient":"alice"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, `"errorCode":401`)

	msgs, err := srv.store.ListMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWho_RequiresToken(t *testing.T) {
	srv := newServer(t)
	srv.dial(t, "/ws/abc")
	require.Eventually(t, func() bool { return srv.presence.IsPresent("alice") }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/who/alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/who/alice", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer bobtok")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var who map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&who))
	assert.Equal(t, "alice", who["identity"])
	assert.Equal(t, true, who["online"])
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "nodeify_http_requests_total")
}

func TestHTTPBridge_RateLimitedByCallerNotLoopback(t *testing.T) {
	mr := miniredis.RunT(t)
	rs, err := store.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	srv := newServerWithRedis(t, rs)

	// More bridge submissions than the per-IP handshake limit allows, each
	// from a different caller.
	const callers = 40
	for i := 0; i < callers; i++ {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/message",
			strings.NewReader(`{"clientId":"bobtok","message":"hi","recipient":"alice"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "caller %d", i)
	}

	require.Eventually(t, func() bool {
		pending, err := srv.store.PendingMessages(context.Background(), "alice")
		return err == nil && len(pending) == callers
	}, 5*time.Second, 20*time.Millisecond)
}
