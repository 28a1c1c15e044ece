// Package gateway accepts websocket clients, authenticates them, tracks their
// presence and replays their backlog before handing frames to the router.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrone-Ward/nodeify/internal/auth"
	"github.com/Tyrone-Ward/nodeify/internal/delivery"
	"github.com/Tyrone-Ward/nodeify/internal/metrics"
	"github.com/Tyrone-Ward/nodeify/internal/presence"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

// ModeSend is the handshake query value that opens a send-only connection:
// authenticated and routed, but never registered in presence or replayed to.
const ModeSend = "send"

// FrameRouter handles frames from active connections.
type FrameRouter interface {
	Route(ctx context.Context, sender string, raw []byte) error
}

// LastSeenRecorder records disconnect times.
type LastSeenRecorder interface {
	SetLastSeen(ctx context.Context, identity string, t time.Time) error
}

// Options configures the Gateway.
type Options struct {
	AllowedOrigins []string
	LastSeen       LastSeenRecorder // optional
}

// Gateway owns the websocket endpoint.
type Gateway struct {
	tokens   store.TokenDirectory
	messages store.MessageStore
	presence *presence.Directory
	router   FrameRouter
	lastSeen LastSeenRecorder
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// ctx outlives individual connections so store writes started for a
	// closing connection still complete.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*Conn
	wg    sync.WaitGroup
}

// New creates a Gateway.
func New(tokens store.TokenDirectory, messages store.MessageStore, dir *presence.Directory, router FrameRouter, logger zerolog.Logger, opts Options) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		tokens:   tokens,
		messages: messages,
		presence: dir,
		router:   router,
		lastSeen: opts.LastSeen,
		upgrader: makeUpgrader(opts.AllowedOrigins),
		logger:   logger.With().Str("component", "gateway").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]*Conn),
	}
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// TokenFromPath returns the last segment of a handshake path.
func TokenFromPath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := TokenFromPath(r.URL.Path)
	sendOnly := r.URL.Query().Get("mode") == ModeSend

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := newConn(ws, g.logger)
	c.sendOnly = sendOnly

	g.wg.Add(1)
	defer g.wg.Done()
	g.serve(c, token)
}

// serve drives one connection through
// Connecting -> Authenticating -> {Denied | Active} -> Closed.
func (g *Gateway) serve(c *Conn, token string) {
	c.setState(StateAuthenticating)

	identity, err := auth.Resolve(g.ctx, g.tokens, token)
	if err != nil {
		g.deny(c, token, err)
		return
	}

	c.identity = identity
	c.logger = c.logger.With().Str("identity", identity).Logger()
	ctx := auth.WithIdentity(g.ctx, identity)

	g.track(c)
	defer g.untrack(c)

	c.setState(StateActive)
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	go c.writePump()

	if !c.sendOnly {
		if prev := g.presence.Register(identity, c); prev != nil {
			c.logger.Info().Str("superseded", prev.ID()).Msg("connection superseded previous registration")
		}
	}
	c.logger.Info().Bool("send_only", c.sendOnly).Msg("client connected")

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readPump(func(raw []byte) { g.handleFrame(ctx, c, raw) })
	}()

	if !c.sendOnly {
		g.replay(ctx, c)
	}

	<-readDone
	c.Close()
	c.setState(StateClosed)

	if !c.sendOnly {
		g.presence.Unregister(identity, c)
		if g.lastSeen != nil {
			if err := g.lastSeen.SetLastSeen(g.ctx, identity, time.Now().UTC()); err != nil {
				c.logger.Warn().Err(err).Msg("failed to record last seen")
			}
		}
	}
	c.logger.Info().Msg("client disconnected")
}

// deny sends the credential denial, closes the socket and ends the
// connection. Lookup failures are closed as server errors, not denials.
func (g *Gateway) deny(c *Conn, token string, err error) {
	defer func() {
		c.setState(StateClosed)
		c.ws.Close()
	}()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))

	if !errors.Is(err, auth.ErrUnknownToken) {
		c.logger.Error().Err(err).Msg("token lookup failed during handshake")
		_ = c.ws.WriteMessage(websocket.TextMessage, []byte(`{"error":"temporarily unavailable"}`))
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ""),
			time.Now().Add(writeWait))
		return
	}

	c.setState(StateDenied)
	metrics.AuthFailures.WithLabelValues("gateway").Inc()
	c.logger.Info().Str("token", auth.Mask(token)).Msg("connection denied, invalid credentials")

	_ = c.ws.WriteMessage(websocket.TextMessage, delivery.Denial())
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "incorrect credentials"),
		time.Now().Add(writeWait))
}

// replay pushes the identity's pending backlog in insertion order, marking
// each message delivered after its push succeeds. It stops at the first
// failed push; whatever is left stays pending for the next connect.
func (g *Gateway) replay(ctx context.Context, c *Conn) {
	pending, err := g.messages.PendingMessages(ctx, c.identity)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load pending messages")
		return
	}
	if len(pending) == 0 {
		return
	}

	sent := 0
	for i := range pending {
		msg := &pending[i]
		if c.closed() {
			break
		}

		payload, err := delivery.EncodePush(msg)
		if err != nil {
			c.logger.Error().Err(err).Str("id", msg.ID).Msg("failed to encode pending message")
			continue
		}
		if err := c.Push(ctx, payload); err != nil {
			c.logger.Info().Err(err).Str("id", msg.ID).Msg("replay interrupted")
			break
		}

		metrics.MessagesReplayed.Inc()
		sent++

		if err := g.messages.MarkDelivered(ctx, msg.ID); err != nil {
			c.logger.Error().Err(err).Str("id", msg.ID).Msg("failed to mark message delivered")
		}
	}

	c.logger.Info().Int("pending", len(pending)).Int("replayed", sent).Msg("replay finished")
}

// handleFrame routes one inbound frame and reports a rejection back to the
// sender. The connection stays open either way.
func (g *Gateway) handleFrame(ctx context.Context, c *Conn, raw []byte) {
	err := g.router.Route(ctx, c.identity, raw)
	if err == nil {
		return
	}

	c.logger.Debug().Err(err).Msg("frame rejected")
	if pushErr := c.Push(ctx, delivery.EncodeError(err)); pushErr != nil {
		c.logger.Debug().Err(pushErr).Msg("failed to report rejection")
	}
}

func (g *Gateway) track(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[c.id] = c
}

func (g *Gateway) untrack(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, c.id)
}

// ConnectionCount returns the number of active connections, send-only
// connections included.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown closes every connection with a going-away code and waits for
// their handlers to return or ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	for _, c := range g.conns {
		c.closeWith(websocket.CloseGoingAway)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	defer g.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
