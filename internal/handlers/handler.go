package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrone-Ward/nodeify/internal/bridge"
	"github.com/Tyrone-Ward/nodeify/internal/presence"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

// ConnectionCounter reports open gateway connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	redis    *store.RedisStore
	presence *presence.Directory
	bridge   bridge.Dispatcher
	conns    ConnectionCounter
	logger   zerolog.Logger
	started  time.Time
}

// NewHandler creates a new Handler. redis and conns may be nil.
func NewHandler(ds store.DataStore, redis *store.RedisStore, dir *presence.Directory, dispatcher bridge.Dispatcher, conns ConnectionCounter, logger zerolog.Logger) *Handler {
	return &Handler{
		store:    ds,
		redis:    redis,
		presence: dir,
		bridge:   dispatcher,
		conns:    conns,
		logger:   logger.With().Str("component", "http").Logger(),
		started:  time.Now(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Text sends a plain text response.
func (h *Handler) Text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
