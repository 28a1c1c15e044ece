package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Tyrone-Ward/nodeify/internal/store"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string           `json:"status"` // "healthy" or "degraded"
	Version     string           `json:"version"`
	Uptime      string           `json:"uptime"`
	Connections int              `json:"connections"`
	Pending     int64            `json:"pending"`
	Checks      map[string]Check `json:"checks"`
	Timestamp   string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Check the message store
	storeStart := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(storeStart).String()}
	}

	// SQLite can report on its own file
	if insp, ok := store.AsInspector(h.store); ok {
		result, err := insp.IntegrityCheck(ctx)
		switch {
		case err != nil:
			checks["integrity"] = Check{Status: "fail", Message: "integrity check failed"}
			allHealthy = false
		case result != "ok":
			checks["integrity"] = Check{Status: "fail", Message: result}
			allHealthy = false
		default:
			checks["integrity"] = Check{Status: "pass"}
		}

		if size, err := insp.SizeBytes(); err == nil {
			checks["file"] = Check{Status: "pass", Message: strconv.FormatInt(size, 10) + " bytes"}
		}
	}

	// Redis is optional; absence is not a failure
	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["redis"] = Check{Status: "pass", Latency: time.Since(redisStart).String()}
		}
	}

	var pending int64
	if n, err := h.store.CountPending(ctx); err == nil {
		pending = n
	}

	connections := 0
	if h.conns != nil {
		connections = h.conns.ConnectionCount()
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:      status,
		Version:     version,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Connections: connections,
		Pending:     pending,
		Checks:      checks,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Websocket string `json:"websocket"`
	Send      string `json:"send"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:      "nodeify",
		Version:   version,
		Websocket: "/ws/{token}",
		Send:      "POST /message",
	})
}
