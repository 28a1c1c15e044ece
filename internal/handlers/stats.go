package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalClients  int64  `json:"total_clients"`
	OnlineClients int    `json:"online_clients"`
	PendingCount  int64  `json:"pending_messages"`
	LastActivity  string `json:"last_activity"`
}

// Stats returns delivery statistics. Message bodies are never included.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokens, err := h.store.ListClientTokens(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count clients")
		return
	}

	pending, err := h.store.CountPending(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count pending messages")
		return
	}

	recent, err := h.store.ListMessages(ctx, 1)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get last activity")
		return
	}

	lastActivity := "no activity yet"
	if len(recent) > 0 {
		lastActivity = formatTimeAgo(recent[0].CreatedAt)
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalClients:  int64(len(tokens)),
		OnlineClients: h.presence.Count(),
		PendingCount:  pending,
		LastActivity:  lastActivity,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
