package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// WhoResponse represents an identity's presence.
type WhoResponse struct {
	Identity string `json:"identity"`
	Online   bool   `json:"online"`
	LastSeen string `json:"last_seen,omitempty"`
}

// Who handles presence lookup.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(chi.URLParam(r, "identity"))
	if identity == "" {
		h.Error(w, http.StatusBadRequest, "identity is required")
		return
	}

	resp := WhoResponse{
		Identity: identity,
		Online:   h.presence.IsPresent(identity),
	}

	if !resp.Online && h.redis != nil {
		seen, err := h.redis.GetLastSeen(r.Context(), identity)
		if err != nil {
			h.logger.Warn().Err(err).Str("identity", identity).Msg("failed to read last seen")
		} else if seen != nil {
			resp.LastSeen = seen.Format("2006-01-02T15:04:05Z")
		}
	}

	h.JSON(w, http.StatusOK, resp)
}
