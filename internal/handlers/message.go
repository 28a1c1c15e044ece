package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Tyrone-Ward/nodeify/internal/auth"
	"github.com/Tyrone-Ward/nodeify/internal/delivery"
	"github.com/Tyrone-Ward/nodeify/internal/metrics"
)

// SendMessageRequest is the body of POST /message.
type SendMessageRequest struct {
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// UnauthorizedResponse is returned for an unknown clientId.
type UnauthorizedResponse struct {
	Error            string `json:"error"`
	ErrorCode        int    `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

var unauthorized = UnauthorizedResponse{
	Error:            "Unauthorized",
	ErrorCode:        http.StatusUnauthorized,
	ErrorDescription: "you need to provide a valid access token or user credentials to access this api",
}

// SendMessage handles POST /message. It validates the token, hands the frame
// to the gateway as the token's owner and acknowledges the submission.
// "delivered" means dispatched, not received.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The token is checked before the body fields
	identity, err := auth.Resolve(r.Context(), h.store, req.ClientID)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownToken) {
			metrics.AuthFailures.WithLabelValues("bridge").Inc()
			h.JSON(w, http.StatusUnauthorized, unauthorized)
			return
		}
		h.logger.Error().Err(err).Msg("token lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.Recipient == "" {
		h.Error(w, http.StatusBadRequest, "recipient is required")
		return
	}
	if req.Message == "" {
		h.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	frame := delivery.InboundFrame{
		ClientID:  req.ClientID,
		Message:   req.Message,
		Recipient: req.Recipient,
	}
	if err := h.bridge.Dispatch(r.Context(), req.ClientID, frame); err != nil {
		h.logger.Error().Err(err).Str("sender", identity).Msg("bridge dispatch failed")
		h.Error(w, http.StatusBadGateway, "gateway unavailable")
		return
	}

	h.logger.Info().
		Str("sender", identity).
		Str("recipient", req.Recipient).
		Msg("message submitted")
	h.Text(w, http.StatusOK, "delivered")
}
