// Package bridge forwards HTTP-submitted messages into the websocket gateway
// over short-lived send-only connections.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrone-Ward/nodeify/internal/auth"
	"github.com/Tyrone-Ward/nodeify/internal/delivery"
	"github.com/Tyrone-Ward/nodeify/internal/gateway"
)

const (
	handshakeTimeout = 5 * time.Second
	writeWait        = 5 * time.Second
)

var (
	ErrDial  = errors.New("gateway unreachable")
	ErrWrite = errors.New("failed to write frame")
)

// Dispatcher submits a frame to the gateway on behalf of token's owner.
type Dispatcher interface {
	Dispatch(ctx context.Context, token string, frame delivery.InboundFrame) error
}

// WSDispatcher dials the gateway once per message.
type WSDispatcher struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  zerolog.Logger
}

// NewWSDispatcher creates a dispatcher for the gateway at gatewayURL,
// e.g. ws://localhost:8080.
func NewWSDispatcher(gatewayURL string, logger zerolog.Logger) *WSDispatcher {
	return &WSDispatcher{
		baseURL: strings.TrimRight(gatewayURL, "/"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

// endpoint builds the send-only handshake URL for token.
func (d *WSDispatcher) endpoint(token string) string {
	return d.baseURL + "/ws/" + url.PathEscape(token) + "?mode=" + gateway.ModeSend
}

// Dispatch returns once the frame has been written and the connection
// closed. It does not wait for routing or delivery.
func (d *WSDispatcher) Dispatch(ctx context.Context, token string, frame delivery.InboundFrame) error {
	ws, _, err := d.dialer.DialContext(ctx, d.endpoint(token), nil)
	if err != nil {
		d.logger.Error().Err(err).Str("token", auth.Mask(token)).Msg("failed to dial gateway")
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	defer ws.Close()

	deadline := time.Now().Add(writeWait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = ws.SetWriteDeadline(deadline)

	if err := ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline)

	d.logger.Debug().
		Str("token", auth.Mask(token)).
		Str("recipient", frame.Recipient).
		Msg("frame dispatched")
	return nil
}
