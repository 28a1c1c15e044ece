// Package delivery decides, for each inbound message, between pushing it to
// the recipient's live connection and queuing it for replay.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrone-Ward/nodeify/internal/auth"
	"github.com/Tyrone-Ward/nodeify/internal/crypto"
	"github.com/Tyrone-Ward/nodeify/internal/metrics"
	"github.com/Tyrone-Ward/nodeify/internal/models"
	"github.com/Tyrone-Ward/nodeify/internal/presence"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

// LivePushTimeout bounds how long a sender waits on a recipient's socket.
// A recipient that stops reading costs each sender at most this long per
// frame before the message is queued instead.
const LivePushTimeout = 2 * time.Second

// Locator finds the current connection for an identity.
type Locator interface {
	Lookup(identity string) (presence.Handle, bool)
}

// Router routes frames from authenticated connections.
type Router struct {
	tokens   store.TokenDirectory
	messages store.MessageStore
	presence Locator
	logger   zerolog.Logger

	now         func() time.Time
	newID       func() string
	pushTimeout time.Duration
}

// NewRouter creates a router over the given directories.
func NewRouter(tokens store.TokenDirectory, messages store.MessageStore, presence Locator, logger zerolog.Logger) *Router {
	return &Router{
		tokens:      tokens,
		messages:    messages,
		presence:    presence,
		logger:      logger.With().Str("component", "router").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return crypto.NewUUIDv7().String() },
		pushTimeout: LivePushTimeout,
	}
}

// Route handles one raw frame sent by sender, the identity the connection
// authenticated as. Returned errors wrap one of the package sentinels and are
// terminal for this frame only.
func (r *Router) Route(ctx context.Context, sender string, raw []byte) error {
	frame, err := ParseFrame(raw)
	if err != nil {
		metrics.RejectedFrames.WithLabelValues("malformed").Inc()
		return err
	}

	if err := r.verifySender(ctx, sender, frame.ClientID); err != nil {
		return err
	}

	msg := &models.Message{
		ID:        r.newID(),
		Body:      frame.Message,
		Recipient: frame.Recipient,
		Sender:    sender,
		CreatedAt: r.now(),
		Delivered: models.DeliveryUnset,
	}

	msg.Delivered = r.tryLive(ctx, msg)

	if err := r.messages.InsertMessage(ctx, msg); err != nil {
		r.logger.Error().Err(err).
			Str("id", msg.ID).
			Str("sender", sender).
			Str("recipient", msg.Recipient).
			Str("delivered", msg.Delivered.String()).
			Msg("failed to persist message")
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	path := "pending"
	if msg.Delivered == models.DeliveryDelivered {
		path = "live"
	}
	metrics.MessagesRouted.WithLabelValues(path).Inc()

	r.logger.Info().
		Str("id", msg.ID).
		Str("sender", sender).
		Str("recipient", msg.Recipient).
		Str("path", path).
		Msg("message routed")

	return nil
}

// verifySender re-resolves the token carried in the frame. The stored sender
// is always the connection's identity; the frame may only confirm it.
func (r *Router) verifySender(ctx context.Context, sender, claimedToken string) error {
	claimed, err := auth.Resolve(ctx, r.tokens, claimedToken)
	switch {
	case errors.Is(err, auth.ErrUnknownToken):
		metrics.AuthFailures.WithLabelValues("frame").Inc()
		r.logger.Warn().Str("sender", sender).Str("client_id", auth.Mask(claimedToken)).Msg("frame carried unknown clientId")
		return ErrUnauthenticated
	case err != nil:
		r.logger.Error().Err(err).Str("sender", sender).Msg("token lookup failed")
		return fmt.Errorf("%w: %v", ErrStore, err)
	case claimed != sender:
		metrics.RejectedFrames.WithLabelValues("sender_mismatch").Inc()
		r.logger.Warn().
			Str("sender", sender).
			Str("claimed", claimed).
			Msg("frame clientId belongs to another identity")
		return ErrSenderMismatch
	}
	return nil
}

// tryLive pushes msg to the recipient's current connection and reports the
// state the message must be persisted with. A failed push is a disconnect
// race and falls back to pending.
func (r *Router) tryLive(ctx context.Context, msg *models.Message) models.DeliveryState {
	h, ok := r.presence.Lookup(msg.Recipient)
	if !ok {
		return models.DeliveryPending
	}

	payload, err := EncodePush(msg)
	if err != nil {
		return models.DeliveryPending
	}

	pushCtx, cancel := context.WithTimeout(ctx, r.pushTimeout)
	defer cancel()

	if err := h.Push(pushCtx, payload); err != nil {
		metrics.PresenceRaces.Inc()
		ev := r.logger.Warn()
		if errors.Is(err, context.Canceled) {
			ev = r.logger.Debug()
		}
		ev.Err(err).
			Str("id", msg.ID).
			Str("recipient", msg.Recipient).
			Str("conn_id", h.ID()).
			Msg("live push failed, queuing message")
		return models.DeliveryPending
	}
	return models.DeliveryDelivered
}
