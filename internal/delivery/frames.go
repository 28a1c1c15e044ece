package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrone-Ward/nodeify/internal/models"
)

var (
	ErrMalformedFrame  = errors.New("malformed frame")
	ErrUnauthenticated = errors.New("incorrect credentials")
	ErrSenderMismatch  = errors.New("sender mismatch")
	ErrStore           = errors.New("failed to store message")
)

// InboundFrame is a message submitted by a client.
type InboundFrame struct {
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// PushFrame is what a recipient receives, live or on replay.
type PushFrame struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
	Sent    string `json:"sent"`
}

// ErrorFrame carries a denial or a per-frame rejection.
type ErrorFrame struct {
	Error string `json:"error"`
}

// ParseFrame decodes and validates an inbound frame. It does not check the
// claimed token.
func ParseFrame(raw []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	f.Recipient = strings.TrimSpace(f.Recipient)
	if f.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrMalformedFrame)
	}
	if f.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrMalformedFrame)
	}
	return &f, nil
}

// EncodePush renders the outbound payload for msg.
func EncodePush(msg *models.Message) ([]byte, error) {
	return json.Marshal(PushFrame{
		Message: msg.Body,
		Sender:  msg.Sender,
		Sent:    msg.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// EncodeError renders err as an error frame. Known failures are reported by
// their sentinel text only; anything else is reported as a store failure.
func EncodeError(err error) []byte {
	reason := ErrStore.Error()
	for _, known := range []error{ErrMalformedFrame, ErrUnauthenticated, ErrSenderMismatch, ErrStore} {
		if errors.Is(err, known) {
			reason = known.Error()
			break
		}
	}
	data, _ := json.Marshal(ErrorFrame{Error: reason})
	return data
}

// Denial is the payload sent before closing an unauthenticated connection.
func Denial() []byte {
	data, _ := json.Marshal(ErrorFrame{Error: ErrUnauthenticated.Error()})
	return data
}
