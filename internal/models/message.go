package models

import "time"

// DeliveryState is the tri-state delivered flag of a stored message.
type DeliveryState int

const (
	// DeliveryUnset is the state of a freshly allocated message that has not
	// been persisted yet. It is stored as NULL.
	DeliveryUnset DeliveryState = iota - 1
	// DeliveryPending marks a message waiting for its recipient to connect.
	DeliveryPending
	// DeliveryDelivered marks a message pushed to a live connection. It is
	// never reverted.
	DeliveryDelivered
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryDelivered:
		return "delivered"
	default:
		return "unset"
	}
}

// Message is a short text message between two identities.
type Message struct {
	ID        string        `json:"id"` // UUIDv7, sortable
	Body      string        `json:"message"`
	Recipient string        `json:"recipient"`
	Sender    string        `json:"sender"`
	CreatedAt time.Time     `json:"created_at"`
	Delivered DeliveryState `json:"delivered"`
}
