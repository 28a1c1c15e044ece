package store

import (
	"context"

	"github.com/Tyrone-Ward/nodeify/internal/models"
)

// TokenDirectory resolves opaque client tokens to identities.
type TokenDirectory interface {
	// GetClientToken returns nil, nil when the token is unknown.
	GetClientToken(ctx context.Context, token string) (*models.ClientToken, error)
}

// MessageStore is the durable record of messages and their delivered flag.
// Implementations must be safe for concurrent use.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	// PendingMessages returns the recipient's pending messages in insertion order.
	PendingMessages(ctx context.Context, recipient string) ([]models.Message, error)
	// MarkDelivered flips a message to delivered. Marking an already
	// delivered or unknown message is not an error.
	MarkDelivered(ctx context.Context, id string) error
}

// DataStore defines the interface for persistent storage of tokens and messages.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	TokenDirectory
	MessageStore

	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Token administration
	CreateClientToken(ctx context.Context, token, identity string) (*models.ClientToken, error)
	DeleteClientToken(ctx context.Context, token string) (bool, error)
	ListClientTokens(ctx context.Context) ([]models.ClientToken, error)

	// Message inspection, newest first
	ListMessages(ctx context.Context, limit int) ([]models.Message, error)
	CountPending(ctx context.Context) (int64, error)
}

// Inspector is implemented by stores that can report on their own file.
type Inspector interface {
	IntegrityCheck(ctx context.Context) (string, error)
	SizeBytes() (int64, error)
}
