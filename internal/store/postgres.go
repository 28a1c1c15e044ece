package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tyrone-Ward/nodeify/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetClientToken retrieves a client token record.
func (s *PostgresStore) GetClientToken(ctx context.Context, token string) (*models.ClientToken, error) {
	ct := &models.ClientToken{}
	err := s.pool.QueryRow(ctx, `
		SELECT token, identity, created_at
		FROM client_tokens WHERE token = $1
	`, token).Scan(&ct.Token, &ct.Identity, &ct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ct, nil
}

// CreateClientToken stores a new token for identity.
func (s *PostgresStore) CreateClientToken(ctx context.Context, token, identity string) (*models.ClientToken, error) {
	ct := &models.ClientToken{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO client_tokens (token, identity)
		VALUES ($1, $2)
		RETURNING token, identity, created_at
	`, token, identity).Scan(&ct.Token, &ct.Identity, &ct.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ct, nil
}

// DeleteClientToken removes a token. It reports whether a row was removed.
func (s *PostgresStore) DeleteClientToken(ctx context.Context, token string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM client_tokens WHERE token = $1`, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListClientTokens returns all tokens ordered by identity.
func (s *PostgresStore) ListClientTokens(ctx context.Context) ([]models.ClientToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token, identity, created_at
		FROM client_tokens
		ORDER BY identity
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.ClientToken
	for rows.Next() {
		var ct models.ClientToken
		if err := rows.Scan(&ct.Token, &ct.Identity, &ct.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, ct)
	}
	return tokens, rows.Err()
}

// InsertMessage persists a message with its current delivered state.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, body, recipient, sender, created_at, delivered)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.Body, msg.Recipient, msg.Sender, msg.CreatedAt.UTC(), deliveredValue(msg.Delivered))
	return err
}

// PendingMessages retrieves undelivered messages for recipient in insertion order.
func (s *PostgresStore) PendingMessages(ctx context.Context, recipient string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, body, recipient, sender, created_at, delivered
		FROM messages
		WHERE recipient = $1 AND delivered = 0
		ORDER BY seq ASC
	`, recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresMessages(rows)
}

// MarkDelivered sets delivered = 1. Repeated calls are no-ops.
func (s *PostgresStore) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE messages SET delivered = 1 WHERE id = $1`, id)
	return err
}

// ListMessages returns the most recent messages, newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, body, recipient, sender, created_at, delivered
		FROM messages
		ORDER BY seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresMessages(rows)
}

// CountPending returns the number of messages waiting for replay.
func (s *PostgresStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE delivered = 0`).Scan(&count)
	return count, err
}

func scanPostgresMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var delivered pgtype.Int2
		if err := rows.Scan(&m.ID, &m.Body, &m.Recipient, &m.Sender, &m.CreatedAt, &delivered); err != nil {
			return nil, err
		}
		switch {
		case !delivered.Valid:
			m.Delivered = models.DeliveryUnset
		case delivered.Int16 == 1:
			m.Delivered = models.DeliveryDelivered
		default:
			m.Delivered = models.DeliveryPending
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
