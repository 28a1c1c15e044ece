package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Tyrone-Ward/nodeify/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/nodeify.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/nodeify.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers; sqlite does not do it for us
	// across pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db, path: dbPath}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS client_tokens (
		token TEXT PRIMARY KEY NOT NULL,
		identity TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY NOT NULL,
		body TEXT NOT NULL,
		recipient TEXT NOT NULL,
		sender TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		delivered INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_messages_recipient_delivered ON messages(recipient, delivered);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IntegrityCheck runs PRAGMA integrity_check and returns its first row ("ok" when healthy).
func (s *SQLiteStore) IntegrityCheck(ctx context.Context) (string, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result)
	return result, err
}

// SizeBytes returns the size of the main database file.
func (s *SQLiteStore) SizeBytes() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// GetClientToken retrieves a client token record.
func (s *SQLiteStore) GetClientToken(ctx context.Context, token string) (*models.ClientToken, error) {
	ct := &models.ClientToken{}
	err := s.db.QueryRowContext(ctx, `
		SELECT token, identity, created_at
		FROM client_tokens WHERE token = ?
	`, token).Scan(&ct.Token, &ct.Identity, &ct.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ct, nil
}

// CreateClientToken stores a new token for identity.
func (s *SQLiteStore) CreateClientToken(ctx context.Context, token, identity string) (*models.ClientToken, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_tokens (token, identity, created_at)
		VALUES (?, ?, ?)
	`, token, identity, now)
	if err != nil {
		return nil, err
	}
	return s.GetClientToken(ctx, token)
}

// DeleteClientToken removes a token. It reports whether a row was removed.
func (s *SQLiteStore) DeleteClientToken(ctx context.Context, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM client_tokens WHERE token = ?`, token)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListClientTokens returns all tokens ordered by identity.
func (s *SQLiteStore) ListClientTokens(ctx context.Context) ([]models.ClientToken, error) {
	rows, err := s.db.QueryContext(ctx, `
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
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, body, recipient, sender, created_at, delivered)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Body, msg.Recipient, msg.Sender, msg.CreatedAt.UTC(), deliveredValue(msg.Delivered))
	return err
}

// PendingMessages retrieves undelivered messages for recipient in insertion order.
func (s *SQLiteStore) PendingMessages(ctx context.Context, recipient string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, recipient, sender, created_at, delivered
		FROM messages
		WHERE recipient = ? AND delivered = 0
		ORDER BY rowid ASC
	`, recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteMessages(rows)
}

// MarkDelivered sets delivered = 1. Repeated calls are no-ops.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET delivered = 1 WHERE id = ?`, id)
	return err
}

// ListMessages returns the most recent messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, recipient, sender, created_at, delivered
		FROM messages
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteMessages(rows)
}

// CountPending returns the number of messages waiting for replay.
func (s *SQLiteStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE delivered = 0`).Scan(&count)
	return count, err
}

func scanSQLiteMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var delivered sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Body, &m.Recipient, &m.Sender, &m.CreatedAt, &delivered); err != nil {
			return nil, err
		}
		m.Delivered = deliveryState(delivered)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// deliveredValue maps a DeliveryState to the nullable column value.
func deliveredValue(state models.DeliveryState) any {
	switch state {
	case models.DeliveryPending:
		return 0
	case models.DeliveryDelivered:
		return 1
	default:
		return nil
	}
}

func deliveryState(v sql.NullInt64) models.DeliveryState {
	if !v.Valid {
		return models.DeliveryUnset
	}
	if v.Int64 == 1 {
		return models.DeliveryDelivered
	}
	return models.DeliveryPending
}
