package store

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrone-Ward/nodeify/internal/models"
)

func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, RunMigrations(url))

	s, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPostgresStore_ReplayCycle(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	recipient := "pg-" + uuid.NewString()
	token := uuid.NewString()
	_, err := s.CreateClientToken(ctx, token, recipient)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = s.DeleteClientToken(context.Background(), token) })

	ct, err := s.GetClientToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, ct)
	assert.Equal(t, recipient, ct.Identity)

	missing, err := s.GetClientToken(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)

	first := newMessage("bob", recipient, "one", models.DeliveryPending)
	second := newMessage("bob", recipient, "two", models.DeliveryPending)
	require.NoError(t, s.InsertMessage(ctx, first))
	require.NoError(t, s.InsertMessage(ctx, second))

	pending, err := s.PendingMessages(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	require.NoError(t, s.MarkDelivered(ctx, first.ID))
	require.NoError(t, s.MarkDelivered(ctx, first.ID))

	pending, err = s.PendingMessages(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, RunMigrations(url))
	require.NoError(t, RunMigrations(url))
}

func TestMigrationSource(t *testing.T) {
	src, err := migrationSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, name, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "init", name)

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS messages")

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@db:5432/nodeify?sslmode=disable", "pgx5://u:p@db:5432/nodeify?sslmode=disable", false},
		{"postgresql://db/nodeify", "pgx5://db/nodeify", false},
		{"pgx5://db/nodeify", "pgx5://db/nodeify", false},
		{"host=db dbname=nodeify", "", true},
	}
	for _, tt := range tests {
		got, err := migrateURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
