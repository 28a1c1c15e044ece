package store

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrone-Ward/nodeify/internal/metrics"
	"github.com/Tyrone-Ward/nodeify/internal/models"
)

type failingInsert struct {
	*SQLiteStore
}

func (f failingInsert) InsertMessage(ctx context.Context, msg *models.Message) error {
	return errors.New("disk full")
}

func TestInstrumentedStore_PassesThrough(t *testing.T) {
	s := Instrument(newTestSQLite(t))
	ctx := context.Background()

	_, err := s.CreateClientToken(ctx, "abc", "alice")
	require.NoError(t, err)

	ct, err := s.GetClientToken(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, ct)
	assert.Equal(t, "alice", ct.Identity)

	m := newMessage("bob", "alice", "hi", models.DeliveryPending)
	require.NoError(t, s.InsertMessage(ctx, m))
	pending, err := s.PendingMessages(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.MarkDelivered(ctx, m.ID))

	count, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInstrumentedStore_CountsErrors(t *testing.T) {
	s := Instrument(failingInsert{newTestSQLite(t)})
	before := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("insert"))

	err := s.InsertMessage(context.Background(), newMessage("bob", "alice", "hi", models.DeliveryPending))
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("insert")))
}

func TestAsInspector(t *testing.T) {
	sqlite := newTestSQLite(t)

	_, ok := AsInspector(sqlite)
	assert.True(t, ok)

	insp, ok := AsInspector(Instrument(sqlite))
	require.True(t, ok)
	result, err := insp.IntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	_, ok = AsInspector(Instrument(&PostgresStore{}))
	assert.False(t, ok)
}
