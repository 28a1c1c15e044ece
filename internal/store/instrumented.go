package store

import (
	"context"
	"time"

	"github.com/Tyrone-Ward/nodeify/internal/metrics"
	"github.com/Tyrone-Ward/nodeify/internal/models"
)

// InstrumentedStore records latency and failures of the delivery path
// operations of the wrapped store.
type InstrumentedStore struct {
	DataStore
}

// Instrument wraps ds with Prometheus instrumentation.
func Instrument(ds DataStore) *InstrumentedStore {
	return &InstrumentedStore{DataStore: ds}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() DataStore { return s.DataStore }

func observe(op string, start time.Time, err error) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (s *InstrumentedStore) GetClientToken(ctx context.Context, token string) (*models.ClientToken, error) {
	start := time.Now()
	ct, err := s.DataStore.GetClientToken(ctx, token)
	observe("get_token", start, err)
	return ct, err
}

func (s *InstrumentedStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	start := time.Now()
	err := s.DataStore.InsertMessage(ctx, msg)
	observe("insert", start, err)
	return err
}

func (s *InstrumentedStore) PendingMessages(ctx context.Context, recipient string) ([]models.Message, error) {
	start := time.Now()
	msgs, err := s.DataStore.PendingMessages(ctx, recipient)
	observe("pending", start, err)
	return msgs, err
}

func (s *InstrumentedStore) MarkDelivered(ctx context.Context, id string) error {
	start := time.Now()
	err := s.DataStore.MarkDelivered(ctx, id)
	observe("mark", start, err)
	return err
}

// AsInspector returns ds, or the store it wraps, as an Inspector.
func AsInspector(ds DataStore) (Inspector, bool) {
	for {
		if insp, ok := ds.(Inspector); ok {
			return insp, true
		}
		w, ok := ds.(interface{ Unwrap() DataStore })
		if !ok {
			return nil, false
		}
		ds = w.Unwrap()
	}
}
