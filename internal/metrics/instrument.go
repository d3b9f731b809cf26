package metrics

import (
	"context"
	"time"

	"github.com/dropDatabas3/indieauth/internal/storage"
)

// InstrumentedStore decora un storage.Store con histograma de latencia y
// contador de errores por operación. storage.ErrNotFound no cuenta como
// error: es un resultado normal de lookup.
type InstrumentedStore[R storage.Entity] struct {
	inner   storage.Store[R]
	backend string
	kind    string
}

func InstrumentStore[R storage.Entity](inner storage.Store[R], backend, kind string) *InstrumentedStore[R] {
	return &InstrumentedStore[R]{inner: inner, backend: backend, kind: kind}
}

func (s *InstrumentedStore[R]) observe(op string, start time.Time, err error) {
	StorageOpDuration.WithLabelValues(s.backend, s.kind, op).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil && err != storage.ErrNotFound {
		StorageOpErrors.WithLabelValues(s.backend, s.kind, op).Inc()
	}
}

func (s *InstrumentedStore[R]) StoreOne(ctx context.Context, rec R) (R, error) {
	start := time.Now()
	out, err := s.inner.StoreOne(ctx, rec)
	s.observe("store_one", start, err)
	return out, err
}

func (s *InstrumentedStore[R]) RetrieveOne(ctx context.Context, q *storage.SelectQuery) (R, error) {
	start := time.Now()
	out, err := s.inner.RetrieveOne(ctx, q)
	s.observe("retrieve_one", start, err)
	return out, err
}

func (s *InstrumentedStore[R]) RetrieveMany(ctx context.Context, q *storage.SelectQuery) ([]R, error) {
	start := time.Now()
	out, err := s.inner.RetrieveMany(ctx, q)
	s.observe("retrieve_many", start, err)
	return out, err
}

func (s *InstrumentedStore[R]) UpdateMany(ctx context.Context, q storage.UpdateQuery) ([]R, error) {
	start := time.Now()
	out, err := s.inner.UpdateMany(ctx, q)
	s.observe("update_many", start, err)
	return out, err
}

func (s *InstrumentedStore[R]) RemoveMany(ctx context.Context, q *storage.DeleteQuery) ([]R, error) {
	start := time.Now()
	out, err := s.inner.RemoveMany(ctx, q)
	s.observe("remove_many", start, err)
	return out, err
}
