package app

import (
	"context"
	"time"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
)

type instrumentedStore struct {
	backend string
	inner   rag.Store
	metrics *observability.Metrics
}

func instrumentStore(backend string, inner rag.Store, metrics *observability.Metrics) rag.Store {
	if inner == nil {
		return nil
	}
	if metrics == nil {
		return inner
	}
	return &instrumentedStore{backend: backend, inner: inner, metrics: metrics}
}

func (s *instrumentedStore) HasHash(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.HasHash(ctx, hash)
	s.observe("has_hash", err, time.Since(start))
	return ok, err
}

func (s *instrumentedStore) Insert(ctx context.Context, rec knowledge.Record) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Insert(ctx, rec)
	s.observe("insert", err, time.Since(start))
	return ok, err
}

func (s *instrumentedStore) Search(ctx context.Context, query []float32, k int, topic string) ([]knowledge.Match, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, query, k, topic)
	s.observe("search", err, time.Since(start))
	return out, err
}

func (s *instrumentedStore) observe(operation string, err error, dur time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveStoreOperation(s.backend, operation, status, dur)
}
