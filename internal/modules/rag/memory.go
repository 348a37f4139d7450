package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
)

type memoryRow struct {
	rec knowledge.Record
	seq int
}

// MemoryStore is an in-process Store using L2 distance. It backs local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []memoryRow
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: map[string]struct{}{}}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) HasHash(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[hash]
	return ok, nil
}

func (s *MemoryStore) Insert(_ context.Context, rec knowledge.Record) (bool, error) {
	if strings.TrimSpace(rec.Hash) == "" {
		return false, fmt.Errorf("rag: missing chunk hash")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[rec.Hash]; ok {
		return false, nil
	}
	s.seen[rec.Hash] = struct{}{}
	s.rows = append(s.rows, memoryRow{rec: rec, seq: len(s.rows)})
	return true, nil
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, k int, topic string) ([]knowledge.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []knowledge.Match{}, nil
	}
	s.mu.RLock()
	out := make([]knowledge.Match, 0, len(s.rows))
	for _, row := range s.rows {
		if topic != "" && row.rec.Topic != topic {
			continue
		}
		if len(row.rec.Embedding) != len(query) {
			continue
		}
		out = append(out, knowledge.Match{
			Content:          row.rec.Content,
			Topic:            row.rec.Topic,
			Source:           row.rec.Source,
			Filename:         row.rec.Meta.Filename,
			Distance:         l2(query, row.rec.Embedding),
			EvidenceLevel:    row.rec.Meta.EvidenceLevel,
			EvidencePriority: row.rec.Meta.EvidencePriority,
		})
	}
	s.mu.RUnlock()

	SortMatches(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
