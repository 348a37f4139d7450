package rag

import (
	"context"
	"errors"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
)

var ErrEmptyQuery = errors.New("rag: empty query")

// Searcher runs a nearest-neighbour lookup. An empty topic means unscoped.
// Implementations return at most k matches ordered by ascending distance.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int, topic string) ([]knowledge.Match, error)
}

// Writer persists chunks keyed by content hash.
type Writer interface {
	HasHash(ctx context.Context, hash string) (bool, error)
	// Insert returns false without error when a chunk with the same hash already exists.
	Insert(ctx context.Context, rec knowledge.Record) (bool, error)
}

type Store interface {
	Searcher
	Writer
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
