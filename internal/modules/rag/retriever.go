package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const (
	DefaultTopK     = 5
	DefaultMinChars = 15

	// Stores rank by distance alone, so candidates are over-fetched and the
	// evidence-priority tie-break is applied here before the top-k cut.
	candidateFactor = 4
)

type Config struct {
	TopK     int
	MinChars int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MinChars <= 0 {
		c.MinChars = DefaultMinChars
	}
	return c
}

// Result is one retrieval call. IDs are scoped to this call only.
type Result struct {
	Matches    []knowledge.Match
	Context    string
	IDs        []string
	Confidence float64
	Skipped    bool
	Topic      string
}

type Retriever struct {
	log      *logger.Logger
	embedder Embedder
	store    Searcher
	metrics  *observability.Metrics
	cfg      Config
}

func NewRetriever(log *logger.Logger, embedder Embedder, store Searcher, metrics *observability.Metrics, cfg Config) *Retriever {
	return &Retriever{
		log:      log.With("service", "Retriever"),
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
	}
}

func skipped() Result {
	return Result{Context: EmptyContext, Skipped: true}
}

// Retrieve embeds text and returns up to TopK matches. Text shorter than MinChars
// is not embedded. A topic-scoped search that finds nothing is retried unscoped.
func (r *Retriever) Retrieve(ctx context.Context, text, topic string) (Result, error) {
	if r == nil || r.embedder == nil || r.store == nil {
		return skipped(), nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return skipped(), ErrEmptyQuery
	}
	if utf8.RuneCountInString(text) < r.cfg.MinChars {
		r.metrics.IncRetrieval("skipped")
		return skipped(), nil
	}

	ctx, span := otel.Tracer("medi/rag").Start(ctx, "rag.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("rag.topic", topic), attribute.Int("rag.k", r.cfg.TopK))

	vecs, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		r.metrics.IncRetrieval("error")
		span.RecordError(err)
		return skipped(), fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		r.metrics.IncRetrieval("error")
		return skipped(), fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	candidates := r.cfg.TopK * candidateFactor
	matches, err := r.store.Search(ctx, vecs[0], candidates, topic)
	if err != nil {
		r.metrics.IncRetrieval("error")
		span.RecordError(err)
		return skipped(), fmt.Errorf("search: %w", err)
	}
	used := topic
	if len(matches) == 0 && topic != "" {
		r.log.Debug("No topic-scoped matches; retrying unscoped", "topic", topic)
		matches, err = r.store.Search(ctx, vecs[0], candidates, "")
		if err != nil {
			r.metrics.IncRetrieval("error")
			span.RecordError(err)
			return skipped(), fmt.Errorf("search unscoped: %w", err)
		}
		used = ""
	}

	SortMatches(matches)
	if len(matches) > r.cfg.TopK {
		matches = matches[:r.cfg.TopK]
	}
	ctxText, ids := Format(matches)
	res := Result{
		Matches:    matches,
		Context:    ctxText,
		IDs:        ids,
		Confidence: Confidence(matches),
		Topic:      used,
	}
	if len(matches) == 0 {
		r.metrics.IncRetrieval("empty")
	} else {
		r.metrics.IncRetrieval("hit")
	}
	span.SetAttributes(attribute.Int("rag.matches", len(matches)), attribute.Float64("rag.confidence", res.Confidence))
	return res, nil
}
