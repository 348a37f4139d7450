package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

type Config struct {
	ChunkSize   int
	Overlap     int
	BatchSize   int
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap <= 0 {
		c.Overlap = DefaultOverlap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Stats counts chunk outcomes. Failed also counts documents that yield no text.
type Stats struct {
	Inserted int
	Skipped  int
	Failed   int
}

func (s *Stats) add(o Stats) {
	s.Inserted += o.Inserted
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

type Document struct {
	Name   string
	Source string
	Text   string
}

type Ingester struct {
	log      *logger.Logger
	embedder rag.Embedder
	store    rag.Writer
	metrics  *observability.Metrics
	cfg      Config
}

func NewIngester(log *logger.Logger, embedder rag.Embedder, store rag.Writer, metrics *observability.Metrics, cfg Config) (*Ingester, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embedder == nil || store == nil {
		return nil, fmt.Errorf("embedder and store required")
	}
	return &Ingester{
		log:      log.With("service", "Ingester"),
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
	}, nil
}

// IngestDir loads every supported file under dir. Per-file problems are
// counted, not returned; only listing failures and cancellation are errors.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (Stats, error) {
	files, err := ListDocuments(dir)
	if err != nil {
		return Stats{}, err
	}
	if len(files) == 0 {
		return Stats{}, fmt.Errorf("no .md/.txt/.pdf files found in %s", dir)
	}

	var (
		mu    sync.Mutex
		total Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)
	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var st Stats
			raw, err := LoadDocument(path)
			if err != nil {
				in.log.Warn("Could not extract text", "file", filepath.Base(path), "error", err)
				st.Failed = 1
			} else {
				st = in.IngestDocument(gctx, Document{Name: filepath.Base(path), Source: path, Text: raw})
			}
			mu.Lock()
			total.add(st)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	in.log.Info("Ingestion finished", "files", len(files), "inserted", total.Inserted, "skipped", total.Skipped, "failed", total.Failed)
	return total, nil
}

type pending struct {
	content string
	hash    string
}

// IngestDocument chunks, dedupes by content hash, embeds the new chunks in
// batches and writes them.
func (in *Ingester) IngestDocument(ctx context.Context, doc Document) Stats {
	var st Stats
	defer func() {
		in.metrics.AddIngestChunks("inserted", st.Inserted)
		in.metrics.AddIngestChunks("skipped", st.Skipped)
		in.metrics.AddIngestChunks("failed", st.Failed)
	}()

	if strings.TrimSpace(doc.Text) == "" {
		in.log.Warn("No text extracted", "file", doc.Name)
		st.Failed++
		return st
	}
	chunks := ChunkText(doc.Text, in.cfg.ChunkSize, in.cfg.Overlap)
	if len(chunks) == 0 {
		st.Failed++
		return st
	}

	normalized := NormalizeText(doc.Text)
	topicName := InferTopic(doc.Name, normalized)
	level, priority := InferEvidence(doc.Name, normalized)
	meta := knowledge.Metadata{Filename: doc.Name, EvidenceLevel: level, EvidencePriority: priority}
	in.log.Debug("Document chunked", "file", doc.Name, "chunks", len(chunks), "topic", topicName, "evidence_level", level)

	seen := make(map[string]struct{}, len(chunks))
	todo := make([]pending, 0, len(chunks))
	for _, c := range chunks {
		h := Hash(c)
		if _, dup := seen[h]; dup {
			st.Skipped++
			continue
		}
		seen[h] = struct{}{}
		exists, err := in.store.HasHash(ctx, h)
		if err != nil {
			in.log.Warn("Hash lookup failed", "file", doc.Name, "error", err)
			st.Failed++
			continue
		}
		if exists {
			st.Skipped++
			continue
		}
		todo = append(todo, pending{content: c, hash: h})
	}

	for start := 0; start < len(todo); start += in.cfg.BatchSize {
		end := start + in.cfg.BatchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[start:end]
		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.content
		}
		vecs, err := in.embedder.Embed(ctx, texts)
		if err != nil || len(vecs) != len(batch) {
			in.log.Warn("Embedding batch failed", "file", doc.Name, "batch", len(batch), "error", err)
			st.Failed += len(batch)
			continue
		}
		for i, p := range batch {
			ok, err := in.store.Insert(ctx, knowledge.Record{
				Content:   p.content,
				Topic:     topicName,
				Source:    doc.Source,
				Hash:      p.hash,
				Embedding: vecs[i],
				Meta:      meta,
			})
			switch {
			case err != nil:
				in.log.Warn("Chunk insert failed", "file", doc.Name, "error", err)
				st.Failed++
			case ok:
				st.Inserted++
			default:
				st.Skipped++
			}
		}
	}
	return st
}
