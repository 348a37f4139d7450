package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type countingEmbedder struct {
	batches [][]string
	fail    bool
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	if e.fail {
		return nil, errors.New("embedding quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func TestChunkTextWindowsAndOverlap(t *testing.T) {
	text := strings.Repeat("a", 1200) + strings.Repeat("b", 1000)
	chunks := ChunkText(text, 1200, 150)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1200, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, strings.Repeat("a", 150)+strings.Repeat("b", 1000), chunks[1])

	assert.Empty(t, ChunkText("   \n\n  ", 1200, 150))
	assert.Equal(t, []string{"short text"}, ChunkText("  short   text ", 1200, 150))
}

func TestChunkTextIsRuneSafe(t *testing.T) {
	chunks := ChunkText(strings.Repeat("é", 25), 10, 2)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	assert.Len(t, chunks, 3)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a b\n\nc", NormalizeText(" a \t b\r\n\n\n\n\nc "))
}

func TestHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(""))
	assert.Len(t, Hash("calm"), 64)
}

func TestInferEvidence(t *testing.T) {
	cases := []struct {
		file, content string
		level         string
		priority      int
	}{
		{"grossman_2004.pdf", "A meta-analysis of MBSR", knowledge.EvidenceMetaAnalysis, 4},
		{"x.md", "a randomised controlled study", knowledge.EvidenceRCT, 3},
		{"review_of_breath.txt", "notes", knowledge.EvidenceReview, 2},
		{"polyvagal.md", "a framework for safety", knowledge.EvidenceTheory, 1},
		{"notes.md", "just some tips", knowledge.EvidenceUnknown, 0},
	}
	for _, tc := range cases {
		level, priority := InferEvidence(tc.file, tc.content)
		assert.Equal(t, tc.level, level, tc.file)
		assert.Equal(t, tc.priority, priority, tc.file)
	}
}

func TestInferTopic(t *testing.T) {
	assert.Equal(t, "sleep", InferTopic("sleep_hygiene.md", "tips"))
	assert.Equal(t, "polyvagal", InferTopic("notes.md", "the vagus nerve"))
	assert.Equal(t, knowledge.DefaultTopic, InferTopic("misc.txt", "gardening tips"))
}

func newTestIngester(t *testing.T, emb rag.Embedder, store rag.Writer, cfg Config) *Ingester {
	t.Helper()
	in, err := NewIngester(logger.Nop(), emb, store, nil, cfg)
	require.NoError(t, err)
	return in
}

func TestIngestDocumentIsIdempotent(t *testing.T) {
	store := rag.NewMemoryStore()
	emb := &countingEmbedder{}
	in := newTestIngester(t, emb, store, Config{ChunkSize: 100, Overlap: 10, BatchSize: 2})

	doc := Document{Name: "sleep_rct.md", Source: "knowledge/sleep_rct.md", Text: strings.Repeat("Slow breathing before bed helps. ", 12)}
	first := in.IngestDocument(context.Background(), doc)
	require.Greater(t, first.Inserted, 1)
	assert.Zero(t, first.Skipped)
	assert.Zero(t, first.Failed)
	assert.Equal(t, first.Inserted, store.Len())
	for _, b := range emb.batches {
		assert.LessOrEqual(t, len(b), 2)
	}

	embedCalls := len(emb.batches)
	second := in.IngestDocument(context.Background(), doc)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, first.Inserted, second.Skipped)
	assert.Equal(t, embedCalls, len(emb.batches), "known hashes must not be embedded again")

	matches, err := store.Search(context.Background(), []float32{100, 1, 0}, 1, "sleep")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, knowledge.EvidenceRCT, matches[0].EvidenceLevel)
	assert.Equal(t, 3, matches[0].EvidencePriority)
	assert.Equal(t, "sleep_rct.md", matches[0].Filename)
}

func TestIngestDocumentCountsFailures(t *testing.T) {
	store := rag.NewMemoryStore()
	in := newTestIngester(t, &countingEmbedder{fail: true}, store, Config{ChunkSize: 50, Overlap: 5})

	text := strings.Repeat("word ", 30)
	st := in.IngestDocument(context.Background(), Document{Name: "a.md", Text: text})
	assert.Zero(t, st.Inserted)
	assert.Positive(t, st.Failed)
	assert.Equal(t, len(ChunkText(text, 50, 5)), st.Failed+st.Skipped, "repeated windows dedupe before embedding")
	assert.Zero(t, store.Len())

	empty := in.IngestDocument(context.Background(), Document{Name: "empty.md", Text: "  "})
	assert.Equal(t, Stats{Failed: 1}, empty)
}

func TestIngestDirWalksSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "breathing.md"), []byte("Inhale for four, exhale for six."), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "stress.txt"), []byte("Name five things you can see."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blank.txt"), []byte("\n\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("not text"), 0o644))

	files, err := ListDocuments(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	store := rag.NewMemoryStore()
	in := newTestIngester(t, &countingEmbedder{}, store, Config{Concurrency: 2})
	st, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 2, Failed: 1}, st)

	again, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 2, Failed: 1}, again)

	_, err = in.IngestDir(context.Background(), t.TempDir())
	assert.Error(t, err)
}
