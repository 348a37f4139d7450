package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func seed(t *testing.T, s *MemoryStore, hash, topic string, vec []float32, priority int) {
	t.Helper()
	ok, err := s.Insert(context.Background(), knowledge.Record{
		Content:   "content " + hash,
		Topic:     topic,
		Source:    hash + ".md",
		Hash:      hash,
		Embedding: vec,
		Meta:      knowledge.Metadata{EvidencePriority: priority},
	})
	if err != nil || !ok {
		t.Fatalf("Insert(%s): ok=%v err=%v", hash, ok, err)
	}
}

func TestSortMatchesTieBreaksOnEvidencePriority(t *testing.T) {
	matches := []knowledge.Match{
		{Source: "a", Distance: 0.1, EvidencePriority: 1},
		{Source: "b", Distance: 0.1, EvidencePriority: 3},
		{Source: "c", Distance: 0.4, EvidencePriority: 0},
	}
	SortMatches(matches)
	got := []string{matches[0].Source, matches[1].Source, matches[2].Source}
	if strings.Join(got, ",") != "b,a,c" {
		t.Fatalf("SortMatches: want=b,a,c got=%v", got)
	}
}

func TestConfidenceIsMonotonic(t *testing.T) {
	if ConfidenceFromDistances(nil) != 0 {
		t.Fatalf("no scores: want=0")
	}
	prev := 1.0
	for _, d := range []float64{0.2, 0.4, 0.6, 0.9} {
		got := ConfidenceFromDistances([]float64{d})
		if got >= prev {
			t.Fatalf("confidence(%v)=%v not below previous %v", d, got, prev)
		}
		prev = got
	}
	if got := ConfidenceFromDistances([]float64{0.1, 0.5}); got != 0.75 {
		t.Fatalf("average 0.3: want=0.75 got=%v", got)
	}
}

func TestShouldEnforceCitations(t *testing.T) {
	if !ShouldEnforceCitations(0.55, 0.55, 1) {
		t.Fatalf("at threshold with chunks: want enforced")
	}
	if ShouldEnforceCitations(0.90, 0.55, 0) {
		t.Fatalf("no chunks: want relaxed")
	}
	if ShouldEnforceCitations(0.35, 0.55, 3) {
		t.Fatalf("low confidence: want relaxed")
	}
}

func TestFormatAssignsCallScopedIDsAndTruncates(t *testing.T) {
	text, ids := Format(nil)
	if text != EmptyContext || len(ids) != 0 {
		t.Fatalf("Format(nil): want (none) got=%q ids=%v", text, ids)
	}

	long := strings.Repeat("x", chunkDisplayLimit+50)
	text, ids = Format([]knowledge.Match{
		{Content: "breathe slowly", Topic: "breathing", Source: "calm.md", Distance: 0.1234},
		{Content: long, Distance: 0.5},
	})
	if strings.Join(ids, ",") != "K1,K2" {
		t.Fatalf("ids: want=K1,K2 got=%v", ids)
	}
	if !strings.HasPrefix(text, "[K1] topic=breathing source=calm.md score=0.1234\nbreathe slowly") {
		t.Fatalf("first block: got=%q", text[:60])
	}
	if !strings.Contains(text, "[K2] topic=general source=unknown score=0.5000") {
		t.Fatalf("second block fallbacks missing: %q", text)
	}
	if !strings.HasSuffix(text, "…") || strings.Count(text, "x") != chunkDisplayLimit {
		t.Fatalf("long content not truncated to %d runes", chunkDisplayLimit)
	}
}

func TestCitations(t *testing.T) {
	cited := ExtractCitations("Try box breathing [K1]. Also [K3] and again [K1].")
	if strings.Join(cited, ",") != "K1,K3" {
		t.Fatalf("ExtractCitations: want=K1,K3 got=%v", cited)
	}
	bad := InvalidCitations(cited, []string{"K1", "K2"})
	if len(bad) != 1 || bad[0] != "K3" {
		t.Fatalf("InvalidCitations: want=[K3] got=%v", bad)
	}
	if len(ExtractCitations("no tags here")) != 0 {
		t.Fatalf("ExtractCitations: want none")
	}
}

func TestRetrieverSkipsShortText(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	r := NewRetriever(logger.Nop(), emb, NewMemoryStore(), nil, Config{})
	res, err := r.Retrieve(context.Background(), "ok", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Skipped || len(res.Matches) != 0 || res.Context != EmptyContext {
		t.Fatalf("short text: want skipped empty result got=%+v", res)
	}
	if emb.calls != 0 {
		t.Fatalf("short text must not embed: calls=%d", emb.calls)
	}
}

func TestRetrieverTopicScopedWithUnscopedFallback(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "sleep-1", "sleep", []float32{1, 0}, 2)
	seed(t, store, "breath-1", "breathing", []float32{0.9, 0.1}, 4)
	seed(t, store, "sleep-2", "sleep", []float32{0, 1}, 1)

	emb := &fakeEmbedder{vec: []float32{1, 0}}
	r := NewRetriever(logger.Nop(), emb, store, nil, Config{TopK: 2})
	ctx := context.Background()

	res, err := r.Retrieve(ctx, "I cannot sleep well lately", "sleep")
	if err != nil {
		t.Fatalf("Retrieve scoped: %v", err)
	}
	if len(res.Matches) != 2 || res.Matches[0].Source != "sleep-1.md" || res.Topic != "sleep" {
		t.Fatalf("scoped: want sleep-1 first got=%+v", res.Matches)
	}
	for _, m := range res.Matches {
		if m.Topic != "sleep" {
			t.Fatalf("scoped: leaked topic %q", m.Topic)
		}
	}

	res, err = r.Retrieve(ctx, "my child is struggling at school", "youth")
	if err != nil {
		t.Fatalf("Retrieve fallback: %v", err)
	}
	if res.Topic != "" || len(res.Matches) != 2 || res.Matches[0].Source != "sleep-1.md" {
		t.Fatalf("fallback: want unscoped results got topic=%q matches=%+v", res.Topic, res.Matches)
	}
	if strings.Join(res.IDs, ",") != "K1,K2" {
		t.Fatalf("fallback ids: got=%v", res.IDs)
	}
}

func TestRetrieverPropagatesEmbedError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRetriever(logger.Nop(), &fakeEmbedder{err: boom}, NewMemoryStore(), nil, Config{})
	res, err := r.Retrieve(context.Background(), "a long enough question about stress", "")
	if !errors.Is(err, boom) {
		t.Fatalf("Retrieve: want boom got=%v", err)
	}
	if !res.Skipped || res.Context != EmptyContext {
		t.Fatalf("error result: want skipped got=%+v", res)
	}
}

func TestMemoryStoreInsertIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := knowledge.Record{Content: "a", Hash: "h1", Embedding: []float32{1}}
	if ok, err := s.Insert(ctx, rec); err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Insert(ctx, rec); err != nil || ok {
		t.Fatalf("second insert: want skipped got ok=%v err=%v", ok, err)
	}
	if has, _ := s.HasHash(ctx, "h1"); !has {
		t.Fatalf("HasHash: want true")
	}
	if s.Len() != 1 {
		t.Fatalf("Len: want=1 got=%d", s.Len())
	}
}

func TestPreview(t *testing.T) {
	if Preview("short") != "short" {
		t.Fatalf("Preview short: changed")
	}
	got := Preview(strings.Repeat("é", PreviewLimit+1))
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != PreviewLimit+1 {
		t.Fatalf("Preview long: got %d runes", len([]rune(got)))
	}
}

func TestMemoryStoreTieAtCutoffKeepsHigherPriority(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "low", "", []float32{1, 0}, 1)
	seed(t, store, "high", "", []float32{1, 0}, 3)

	got, err := store.Search(context.Background(), []float32{1, 0}, 1, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Source != "high.md" {
		t.Fatalf("k=1 tie: want=high.md got=%+v", got)
	}
}

// distanceOnlyStore ranks by distance alone and cuts at k, like the remote backends.
type distanceOnlyStore struct {
	rows  []knowledge.Match
	asked int
}

func (s *distanceOnlyStore) Search(_ context.Context, _ []float32, k int, _ string) ([]knowledge.Match, error) {
	s.asked = k
	out := append([]knowledge.Match(nil), s.rows...)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func TestRetrieverTieAtCutoffKeepsHigherPriority(t *testing.T) {
	store := &distanceOnlyStore{rows: []knowledge.Match{
		{Source: "low.md", Distance: 0.1, EvidencePriority: 1},
		{Source: "high.md", Distance: 0.1, EvidencePriority: 3},
		{Source: "far.md", Distance: 0.6, EvidencePriority: 4},
	}}
	r := NewRetriever(logger.Nop(), &fakeEmbedder{vec: []float32{1, 0}}, store, nil, Config{TopK: 1})
	res, err := r.Retrieve(context.Background(), "how do I calm down before bed", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.asked <= 1 {
		t.Fatalf("candidates: want more than k=1 got=%d", store.asked)
	}
	if len(res.Matches) != 1 || res.Matches[0].Source != "high.md" {
		t.Fatalf("k=1 tie: want=high.md got=%+v", res.Matches)
	}
	if strings.Join(res.IDs, ",") != "K1" {
		t.Fatalf("ids: want=K1 got=%v", res.IDs)
	}
}

func TestConfigDefaultsMinChars(t *testing.T) {
	if got := (Config{}).withDefaults().MinChars; got != DefaultMinChars {
		t.Fatalf("MinChars default: want=%d got=%d", DefaultMinChars, got)
	}
	if got := (Config{MinChars: 3}).withDefaults().MinChars; got != 3 {
		t.Fatalf("MinChars explicit: want=3 got=%d", got)
	}
}
