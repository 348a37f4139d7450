package steps

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	chatrepo "github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/testutil"
	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/llm"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
)

type fakeProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []llm.CompletionRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return llm.Completion{}, p.err
	}
	return llm.Completion{Text: p.text, Model: "fake-1", InputTokens: 10, OutputTokens: 5}, nil
}

type fixedEmbedder struct {
	calls int
}

func (e *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type harness struct {
	db       *gorm.DB
	deps     HandleDeps
	provider *fakeProvider
	embedder *fixedEmbedder
	store    *rag.MemoryStore
}

func newHarness(t *testing.T, provider *fakeProvider) *harness {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	h := &harness{db: db, provider: provider, embedder: &fixedEmbedder{}, store: rag.NewMemoryStore()}
	h.deps = HandleDeps{
		Log:           log,
		Users:         chatrepo.NewUserRepo(db, log),
		Conversations: chatrepo.NewConversationRepo(db, log),
		Messages:      chatrepo.NewMessageRepo(db, log),
		Retriever:     rag.NewRetriever(log, h.embedder, h.store, nil, rag.Config{TopK: 5, MinChars: 15}),
		Serializer:    LocalSerializer(),
		Debug:         true,
	}
	if provider != nil {
		h.deps.Generator = llm.NewGenerator(log, provider, nil, llm.GeneratorConfig{MaxTokens: 450, Temperature: 0.4})
	}
	return h
}

func (h *harness) send(t *testing.T, externalID, text string) HandleOutput {
	t.Helper()
	out, err := HandleMessage(context.Background(), h.deps, HandleInput{Source: types.SourceWeb, ExternalID: externalID, Text: text})
	require.NoError(t, err)
	return out
}

func (h *harness) messages(t *testing.T, conversationID uuid.UUID) []*types.Message {
	t.Helper()
	msgs, err := h.deps.Messages.ListPage(dbctx.New(context.Background()), conversationID, 200, 0)
	require.NoError(t, err)
	return msgs
}

func TestRuleBasedReply(t *testing.T) {
	assert.Equal(t, menuText, RuleBasedReply(" MENU "))
	assert.Equal(t, breathingScript, RuleBasedReply("1"))
	assert.Equal(t, sleepScript, RuleBasedReply("Sleep"))
	assert.Equal(t, stressScript, RuleBasedReply("stress/anxiety"))
	assert.Equal(t, greetingReply, RuleBasedReply("hey"))
	assert.Equal(t, defaultReply, RuleBasedReply("the weather is odd"))
	assert.True(t, IsResetCommand(" Restart"))
	assert.False(t, IsResetCommand("reset please"))
	assert.True(t, strings.HasPrefix(ResetReply(), "✅ Restarted.\n\n"))
}

func TestHandleMessageCrisisShortCircuits(t *testing.T) {
	p := &fakeProvider{text: "should not be used"}
	h := newHarness(t, p)

	out := h.send(t, "web-crisis", "I want to end my life")
	assert.Equal(t, BranchCrisis, out.Branch)
	assert.Contains(t, out.Reply, "988")
	assert.Empty(t, p.calls, "crisis must not reach the provider")
	assert.Zero(t, h.embedder.calls, "crisis must not embed")

	msgs := h.messages(t, out.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, out.Reply, msgs[1].Content)
}

func TestHandleMessageSlangSelfHarmIsCrisis(t *testing.T) {
	p := &fakeProvider{text: "should not be used"}
	h := newHarness(t, p)

	out := h.send(t, "web-slang", "honestly i wanna die")
	assert.Equal(t, BranchCrisis, out.Branch)
	assert.Contains(t, out.Reply, "988")
	assert.Empty(t, p.calls)
}

func TestHandleMessageResetMovesToFreshConversation(t *testing.T) {
	h := newHarness(t, nil)

	first := h.send(t, "web-reset", "hello")
	second := h.send(t, "web-reset", "reset")

	assert.Equal(t, BranchReset, second.Branch)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, ResetReply(), second.Reply)

	old, err := h.deps.Conversations.GetByID(dbctx.New(context.Background()), first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, old.Status)

	oldMsgs := h.messages(t, first.ConversationID)
	require.Len(t, oldMsgs, 3, "greeting pair plus the reset command")
	newMsgs := h.messages(t, second.ConversationID)
	require.Len(t, newMsgs, 1)
	assert.Equal(t, types.RoleAssistant, newMsgs[0].Role)

	third := h.send(t, "web-reset", "1")
	assert.Equal(t, second.ConversationID, third.ConversationID)
}

func TestHandleMessageMenuSelectionUsesScript(t *testing.T) {
	p := &fakeProvider{text: "unused"}
	h := newHarness(t, p)

	out := h.send(t, "web-menu", "1")
	assert.Equal(t, BranchScript, out.Branch)
	assert.Equal(t, breathingScript, out.Reply)
	assert.Empty(t, p.calls)
}

func TestHandleMessageGreetingWithoutProviderFallsBack(t *testing.T) {
	h := newHarness(t, nil)

	out := h.send(t, "web-hello", "hello")
	assert.Equal(t, BranchFallback, out.Branch)
	assert.Equal(t, greetingReply, out.Reply)
	assert.Len(t, h.messages(t, out.ConversationID), 2)
	require.NotNil(t, out.RAG)
	assert.Equal(t, rag.EmptyContext, out.RAG.Preview)
}

func TestHandleMessageShortTextSkipsRetrieval(t *testing.T) {
	p := &fakeProvider{text: "Okay. Want to try a slow breath together?"}
	h := newHarness(t, p)

	out := h.send(t, "web-ok", "ok")
	assert.Equal(t, BranchLLM, out.Branch)
	assert.Zero(t, h.embedder.calls)
	require.Len(t, p.calls, 1)
	assert.Contains(t, p.calls[0].System, "(none)")
	assert.Equal(t, 0, out.RAG.RetrievedCount)
	assert.True(t, out.RAG.RetrievalSkipped)
	assert.False(t, out.RAG.EnforceCitations)
}

func TestHandleMessageGroundedReplyWithCitations(t *testing.T) {
	p := &fakeProvider{text: "Try lengthening your exhale before bed [K1]. Also see [K9]."}
	h := newHarness(t, p)
	_, err := h.store.Insert(context.Background(), knowledge.Record{
		Content:   "A longer exhale than inhale helps the body settle before sleep.",
		Topic:     "sleep",
		Source:    "sleep.md",
		Hash:      "sleep-1",
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)

	out := h.send(t, "web-sleep", "I keep lying awake in bed every night")
	assert.Equal(t, BranchLLM, out.Branch)
	assert.Equal(t, p.text, out.Reply)
	assert.True(t, out.UsedKB)
	assert.Equal(t, []string{"K1", "K9"}, out.Citations)

	require.NotNil(t, out.RAG)
	assert.Equal(t, 1, out.RAG.RetrievedCount)
	assert.Equal(t, []string{"K1"}, out.RAG.ValidIDs)
	assert.Equal(t, "sleep", out.RAG.Topic)
	assert.Equal(t, "sleep", out.RAG.SearchTopic)
	assert.False(t, out.RAG.RetrievalSkipped)
	assert.InDelta(t, 0.90, out.RAG.Confidence, 1e-9)
	assert.True(t, out.RAG.EnforceCitations)

	require.Len(t, p.calls, 1)
	system := p.calls[0].System
	assert.Contains(t, system, "=== Topic Hint ===")
	assert.Contains(t, system, "[K1] topic=sleep source=sleep.md")
	require.NotEmpty(t, p.calls[0].Turns)
	last := p.calls[0].Turns[len(p.calls[0].Turns)-1]
	assert.Equal(t, llm.Turn{Role: types.RoleUser, Content: "I keep lying awake in bed every night"}, last)
}

func TestHandleMessageProviderFailureFallsBack(t *testing.T) {
	p := &fakeProvider{err: errors.New("upstream 529")}
	h := newHarness(t, p)

	out := h.send(t, "web-fail", "what dosage of melatonin should I take for sleep")
	assert.Equal(t, BranchFallback, out.Branch)
	assert.True(t, strings.HasPrefix(out.Reply, defaultReply))
	assert.Contains(t, out.Reply, "not a medical professional")
	assert.Len(t, h.messages(t, out.ConversationID), 2)
}

func TestMaybeUpdateSummaryIsGatedAndIdempotent(t *testing.T) {
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	deps := SummarizeDeps{
		Log:           log,
		Conversations: chatrepo.NewConversationRepo(db, log),
		Messages:      chatrepo.NewMessageRepo(db, log),
	}

	u := testutil.SeedUser(t, ctx, db, "web-summary")
	c := testutil.SeedConversation(t, ctx, db, u.ID, types.StatusActive)
	testutil.SeedMessages(t, ctx, db, c.ID, types.RoleUser, "one", "two", "three", "four", "five")

	updated, err := MaybeUpdateSummary(ctx, deps, c.ID)
	require.NoError(t, err)
	assert.False(t, updated, "five user messages is below the threshold")

	testutil.SeedMessages(t, ctx, db, c.ID, types.RoleUser, "six")
	updated, err = MaybeUpdateSummary(ctx, deps, c.ID)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := deps.Conversations.GetByID(dbctx.New(ctx), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recent: one; two; three; four; five; six", got.Summary)
	require.NotNil(t, got.SummaryUpdatedAt)

	updated, err = MaybeUpdateSummary(ctx, deps, c.ID)
	require.NoError(t, err)
	assert.False(t, updated, "no new user messages since the last update")

	missing, err := MaybeUpdateSummary(ctx, deps, uuid.New())
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestBuildSummary(t *testing.T) {
	msgs := []*types.Message{
		{Role: types.RoleUser, Content: "a"},
		{Role: types.RoleAssistant, Content: "ignored"},
		{Role: types.RoleUser, Content: " b "},
		{Role: types.RoleUser, Content: "c"},
		{Role: types.RoleUser, Content: "d"},
		{Role: types.RoleUser, Content: "e"},
		{Role: types.RoleUser, Content: "f"},
		{Role: types.RoleUser, Content: "g"},
	}
	assert.Equal(t, "old\nRecent: b; c; d; e; f; g", BuildSummary("old", msgs, 1200))
	assert.Equal(t, "keep", BuildSummary("keep", msgs[1:2], 1200))

	long := BuildSummary(strings.Repeat("é", 50), msgs, 20)
	assert.Equal(t, 20, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "e; f; g"))
}

func TestLocalSerializerExcludesSameKey(t *testing.T) {
	s := LocalSerializer()
	release, err := s.Acquire(context.Background(), "web:a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "web:a")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := s.Acquire(context.Background(), "web:b")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := s.Acquire(context.Background(), "web:a")
	require.NoError(t, err)
	again()
}

func TestSerializeKey(t *testing.T) {
	assert.Equal(t, "user:whatsapp:+1555", SerializeKey(" whatsapp:+1555 "))
	assert.Equal(t, SerializeKey("shared-id"), SerializeKey(" shared-id"))
}

type recordingSerializer struct {
	keys []string
}

func (r *recordingSerializer) Acquire(_ context.Context, key string) (func(), error) {
	r.keys = append(r.keys, key)
	return func() {}, nil
}

func TestHandleMessageSerializesPerUserAcrossChannels(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recordingSerializer{}
	h.deps.Serializer = rec

	web := h.send(t, "+15550007", "hello")
	wa, err := HandleMessage(context.Background(), h.deps, HandleInput{Source: types.SourceWhatsApp, ExternalID: "+15550007", Text: "menu"})
	require.NoError(t, err)

	require.Len(t, rec.keys, 2)
	assert.Equal(t, rec.keys[0], rec.keys[1])
	assert.Equal(t, web.ConversationID, wa.ConversationID)
}
