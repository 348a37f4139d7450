package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/twilio"
	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/apierr"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type fakeChat struct {
	mu     sync.Mutex
	inputs []chat.HandleInput
	out    chat.HandleOutput
	err    error

	pageLimit  int
	pageOffset int
	page       []*types.Message

	latestID  uuid.UUID
	latestErr error
}

func (f *fakeChat) HandleMessage(_ context.Context, in chat.HandleInput) (chat.HandleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return f.out, f.err
}

func (f *fakeChat) ConversationMessages(_ context.Context, _ uuid.UUID, limit, offset int) ([]*types.Message, error) {
	f.pageLimit, f.pageOffset = limit, offset
	return f.page, nil
}

func (f *fakeChat) LatestMessages(_ context.Context, _ uuid.UUID, _ int) (uuid.UUID, []*types.Message, error) {
	if f.latestErr != nil {
		return uuid.Nil, nil, f.latestErr
	}
	return f.latestID, f.page, nil
}

func (f *fakeChat) calls() []chat.HandleInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.HandleInput(nil), f.inputs...)
}

type fakeSender struct {
	sent chan string
}

func (s *fakeSender) SendTemplate(_ context.Context, to, contentSID string) (*twilio.Message, error) {
	s.sent <- to + "|" + contentSID
	return &twilio.Message{}, nil
}

func newEngine(svc *fakeChat, sender MenuSender, template string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	ch := NewChatHandler(log, svc)
	tw := NewTwilioHandler(log, svc, sender, template)
	h := NewHealthHandler("medi", "test")

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/healthcheck", h.HealthCheck)
	r.POST("/chat", ch.Chat)
	r.GET("/conversations/:id/messages", ch.ConversationMessages)
	r.GET("/users/:id/latest-messages", ch.LatestMessages)
	r.POST("/webhook/twilio", tw.Webhook)
	return r
}

func do(t *testing.T, r http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := newEngine(&fakeChat{}, nil, "")

	rec := do(t, r, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "medi", body["app"])
	assert.Equal(t, "test", body["env"])

	rec = do(t, r, http.MethodGet, "/healthcheck", "", "")
	assert.Equal(t, "ok", rec.Body.String())
}

func TestChatReturnsReplyWithoutDebugFields(t *testing.T) {
	convID := uuid.New()
	svc := &fakeChat{out: chat.HandleOutput{ConversationID: convID, Reply: "hello there"}}
	r := newEngine(svc, nil, "")

	rec := do(t, r, http.MethodPost, "/chat", "application/json", `{"user_id":"web-42","text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, convID.String(), body["conversation_id"])
	assert.Equal(t, "hello there", body["reply"])
	assert.NotContains(t, body, "rag")
	assert.NotContains(t, body, "used_kb")

	calls := svc.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.SourceWeb, calls[0].Source)
	assert.Equal(t, "web-42", calls[0].ExternalID)
}

func TestChatIncludesDebugFieldsWhenPresent(t *testing.T) {
	svc := &fakeChat{out: chat.HandleOutput{
		ConversationID: uuid.New(),
		Reply:          "grounded [K1]",
		UsedKB:         true,
		Citations:      []string{"K1"},
		RAG:            &chat.RAGDebug{RetrievedCount: 2, ValidIDs: []string{"K1", "K2"}, Topic: "sleep"},
	}}
	r := newEngine(svc, nil, "")

	rec := do(t, r, http.MethodPost, "/chat", "application/json", `{"user_id":"web-1","text":"cannot sleep"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UsedKB    bool          `json:"used_kb"`
		Citations []string      `json:"citations"`
		RAG       chat.RAGDebug `json:"rag"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.UsedKB)
	assert.Equal(t, []string{"K1"}, body.Citations)
	assert.Equal(t, 2, body.RAG.RetrievedCount)
	assert.Equal(t, "sleep", body.RAG.Topic)
}

func TestChatValidation(t *testing.T) {
	svc := &fakeChat{}
	r := newEngine(svc, nil, "")

	for _, payload := range []string{`{"text":"hi"}`, `{"user_id":"u"}`, `{"user_id":"  ","text":"hi"}`, `not json`} {
		rec := do(t, r, http.MethodPost, "/chat", "application/json", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
	assert.Empty(t, svc.calls())
}

func TestChatPipelineErrorIs500(t *testing.T) {
	svc := &fakeChat{err: errors.New("db down")}
	r := newEngine(svc, nil, "")

	rec := do(t, r, http.MethodPost, "/chat", "application/json", `{"user_id":"u","text":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"chat_failed"`)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestConversationMessagesPaging(t *testing.T) {
	convID := uuid.New()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := &fakeChat{page: []*types.Message{
		{ID: uuid.New(), ConversationID: convID, Role: types.RoleUser, Content: "hi", CreatedAt: at},
		{ID: uuid.New(), ConversationID: convID, Role: types.RoleAssistant, Content: "hello", CreatedAt: at.Add(time.Second)},
	}}
	r := newEngine(svc, nil, "")

	rec := do(t, r, http.MethodGet, "/conversations/"+convID.String()+"/messages", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultPageLimit, svc.pageLimit)
	assert.Equal(t, 0, svc.pageOffset)

	var body struct {
		ConversationID string `json:"conversation_id"`
		Messages       []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, convID.String(), body.ConversationID)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "hello", body.Messages[1].Content)

	rec = do(t, r, http.MethodGet, "/conversations/"+convID.String()+"/messages?limit=10&offset=20", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, svc.pageLimit)
	assert.Equal(t, 20, svc.pageOffset)

	for _, q := range []string{"?limit=0", "?limit=201", "?limit=abc", "?offset=-1"} {
		rec = do(t, r, http.MethodGet, "/conversations/"+convID.String()+"/messages"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	rec = do(t, r, http.MethodGet, "/conversations/not-a-uuid/messages", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestMessagesNotFound(t *testing.T) {
	svc := &fakeChat{latestErr: apierr.New(http.StatusNotFound, "not_found", chat.ErrNoActiveConversation)}
	r := newEngine(svc, nil, "")

	rec := do(t, r, http.MethodGet, "/users/"+uuid.NewString()+"/latest-messages", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No active conversation found")
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
}

func TestLatestMessagesUnexpectedErrorIs500(t *testing.T) {
	svc := &fakeChat{latestErr: errors.New("db gone")}
	r := newEngine(svc, nil, "")

	rec := do(t, r, http.MethodGet, "/users/"+uuid.NewString()+"/latest-messages", "", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"list_messages_failed"`)
}

func TestLatestMessagesReturnsActiveConversation(t *testing.T) {
	convID := uuid.New()
	svc := &fakeChat{latestID: convID, page: []*types.Message{{ID: uuid.New(), Role: types.RoleUser, Content: "hey"}}}
	r := newEngine(svc, nil, "")

	rec := do(t, r, http.MethodGet, "/users/"+uuid.NewString()+"/latest-messages", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), convID.String())
	assert.Contains(t, rec.Body.String(), `"content":"hey"`)
}

func TestTwilioWebhookRepliesWithTwiML(t *testing.T) {
	svc := &fakeChat{out: chat.HandleOutput{ConversationID: uuid.New(), Reply: "Take a slow breath & relax"}}
	r := newEngine(svc, nil, "")

	form := url.Values{"From": {"whatsapp:+15550001"}, "Body": {"  I feel stressed  "}}
	rec := do(t, r, http.MethodPost, "/webhook/twilio", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, twilio.TwiMLContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Message>Take a slow breath &amp; relax</Message>")

	calls := svc.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.SourceWhatsApp, calls[0].Source)
	assert.Equal(t, "whatsapp:+15550001", calls[0].ExternalID)
	assert.Equal(t, "I feel stressed", calls[0].Text)
}

func TestTwilioWebhookMenuPushesTemplate(t *testing.T) {
	svc := &fakeChat{}
	sender := &fakeSender{sent: make(chan string, 1)}
	r := newEngine(svc, sender, "HX123")

	form := url.Values{"From": {"whatsapp:+15550002"}, "Body": {"MENU"}}
	rec := do(t, r, http.MethodPost, "/webhook/twilio", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response></Response>")

	select {
	case got := <-sender.sent:
		assert.Equal(t, "whatsapp:+15550002|HX123", got)
	case <-time.After(2 * time.Second):
		t.Fatal("menu template was not pushed")
	}
	assert.Empty(t, svc.calls())
}

func TestTwilioWebhookMenuWithoutTemplateUsesPipeline(t *testing.T) {
	svc := &fakeChat{out: chat.HandleOutput{Reply: "menu text"}}
	r := newEngine(svc, nil, "HX123")

	form := url.Values{"From": {"whatsapp:+15550003"}, "Body": {"menu"}}
	rec := do(t, r, http.MethodPost, "/webhook/twilio", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Message>menu text</Message>")
	assert.Len(t, svc.calls(), 1)
}

func TestTwilioWebhookPipelineErrorStillAcks(t *testing.T) {
	svc := &fakeChat{err: errors.New("boom")}
	r := newEngine(svc, nil, "")

	form := url.Values{"From": {"whatsapp:+15550004"}, "Body": {"hi"}}
	rec := do(t, r, http.MethodPost, "/webhook/twilio", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response></Response>")
}
