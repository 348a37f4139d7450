package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	chatrepo "github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/chat"
	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/chat/steps"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/llm"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/apierr"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

var ErrNoActiveConversation = errors.New("No active conversation found")

type Config struct {
	MaxHistory        int
	CitationThreshold float64
	Summary           steps.SummaryConfig
	Debug             bool
}

type UsecasesDeps struct {
	Log *logger.Logger

	Users         chatrepo.UserRepo
	Conversations chatrepo.ConversationRepo
	Messages      chatrepo.MessageRepo

	Retriever  *rag.Retriever
	Generator  *llm.Generator
	Serializer steps.Serializer
	Metrics    *observability.Metrics

	Config Config
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	deps.Log = deps.Log.With("service", "ChatUsecases")
	if deps.Serializer == nil {
		deps.Serializer = steps.NoopSerializer()
	}
	return Usecases{deps: deps}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

type (
	HandleInput  = steps.HandleInput
	HandleOutput = steps.HandleOutput
	RAGDebug     = steps.RAGDebug
)

func (u Usecases) HandleMessage(ctx context.Context, in HandleInput) (HandleOutput, error) {
	return steps.HandleMessage(ctx, steps.HandleDeps{
		Log:               u.deps.Log,
		Users:             u.deps.Users,
		Conversations:     u.deps.Conversations,
		Messages:          u.deps.Messages,
		Retriever:         u.deps.Retriever,
		Generator:         u.deps.Generator,
		Serializer:        u.deps.Serializer,
		Metrics:           u.deps.Metrics,
		MaxHistory:        u.deps.Config.MaxHistory,
		CitationThreshold: u.deps.Config.CitationThreshold,
		Summary:           u.deps.Config.Summary,
		Debug:             u.deps.Config.Debug,
	}, in)
}

func (u Usecases) MaybeUpdateSummary(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	return steps.MaybeUpdateSummary(ctx, steps.SummarizeDeps{
		Log:           u.deps.Log,
		Conversations: u.deps.Conversations,
		Messages:      u.deps.Messages,
		Metrics:       u.deps.Metrics,
		Config:        u.deps.Config.Summary,
	}, conversationID)
}

// ConversationMessages pages a conversation oldest first. An unknown id yields an empty page.
func (u Usecases) ConversationMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*types.Message, error) {
	msgs, err := u.deps.Messages.ListPage(dbctx.New(ctx), conversationID, limit, offset)
	if err != nil {
		return nil, apierr.Internal("list_messages_failed", fmt.Errorf("list messages: %w", err))
	}
	return msgs, nil
}

// LatestMessages reads the first page of a user's most recent active conversation.
// A user without one gets a 404 apierr wrapping ErrNoActiveConversation.
func (u Usecases) LatestMessages(ctx context.Context, userID uuid.UUID, limit int) (uuid.UUID, []*types.Message, error) {
	dbc := dbctx.New(ctx)
	convo, err := u.deps.Conversations.GetLatestActive(dbc, userID)
	if err != nil {
		return uuid.Nil, nil, apierr.Internal("load_conversation_failed", err)
	}
	if convo == nil {
		return uuid.Nil, nil, apierr.NotFound("not_found", ErrNoActiveConversation)
	}
	msgs, err := u.deps.Messages.ListPage(dbc, convo.ID, limit, 0)
	if err != nil {
		return uuid.Nil, nil, apierr.Internal("list_messages_failed", err)
	}
	return convo.ID, msgs, nil
}
