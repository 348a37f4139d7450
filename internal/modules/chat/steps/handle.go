package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	chatrepo "github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/chat"
	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/llm"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/safety"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/topic"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const (
	BranchCrisis   = "crisis"
	BranchReset    = "reset"
	BranchScript   = "script"
	BranchLLM      = "llm"
	BranchFallback = "fallback"
)

const DefaultCitationThreshold = 0.55

type HandleDeps struct {
	Log *logger.Logger

	Users         chatrepo.UserRepo
	Conversations chatrepo.ConversationRepo
	Messages      chatrepo.MessageRepo

	Retriever  *rag.Retriever
	Generator  *llm.Generator
	Serializer Serializer
	Metrics    *observability.Metrics

	MaxHistory        int
	CitationThreshold float64
	Summary           SummaryConfig
	Debug             bool
}

type HandleInput struct {
	Source     string
	ExternalID string
	Text       string
}

// RAGDebug is only populated when debug output is enabled.
type RAGDebug struct {
	RetrievedCount   int      `json:"retrieved_count"`
	ValidIDs         []string `json:"valid_ids"`
	Preview          string   `json:"preview"`
	Topic            string   `json:"topic"`
	SearchTopic      string   `json:"search_topic"`
	RetrievalSkipped bool     `json:"retrieval_skipped"`
	Confidence       float64  `json:"confidence"`
	EnforceCitations bool     `json:"enforce_citations"`
	SeverityLevel    int      `json:"severity_level"`
	SeverityReasons  []string `json:"severity_reasons"`
}

type HandleOutput struct {
	ConversationID uuid.UUID
	Reply          string
	Branch         string

	UsedKB    bool
	Citations []string
	RAG       *RAGDebug
}

// HandleMessage runs one inbound message to exactly one persisted assistant reply.
// Generation and retrieval failures degrade to the rule-based reply; only
// persistence failures are returned.
func HandleMessage(ctx context.Context, deps HandleDeps, in HandleInput) (HandleOutput, error) {
	if deps.Users == nil || deps.Conversations == nil || deps.Messages == nil {
		return HandleOutput{}, fmt.Errorf("handle message: missing repos")
	}
	if strings.TrimSpace(in.ExternalID) == "" {
		return HandleOutput{}, fmt.Errorf("handle message: missing external id")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	if deps.Serializer == nil {
		deps.Serializer = NoopSerializer()
	}

	release, err := deps.Serializer.Acquire(ctx, SerializeKey(in.ExternalID))
	if err != nil {
		return HandleOutput{}, fmt.Errorf("serialize: %w", err)
	}
	defer release()

	ctx, span := otel.Tracer("medi/chat").Start(ctx, "chat.handle_message")
	defer span.End()
	span.SetAttributes(attribute.String("chat.source", in.Source))

	dbc := dbctx.New(ctx)
	user, err := deps.Users.GetOrCreate(dbc, in.Source, in.ExternalID)
	if err != nil {
		return HandleOutput{}, fmt.Errorf("resolve user: %w", err)
	}
	convo, err := deps.Conversations.GetOrCreateActive(dbc, user.ID)
	if err != nil {
		return HandleOutput{}, fmt.Errorf("resolve conversation: %w", err)
	}

	incoming := strings.TrimSpace(in.Text)
	if _, err := deps.Messages.Create(dbc, convo.ID, types.RoleUser, incoming); err != nil {
		return HandleOutput{}, fmt.Errorf("persist user message: %w", err)
	}

	sev := safety.Classify(incoming)
	if safety.IsCrisis(incoming, sev) {
		log.Warn("Crisis signal detected", "conversation_id", convo.ID, "severity_level", sev.Level, "severity_reasons", sev.Reasons)
		return finish(dbc, deps, convo.ID, safety.CrisisResponse(), BranchCrisis, span)
	}

	if IsResetCommand(incoming) {
		if err := deps.Conversations.Close(dbc, convo.ID); err != nil {
			return HandleOutput{}, fmt.Errorf("close conversation: %w", err)
		}
		fresh, err := deps.Conversations.Create(dbc, user.ID)
		if err != nil {
			return HandleOutput{}, fmt.Errorf("create conversation: %w", err)
		}
		log.Info("Conversation reset", "old_conversation_id", convo.ID, "conversation_id", fresh.ID)
		return finish(dbc, deps, fresh.ID, ResetReply(), BranchReset, span)
	}

	if IsMenuCommand(incoming) || IsMenuSelection(incoming) {
		reply := RuleBasedReply(incoming)
		if safety.HasMedicalKeyword(incoming) {
			reply = safety.WithMedicalDisclaimer(reply)
		}
		return finish(dbc, deps, convo.ID, reply, BranchScript, span)
	}

	gen := generate(ctx, dbc, deps, log, convo, incoming, sev)

	reply, branch := gen.reply, BranchLLM
	if reply == "" {
		reply, branch = RuleBasedReply(incoming), BranchFallback
	}
	if safety.HasMedicalKeyword(incoming) {
		reply = safety.WithMedicalDisclaimer(reply)
	}

	out, err := finish(dbc, deps, convo.ID, reply, branch, span)
	if err != nil {
		return out, err
	}

	if _, err := MaybeUpdateSummary(ctx, SummarizeDeps{
		Log:           log,
		Conversations: deps.Conversations,
		Messages:      deps.Messages,
		Metrics:       deps.Metrics,
		Config:        deps.Summary,
	}, convo.ID); err != nil {
		log.Warn("Summary update failed", "conversation_id", convo.ID, "error", err)
	}

	if deps.Debug {
		out.UsedKB = len(gen.citations) > 0
		out.Citations = gen.citations
		if out.Citations == nil {
			out.Citations = []string{}
		}
		out.RAG = gen.debug
		if out.RAG == nil {
			out.RAG = &RAGDebug{ValidIDs: []string{}, Preview: rag.Preview(rag.EmptyContext), SeverityReasons: []string{}}
		}
		out.RAG.SeverityLevel = sev.Level
		out.RAG.SeverityReasons = sev.Reasons
	}
	return out, nil
}

type generated struct {
	reply     string
	citations []string
	debug     *RAGDebug
}

// generate runs history, retrieval and the completion provider. An empty reply
// means the caller must fall back.
func generate(ctx context.Context, dbc dbctx.Context, deps HandleDeps, log *logger.Logger, convo *types.Conversation, incoming string, sev safety.Severity) generated {
	var g generated
	if !deps.Generator.Enabled() {
		return g
	}

	history, err := LoadHistory(dbc, deps.Messages, convo.ID, deps.MaxHistory)
	if err != nil {
		log.Warn("Reply generation failed; using rule-based fallback", "conversation_id", convo.ID, "error", err)
		return g
	}

	topicName, _ := topic.Detect(incoming)
	res, err := deps.Retriever.Retrieve(ctx, incoming, topicName)
	if err != nil {
		log.Warn("Reply generation failed; using rule-based fallback", "conversation_id", convo.ID, "stage", "retrieval", "error", err)
		return g
	}

	threshold := deps.CitationThreshold
	if threshold <= 0 {
		threshold = DefaultCitationThreshold
	}
	enforce := rag.ShouldEnforceCitations(res.Confidence, threshold, len(res.Matches))
	log.Info("RAG retrieval",
		"conversation_id", convo.ID,
		"topic", topicName,
		"search_topic", res.Topic,
		"skipped", res.Skipped,
		"retrieved_count", len(res.Matches),
		"confidence", res.Confidence,
		"enforce_citations", enforce,
	)
	if deps.Debug {
		ids := res.IDs
		if ids == nil {
			ids = []string{}
		}
		g.debug = &RAGDebug{
			RetrievedCount:   len(res.Matches),
			ValidIDs:         ids,
			Preview:          rag.Preview(res.Context),
			Topic:            topicName,
			SearchTopic:      res.Topic,
			RetrievalSkipped: res.Skipped,
			Confidence:       res.Confidence,
			EnforceCitations: enforce,
		}
	}

	outcome := deps.Generator.Generate(ctx, llm.Request{
		History:          history,
		Retrieved:        res.Context,
		Summary:          convo.Summary,
		ValidIDs:         res.IDs,
		EnforceCitations: enforce,
		TopicHint:        topicName,
		HighDistress:     sev.IsHigh,
	})
	if !outcome.Succeeded() {
		log.Warn("Reply generation failed; using rule-based fallback", "conversation_id", convo.ID, "error", outcome.Err)
		return g
	}
	g.reply = outcome.Text
	g.citations = outcome.Citations
	log.Info("RAG citations", "conversation_id", convo.ID, "used_kb", outcome.UsedKnowledge(), "citations", outcome.Citations)
	return g
}

func finish(dbc dbctx.Context, deps HandleDeps, conversationID uuid.UUID, reply, branch string, span trace.Span) (HandleOutput, error) {
	if _, err := deps.Messages.Create(dbc, conversationID, types.RoleAssistant, reply); err != nil {
		return HandleOutput{}, fmt.Errorf("persist assistant message: %w", err)
	}
	deps.Metrics.IncReply(branch)
	span.SetAttributes(attribute.String("chat.branch", branch))
	return HandleOutput{ConversationID: conversationID, Reply: reply, Branch: branch}, nil
}
