package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	chatrepo "github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/chat"
	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const (
	DefaultSummaryEvery    = 6
	DefaultSummaryWindow   = 20
	DefaultSummaryMaxChars = 1200

	summaryRecentLines = 6
)

type SummaryConfig struct {
	EveryNUserMessages int
	Window             int
	MaxChars           int
}

func (c SummaryConfig) withDefaults() SummaryConfig {
	if c.EveryNUserMessages <= 0 {
		c.EveryNUserMessages = DefaultSummaryEvery
	}
	if c.Window <= 0 {
		c.Window = DefaultSummaryWindow
	}
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultSummaryMaxChars
	}
	return c
}

type SummarizeDeps struct {
	Log           *logger.Logger
	Conversations chatrepo.ConversationRepo
	Messages      chatrepo.MessageRepo
	Metrics       *observability.Metrics
	Config        SummaryConfig
}

// MaybeUpdateSummary appends recent user lines once enough new user messages
// have arrived since the last update. It reports whether the summary changed.
func MaybeUpdateSummary(ctx context.Context, deps SummarizeDeps, conversationID uuid.UUID) (bool, error) {
	if deps.Conversations == nil || deps.Messages == nil {
		return false, fmt.Errorf("summarize: missing deps")
	}
	cfg := deps.Config.withDefaults()
	dbc := dbctx.New(ctx)

	convo, err := deps.Conversations.GetByID(dbc, conversationID)
	if err != nil {
		return false, fmt.Errorf("load conversation: %w", err)
	}
	if convo == nil {
		return false, nil
	}

	cutoff := convo.SummaryUpdatedAt
	n, err := deps.Messages.CountByRoleSince(dbc, conversationID, types.RoleUser, cutoff)
	if err != nil {
		return false, fmt.Errorf("count user messages: %w", err)
	}
	if n < int64(cfg.EveryNUserMessages) {
		return false, nil
	}

	msgs, err := deps.Messages.ListSince(dbc, conversationID, cutoff, cfg.Window)
	if err != nil {
		return false, fmt.Errorf("list messages: %w", err)
	}
	summary := BuildSummary(convo.Summary, msgs, cfg.MaxChars)
	if err := deps.Conversations.UpdateSummary(dbc, conversationID, summary, deps.Conversations.Now()); err != nil {
		return false, fmt.Errorf("update summary: %w", err)
	}
	deps.Metrics.IncSummaryUpdate()
	if deps.Log != nil {
		deps.Log.Debug("Conversation summary updated", "conversation_id", conversationID, "summary_chars", len([]rune(summary)))
	}
	return true, nil
}

// BuildSummary appends a "Recent: a; b" line built from the last user messages
// and keeps only the trailing maxChars runes.
func BuildSummary(existing string, msgs []*types.Message, maxChars int) string {
	existing = strings.TrimSpace(existing)
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Role != types.RoleUser {
			continue
		}
		if c := strings.TrimSpace(m.Content); c != "" {
			lines = append(lines, c)
		}
	}
	if len(lines) == 0 {
		return existing
	}
	if len(lines) > summaryRecentLines {
		lines = lines[len(lines)-summaryRecentLines:]
	}
	combined := "Recent: " + strings.Join(lines, "; ")
	if existing != "" {
		combined = existing + "\n" + combined
	}
	if maxChars > 0 {
		if r := []rune(combined); len(r) > maxChars {
			combined = string(r[len(r)-maxChars:])
		}
	}
	return combined
}
