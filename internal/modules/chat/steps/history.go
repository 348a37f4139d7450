package steps

import (
	"fmt"

	"github.com/google/uuid"

	chatrepo "github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/chat"
	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/llm"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
)

const DefaultMaxHistory = 12

// LoadHistory returns the last limit turns oldest first, dropping roles a
// provider cannot replay.
func LoadHistory(dbc dbctx.Context, messages chatrepo.MessageRepo, conversationID uuid.UUID, limit int) ([]llm.Turn, error) {
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	rows, err := messages.ListRecent(dbc, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]llm.Turn, 0, len(rows))
	for _, m := range rows {
		if m == nil || !types.ValidRole(m.Role) {
			continue
		}
		out = append(out, llm.Turn{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
