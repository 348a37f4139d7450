package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, externalID string) *types.User {
	tb.Helper()
	u := &types.User{ID: uuid.New(), Source: types.SourceWeb, ExternalID: externalID}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedConversation(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, status string) *types.Conversation {
	tb.Helper()
	c := &types.Conversation{ID: uuid.New(), UserID: userID, Status: status}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	return c
}

func SeedMessages(tb testing.TB, ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, role string, contents ...string) []*types.Message {
	tb.Helper()
	out := make([]*types.Message, 0, len(contents))
	for _, content := range contents {
		m := &types.Message{ConversationID: conversationID, Role: role, Content: content}
		if err := tx.WithContext(ctx).Create(m).Error; err != nil {
			tb.Fatalf("seed message: %v", err)
		}
		out = append(out, m)
	}
	return out
}
