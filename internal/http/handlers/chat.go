package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/http/response"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/apierr"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// ChatService is the slice of chat.Usecases the transport needs.
type ChatService interface {
	HandleMessage(ctx context.Context, in chat.HandleInput) (chat.HandleOutput, error)
	ConversationMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*types.Message, error)
	LatestMessages(ctx context.Context, userID uuid.UUID, limit int) (uuid.UUID, []*types.Message, error)
}

type ChatHandler struct {
	log  *logger.Logger
	chat ChatService
}

func NewChatHandler(log *logger.Logger, chat ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: chat}
}

type chatReq struct {
	UserID string `json:"user_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

type chatResp struct {
	ConversationID string         `json:"conversation_id"`
	Reply          string         `json:"reply"`
	UsedKB         *bool          `json:"used_kb,omitempty"`
	Citations      []string       `json:"citations,omitempty"`
	RAG            *chat.RAGDebug `json:"rag,omitempty"`
}

type messageOut struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResp struct {
	ConversationID string       `json:"conversation_id"`
	Messages       []messageOut `json:"messages"`
}

// POST /chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("user_id required"))
		return
	}
	out, err := h.chat.HandleMessage(c.Request.Context(), chat.HandleInput{
		Source:     types.SourceWeb,
		ExternalID: req.UserID,
		Text:       req.Text,
	})
	if err != nil {
		h.log.Error("Chat pipeline failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "chat_failed", errors.New("could not process message"))
		return
	}
	resp := chatResp{ConversationID: out.ConversationID.String(), Reply: out.Reply}
	if out.RAG != nil {
		used := out.UsedKB
		resp.UsedKB = &used
		resp.Citations = out.Citations
		resp.RAG = out.RAG
	}
	response.RespondOK(c, resp)
}

// GET /conversations/:id/messages?limit=50&offset=0
func (h *ChatHandler) ConversationMessages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	limit, err := pageLimit(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	offset := 0
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_offset", errors.New("offset must be a non-negative integer"))
			return
		}
		offset = n
	}
	msgs, err := h.chat.ConversationMessages(c.Request.Context(), id, limit, offset)
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			response.RespondError(c, ae.Status, ae.Code, ae.Err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "list_messages_failed", err)
		return
	}
	response.RespondOK(c, historyResp{ConversationID: id.String(), Messages: toMessageOut(msgs)})
}

// GET /users/:id/latest-messages?limit=50
func (h *ChatHandler) LatestMessages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	limit, err := pageLimit(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	convoID, msgs, err := h.chat.LatestMessages(c.Request.Context(), id, limit)
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			response.RespondError(c, ae.Status, ae.Code, ae.Err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "list_messages_failed", err)
		return
	}
	response.RespondOK(c, historyResp{ConversationID: convoID.String(), Messages: toMessageOut(msgs)})
}

func pageLimit(c *gin.Context) (int, error) {
	v := strings.TrimSpace(c.Query("limit"))
	if v == "" {
		return defaultPageLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxPageLimit {
		return 0, errors.New("limit must be between 1 and 200")
	}
	return n, nil
}

func toMessageOut(msgs []*types.Message) []messageOut {
	out := make([]messageOut, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, messageOut{ID: m.ID.String(), Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return out
}
