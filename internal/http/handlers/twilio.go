package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/twilio"
	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const menuPushTimeout = 15 * time.Second

var menuTriggers = map[string]bool{"menu": true, "help": true, "start": true}

// MenuSender pushes the interactive menu template.
type MenuSender interface {
	SendTemplate(ctx context.Context, to, contentSID string) (*twilio.Message, error)
}

type TwilioHandler struct {
	log          *logger.Logger
	chat         ChatService
	sender       MenuSender
	menuTemplate string
}

// NewTwilioHandler accepts a nil sender; menu triggers then go through the pipeline.
func NewTwilioHandler(log *logger.Logger, chat ChatService, sender MenuSender, menuTemplateSID string) *TwilioHandler {
	return &TwilioHandler{
		log:          log.With("handler", "TwilioHandler"),
		chat:         chat,
		sender:       sender,
		menuTemplate: strings.TrimSpace(menuTemplateSID),
	}
}

// POST /webhook/twilio (form: From, Body)
func (h *TwilioHandler) Webhook(c *gin.Context) {
	from := strings.TrimSpace(c.PostForm("From"))
	if from == "" {
		h.writeTwiML(c)
		return
	}
	text := strings.TrimSpace(c.PostForm("Body"))

	if h.sender != nil && h.menuTemplate != "" && menuTriggers[strings.ToLower(text)] {
		go h.pushMenu(from)
		h.writeTwiML(c)
		return
	}

	out, err := h.chat.HandleMessage(c.Request.Context(), chat.HandleInput{
		Source:     types.SourceWhatsApp,
		ExternalID: from,
		Text:       text,
	})
	if err != nil {
		h.log.Error("Webhook pipeline failed", "from", from, "error", err)
		h.writeTwiML(c)
		return
	}
	h.writeTwiML(c, out.Reply)
}

func (h *TwilioHandler) pushMenu(to string) {
	ctx, cancel := context.WithTimeout(context.Background(), menuPushTimeout)
	defer cancel()
	if _, err := h.sender.SendTemplate(ctx, to, h.menuTemplate); err != nil {
		h.log.Warn("Menu template push failed", "to", to, "error", err)
		return
	}
	h.log.Info("Menu template pushed", "to", to)
}

func (h *TwilioHandler) writeTwiML(c *gin.Context, bodies ...string) {
	raw, err := twilio.MessagingResponse(bodies...)
	if err != nil {
		h.log.Error("Render TwiML failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, twilio.TwiMLContentType, raw)
}
