package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/AWE-Awareness-App/MEDI-chatbot/internal/http/handlers"
	httpMW "github.com/AWE-Awareness-App/MEDI-chatbot/internal/http/middleware"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	ChatHandler   *httpH.ChatHandler
	TwilioHandler *httpH.TwilioHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.Health)
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Metrics
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Chat (web)
	if cfg.ChatHandler != nil {
		r.POST("/chat", cfg.ChatHandler.Chat)
		r.GET("/conversations/:id/messages", cfg.ChatHandler.ConversationMessages)
		r.GET("/users/:id/latest-messages", cfg.ChatHandler.LatestMessages)
	}

	// WhatsApp
	if cfg.TwilioHandler != nil {
		r.POST("/webhook/twilio", cfg.TwilioHandler.Webhook)
	}

	return r
}
