package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/anthropic"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/openai"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/redis"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/twilio"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

// Clients holds the outbound integrations. Any of them may be nil when unconfigured.
type Clients struct {
	Anthropic anthropic.Client
	OpenAI    openai.Client
	Twilio    twilio.Client
	Redis     *goredis.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Anthropic
	if strings.TrimSpace(cfg.LLM.AnthropicAPIKey) != "" {
		c, err := anthropic.New(log, anthropic.Config{
			APIKey:  cfg.LLM.AnthropicAPIKey,
			BaseURL: cfg.LLM.AnthropicBaseURL,
			Model:   cfg.LLM.AnthropicModel,
			Timeout: cfg.LLM.Timeout(),
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init anthropic client: %w", err)
		}
		out.Anthropic = c
	}

	// OpenAI (embeddings, optional completions)
	if strings.TrimSpace(cfg.LLM.OpenAIAPIKey) != "" {
		c, err := openai.New(log, openai.Config{
			APIKey:     cfg.LLM.OpenAIAPIKey,
			BaseURL:    cfg.LLM.OpenAIBaseURL,
			Model:      cfg.LLM.OpenAIModel,
			EmbedModel: cfg.LLM.OpenAIEmbedModel,
			Timeout:    cfg.LLM.Timeout(),
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		out.OpenAI = c
	} else {
		log.Warn("OPENAI_API_KEY not set; knowledge retrieval is disabled")
	}

	// Twilio
	tcfg := twilio.Config{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		From:       cfg.Twilio.WhatsAppNumber,
	}
	if tcfg.Configured() {
		c, err := twilio.New(log, tcfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init twilio client: %w", err)
		}
		out.Twilio = c
	}

	// Redis
	if cfg.Chat.Serialize == "redis" || strings.TrimSpace(cfg.Chat.RedisAddr) != "" {
		rdb, err := redis.NewClient(ctx, log, redis.Config{
			Addr:     cfg.Chat.RedisAddr,
			Password: cfg.Chat.RedisPassword,
			DB:       cfg.Chat.RedisDB,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis client: %w", err)
		}
		out.Redis = rdb
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
