package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/redis"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/chat/steps"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/ingest"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/llm"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const serializeLockTTL = 90 * time.Second

type Services struct {
	Embedder   rag.Embedder
	Store      rag.Store
	Backend    VectorBackend
	Retriever  *rag.Retriever
	Generator  *llm.Generator
	Serializer steps.Serializer
	Chat       chat.Usecases
}

func wireServices(ctx context.Context, log *logger.Logger, cfg Config, db *gorm.DB, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	var embedder rag.Embedder
	if clients.OpenAI != nil {
		embedder = clients.OpenAI
	}

	store, backend, err := resolveKnowledgeStore(ctx, log, cfg, db, metrics)
	if err != nil {
		return Services{}, err
	}
	retriever := rag.NewRetriever(log, embedder, store, metrics, rag.Config{
		TopK:     cfg.RAG.TopK,
		MinChars: cfg.RAG.MinChars,
	})

	generator, err := wireGenerator(log, cfg, clients, metrics)
	if err != nil {
		return Services{}, err
	}

	serializer, err := wireSerializer(log, cfg, clients)
	if err != nil {
		return Services{}, err
	}

	usecases := chat.New(chat.UsecasesDeps{
		Log:           log,
		Users:         repos.Users,
		Conversations: repos.Conversations,
		Messages:      repos.Messages,
		Retriever:     retriever,
		Generator:     generator,
		Serializer:    serializer,
		Metrics:       metrics,
		Config: chat.Config{
			MaxHistory:        cfg.LLM.MaxHistory,
			CitationThreshold: cfg.RAG.CitationThreshold,
			Debug:             cfg.RAG.Debug,
			Summary: steps.SummaryConfig{
				EveryNUserMessages: cfg.Summary.EveryNUserMessages,
				Window:             cfg.Summary.Window,
				MaxChars:           cfg.Summary.MaxChars,
			},
		},
	})

	return Services{
		Embedder:   embedder,
		Store:      store,
		Backend:    backend,
		Retriever:  retriever,
		Generator:  generator,
		Serializer: serializer,
		Chat:       usecases,
	}, nil
}

// wireGenerator returns a generator with a nil provider when USE_LLM is off or
// the selected provider has no credentials; every reply then falls back.
func wireGenerator(log *logger.Logger, cfg Config, clients Clients, metrics *observability.Metrics) (*llm.Generator, error) {
	kind, err := llm.ParseProviderKind(cfg.LLM.Provider)
	if err != nil {
		return nil, err
	}
	var provider llm.Provider
	if cfg.LLM.Enabled {
		provider = llm.SelectProvider(kind, clients.Anthropic, clients.OpenAI)
		if provider == nil {
			log.Warn("LLM provider has no credentials; using rule-based replies", "provider", kind)
		} else {
			log.Info("LLM provider selected", "provider", provider.Name())
		}
	} else {
		log.Info("USE_LLM=false; using rule-based replies")
	}
	return llm.NewGenerator(log, provider, metrics, llm.GeneratorConfig{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout(),
	}), nil
}

func wireSerializer(log *logger.Logger, cfg Config, clients Clients) (steps.Serializer, error) {
	switch cfg.Chat.Serialize {
	case "", steps.SerializeNone:
		return steps.NoopSerializer(), nil
	case steps.SerializeLocal:
		return steps.LocalSerializer(), nil
	case steps.SerializeRedis:
		if clients.Redis == nil {
			return nil, fmt.Errorf("CHAT_SERIALIZE=redis requires REDIS_ADDR")
		}
		return redis.NewKeyLock(log, clients.Redis, redis.LockConfig{TTL: serializeLockTTL}), nil
	default:
		return nil, fmt.Errorf("unknown CHAT_SERIALIZE %q", cfg.Chat.Serialize)
	}
}

// NewIngester builds the ingestion pipeline over the configured embedder and store.
func (s Services) NewIngester(log *logger.Logger, metrics *observability.Metrics, cfg ingest.Config) (*ingest.Ingester, error) {
	if s.Embedder == nil {
		return nil, fmt.Errorf("ingest needs an embedder; set OPENAI_API_KEY")
	}
	return ingest.NewIngester(log, s.Embedder, s.Store, metrics, cfg)
}
