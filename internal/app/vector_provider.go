package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/weaviate"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/qdrant"
)

type VectorBackend string

const (
	VectorBackendPgvector VectorBackend = "pgvector"
	VectorBackendQdrant   VectorBackend = "qdrant"
	VectorBackendWeaviate VectorBackend = "weaviate"
	VectorBackendMemory   VectorBackend = "memory"
)

var (
	newQdrantStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (rag.Store, error) {
		return qdrant.NewKnowledgeStore(ctx, log, cfg)
	}
	newWeaviateStore = func(ctx context.Context, log *logger.Logger, cfg weaviate.Config) (rag.Store, error) {
		return weaviate.New(ctx, log, cfg)
	}
)

type VectorBackendErrorCode string

const (
	VectorBackendErrorInvalidBackend   VectorBackendErrorCode = "invalid_backend"
	VectorBackendErrorMissingDatabase  VectorBackendErrorCode = "missing_database"
	VectorBackendErrorMissingQdrantURL VectorBackendErrorCode = "missing_qdrant_url"
	VectorBackendErrorInvalidQdrantURL VectorBackendErrorCode = "invalid_qdrant_url"
	VectorBackendErrorQdrantConfig     VectorBackendErrorCode = "qdrant_config_failed"
	VectorBackendErrorMissingWeaviate  VectorBackendErrorCode = "missing_weaviate_url"
	VectorBackendErrorConnectFailed    VectorBackendErrorCode = "connect_failed"
)

type VectorBackendError struct {
	Code    VectorBackendErrorCode
	Backend string
	Cause   error
}

func (e *VectorBackendError) Error() string {
	if e == nil {
		return "knowledge store bootstrap failed"
	}
	return fmt.Sprintf("knowledge store bootstrap failed (code=%s backend=%q): %v", e.Code, e.Backend, e.Cause)
}

func (e *VectorBackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ParseVectorBackend(raw string) (VectorBackend, error) {
	switch b := VectorBackend(strings.ToLower(strings.TrimSpace(raw))); b {
	case "":
		return VectorBackendPgvector, nil
	case VectorBackendPgvector, VectorBackendQdrant, VectorBackendWeaviate, VectorBackendMemory:
		return b, nil
	default:
		return "", &VectorBackendError{
			Code:    VectorBackendErrorInvalidBackend,
			Backend: raw,
			Cause:   fmt.Errorf("unsupported RAG_BACKEND %q", raw),
		}
	}
}

// resolveKnowledgeStore builds the configured backend and wraps it with metrics.
func resolveKnowledgeStore(ctx context.Context, log *logger.Logger, cfg Config, db *gorm.DB, metrics *observability.Metrics) (rag.Store, VectorBackend, error) {
	backend, err := ParseVectorBackend(cfg.RAG.Backend)
	if err != nil {
		return nil, "", err
	}

	var store rag.Store
	switch backend {
	case VectorBackendPgvector:
		if db == nil {
			return nil, backend, &VectorBackendError{Code: VectorBackendErrorMissingDatabase, Backend: string(backend), Cause: errors.New("pgvector needs a database connection")}
		}
		store = knowledge.NewStore(knowledge.NewChunkRepo(db, log))
	case VectorBackendQdrant:
		store, err = newQdrantStore(ctx, log, qdrant.Config{
			URL:             cfg.RAG.QdrantURL,
			APIKey:          cfg.RAG.QdrantAPIKey,
			Collection:      cfg.RAG.QdrantCollection,
			VectorDim:       cfg.LLM.EmbedDim,
			Distance:        qdrant.DistanceEuclid,
			CreateIfMissing: true,
		})
		if err != nil {
			return nil, backend, mapQdrantError(err)
		}
	case VectorBackendWeaviate:
		if strings.TrimSpace(cfg.RAG.WeaviateURL) == "" {
			return nil, backend, &VectorBackendError{Code: VectorBackendErrorMissingWeaviate, Backend: string(backend), Cause: errors.New("WEAVIATE_URL is required")}
		}
		store, err = newWeaviateStore(ctx, log, weaviate.Config{
			URL:    cfg.RAG.WeaviateURL,
			APIKey: cfg.RAG.WeaviateAPIKey,
			Class:  cfg.RAG.WeaviateClass,
		})
		if err != nil {
			return nil, backend, &VectorBackendError{Code: VectorBackendErrorConnectFailed, Backend: string(backend), Cause: err}
		}
	case VectorBackendMemory:
		log.Warn("Using in-memory knowledge store; contents are lost on restart")
		store = rag.NewMemoryStore()
	}

	log.Info("Knowledge store ready", "backend", backend)
	return instrumentStore(string(backend), store, metrics), backend, nil
}

func mapQdrantError(err error) error {
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		code := VectorBackendErrorQdrantConfig
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorBackendErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorBackendErrorInvalidQdrantURL
		}
		return &VectorBackendError{Code: code, Backend: string(VectorBackendQdrant), Cause: err}
	}
	return &VectorBackendError{Code: VectorBackendErrorConnectFailed, Backend: string(VectorBackendQdrant), Cause: err}
}
