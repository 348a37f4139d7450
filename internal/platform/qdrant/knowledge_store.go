package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/ctxutil"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

var pointIDNamespaceUUID = uuid.MustParse("6f1b7b4e-9a55-4d3f-8f4e-3c1f2f4c9a11")

// KnowledgeStore keeps knowledge chunks in one qdrant collection. Point ids are
// derived from the chunk hash so re-ingestion is idempotent.
type KnowledgeStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload chunkPayload    `json:"payload"`
}

type chunkPayload struct {
	Content          string `json:"content"`
	Topic            string `json:"topic"`
	Source           string `json:"source"`
	ChunkHash        string `json:"chunk_hash"`
	Filename         string `json:"filename,omitempty"`
	EvidenceLevel    string `json:"evidence_level,omitempty"`
	EvidencePriority int    `json:"evidence_priority"`
}

func NewKnowledgeStore(ctx context.Context, log *logger.Logger, cfg Config) (*KnowledgeStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	s := &KnowledgeStore{
		log:     log.With("service", "QdrantKnowledgeStore"),
		cfg:     cfg,
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	s.log.Info("Qdrant knowledge store selected",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"distance", cfg.Distance,
	)
	return s, nil
}

func (s *KnowledgeStore) pointID(hash string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(hash)).String()
}

func (s *KnowledgeStore) HasHash(ctx context.Context, hash string) (bool, error) {
	const op = "get_point"
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return false, opErr(op, OperationErrorValidation, "chunk hash required", nil)
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath("/points/"+s.pointID(hash)), nil, nil)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *KnowledgeStore) Insert(ctx context.Context, rec knowledge.Record) (bool, error) {
	const op = "upsert"
	if len(rec.Embedding) != s.cfg.VectorDim {
		return false, opErr(op, OperationErrorValidation,
			fmt.Sprintf("vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(rec.Embedding)), nil)
	}
	exists, err := s.HasHash(ctx, rec.Hash)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	topic := rec.Topic
	if topic == "" {
		topic = knowledge.DefaultTopic
	}
	point := map[string]any{
		"id":     s.pointID(rec.Hash),
		"vector": rec.Embedding,
		"payload": chunkPayload{
			Content:          rec.Content,
			Topic:            topic,
			Source:           rec.Source,
			ChunkHash:        rec.Hash,
			Filename:         rec.Meta.Filename,
			EvidenceLevel:    rec.Meta.EvidenceLevel,
			EvidencePriority: rec.Meta.EvidencePriority,
		},
	}
	req := map[string]any{"points": []any{point}}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *KnowledgeStore) Search(ctx context.Context, query []float32, k int, topic string) ([]knowledge.Match, error) {
	const op = "search"
	if len(query) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(query)), nil)
	}
	if k <= 0 {
		return []knowledge.Match{}, nil
	}
	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := topicFilter(topic); f != nil {
		req["filter"] = f
	}
	var items []searchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &items); err != nil {
		return nil, err
	}
	out := make([]knowledge.Match, 0, len(items))
	for _, it := range items {
		out = append(out, knowledge.Match{
			Content:          it.Payload.Content,
			Topic:            it.Payload.Topic,
			Source:           it.Payload.Source,
			Filename:         it.Payload.Filename,
			Distance:         s.toDistance(it.Score),
			EvidenceLevel:    it.Payload.EvidenceLevel,
			EvidencePriority: it.Payload.EvidencePriority,
		})
	}
	return out, nil
}

// toDistance converts a qdrant score to smaller-is-better. Euclid scores already are distances.
func (s *KnowledgeStore) toDistance(score float64) float64 {
	if s.cfg.Distance == DistanceCosine {
		return 1 - score
	}
	if score < 0 {
		return -score
	}
	return score
}

func topicFilter(topic string) map[string]any {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}
	return map[string]any{
		"must": []any{
			map[string]any{"key": "topic", "match": map[string]any{"value": topic}},
		},
	}
}

func (s *KnowledgeStore) ensureCollection(ctx context.Context) error {
	const op = "bootstrap_verify"
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result)
	if IsNotFound(err) && s.cfg.CreateIfMissing {
		s.log.Info("Creating qdrant collection", "collection", s.cfg.Collection)
		req := map[string]any{"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": s.cfg.Distance}}
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), req, nil); err != nil {
			return err
		}
		return s.ensureTopicIndex(ctx)
	}
	if err != nil {
		return err
	}
	size := result.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message: fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection, s.cfg.VectorDim, size),
		}
	}
	if d := strings.TrimSpace(result.Config.Params.Vectors.Distance); d != "" {
		s.cfg.Distance = d
	}
	return nil
}

func (s *KnowledgeStore) ensureTopicIndex(ctx context.Context) error {
	req := map[string]any{"field_name": "topic", "field_schema": "keyword"}
	return s.doJSON(ctx, "create_index", http.MethodPut, s.collectionPath("/index?wait=true"), req, nil)
}

func (s *KnowledgeStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *KnowledgeStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &OperationError{Code: OperationErrorNotFound, Operation: op, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: statusErr}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") || strings.EqualFold(statusString, "acknowledged") || strings.EqualFold(statusString, "completed") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
