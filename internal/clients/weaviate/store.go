package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/ctxutil"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const DefaultClass = "MediKnowledge"

var objectIDNamespace = uuid.MustParse("0b6f3f5e-2d0e-4c52-9a7e-5d8b1e0c7a42")

type Config struct {
	URL    string
	APIKey string
	Class  string
}

// Store keeps knowledge chunks as objects of one weaviate class with
// externally supplied vectors. Object ids derive from the chunk hash.
type Store struct {
	log    *logger.Logger
	client *wv.Client
	class  string
}

// hostAndScheme splits a base URL into the pieces weaviate.Config wants.
func hostAndScheme(raw string) (string, string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", "", fmt.Errorf("weaviate url required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid weaviate url %q", raw)
	}
	return u.Host, u.Scheme, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	host, scheme, err := hostAndScheme(cfg.URL)
	if err != nil {
		return nil, err
	}
	wcfg := wv.Config{Host: host, Scheme: scheme}
	if cfg.APIKey != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	client, err := wv.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	class := strings.TrimSpace(cfg.Class)
	if class == "" {
		class = DefaultClass
	}
	s := &Store{log: log.With("client", "WeaviateKnowledgeStore"), client: client, class: class}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	s.log.Info("Weaviate knowledge store selected", "host", host, "class", class)
	return s, nil
}

func classSchema(name string) *models.Class {
	return &models.Class{
		Class:       name,
		Description: "MEDI knowledge chunks",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "topic", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "source", DataType: []string{"text"}},
			{Name: "chunk_hash", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "filename", DataType: []string{"text"}},
			{Name: "evidence_level", DataType: []string{"text"}},
			{Name: "evidence_priority", DataType: []string{"int"}},
		},
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	if _, err := s.client.Schema().ClassGetter().WithClassName(s.class).Do(ctx); err == nil {
		return nil
	}
	s.log.Info("Schema not found, creating it", "class", s.class)
	if err := s.client.Schema().ClassCreator().WithClass(classSchema(s.class)).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class %s: %w", s.class, err)
	}
	return nil
}

func objectID(hash string) string {
	return uuid.NewSHA1(objectIDNamespace, []byte(hash)).String()
}

func (s *Store) HasHash(ctx context.Context, hash string) (bool, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return false, fmt.Errorf("chunk hash required")
	}
	where := filters.Where().
		WithPath([]string{"chunk_hash"}).
		WithOperator(filters.Equal).
		WithValueString(hash)
	resp, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithWhere(where).
		WithFields(graphql.Field{Name: "chunk_hash"}).
		WithLimit(1).
		Do(ctxutil.Default(ctx))
	if err != nil {
		return false, fmt.Errorf("weaviate hash lookup: %w", err)
	}
	rows, err := parseGetResponse(resp, s.class)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *Store) Insert(ctx context.Context, rec knowledge.Record) (bool, error) {
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
	props := map[string]interface{}{
		"content":           rec.Content,
		"topic":             topic,
		"source":            rec.Source,
		"chunk_hash":        rec.Hash,
		"filename":          rec.Meta.Filename,
		"evidence_level":    rec.Meta.EvidenceLevel,
		"evidence_priority": rec.Meta.EvidencePriority,
	}
	_, err = s.client.Data().Creator().
		WithClassName(s.class).
		WithID(objectID(rec.Hash)).
		WithProperties(props).
		WithVector(rec.Embedding).
		Do(ctxutil.Default(ctx))
	if err != nil {
		return false, fmt.Errorf("weaviate insert: %w", err)
	}
	return true, nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int, topic string) ([]knowledge.Match, error) {
	if k <= 0 {
		return []knowledge.Match{}, nil
	}
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "topic"},
		{Name: "source"},
		{Name: "filename"},
		{Name: "evidence_level"},
		{Name: "evidence_priority"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(query)
	get := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k)
	if topic = strings.TrimSpace(topic); topic != "" {
		get = get.WithWhere(filters.Where().
			WithPath([]string{"topic"}).
			WithOperator(filters.Equal).
			WithValueString(topic))
	}
	resp, err := get.Do(ctxutil.Default(ctx))
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	rows, err := parseGetResponse(resp, s.class)
	if err != nil {
		return nil, err
	}
	out := make([]knowledge.Match, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.match())
	}
	return out, nil
}

type chunkRow struct {
	Content          string `json:"content"`
	Topic            string `json:"topic"`
	Source           string `json:"source"`
	ChunkHash        string `json:"chunk_hash"`
	Filename         string `json:"filename"`
	EvidenceLevel    string `json:"evidence_level"`
	EvidencePriority int    `json:"evidence_priority"`
	Additional       struct {
		Distance *float64 `json:"distance"`
	} `json:"_additional"`
}

func (r chunkRow) match() knowledge.Match {
	m := knowledge.Match{
		Content:          r.Content,
		Topic:            r.Topic,
		Source:           r.Source,
		Filename:         r.Filename,
		EvidenceLevel:    r.EvidenceLevel,
		EvidencePriority: r.EvidencePriority,
	}
	if r.Additional.Distance != nil {
		m.Distance = *r.Additional.Distance
	}
	return m
}

// parseGetResponse decodes {"Get": {"<class>": [...]}} from a GraphQL response.
func parseGetResponse(resp *models.GraphQLResponse, class string) ([]chunkRow, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 && resp.Errors[0] != nil {
		return nil, fmt.Errorf("weaviate graphql: %s", resp.Errors[0].Message)
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal GraphQL response data: %w", err)
	}
	var parsed struct {
		Get map[string][]chunkRow `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode GraphQL response: %w", err)
	}
	return parsed.Get[class], nil
}
