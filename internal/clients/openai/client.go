package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/ctxutil"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultEmbedModel = "text-embedding-3-small"
	embedBatchSize    = 64
)

var ErrMissingAPIKey = errors.New("missing OPENAI_API_KEY")

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type ChatResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client is the OpenAI surface used for chat completions and embeddings.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
	Timeout    time.Duration
}

type client struct {
	log        *logger.Logger
	api        *goopenai.Client
	model      string
	embedModel string
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.EmbedModel) == "" {
		cfg.EmbedModel = defaultEmbedModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	oc := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = base
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &client{
		log:        log.With("client", "OpenAIClient"),
		api:        goopenai.NewClientWithConfig(oc),
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
	}, nil
}

func (c *client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: s})
	}
	for _, m := range req.Messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == goopenai.ChatMessageRoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctxutil.Default(ctx), goopenai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            msgs,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("openai chat: %w", err)
	}

	var b strings.Builder
	for _, ch := range resp.Choices {
		b.WriteString(ch.Message.Content)
	}
	return ChatResponse{
		Text:         strings.TrimSpace(b.String()),
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Embed batches inputs and returns vectors in input order.
func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch := make([]string, end-start)
		for i, s := range inputs[start:end] {
			s = strings.TrimSpace(s)
			if s == "" {
				s = " "
			}
			batch[i] = s
		}

		resp, err := c.api.CreateEmbeddings(ctxutil.Default(ctx), goopenai.EmbeddingRequestStrings{
			Input: batch,
			Model: goopenai.EmbeddingModel(c.embedModel),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index >= 0 && d.Index < len(vecs) {
				vecs[d.Index] = d.Embedding
			}
		}
		for i, v := range vecs {
			if len(v) == 0 {
				c.log.Warn("Embeddings response missing index", "index", start+i, "model", c.embedModel)
				return nil, fmt.Errorf("openai embeddings missing index %d", start+i)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
