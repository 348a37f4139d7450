package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/anthropic"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/clients/openai"
)

var (
	ErrMissingCredentials = errors.New("llm: completion provider not configured")
	ErrEmptyCompletion    = errors.New("llm: empty completion")
)

type ProviderKind string

const (
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderOpenAI    ProviderKind = "openai"
)

func ParseProviderKind(s string) (ProviderKind, error) {
	switch ProviderKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderAnthropic:
		return ProviderAnthropic, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unknown LLM provider %q", s)
	}
}

type Turn struct {
	Role    string
	Content string
}

type CompletionRequest struct {
	System      string
	Turns       []Turn
	MaxTokens   int
	Temperature float64
}

type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is one chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

type anthropicProvider struct {
	c anthropic.Client
}

func NewAnthropicProvider(c anthropic.Client) Provider {
	return &anthropicProvider{c: c}
}

func (p *anthropicProvider) Name() string { return string(ProviderAnthropic) }

func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	msgs := make([]anthropic.Message, 0, len(req.Turns))
	for _, t := range req.Turns {
		msgs = append(msgs, anthropic.Message{Role: t.Role, Content: t.Content})
	}
	resp, err := p.c.CreateMessage(ctx, anthropic.MessageRequest{
		System:      req.System,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Completion{}, err
	}
	model := resp.Model
	if model == "" {
		model = p.c.Model()
	}
	return Completion{
		Text:         resp.Text(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

type openAIProvider struct {
	c openai.Client
}

func NewOpenAIProvider(c openai.Client) Provider {
	return &openAIProvider{c: c}
}

func (p *openAIProvider) Name() string { return string(ProviderOpenAI) }

func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	msgs := make([]openai.Message, 0, len(req.Turns))
	for _, t := range req.Turns {
		msgs = append(msgs, openai.Message{Role: t.Role, Content: t.Content})
	}
	resp, err := p.c.Chat(ctx, openai.ChatRequest{
		System:      req.System,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// SelectProvider returns the provider for kind, or nil when its client is absent.
func SelectProvider(kind ProviderKind, ac anthropic.Client, oc openai.Client) Provider {
	switch kind {
	case ProviderOpenAI:
		if oc != nil {
			return NewOpenAIProvider(oc)
		}
	default:
		if ac != nil {
			return NewAnthropicProvider(ac)
		}
	}
	return nil
}
