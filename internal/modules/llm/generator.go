package llm

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/rag"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type GeneratorConfig struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type Request struct {
	History          []Turn
	Retrieved        string
	Summary          string
	ValidIDs         []string
	EnforceCitations bool
	TopicHint        string
	HighDistress     bool
}

// Outcome is the result of one generation attempt. Err is set when no usable reply was produced.
type Outcome struct {
	Text             string
	Model            string
	Citations        []string
	InvalidCitations []string
	Latency          time.Duration
	Err              error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil && strings.TrimSpace(o.Text) != ""
}

// UsedKnowledge reports whether the reply cites any retrieved chunk.
func (o Outcome) UsedKnowledge() bool {
	return len(o.Citations) > 0
}

type Generator struct {
	log      *logger.Logger
	provider Provider
	metrics  *observability.Metrics
	cfg      GeneratorConfig
}

// NewGenerator accepts a nil provider; Generate then fails with ErrMissingCredentials.
func NewGenerator(log *logger.Logger, provider Provider, metrics *observability.Metrics, cfg GeneratorConfig) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 450
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = 0.4
	}
	return &Generator{
		log:      log.With("service", "ReplyGenerator"),
		provider: provider,
		metrics:  metrics,
		cfg:      cfg,
	}
}

func (g *Generator) Enabled() bool {
	return g != nil && g.provider != nil
}

func (g *Generator) Generate(ctx context.Context, req Request) Outcome {
	if !g.Enabled() {
		return Outcome{Err: ErrMissingCredentials}
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("medi/llm").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.provider.Name()),
		attribute.Bool("llm.enforce_citations", req.EnforceCitations),
		attribute.Int("llm.history", len(req.History)),
	)

	system := BuildSystemPrompt(PromptInput{
		TopicHint:        req.TopicHint,
		HighDistress:     req.HighDistress,
		EnforceCitations: req.EnforceCitations,
		Summary:          req.Summary,
		Retrieved:        req.Retrieved,
	})

	start := time.Now()
	comp, err := g.provider.Complete(ctx, CompletionRequest{
		System:      system,
		Turns:       req.History,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	latency := time.Since(start)
	if err != nil {
		g.metrics.ObserveLLM(g.provider.Name(), "error", latency, 0, 0)
		span.RecordError(err)
		return Outcome{Latency: latency, Err: err}
	}
	g.metrics.ObserveLLM(g.provider.Name(), "ok", latency, comp.InputTokens, comp.OutputTokens)
	g.log.Info("LLM reply",
		"provider", g.provider.Name(),
		"model", comp.Model,
		"latency_ms", latency.Milliseconds(),
		"input_tokens", comp.InputTokens,
		"output_tokens", comp.OutputTokens,
	)

	text := strings.TrimSpace(comp.Text)
	if text == "" {
		return Outcome{Model: comp.Model, Latency: latency, Err: ErrEmptyCompletion}
	}

	out := Outcome{Text: text, Model: comp.Model, Latency: latency, Citations: rag.ExtractCitations(text)}
	if len(req.ValidIDs) > 0 || len(out.Citations) > 0 {
		out.InvalidCitations = rag.InvalidCitations(out.Citations, req.ValidIDs)
	}
	if len(out.InvalidCitations) > 0 {
		g.metrics.AddInvalidCitations(len(out.InvalidCitations))
		g.log.Warn("Invalid citations found", "invalid", out.InvalidCitations, "valid_ids", req.ValidIDs)
	}
	return out
}
