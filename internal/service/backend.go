package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"epic-engine/internal/config"
	"epic-engine/internal/interfaces"
	"epic-engine/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Approximate pricing per million tokens, used for cost reporting only.
const (
	pricePromptPerMillion     = 0.1
	priceCompletionPerMillion = 0.4
)

var (
	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epic_backend_requests_total",
		Help: "Total number of generation backend requests.",
	}, []string{"backend", "status"})

	backendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epic_backend_request_duration_seconds",
		Help:    "Duration of generation backend requests.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"backend"})

	backendTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epic_backend_tokens_total",
		Help: "Total tokens consumed by generation backend requests.",
	}, []string{"backend", "type"})
)

// ParamsFromConfig builds the default sampling parameters for chapter
// generation from the loaded configuration.
func ParamsFromConfig(cfg *config.Config) interfaces.GenerationParams {
	return interfaces.GenerationParams{
		Temperature: &cfg.GenTemperature,
		TopP:        &cfg.GenTopP,
		MaxTokens:   &cfg.GenMaxTokens,
	}
}

// NewTextGenerator builds the configured backend client. Supported kinds
// are "openai" (any OpenAI-compatible endpoint) and "ollama".
func NewTextGenerator(cfg *config.Config, logger *zap.Logger) (interfaces.TextGenerator, error) {
	switch strings.ToLower(cfg.GeneratorKind) {
	case "openai":
		return newOpenAIGenerator(cfg, logger.Named("openai_backend")), nil
	case "ollama":
		return newOllamaGenerator(cfg, logger.Named("ollama_backend"))
	default:
		return nil, fmt.Errorf("unsupported generator kind: %q", cfg.GeneratorKind)
	}
}

type openAIGenerator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func newOpenAIGenerator(cfg *config.Config, logger *zap.Logger) *openAIGenerator {
	clientConfig := openai.DefaultConfig(cfg.GeneratorAPIKey)
	if cfg.GeneratorBaseURL != "" {
		clientConfig.BaseURL = cfg.GeneratorBaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.GeneratorTimeout}

	return &openAIGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.GeneratorModel,
		logger: logger,
	}
}

func (g *openAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, params interfaces.GenerationParams) (string, interfaces.Usage, error) {
	start := time.Now()

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: float32Val(params.Temperature),
		TopP:        float32Val(params.TopP),
		MaxTokens:   intVal(params.MaxTokens),
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		backendRequestsTotal.WithLabelValues("openai", "error").Inc()
		return "", interfaces.Usage{}, fmt.Errorf("%w: openai chat completion: %v", models.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		backendRequestsTotal.WithLabelValues("openai", "error").Inc()
		return "", interfaces.Usage{}, fmt.Errorf("%w: openai returned no choices", models.ErrGenerationFailed)
	}

	text := resp.Choices[0].Message.Content
	usage := interfaces.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage(g.model, systemPrompt+userPrompt, text)
	}
	usage.EstimatedCostUSD = estimateCost(usage)

	recordBackendMetrics("openai", usage, time.Since(start))
	g.logger.Debug("Chat completion finished",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return text, usage, nil
}

type ollamaGenerator struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

func newOllamaGenerator(cfg *config.Config, logger *zap.Logger) (*ollamaGenerator, error) {
	baseURL, err := url.Parse(cfg.GeneratorBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url: %w", err)
	}

	return &ollamaGenerator{
		client: api.NewClient(baseURL, &http.Client{Timeout: cfg.GeneratorTimeout}),
		model:  cfg.GeneratorModel,
		logger: logger,
	}, nil
}

func (g *ollamaGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, params interfaces.GenerationParams) (string, interfaces.Usage, error) {
	start := time.Now()
	stream := false

	req := &api.GenerateRequest{
		Model:   g.model,
		Prompt:  userPrompt,
		System:  systemPrompt,
		Stream:  &stream,
		Options: map[string]interface{}{},
	}
	if params.Temperature != nil {
		req.Options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		req.Options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		req.Options["num_predict"] = *params.MaxTokens
	}

	var sb strings.Builder
	var usage interfaces.Usage
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		if resp.Done {
			usage.PromptTokens = resp.PromptEvalCount
			usage.CompletionTokens = resp.EvalCount
			usage.TotalTokens = resp.PromptEvalCount + resp.EvalCount
		}
		return nil
	})
	if err != nil {
		backendRequestsTotal.WithLabelValues("ollama", "error").Inc()
		return "", interfaces.Usage{}, fmt.Errorf("%w: ollama generate: %v", models.ErrGenerationFailed, err)
	}

	text := sb.String()
	if usage.TotalTokens == 0 {
		usage = estimateUsage(g.model, systemPrompt+userPrompt, text)
	}
	usage.EstimatedCostUSD = estimateCost(usage)

	recordBackendMetrics("ollama", usage, time.Since(start))
	g.logger.Debug("Generation finished",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return text, usage, nil
}

func recordBackendMetrics(backend string, usage interfaces.Usage, duration time.Duration) {
	backendRequestsTotal.WithLabelValues(backend, "success").Inc()
	backendRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
	backendTokensTotal.WithLabelValues(backend, "prompt").Add(float64(usage.PromptTokens))
	backendTokensTotal.WithLabelValues(backend, "completion").Add(float64(usage.CompletionTokens))
}

// estimateUsage approximates token counts when the backend reports none.
func estimateUsage(model, prompt, completion string) interfaces.Usage {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil || enc == nil {
		// Rough heuristic when no encoding is available.
		u := interfaces.Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(completion) / 4,
		}
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		return u
	}

	u := interfaces.Usage{
		PromptTokens:     len(enc.Encode(prompt, nil, nil)),
		CompletionTokens: len(enc.Encode(completion, nil, nil)),
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}

func estimateCost(usage interfaces.Usage) float64 {
	promptCost := float64(usage.PromptTokens) / 1_000_000 * pricePromptPerMillion
	completionCost := float64(usage.CompletionTokens) / 1_000_000 * priceCompletionPerMillion
	return promptCost + completionCost
}

func float32Val(p *float64) float32 {
	if p == nil {
		return 0
	}
	return float32(*p)
}

func intVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
