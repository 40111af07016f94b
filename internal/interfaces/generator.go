package interfaces

import "context"

// GenerationParams carries optional sampling parameters for a single
// backend call. Nil fields fall back to the backend's defaults.
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Usage reports token accounting for one backend call. Token counts are
// taken from the backend response when present and estimated otherwise.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

//go:generate mockery --name TextGenerator --output ../mocks --outpkg mocks --case=underscore
type TextGenerator interface {
	// Generate produces a completion for the given prompts. Implementations
	// must respect context cancellation and wrap transport failures in
	// models.ErrGenerationFailed.
	Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, Usage, error)
}
