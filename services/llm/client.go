package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for any reasoning backend.
// Implementations must honor ctx cancellation and deadlines; the AI
// validation adapter relies on that for its per-call timeout bound.
type Client interface {
	Infer(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
