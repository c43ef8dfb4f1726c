package llm

import (
	"context"
	"encoding/json"
)

// Image is an inline image payload attached to a vision call.
type Image struct {
	Data []byte
	MIME string
}

// Client is the single logical call to the vision-language service.
// Cross-cutting concerns (caching, rate limiting, circuit breaking, quota
// accounting, retries, logging) are applied via Middleware.
type Client interface {
	Name() string
	// GenerateJSON sends a text-only prompt and returns the model's JSON.
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	// GenerateVisionJSON sends a prompt plus an inline image.
	GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error)
	Close() error
}

type stageKey struct{}

// WithStage tags the context with the pipeline stage issuing the call.
// The cache fingerprints per stage and the logging middleware labels
// requests with it.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFrom returns the stage tag, or "" when absent.
func StageFrom(ctx context.Context) string {
	if v, ok := ctx.Value(stageKey{}).(string); ok {
		return v
	}
	return ""
}
