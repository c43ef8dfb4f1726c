package llm

import (
	"context"
	"encoding/json"
	"time"

	genai "google.golang.org/genai"

	"fixit/internal/util/jsonutil"
)

// GeminiClient is a thin wrapper around the official genai client.
// It only focuses on the API call itself and JSON extraction; rate limiting,
// caching, quota, breaker and retries are applied via Middleware.
type GeminiClient struct {
	cli     *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient builds a client for the given model. The API key is read
// by the genai SDK from the environment when apiKey is empty.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &GeminiClient{cli: cli, model: model, timeout: timeout}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	parts := []*genai.Part{{Text: fullPrompt(prompt, input)}}
	return g.call(ctx, parts)
}

func (g *GeminiClient) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	parts := []*genai.Part{
		{Text: fullPrompt(prompt, input)},
		{InlineData: &genai.Blob{MIMEType: img.MIME, Data: img.Data}},
	}
	return g.call(ctx, parts)
}

func (g *GeminiClient) call(ctx context.Context, parts []*genai.Part) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrInvalidJSON
	}
	txt := resp.Candidates[0].Content.Parts[0].Text
	raw, ok := jsonutil.Repair([]byte(txt))
	if !ok {
		return nil, ErrInvalidJSON
	}
	return raw, nil
}

func fullPrompt(prompt string, input any) string {
	if input == nil {
		return prompt
	}
	in, _ := json.MarshalIndent(input, "", "  ")
	return prompt + "\n\n[INPUT JSON]\n" + string(in)
}
