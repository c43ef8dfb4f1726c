package llm

import (
	"context"
	"encoding/json"
	"time"
)

const stricterSuffix = "\n\nSTRICT: Return ONLY a single valid JSON object. No markdown fences, no prose, no trailing commas."

// Retry retries by error class: Transient errors up to maxTransient extra
// attempts with exponential backoff starting at baseDelay, Malformed
// responses exactly once with a stricter instruction suffix, Quota and Fatal
// errors never. If the context is canceled, it stops immediately.
func Retry(maxTransient int, baseDelay time.Duration) Middleware {
	if maxTransient < 0 {
		maxTransient = 0
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, maxTransient: maxTransient, base: baseDelay}
	}
}

type retrying struct {
	next         Client
	maxTransient int
	base         time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) do(ctx context.Context, call func(prompt string) (json.RawMessage, error), prompt string) (json.RawMessage, error) {
	transientLeft := r.maxTransient
	malformedLeft := 1
	attempt := 0
	for {
		resp, err := call(prompt)
		if err == nil {
			return resp, nil
		}
		switch Classify(err) {
		case ClassQuota, ClassFatal:
			return nil, err
		case ClassMalformed:
			if malformedLeft == 0 {
				return nil, err
			}
			malformedLeft--
			prompt += stricterSuffix
		case ClassTransient:
			if transientLeft == 0 {
				return nil, err
			}
			transientLeft--
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.base * time.Duration(1<<attempt)):
		}
		attempt++
	}
}

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	return r.do(ctx, func(p string) (json.RawMessage, error) {
		return r.next.GenerateJSON(ctx, p, input)
	}, prompt)
}

func (r *retrying) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	return r.do(ctx, func(p string) (json.RawMessage, error) {
		return r.next.GenerateVisionJSON(ctx, p, img, input)
	}, prompt)
}
