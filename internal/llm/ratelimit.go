package llm

import (
	"context"
	"encoding/json"
	"time"
)

// bucketLimiter is a lightweight token-bucket limiter that throttles to at
// most R requests per second with an optional burst capacity.
type bucketLimiter struct {
	tokens chan struct{}
	stopCh chan struct{}
}

// newBucketLimiter creates a limiter that allows up to rps events per second
// with a burst capacity of 'burst'. If rps <= 0, the limiter is disabled
// (Acquire becomes a no-op).
func newBucketLimiter(rps float64, burst int) *bucketLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	l := &bucketLimiter{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}

	// Pre-fill bucket to allow an initial burst.
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	// Refill at the configured rate.
	period := time.Duration(float64(time.Second) / rps)
	if period <= 0 {
		period = time.Millisecond // safeguard
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
					// bucket full; drop token
				}
			case <-l.stopCh:
				return
			}
		}
	}()

	return l
}

// Acquire blocks until a token is available or the context is canceled.
func (l *bucketLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return context.Canceled
	case <-l.tokens:
		return nil
	}
}

// TryAcquire takes a token without waiting.
func (l *bucketLimiter) TryAcquire() bool {
	if l == nil {
		return true
	}
	select {
	case <-l.tokens:
		return true
	default:
		return false
	}
}

// Stop terminates the limiter's refill goroutine.
func (l *bucketLimiter) Stop() {
	if l == nil {
		return
	}
	close(l.stopCh)
}

// LimitPolicy selects what happens when the per-minute budget is spent.
type LimitPolicy string

const (
	// PolicyWait queues the call up to the configured bound, then rejects.
	PolicyWait LimitPolicy = "wait"
	// PolicyReject fails immediately with ErrRateLimited.
	PolicyReject LimitPolicy = "reject"
)

// RateLimit throttles outgoing calls to rpm requests per minute. Under
// PolicyWait a call may wait up to maxWait for a token before being
// rejected; under PolicyReject it fails immediately.
func RateLimit(rpm int, policy LimitPolicy, maxWait time.Duration) Middleware {
	return func(next Client) Client {
		var rl *bucketLimiter
		if rpm > 0 {
			rl = newBucketLimiter(float64(rpm)/60.0, rpm)
		}
		if maxWait <= 0 {
			maxWait = 2 * time.Second
		}
		return &rateLimited{next: next, rl: rl, policy: policy, maxWait: maxWait}
	}
}

type rateLimited struct {
	next    Client
	rl      *bucketLimiter
	policy  LimitPolicy
	maxWait time.Duration
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) admit(ctx context.Context) error {
	if c.rl == nil {
		return nil
	}
	if c.policy == PolicyReject {
		if !c.rl.TryAcquire() {
			return ErrRateLimited
		}
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()
	if err := c.rl.Acquire(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimited
	}
	return nil
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

func (c *rateLimited) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateVisionJSON(ctx, prompt, img, input)
}
