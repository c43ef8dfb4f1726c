package llm

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// CircuitState is the breaker's serving posture.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker trips after a run of consecutive upstream failures (quota
// rejections included) and fails fast until the cooldown elapses, then lets
// exactly one probe through. The probe's outcome alone decides the next
// transition. State is owned exclusively by the breaker and mutated under a
// mutex held only for the transition, never across an upstream call.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        CircuitState
	failures     int
	threshold    int
	cooldown     time.Duration
	lastChange   time.Time
	probeInFlight bool

	now func() time.Time // test hook
}

// NewCircuitBreaker builds a closed breaker. threshold <= 0 defaults to 5,
// cooldown <= 0 to 30s.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		state:      CircuitClosed,
		threshold:  threshold,
		cooldown:   cooldown,
		lastChange: time.Now(),
		now:        time.Now,
	}
}

// Allow decides whether a call may proceed. In the open state it fails fast
// with ErrCircuitOpen until the cooldown elapses, at which point a single
// probe is admitted (half-open).
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if b.now().Sub(b.lastChange) < b.cooldown {
			return ErrCircuitOpen
		}
		b.transition(CircuitHalfOpen)
		b.probeInFlight = true
		return nil
	case CircuitHalfOpen:
		if b.probeInFlight {
			return ErrCircuitOpen
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// Record feeds a call outcome back into the breaker.
func (b *CircuitBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.probeInFlight = false
		if err != nil {
			b.transition(CircuitOpen)
		} else {
			b.failures = 0
			b.transition(CircuitClosed)
		}
		return
	}
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == CircuitClosed && b.failures >= b.threshold {
		b.transition(CircuitOpen)
	}
}

// Discard releases the half-open probe slot without recording an outcome.
// Used when a probe ends with a canceled context: the upstream was never
// judged, so the next call becomes the probe instead.
func (b *CircuitBreaker) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.probeInFlight = false
	}
}

// Reset forces the breaker closed (admin surface).
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probeInFlight = false
	b.transition(CircuitClosed)
}

// State returns the current state and the timestamp of the last transition.
func (b *CircuitBreaker) State() (CircuitState, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.lastChange
}

func (b *CircuitBreaker) transition(to CircuitState) {
	if b.state == to {
		return
	}
	log.Printf("circuit breaker: %s -> %s", b.state, to)
	b.state = to
	b.lastChange = b.now()
}

// Breaker wraps calls with the circuit breaker: calls that the breaker
// blocks never reach the upstream, and every outcome that passes through is
// recorded. Canceled contexts do not count as upstream failures.
func Breaker(cb *CircuitBreaker) Middleware {
	return func(next Client) Client {
		return &broken{next: next, cb: cb}
	}
}

type broken struct {
	next Client
	cb   *CircuitBreaker
}

func (c *broken) Name() string { return c.next.Name() }
func (c *broken) Close() error { return c.next.Close() }

func (c *broken) observe(ctx context.Context, err error) {
	if err != nil && ctx.Err() != nil {
		c.cb.Discard()
		return
	}
	c.cb.Record(err)
}

func (c *broken) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.cb.Allow(); err != nil {
		return nil, err
	}
	raw, err := c.next.GenerateJSON(ctx, prompt, input)
	c.observe(ctx, err)
	return raw, err
}

func (c *broken) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	if err := c.cb.Allow(); err != nil {
		return nil, err
	}
	raw, err := c.next.GenerateVisionJSON(ctx, prompt, img, input)
	c.observe(ctx, err)
	return raw, err
}
