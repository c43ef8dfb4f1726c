package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fixit/internal/tester"
)

type flakyClient struct {
	err   error
	calls int
}

func (f *flakyClient) Name() string { return "flaky" }
func (f *flakyClient) Close() error { return nil }
func (f *flakyClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{}`), nil
}
func (f *flakyClient) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	return f.GenerateJSON(ctx, prompt, input)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	upstream := errors.New("boom 503")

	for i := 0; i < 2; i++ {
		tester.NoErr(t, cb.Allow())
		cb.Record(upstream)
	}
	state, _ := cb.State()
	tester.Eq(t, state, CircuitClosed, "below threshold stays closed")

	tester.NoErr(t, cb.Allow())
	cb.Record(upstream)
	state, _ = cb.State()
	tester.Eq(t, state, CircuitOpen, "threshold trips the breaker")

	tester.True(t, errors.Is(cb.Allow(), ErrCircuitOpen), "open breaker fails fast")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	upstream := errors.New("boom")

	cb.Record(upstream)
	cb.Record(upstream)
	cb.Record(nil)
	cb.Record(upstream)
	cb.Record(upstream)

	state, _ := cb.State()
	tester.Eq(t, state, CircuitClosed, "failures must be consecutive")
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	base := time.Now()
	clock := base
	cb := NewCircuitBreaker(1, 30*time.Second)
	cb.now = func() time.Time { return clock }

	cb.Record(errors.New("boom"))
	state, _ := cb.State()
	tester.Eq(t, state, CircuitOpen)

	// Before the cooldown: still rejecting.
	clock = base.Add(10 * time.Second)
	tester.True(t, errors.Is(cb.Allow(), ErrCircuitOpen))

	// After the cooldown: exactly one probe gets through.
	clock = base.Add(31 * time.Second)
	tester.NoErr(t, cb.Allow(), "first caller after cooldown is the probe")
	tester.True(t, errors.Is(cb.Allow(), ErrCircuitOpen), "second caller is rejected while probe in flight")

	// Probe success closes the circuit.
	cb.Record(nil)
	state, _ = cb.State()
	tester.Eq(t, state, CircuitClosed)
	tester.NoErr(t, cb.Allow())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	base := time.Now()
	clock := base
	cb := NewCircuitBreaker(1, 30*time.Second)
	cb.now = func() time.Time { return clock }

	cb.Record(errors.New("boom"))
	clock = base.Add(31 * time.Second)
	tester.NoErr(t, cb.Allow())
	cb.Record(errors.New("still down"))

	state, _ := cb.State()
	tester.Eq(t, state, CircuitOpen, "failed probe reopens")
	tester.True(t, errors.Is(cb.Allow(), ErrCircuitOpen))
}

func TestBreaker_MiddlewareBlocksUpstream(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	inner := &flakyClient{err: errors.New("boom 500")}
	cli := Wrap(inner, Breaker(cb))

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.Err(t, err)
	tester.Eq(t, inner.calls, 1)

	// Now open: the upstream must not see the next call.
	_, err = cli.GenerateJSON(context.Background(), "p", nil)
	tester.True(t, errors.Is(err, ErrCircuitOpen))
	tester.Eq(t, inner.calls, 1, "blocked call must not reach upstream")
}

func TestBreaker_CanceledProbeReleasesSlot(t *testing.T) {
	base := time.Now()
	clock := base
	cb := NewCircuitBreaker(1, 30*time.Second)
	cb.now = func() time.Time { return clock }
	inner := &flakyClient{err: context.Canceled}
	cli := Wrap(inner, Breaker(cb))

	cb.Record(errors.New("boom"))
	clock = base.Add(31 * time.Second)

	// The probe's caller hangs up before the upstream is judged.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cli.GenerateJSON(ctx, "p", nil)
	tester.Err(t, err)

	// Upstream recovers. The next call must become a fresh probe and close
	// the circuit, not fail fast on a probe slot nobody holds.
	inner.err = nil
	clock = base.Add(time.Minute)
	_, err = cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err, "fresh probe must be admitted after a canceled one")

	state, _ := cb.State()
	tester.Eq(t, state, CircuitClosed, "successful probe closes the circuit")
}

func TestBreaker_CanceledContextNotCounted(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	inner := &flakyClient{err: context.Canceled}
	cli := Wrap(inner, Breaker(cb))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cli.GenerateJSON(ctx, "p", nil)
	tester.Err(t, err)

	state, _ := cb.State()
	tester.Eq(t, state, CircuitClosed, "caller cancellation is not an upstream failure")
}
