package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidJSON marks a response that could not be parsed as JSON even
	// after repair.
	ErrInvalidJSON = errors.New("llm: invalid JSON from model")
	// ErrQuotaExceeded marks a provider quota rejection or local daily-budget
	// exhaustion. Never retried.
	ErrQuotaExceeded = errors.New("llm: quota exceeded")
	// ErrRateLimited marks a local per-minute budget rejection under the
	// reject policy.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrCircuitOpen marks a fast failure while the breaker is open.
	ErrCircuitOpen = errors.New("llm: circuit open")
)

// PermanentError indicates an error that will not resolve with retries
// (auth, configuration, invalid request).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error { return &PermanentError{Err: err} }

// Class buckets an upstream error for retry and breaker decisions.
type Class int

const (
	ClassTransient Class = iota // network/5xx/timeout: bounded retry
	ClassQuota                  // 429/resource exhausted: no retry
	ClassMalformed              // unparseable response: one stricter retry
	ClassFatal                  // auth/config: no retry, propagate
)

// Classify maps an error from the upstream call into a Class. Provider SDK
// errors are matched on status markers in the message, the same markers the
// provider documents for its REST surface.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return ClassQuota
	}
	if errors.Is(err, ErrInvalidJSON) {
		return ClassMalformed
	}
	var pErr *PermanentError
	if errors.As(err, &pErr) {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "resource_exhausted", "resource exhausted", "quota"):
		return ClassQuota
	case containsAny(msg, "401", "403", "api key", "unauthorized", "permission"):
		return ClassFatal
	case containsAny(msg, "timeout", "deadline", "500", "502", "503", "504", "unavailable", "connection"):
		return ClassTransient
	}
	return ClassTransient
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
