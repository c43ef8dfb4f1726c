package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResponseCache deduplicates identical stage calls. Keys are content
// fingerprints (image hash + normalized query + stage), values are the raw
// model responses. Eviction is TTL plus LRU when the entry cap is reached.
// Entries are write-once: a concurrent miss on the same fingerprint may race
// two computations, and the last write wins.
type ResponseCache struct {
	lru *expirable.LRU[string, json.RawMessage]
}

// NewResponseCache builds a cache holding at most maxEntries entries, each
// served for at most ttl.
func NewResponseCache(maxEntries int, ttl time.Duration) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResponseCache{lru: expirable.NewLRU[string, json.RawMessage](maxEntries, nil, ttl)}
}

// Get returns the cached response for fp, if present and unexpired.
func (c *ResponseCache) Get(fp string) (json.RawMessage, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(fp)
}

// Put stores the response under fp.
func (c *ResponseCache) Put(fp string, raw json.RawMessage) {
	if c == nil {
		return
	}
	c.lru.Add(fp, raw)
}

// Len reports the current entry count (status surface).
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Fingerprint computes the deterministic cache key for one stage call:
// SHA-256 over the stage tag, the prompt, the whole-image content hash, and
// the canonical input JSON. Query text reaches the fingerprint through the
// input payload, normalized by NormalizeQuery at the call site.
func Fingerprint(stage, prompt string, img *Image, input any) string {
	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	if img != nil {
		imgSum := sha256.Sum256(img.Data)
		h.Write(imgSum[:])
		h.Write([]byte(img.MIME))
	}
	h.Write([]byte{0})
	if input != nil {
		in, _ := json.Marshal(input)
		h.Write(in)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeQuery lowercases and collapses whitespace so trivially different
// spellings of the same question share a fingerprint.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Cached serves repeated stage calls from the cache. A hit short-circuits
// everything below it (rate limiter, breaker, quota, the real call); a miss
// falls through and stores the successful response.
func Cached(cache *ResponseCache) Middleware {
	return func(next Client) Client {
		return &cached{next: next, cache: cache}
	}
}

type cached struct {
	next  Client
	cache *ResponseCache
}

func (c *cached) Name() string { return c.next.Name() }
func (c *cached) Close() error { return c.next.Close() }

func (c *cached) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	fp := Fingerprint(StageFrom(ctx), prompt, nil, input)
	if raw, ok := c.cache.Get(fp); ok {
		return raw, nil
	}
	raw, err := c.next.GenerateJSON(ctx, prompt, input)
	if err == nil {
		c.cache.Put(fp, raw)
	}
	return raw, err
}

func (c *cached) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	fp := Fingerprint(StageFrom(ctx), prompt, &img, input)
	if raw, ok := c.cache.Get(fp); ok {
		return raw, nil
	}
	raw, err := c.next.GenerateVisionJSON(ctx, prompt, img, input)
	if err == nil {
		c.cache.Put(fp, raw)
	}
	return raw, err
}
