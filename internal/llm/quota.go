package llm

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
)

// QuotaTracker maintains per-minute and per-day counters of attempted
// outbound calls against configured limits. It is a process-wide singleton
// shared by all requests; all mutation goes through atomic compare-and-swap
// on packed (bucket, count) words, so concurrent callers never lose updates.
type QuotaTracker struct {
	minuteLimit int64
	dayLimit    int64

	// packed state: high 32 bits = bucket id, low 32 bits = count
	minute atomic.Int64
	day    atomic.Int64

	total atomic.Int64

	now func() time.Time // test hook
}

// NewQuotaTracker builds a tracker. A limit <= 0 disables enforcement for
// that window while still counting.
func NewQuotaTracker(perMinute, perDay int) *QuotaTracker {
	return &QuotaTracker{
		minuteLimit: int64(perMinute),
		dayLimit:    int64(perDay),
		now:         time.Now,
	}
}

func pack(bucket, count int64) int64 { return bucket<<32 | count }
func unpack(v int64) (bucket, count int64) {
	return v >> 32, v & 0xffffffff
}

// bump increments the counter for the current bucket, resetting it when the
// bucket has rolled over. Returns false when the increment would exceed
// limit (the counter is not incremented past the limit).
func bump(word *atomic.Int64, bucket, limit int64) bool {
	for {
		old := word.Load()
		oldBucket, count := unpack(old)
		if oldBucket != bucket {
			count = 0
		}
		if limit > 0 && count >= limit {
			return false
		}
		if word.CompareAndSwap(old, pack(bucket, count+1)) {
			return true
		}
	}
}

// Allow records one attempted outbound call. It returns ErrQuotaExceeded
// once the daily budget is spent; the counter does not increment further
// until the day boundary resets it.
func (q *QuotaTracker) Allow() error {
	now := q.now().UTC()
	day := int64(now.Year()*1000 + now.YearDay())
	if !bump(&q.day, day, q.dayLimit) {
		return ErrQuotaExceeded
	}
	minute := now.Unix() / 60
	bump(&q.minute, minute, 0) // minute window counts for visibility only
	q.total.Add(1)
	return nil
}

// Snapshot is a point-in-time view of quota consumption for the status
// surface.
type Snapshot struct {
	CallsThisMinute int64  `json:"calls_this_minute"`
	MinuteLimit     int64  `json:"minute_limit"`
	CallsToday      int64  `json:"calls_today"`
	DayLimit        int64  `json:"day_limit"`
	DayRemaining    int64  `json:"day_remaining"`
	TotalCalls      int64  `json:"total_calls"`
	Exhausted       bool   `json:"exhausted"`
	ResetsAt        string `json:"resets_at,omitempty"`
}

// Status reports current consumption. Stale buckets read as zero.
func (q *QuotaTracker) Status() Snapshot {
	now := q.now().UTC()
	day := int64(now.Year()*1000 + now.YearDay())
	minute := now.Unix() / 60

	readWindow := func(word *atomic.Int64, bucket int64) int64 {
		b, c := unpack(word.Load())
		if b != bucket {
			return 0
		}
		return c
	}

	today := readWindow(&q.day, day)
	remaining := int64(0)
	exhausted := false
	if q.dayLimit > 0 {
		remaining = q.dayLimit - today
		if remaining <= 0 {
			remaining = 0
			exhausted = true
		}
	}
	s := Snapshot{
		CallsThisMinute: readWindow(&q.minute, minute),
		MinuteLimit:     q.minuteLimit,
		CallsToday:      today,
		DayLimit:        q.dayLimit,
		DayRemaining:    remaining,
		TotalCalls:      q.total.Load(),
		Exhausted:       exhausted,
	}
	if exhausted {
		s.ResetsAt = now.Truncate(24 * time.Hour).Add(24 * time.Hour).Format(time.RFC3339)
	}
	return s
}

// Reset zeroes both windows. Admin surface only.
func (q *QuotaTracker) Reset() {
	q.minute.Store(0)
	q.day.Store(0)
}

// QuotaGuard records every attempted outbound call in the tracker and fails
// with ErrQuotaExceeded once the daily budget is spent. It sits innermost in
// the chain so retries count as separate attempts and cache hits never
// consume quota.
func QuotaGuard(tracker *QuotaTracker) Middleware {
	return func(next Client) Client {
		return &quotaGuarded{next: next, q: tracker}
	}
}

type quotaGuarded struct {
	next Client
	q    *QuotaTracker
}

func (g *quotaGuarded) Name() string { return g.next.Name() }
func (g *quotaGuarded) Close() error { return g.next.Close() }

func (g *quotaGuarded) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if g.q != nil {
		if err := g.q.Allow(); err != nil {
			return nil, err
		}
	}
	return g.next.GenerateJSON(ctx, prompt, input)
}

func (g *quotaGuarded) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	if g.q != nil {
		if err := g.q.Allow(); err != nil {
			return nil, err
		}
	}
	return g.next.GenerateVisionJSON(ctx, prompt, img, input)
}
