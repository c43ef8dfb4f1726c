package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"fixit/internal/tester"
)

func TestQuota_DayLimit(t *testing.T) {
	q := NewQuotaTracker(0, 3)
	for i := 0; i < 3; i++ {
		tester.NoErr(t, q.Allow())
	}
	tester.True(t, errors.Is(q.Allow(), ErrQuotaExceeded))

	s := q.Status()
	tester.Eq(t, s.CallsToday, int64(3), "counter must not pass the limit")
	tester.Eq(t, s.DayRemaining, int64(0))
	tester.True(t, s.Exhausted)
	tester.True(t, s.ResetsAt != "", "exhausted status carries a reset time")
}

func TestQuota_DayBoundaryResets(t *testing.T) {
	day := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	q := NewQuotaTracker(0, 2)
	q.now = func() time.Time { return day }

	tester.NoErr(t, q.Allow())
	tester.NoErr(t, q.Allow())
	tester.True(t, errors.Is(q.Allow(), ErrQuotaExceeded))

	day = day.Add(24 * time.Hour)
	tester.NoErr(t, q.Allow(), "new day starts a fresh budget")
	s := q.Status()
	tester.Eq(t, s.CallsToday, int64(1))
	tester.False(t, s.Exhausted)
}

func TestQuota_UnlimitedStillCounts(t *testing.T) {
	q := NewQuotaTracker(0, 0)
	for i := 0; i < 10; i++ {
		tester.NoErr(t, q.Allow())
	}
	tester.Eq(t, q.Status().TotalCalls, int64(10))
}

func TestQuota_Reset(t *testing.T) {
	q := NewQuotaTracker(0, 1)
	tester.NoErr(t, q.Allow())
	tester.True(t, errors.Is(q.Allow(), ErrQuotaExceeded))
	q.Reset()
	tester.NoErr(t, q.Allow())
}

func TestQuotaGuard_EachAttemptCounts(t *testing.T) {
	q := NewQuotaTracker(0, 2)
	fake := NewFakeClient()
	cli := Wrap(fake, QuotaGuard(q))

	ctx := WithStage(context.Background(), "analysis")
	_, err := cli.GenerateJSON(ctx, "p", map[string]any{"query": "printer jam"})
	tester.NoErr(t, err)
	_, err = cli.GenerateJSON(ctx, "p", map[string]any{"query": "printer jam"})
	tester.NoErr(t, err)

	_, err = cli.GenerateJSON(ctx, "p", map[string]any{"query": "printer jam"})
	tester.True(t, errors.Is(err, ErrQuotaExceeded))
	tester.Eq(t, fake.Calls(), int64(2), "blocked attempt must not reach upstream")
}
