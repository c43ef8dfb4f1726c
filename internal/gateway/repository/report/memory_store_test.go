package report

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fixit/internal/tester"
	types "fixit/internal/types"
)

func TestMemoryStore_SaveGetRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := Record{
			RequestID:  fmt.Sprintf("req-%d", i),
			Query:      "paper jam",
			AnswerType: types.AnswerTroubleshootSteps,
			Status:     types.StatusOK,
			CreatedAt:  time.Now().UTC(),
		}
		tester.NoErr(t, s.Save(ctx, rec))
	}

	got, err := s.Get(ctx, "req-3")
	tester.NoErr(t, err)
	tester.Eq(t, got.RequestID, "req-3")

	_, err = s.Get(ctx, "req-99")
	tester.True(t, errors.Is(err, ErrNotFound))

	recent, err := s.Recent(ctx, 3)
	tester.NoErr(t, err)
	tester.Eq(t, len(recent), 3)
	tester.Eq(t, recent[0].RequestID, "req-4", "newest first")
}

func TestMemoryStore_IgnoresBlankID(t *testing.T) {
	s := NewMemoryStore()
	tester.NoErr(t, s.Save(context.Background(), Record{}))
	recent, err := s.Recent(context.Background(), 10)
	tester.NoErr(t, err)
	tester.Eq(t, len(recent), 0)
}

func TestFromResponse(t *testing.T) {
	req := &types.Request{Query: "paper jam"}
	resp := &types.Response{
		RequestID:  "req-1",
		AnswerType: types.AnswerTroubleshootSteps,
		Status:     types.StatusOK,
		Device:     &types.Device{Type: "laser printer"},
		ElapsedMS:  42,
		CreatedAt:  time.Now().UTC(),
	}
	rec := FromResponse(req, resp, "uploads/req-1.png")
	tester.Eq(t, rec.RequestID, "req-1")
	tester.Eq(t, rec.DeviceType, "laser printer")
	tester.Eq(t, rec.ImageKey, "uploads/req-1.png")
	tester.Eq(t, rec.ElapsedMS, int64(42))
}
