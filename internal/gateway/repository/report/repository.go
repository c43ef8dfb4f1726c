package report

import (
	"context"
	"errors"
	"time"

	t "fixit/internal/types"
)

var ErrNotFound = errors.New("report not found")

// Record is one stored troubleshoot outcome. The image itself is never
// stored here; ImageKey points into the archive when archiving is on.
type Record struct {
	RequestID  string         `json:"request_id"`
	Query      string         `json:"query"`
	DeviceType string         `json:"device_type,omitempty"`
	AnswerType t.AnswerType   `json:"answer_type"`
	Status     t.ResponseStatus `json:"status"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	ImageKey   string         `json:"image_key,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Repository is the report history port. Both backends keep writes
// best-effort: history must never fail a troubleshoot request.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, requestID string) (Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// FromResponse builds the history record for a finished request.
func FromResponse(req *t.Request, resp *t.Response, imageKey string) Record {
	rec := Record{
		RequestID:  resp.RequestID,
		Query:      req.Query,
		AnswerType: resp.AnswerType,
		Status:     resp.Status,
		ElapsedMS:  resp.ElapsedMS,
		ImageKey:   imageKey,
		CreatedAt:  resp.CreatedAt,
	}
	if resp.Device != nil {
		rec.DeviceType = resp.Device.Type
	}
	return rec
}
