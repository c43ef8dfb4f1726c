package imagearchive

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("archived image not found")

// Store archives uploaded photos for later review. Archiving is opt-in and
// best-effort; a failed archive write never fails the analysis.
type Store interface {
	// Put stores the image and returns its archive key.
	Put(ctx context.Context, requestID, mime string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns a time-limited download link, or "" when the backend
	// cannot produce one.
	URL(ctx context.Context, key string) (string, error)
}

func objectKey(requestID, mime string) string {
	ext := ".bin"
	switch {
	case strings.Contains(mime, "jpeg"):
		ext = ".jpg"
	case strings.Contains(mime, "png"):
		ext = ".png"
	case strings.Contains(mime, "gif"):
		ext = ".gif"
	case strings.Contains(mime, "webp"):
		ext = ".webp"
	}
	return "uploads/" + strings.TrimSpace(requestID) + ext
}
