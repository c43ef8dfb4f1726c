package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	t "fixit/internal/types"
)

// InputError marks an unreadable or invalid request payload. Fatal, never
// retried.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "invalid input: " + e.Reason }

// Preprocess is the deterministic first gate: it verifies the image bytes
// decode, pins down the MIME type, and fills in pixel dimensions when the
// caller did not provide them. No inference call is made.
type Preprocess struct{}

func (Preprocess) Run(req *t.Request) error {
	if len(req.ImageData) == 0 {
		return &InputError{Reason: "empty image payload"}
	}
	if req.Query == "" {
		return &InputError{Reason: "empty query"}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(req.ImageData))
	if err != nil {
		return &InputError{Reason: fmt.Sprintf("undecodable image: %v", err)}
	}
	if req.ImageWidth <= 0 || req.ImageHeight <= 0 {
		req.ImageWidth, req.ImageHeight = cfg.Width, cfg.Height
	}
	mime := http.DetectContentType(req.ImageData)
	switch format {
	case "jpeg", "png", "gif":
		req.ImageMIME = mime
	default:
		return &InputError{Reason: "unsupported image format: " + format}
	}
	return nil
}
