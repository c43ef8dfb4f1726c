package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"fixit/internal/gateway/repository/report"
	t "fixit/internal/types"
)

const maxUploadBytes = 12 << 20

type troubleshootJSON struct {
	ImageBase64 string `json:"image_base64"`
	ImageMIME   string `json:"image_mime,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	Query       string `json:"query"`
	DeviceHint  string `json:"device_hint,omitempty"`
}

// HandleTroubleshoot runs the full pipeline for one photo + question.
// Accepts multipart form uploads (image, query, device_hint) and JSON
// bodies with base64 image data.
func (h *Handler) HandleTroubleshoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	resp := h.Orch.Run(r.Context(), req)
	h.record(r, req, resp)
	writeJSON(w, httpStatusFor(resp.Status), resp)
}

// HandleValidateImage runs only the analysis gate's validation verdict so a
// client can pre-check a photo before paying for the full pipeline.
func (h *Handler) HandleValidateImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	if req.Query == "" {
		req.Query = "is this a usable photo of a device?"
	}
	if err := h.Orch.Pre.Run(req); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"is_valid": false, "reason": err.Error()})
		return
	}
	a, err := h.Orch.Analyze.Run(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "analysis unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.Validation)
}

// HandleIdentifyDevice returns only the device identification section.
func (h *Handler) HandleIdentifyDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	if req.Query == "" {
		req.Query = "what is this device?"
	}
	if err := h.Orch.Pre.Run(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.Orch.Analyze.Run(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "analysis unavailable")
		return
	}
	if !a.Validation.IsValid {
		writeJSON(w, http.StatusOK, map[string]any{
			"is_valid": false,
			"reason":   a.Validation.RejectionReason,
		})
		return
	}
	writeJSON(w, http.StatusOK, a.Device)
}

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (*t.Request, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	ct := r.Header.Get("Content-Type")

	if strings.HasPrefix(ct, "application/json") {
		var body troubleshootJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return nil, false
		}
		data, err := base64.StdEncoding.DecodeString(body.ImageBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "image_base64 is not valid base64")
			return nil, false
		}
		return &t.Request{
			ImageData:   data,
			ImageMIME:   body.ImageMIME,
			ImageWidth:  body.ImageWidth,
			ImageHeight: body.ImageHeight,
			Query:       strings.TrimSpace(body.Query),
			DeviceHint:  strings.TrimSpace(body.DeviceHint),
		}, true
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form or JSON body")
		return nil, false
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read image upload")
		return nil, false
	}
	width, _ := strconv.Atoi(r.FormValue("image_width"))
	height, _ := strconv.Atoi(r.FormValue("image_height"))
	return &t.Request{
		ImageData:   data,
		ImageMIME:   header.Header.Get("Content-Type"),
		ImageWidth:  width,
		ImageHeight: height,
		Query:       strings.TrimSpace(r.FormValue("query")),
		DeviceHint:  strings.TrimSpace(r.FormValue("device_hint")),
	}, true
}

// record archives the image and saves the history record. Both are
// best-effort; failures only log.
func (h *Handler) record(r *http.Request, req *t.Request, resp *t.Response) {
	var imageKey string
	if h.Archive != nil {
		key, err := h.Archive.Put(r.Context(), resp.RequestID, req.ImageMIME, req.ImageData)
		if err != nil {
			log.Printf("image archive failed req=%s: %v", resp.RequestID, err)
		} else {
			imageKey = key
		}
	}
	if h.Reports != nil {
		if err := h.Reports.Save(r.Context(), report.FromResponse(req, resp, imageKey)); err != nil {
			log.Printf("report save failed req=%s: %v", resp.RequestID, err)
		}
	}
}

func httpStatusFor(s t.ResponseStatus) int {
	switch s {
	case t.StatusQuotaExceeded:
		return http.StatusTooManyRequests
	case t.StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case t.StatusError:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
