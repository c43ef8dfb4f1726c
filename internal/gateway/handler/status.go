package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusSnapshot is the combined health view served by the status and watch
// endpoints.
type StatusSnapshot struct {
	Quota        any    `json:"quota"`
	BreakerState string `json:"breaker_state"`
	BreakerSince string `json:"breaker_since,omitempty"`
	CacheEntries int    `json:"cache_entries"`
	Timestamp    string `json:"timestamp"`
}

func (h *Handler) snapshot() StatusSnapshot {
	state, since := h.Breaker.State()
	s := StatusSnapshot{
		Quota:        h.Quota.Status(),
		BreakerState: string(state),
		CacheEntries: h.Cache.Len(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if !since.IsZero() {
		s.BreakerSince = since.UTC().Format(time.RFC3339)
	}
	return s
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleQuotaStatus reports quota consumption, breaker state and cache size.
func (h *Handler) HandleQuotaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// HandleResetQuota zeroes the quota windows. Requires the admin key.
func (h *Handler) HandleResetQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !h.adminOK(r) {
		writeError(w, http.StatusForbidden, "admin key required")
		return
	}
	h.Quota.Reset()
	writeJSON(w, http.StatusOK, h.snapshot())
}

// HandleResetBreaker forces the circuit closed. Requires the admin key.
func (h *Handler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !h.adminOK(r) {
		writeError(w, http.StatusForbidden, "admin key required")
		return
	}
	h.Breaker.Reset()
	writeJSON(w, http.StatusOK, h.snapshot())
}

// HandleReports lists recent troubleshoot history.
func (h *Handler) HandleReports(w http.ResponseWriter, r *http.Request) {
	if h.Reports == nil {
		writeError(w, http.StatusNotFound, "report history disabled")
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		rec, err := h.Reports.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.Reports.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list reports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": recs})
}

// HandleArchivedImage serves the stored photo for a past request, looked up
// by report id or directly by archive key. Backends that can presign a
// download link redirect to it instead of streaming.
func (h *Handler) HandleArchivedImage(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeError(w, http.StatusNotFound, "image archive disabled")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "key or id required")
			return
		}
		if h.Reports == nil {
			writeError(w, http.StatusNotFound, "report history disabled")
			return
		}
		rec, err := h.Reports.Get(r.Context(), id)
		if err != nil || rec.ImageKey == "" {
			writeError(w, http.StatusNotFound, "no archived image for request")
			return
		}
		key = rec.ImageKey
	}
	if url, err := h.Archive.URL(r.Context(), key); err == nil && url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	data, err := h.Archive.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "archived image not found")
		return
	}
	w.Header().Set("Content-Type", contentTypeForKey(key))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".gif"):
		return "image/gif"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	}
	return "application/octet-stream"
}
