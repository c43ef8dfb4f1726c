package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"fixit/internal/gateway/repository/imagearchive"
	"fixit/internal/gateway/repository/report"
	"fixit/internal/llm"
	"fixit/internal/pipeline"
)

// Handler serves the troubleshoot API. It holds the orchestrator plus the
// shared resilience state the status endpoints report on.
type Handler struct {
	Orch    *pipeline.Orchestrator
	Quota   *llm.QuotaTracker
	Breaker *llm.CircuitBreaker
	Cache   *llm.ResponseCache

	Reports report.Repository
	Archive imagearchive.Store

	AdminKey string
}

func New(orch *pipeline.Orchestrator, quota *llm.QuotaTracker, breaker *llm.CircuitBreaker, cache *llm.ResponseCache) *Handler {
	return &Handler{Orch: orch, Quota: quota, Breaker: breaker, Cache: cache}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// adminOK checks the X-Admin-Key header against the configured key. A blank
// configured key disables the admin surface entirely.
func (h *Handler) adminOK(r *http.Request) bool {
	return h.AdminKey != "" && r.Header.Get("X-Admin-Key") == h.AdminKey
}
