package server

import (
	"net/http"

	"fixit/internal/gateway/handler"
	"fixit/internal/gateway/middleware"
)

func NewMux(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/troubleshoot", h.HandleTroubleshoot)
	mux.HandleFunc("/api/validate-image", h.HandleValidateImage)
	mux.HandleFunc("/api/identify-device", h.HandleIdentifyDevice)

	mux.HandleFunc("/api/quota-status", h.HandleQuotaStatus)
	mux.HandleFunc("/api/reset-quota", h.HandleResetQuota)
	mux.HandleFunc("/api/reset-breaker", h.HandleResetBreaker)
	mux.HandleFunc("/api/reports", h.HandleReports)
	mux.HandleFunc("/api/archived-image", h.HandleArchivedImage)
	mux.HandleFunc("/api/status/watch", h.HandleStatusWatch)

	mux.HandleFunc("/health", h.HandleHealth)

	return middleware.CORS(mux)
}
