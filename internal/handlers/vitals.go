package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"optimal-protocol-sync/internal/config"
	"optimal-protocol-sync/internal/reaper"
)

// VitalsHandler exposes the vital-signs check over HTTP so an external
// scheduler can trigger it in addition to the in-process cron.
type VitalsHandler struct {
	reaper *reaper.Reaper
	config *config.Config
	logger *slog.Logger
}

// NewVitalsHandler creates a new vital-signs handler
func NewVitalsHandler(r *reaper.Reaper, cfg *config.Config) *VitalsHandler {
	return &VitalsHandler{
		reaper: r,
		config: cfg,
		logger: slog.Default(),
	}
}

// HandleCheck handles POST /check-vital-signs. The endpoint is guarded by
// the internal API key: the check bypasses row-level security and must not
// be reachable by end-user credentials.
func (h *VitalsHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token != h.config.InternalAPIKey {
		h.logger.Warn("Rejected vital-signs trigger with bad credentials")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	report, err := h.reaper.Run(r.Context())
	if err != nil {
		h.logger.Error("Vital-signs check failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Error("Failed to encode vital-signs report", "error", err)
	}
}

// HandleHealth handles GET /health
func (h *VitalsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
