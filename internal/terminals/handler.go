package terminals

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/possync/internal/platform/httpx"
)

// Handler serves the terminal watermark listing.
type Handler struct {
	logger  *slog.Logger
	tracker *Tracker
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, tracker *Tracker) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, tracker: tracker}
}

// MountRoutes registers GET /{tenantId}/{branchId}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{tenantId}/{branchId}", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantId"))
	branchID := strings.TrimSpace(chi.URLParam(r, "branchId"))
	if tenantID == "" || branchID == "" {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	marks, err := h.tracker.List(r.Context(), tenantID, branchID)
	if err != nil {
		h.logger.Error("list terminal watermarks", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"tenantId":  tenantID,
		"branchId":  branchID,
		"terminals": marks,
	})
}
