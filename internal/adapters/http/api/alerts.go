package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
)

// AlertDependencies defines the interface for alert operations.
type AlertDependencies interface {
	Alerts(ctx context.Context, unreadOnly bool) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, id string) error
}

// AlertsHandler handles alert requests.
type AlertsHandler struct {
	deps AlertDependencies
	log  logger.Logger
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(deps AlertDependencies, log logger.Logger) *AlertsHandler {
	return &AlertsHandler{deps: deps, log: log}
}

// HandleList handles GET /alerts?unread=true requests.
func (h *AlertsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_alerts"
	unread := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		unread = b
	}
	alerts, err := h.deps.Alerts(r.Context(), unread)
	if err != nil {
		writeKindError(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleMarkRead handles POST /alerts/{id}/read requests.
func (h *AlertsHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.MarkAlertRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeKindError(r.Context(), h.log, w, "api.mark_alert_read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
