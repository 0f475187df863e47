package api

import (
	"net/http"

	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/monitor"
)

// MonitorDependencies exposes query monitoring and realtime state.
type MonitorDependencies interface {
	PerformanceMetrics() monitor.Snapshot
	PerformanceAlerts() []monitor.Alert
	RecentUpdates() []model.RealtimeUpdate
	Notifications() []model.Notification
}

// MonitorHandler handles monitoring requests.
type MonitorHandler struct {
	deps MonitorDependencies
}

// NewMonitorHandler creates a new monitor handler.
func NewMonitorHandler(deps MonitorDependencies) *MonitorHandler {
	return &MonitorHandler{deps: deps}
}

// HandleMetrics handles GET /monitor requests.
func (h *MonitorHandler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.PerformanceMetrics())
}

// HandleAlerts handles GET /monitor/alerts requests.
func (h *MonitorHandler) HandleAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := h.deps.PerformanceAlerts()
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleUpdates handles GET /realtime/updates requests.
func (h *MonitorHandler) HandleUpdates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.RecentUpdates())
}

// HandleNotifications handles GET /notifications requests.
func (h *MonitorHandler) HandleNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Notifications())
}
