// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/pkg/logger"
)

// retryAfterSeconds is the Retry-After hint sent with 429 answers.
const retryAfterSeconds = "1"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	LeadDependencies
	AlertDependencies
	MonitorDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	eventsHandler  *EventsHandler
	leadsHandler   *LeadsHandler
	alertsHandler  *AlertsHandler
	monitorHandler *MonitorHandler

	origins []string
	log     logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		origins: []string{"*"},
		log:     logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.eventsHandler = NewEventsHandler(deps, v, s.log)
	s.leadsHandler = NewLeadsHandler(deps, v, s.log)
	s.alertsHandler = NewAlertsHandler(deps, s.log)
	s.monitorHandler = NewMonitorHandler(deps)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Post("/events", s.eventsHandler.HandlePostEvent)

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.leadsHandler.HandleList)
		r.Get("/hot", s.leadsHandler.HandleHot)
		r.Get("/stats", s.leadsHandler.HandleStats)
		r.Get("/{visitorID}", s.leadsHandler.HandleGet)
		r.Patch("/{visitorID}", s.leadsHandler.HandleUpdate)
	})

	r.Get("/alerts", s.alertsHandler.HandleList)
	r.Post("/alerts/{id}/read", s.alertsHandler.HandleMarkRead)

	r.Get("/monitor", s.monitorHandler.HandleMetrics)
	r.Get("/monitor/alerts", s.monitorHandler.HandleAlerts)
	r.Get("/realtime/updates", s.monitorHandler.HandleUpdates)
	r.Get("/notifications", s.monitorHandler.HandleNotifications)
}

// Handler returns a router serving every route.
func (s *Server) Handler(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKindError maps err to a status by its kind.
func writeKindError(ctx context.Context, log logger.Logger, w http.ResponseWriter, op string, err error) {
	switch errs.KindOf(err) {
	case errs.KindInvalid:
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errs.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err)
	case errs.KindPermissionDenied:
		writeError(w, http.StatusForbidden, "permission_denied", err)
	case errs.KindRateLimited:
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errs.KindDatabase, errs.KindNetwork:
		log.Error(ctx, "upstream store failure", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusBadGateway, "store_error", err)
	default:
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
