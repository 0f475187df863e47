package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	// Enqueue submits an event for async tracking. A rate-limited error
	// signals backpressure.
	Enqueue(ctx context.Context, req model.TrackRequest) error
}

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID       string         `json:"event_id" validate:"omitempty,uuid"`
	VisitorID     string         `json:"visitor_id" validate:"max=128"`
	SessionID     string         `json:"session_id" validate:"max=128"`
	CompanyDomain string         `json:"company_domain" validate:"omitempty,hostname_rfc1123"`
	EventType     string         `json:"event_type" validate:"required,max=64"`
	PagePath      string         `json:"page_path" validate:"max=2048"`
	PageURL       string         `json:"page_url" validate:"omitempty,url"`
	Referrer      string         `json:"referrer" validate:"max=2048"`
	UserAgent     string         `json:"user_agent" validate:"max=1024"`
	Payload       map[string]any `json:"payload"`
	TS            string         `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (e eventRequest) toTrack(r *http.Request) model.TrackRequest {
	req := model.TrackRequest{
		EventID:       e.EventID,
		VisitorID:     e.VisitorID,
		SessionID:     e.SessionID,
		CompanyDomain: e.CompanyDomain,
		EventType:     model.EventType(e.EventType),
		PagePath:      e.PagePath,
		PageURL:       e.PageURL,
		Referrer:      e.Referrer,
		UserAgent:     e.UserAgent,
		Payload:       e.Payload,
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}
	if req.Referrer == "" {
		req.Referrer = r.Referer()
	}
	if e.TS != "" {
		// Validated above.
		req.TS, _ = time.Parse(time.RFC3339, e.TS)
	}
	return req
}

type ackResponse struct {
	Status string `json:"status"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps     EventDependencies
	validate *validator.Validate
	log      logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, v *validator.Validate, log logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, validate: v, log: log}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.Enqueue(r.Context(), req.toTrack(r)); err != nil {
		writeKindError(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
