package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
)

// LeadDependencies defines the interface for lead operations.
type LeadDependencies interface {
	ListHot(ctx context.Context) ([]model.LeadScore, error)
	ListAll(ctx context.Context) ([]model.LeadScore, error)
	Lead(ctx context.Context, visitorID string) (model.LeadScore, error)
	Stats(ctx context.Context) (model.Stats, error)
	UpdateLeadInfo(ctx context.Context, visitorID string, u model.LeadUpdate) (model.LeadScore, error)
}

// leadUpdateRequest mirrors the OpenAPI schema for PATCH /leads/{visitorID}.
type leadUpdateRequest struct {
	Email            *string `json:"email" validate:"omitempty,email"`
	Phone            *string `json:"phone" validate:"omitempty,max=32"`
	Name             *string `json:"name" validate:"omitempty,max=256"`
	CompanyName      *string `json:"company_name" validate:"omitempty,max=256"`
	LeadStatus       *string `json:"lead_status" validate:"omitempty,min=1,max=64"`
	AssignedTo       *string `json:"assigned_to" validate:"omitempty,max=256"`
	CRMSynced        *bool   `json:"crm_synced"`
	HotLeadThreshold *int    `json:"hot_lead_threshold" validate:"omitempty,gt=0"`
}

func (u leadUpdateRequest) toUpdate() model.LeadUpdate {
	return model.LeadUpdate{
		Email:            u.Email,
		Phone:            u.Phone,
		Name:             u.Name,
		CompanyName:      u.CompanyName,
		LeadStatus:       u.LeadStatus,
		AssignedTo:       u.AssignedTo,
		CRMSynced:        u.CRMSynced,
		HotLeadThreshold: u.HotLeadThreshold,
	}
}

// LeadsHandler handles lead requests.
type LeadsHandler struct {
	deps     LeadDependencies
	validate *validator.Validate
	log      logger.Logger
}

// NewLeadsHandler creates a new leads handler.
func NewLeadsHandler(deps LeadDependencies, v *validator.Validate, log logger.Logger) *LeadsHandler {
	return &LeadsHandler{deps: deps, validate: v, log: log}
}

// HandleList handles GET /leads requests.
func (h *LeadsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	leads, err := h.deps.ListAll(r.Context())
	if err != nil {
		writeKindError(r.Context(), h.log, w, "api.list_leads", err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

// HandleHot handles GET /leads/hot requests.
func (h *LeadsHandler) HandleHot(w http.ResponseWriter, r *http.Request) {
	leads, err := h.deps.ListHot(r.Context())
	if err != nil {
		writeKindError(r.Context(), h.log, w, "api.list_hot_leads", err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

// HandleGet handles GET /leads/{visitorID} requests.
func (h *LeadsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	lead, err := h.deps.Lead(r.Context(), chi.URLParam(r, "visitorID"))
	if err != nil {
		writeKindError(r.Context(), h.log, w, "api.get_lead", err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// HandleStats handles GET /leads/stats requests.
func (h *LeadsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Stats(r.Context())
	if err != nil {
		writeKindError(r.Context(), h.log, w, "api.lead_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleUpdate handles PATCH /leads/{visitorID} requests.
func (h *LeadsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_lead"
	var req leadUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	lead, err := h.deps.UpdateLeadInfo(r.Context(), chi.URLParam(r, "visitorID"), req.toUpdate())
	if err != nil {
		writeKindError(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}
