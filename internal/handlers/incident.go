package handlers

import (
	"context"
	"net/http"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/civicwatch/incident-portal/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IncidentService is the incident register behind the incident endpoints.
type IncidentService interface {
	List(ctx context.Context, requester auth.Claims) ([]models.Incident, error)
	Get(ctx context.Context, requester auth.Claims, id uuid.UUID) (*models.Incident, error)
	Create(ctx context.Context, requester auth.Claims, in services.CreateIncidentInput) (*models.Incident, error)
	Edit(ctx context.Context, requester auth.Claims, id uuid.UUID, in services.EditIncidentInput) (*models.Incident, error)
	Remove(ctx context.Context, requester auth.Claims, id uuid.UUID) error
	UpdateStatus(ctx context.Context, requester auth.Claims, id uuid.UUID, in services.StatusUpdateInput) (*models.Incident, error)
	History(ctx context.Context, requester auth.Claims, id uuid.UUID) ([]models.IncidentUpdate, error)
}

// StatsService computes dashboard aggregates.
type StatsService interface {
	Summary(ctx context.Context, requester auth.Claims) (*models.Stats, error)
}

// IncidentHandler handles incident-related HTTP endpoints
type IncidentHandler struct {
	svc    IncidentService
	stats  StatsService
	logger *zap.SugaredLogger
}

// NewIncidentHandler creates a new incident handler
func NewIncidentHandler(svc IncidentService, stats StatsService, logger *zap.SugaredLogger) *IncidentHandler {
	return &IncidentHandler{svc: svc, stats: stats, logger: logger}
}

func requester(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	c, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, apperr.KindUnauthorized, "Authorization required")
	}
	return c, ok
}

// List handles GET /api/incidents
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	incidents, err := h.svc.List(r.Context(), who)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to fetch incidents")
		return
	}
	respondJSON(w, http.StatusOK, incidents)
}

// Get handles GET /api/incidents/{id}
func (h *IncidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "Incident not found")
	if !ok {
		return
	}

	incident, err := h.svc.Get(r.Context(), who, id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to fetch incident")
		return
	}
	respondJSON(w, http.StatusOK, incident)
}

// Create handles POST /api/incidents
func (h *IncidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	var req services.CreateIncidentInput
	if !decodeJSON(w, r, &req) {
		return
	}

	incident, err := h.svc.Create(r.Context(), who, req)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to create incident")
		return
	}
	respondJSON(w, http.StatusCreated, incident)
}

// Edit handles PUT /api/incidents/{id}
func (h *IncidentHandler) Edit(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "Incident not found")
	if !ok {
		return
	}
	var req services.EditIncidentInput
	if !decodeJSON(w, r, &req) {
		return
	}

	incident, err := h.svc.Edit(r.Context(), who, id, req)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to update incident")
		return
	}
	respondJSON(w, http.StatusOK, incident)
}

// Delete handles DELETE /api/incidents/{id}
func (h *IncidentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "Incident not found")
	if !ok {
		return
	}

	if err := h.svc.Remove(r.Context(), who, id); err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to delete incident")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UpdateStatus handles PATCH /api/incidents/{id} (authority only)
func (h *IncidentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "Incident not found")
	if !ok {
		return
	}
	var req services.StatusUpdateInput
	if !decodeJSON(w, r, &req) {
		return
	}

	incident, err := h.svc.UpdateStatus(r.Context(), who, id, req)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to update incident")
		return
	}
	respondJSON(w, http.StatusOK, incident)
}

// History handles GET /api/incidents/{id}/updates
func (h *IncidentHandler) History(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "Incident not found")
	if !ok {
		return
	}

	updates, err := h.svc.History(r.Context(), who, id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to fetch incident history")
		return
	}
	respondJSON(w, http.StatusOK, updates)
}

// Stats handles GET /api/incidents/stats
func (h *IncidentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	stats, err := h.stats.Summary(r.Context(), who)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to fetch statistics")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// CategoryLister is the read-only category catalog.
type CategoryLister interface {
	List(ctx context.Context) ([]models.Category, error)
}

// CategoryHandler serves the category catalog
type CategoryHandler struct {
	svc    CategoryLister
	logger *zap.SugaredLogger
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(svc CategoryLister, logger *zap.SugaredLogger) *CategoryHandler {
	return &CategoryHandler{svc: svc, logger: logger}
}

// List handles GET /api/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.List(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to fetch categories")
		return
	}
	respondJSON(w, http.StatusOK, cats)
}
