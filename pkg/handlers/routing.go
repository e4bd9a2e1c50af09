package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/services"
)

// RoutingHandler handles the escalation queue HTTP requests.
type RoutingHandler struct {
	escalationService services.EscalationService
	logger            *zap.Logger
}

// NewRoutingHandler creates a new routing handler.
func NewRoutingHandler(escalationService services.EscalationService, logger *zap.Logger) *RoutingHandler {
	return &RoutingHandler{
		escalationService: escalationService,
		logger:            logger,
	}
}

// RegisterRoutes registers the routing handler's routes on the given mux.
func (h *RoutingHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/routing"

	mux.HandleFunc("POST "+base+"/escalate", h.Escalate)
	mux.HandleFunc("GET "+base+"/escalated", h.List)
	mux.HandleFunc("GET "+base+"/escalated/{id}", h.Get)
	mux.HandleFunc("PATCH "+base+"/escalated/{id}", h.Update)
	mux.HandleFunc("GET "+base+"/analytics", h.Analytics)
}

// Escalate handles POST /api/routing/escalate
func (h *RoutingHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req services.EscalateRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	q, err := h.escalationService.Escalate(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "", "escalate_failed", "Failed to escalate question")
		return
	}
	writeResponse(w, h.logger, http.StatusCreated, q)
}

// List handles GET /api/routing/escalated?status=&limit=&offset=
func (h *RoutingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, h.logger, "limit", services.DefaultEscalationListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, h.logger, "offset", 0)
	if !ok {
		return
	}

	var status *models.EscalationStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.EscalationStatus(s)
		status = &st
	}

	page, err := h.escalationService.List(r.Context(), status, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "", "list_escalations_failed", "Failed to list escalated questions")
		return
	}
	writeResponse(w, h.logger, http.StatusOK, page)
}

// Get handles GET /api/routing/escalated/{id}
func (h *RoutingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseEscalationID(w, r, h.logger)
	if !ok {
		return
	}

	q, err := h.escalationService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "Escalated question not found", "get_escalation_failed", "Failed to retrieve escalated question")
		return
	}
	writeResponse(w, h.logger, http.StatusOK, q)
}

// Update handles PATCH /api/routing/escalated/{id}
func (h *RoutingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseEscalationID(w, r, h.logger)
	if !ok {
		return
	}

	var upd models.EscalationUpdate
	if !decodeBody(w, r, h.logger, &upd) {
		return
	}

	q, err := h.escalationService.Update(r.Context(), id, upd)
	if err != nil {
		writeServiceError(w, h.logger, err, "Escalated question not found", "update_escalation_failed", "Failed to update escalated question")
		return
	}
	writeResponse(w, h.logger, http.StatusOK, q)
}

// Analytics handles GET /api/routing/analytics
func (h *RoutingHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.escalationService.Analytics(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "", "analytics_failed", "Failed to compute escalation analytics")
		return
	}
	writeResponse(w, h.logger, http.StatusOK, a)
}
