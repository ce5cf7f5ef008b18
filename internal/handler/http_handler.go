package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/identra/be-hr-workflows/internal/common/auth"
	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/common/logger"
	"github.com/identra/be-hr-workflows/internal/common/middleware"
	"github.com/identra/be-hr-workflows/internal/service"
)

const maxBodyBytes = 1 << 20

// HealthFunc reports whether a backing dependency is reachable.
type HealthFunc func(ctx context.Context) error

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	workflows *service.WorkflowService
	templates *service.TemplateService
	health    HealthFunc
	log       zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler. health may be nil.
func NewHTTPHandler(workflows *service.WorkflowService, templates *service.TemplateService, health HealthFunc, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		workflows: workflows,
		templates: templates,
		health:    health,
		log:       log.With().Str("handler", "http").Logger(),
	}
}

// Routes registers every endpoint on a new mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/workflows", h.CreateTemplate)
	mux.HandleFunc("GET /api/v1/workflows", h.ListTemplates)
	mux.HandleFunc("GET /api/v1/workflows/{id}", h.GetTemplate)
	mux.HandleFunc("POST /api/v1/workflows/{id}/activation", h.SetTemplateActive)
	mux.HandleFunc("POST /api/v1/workflows/{id}/steps", h.AddStep)
	mux.HandleFunc("PUT /api/v1/workflows/{id}/steps", h.ReorderSteps)

	mux.HandleFunc("POST /api/v1/requests", h.InitiateWorkflow)
	mux.HandleFunc("GET /api/v1/requests/{id}", h.GetRequestStatus)
	mux.HandleFunc("GET /api/v1/requests/{id}/history", h.GetRequestHistory)
	mux.HandleFunc("POST /api/v1/requests/{id}/cancel", h.CancelRequest)
	mux.HandleFunc("POST /api/v1/instances/{id}/decision", h.ProcessDecision)
	mux.HandleFunc("GET /api/v1/approvals/pending", h.ListPendingApprovals)

	mux.HandleFunc("GET /health", h.Health)
	return mux
}

// ── Templates ─────────────────────────────────────────────────────────────────

// CreateTemplate handles create template HTTP requests
func (h *HTTPHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTemplateInput
	if !h.decode(w, r, &req) {
		return
	}

	tmpl, err := h.templates.CreateTemplate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tmpl)
}

// GetTemplate handles get template HTTP requests
func (h *HTTPHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflow_id")
	if !ok {
		return
	}

	tmpl, err := h.templates.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tmpl)
}

// ListTemplates lists workflow types. ?code= looks a single template up.
func (h *HTTPHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if code := q.Get("code"); code != "" {
		tmpl, err := h.templates.GetTemplateByCode(r.Context(), code)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, tmpl)
		return
	}

	activeOnly := false
	if raw := q.Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, errors.InvalidInput("active", "must be a boolean"))
			return
		}
		activeOnly = v
	}

	types, err := h.templates.ListTemplates(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"workflows": types, "total": len(types)})
}

type activationRequest struct {
	Active *bool `json:"active"`
}

// SetTemplateActive handles template activation HTTP requests
func (h *HTTPHandler) SetTemplateActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflow_id")
	if !ok {
		return
	}
	var req activationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		h.writeError(w, r, errors.InvalidInput("active", "is required"))
		return
	}

	wt, err := h.templates.SetTemplateActive(r.Context(), id, *req.Active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, wt)
}

// AddStep handles add step HTTP requests
func (h *HTTPHandler) AddStep(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflow_id")
	if !ok {
		return
	}
	var req service.StepInput
	if !h.decode(w, r, &req) {
		return
	}

	tmpl, err := h.templates.AddStep(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tmpl)
}

type reorderRequest struct {
	Steps []service.StepInput `json:"steps"`
}

// ReorderSteps handles step replacement HTTP requests
func (h *HTTPHandler) ReorderSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflow_id")
	if !ok {
		return
	}
	var req reorderRequest
	if !h.decode(w, r, &req) {
		return
	}

	tmpl, err := h.templates.ReorderSteps(r.Context(), id, req.Steps)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tmpl)
}

// ── Requests ──────────────────────────────────────────────────────────────────

// InitiateWorkflow starts a request. requestor_id defaults to the caller;
// only peer services may name someone else.
func (h *HTTPHandler) InitiateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req service.InitiateInput
	if !h.decode(w, r, &req) {
		return
	}
	requestorID, err := auth.ActingFor(r.Context(), req.RequestorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if caller := auth.EmployeeID(r.Context()); requestorID != caller {
		h.log.Info().
			Int64("caller_id", caller).
			Int64("requestor_id", requestorID).
			Msg("Initiating workflow on behalf of employee")
	}
	req.RequestorID = requestorID

	view, err := h.workflows.Initiate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

type decisionRequest struct {
	Action  string `json:"action"`
	Remarks string `json:"remarks"`
}

// ProcessDecision records the caller's decision on a step instance.
func (h *HTTPHandler) ProcessDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "instance_id")
	if !ok {
		return
	}
	caller, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req decisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.workflows.Decide(r.Context(), service.DecisionInput{
		InstanceID: id,
		ActorID:    caller.EmployeeID,
		Action:     req.Action,
		Remarks:    req.Remarks,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type cancelRequest struct {
	Remarks string `json:"remarks"`
}

// CancelRequest withdraws the caller's own pending request.
func (h *HTTPHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "request_id")
	if !ok {
		return
	}
	caller, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req cancelRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	view, err := h.workflows.Cancel(r.Context(), service.CancelInput{
		RequestID: id,
		ActorID:   caller.EmployeeID,
		Remarks:   req.Remarks,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// GetRequestStatus handles get request HTTP requests
func (h *HTTPHandler) GetRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "request_id")
	if !ok {
		return
	}

	view, err := h.workflows.GetRequestStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// GetRequestHistory returns the audit trail of a request.
func (h *HTTPHandler) GetRequestHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "request_id")
	if !ok {
		return
	}

	entries, err := h.workflows.GetHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "history": entries})
}

// ListPendingApprovals returns the caller's inbox.
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pending, err := h.workflows.ListPendingForApprover(r.Context(), caller.EmployeeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"approvals": pending, "total": len(pending)})
}

// Health reports service liveness and store reachability.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (h *HTTPHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !stderrors.Is(err, io.EOF) {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}

func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request, field string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, errors.InvalidInput(field, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Msg("Request failed")
	}
	h.writeJSON(w, status, errorBody{Error: payload(err)})
}
