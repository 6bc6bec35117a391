package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/ledgerline/be-workflow/internal/errors"
	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
	"github.com/ledgerline/be-workflow/internal/service"
)

// HTTPHandler exposes the workflow core over HTTP. Authentication happens
// upstream; the gateway injects the acting user into X-User-* headers.
type HTTPHandler struct {
	lifecycle *service.LifecycleService
	approvals *service.ApprovalService
	audit     *service.AuditService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(lifecycle *service.LifecycleService, approvals *service.ApprovalService, audit *service.AuditService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		lifecycle: lifecycle,
		approvals: approvals,
		audit:     audit,
		log:       log,
	}
}

func actorFromRequest(r *http.Request) repository.Actor {
	return repository.Actor{
		ID:   r.Header.Get("X-User-ID"),
		Name: r.Header.Get("X-User-Name"),
		Role: r.Header.Get("X-User-Role"),
	}
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response body")
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	h.respondJSON(w, apperrors.HTTPStatus(err), map[string]string{
		"code":  apperrors.Code(err),
		"error": err.Error(),
	})
}

// TransitionDocument handles POST /api/v1/documents/transition.
func (h *HTTPHandler) TransitionDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DocumentID string `json:"document_id"`
		NewStatus  string `json:"new_status"`
		Notes      string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.lifecycle.Transition(r.Context(), req.DocumentID,
		repository.DocumentStatus(req.NewStatus), actorFromRequest(r), req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"previous_status": string(result.PreviousStatus),
		"new_status":      string(result.NewStatus),
	})
}

// CreateApproval handles POST /api/v1/approvals.
func (h *HTTPHandler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApprovalType string                 `json:"approval_type"`
		EntityType   string                 `json:"entity_type"`
		EntityID     string                 `json:"entity_id"`
		Reason       string                 `json:"reason"`
		Payload      map[string]interface{} `json:"payload"`
		Priority     string                 `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	actor := actorFromRequest(r)
	created, err := h.approvals.Create(r.Context(), &service.CreateApprovalRequest{
		ApprovalType: repository.ApprovalType(req.ApprovalType),
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		RequestedBy:  actor.ID,
		Reason:       req.Reason,
		Payload:      req.Payload,
		Priority:     req.Priority,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, created)
}

// DecideApproval handles POST /api/v1/approvals/decide.
func (h *HTTPHandler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RequestID string `json:"request_id"`
		Decision  string `json:"decision"`
		Notes     string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	decided, err := h.approvals.Decide(r.Context(), req.RequestID,
		service.Decision(req.Decision), actorFromRequest(r), req.Notes)
	if err != nil && decided == nil {
		h.respondError(w, err)
		return
	}

	// An approved-but-failed execution returns the decided request alongside
	// the error; report both so the caller can schedule a retry.
	if err != nil {
		h.respondJSON(w, apperrors.HTTPStatus(err), map[string]interface{}{
			"request": decided,
			"code":    apperrors.Code(err),
			"error":   err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, decided)
}

// GetApproval handles GET /api/v1/approvals/get?id=...
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	req, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, req)
}

// ListApprovals handles GET /api/v1/approvals.
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	requests, err := h.approvals.ListPending(r.Context(), entityType, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// SearchAudit handles GET /api/v1/audit/search.
func (h *HTTPHandler) SearchAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := repository.AuditFilter{
		EventType:     q.Get("event_type"),
		EventCategory: repository.EventCategory(q.Get("category")),
		Severity:      repository.Severity(q.Get("severity")),
		UserID:        q.Get("user_id"),
		EntityType:    q.Get("entity_type"),
		EntityID:      q.Get("entity_id"),
	}

	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	entries, err := h.audit.Search(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// AuditStats handles GET /api/v1/audit/stats?days=N.
func (h *HTTPHandler) AuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	stats, err := h.audit.Stats(r.Context(), days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}
