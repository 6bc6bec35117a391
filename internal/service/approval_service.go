package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/be-workflow/internal/errors"
	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
)

// ApprovalStore persists approval requests. Decide must be a compare-and-set
// on status = 'pending'.
type ApprovalStore interface {
	Create(ctx context.Context, req *repository.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	Decide(ctx context.Context, id string, status repository.RequestStatus, decidedBy, reason string) (*repository.ApprovalRequest, error)
	SetExecutionStatus(ctx context.Context, id string, status repository.ExecutionStatus) error
	ExpireOverdue(ctx context.Context, now time.Time) ([]*repository.ApprovalRequest, error)
	ListPending(ctx context.Context, entityType string, limit, offset int) ([]*repository.ApprovalRequest, error)
}

// Decision is an approve-or-reject verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Roles allowed to decide approval requests.
var decisionRoles = map[string]bool{
	"owner": true,
	"admin": true,
}

// CreateApprovalRequest carries the inputs for a new gated-action request.
type CreateApprovalRequest struct {
	ApprovalType repository.ApprovalType
	EntityType   string
	EntityID     string
	RequestedBy  string
	Reason       string
	Payload      map[string]interface{}
	Priority     string
}

// ApprovalService creates, decides, executes and expires approval requests.
type ApprovalService struct {
	store    ApprovalStore
	audit    *AuditService
	registry *ExecutorRegistry
	ttl      time.Duration
	log      *logger.Logger
}

// NewApprovalService creates a new ApprovalService. ttl bounds how long a
// request stays decidable.
func NewApprovalService(store ApprovalStore, audit *AuditService, registry *ExecutorRegistry, ttl time.Duration, log *logger.Logger) *ApprovalService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ApprovalService{
		store:    store,
		audit:    audit,
		registry: registry,
		ttl:      ttl,
		log:      log,
	}
}

// Create registers a new pending request. No validation is applied beyond
// required fields; anyone may request a gated action.
func (s *ApprovalService) Create(ctx context.Context, in *CreateApprovalRequest) (*repository.ApprovalRequest, error) {
	if !in.ApprovalType.Valid() {
		return nil, errors.InvalidInput("approval_type", "unknown approval type "+string(in.ApprovalType))
	}
	if in.EntityType == "" {
		return nil, errors.InvalidInput("entity_type", "entity type is required")
	}
	if in.EntityID == "" {
		return nil, errors.InvalidInput("entity_id", "entity id is required")
	}
	if in.RequestedBy == "" {
		return nil, errors.InvalidInput("requested_by", "requester is required")
	}
	if in.Reason == "" {
		return nil, errors.InvalidInput("reason", "reason is required")
	}

	priority := in.Priority
	if priority == "" {
		priority = "normal"
	}

	now := time.Now()
	req := &repository.ApprovalRequest{
		RequestNumber:   newRequestNumber(now),
		ApprovalType:    in.ApprovalType,
		EntityType:      in.EntityType,
		EntityID:        in.EntityID,
		RequestedBy:     in.RequestedBy,
		Reason:          in.Reason,
		Payload:         in.Payload,
		Status:          repository.RequestPending,
		ExecutionStatus: repository.ExecutionPending,
		Priority:        priority,
		ExpiresAt:       now.Add(s.ttl),
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval request")
	}

	s.audit.LogNonFatal(ctx, s.auditEntry(req, EventApprovalRequested, in.RequestedBy, "", map[string]interface{}{
		"reason": in.Reason,
	}))

	s.log.Info().
		Str("request_number", req.RequestNumber).
		Str("approval_type", string(req.ApprovalType)).
		Str("entity_type", req.EntityType).
		Str("entity_id", req.EntityID).
		Msg("Approval request created")

	return req, nil
}

// Decide resolves a pending request. Approval invokes the registered action
// executor; execution failure never reverts the decision, it is surfaced via
// the execution status and an EXECUTION_FAILED error.
func (s *ApprovalService) Decide(ctx context.Context, requestID string, decision Decision, actor repository.Actor, notes string) (*repository.ApprovalRequest, error) {
	if !decisionRoles[actor.Role] {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"role %q may not decide approval requests", actor.Role)
	}

	var status repository.RequestStatus
	switch decision {
	case DecisionApprove:
		status = repository.RequestApproved
	case DecisionReject:
		status = repository.RequestRejected
	default:
		return nil, errors.InvalidInput("decision", "decision must be approve or reject")
	}

	req, err := s.store.Decide(ctx, requestID, status, actor.ID, notes)
	if err != nil {
		return nil, err
	}

	if status == repository.RequestRejected {
		s.audit.LogNonFatal(ctx, s.auditEntry(req, EventApprovalRejected, actor.ID, actor.Role, map[string]interface{}{
			"notes": notes,
		}))
		s.log.Info().
			Str("request_number", req.RequestNumber).
			Str("decided_by", actor.ID).
			Msg("Approval request rejected")
		return req, nil
	}

	s.audit.LogNonFatal(ctx, s.auditEntry(req, EventApprovalApproved, actor.ID, actor.Role, map[string]interface{}{
		"notes": notes,
	}))

	return s.execute(ctx, req, actor)
}

// execute runs the registered action executor for an approved request.
func (s *ApprovalService) execute(ctx context.Context, req *repository.ApprovalRequest, actor repository.Actor) (*repository.ApprovalRequest, error) {
	executor := s.registry.Resolve(req.ApprovalType)
	if executor == nil {
		s.log.Info().
			Str("request_number", req.RequestNumber).
			Str("approval_type", string(req.ApprovalType)).
			Msg("No executor registered; approval recorded without side effect")
		s.setExecutionStatus(ctx, req, repository.ExecutionSkipped)
		return req, nil
	}

	if err := executor.Execute(ctx, req.EntityType, req.EntityID, req.Payload); err != nil {
		s.setExecutionStatus(ctx, req, repository.ExecutionFailed)
		s.audit.LogNonFatal(ctx, s.auditEntry(req, EventExecutionFailed, actor.ID, actor.Role, map[string]interface{}{
			"error": err.Error(),
		}))
		s.log.Warn().Err(err).
			Str("request_number", req.RequestNumber).
			Str("approval_type", string(req.ApprovalType)).
			Msg("Approved action failed to execute; decision stands")
		return req, errors.Wrap(err, errors.ErrCodeExecutionFailed,
			"request "+req.RequestNumber+" approved but execution failed")
	}

	s.setExecutionStatus(ctx, req, repository.ExecutionSucceeded)
	s.log.Info().
		Str("request_number", req.RequestNumber).
		Str("approval_type", string(req.ApprovalType)).
		Str("decided_by", actor.ID).
		Msg("Approval request approved and executed")
	return req, nil
}

func (s *ApprovalService) setExecutionStatus(ctx context.Context, req *repository.ApprovalRequest, status repository.ExecutionStatus) {
	if err := s.store.SetExecutionStatus(ctx, req.ID, status); err != nil {
		s.log.Warn().Err(err).
			Str("request_number", req.RequestNumber).
			Str("execution_status", string(status)).
			Msg("Failed to record execution status")
		return
	}
	req.ExecutionStatus = status
}

// ExpireOverdue moves every pending request past its deadline to expired and
// returns how many were affected. Safe to call repeatedly.
func (s *ApprovalService) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for _, req := range expired {
		s.audit.LogNonFatal(ctx, s.auditEntry(req, EventApprovalExpired, "system", "system", map[string]interface{}{
			"expires_at": req.ExpiresAt,
		}))
	}

	if len(expired) > 0 {
		s.log.Info().Int("count", len(expired)).Msg("Expired overdue approval requests")
	}
	return len(expired), nil
}

// Get returns a request by id.
func (s *ApprovalService) Get(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	return s.store.GetByID(ctx, id)
}

// ListPending returns pending requests, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, entityType string, limit, offset int) ([]*repository.ApprovalRequest, error) {
	return s.store.ListPending(ctx, entityType, limit, offset)
}

// auditEntry builds the approval-category audit entry for a request event.
// The hard-to-reverse approval types are recorded at critical severity.
func (s *ApprovalService) auditEntry(req *repository.ApprovalRequest, eventType, userID, userRole string, changes map[string]interface{}) *repository.AuditEntry {
	severity := repository.SeverityInfo
	if req.ApprovalType.Critical() {
		severity = repository.SeverityCritical
	}

	entityType := req.EntityType
	entityID := req.EntityID
	return &repository.AuditEntry{
		EventType:     eventType,
		EventCategory: repository.CategoryApproval,
		Severity:      severity,
		UserID:        userID,
		UserName:      userID,
		UserRole:      userRole,
		EntityType:    &entityType,
		EntityID:      &entityID,
		EntityName:    &req.RequestNumber,
		Changes:       changes,
		NewValue: map[string]interface{}{
			"status":        string(req.Status),
			"approval_type": string(req.ApprovalType),
		},
	}
}

// newRequestNumber builds a human-readable request number, e.g.
// APR-20260901-7F3A2C1B.
func newRequestNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "APR-" + now.Format("20060102") + "-" + suffix
}
