package service

import (
	"context"

	"github.com/ledgerline/be-workflow/internal/errors"
	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
)

// DocumentStore persists workflow documents. Transition commits the status
// change and its audit entry as one unit.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*repository.Document, error)
	Transition(ctx context.Context, id string, prev, next repository.DocumentStatus, entry *repository.AuditEntry) error
}

// allowedTransitions is the static edge set of the document lifecycle. Terminal
// states have no outgoing edges here; cancellation and voiding go through the
// approval manager because they are gated actions.
var allowedTransitions = map[repository.DocumentStatus][]repository.DocumentStatus{
	repository.StatusDraft: {
		repository.StatusWaiting,
		repository.StatusPendingAudit,
		repository.StatusCompleted,
	},
	repository.StatusWaiting: {
		repository.StatusPendingAudit,
		repository.StatusPendingPreparation,
		repository.StatusCompleted,
	},
	repository.StatusPendingAudit: {
		repository.StatusPendingPreparation,
		repository.StatusCompleted,
	},
	repository.StatusPendingPreparation: {
		repository.StatusCompleted,
	},
}

// TransitionAllowed reports whether the lifecycle permits moving from prev to
// next.
func TransitionAllowed(prev, next repository.DocumentStatus) bool {
	for _, s := range allowedTransitions[prev] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionResult reports a successful status change.
type TransitionResult struct {
	PreviousStatus repository.DocumentStatus
	NewStatus      repository.DocumentStatus
}

// LifecycleService validates and applies document status transitions.
type LifecycleService struct {
	docs DocumentStore
	log  *logger.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(docs DocumentStore, log *logger.Logger) *LifecycleService {
	return &LifecycleService{docs: docs, log: log}
}

// Transition moves a document to newStatus. The stored status and the audit
// entry commit together; if the audit write fails the transition fails with it
// and the document is left unchanged.
func (s *LifecycleService) Transition(ctx context.Context, documentID string, newStatus repository.DocumentStatus, actor repository.Actor, notes string) (*TransitionResult, error) {
	if !newStatus.Valid() {
		return nil, errors.InvalidInput("status", "unknown status "+string(newStatus))
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if !TransitionAllowed(doc.Status, newStatus) {
		return nil, errors.Newf(errors.ErrCodeInvalidTransition,
			"document %s cannot move from %s to %s", doc.Number, doc.Status, newStatus)
	}

	entityType := "document"
	changes := map[string]interface{}{"notes": notes}
	entry := &repository.AuditEntry{
		EventType:     EventStatusChanged,
		EventCategory: repository.CategoryInvoice,
		Severity:      repository.SeverityInfo,
		UserID:        actor.ID,
		UserName:      actor.Name,
		UserRole:      actor.Role,
		EntityType:    &entityType,
		EntityID:      &doc.ID,
		EntityName:    &doc.Number,
		OldValue:      map[string]interface{}{"status": string(doc.Status)},
		NewValue:      map[string]interface{}{"status": string(newStatus)},
		Changes:       changes,
	}

	if err := s.docs.Transition(ctx, doc.ID, doc.Status, newStatus, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("from", string(doc.Status)).
		Str("to", string(newStatus)).
		Str("actor", actor.ID).
		Msg("Document status changed")

	return &TransitionResult{PreviousStatus: doc.Status, NewStatus: newStatus}, nil
}
