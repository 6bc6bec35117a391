package service

import (
	"context"
	"encoding/json"

	"github.com/ledgerline/be-workflow/internal/errors"
	"github.com/ledgerline/be-workflow/internal/repository"
)

// ActionExecutor performs the real side effect of an approved gated action.
// Implementations must be idempotent so a failed execution can be retried.
type ActionExecutor interface {
	Execute(ctx context.Context, entityType, entityID string, payload map[string]interface{}) error
}

// EntityStore applies uniform gated mutations to domain entities.
type EntityStore interface {
	SoftDelete(ctx context.Context, entityType, entityID string) error
	SetQuantity(ctx context.Context, entityType, entityID string, quantity int64) error
}

// DocumentVoider forces a document into a terminal status outside the direct
// transition path.
type DocumentVoider interface {
	SetStatusWithReason(ctx context.Context, id string, status repository.DocumentStatus, reason string) error
}

// ExecutorRegistry maps approval types to executors. Resolved once at startup;
// types without a registered executor are decision-only.
type ExecutorRegistry struct {
	executors map[repository.ApprovalType]ActionExecutor
}

// NewExecutorRegistry creates an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[repository.ApprovalType]ActionExecutor)}
}

// Register binds an executor to an approval type, replacing any previous one.
func (r *ExecutorRegistry) Register(t repository.ApprovalType, e ActionExecutor) {
	r.executors[t] = e
}

// Resolve returns the executor for an approval type, or nil.
func (r *ExecutorRegistry) Resolve(t repository.ApprovalType) ActionExecutor {
	return r.executors[t]
}

// NewDefaultRegistry wires the executors for the gated actions this service
// implements. PriceChange, LargeDiscount, Refund, DataExport and BulkOperation
// stay decision-only until their executors exist.
func NewDefaultRegistry(entities EntityStore, documents DocumentVoider) *ExecutorRegistry {
	r := NewExecutorRegistry()
	r.Register(repository.ApprovalDeletion, &DeletionExecutor{entities: entities, documents: documents})
	r.Register(repository.ApprovalInvoiceVoid, &InvoiceVoidExecutor{documents: documents})
	r.Register(repository.ApprovalQuantityCorrection, &QuantityCorrectionExecutor{entities: entities})
	return r
}

// ── Deletion ──────────────────────────────────────────────────────────────────

// DeletionExecutor soft-deletes the referenced entity. Workflow documents are
// not flagged; they move to the cancelled terminal status so their lifecycle
// history stays intact.
type DeletionExecutor struct {
	entities  EntityStore
	documents DocumentVoider
}

func (e *DeletionExecutor) Execute(ctx context.Context, entityType, entityID string, payload map[string]interface{}) error {
	if entityType == "document" || entityType == "invoice" {
		reason := payloadString(payload, "reason")
		if reason == "" {
			reason = "deleted via approved request"
		}
		return e.documents.SetStatusWithReason(ctx, entityID, repository.StatusCancelled, reason)
	}
	return e.entities.SoftDelete(ctx, entityType, entityID)
}

// ── Invoice void ──────────────────────────────────────────────────────────────

// InvoiceVoidExecutor cancels an invoice and records the void reason.
type InvoiceVoidExecutor struct {
	documents DocumentVoider
}

func (e *InvoiceVoidExecutor) Execute(ctx context.Context, entityType, entityID string, payload map[string]interface{}) error {
	reason := payloadString(payload, "reason")
	if reason == "" {
		return errors.InvalidInput("payload.reason", "void reason is required")
	}
	return e.documents.SetStatusWithReason(ctx, entityID, repository.StatusCancelled, reason)
}

// ── Quantity correction ───────────────────────────────────────────────────────

// QuantityCorrectionExecutor overwrites the stored quantity of an entity with
// payload.new_quantity.
type QuantityCorrectionExecutor struct {
	entities EntityStore
}

func (e *QuantityCorrectionExecutor) Execute(ctx context.Context, entityType, entityID string, payload map[string]interface{}) error {
	qty, ok := payloadInt(payload, "new_quantity")
	if !ok {
		return errors.InvalidInput("payload.new_quantity", "new quantity is required")
	}
	return e.entities.SetQuantity(ctx, entityType, entityID, qty)
}

// ── payload helpers ───────────────────────────────────────────────────────────

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

// payloadInt extracts an integer field, tolerating the numeric types JSON
// decoding produces.
func payloadInt(payload map[string]interface{}, key string) (int64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
