package repository

import "time"

// ── Document lifecycle ────────────────────────────────────────────────────────

// DocumentStatus is the lifecycle status of a workflow-tracked document.
type DocumentStatus string

const (
	StatusDraft              DocumentStatus = "draft"
	StatusWaiting            DocumentStatus = "waiting"
	StatusPendingAudit       DocumentStatus = "pending_audit"
	StatusPendingPreparation DocumentStatus = "pending_preparation"
	StatusCompleted          DocumentStatus = "completed"
	StatusCancelled          DocumentStatus = "cancelled"
	StatusVoided             DocumentStatus = "voided"
)

// Valid reports whether s is a member of the status enum.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusPendingAudit, StatusPendingPreparation,
		StatusCompleted, StatusCancelled, StatusVoided:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusVoided:
		return true
	}
	return false
}

// Document is a workflow-tracked business document (e.g., an invoice).
// Rows are never physically deleted; terminal statuses keep the row.
type Document struct {
	ID          string
	Number      string
	Status      DocumentStatus
	CreatedBy   string
	Supervisor  *string
	VoidReason  *string
	RemindAt    *time.Time
	RemindCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ── Approval requests ─────────────────────────────────────────────────────────

// ApprovalType identifies the gated action a request authorizes.
type ApprovalType string

const (
	ApprovalDeletion           ApprovalType = "deletion"
	ApprovalInvoiceVoid        ApprovalType = "invoice_void"
	ApprovalQuantityCorrection ApprovalType = "quantity_correction"
	ApprovalPriceChange        ApprovalType = "price_change"
	ApprovalLargeDiscount      ApprovalType = "large_discount"
	ApprovalRefund             ApprovalType = "refund"
	ApprovalDataExport         ApprovalType = "data_export"
	ApprovalBulkOperation      ApprovalType = "bulk_operation"
)

// Valid reports whether t is a member of the approval type enum.
func (t ApprovalType) Valid() bool {
	switch t {
	case ApprovalDeletion, ApprovalInvoiceVoid, ApprovalQuantityCorrection,
		ApprovalPriceChange, ApprovalLargeDiscount, ApprovalRefund,
		ApprovalDataExport, ApprovalBulkOperation:
		return true
	}
	return false
}

// Critical reports whether approvals of this type are hard to reverse and
// therefore audited at critical severity.
func (t ApprovalType) Critical() bool {
	switch t {
	case ApprovalDeletion, ApprovalInvoiceVoid, ApprovalQuantityCorrection:
		return true
	}
	return false
}

// RequestStatus is the state of an approval request. Pending is the only
// non-terminal state.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// ExecutionStatus tracks the downstream side effect of an approved request
// separately from the decision itself.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionSkipped   ExecutionStatus = "skipped"
)

// ApprovalRequest gates a sensitive mutation behind a second authorized actor.
// Requests are permanent audit artifacts and are never deleted.
type ApprovalRequest struct {
	ID              string
	RequestNumber   string
	ApprovalType    ApprovalType
	EntityType      string
	EntityID        string
	RequestedBy     string
	Reason          string
	Payload         map[string]interface{}
	Status          RequestStatus
	ExecutionStatus ExecutionStatus
	Priority        string
	ExpiresAt       time.Time
	DecidedBy       *string
	DecisionReason  *string
	DecidedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ── Audit log ─────────────────────────────────────────────────────────────────

// EventCategory classifies audit entries.
type EventCategory string

const (
	CategoryAuth      EventCategory = "auth"
	CategoryInventory EventCategory = "inventory"
	CategoryInvoice   EventCategory = "invoice"
	CategoryWarranty  EventCategory = "warranty"
	CategorySensitive EventCategory = "sensitive"
	CategoryApproval  EventCategory = "approval"
	CategorySystem    EventCategory = "system"
	CategorySecurity  EventCategory = "security"
)

// Severity of an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AuditEntry is one immutable record in the audit log. The table carries a
// delete-prevention trigger; Append is the only mutation the repository exposes.
type AuditEntry struct {
	ID            string
	EventType     string
	EventCategory EventCategory
	Severity      Severity
	UserID        string
	UserName      string
	UserRole      string
	EntityType    *string
	EntityID      *string
	EntityName    *string
	OldValue      map[string]interface{}
	NewValue      map[string]interface{}
	Changes       map[string]interface{}
	IPAddress     *string
	RequestID     *string
	SessionID     *string
	CreatedAt     time.Time
}

// AuditFilter narrows audit searches. Zero-valued fields are ignored.
type AuditFilter struct {
	EventType     string
	EventCategory EventCategory
	Severity      Severity
	UserID        string
	EntityType    string
	EntityID      string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// AuditStats aggregates audit activity over a trailing window.
type AuditStats struct {
	TotalEvents int64
	ByCategory  map[string]int64
	BySeverity  map[string]int64
}

// Actor identifies who performed an operation. Role is the value authorization
// gates check against.
type Actor struct {
	ID   string
	Name string
	Role string
}
