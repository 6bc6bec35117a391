package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-workflow/internal/database"
	"github.com/ledgerline/be-workflow/internal/errors"
)

// ApprovalRepository manages approval request rows. Decisions and expiry use
// conditional updates on status = 'pending' so two concurrent writers can never
// both move the same request out of its pending state.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a new pending request.
func (r *ApprovalRepository) Create(ctx context.Context, req *ApprovalRequest) error {
	payloadJSON, err := marshalMap(req.Payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request payload")
	}

	query := `
		INSERT INTO approvals
		    (request_number, type, entity_type, entity_id,
		     requested_by, reason, payload,
		     status, execution_status, priority, expires_at)
		VALUES ($1, $2::approval_type, $3, $4,
		        $5, $6, $7,
		        $8::approval_status, $9::execution_status, $10, $11)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		req.RequestNumber,
		req.ApprovalType,
		req.EntityType,
		req.EntityID,
		req.RequestedBy,
		req.Reason,
		payloadJSON,
		req.Status,
		req.ExecutionStatus,
		req.Priority,
		req.ExpiresAt,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

// GetByID retrieves a request by its primary key.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	req, err := r.scanRequest(r.db.QueryRow(ctx, selectRequest+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_request", id)
	}
	return req, err
}

// Decide moves a pending request to a terminal decision state. The update is a
// compare-and-set on status = 'pending'; when no row matches, a follow-up read
// distinguishes an unknown id from an already-terminal request.
func (r *ApprovalRepository) Decide(ctx context.Context, id string, status RequestStatus, decidedBy, reason string) (*ApprovalRequest, error) {
	query := `
		UPDATE approvals
		SET status          = $2::approval_status,
		    decided_by      = $3,
		    decision_reason = $4,
		    decided_at      = NOW(),
		    updated_at      = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id, status, decidedBy, reason))
	if err == pgx.ErrNoRows {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.Newf(errors.ErrCodeRequestNotPending,
			"request %s is not pending (status: %s)", existing.RequestNumber, existing.Status)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decide approval request")
	}
	return req, nil
}

// SetExecutionStatus records the outcome of the downstream action for an
// approved request.
func (r *ApprovalRepository) SetExecutionStatus(ctx context.Context, id string, status ExecutionStatus) error {
	query := `
		UPDATE approvals
		SET execution_status = $2::execution_status,
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_request", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to set execution status")
	}
	return nil
}

// ExpireOverdue marks every pending request past its deadline as expired and
// returns the affected rows. Running it again with no new data matches zero
// rows, so the operation is idempotent.
func (r *ApprovalRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]*ApprovalRequest, error) {
	query := `
		UPDATE approvals
		SET status     = 'expired'::approval_status,
		    updated_at = NOW()
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING ` + requestColumns

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to expire overdue requests")
	}
	defer rows.Close()

	var expired []*ApprovalRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan expired request")
		}
		expired = append(expired, req)
	}
	return expired, nil
}

// ListPending returns pending requests, oldest first. An empty entityType
// matches all entity types.
func (r *ApprovalRepository) ListPending(ctx context.Context, entityType string, limit, offset int) ([]*ApprovalRequest, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := selectRequest + ` WHERE status = 'pending'`
	args := []interface{}{}
	if entityType != "" {
		query += ` AND entity_type = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
		args = append(args, entityType, limit, offset)
	} else {
		query += ` ORDER BY created_at ASC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending requests")
	}
	defer rows.Close()

	requests := make([]*ApprovalRequest, 0)
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const requestColumns = `
	id, request_number, type, entity_type, entity_id,
	requested_by, reason, payload,
	status, execution_status, priority, expires_at,
	decided_by, decision_reason, decided_at,
	created_at, updated_at
`

const selectRequest = `SELECT ` + requestColumns + ` FROM approvals`

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanRequest(sc requestScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	var payloadJSON []byte

	err := sc.Scan(
		&req.ID,
		&req.RequestNumber,
		&req.ApprovalType,
		&req.EntityType,
		&req.EntityID,
		&req.RequestedBy,
		&req.Reason,
		&payloadJSON,
		&req.Status,
		&req.ExecutionStatus,
		&req.Priority,
		&req.ExpiresAt,
		&req.DecidedBy,
		&req.DecisionReason,
		&req.DecidedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal request payload")
		}
	}

	return req, nil
}
