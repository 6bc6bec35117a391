package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-workflow/internal/database"
	"github.com/ledgerline/be-workflow/internal/errors"
)

// DocumentRepository manages workflow document rows. Status moves only through
// Transition, which commits the status change and its audit record together.
type DocumentRepository struct {
	db    *database.DB
	audit *AuditRepository
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB, audit *AuditRepository) *DocumentRepository {
	return &DocumentRepository{db: db, audit: audit}
}

const documentColumns = `
	id, number, status, created_by, supervisor,
	void_reason, remind_at, remind_count,
	created_at, updated_at
`

// GetByID retrieves a document by its primary key.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := r.scanDocument(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get document")
	}
	return doc, nil
}

// Transition moves a document from prev to next and appends the audit entry in
// the same transaction. The update is conditional on the current status, so a
// concurrent transition invalidates this one instead of racing it.
func (r *DocumentRepository) Transition(ctx context.Context, id string, prev, next DocumentStatus, entry *AuditEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE documents
			SET status     = $3::document_status,
			    updated_at = NOW()
			WHERE id = $1 AND status = $2::document_status
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, query, id, prev, next).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Newf(errors.ErrCodeConflict,
				"document %s is no longer in status %s", id, prev)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update document status")
		}

		if err := r.audit.AppendInTx(ctx, tx, entry); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to append transition audit entry")
		}
		return nil
	})
}

// SetStatusWithReason forces a document into a status outside the direct
// transition path, recording the reason. Used by approval executors for void
// and deletion, which bypass the state machine by design.
func (r *DocumentRepository) SetStatusWithReason(ctx context.Context, id string, status DocumentStatus, reason string) error {
	query := `
		UPDATE documents
		SET status      = $2::document_status,
		    void_reason = $3,
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, reason).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("document", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to set document status")
	}
	return nil
}

// ListIdleBefore returns documents sitting in an idle status whose reminder is
// due at or before the given time.
func (r *DocumentRepository) ListIdleBefore(ctx context.Context, now time.Time, limit int) ([]*Document, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status IN ('draft', 'waiting')
		  AND remind_at IS NOT NULL
		  AND remind_at <= $1
		ORDER BY remind_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list idle documents")
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := r.scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ScheduleReminder increments the remind counter and reschedules the next
// reminder.
func (r *DocumentRepository) ScheduleReminder(ctx context.Context, id string, next time.Time) error {
	query := `
		UPDATE documents
		SET remind_count = remind_count + 1,
		    remind_at    = $2,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, next).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("document", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to schedule reminder")
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type documentScanner interface {
	Scan(dest ...any) error
}

func (r *DocumentRepository) scanDocument(sc documentScanner) (*Document, error) {
	doc := &Document{}
	err := sc.Scan(
		&doc.ID,
		&doc.Number,
		&doc.Status,
		&doc.CreatedBy,
		&doc.Supervisor,
		&doc.VoidReason,
		&doc.RemindAt,
		&doc.RemindCount,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
