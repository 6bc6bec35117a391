package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-workflow/internal/database"
	"github.com/ledgerline/be-workflow/internal/errors"
)

// AuditRepository appends and reads immutable audit log entries. The table has
// a delete-prevention trigger so Append is the only mutation exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditInsert = `
	INSERT INTO audit_logs
	    (event_type, event_category, severity,
	     user_id, user_name, user_role,
	     entity_type, entity_id, entity_name,
	     old_value, new_value, changes,
	     ip_address, request_id, session_id)
	VALUES ($1, $2::event_category, $3::severity,
	        $4, $5, $6,
	        $7, $8, $9,
	        $10, $11, $12,
	        $13, $14, $15)
	RETURNING id, created_at
`

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	args, err := auditInsertArgs(entry)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, auditInsert, args...).Scan(&entry.ID, &entry.CreatedAt)
}

// AppendInTx inserts one audit entry inside a caller-owned transaction. Used by
// the document repository so a status change and its audit record commit as one
// unit.
func (r *AuditRepository) AppendInTx(ctx context.Context, tx pgx.Tx, entry *AuditEntry) error {
	args, err := auditInsertArgs(entry)
	if err != nil {
		return err
	}
	return tx.QueryRow(ctx, auditInsert, args...).Scan(&entry.ID, &entry.CreatedAt)
}

func auditInsertArgs(entry *AuditEntry) ([]any, error) {
	oldJSON, err := marshalMap(entry.OldValue)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit old_value")
	}
	newJSON, err := marshalMap(entry.NewValue)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit new_value")
	}
	changesJSON, err := marshalMap(entry.Changes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit changes")
	}

	return []any{
		entry.EventType,
		entry.EventCategory,
		entry.Severity,
		entry.UserID,
		entry.UserName,
		entry.UserRole,
		entry.EntityType,
		entry.EntityID,
		entry.EntityName,
		oldJSON,
		newJSON,
		changesJSON,
		entry.IPAddress,
		entry.RequestID,
		entry.SessionID,
	}, nil
}

func marshalMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Search returns entries matching the filter, newest first.
func (r *AuditRepository) Search(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	query := `
		SELECT id, event_type, event_category, severity,
		       user_id, user_name, user_role,
		       entity_type, entity_id, entity_name,
		       old_value, new_value, changes,
		       ip_address, request_id, session_id,
		       created_at
		FROM audit_logs
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argCount)
		args = append(args, filter.EventType)
		argCount++
	}
	if filter.EventCategory != "" {
		query += fmt.Sprintf(" AND event_category = $%d::event_category", argCount)
		args = append(args, filter.EventCategory)
		argCount++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d::severity", argCount)
		args = append(args, filter.Severity)
		argCount++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, filter.UserID)
		argCount++
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, filter.EntityType)
		argCount++
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, filter.EntityID)
		argCount++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.From)
		argCount++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.To)
		argCount++
	}

	limit := filter.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to search audit logs")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Stats aggregates event counts by category and severity over the last N days.
func (r *AuditRepository) Stats(ctx context.Context, days int) (*AuditStats, error) {
	if days < 1 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	stats := &AuditStats{
		ByCategory: make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	catQuery := `
		SELECT event_category, COUNT(*)
		FROM audit_logs
		WHERE created_at >= $1
		GROUP BY event_category
	`
	rows, err := r.db.Query(ctx, catQuery, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to aggregate audit categories")
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit category count")
		}
		stats.ByCategory[category] = count
		stats.TotalEvents += count
	}

	sevQuery := `
		SELECT severity, COUNT(*)
		FROM audit_logs
		WHERE created_at >= $1
		GROUP BY severity
	`
	sevRows, err := r.db.Query(ctx, sevQuery, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to aggregate audit severities")
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var severity string
		var count int64
		if err := sevRows.Scan(&severity, &count); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit severity count")
		}
		stats.BySeverity[severity] = count
	}

	return stats, nil
}

// CountRecentEvents counts events by one user within a trailing window,
// optionally restricted to a single event type.
func (r *AuditRepository) CountRecentEvents(ctx context.Context, userID, eventType string, window time.Duration) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE user_id = $1 AND created_at >= $2
	`
	args := []interface{}{userID, time.Now().Add(-window)}
	if eventType != "" {
		query += " AND event_type = $3"
		args = append(args, eventType)
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count recent events")
	}
	return count, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *AuditRepository) scanEntry(sc auditScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var oldJSON, newJSON, changesJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.EventType,
		&entry.EventCategory,
		&entry.Severity,
		&entry.UserID,
		&entry.UserName,
		&entry.UserRole,
		&entry.EntityType,
		&entry.EntityID,
		&entry.EntityName,
		&oldJSON,
		&newJSON,
		&changesJSON,
		&entry.IPAddress,
		&entry.RequestID,
		&entry.SessionID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if entry.OldValue, err = unmarshalMap(oldJSON); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit old_value")
	}
	if entry.NewValue, err = unmarshalMap(newJSON); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit new_value")
	}
	if entry.Changes, err = unmarshalMap(changesJSON); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit changes")
	}

	return entry, nil
}

func unmarshalMap(data []byte) (map[string]interface{}, error) {
	if data == nil {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
