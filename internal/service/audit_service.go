package service

import (
	"context"
	"time"

	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
)

// AuditStore persists and queries audit log entries.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	Search(ctx context.Context, filter repository.AuditFilter) ([]*repository.AuditEntry, error)
	Stats(ctx context.Context, days int) (*repository.AuditStats, error)
	CountRecentEvents(ctx context.Context, userID, eventType string, window time.Duration) (int64, error)
}

// UserNotifier delivers a notification to a single user. Implementations are
// fire-and-forget; delivery failure never reaches the caller.
type UserNotifier interface {
	NotifyUser(userID, title, body, kind string, metadata map[string]interface{})
}

// Audit event types emitted by this service and its callers.
const (
	EventStatusChanged       = "status_changed"
	EventApprovalRequested   = "approval_requested"
	EventApprovalApproved    = "approval_approved"
	EventApprovalRejected    = "approval_rejected"
	EventApprovalExpired     = "approval_expired"
	EventExecutionFailed     = "approval_execution_failed"
	EventSuspiciousActivity  = "suspicious_activity"
	EventDocumentReminder    = "document_reminder_sent"
	EventSensitiveDataAccess = "sensitive_data_access"
)

// criticalEvents fan out an immediate owner notification when logged.
var criticalEvents = map[string]bool{
	EventApprovalRequested:  true,
	EventExecutionFailed:    true,
	EventSuspiciousActivity: true,
}

// AuditService is the durable, append-only record of business events. Entries
// are written synchronously before the caller's operation is reported as
// successful.
type AuditService struct {
	store    AuditStore
	notifier UserNotifier
	owners   []string
	log      *logger.Logger

	suspiciousThreshold int64
	suspiciousWindow    time.Duration
}

// NewAuditService creates a new AuditService. owners receive critical-event
// notifications.
func NewAuditService(store AuditStore, notifier UserNotifier, owners []string, threshold int, window time.Duration, log *logger.Logger) *AuditService {
	if threshold < 1 {
		threshold = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &AuditService{
		store:               store,
		notifier:            notifier,
		owners:              owners,
		log:                 log,
		suspiciousThreshold: int64(threshold),
		suspiciousWindow:    window,
	}
}

// Log appends one entry synchronously. Critical event types additionally fan
// out an owner notification; notification failure never fails the write.
func (s *AuditService) Log(ctx context.Context, entry *repository.AuditEntry) error {
	if entry.Severity == "" {
		entry.Severity = repository.SeverityInfo
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return err
	}

	if criticalEvents[entry.EventType] && s.notifier != nil {
		for _, owner := range s.owners {
			s.notifier.NotifyUser(owner,
				"Critical event: "+entry.EventType,
				entry.EventType+" by "+entry.UserName,
				"critical_event",
				map[string]interface{}{
					"event_type": entry.EventType,
					"category":   string(entry.EventCategory),
					"severity":   string(entry.Severity),
					"user_id":    entry.UserID,
				})
		}
	}

	return nil
}

// LogNonFatal appends one entry, logging a warning instead of returning the
// error. Used where the primary operation must not unwind on audit failure.
func (s *AuditService) LogNonFatal(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.Log(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", entry.EventType).
			Str("user_id", entry.UserID).
			Msg("Failed to write audit log entry")
	}
}

// Search returns entries matching the filter.
func (s *AuditService) Search(ctx context.Context, filter repository.AuditFilter) ([]*repository.AuditEntry, error) {
	return s.store.Search(ctx, filter)
}

// Stats aggregates audit activity over the last N days.
func (s *AuditService) Stats(ctx context.Context, days int) (*repository.AuditStats, error) {
	return s.store.Stats(ctx, days)
}

// CountRecentEvents counts one user's events within a trailing window.
func (s *AuditService) CountRecentEvents(ctx context.Context, userID, eventType string, window time.Duration) (int64, error) {
	return s.store.CountRecentEvents(ctx, userID, eventType, window)
}

// DetectSuspiciousActivity applies a rate heuristic: when one user produces
// more events inside the window than the threshold allows, a critical security
// event is logged about them. Returns whether the user tripped the threshold.
func (s *AuditService) DetectSuspiciousActivity(ctx context.Context, userID string) (bool, error) {
	count, err := s.store.CountRecentEvents(ctx, userID, "", s.suspiciousWindow)
	if err != nil {
		return false, err
	}
	if count <= s.suspiciousThreshold {
		return false, nil
	}

	s.LogNonFatal(ctx, &repository.AuditEntry{
		EventType:     EventSuspiciousActivity,
		EventCategory: repository.CategorySecurity,
		Severity:      repository.SeverityCritical,
		UserID:        userID,
		UserName:      "system",
		UserRole:      "system",
		Changes: map[string]interface{}{
			"event_count": count,
			"window":      s.suspiciousWindow.String(),
			"threshold":   s.suspiciousThreshold,
		},
	})

	s.log.Warn().
		Str("user_id", userID).
		Int64("event_count", count).
		Dur("window", s.suspiciousWindow).
		Msg("Suspicious activity detected")

	return true, nil
}
