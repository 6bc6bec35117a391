package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
)

// ApprovalExpirer expires overdue approval requests.
type ApprovalExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ReminderStore lists idle documents due for a reminder and reschedules them.
type ReminderStore interface {
	ListIdleBefore(ctx context.Context, now time.Time, limit int) ([]*repository.Document, error)
	ScheduleReminder(ctx context.Context, id string, next time.Time) error
}

// ReminderNotifier delivers reminder notifications.
type ReminderNotifier interface {
	NotifyUser(userID, title, body, kind string, metadata map[string]interface{})
}

// Sweeper periodically expires overdue approval requests and re-notifies
// owners of documents stuck in idle statuses. Runs are single-flight: a tick
// that fires while a sweep is still in progress is skipped, not queued.
type Sweeper struct {
	approvals ApprovalExpirer
	docs      ReminderStore
	notifier  ReminderNotifier
	metrics   *Metrics
	log       *logger.Logger

	interval         time.Duration
	reminderInterval time.Duration
	running          atomic.Bool
	done             chan struct{}
}

// NewSweeper creates a sweeper. interval is the tick period;
// reminderInterval is how far the next reminder is pushed out after one is
// sent.
func NewSweeper(approvals ApprovalExpirer, docs ReminderStore, notifier ReminderNotifier, metrics *Metrics, interval, reminderInterval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if reminderInterval <= 0 {
		reminderInterval = 24 * time.Hour
	}
	return &Sweeper{
		approvals:        approvals,
		docs:             docs,
		notifier:         notifier,
		metrics:          metrics,
		log:              log,
		interval:         interval,
		reminderInterval: reminderInterval,
		done:             make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; the loop stops when
// ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info().Dur("interval", s.interval).Msg("Sweeper started")
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("Sweeper stopped")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (s *Sweeper) Wait() {
	<-s.done
}

// Sweep runs one pass. Returns false when another sweep was already in
// progress and this one was skipped.
func (s *Sweeper) Sweep(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug().Msg("Sweep already in progress; skipping")
		if s.metrics != nil {
			s.metrics.incSkipped()
		}
		return false
	}
	defer s.running.Store(false)

	start := time.Now()
	status := StatusSuccess

	if err := s.expire(ctx); err != nil {
		status = StatusFailure
		s.log.Error().Err(err).Msg("Sweep: expiring overdue requests failed")
	}
	if err := s.remind(ctx); err != nil {
		status = StatusFailure
		s.log.Error().Err(err).Msg("Sweep: sending reminders failed")
	}

	if s.metrics != nil {
		s.metrics.observeSweep(status, time.Since(start).Seconds())
	}
	return true
}

func (s *Sweeper) expire(ctx context.Context) error {
	count, err := s.approvals.ExpireOverdue(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.addExpired(count)
	}
	return nil
}

// remind sends one reminder per due idle document and pushes its next reminder
// out. Failures are per-document: a document whose reschedule fails is retried
// on the next tick.
func (s *Sweeper) remind(ctx context.Context) error {
	docs, err := s.docs.ListIdleBefore(ctx, time.Now(), 200)
	if err != nil {
		return err
	}

	sent := 0
	for _, doc := range docs {
		recipient := doc.CreatedBy
		if doc.Supervisor != nil && *doc.Supervisor != "" {
			recipient = *doc.Supervisor
		}

		s.notifier.NotifyUser(recipient,
			"Document awaiting action",
			"Document "+doc.Number+" has been in status "+string(doc.Status)+" past its reminder deadline",
			"document_reminder",
			map[string]interface{}{
				"document_id":  doc.ID,
				"status":       string(doc.Status),
				"remind_count": doc.RemindCount + 1,
			})

		if err := s.docs.ScheduleReminder(ctx, doc.ID, time.Now().Add(s.reminderInterval)); err != nil {
			s.log.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to reschedule reminder")
			continue
		}
		sent++
	}

	if s.metrics != nil {
		s.metrics.addReminders(sent)
	}
	if sent > 0 {
		s.log.Info().Int("count", sent).Msg("Sent idle-document reminders")
	}
	return nil
}
