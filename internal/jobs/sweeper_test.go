package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/be-workflow/internal/errors"
	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", ServiceName: "test"})
}

type fakeExpirer struct {
	mu      sync.Mutex
	count   int
	calls   int
	failErr error
	block   chan struct{}
}

func (f *fakeExpirer) ExpireOverdue(_ context.Context) (int, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failErr != nil {
		return 0, f.failErr
	}
	return f.count, nil
}

type fakeReminderStore struct {
	mu         sync.Mutex
	docs       []*repository.Document
	scheduled  map[string]time.Time
	failDocIDs map[string]bool
}

func newFakeReminderStore(docs ...*repository.Document) *fakeReminderStore {
	return &fakeReminderStore{
		docs:       docs,
		scheduled:  make(map[string]time.Time),
		failDocIDs: make(map[string]bool),
	}
}

func (f *fakeReminderStore) ListIdleBefore(_ context.Context, _ time.Time, _ int) ([]*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs, nil
}

func (f *fakeReminderStore) ScheduleReminder(_ context.Context, id string, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDocIDs[id] {
		return errors.New(errors.ErrCodeInternal, "reschedule failed")
	}
	f.scheduled[id] = next
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) NotifyUser(userID, _, _, _ string, _ map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, userID)
}

func idleDoc(id, createdBy string, supervisor *string) *repository.Document {
	return &repository.Document{
		ID:         id,
		Number:     "DOC-" + id,
		Status:     repository.StatusDraft,
		CreatedBy:  createdBy,
		Supervisor: supervisor,
	}
}

func TestSweepExpiresAndRemind(t *testing.T) {
	expirer := &fakeExpirer{count: 3}
	store := newFakeReminderStore(idleDoc("d1", "creator", nil))
	notifier := &fakeNotifier{}
	metrics := NewMetrics()

	s := NewSweeper(expirer, store, notifier, metrics, time.Hour, 24*time.Hour, newTestLogger())
	ran := s.Sweep(context.Background())

	require.True(t, ran)
	assert.Equal(t, 1, expirer.calls)
	assert.Equal(t, []string{"creator"}, notifier.sent)
	assert.Contains(t, store.scheduled, "d1")

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.expiredTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.reminderTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.sweepsTotal.WithLabelValues(StatusSuccess)))
}

func TestSweepNotifiesSupervisorWhenSet(t *testing.T) {
	sup := "supervisor1"
	store := newFakeReminderStore(
		idleDoc("d1", "creator", &sup),
		idleDoc("d2", "creator2", nil),
	)
	notifier := &fakeNotifier{}

	s := NewSweeper(&fakeExpirer{}, store, notifier, nil, time.Hour, 24*time.Hour, newTestLogger())
	require.True(t, s.Sweep(context.Background()))

	assert.Equal(t, []string{"supervisor1", "creator2"}, notifier.sent)
}

func TestSweepReschedulesReminderInterval(t *testing.T) {
	store := newFakeReminderStore(idleDoc("d1", "creator", nil))
	interval := 6 * time.Hour

	s := NewSweeper(&fakeExpirer{}, store, &fakeNotifier{}, nil, time.Hour, interval, newTestLogger())
	before := time.Now()
	require.True(t, s.Sweep(context.Background()))

	next := store.scheduled["d1"]
	assert.WithinDuration(t, before.Add(interval), next, 5*time.Second)
}

func TestSweepContinuesPastRescheduleFailure(t *testing.T) {
	store := newFakeReminderStore(
		idleDoc("d1", "creator1", nil),
		idleDoc("d2", "creator2", nil),
	)
	store.failDocIDs["d1"] = true
	notifier := &fakeNotifier{}
	metrics := NewMetrics()

	s := NewSweeper(&fakeExpirer{}, store, notifier, metrics, time.Hour, 24*time.Hour, newTestLogger())
	require.True(t, s.Sweep(context.Background()))

	// Both documents get a notification; only the rescheduled one counts as sent.
	assert.Len(t, notifier.sent, 2)
	assert.Contains(t, store.scheduled, "d2")
	assert.NotContains(t, store.scheduled, "d1")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.reminderTotal))
}

func TestSweepMarksFailureWhenExpiryFails(t *testing.T) {
	expirer := &fakeExpirer{failErr: errors.New(errors.ErrCodeInternal, "db down")}
	store := newFakeReminderStore()
	metrics := NewMetrics()

	s := NewSweeper(expirer, store, &fakeNotifier{}, metrics, time.Hour, 24*time.Hour, newTestLogger())
	require.True(t, s.Sweep(context.Background()))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.sweepsTotal.WithLabelValues(StatusFailure)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.sweepsTotal.WithLabelValues(StatusSuccess)))
}

func TestSweepIsSingleFlight(t *testing.T) {
	expirer := &fakeExpirer{block: make(chan struct{})}
	store := newFakeReminderStore()
	metrics := NewMetrics()

	s := NewSweeper(expirer, store, &fakeNotifier{}, metrics, time.Hour, 24*time.Hour, newTestLogger())

	first := make(chan bool)
	go func() { first <- s.Sweep(context.Background()) }()

	// Wait until the first sweep is in flight before attempting the second.
	require.Eventually(t, func() bool { return s.running.Load() }, time.Second, 5*time.Millisecond)

	assert.False(t, s.Sweep(context.Background()), "overlapping sweep must be skipped")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.skippedTotal))

	close(expirer.block)
	assert.True(t, <-first)
}

func TestMetricsRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	require.NoError(t, m.Register(reg))
	require.Error(t, m.Register(reg))
}
