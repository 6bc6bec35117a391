package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerline/be-workflow/internal/errors"
	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", ServiceName: "test"})
}

// ── audit store ───────────────────────────────────────────────────────────────

type fakeAuditStore struct {
	mu          sync.Mutex
	entries     []*repository.AuditEntry
	recentCount int64
	failAppend  bool
}

func (f *fakeAuditStore) Append(_ context.Context, entry *repository.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return errors.New(errors.ErrCodeInternal, "append failed")
	}
	entry.ID = fmt.Sprintf("audit-%d", len(f.entries)+1)
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) Search(_ context.Context, filter repository.AuditFilter) ([]*repository.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.AuditEntry
	for _, e := range f.entries {
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAuditStore) Stats(_ context.Context, _ int) (*repository.AuditStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &repository.AuditStats{
		ByCategory: make(map[string]int64),
		BySeverity: make(map[string]int64),
	}
	for _, e := range f.entries {
		stats.TotalEvents++
		stats.ByCategory[string(e.EventCategory)]++
		stats.BySeverity[string(e.Severity)]++
	}
	return stats, nil
}

func (f *fakeAuditStore) CountRecentEvents(_ context.Context, _, _ string, _ time.Duration) (int64, error) {
	return f.recentCount, nil
}

func (f *fakeAuditStore) byType(eventType string) []*repository.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.AuditEntry
	for _, e := range f.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ── notifier ──────────────────────────────────────────────────────────────────

type sentNotification struct {
	UserID string
	Title  string
	Kind   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) NotifyUser(userID, title, _, kind string, _ map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{UserID: userID, Title: title, Kind: kind})
}

// ── document store ────────────────────────────────────────────────────────────

type fakeDocumentStore struct {
	mu      sync.Mutex
	docs    map[string]*repository.Document
	entries []*repository.AuditEntry

	failTransition bool
}

func newFakeDocumentStore(docs ...*repository.Document) *fakeDocumentStore {
	m := make(map[string]*repository.Document, len(docs))
	for _, d := range docs {
		m[d.ID] = d
	}
	return &fakeDocumentStore{docs: m}
}

func (f *fakeDocumentStore) GetByID(_ context.Context, id string) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.NotFound("document", id)
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocumentStore) Transition(_ context.Context, id string, prev, next repository.DocumentStatus, entry *repository.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransition {
		return errors.New(errors.ErrCodeInternal, "transition failed")
	}
	doc, ok := f.docs[id]
	if !ok {
		return errors.NotFound("document", id)
	}
	if doc.Status != prev {
		return errors.Newf(errors.ErrCodeConflict, "document %s is no longer in status %s", id, prev)
	}
	doc.Status = next
	doc.UpdatedAt = time.Now()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeDocumentStore) SetStatusWithReason(_ context.Context, id string, status repository.DocumentStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return errors.NotFound("document", id)
	}
	doc.Status = status
	doc.VoidReason = &reason
	return nil
}

func (f *fakeDocumentStore) status(id string) repository.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Status
}

// ── entity store ──────────────────────────────────────────────────────────────

type fakeEntityStore struct {
	mu         sync.Mutex
	deleted    []string
	quantities map[string]int64
	failErr    error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{quantities: make(map[string]int64)}
}

func (f *fakeEntityStore) SoftDelete(_ context.Context, entityType, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.deleted = append(f.deleted, entityType+"/"+entityID)
	return nil
}

func (f *fakeEntityStore) SetQuantity(_ context.Context, entityType, entityID string, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.quantities[entityType+"/"+entityID] = quantity
	return nil
}

// ── approval store ────────────────────────────────────────────────────────────

type fakeApprovalStore struct {
	mu       sync.Mutex
	requests map[string]*repository.ApprovalRequest
	nextID   int
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{requests: make(map[string]*repository.ApprovalRequest)}
}

func (f *fakeApprovalStore) Create(_ context.Context, req *repository.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = fmt.Sprintf("req-%d", f.nextID)
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	copied := *req
	f.requests[req.ID] = &copied
	return nil
}

func (f *fakeApprovalStore) GetByID(_ context.Context, id string) (*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, errors.NotFound("approval_request", id)
	}
	copied := *req
	return &copied, nil
}

// Decide mirrors the repository's compare-and-set: only a pending row moves.
func (f *fakeApprovalStore) Decide(_ context.Context, id string, status repository.RequestStatus, decidedBy, reason string) (*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, errors.NotFound("approval_request", id)
	}
	if req.Status != repository.RequestPending {
		return nil, errors.Newf(errors.ErrCodeRequestNotPending,
			"request %s is not pending (status: %s)", req.RequestNumber, req.Status)
	}
	now := time.Now()
	req.Status = status
	req.DecidedBy = &decidedBy
	req.DecisionReason = &reason
	req.DecidedAt = &now
	req.UpdatedAt = now
	copied := *req
	return &copied, nil
}

func (f *fakeApprovalStore) SetExecutionStatus(_ context.Context, id string, status repository.ExecutionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return errors.NotFound("approval_request", id)
	}
	req.ExecutionStatus = status
	return nil
}

func (f *fakeApprovalStore) ExpireOverdue(_ context.Context, now time.Time) ([]*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []*repository.ApprovalRequest
	for _, req := range f.requests {
		if req.Status == repository.RequestPending && !req.ExpiresAt.After(now) {
			req.Status = repository.RequestExpired
			req.UpdatedAt = now
			copied := *req
			expired = append(expired, &copied)
		}
	}
	return expired, nil
}

func (f *fakeApprovalStore) ListPending(_ context.Context, entityType string, _, _ int) ([]*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ApprovalRequest
	for _, req := range f.requests {
		if req.Status != repository.RequestPending {
			continue
		}
		if entityType != "" && req.EntityType != entityType {
			continue
		}
		copied := *req
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeApprovalStore) get(id string) *repository.ApprovalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id]
}

// failingExecutor always fails.
type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, string, string, map[string]interface{}) error {
	return errors.New(errors.ErrCodeInternal, "downstream mutation failed")
}
