// Package audit records an append-only trail of operations on the lead
// collection.
package audit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/resilience"
	"github.com/sells-group/lead-harvest/internal/store"
)

// Log is an append-only audit sink.
type Log interface {
	Append(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error)
	List(ctx context.Context) ([]model.AuditEntry, error)
	ListByAction(ctx context.Context, action model.AuditAction) ([]model.AuditEntry, error)
	Clear(ctx context.Context) (int, error)
}

// stamp fills the generated fields of e.
func stamp(e model.AuditEntry, now time.Time) (model.AuditEntry, error) {
	if !e.Action.Valid() {
		return e, eris.Errorf("audit: unknown action %q", e.Action)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	return e, nil
}

// MemoryLog keeps entries in process memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

// NewMemoryLog returns an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	e, err := stamp(e, time.Now())
	if err != nil {
		return e, err
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

func (m *MemoryLog) List(_ context.Context) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries), nil
}

func (m *MemoryLog) ListByAction(_ context.Context, action model.AuditAction) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AuditEntry{}
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryLog) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	m.entries = nil
	return n, nil
}

// StoreLog persists entries through a store.Store, scoped to the owner on
// the context.
type StoreLog struct {
	st    store.Store
	retry resilience.RetryConfig
}

// NewStoreLog wraps st. Appends are retried on transient store errors.
func NewStoreLog(st store.Store, retry resilience.RetryConfig) *StoreLog {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("append_audit")
	}
	return &StoreLog{st: st, retry: retry}
}

func (s *StoreLog) Append(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	e, err := stamp(e, time.Now())
	if err != nil {
		return e, err
	}
	if owner, err := store.OwnerFrom(ctx); err == nil {
		e.UserID = owner
	}
	err = resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.st.AppendAudit(ctx, e)
	})
	if err != nil {
		return e, eris.Wrap(err, "audit: append")
	}
	return e, nil
}

func (s *StoreLog) List(ctx context.Context) ([]model.AuditEntry, error) {
	entries, err := s.st.ListAudit(ctx, "")
	return entries, eris.Wrap(err, "audit: list")
}

func (s *StoreLog) ListByAction(ctx context.Context, action model.AuditAction) ([]model.AuditEntry, error) {
	entries, err := s.st.ListAudit(ctx, action)
	return entries, eris.Wrap(err, "audit: list by action")
}

func (s *StoreLog) Clear(ctx context.Context) (int, error) {
	n, err := s.st.ClearAudit(ctx)
	return n, eris.Wrap(err, "audit: clear")
}
