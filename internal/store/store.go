// Package store persists leads, audit entries and settings. Every operation
// is scoped to the owner carried on the context.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
)

var (
	// ErrNotLoggedIn is returned when the context carries no owner.
	ErrNotLoggedIn = eris.New("store: user must be logged in")
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = eris.New("store: not found")
)

// Store defines the persistence interface for the lead collection.
type Store interface {
	// Leads
	ListLeads(ctx context.Context) ([]model.Lead, error)
	ReplaceLeads(ctx context.Context, leads []model.Lead) error
	UpdateLeadScores(ctx context.Context, leads []model.Lead) error
	DeleteLeads(ctx context.Context, ids []string) (int, error)
	ClearLeads(ctx context.Context) (int, error)

	// Audit log
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, action model.AuditAction) ([]model.AuditEntry, error)
	ClearAudit(ctx context.Context) (int, error)

	// Settings
	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type ownerKey struct{}

// WithOwner returns a context whose store operations are scoped to userID.
func WithOwner(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, strings.TrimSpace(userID))
}

// OwnerFrom returns the owner carried by ctx.
func OwnerFrom(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ownerKey{}).(string)
	if id == "" {
		return "", ErrNotLoggedIn
	}
	return id, nil
}

// IsNotLoggedIn reports whether err was caused by a missing owner.
func IsNotLoggedIn(err error) bool {
	return eris.Is(err, ErrNotLoggedIn)
}

// leadColumns is the column order shared by both backends.
var leadColumns = []string{
	"user_id", "id", "position", "name", "job_title", "company", "email", "phone",
	"priority", "source", "ai_score", "validation_issues", "created_at", "updated_at",
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
