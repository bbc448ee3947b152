package model

import "time"

// AuditAction is the kind of operation an audit entry records.
type AuditAction string

const (
	ActionScrape   AuditAction = "SCRAPE"
	ActionValidate AuditAction = "VALIDATE"
	ActionExport   AuditAction = "EXPORT"
	ActionDelete   AuditAction = "DELETE"
	ActionModify   AuditAction = "MODIFY"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionScrape, ActionValidate, ActionExport, ActionDelete, ActionModify:
		return true
	}
	return false
}

// AuditEntry is an immutable record of an operation on the lead collection.
type AuditEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     AuditAction    `json:"action"`
	Source     string         `json:"source,omitempty"`
	ProxyUsed  string         `json:"proxy_used,omitempty"`
	LeadsCount *int           `json:"leads_count,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Count returns LeadsCount or 0 when unset.
func (e AuditEntry) Count() int {
	if e.LeadsCount == nil {
		return 0
	}
	return *e.LeadsCount
}
