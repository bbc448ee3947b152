package model

import "time"

// Priority is the coarse value tier assigned to a lead.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority maps free text to a Priority. Unknown values return ("", false).
func ParsePriority(s string) (Priority, bool) {
	p := Priority(s)
	return p, p.Valid()
}

// IssueField names the lead attribute a validation issue refers to.
type IssueField string

const (
	IssueFieldEmail   IssueField = "email"
	IssueFieldCompany IssueField = "company"
	IssueFieldPhone   IssueField = "phone"
)

// ValidationIssue is a recorded per-field data-quality defect.
type ValidationIssue struct {
	Field  IssueField `json:"field"`
	Reason string     `json:"reason"`
}

// Lead is a prospective business contact.
//
// Email and Phone are optional; the empty string means absent. A nil
// ValidationIssues slice means the lead has never been validated, while an
// empty non-nil slice means it was validated and found clean.
type Lead struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	JobTitle         string            `json:"jobTitle"`
	Company          string            `json:"company"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	Priority         Priority          `json:"priority"`
	Source           string            `json:"source"`
	AIScore          *int              `json:"aiScore,omitempty"`
	ValidationIssues []ValidationIssue `json:"validationIssues"`
	CreatedAt        time.Time         `json:"createdAt,omitzero"`
	UpdatedAt        time.Time         `json:"updatedAt,omitzero"`
}

// Validated reports whether the lead already carries a validation result.
func (l Lead) Validated() bool {
	return l.ValidationIssues != nil
}

// Key returns the deduplication key of the lead.
func (l Lead) Key() LeadKey {
	return LeadKey{Name: l.Name, Company: l.Company}
}

// Score returns the AI score or 0 when unset.
func (l Lead) Score() int {
	if l.AIScore == nil {
		return 0
	}
	return *l.AIScore
}

// LeadKey identifies a lead for duplicate suppression.
type LeadKey struct {
	Name    string
	Company string
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}

// CloneLeads returns a copy of leads whose slices and pointers are not shared
// with the input.
func CloneLeads(leads []Lead) []Lead {
	if leads == nil {
		return nil
	}
	out := make([]Lead, len(leads))
	for i, l := range leads {
		out[i] = l.Clone()
	}
	return out
}

// Clone returns a deep copy of l.
func (l Lead) Clone() Lead {
	c := l
	if l.AIScore != nil {
		c.AIScore = IntPtr(*l.AIScore)
	}
	if l.ValidationIssues != nil {
		c.ValidationIssues = append([]ValidationIssue{}, l.ValidationIssues...)
	}
	return c
}
