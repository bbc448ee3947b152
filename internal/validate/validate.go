// Package validate implements per-field and per-lead data-quality checks.
package validate

import (
	"regexp"
	"strings"

	"github.com/sells-group/lead-harvest/internal/model"
)

// Failure reasons.
const (
	ReasonEmpty          = "empty"
	ReasonInvalidFormat  = "invalid format"
	ReasonDisposable     = "disposable email"
	ReasonSuspiciousName = "suspicious name"
	ReasonTooShort       = "too short"
)

// minPhoneDigits is the fewest digits a phone number may carry.
const minPhoneDigits = 7

// disposableDomains lists throwaway email providers.
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"fake.com":          true,
	"mailinator.com":    true,
	"yopmail.com":       true,
	"guerrillamail.com": true,
	"sharklasers.com":   true,
	"dispostable.com":   true,
}

// placeholderWords are company-name fragments that indicate a fake record.
var placeholderWords = []string{"test", "demo", "example", "fake"}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Result is the outcome of a single field check.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func ok() Result { return Result{Valid: true} }

func fail(reason string) Result { return Result{Reason: reason} }

// Email checks format and rejects disposable providers.
func Email(email string) Result {
	if strings.TrimSpace(email) == "" {
		return fail(ReasonEmpty)
	}
	if !emailPattern.MatchString(email) {
		return fail(ReasonInvalidFormat)
	}
	domain := strings.ToLower(email[strings.LastIndex(email, "@")+1:])
	if disposableDomains[domain] {
		return fail(ReasonDisposable)
	}
	return ok()
}

// Company rejects empty names and names containing placeholder words.
func Company(company string) Result {
	if strings.TrimSpace(company) == "" {
		return fail(ReasonEmpty)
	}
	lower := strings.ToLower(company)
	for _, w := range placeholderWords {
		if strings.Contains(lower, w) {
			return fail(ReasonSuspiciousName)
		}
	}
	return ok()
}

// Phone accepts an absent number and otherwise requires at least seven digits.
func Phone(phone string) Result {
	if strings.TrimSpace(phone) == "" {
		return ok()
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < minPhoneDigits {
		return fail(ReasonTooShort)
	}
	return ok()
}

// LeadResult aggregates the field checks for one lead.
type LeadResult struct {
	IsValid bool                    `json:"isValid"`
	Issues  []model.ValidationIssue `json:"issues"`
}

// Lead runs the email, company and phone checks in that order. Issues is
// never nil so it can be stored on the lead as a validation marker.
func Lead(l model.Lead) LeadResult {
	issues := []model.ValidationIssue{}

	checks := []struct {
		field model.IssueField
		res   Result
	}{
		{model.IssueFieldEmail, Email(l.Email)},
		{model.IssueFieldCompany, Company(l.Company)},
		{model.IssueFieldPhone, Phone(l.Phone)},
	}
	for _, c := range checks {
		if !c.res.Valid {
			issues = append(issues, model.ValidationIssue{Field: c.field, Reason: c.res.Reason})
		}
	}

	return LeadResult{IsValid: len(issues) == 0, Issues: issues}
}
