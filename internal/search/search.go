// Package search filters a lead collection by free text, tier, source and
// per-field conditions.
package search

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
)

// All matches every priority or source.
const All = "all"

// Operator compares a lead field with a filter value.
type Operator string

const (
	OpContains   Operator = "contains"
	OpEquals     Operator = "equals"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

// FilterFields lists the fields a Filter may target.
var FilterFields = []string{"name", "email", "company", "jobTitle", "phone"}

// Filter is one advanced condition. Comparisons ignore case.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// ParseOperator accepts both snake_case and camelCase spellings.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contains", "":
		return OpContains, nil
	case "equals", "eq":
		return OpEquals, nil
	case "starts_with", "startswith":
		return OpStartsWith, nil
	case "ends_with", "endswith":
		return OpEndsWith, nil
	}
	return "", eris.Errorf("search: unknown operator %q", s)
}

// Validate checks the field and operator.
func (f Filter) Validate() error {
	if fieldValue(model.Lead{}, f.Field) == nil {
		return eris.Errorf("search: unknown filter field %q", f.Field)
	}
	if _, err := ParseOperator(string(f.Operator)); err != nil {
		return err
	}
	return nil
}

// Match reports whether l satisfies the condition. Unknown fields never match.
func (f Filter) Match(l model.Lead) bool {
	v := fieldValue(l, f.Field)
	if v == nil {
		return false
	}
	op, err := ParseOperator(string(f.Operator))
	if err != nil {
		return false
	}
	have := strings.ToLower(*v)
	want := strings.ToLower(f.Value)
	switch op {
	case OpEquals:
		return have == want
	case OpStartsWith:
		return strings.HasPrefix(have, want)
	case OpEndsWith:
		return strings.HasSuffix(have, want)
	default:
		return strings.Contains(have, want)
	}
}

func fieldValue(l model.Lead, field string) *string {
	switch field {
	case "name":
		return &l.Name
	case "email":
		return &l.Email
	case "company":
		return &l.Company
	case "jobTitle":
		return &l.JobTitle
	case "phone":
		return &l.Phone
	}
	return nil
}

// Query selects leads. Zero values match everything.
type Query struct {
	Term     string
	Priority string
	Source   string
	Filters  []Filter
}

// Match reports whether l satisfies every part of q.
func (q Query) Match(l model.Lead) bool {
	if term := strings.ToLower(strings.TrimSpace(q.Term)); term != "" {
		if !strings.Contains(strings.ToLower(l.Name), term) &&
			!strings.Contains(strings.ToLower(l.JobTitle), term) &&
			!strings.Contains(strings.ToLower(l.Company), term) {
			return false
		}
	}
	if q.Priority != "" && q.Priority != All && string(l.Priority) != q.Priority {
		return false
	}
	if q.Source != "" && q.Source != All && l.Source != q.Source {
		return false
	}
	for _, f := range q.Filters {
		if !f.Match(l) {
			return false
		}
	}
	return true
}

// Apply returns the leads matching q, in input order.
func Apply(leads []model.Lead, q Query) []model.Lead {
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if q.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

// Sources returns the distinct sources in first-seen order.
func Sources(leads []model.Lead) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range leads {
		if l.Source == "" || seen[l.Source] {
			continue
		}
		seen[l.Source] = true
		out = append(out, l.Source)
	}
	return out
}

// Counts summarizes a collection by tier.
type Counts struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// CountByPriority tallies leads per tier.
func CountByPriority(leads []model.Lead) Counts {
	c := Counts{Total: len(leads)}
	for _, l := range leads {
		switch l.Priority {
		case model.PriorityHigh:
			c.High++
		case model.PriorityMedium:
			c.Medium++
		case model.PriorityLow:
			c.Low++
		}
	}
	return c
}

// Confidence is the rounded percentage of high-priority leads, 0 when empty.
func (c Counts) Confidence() int {
	if c.Total == 0 {
		return 0
	}
	return int(math.Round(float64(c.High) / float64(c.Total) * 100))
}
