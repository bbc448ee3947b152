package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
)

// LeadObject is the Salesforce sObject name for leads.
const LeadObject = "Lead"

// DefaultLeadSource is sent when a lead carries no source.
const DefaultLeadSource = "Lead Harvest"

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID         string `json:"Id" salesforce:"Id"`
	FirstName  string `json:"FirstName" salesforce:"FirstName"`
	LastName   string `json:"LastName" salesforce:"LastName"`
	Company    string `json:"Company" salesforce:"Company"`
	Title      string `json:"Title" salesforce:"Title"`
	Email      string `json:"Email" salesforce:"Email"`
	Phone      string `json:"Phone" salesforce:"Phone"`
	LeadSource string `json:"LeadSource" salesforce:"LeadSource"`
	Rating     string `json:"Rating" salesforce:"Rating"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "FirstName", "LastName", "Company", "Title",
	"Email", "Phone", "LeadSource", "Rating",
}

// PushedLeadFields are the Lead fields LeadFields can write.
var PushedLeadFields = []string{
	"FirstName", "LastName", "Company", "Title",
	"Email", "Phone", "LeadSource", "Rating",
}

// CheckLeadObject describes the Lead sObject and fails when the org lacks a
// field the push writes, or does not allow setting it on create.
func CheckLeadObject(ctx context.Context, c Client) error {
	desc, err := c.DescribeSObject(ctx, LeadObject)
	if err != nil {
		return eris.Wrap(err, "sf: check lead object")
	}
	if missing := desc.Missing(PushedLeadFields); len(missing) > 0 {
		return eris.Errorf("sf: Lead object is missing writable fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Rating maps a priority tier to the Salesforce Lead rating picklist.
func Rating(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "Hot"
	case model.PriorityMedium:
		return "Warm"
	default:
		return "Cold"
	}
}

// SplitName splits a full name at the last space. Salesforce requires
// LastName, so a single-word name becomes the last name.
func SplitName(name string) (first, last string) {
	name = strings.Join(strings.Fields(name), " ")
	i := strings.LastIndex(name, " ")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// LeadFields maps a lead to Salesforce Lead field values. Empty optional
// values are omitted so they do not overwrite data on update.
func LeadFields(l model.Lead) map[string]any {
	first, last := SplitName(l.Name)
	fields := map[string]any{
		"LastName":   last,
		"Company":    l.Company,
		"Rating":     Rating(l.Priority),
		"LeadSource": DefaultLeadSource,
	}
	if l.Source != "" {
		fields["LeadSource"] = l.Source
	}
	optional := map[string]string{
		"FirstName": first,
		"Title":     l.JobTitle,
		"Email":     l.Email,
		"Phone":     l.Phone,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

// maxInClause bounds the values in one SOQL IN list.
const maxInClause = 100

// FindLeadsByEmail returns existing Salesforce leads keyed by lower-cased
// email. Empty emails are ignored.
func FindLeadsByEmail(ctx context.Context, c Client, emails []string) (map[string]Lead, error) {
	seen := make(map[string]bool, len(emails))
	var quoted []string
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		quoted = append(quoted, "'"+escapeSoql(e)+"'")
	}

	out := make(map[string]Lead)
	for start := 0; start < len(quoted); start += maxInClause {
		end := min(start+maxInClause, len(quoted))
		soql := fmt.Sprintf(
			"SELECT %s FROM Lead WHERE IsConverted = false AND Email IN (%s)",
			strings.Join(leadFields, ", "),
			strings.Join(quoted[start:end], ", "),
		)
		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, "sf: find leads by email")
		}
		for _, l := range leads {
			if l.Email != "" {
				out[strings.ToLower(l.Email)] = l
			}
		}
	}
	return out, nil
}

// CreateLead creates a single Lead and returns its Salesforce ID.
func CreateLead(ctx context.Context, c Client, l model.Lead) (string, error) {
	fields := LeadFields(l)
	if fields["LastName"] == "" {
		return "", eris.New("sf: lead LastName is required")
	}
	if fields["Company"] == "" {
		return "", eris.New("sf: lead Company is required")
	}
	id, err := c.InsertOne(ctx, LeadObject, fields)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: create lead %s", l.Name))
	}
	return id, nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
