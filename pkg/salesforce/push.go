package salesforce

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/model"
)

// PushOptions controls a lead push.
type PushOptions struct {
	// UpdateExisting updates open Salesforce leads with a matching email
	// instead of inserting a duplicate.
	UpdateExisting bool
}

// Failure is a lead Salesforce did not accept.
type Failure struct {
	LeadID string   `json:"leadId"`
	Name   string   `json:"name"`
	Errors []string `json:"errors"`
}

// PushResult summarizes a push.
type PushResult struct {
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Failures []Failure `json:"failures,omitempty"`
}

// PushLeads sends leads to Salesforce as Lead records. Per-record failures are
// collected in the result; an error is returned only when a request fails as
// a whole.
func PushLeads(ctx context.Context, c Client, leads []model.Lead, opts PushOptions) (*PushResult, error) {
	res := &PushResult{}
	if len(leads) == 0 {
		return res, nil
	}
	if err := CheckLeadObject(ctx, c); err != nil {
		return res, err
	}

	existing := map[string]Lead{}
	if opts.UpdateExisting {
		emails := make([]string, 0, len(leads))
		for _, l := range leads {
			emails = append(emails, l.Email)
		}
		found, err := FindLeadsByEmail(ctx, c, emails)
		if err != nil {
			return res, err
		}
		existing = found
	}

	var (
		inserts    []map[string]any
		insertFrom []model.Lead
		updates    []CollectionRecord
		updateFrom []model.Lead
	)
	for _, l := range leads {
		if strings.TrimSpace(l.Name) == "" || strings.TrimSpace(l.Company) == "" {
			res.Failures = append(res.Failures, Failure{
				LeadID: l.ID, Name: l.Name,
				Errors: []string{"name and company are required"},
			})
			continue
		}
		fields := LeadFields(l)
		if sf, ok := existing[strings.ToLower(l.Email)]; ok && l.Email != "" {
			updates = append(updates, CollectionRecord{ID: sf.ID, Fields: fields})
			updateFrom = append(updateFrom, l)
			continue
		}
		inserts = append(inserts, fields)
		insertFrom = append(insertFrom, l)
	}

	inserted, err := BulkInsert(ctx, c, LeadObject, inserts)
	res.Created += collect(res, inserted, insertFrom)
	if err != nil {
		return res, eris.Wrap(err, "sf: push leads")
	}

	updated, err := BulkUpdate(ctx, c, LeadObject, updates)
	res.Updated += collect(res, updated, updateFrom)
	if err != nil {
		return res, eris.Wrap(err, "sf: push leads")
	}

	zap.L().Info("salesforce: leads pushed",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", len(res.Failures)),
	)
	return res, nil
}

// PushLead sends one lead. With UpdateExisting, an open Salesforce lead with
// the same email is updated instead; otherwise a new record is created.
func PushLead(ctx context.Context, c Client, l model.Lead, opts PushOptions) (*PushResult, error) {
	res := &PushResult{}
	if err := CheckLeadObject(ctx, c); err != nil {
		return res, err
	}

	if opts.UpdateExisting && l.Email != "" {
		found, err := FindLeadsByEmail(ctx, c, []string{l.Email})
		if err != nil {
			return res, err
		}
		if sf, ok := found[strings.ToLower(l.Email)]; ok {
			results, err := c.UpdateCollection(ctx, LeadObject, []CollectionRecord{{ID: sf.ID, Fields: LeadFields(l)}})
			if err != nil {
				return res, eris.Wrap(err, "sf: push lead")
			}
			res.Updated = collect(res, results, []model.Lead{l})
			return res, nil
		}
	}

	id, err := CreateLead(ctx, c, l)
	if err != nil {
		res.Failures = append(res.Failures, Failure{LeadID: l.ID, Name: l.Name, Errors: []string{err.Error()}})
		return res, nil
	}
	res.Created = 1
	zap.L().Info("salesforce: lead pushed", zap.String("lead_id", l.ID), zap.String("sf_id", id))
	return res, nil
}

// collect records failures from results and returns the success count.
func collect(res *PushResult, results []CollectionResult, from []model.Lead) int {
	ok := 0
	for i, r := range results {
		if i >= len(from) {
			break
		}
		if r.Success {
			ok++
			continue
		}
		res.Failures = append(res.Failures, Failure{
			LeadID: from[i].ID,
			Name:   from[i].Name,
			Errors: r.Errors,
		})
	}
	return ok
}
