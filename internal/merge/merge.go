// Package merge folds newly found leads into an existing collection without
// duplicating contacts.
package merge

import "github.com/sells-group/lead-harvest/internal/model"

// Result describes the outcome of a merge.
type Result struct {
	Leads      []model.Lead
	Added      []model.Lead
	Duplicates int
}

// Generated returns existing followed by every lead in batch whose
// (name, company) pair is not already present in existing. Input slices are
// not modified.
//
// Duplicates are checked against existing only, so two identical leads within
// the same batch are both appended.
func Generated(existing, batch []model.Lead) Result {
	seen := make(map[model.LeadKey]struct{}, len(existing))
	for _, l := range existing {
		seen[l.Key()] = struct{}{}
	}

	merged := make([]model.Lead, 0, len(existing)+len(batch))
	merged = append(merged, existing...)

	res := Result{}
	for _, l := range batch {
		if _, dup := seen[l.Key()]; dup {
			res.Duplicates++
			continue
		}
		merged = append(merged, l)
		res.Added = append(res.Added, l)
	}
	res.Leads = merged
	return res
}

// Unique drops later leads whose (name, company) pair was already seen,
// keeping first-occurrence order.
func Unique(leads []model.Lead) []model.Lead {
	seen := make(map[model.LeadKey]struct{}, len(leads))
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if _, dup := seen[l.Key()]; dup {
			continue
		}
		seen[l.Key()] = struct{}{}
		out = append(out, l)
	}
	return out
}
