// Package pipeline scores, validates and merges lead batches and records
// the audit trail for each operation.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/audit"
	"github.com/sells-group/lead-harvest/internal/classify"
	"github.com/sells-group/lead-harvest/internal/credential"
	"github.com/sells-group/lead-harvest/internal/merge"
	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/validate"
)

// ScrapeInfo describes where a generated batch came from.
type ScrapeInfo struct {
	Source         string
	ProxiesEnabled bool
	ProxyUsed      string
}

// Pipeline composes the classifier, the lead validator and the merger.
// It holds no lead state between calls.
type Pipeline struct {
	classifier *classify.Classifier
	creds      credential.Provider
	recorder   *audit.Recorder
	metrics    *metrics.Metrics
}

// New creates a Pipeline. m may be nil.
func New(c *classify.Classifier, creds credential.Provider, rec *audit.Recorder, m *metrics.Metrics) *Pipeline {
	return &Pipeline{classifier: c, creds: creds, recorder: rec, metrics: m}
}

// Recorder returns the audit recorder the pipeline writes to.
func (p *Pipeline) Recorder() *audit.Recorder {
	return p.recorder
}

// RequireCredential returns a ConfigurationError when no API key is
// configured. Other provider failures are returned wrapped.
func (p *Pipeline) RequireCredential(ctx context.Context) error {
	if p.creds == nil {
		return &ConfigurationError{Err: credential.ErrMissing}
	}
	if _, err := p.creds.Token(ctx); err != nil {
		if credential.IsMissing(err) {
			return &ConfigurationError{Err: err}
		}
		return eris.Wrap(err, "pipeline: resolve credential")
	}
	return nil
}

// Score classifies and validates every lead and applies the downgrade rule.
// It returns new leads in input order and leaves the input untouched. Leads
// that already carry validation issues keep them. Nothing is recorded.
func (p *Pipeline) Score(ctx context.Context, leads []model.Lead, criteria string, strictness int) ([]model.Lead, error) {
	if err := p.RequireCredential(ctx); err != nil {
		return nil, err
	}

	rules := classify.ParseCriteria(criteria)
	out := model.CloneLeads(leads)
	downgraded := 0
	for i := range out {
		l := &out[i]
		res := p.classifier.ClassifyRules(l.JobTitle, rules, strictness)

		if !l.Validated() {
			l.ValidationIssues = validate.Lead(*l).Issues
		}
		if len(l.ValidationIssues) > 0 {
			res = classify.Downgrade(res)
			downgraded++
			p.metrics.ObserveDowngrade()
		}

		l.Priority = res.Priority
		l.AIScore = model.IntPtr(res.AIScore)
		p.metrics.ObserveValidated(string(l.Priority))
	}

	zap.L().Debug("pipeline: scored batch",
		zap.Int("leads", len(out)),
		zap.Int("downgraded", downgraded),
		zap.String("scheme", string(p.classifier.Scheme())),
	)
	return out, nil
}

// ValidateBatch scores leads and appends one VALIDATE audit entry. A missing
// credential yields a ConfigurationError with no audit entry written.
func (p *Pipeline) ValidateBatch(ctx context.Context, leads []model.Lead, criteria string, strictness int) ([]model.Lead, error) {
	out, err := p.Score(ctx, leads, criteria, strictness)
	if err != nil {
		return nil, err
	}
	if err := p.RecordValidation(ctx, len(leads), criteria, strictness); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordValidation appends the VALIDATE audit entry for a batch of count leads.
func (p *Pipeline) RecordValidation(ctx context.Context, count int, criteria string, strictness int) error {
	if _, err := p.recorder.LogValidation(ctx, count, criteria, classify.ClampStrictness(strictness)); err != nil {
		return eris.Wrap(err, "pipeline: record validation")
	}
	return nil
}

// Merge folds generated into existing without recording anything.
func (p *Pipeline) Merge(existing, generated []model.Lead, source string) merge.Result {
	res := merge.Generated(existing, generated)
	p.metrics.ObserveIngest(source, len(res.Added), res.Duplicates)
	return res
}

// MergeGenerated folds generated into existing and appends one SCRAPE audit
// entry whose leads count is the size of generated.
func (p *Pipeline) MergeGenerated(ctx context.Context, existing, generated []model.Lead, info ScrapeInfo) (merge.Result, error) {
	res := p.Merge(existing, generated, info.Source)
	if err := p.RecordScrape(ctx, len(generated), info); err != nil {
		return merge.Result{}, err
	}
	return res, nil
}

// RecordScrape appends the SCRAPE audit entry for a batch of count leads.
func (p *Pipeline) RecordScrape(ctx context.Context, count int, info ScrapeInfo) error {
	if _, err := p.recorder.LogScrape(ctx, info.Source, info.ProxiesEnabled, info.ProxyUsed, count); err != nil {
		return eris.Wrap(err, "pipeline: record scrape")
	}
	return nil
}
