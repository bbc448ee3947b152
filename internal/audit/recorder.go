package audit

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/model"
)

const (
	UnknownSource       = "Unknown Source"
	DefaultDeleteReason = "Manual deletion"
	NoProxy             = "none"
)

// Recorder builds audit entries for each kind of lead operation.
type Recorder struct {
	log     Log
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRecorder returns a Recorder writing to log. m may be nil.
func NewRecorder(log Log, m *metrics.Metrics) *Recorder {
	return &Recorder{log: log, metrics: m, now: time.Now}
}

// Log returns the underlying sink.
func (r *Recorder) Log() Log {
	return r.log
}

func (r *Recorder) append(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	e.Timestamp = r.now().UTC()
	out, err := r.log.Append(ctx, e)
	if err != nil {
		return out, err
	}
	r.metrics.ObserveAudit(string(e.Action))
	return out, nil
}

func (r *Recorder) stampTime() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

// LogScrape records a finder or import run of count leads.
func (r *Recorder) LogScrape(ctx context.Context, source string, proxiesEnabled bool, proxyUsed string, count int) (model.AuditEntry, error) {
	if source == "" {
		source = UnknownSource
	}
	if !proxiesEnabled {
		proxyUsed = NoProxy
	}
	return r.append(ctx, model.AuditEntry{
		Action:     model.ActionScrape,
		Source:     source,
		ProxyUsed:  proxyUsed,
		LeadsCount: model.IntPtr(count),
		Details: map[string]any{
			"proxies_enabled": proxiesEnabled,
			"scrape_time":     r.stampTime(),
		},
	})
}

// LogValidation records a batch validation of count leads.
func (r *Recorder) LogValidation(ctx context.Context, count int, criteria string, strictness int) (model.AuditEntry, error) {
	return r.append(ctx, model.AuditEntry{
		Action:     model.ActionValidate,
		Source:     "Lead Validation",
		LeadsCount: model.IntPtr(count),
		Details: map[string]any{
			"criteria":        criteria,
			"strictness":      strictness,
			"validation_time": r.stampTime(),
		},
	})
}

// LogExport records an export of count leads. format is upper-cased in the
// entry source, e.g. "CSV Export".
func (r *Recorder) LogExport(ctx context.Context, format string, count int) (model.AuditEntry, error) {
	upper := strings.ToUpper(format)
	return r.append(ctx, model.AuditEntry{
		Action:     model.ActionExport,
		Source:     upper + " Export",
		LeadsCount: model.IntPtr(count),
		Details: map[string]any{
			"format":      upper,
			"export_time": r.stampTime(),
		},
	})
}

// LogDelete records the removal of count leads.
func (r *Recorder) LogDelete(ctx context.Context, count int, reason string) (model.AuditEntry, error) {
	if reason == "" {
		reason = DefaultDeleteReason
	}
	return r.append(ctx, model.AuditEntry{
		Action:     model.ActionDelete,
		Source:     "Lead Deletion",
		LeadsCount: model.IntPtr(count),
		Details: map[string]any{
			"reason":      reason,
			"delete_time": r.stampTime(),
		},
	})
}

// LogModify records an edit touching fieldsChanged on count leads.
func (r *Recorder) LogModify(ctx context.Context, count int, fieldsChanged []string) (model.AuditEntry, error) {
	return r.append(ctx, model.AuditEntry{
		Action:     model.ActionModify,
		Source:     "Lead Modification",
		LeadsCount: model.IntPtr(count),
		Details: map[string]any{
			"fields_changed": strings.Join(fieldsChanged, ", "),
			"modify_time":    r.stampTime(),
		},
	})
}

// Stats summarises an audit trail.
type Stats struct {
	TotalScrapingOperations int `json:"totalScrapingOperations"`
	TotalLeadsValidated     int `json:"totalLeadsValidated"`
	TotalLeadsExported      int `json:"totalLeadsExported"`
	TotalLogs               int `json:"totalLogs"`
}

// ComputeStats folds entries into Stats.
func ComputeStats(entries []model.AuditEntry) Stats {
	s := Stats{TotalLogs: len(entries)}
	for _, e := range entries {
		switch e.Action {
		case model.ActionScrape:
			s.TotalScrapingOperations++
		case model.ActionValidate:
			s.TotalLeadsValidated += e.Count()
		case model.ActionExport:
			s.TotalLeadsExported += e.Count()
		}
	}
	return s
}

// Statistics lists the trail from log and summarises it.
func Statistics(ctx context.Context, log Log) (Stats, error) {
	entries, err := log.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(entries), nil
}
