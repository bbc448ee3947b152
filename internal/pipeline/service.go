package pipeline

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/audit"
	"github.com/sells-group/lead-harvest/internal/export"
	"github.com/sells-group/lead-harvest/internal/merge"
	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/realtime"
	"github.com/sells-group/lead-harvest/internal/resilience"
	"github.com/sells-group/lead-harvest/internal/store"
)

// Generator produces candidate leads for a search term.
type Generator interface {
	Generate(count int, searchTerm, source string) []model.Lead
}

// Service runs pipeline operations against the persisted collection of the
// owner carried on the context.
type Service struct {
	pipeline *Pipeline
	store    store.Store
	hub      *realtime.Hub
	metrics  *metrics.Metrics
	retry    resilience.RetryConfig
	defaults model.Settings
	now      func() time.Time

	// owners holds one *sync.Mutex per owner. Read-modify-write operations
	// on a collection hold it so concurrent requests do not overwrite each
	// other. It does not guard against other processes sharing the store.
	owners sync.Map
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHub publishes lead changes to hub.
func WithHub(hub *realtime.Hub) ServiceOption {
	return func(s *Service) { s.hub = hub }
}

// WithMetrics records export counters on m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithRetry sets the retry policy for store calls.
func WithRetry(cfg resilience.RetryConfig) ServiceOption {
	return func(s *Service) { s.retry = cfg }
}

// WithDefaultSettings sets the settings returned for owners that never saved
// any.
func WithDefaultSettings(d model.Settings) ServiceOption {
	return func(s *Service) { s.defaults = d }
}

// NewService creates a Service over st.
func NewService(p *Pipeline, st store.Store, opts ...ServiceOption) *Service {
	s := &Service{
		pipeline: p,
		store:    st,
		retry:    resilience.DefaultRetryConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pipeline returns the underlying pipeline.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// Audit returns the audit sink.
func (s *Service) Audit() audit.Log {
	return s.pipeline.Recorder().Log()
}

func (s *Service) withRetry(op string) resilience.RetryConfig {
	cfg := s.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(op)
	}
	return cfg
}

// lock serialises collection writes for the owner on ctx.
func (s *Service) lock(ctx context.Context) (unlock func(), err error) {
	owner, err := store.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	mu, _ := s.owners.LoadOrStore(owner, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock, nil
}

func (s *Service) publish(ctx context.Context, e realtime.Event) {
	if s.hub == nil {
		return
	}
	owner, err := store.OwnerFrom(ctx)
	if err != nil {
		return
	}
	e.UserID = owner
	s.hub.Publish(e)
}

// Leads returns the owner's collection in presentation order.
func (s *Service) Leads(ctx context.Context) ([]model.Lead, error) {
	return resilience.DoVal(ctx, s.withRetry("list_leads"), func(ctx context.Context) ([]model.Lead, error) {
		return s.store.ListLeads(ctx)
	})
}

func (s *Service) replace(ctx context.Context, leads []model.Lead) error {
	return resilience.Do(ctx, s.withRetry("replace_leads"), func(ctx context.Context) error {
		return s.store.ReplaceLeads(ctx, leads)
	})
}

// Ingest merges batch into the stored collection, persists the result and
// records one SCRAPE entry for the batch. Leads without an id get one.
func (s *Service) Ingest(ctx context.Context, batch []model.Lead, info ScrapeInfo) (merge.Result, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return merge.Result{}, err
	}
	defer unlock()

	existing, err := s.Leads(ctx)
	if err != nil {
		return merge.Result{}, eris.Wrap(err, "ingest: list leads")
	}

	now := s.now().UTC()
	candidates := model.CloneLeads(batch)
	for i := range candidates {
		if candidates[i].ID == "" {
			candidates[i].ID = uuid.New().String()
		}
		if candidates[i].Priority == "" {
			candidates[i].Priority = model.PriorityLow
		}
		if candidates[i].Source == "" {
			candidates[i].Source = info.Source
		}
		if candidates[i].CreatedAt.IsZero() {
			candidates[i].CreatedAt = now
		}
	}

	res := s.pipeline.Merge(existing, candidates, info.Source)
	if len(res.Added) > 0 {
		if err := s.replace(ctx, res.Leads); err != nil {
			return merge.Result{}, eris.Wrap(err, "ingest: save leads")
		}
	}
	if err := s.pipeline.RecordScrape(ctx, len(batch), info); err != nil {
		return merge.Result{}, err
	}

	for i := range res.Added {
		s.publish(ctx, realtime.Event{Type: realtime.EventInsert, New: &res.Added[i]})
	}

	zap.L().Info("ingest: merged batch",
		zap.String("source", info.Source),
		zap.Int("batch", len(batch)),
		zap.Int("added", len(res.Added)),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}

// Generate produces count leads for searchTerm with gen and ingests them.
// A missing credential yields a ConfigurationError before anything runs.
func (s *Service) Generate(ctx context.Context, gen Generator, count int, searchTerm string, info ScrapeInfo) (merge.Result, error) {
	if err := s.pipeline.RequireCredential(ctx); err != nil {
		return merge.Result{}, err
	}
	return s.Ingest(ctx, gen.Generate(count, searchTerm, info.Source), info)
}

// ValidateStored scores every stored lead, persists the new priorities and
// records one VALIDATE entry.
func (s *Service) ValidateStored(ctx context.Context, criteria string, strictness int) ([]model.Lead, error) {
	if err := s.pipeline.RequireCredential(ctx); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	leads, err := s.Leads(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "validate: list leads")
	}

	scored, err := s.pipeline.Score(ctx, leads, criteria, strictness)
	if err != nil {
		return nil, err
	}

	if len(scored) > 0 {
		err = resilience.Do(ctx, s.withRetry("update_lead_scores"), func(ctx context.Context) error {
			return s.store.UpdateLeadScores(ctx, scored)
		})
		if err != nil {
			return nil, eris.Wrap(err, "validate: save scores")
		}
	}

	if err := s.pipeline.RecordValidation(ctx, len(scored), criteria, strictness); err != nil {
		return nil, err
	}

	for i := range scored {
		s.publish(ctx, realtime.Event{Type: realtime.EventUpdate, New: &scored[i]})
	}
	return scored, nil
}

// Delete removes the leads with the given ids and records one DELETE entry
// when anything was removed.
func (s *Service) Delete(ctx context.Context, ids []string, reason string) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	leads, err := s.Leads(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "delete: list leads")
	}
	return s.deleteLocked(ctx, leads, ids, reason)
}

// Clear removes every lead of the owner and records one DELETE entry.
func (s *Service) Clear(ctx context.Context, reason string) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	leads, err := s.Leads(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "clear: list leads")
	}
	ids := make([]string, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	return s.deleteLocked(ctx, leads, ids, reason)
}

func (s *Service) deleteLocked(ctx context.Context, leads []model.Lead, ids []string, reason string) (int, error) {
	var present []string
	for _, l := range leads {
		if slices.Contains(ids, l.ID) {
			present = append(present, l.ID)
		}
	}
	if len(present) == 0 {
		return 0, nil
	}

	n, err := resilience.DoVal(ctx, s.withRetry("delete_leads"), func(ctx context.Context) (int, error) {
		return s.store.DeleteLeads(ctx, present)
	})
	if err != nil {
		return 0, eris.Wrap(err, "delete: remove leads")
	}

	if _, err := s.pipeline.Recorder().LogDelete(ctx, n, reason); err != nil {
		return n, eris.Wrap(err, "delete: record")
	}
	for _, id := range present {
		s.publish(ctx, realtime.Event{Type: realtime.EventDelete, OldID: id})
	}
	return n, nil
}

// Modify replaces the stored lead with updated's editable fields and records
// one MODIFY entry naming the changed fields. Changing a contact field clears
// the lead's validation result so the next validation re-checks it.
func (s *Service) Modify(ctx context.Context, updated model.Lead) (model.Lead, []string, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return model.Lead{}, nil, err
	}
	defer unlock()

	leads, err := s.Leads(ctx)
	if err != nil {
		return model.Lead{}, nil, eris.Wrap(err, "modify: list leads")
	}

	idx := slices.IndexFunc(leads, func(l model.Lead) bool { return l.ID == updated.ID })
	if idx < 0 {
		return model.Lead{}, nil, eris.Wrapf(store.ErrNotFound, "lead %s", updated.ID)
	}

	current := leads[idx]
	fields := ChangedFields(current, updated)
	if len(fields) == 0 {
		return current, nil, nil
	}

	next := current.Clone()
	next.Name = updated.Name
	next.JobTitle = updated.JobTitle
	next.Company = updated.Company
	next.Email = updated.Email
	next.Phone = updated.Phone
	next.Source = updated.Source
	if updated.Priority.Valid() {
		next.Priority = updated.Priority
	}
	for _, f := range fields {
		if f == "email" || f == "company" || f == "phone" {
			next.ValidationIssues = nil
			break
		}
	}
	next.UpdatedAt = s.now().UTC()
	leads[idx] = next

	if err := s.replace(ctx, leads); err != nil {
		return model.Lead{}, nil, eris.Wrap(err, "modify: save leads")
	}
	if _, err := s.pipeline.Recorder().LogModify(ctx, 1, fields); err != nil {
		return next, fields, eris.Wrap(err, "modify: record")
	}
	s.publish(ctx, realtime.Event{Type: realtime.EventUpdate, New: &next})
	return next, fields, nil
}

// ChangedFields lists the editable fields that differ between a and b.
func ChangedFields(a, b model.Lead) []string {
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	add("name", a.Name != b.Name)
	add("jobTitle", a.JobTitle != b.JobTitle)
	add("company", a.Company != b.Company)
	add("email", a.Email != b.Email)
	add("phone", a.Phone != b.Phone)
	add("priority", b.Priority.Valid() && a.Priority != b.Priority)
	add("source", a.Source != b.Source)
	return out
}

// Export writes the owner's leads to w and records one EXPORT entry.
func (s *Service) Export(ctx context.Context, w io.Writer, opts export.Options) (int, error) {
	leads, err := s.Leads(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "export: list leads")
	}

	n, err := export.Write(w, leads, opts)
	if err != nil {
		return 0, err
	}

	format := opts.Format
	if format == "" {
		format = export.FormatCSV
	}
	if _, err := s.pipeline.Recorder().LogExport(ctx, string(format), n); err != nil {
		return n, eris.Wrap(err, "export: record")
	}
	s.metrics.ObserveExport(string(format), n)
	return n, nil
}

// Settings returns the owner's saved settings or the defaults.
func (s *Service) Settings(ctx context.Context) (model.Settings, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, eris.Wrap(err, "settings: load")
	}
	if st == nil {
		return s.defaults, nil
	}
	return *st, nil
}

// SaveSettings persists the owner's settings.
func (s *Service) SaveSettings(ctx context.Context, st model.Settings) error {
	if st.RequestDelaySecs < 1 || st.RequestDelaySecs > 10 {
		return eris.Errorf("settings: request delay must be between 1 and 10 seconds, got %d", st.RequestDelaySecs)
	}
	return resilience.Do(ctx, s.withRetry("save_settings"), func(ctx context.Context) error {
		return s.store.SaveSettings(ctx, st)
	})
}
