package api

import (
	"bytes"
	"math/rand/v2"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/export"
	"github.com/sells-group/lead-harvest/internal/fetcher"
	"github.com/sells-group/lead-harvest/internal/finder"
	"github.com/sells-group/lead-harvest/internal/merge"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/pipeline"
	"github.com/sells-group/lead-harvest/internal/search"
	"github.com/sells-group/lead-harvest/internal/store"
)

const (
	maxGenerateCount = 100
	maxUploadBytes   = 32 << 20
)

type listResponse struct {
	Leads   []model.Lead `json:"leads"`
	Total   int          `json:"total"`
	Sources []string     `json:"sources"`
}

// listLeads serves GET /api/leads. Filters are repeated filter=field:op:value
// parameters.
func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := search.Query{
		Term:     q.Get("search"),
		Priority: q.Get("priority"),
		Source:   q.Get("source"),
	}
	for _, raw := range q["filter"] {
		f, err := parseFilter(raw)
		if err != nil {
			writeError(w, r, invalid(err))
			return
		}
		query.Filters = append(query.Filters, f)
	}

	leads, err := s.svc.Leads(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Leads:   search.Apply(leads, query),
		Total:   len(leads),
		Sources: search.Sources(leads),
	})
}

func parseFilter(raw string) (search.Filter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return search.Filter{}, eris.Errorf("filter %q must be field:operator:value", raw)
	}
	op, err := search.ParseOperator(parts[1])
	if err != nil {
		return search.Filter{}, err
	}
	f := search.Filter{Field: parts[0], Operator: op, Value: parts[2]}
	if err := f.Validate(); err != nil {
		return search.Filter{}, err
	}
	return f, nil
}

type statsResponse struct {
	search.Counts
	Confidence int `json:"confidence"`
}

func (s *Server) leadStats(w http.ResponseWriter, r *http.Request) {
	leads, err := s.svc.Leads(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	c := search.CountByPriority(leads)
	writeJSON(w, http.StatusOK, statsResponse{Counts: c, Confidence: c.Confidence()})
}

type ingestResponse struct {
	Added      []model.Lead       `json:"added"`
	Duplicates int                `json:"duplicates"`
	Total      int                `json:"total"`
	Skipped    []fetcher.RowError `json:"skipped,omitempty"`
}

func newIngestResponse(res merge.Result) ingestResponse {
	return ingestResponse{Added: res.Added, Duplicates: res.Duplicates, Total: len(res.Leads)}
}

type importRequest struct {
	Leads  []model.Lead `json:"leads"`
	Source string       `json:"source"`
}

// importLeads serves POST /api/leads/import. It accepts a JSON batch or a
// multipart upload with a csv or xlsx "file" part.
func (s *Server) importLeads(w http.ResponseWriter, r *http.Request) {
	var (
		batch    []model.Lead
		source   string
		skipped  []fetcher.RowError
		fileDups int
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, r, invalid(eris.Wrap(err, "parse upload")))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, invalid(eris.Wrap(err, "file part is required")))
			return
		}
		defer file.Close()

		format, err := fetcher.DetectFormat(header.Filename)
		if err != nil {
			writeError(w, r, invalid(err))
			return
		}
		source = strings.TrimSpace(r.FormValue("source"))
		if source == "" {
			source = header.Filename
		}
		res, err := fetcher.ReadLeads(r.Context(), file, format, fetcher.Options{Source: source})
		if err != nil {
			writeError(w, r, invalid(err))
			return
		}
		batch, skipped, fileDups = res.Leads, res.Skipped, res.Duplicates
	} else {
		var req importRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		batch, source = req.Leads, req.Source
	}

	res, err := s.svc.Ingest(r.Context(), batch, pipeline.ScrapeInfo{Source: source})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := newIngestResponse(res)
	out.Duplicates += fileDups
	out.Skipped = skipped
	writeJSON(w, http.StatusOK, out)
}

type generateRequest struct {
	Count      int    `json:"count"`
	SearchTerm string `json:"searchTerm"`
	Source     string `json:"source"`
}

func (s *Server) generateLeads(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Count <= 0 {
		req.Count = finder.DefaultLimit
	}
	if req.Count > maxGenerateCount {
		writeError(w, r, invalid(eris.Errorf("count must be at most %d", maxGenerateCount)))
		return
	}
	if req.Source == "" {
		req.Source = finder.DefaultGenerateSource
	}

	settings, err := s.svc.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	info := pipeline.ScrapeInfo{Source: req.Source, ProxiesEnabled: settings.UseProxies}
	if settings.UseProxies {
		info.ProxyUsed = s.pickProxy()
	}

	res, err := s.svc.Generate(r.Context(), s.gen, req.Count, req.SearchTerm, info)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIngestResponse(res))
}

func (s *Server) pickProxy() string {
	proxies := s.opts.Proxies
	if len(proxies) == 0 {
		proxies = finder.DefaultProxies
	}
	return proxies[rand.IntN(len(proxies))]
}

type findRequest struct {
	SearchTerm string `json:"searchTerm"`
	Limit      int    `json:"limit"`
	Source     string `json:"source"`
	Prioritize bool   `json:"prioritize"`
}

type findResponse struct {
	ingestResponse
	Keywords  []string `json:"keywords"`
	Requests  int      `json:"requests"`
	ProxyUsed string   `json:"proxyUsed,omitempty"`
}

// findLeads serves POST /api/find: a paced catalog search whose results are
// merged into the caller's collection.
func (s *Server) findLeads(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.SearchTerm) == "" {
		writeError(w, r, invalid(eris.New("searchTerm is required")))
		return
	}

	settings, err := s.svc.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Source == "" {
		req.Source = settings.DefaultSource
	}
	if req.Limit <= 0 {
		req.Limit = s.opts.FindLimit
	}

	found, err := s.finder.Search(r.Context(), req.SearchTerm, finder.Options{
		Limit:        req.Limit,
		UseProxies:   settings.UseProxies,
		Proxies:      s.opts.Proxies,
		RequestDelay: time.Duration(settings.RequestDelaySecs) * s.opts.DelayUnit,
		Source:       req.Source,
		Prioritize:   req.Prioritize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Finder ids are per search; stored leads get fresh ones.
	batch := model.CloneLeads(found.Leads)
	for i := range batch {
		batch[i].ID = ""
	}
	res, err := s.svc.Ingest(r.Context(), batch, pipeline.ScrapeInfo{
		Source:         req.Source,
		ProxiesEnabled: settings.UseProxies,
		ProxyUsed:      found.ProxyUsed,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, findResponse{
		ingestResponse: newIngestResponse(res),
		Keywords:       found.Keywords,
		Requests:       found.Requests,
		ProxyUsed:      found.ProxyUsed,
	})
}

type validateRequest struct {
	Criteria   string `json:"criteria"`
	Strictness int    `json:"strictness"`
}

type validateResponse struct {
	Leads  []model.Lead  `json:"leads"`
	Counts search.Counts `json:"counts"`
}

func (s *Server) validateLeads(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Criteria) == "" {
		req.Criteria = s.opts.Criteria
	}
	if req.Strictness == 0 {
		req.Strictness = s.opts.Strictness
	}

	leads, err := s.svc.ValidateStored(r.Context(), req.Criteria, req.Strictness)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Leads: leads, Counts: search.CountByPriority(leads)})
}

type deleteRequest struct {
	IDs    []string `json:"ids"`
	All    bool     `json:"all"`
	Reason string   `json:"reason"`
}

func (s *Server) deleteLeads(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		n   int
		err error
	)
	switch {
	case req.All:
		n, err = s.svc.Clear(r.Context(), req.Reason)
	case len(req.IDs) > 0:
		n, err = s.svc.Delete(r.Context(), req.IDs, req.Reason)
	default:
		err = invalid(eris.New("ids or all is required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// leadPatch holds the editable fields; nil leaves a field unchanged.
type leadPatch struct {
	Name     *string `json:"name"`
	JobTitle *string `json:"jobTitle"`
	Company  *string `json:"company"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Priority *string `json:"priority"`
	Source   *string `json:"source"`
}

func (p leadPatch) apply(l model.Lead) (model.Lead, error) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&l.Name, p.Name)
	set(&l.JobTitle, p.JobTitle)
	set(&l.Company, p.Company)
	set(&l.Email, p.Email)
	set(&l.Phone, p.Phone)
	set(&l.Source, p.Source)
	if p.Priority != nil {
		pr, ok := model.ParsePriority(*p.Priority)
		if !ok {
			return l, eris.Errorf("unknown priority %q", *p.Priority)
		}
		l.Priority = pr
	}
	if l.Name == "" || l.Company == "" {
		return l, eris.New("name and company are required")
	}
	return l, nil
}

type modifyResponse struct {
	Lead    model.Lead `json:"lead"`
	Changed []string   `json:"changed"`
}

func (s *Server) modifyLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch leadPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	leads, err := s.svc.Leads(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	idx := slices.IndexFunc(leads, func(l model.Lead) bool { return l.ID == id })
	if idx < 0 {
		writeError(w, r, eris.Wrapf(store.ErrNotFound, "lead %s", id))
		return
	}
	updated, err := patch.apply(leads[idx])
	if err != nil {
		writeError(w, r, invalid(err))
		return
	}

	lead, changed, err := s.svc.Modify(r.Context(), updated)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, modifyResponse{Lead: lead, Changed: changed})
}

func (s *Server) exportLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := export.FormatCSV
	if raw := q.Get("format"); raw != "" {
		f, err := export.ParseFormat(raw)
		if err != nil {
			writeError(w, r, invalid(err))
			return
		}
		format = f
	}
	fields, err := export.ParseFields(q.Get("fields"))
	if err != nil {
		writeError(w, r, invalid(err))
		return
	}
	priority := q.Get("priority")
	if priority != "" && priority != search.All {
		if _, ok := model.ParsePriority(priority); !ok {
			writeError(w, r, invalid(eris.Errorf("unknown priority %q", priority)))
			return
		}
	}

	var buf bytes.Buffer
	n, err := s.svc.Export(r.Context(), &buf, export.Options{Format: format, Fields: fields, Priority: priority})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.FileName(format, time.Now()),
	}))
	w.Header().Set("X-Export-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
