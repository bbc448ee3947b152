package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-harvest/internal/audit"
	"github.com/sells-group/lead-harvest/internal/classify"
	"github.com/sells-group/lead-harvest/internal/credential"
	"github.com/sells-group/lead-harvest/internal/finder"
	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/pipeline"
	"github.com/sells-group/lead-harvest/internal/realtime"
	"github.com/sells-group/lead-harvest/internal/resilience"
	"github.com/sells-group/lead-harvest/internal/store"
)

const testUser = "user-1"

type fixture struct {
	handler http.Handler
	st      store.Store
	hub     *realtime.Hub
}

func newFixture(t *testing.T, apiKey string) fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c, err := classify.New(classify.WithSeed(11))
	require.NoError(t, err)

	retry := resilience.RetryConfig{MaxAttempts: 1}
	rec := audit.NewRecorder(audit.NewStoreLog(st, retry), m)
	creds := credential.Chain{credential.Static(apiKey), credential.SettingsProvider{Store: st}}
	hub := realtime.NewHub(16)

	svc := pipeline.NewService(pipeline.New(c, creds, rec, m), st,
		pipeline.WithHub(hub),
		pipeline.WithMetrics(m),
		pipeline.WithRetry(retry),
		pipeline.WithDefaultSettings(model.Settings{UseProxies: true, RequestDelaySecs: 2, RespectRobotsTxt: true, DefaultSource: "linkedin"}),
	)

	f, err := finder.New(finder.WithRand(rand.New(rand.NewPCG(1, 2))))
	require.NoError(t, err)
	gen := finder.NewGenerator(finder.WithGeneratorRand(rand.New(rand.NewPCG(3, 4))))

	srv := NewServer(svc, f, gen, hub, Options{
		Criteria:   "CEO OR Founder",
		Strictness: 5,
		FindLimit:  5,
		DelayUnit:  time.Microsecond,
		Gatherer:   reg,
	})
	return fixture{handler: srv.Router(), st: st, hub: hub}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DefaultUserHeader, testUser)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f fixture) seed(t *testing.T, leads ...model.Lead) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/leads/import", importRequest{Leads: leads, Source: "Seed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_RequiresOwner(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "user must be logged in")
}

func TestAPI_CORSPreflight(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/api/leads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestImportAndList(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/leads/import", importRequest{
		Source: "Website",
		Leads: []model.Lead{
			{Name: "Ann Lee", JobTitle: "CEO", Company: "Acme", Email: "ann@acme.io", Priority: model.PriorityHigh},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/leads/import", importRequest{
		Source: "Website",
		Leads: []model.Lead{
			{Name: "Ann Lee", JobTitle: "CEO", Company: "Acme"},
			{Name: "Bob Ray", JobTitle: "Analyst", Company: "Initech"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ing := decodeBody[ingestResponse](t, rec)
	require.Len(t, ing.Added, 1)
	assert.Equal(t, "Bob Ray", ing.Added[0].Name)
	assert.Equal(t, 1, ing.Duplicates)
	assert.Equal(t, 2, ing.Total)

	rec = f.do(t, http.MethodGet, "/api/leads", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[listResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Leads, 2)
	assert.Equal(t, []string{"Website"}, list.Sources)

	rec = f.do(t, http.MethodGet, "/api/leads?search=acme&priority=high", nil)
	list = decodeBody[listResponse](t, rec)
	require.Len(t, list.Leads, 1)
	assert.Equal(t, "Ann Lee", list.Leads[0].Name)

	rec = f.do(t, http.MethodGet, "/api/leads?filter=jobTitle:equals:analyst", nil)
	list = decodeBody[listResponse](t, rec)
	require.Len(t, list.Leads, 1)
	assert.Equal(t, "Bob Ray", list.Leads[0].Name)

	rec = f.do(t, http.MethodGet, "/api/leads?filter=jobTitle:like:x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/leads/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":2,"high":1,"medium":0,"low":1,"confidence":50}`, rec.Body.String())
}

func TestImport_ScopedToOwner(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t, model.Lead{Name: "Ann", Company: "Acme"})

	req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
	req.Header.Set(DefaultUserHeader, "someone-else")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[listResponse](t, rec).Leads)
}

func TestImport_Multipart(t *testing.T) {
	f := newFixture(t, "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, "Name,Job Title,Company,Email\nAnn Lee,CTO,Acme,ann@acme.io\n,Nobody,Nowhere,\nBob Ray,VP Sales,Initech,\n")
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("source", "Trade Show"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(DefaultUserHeader, testUser)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ing := decodeBody[ingestResponse](t, rec)
	assert.Len(t, ing.Added, 2)
	assert.Len(t, ing.Skipped, 1)
	assert.Equal(t, "Trade Show", ing.Added[0].Source)
}

func TestImport_BadJSON(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", strings.NewReader(`{"leads": [`))
	req.Header.Set(DefaultUserHeader, testUser)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_RequiresCredential(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/leads/generate", generateRequest{Count: 3, SearchTerm: "marketing"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	entries, err := f.st.ListAudit(store.WithOwner(context.Background(), testUser), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerate_WithSavedKey(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPut, "/api/settings", map[string]any{"open_ai_key": "sk-saved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/leads/generate", generateRequest{Count: 3, SearchTerm: "marketing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ing := decodeBody[ingestResponse](t, rec)
	assert.Equal(t, 3, len(ing.Added)+ing.Duplicates)

	rec = f.do(t, http.MethodGet, "/api/audit?action=scrape", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Entries []model.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, finder.DefaultGenerateSource, body.Entries[0].Source)
	assert.Contains(t, finder.DefaultProxies, body.Entries[0].ProxyUsed)
}

func TestGenerate_CountLimit(t *testing.T) {
	f := newFixture(t, "sk-test")
	rec := f.do(t, http.MethodPost, "/api/leads/generate", generateRequest{Count: maxGenerateCount + 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFind(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/find", findRequest{SearchTerm: "tech"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Added     []model.Lead `json:"added"`
		Keywords  []string     `json:"keywords"`
		Requests  int          `json:"requests"`
		ProxyUsed string       `json:"proxyUsed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, finder.ExpandKeywords("tech"), out.Keywords)
	assert.LessOrEqual(t, len(out.Added), 5)
	assert.GreaterOrEqual(t, out.Requests, len(out.Added))
	for _, l := range out.Added {
		assert.NotContains(t, l.ID, "found-")
		assert.Equal(t, "linkedin", l.Source)
	}

	rec = f.do(t, http.MethodPost, "/api/find", findRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFind_Prioritize(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/find", findRequest{SearchTerm: "marketing", Limit: 20, Prioritize: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Added []model.Lead `json:"added"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Added)
	for _, l := range out.Added {
		assert.Equal(t, finder.QuickPrioritize(l.JobTitle), l.Priority, l.JobTitle)
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t, "sk-test")
	f.seed(t,
		model.Lead{Name: "Ann Lee", JobTitle: "CEO", Company: "Acme Corp", Email: "ann@acme.io", Phone: "(555) 123-4567"},
		model.Lead{Name: "Bob Ray", JobTitle: "Intern", Company: "Initech"},
	)

	rec := f.do(t, http.MethodPost, "/api/leads/validate", validateRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[validateResponse](t, rec)
	require.Len(t, out.Leads, 2)
	assert.Equal(t, 2, out.Counts.Total)
	for _, l := range out.Leads {
		assert.True(t, l.Validated())
		assert.NotNil(t, l.AIScore)
	}

	rec = f.do(t, http.MethodGet, "/api/audit/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[audit.Stats](t, rec)
	assert.Equal(t, 2, stats.TotalLeadsValidated)
	assert.Equal(t, 1, stats.TotalScrapingOperations)
}

func TestValidate_NoCredential(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/api/leads/validate", validateRequest{Criteria: "CEO"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t,
		model.Lead{ID: "a", Name: "A", Company: "X"},
		model.Lead{ID: "b", Name: "B", Company: "Y"},
		model.Lead{ID: "c", Name: "C", Company: "Z"},
	)

	rec := f.do(t, http.MethodDelete, "/api/leads", deleteRequest{IDs: []string{"a", "missing"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/leads", deleteRequest{All: true, Reason: "reset"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/leads", deleteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModify(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t, model.Lead{ID: "a", Name: "Ann", JobTitle: "CTO", Company: "Acme", Priority: model.PriorityHigh})

	rec := f.do(t, http.MethodPatch, "/api/leads/a", map[string]any{"company": "Acme Inc", "priority": "medium"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[modifyResponse](t, rec)
	assert.Equal(t, []string{"company", "priority"}, out.Changed)
	assert.Equal(t, "Acme Inc", out.Lead.Company)
	assert.Equal(t, model.PriorityMedium, out.Lead.Priority)
	assert.Equal(t, "CTO", out.Lead.JobTitle)

	rec = f.do(t, http.MethodPatch, "/api/leads/a", map[string]any{"company": "Acme Inc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[modifyResponse](t, rec).Changed)

	rec = f.do(t, http.MethodPatch, "/api/leads/a", map[string]any{"priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/leads/a", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/leads/nope", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t,
		model.Lead{Name: "Ann", JobTitle: "CTO", Company: "Acme", Priority: model.PriorityHigh},
		model.Lead{Name: "Bob", JobTitle: "Analyst", Company: "Initech", Priority: model.PriorityLow},
	)

	rec := f.do(t, http.MethodGet, "/api/leads/export?fields=name,company&priority=high", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "leads-export-")
	assert.Equal(t, "1", rec.Header().Get("X-Export-Count"))
	assert.Contains(t, rec.Body.String(), "Ann")
	assert.NotContains(t, rec.Body.String(), "Bob")

	rec = f.do(t, http.MethodGet, "/api/leads/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Export-Count"))

	rec = f.do(t, http.MethodGet, "/api/leads/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/leads/export?fields=salary", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/leads/export?priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/audit/stats", nil)
	assert.Equal(t, 3, decodeBody[audit.Stats](t, rec).TotalLeadsExported)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	f.handler.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "harvest_export_leads_total")
}

func TestAudit_ListAndClear(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t, model.Lead{Name: "Ann", Company: "Acme"})

	rec := f.do(t, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"SCRAPE"`)

	rec = f.do(t, http.MethodGet, "/api/audit?action=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/audit", nil)
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())
}

func TestSettings(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[settingsView](t, rec)
	assert.False(t, view.HasAPIKey)
	assert.Equal(t, 2, view.RequestDelaySecs)
	assert.True(t, view.UseProxies)

	rec = f.do(t, http.MethodPut, "/api/settings", map[string]any{
		"open_ai_key":        "sk-abcdef123456",
		"request_delay_secs": 4,
		"use_proxies":        false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decodeBody[settingsView](t, rec)
	assert.True(t, view.HasAPIKey)
	assert.Equal(t, "***********3456", view.APIKeyHint)
	assert.Equal(t, 4, view.RequestDelaySecs)
	assert.False(t, view.UseProxies)
	assert.Equal(t, "linkedin", view.DefaultSource)

	rec = f.do(t, http.MethodPut, "/api/settings", map[string]any{"request_delay_secs": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/settings", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings_TestKey(t *testing.T) {
	f := newFixture(t, "")

	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"well formed", "sk-123", true},
		{"wrong prefix", "pk-123", false},
		{"none saved", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/settings/test-key", testKeyRequest{Key: tt.key})
			require.Equal(t, http.StatusOK, rec.Code)
			var out struct {
				Valid bool `json:"valid"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, tt.valid, out.Valid)
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", MaskKey("abc"))
	assert.Equal(t, "**cdef", MaskKey("abcdef"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusPreconditionFailed, statusFor(&pipeline.ConfigurationError{Err: credential.ErrMissing}))
	assert.Equal(t, http.StatusUnauthorized, statusFor(store.ErrNotLoggedIn))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(invalid(io.EOF)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
