// Package finder simulates lead discovery: keyword expansion over an embedded
// contact catalog with paced, proxy-rotated requests, and randomized lead
// generation for a search term.
package finder

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-harvest/internal/model"
)

//go:embed catalog.yaml
var catalogYAML []byte

// DefaultLimit caps the leads returned by one search.
const DefaultLimit = 10

// DefaultProxies is the rotation list used when proxies are enabled and none
// are configured.
var DefaultProxies = []string{
	"192.168.1.1:8080",
	"45.86.231.76:3128",
	"103.152.34.230:80",
	"218.32.241.119:8080",
	"91.243.35.42:3128",
}

// expansions is checked in order; the first key contained in the term wins.
var expansions = []struct {
	key   string
	terms []string
}{
	{"ai", []string{"machine learning", "deep learning", "neural networks", "llm", "generative ai"}},
	{"marketing", []string{"digital marketing", "growth hacking", "seo", "content marketing", "social media"}},
	{"sales", []string{"business development", "account executive", "sales representative", "revenue", "deals"}},
	{"tech", []string{"technology", "software", "engineering", "development", "programming"}},
	{"startup", []string{"founder", "entrepreneur", "early-stage", "seed", "venture"}},
	{"finance", []string{"fintech", "banking", "investment", "wealth management", "capital"}},
}

// ExpandKeywords returns term followed by its related keywords.
func ExpandKeywords(term string) []string {
	lower := strings.ToLower(term)
	for _, e := range expansions {
		if strings.Contains(lower, e.key) {
			return append([]string{term}, e.terms...)
		}
	}
	return []string{term}
}

// QuickPrioritize assigns a tier from title keywords alone.
func QuickPrioritize(title string) model.Priority {
	t := strings.ToLower(title)
	switch {
	case containsAny(t, "cto", "vp", "chief", "founder"):
		return model.PriorityHigh
	case containsAny(t, "director", "manager", "head of"):
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type catalogEntry struct {
	Name     string         `yaml:"name"`
	JobTitle string         `yaml:"job_title"`
	Company  string         `yaml:"company"`
	Email    string         `yaml:"email"`
	Phone    string         `yaml:"phone"`
	Priority model.Priority `yaml:"priority"`
	Source   string         `yaml:"source"`
}

// LoadCatalog parses a catalog document.
func LoadCatalog(data []byte) ([]model.Lead, error) {
	var doc struct {
		Leads []catalogEntry `yaml:"leads"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "finder: parse catalog")
	}
	leads := make([]model.Lead, 0, len(doc.Leads))
	for i, e := range doc.Leads {
		if e.Name == "" || e.Company == "" {
			return nil, eris.Errorf("finder: catalog entry %d: name and company are required", i)
		}
		if !e.Priority.Valid() {
			return nil, eris.Errorf("finder: catalog entry %d: unknown priority %q", i, e.Priority)
		}
		leads = append(leads, model.Lead{
			ID:       fmt.Sprintf("catalog-%d", i+1),
			Name:     e.Name,
			JobTitle: e.JobTitle,
			Company:  e.Company,
			Email:    e.Email,
			Phone:    e.Phone,
			Priority: e.Priority,
			Source:   e.Source,
		})
	}
	return leads, nil
}

// Options controls one search.
type Options struct {
	Limit        int
	UseProxies   bool
	Proxies      []string
	RequestDelay time.Duration
	Source       string
	// Prioritize re-tiers found leads with QuickPrioritize instead of
	// keeping the catalog priority.
	Prioritize bool
}

// Result is the outcome of a search.
type Result struct {
	Leads    []model.Lead
	Keywords []string
	Requests int
	// ProxyUsed is the proxy of the last request, empty when proxies were off.
	ProxyUsed string
}

// Finder searches a contact catalog.
type Finder struct {
	catalog []model.Lead

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Finder.
type Option func(*Finder)

// WithCatalog replaces the embedded catalog.
func WithCatalog(leads []model.Lead) Option {
	return func(f *Finder) { f.catalog = model.CloneLeads(leads) }
}

// WithRand injects the random source that orders matches.
func WithRand(r *rand.Rand) Option {
	return func(f *Finder) { f.rng = r }
}

// New creates a Finder over the embedded catalog.
func New(opts ...Option) (*Finder, error) {
	f := &Finder{}
	for _, opt := range opts {
		opt(f)
	}
	if f.catalog == nil {
		leads, err := LoadCatalog(catalogYAML)
		if err != nil {
			return nil, err
		}
		f.catalog = leads
	}
	if f.rng == nil {
		now := uint64(time.Now().UnixNano())
		f.rng = rand.New(rand.NewPCG(now, now>>17))
	}
	return f, nil
}

// Catalog returns a copy of the searchable contacts.
func (f *Finder) Catalog() []model.Lead {
	return model.CloneLeads(f.catalog)
}

// Match returns catalog leads whose job title or company contains any keyword.
func (f *Finder) Match(keywords []string) []model.Lead {
	var out []model.Lead
	for _, l := range f.catalog {
		title := strings.ToLower(l.JobTitle)
		company := strings.ToLower(l.Company)
		for _, k := range keywords {
			k = strings.ToLower(k)
			if strings.Contains(title, k) || strings.Contains(company, k) {
				out = append(out, l.Clone())
				break
			}
		}
	}
	return out
}

// Search expands term and issues one paced request per matching contact until
// opts.Limit unique leads are found or the matches run out. Found leads get
// ids found-1, found-2, ... in discovery order.
func (f *Finder) Search(ctx context.Context, term string, opts Options) (*Result, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, eris.New("finder: search term is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	proxies := opts.Proxies
	if opts.UseProxies && len(proxies) == 0 {
		proxies = DefaultProxies
	}

	keywords := ExpandKeywords(term)
	matches := f.Match(keywords)
	res := &Result{Keywords: keywords}

	f.mu.Lock()
	order := f.rng.Perm(len(matches))
	f.mu.Unlock()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.RequestDelay), 1)
	}

	log := zap.L().With(zap.String("term", term), zap.Strings("keywords", keywords))
	seen := make(map[model.LeadKey]bool, len(matches))
	proxyIdx := 0

	for _, i := range order {
		if len(res.Leads) >= opts.Limit {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			return res, eris.Wrap(err, "finder: wait for request slot")
		}
		if opts.UseProxies {
			proxyIdx = (proxyIdx + 1) % len(proxies)
			res.ProxyUsed = proxies[proxyIdx]
		}
		res.Requests++

		lead := matches[i]
		if seen[lead.Key()] {
			continue
		}
		seen[lead.Key()] = true
		lead.ID = fmt.Sprintf("found-%d", len(res.Leads)+1)
		if opts.Source != "" {
			lead.Source = opts.Source
		}
		if opts.Prioritize {
			lead.Priority = QuickPrioritize(lead.JobTitle)
		}
		res.Leads = append(res.Leads, lead)
		log.Debug("finder: lead found",
			zap.String("name", lead.Name),
			zap.String("company", lead.Company),
			zap.String("proxy", res.ProxyUsed),
		)
	}

	log.Info("finder: search complete",
		zap.Int("matches", len(matches)),
		zap.Int("found", len(res.Leads)),
		zap.Int("requests", res.Requests),
	)
	return res, nil
}
