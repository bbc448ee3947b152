package finder

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/lead-harvest/internal/model"
)

var (
	companyTypes   = []string{"Tech", "Finance", "Healthcare", "Education", "Manufacturing", "Retail"}
	companyPrefix  = []string{"Tech", "Next", "Smart", "Cloud", "Digital", "Future", "Global"}
	jobLevels      = []string{"C-Level", "VP", "Director", "Manager", "Lead", "Specialist"}
	jobFunctions   = []string{"Technology", "Marketing", "Sales", "Operations", "Product", "Finance"}
	firstNames     = []string{"John", "Sarah", "Michael", "Emma", "David", "Olivia", "James", "Sophia", "William", "Ava"}
	lastNames      = []string{"Smith", "Johnson", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez", "Wilson"}
	altSources     = []string{"Twitter", "CrunchBase"}
	domainStripper = regexp.MustCompile(`[^a-z0-9]`)
)

// DefaultGenerateSource is used when Generate is called without a source.
const DefaultGenerateSource = "LinkedIn"

// Generator fabricates plausible leads for a search term. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorRand injects the random source.
func WithGeneratorRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) { g.rng = r }
}

// WithClock sets the clock used for generated ids.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator with a time-seeded random source.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		now := uint64(time.Now().UnixNano())
		g.rng = rand.New(rand.NewPCG(now, now>>17))
	}
	return g
}

// Generate returns count leads shaped by searchTerm. Generated leads carry an
// initial priority from the job level and no AI score; ids are
// gen-<unix-ms>-<index>.
func (g *Generator) Generate(count int, searchTerm, source string) []model.Lead {
	if count <= 0 {
		return nil
	}
	if source == "" {
		source = DefaultGenerateSource
	}
	sources := append([]string{source}, altSources...)
	term := strings.TrimSpace(searchTerm)
	lowerTerm := strings.ToLower(term)
	stamp := g.now().UnixMilli()

	g.mu.Lock()
	defer g.mu.Unlock()

	leads := make([]model.Lead, 0, count)
	for i := range count {
		company := g.companyName(term)
		level := pick(g.rng, jobLevels)
		function := pick(g.rng, jobFunctions)
		first := pick(g.rng, firstNames)
		last := pick(g.rng, lastNames)

		domain := domainStripper.ReplaceAllString(strings.ToLower(company), "") + ".com"
		phone := fmt.Sprintf("(%d) %d-%d",
			g.rng.IntN(900)+100,
			g.rng.IntN(900)+100,
			g.rng.IntN(9000)+1000,
		)

		leads = append(leads, model.Lead{
			ID:       fmt.Sprintf("gen-%d-%d", stamp, i),
			Name:     first + " " + last,
			JobTitle: jobTitle(lowerTerm, level, function),
			Company:  company,
			Email:    strings.ToLower(first) + "." + strings.ToLower(last) + "@" + domain,
			Phone:    phone,
			Priority: levelPriority(level),
			Source:   pick(g.rng, sources),
		})
	}
	return leads
}

func (g *Generator) companyName(term string) string {
	kind := pick(g.rng, companyTypes)
	if term == "" {
		return pick(g.rng, companyPrefix) + " " + kind
	}
	name := capitalize(strings.Fields(term)[0]) + " " + kind
	if g.rng.Float64() > 0.5 {
		name += " Solutions"
	} else if g.rng.Float64() > 0.7 {
		name += " Inc"
	}
	return name
}

func capitalize(word string) string {
	r, n := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(r)) + word[n:]
}

func jobTitle(lowerTerm, level, function string) string {
	switch {
	case strings.Contains(lowerTerm, "marketing"):
		return level + " of Marketing"
	case strings.Contains(lowerTerm, "sales"):
		return level + " of Sales"
	case strings.Contains(lowerTerm, "tech"):
		if level == "C-Level" {
			return "CTO"
		}
		return level + " of Technology"
	default:
		return level + " of " + function
	}
}

func levelPriority(level string) model.Priority {
	switch level {
	case "C-Level", "VP":
		return model.PriorityHigh
	case "Director", "Manager":
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func pick(r *rand.Rand, xs []string) string {
	return xs[r.IntN(len(xs))]
}
