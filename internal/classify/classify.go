// Package classify maps a lead's job title to a priority tier and AI score.
package classify

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
)

// Scheme selects how an AI score is derived from a priority tier.
type Scheme string

const (
	// SchemeStrictness scales the score with the caller's strictness.
	SchemeStrictness Scheme = "strictness"
	// SchemeFixedRange draws the score from a fixed range per tier.
	SchemeFixedRange Scheme = "fixed_range"
)

// KeywordSet selects the fallback keywords that make a title medium priority.
type KeywordSet string

const (
	// KeywordsDirector matches manager, director and "head of".
	KeywordsDirector KeywordSet = "director"
	// KeywordsLead matches manager, lead and head.
	KeywordsLead KeywordSet = "lead"
)

var fallbackKeywords = map[KeywordSet][]string{
	KeywordsDirector: {"manager", "director", "head of"},
	KeywordsLead:     {"manager", "lead", "head"},
}

// Strictness bounds.
const (
	MinStrictness     = 1
	MaxStrictness     = 10
	DefaultStrictness = 5
)

// DowngradePenalty is subtracted from the score of a lead that failed validation.
const DowngradePenalty = 4

// criteriaSeparator splits a criteria string into rules. The separator itself
// is case-sensitive; rules are lower-cased after splitting.
const criteriaSeparator = "OR"

// Result is the tier and score assigned to one lead.
type Result struct {
	Priority model.Priority `json:"priority"`
	AIScore  int            `json:"aiScore"`
}

// Classifier assigns priority tiers. It is safe for concurrent use.
type Classifier struct {
	scheme   Scheme
	keywords KeywordSet

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithScheme selects the score derivation scheme.
func WithScheme(s Scheme) Option {
	return func(c *Classifier) { c.scheme = s }
}

// WithKeywords selects the medium-priority fallback keyword set.
func WithKeywords(k KeywordSet) Option {
	return func(c *Classifier) { c.keywords = k }
}

// WithRand injects the random source used by SchemeFixedRange.
func WithRand(r *rand.Rand) Option {
	return func(c *Classifier) { c.rng = r }
}

// WithSeed seeds a deterministic PCG random source. A zero seed is ignored.
func WithSeed(seed uint64) Option {
	return func(c *Classifier) {
		if seed != 0 {
			c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		}
	}
}

// New creates a Classifier. Defaults: SchemeFixedRange, KeywordsLead and a
// time-seeded random source.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		scheme:   SchemeFixedRange,
		keywords: KeywordsLead,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := ValidateScheme(c.scheme); err != nil {
		return nil, err
	}
	if _, ok := fallbackKeywords[c.keywords]; !ok {
		return nil, eris.Errorf("classify: unknown keyword set %q", c.keywords)
	}
	if c.rng == nil {
		now := uint64(time.Now().UnixNano())
		c.rng = rand.New(rand.NewPCG(now, now>>17))
	}
	return c, nil
}

// ValidateScheme returns an error for unknown schemes.
func ValidateScheme(s Scheme) error {
	switch s {
	case SchemeStrictness, SchemeFixedRange:
		return nil
	}
	return eris.Errorf("classify: unknown scheme %q", s)
}

// Scheme returns the configured scheme.
func (c *Classifier) Scheme() Scheme { return c.scheme }

// Keywords returns the configured fallback keyword set.
func (c *Classifier) Keywords() KeywordSet { return c.keywords }

// ParseCriteria splits "ruleA OR ruleB" into trimmed, lower-cased rules.
// Blank rules are kept: an empty rule is a substring of every title, so an
// empty criteria string or a trailing separator makes every lead high.
func ParseCriteria(criteria string) []string {
	parts := strings.Split(criteria, criteriaSeparator)
	rules := make([]string, 0, len(parts))
	for _, p := range parts {
		rules = append(rules, strings.ToLower(strings.TrimSpace(p)))
	}
	return rules
}

// Tier returns the priority tier for title given parsed rules.
func (c *Classifier) Tier(title string, rules []string) model.Priority {
	return tier(strings.ToLower(title), rules, fallbackKeywords[c.keywords])
}

func tier(lowerTitle string, rules, fallback []string) model.Priority {
	for _, r := range rules {
		if strings.Contains(lowerTitle, r) {
			return model.PriorityHigh
		}
	}
	for _, k := range fallback {
		if strings.Contains(lowerTitle, k) {
			return model.PriorityMedium
		}
	}
	return model.PriorityLow
}

// Classify assigns a tier and score to title. strictness is only used by
// SchemeStrictness; values outside 1..10 are clamped and 0 means default.
func (c *Classifier) Classify(title, criteria string, strictness int) Result {
	return c.ClassifyRules(title, ParseCriteria(criteria), strictness)
}

// ClassifyRules is Classify with pre-parsed rules, for batch callers.
func (c *Classifier) ClassifyRules(title string, rules []string, strictness int) Result {
	p := c.Tier(title, rules)
	return Result{Priority: p, AIScore: c.score(p, strictness)}
}

func (c *Classifier) score(p model.Priority, strictness int) int {
	if c.scheme == SchemeStrictness {
		return StrictnessScore(p, ClampStrictness(strictness))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fixedRangeScore(c.rng, p)
}

// ClampStrictness maps 0 to the default and clamps to 1..10.
func ClampStrictness(s int) int {
	switch {
	case s == 0:
		return DefaultStrictness
	case s < MinStrictness:
		return MinStrictness
	case s > MaxStrictness:
		return MaxStrictness
	}
	return s
}

// StrictnessScore derives a score from the tier and strictness:
// high max(8, 10-(10-s)), medium max(5, 8-(10-s)), low max(1, 5-(10-s)).
func StrictnessScore(p model.Priority, strictness int) int {
	slack := MaxStrictness - strictness
	switch p {
	case model.PriorityHigh:
		return max(8, 10-slack)
	case model.PriorityMedium:
		return max(5, 8-slack)
	default:
		return max(1, 5-slack)
	}
}

// fixedRangeScore draws high from [9,10], medium from [7,8], low from [1,6].
func fixedRangeScore(r *rand.Rand, p model.Priority) int {
	switch p {
	case model.PriorityHigh:
		return 9 + r.IntN(2)
	case model.PriorityMedium:
		return 7 + r.IntN(2)
	default:
		return 1 + r.IntN(6)
	}
}

// Downgrade forces a lead that failed validation to low priority and reduces
// its score by DowngradePenalty, floored at 1.
func Downgrade(r Result) Result {
	return Result{
		Priority: model.PriorityLow,
		AIScore:  max(1, r.AIScore-DowngradePenalty),
	}
}
