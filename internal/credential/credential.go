// Package credential resolves the API key required by the AI-backed lead
// operations.
package credential

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/store"
)

var (
	// ErrMissing is returned when no provider holds a key.
	ErrMissing = eris.New("credential: api key not configured")
	// ErrBadFormat is returned by CheckKeyFormat for a key with the wrong prefix.
	ErrBadFormat = eris.New("credential: invalid api key format")
)

// DefaultKeyPrefix is the prefix a well-formed key starts with.
const DefaultKeyPrefix = "sk-"

// Provider yields the API key or ErrMissing.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static returns a fixed key, typically from configuration.
type Static string

func (s Static) Token(_ context.Context) (string, error) {
	key := strings.TrimSpace(string(s))
	if key == "" {
		return "", ErrMissing
	}
	return key, nil
}

// SettingsProvider reads the key saved in the owner's settings.
type SettingsProvider struct {
	Store store.Store
}

func (p SettingsProvider) Token(ctx context.Context) (string, error) {
	st, err := p.Store.GetSettings(ctx)
	if err != nil {
		return "", eris.Wrap(err, "credential: load settings")
	}
	if st == nil || strings.TrimSpace(st.OpenAIKey) == "" {
		return "", ErrMissing
	}
	return strings.TrimSpace(st.OpenAIKey), nil
}

// Chain returns the first key any provider yields. Errors other than
// ErrMissing stop the chain.
type Chain []Provider

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		key, err := p.Token(ctx)
		if err == nil {
			return key, nil
		}
		if !eris.Is(err, ErrMissing) {
			return "", err
		}
	}
	return "", ErrMissing
}

// CheckKeyFormat verifies key is present and starts with prefix. An empty
// prefix means DefaultKeyPrefix.
func CheckKeyFormat(key, prefix string) error {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissing
	}
	if !strings.HasPrefix(key, prefix) {
		return eris.Wrapf(ErrBadFormat, "expected prefix %q", prefix)
	}
	return nil
}

// IsMissing reports whether err means no key is configured.
func IsMissing(err error) bool {
	return eris.Is(err, ErrMissing)
}
