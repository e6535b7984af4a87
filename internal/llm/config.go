package llm

import (
	"fmt"

	"github.com/pavelanni/pairwise/internal/pairing"
)

// Provider names accepted by NewCollaborator.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = providerOpenAI
	ProviderAnthropic = providerAnthropic
)

const defaultOpenAIModel = "gpt-4o-mini"

// Config selects and configures the AI collaborator.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// NewCollaborator builds the collaborator named by cfg.Provider. It returns
// nil for ProviderNone, which makes the ai strategy always fall back.
func NewCollaborator(cfg Config) (pairing.Collaborator, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		m := cfg.Model
		if m == "" {
			m = defaultOpenAIModel
		}
		return New(cfg.BaseURL, cfg.APIKey, m), nil
	case ProviderAnthropic:
		c, err := NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
