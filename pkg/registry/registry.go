package registry

import "strings"

// ProviderUnknown is reported for identifiers without a recognised prefix.
const ProviderUnknown = "unknown"

// ModelConfig describes a single selectable model.
type ModelConfig struct {
	ID              string  `json:"id" mapstructure:"id" validate:"required"`
	Name            string  `json:"name" mapstructure:"name"`
	Provider        string  `json:"provider" mapstructure:"provider"`
	UpstreamID      string  `json:"upstream_id" mapstructure:"upstream_id"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens" validate:"min=0"`
	CostPer1kInput  float64 `json:"cost_per_1k_input" mapstructure:"cost_per_1k_input" validate:"min=0"`
	CostPer1kOutput float64 `json:"cost_per_1k_output" mapstructure:"cost_per_1k_output" validate:"min=0"`
	Available       bool    `json:"available" mapstructure:"available"`
}

// providerPrefixes maps identifier prefixes to provider names.
var providerPrefixes = []struct {
	prefix   string
	provider string
}{
	{"gpt-", "openai"},
	{"claude-", "anthropic"},
	{"gemini-", "google"},
	{"mistral-", "mistral"},
}

var defaultModels = []ModelConfig{
	{
		ID:              "gpt-4o",
		Name:            "GPT-4o",
		Provider:        "openai",
		UpstreamID:      "openai/gpt-4o",
		MaxTokens:       128000,
		CostPer1kInput:  0.0025,
		CostPer1kOutput: 0.01,
		Available:       true,
	},
	{
		ID:              "gpt-4o-mini",
		Name:            "GPT-4o mini",
		Provider:        "openai",
		UpstreamID:      "openai/gpt-4o-mini",
		MaxTokens:       128000,
		CostPer1kInput:  0.00015,
		CostPer1kOutput: 0.0006,
		Available:       true,
	},
	{
		ID:              "claude-3-5-sonnet",
		Name:            "Claude 3.5 Sonnet",
		Provider:        "anthropic",
		UpstreamID:      "anthropic/claude-3-5-sonnet-20240620",
		MaxTokens:       200000,
		CostPer1kInput:  0.003,
		CostPer1kOutput: 0.015,
		Available:       true,
	},
	{
		ID:              "claude-3-5-haiku",
		Name:            "Claude 3.5 Haiku",
		Provider:        "anthropic",
		UpstreamID:      "anthropic/claude-3-haiku-20240307",
		MaxTokens:       200000,
		CostPer1kInput:  0.00025,
		CostPer1kOutput: 0.00125,
		Available:       true,
	},
	{
		ID:              "gemini-1-5-pro",
		Name:            "Gemini 1.5 Pro",
		Provider:        "google",
		UpstreamID:      "google/gemini-pro-1.5",
		MaxTokens:       1000000,
		CostPer1kInput:  0.0035,
		CostPer1kOutput: 0.0105,
		Available:       true,
	},
	{
		ID:              "gemini-1-5-flash",
		Name:            "Gemini 1.5 Flash",
		Provider:        "google",
		UpstreamID:      "google/gemini-flash-1.5",
		MaxTokens:       1000000,
		CostPer1kInput:  0.000075,
		CostPer1kOutput: 0.0003,
		Available:       true,
	},
	{
		ID:              "mistral-large",
		Name:            "Mistral Large",
		Provider:        "mistral",
		UpstreamID:      "mistralai/mistral-large-latest",
		MaxTokens:       32768,
		CostPer1kInput:  0.007,
		CostPer1kOutput: 0.024,
		Available:       true,
	},
	{
		ID:              "mistral-medium",
		Name:            "Mistral Medium",
		Provider:        "mistral",
		UpstreamID:      "mistralai/mistral-medium",
		MaxTokens:       32768,
		CostPer1kInput:  0.0027,
		CostPer1kOutput: 0.0081,
		Available:       true,
	},
}

// DefaultModels returns a copy of the built-in catalog.
func DefaultModels() []ModelConfig {
	out := make([]ModelConfig, len(defaultModels))
	copy(out, defaultModels)
	return out
}

// Registry is a read-only model catalog. It is safe for concurrent use
// because nothing mutates it after New returns.
type Registry struct {
	order  []string
	models map[string]ModelConfig
}

// New builds a registry from the built-in catalog. Extra entries override
// built-in models with the same ID and are appended otherwise. Entries
// without a provider get the one derived from their ID.
func New(extra ...ModelConfig) *Registry {
	r := &Registry{
		order:  make([]string, 0, len(defaultModels)+len(extra)),
		models: make(map[string]ModelConfig, len(defaultModels)+len(extra)),
	}

	for _, list := range [][]ModelConfig{DefaultModels(), extra} {
		for _, m := range list {
			if m.ID == "" {
				continue
			}
			if m.Provider == "" {
				m.Provider = ProviderFor(m.ID)
			}
			if _, exists := r.models[m.ID]; !exists {
				r.order = append(r.order, m.ID)
			}
			r.models[m.ID] = m
		}
	}

	return r
}

// Get returns the catalog entry for id.
func (r *Registry) Get(id string) (ModelConfig, bool) {
	m, ok := r.models[id]
	return m, ok
}

// Resolve translates a user-facing identifier into the identifier expected
// by the upstream gateway and reports the provider name. Identifiers with no
// catalog entry (or no upstream mapping) are passed through unchanged. The
// provider of a catalog entry wins over the prefix rule.
func (r *Registry) Resolve(id string) (upstreamID, provider string) {
	m, ok := r.models[id]
	if !ok {
		return id, ProviderFor(id)
	}
	upstreamID = id
	if m.UpstreamID != "" {
		upstreamID = m.UpstreamID
	}
	return upstreamID, m.Provider
}

// List returns all catalog entries in catalog order.
func (r *Registry) List() []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// Available returns the entries flagged as available.
func (r *Registry) Available() []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, m := range r.List() {
		if m.Available {
			out = append(out, m)
		}
	}
	return out
}

// ProviderFor derives the provider name from the identifier prefix.
func ProviderFor(id string) string {
	for _, p := range providerPrefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.provider
		}
	}
	return ProviderUnknown
}
