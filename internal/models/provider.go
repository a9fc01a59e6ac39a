package models

import "time"

// ProviderKind categorizes extraction backends.
type ProviderKind string

const (
	ProviderKindFree      ProviderKind = "free"      // Anonymous web query endpoints
	ProviderKindLocal     ProviderKind = "local"     // Local inference server
	ProviderKindPaid      ProviderKind = "paid"      // Paid API, may be unconfigured
	ProviderKindHeuristic ProviderKind = "heuristic" // Deterministic regex fallback
)

// ProviderConfig configures one AI extraction provider.
type ProviderConfig struct {
	Name        string        `yaml:"name" json:"name"`
	Kind        ProviderKind  `yaml:"kind" json:"kind"`
	Backend     string        `yaml:"backend" json:"backend"` // openai, anthropic, local, web, hosted
	Enabled     *bool         `yaml:"enabled" json:"enabled,omitempty"`
	Priority    int           `yaml:"priority" json:"priority"`
	Model       string        `yaml:"model" json:"model,omitempty"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	APIKeyEnv   string        `yaml:"api_key_env" json:"api_key_env,omitempty"`
	MinDelay    time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// IsEnabled treats a missing enabled flag as true.
func (c ProviderConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
