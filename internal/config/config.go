// Package config provides configuration management for the gateway: a
// YAML file loaded into a Config struct, the shape the teacher's
// internal/config package uses, generalized (per SPEC_FULL.md §10) to the
// wider field set the expanded spec needs — provider credential pools,
// OAuth client settings, and a storage path, none of which the teacher's
// narrower single-tenant config carries.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Port    int    `yaml:"port"`
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log-file"`

	ProxyURL string `yaml:"proxy-url"`

	StoragePath string `yaml:"storage-path"`
	AdminAPIKey string `yaml:"admin-api-key"`

	Providers []ProviderConfig `yaml:"providers"`
	OAuth     OAuthConfig      `yaml:"oauth"`
}

// ProviderConfig describes one configured upstream and its credential
// pool entries.
type ProviderConfig struct {
	Name        string             `yaml:"name"`
	Kind        string             `yaml:"kind"` // claude_code | codex | gemini_cli | vertex | openai_compat
	BaseURL     string             `yaml:"base-url"`
	Credentials []CredentialConfig `yaml:"credentials"`
}

// CredentialConfig is one pool entry as read from YAML, mapped to a
// credential.Entry at startup.
type CredentialConfig struct {
	ID     string `yaml:"id"`
	Weight int    `yaml:"weight"`
	// Enabled defaults to true when absent; set to false in YAML to take
	// the entry permanently out of selection without deleting it.
	Enabled    *bool             `yaml:"enabled"`
	Attributes map[string]string `yaml:"attributes"`
	// There is no metadata field: OAuth token metadata is not read from
	// this file. Plain API keys may be set directly via
	// Attributes["api_key"].
}

// EnabledOrDefault reports c's effective enabled state: true unless the
// YAML document explicitly set enabled: false.
func (c CredentialConfig) EnabledOrDefault() bool {
	return c.Enabled == nil || *c.Enabled
}

// OAuthClientConfig is one provider's registered OAuth client.
type OAuthClientConfig struct {
	Provider      string            `yaml:"provider"`
	ClientID      string            `yaml:"client-id"`
	ClientSecret  string            `yaml:"client-secret"`
	AuthURL       string            `yaml:"auth-url"`
	TokenURL      string            `yaml:"token-url"`
	RedirectURL   string            `yaml:"redirect-url"`
	Scopes        []string          `yaml:"scopes"`
	DeviceAuthURL string            `yaml:"device-auth-url"`
	ExtraParams   map[string]string `yaml:"extra-params"`
}

// OAuthConfig groups every provider's OAuth client registration plus the
// pending-login TTL.
type OAuthConfig struct {
	StateTTLSeconds int                 `yaml:"state-ttl-seconds"`
	Clients         []OAuthClientConfig `yaml:"clients"`
}

// Load reads a YAML configuration file from path and unmarshals it into a
// Config, matching the teacher's LoadConfig shape.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8317
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "gproxy.db"
	}
	return &cfg, nil
}
