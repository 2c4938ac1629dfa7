package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/wheelhouse-index/wheelhouse/internal/validation"
)

type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Audience    string                  `yaml:"audience"`
	Database    DatabaseConfig          `yaml:"database"`
	Issuers     map[string]IssuerConfig `yaml:"issuers"`
	Macaroons   MacaroonConfig          `yaml:"macaroons"`
	RateLimit   RateLimitConfig         `yaml:"rate_limit"`
	Audit       AuditConfig             `yaml:"audit"`
	Logging     LoggingConfig           `yaml:"logging"`
	Development DevelopmentConfig       `yaml:"development"`
}

type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// AdminKey guards the admin API. Empty disables the admin routes.
	AdminKey string `yaml:"admin_key"`
}

type DatabaseConfig struct {
	// Path to the SQLite database file. ":memory:" works for development.
	Path string `yaml:"path"`
}

// IssuerConfig is the per-family section under issuers:. The key is the
// publisher kind ("github", "gitlab", ...).
type IssuerConfig struct {
	Enabled bool `yaml:"enabled"`

	// CustomIssuers lists additional issuer URLs for this family. Only
	// GitLab supports these (self-hosted instances).
	CustomIssuers []string `yaml:"custom_issuers,omitempty"`
}

type MacaroonConfig struct {
	// Location is embedded in every minted macaroon, conventionally the
	// upload endpoint's hostname.
	Location string `yaml:"location"`

	// RootKey signs macaroons; at least 32 bytes.
	RootKey string `yaml:"root_key"`
}

type RateLimitConfig struct {
	// FillInterval is how often one registration unit is restored.
	FillInterval time.Duration `yaml:"fill_interval"`

	// Capacity is the burst budget per identifier.
	Capacity int64 `yaml:"capacity"`
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // e.g., "file", "memory"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type DevelopmentConfig struct {
	// InsecureOIDC swaps in the null publisher service, which skips JWT
	// signature verification. Never enable this outside local development.
	InsecureOIDC bool `yaml:"insecure_oidc"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Audience == "" {
		return fmt.Errorf("audience is required")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "wheelhouse.db"
	}

	if err := validation.ValidateIssuers(issuerSettings(c.Issuers)); err != nil {
		return fmt.Errorf("validating issuers: %w", err)
	}

	if c.Macaroons.Location == "" {
		return fmt.Errorf("macaroons.location is required")
	}
	if len(c.Macaroons.RootKey) < 32 {
		return fmt.Errorf("macaroons.root_key must be at least 32 bytes")
	}

	if c.RateLimit.FillInterval <= 0 {
		c.RateLimit.FillInterval = time.Minute
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 10
	}

	if c.Audit.Enabled && c.Audit.Type == "file" && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required for file auditing")
	}

	return nil
}

// EnabledKinds lists the issuer families switched on in config.
func (c *Config) EnabledKinds() []string {
	var kinds []string
	for kind, ic := range c.Issuers {
		if ic.Enabled {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// CustomGitLabIssuers returns configured self-hosted GitLab issuer URLs.
func (c *Config) CustomGitLabIssuers() []string {
	gitlab, ok := c.Issuers["gitlab"]
	if !ok {
		return nil
	}
	return gitlab.CustomIssuers
}

func issuerSettings(issuers map[string]IssuerConfig) map[string]validation.IssuerSettings {
	out := make(map[string]validation.IssuerSettings, len(issuers))
	for kind, ic := range issuers {
		out[kind] = validation.IssuerSettings{
			Enabled:       ic.Enabled,
			CustomIssuers: ic.CustomIssuers,
		}
	}
	return out
}
