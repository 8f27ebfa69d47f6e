// Package config loads the service configuration from YAML with environment
// overrides (TOKMAN_*). Durations are YAML strings ("60s", "24h") parsed on
// access with the protocol defaults applied.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingServiceName is fatal at construction: without a service identity
// there is nothing to sign as.
var ErrMissingServiceName = errors.New("config: service name is required")

// TrustedIssuer maps an issuer name to its public-key resolution endpoint.
type TrustedIssuer struct {
	URL string `yaml:"url"`
}

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Store struct {
		Kind  string `yaml:"kind"` // "redis" | "memory"
		Redis struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Password string `yaml:"password"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Tokens struct {
		// TTL for issued tokens. Empty means every encode call must supply
		// its own exp claim.
		TTL          string `yaml:"ttl"`
		PublicKeyTTL string `yaml:"public_key_ttl"`
		OldKeyTTL    string `yaml:"old_key_ttl"`
		FetchTimeout string `yaml:"fetch_timeout"`
	} `yaml:"tokens"`

	TrustedIssuers map[string]TrustedIssuer `yaml:"trusted_issuers"`
}

// Load reads the YAML file at path (optional: empty path starts from zero
// config), applies TOKMAN_* environment overrides and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Service.Name = getenv("TOKMAN_SERVICE_NAME", c.Service.Name)
	c.Server.Addr = getenv("TOKMAN_LISTEN_ADDR", c.Server.Addr)
	c.Store.Kind = getenv("TOKMAN_STORE_KIND", c.Store.Kind)
	c.Store.Redis.Addr = getenv("TOKMAN_REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getenv("TOKMAN_REDIS_PASSWORD", c.Store.Redis.Password)
	c.App.Env = getenv("TOKMAN_APP_ENV", c.App.Env)
	c.Log.Level = getenv("TOKMAN_LOG_LEVEL", c.Log.Level)
	c.Tokens.TTL = getenv("TOKMAN_TOKEN_TTL", c.Tokens.TTL)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Store.Kind == "" {
		c.Store.Kind = "memory"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "localhost:6379"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.Name) == "" {
		return ErrMissingServiceName
	}
	return nil
}

// TokenTTL is zero when unset; encode then requires an explicit exp.
func (c *Config) TokenTTL() time.Duration {
	return dur(c.Tokens.TTL, 0)
}

// PublicKeyTTL is the freshness window for cached foreign issuer keys.
func (c *Config) PublicKeyTTL() time.Duration {
	return dur(c.Tokens.PublicKeyTTL, 24*time.Hour)
}

// OldKeyTTL is how long a displaced key stays readable after rotation.
func (c *Config) OldKeyTTL() time.Duration {
	return dur(c.Tokens.OldKeyTTL, 30*24*time.Hour)
}

// FetchTimeout bounds the network fetch of a foreign public key.
func (c *Config) FetchTimeout() time.Duration {
	return dur(c.Tokens.FetchTimeout, 5*time.Second)
}

func dur(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
