package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Upstream UpstreamConfig `yaml:"upstream" toml:"upstream"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Rules    RulesConfig    `yaml:"rules" toml:"rules"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// ServerConfig contains proxy server configuration
type ServerConfig struct {
	Port  int         `yaml:"port" toml:"port" env:"REPOLENS_PORT" env-default:"8080"`
	HTTPS HTTPSConfig `yaml:"https" toml:"https"`
}

// HTTPSConfig controls TLS interception
type HTTPSConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" env:"REPOLENS_HTTPS_ENABLED"`
	// Address of the transparent HTTPS listener, empty to disable it
	TransparentAddr string `yaml:"transparent_addr" toml:"transparent_addr" env:"REPOLENS_HTTPS_TRANSPARENT_ADDR"`
	CACertFile      string `yaml:"ca_cert_file" toml:"ca_cert_file" env:"REPOLENS_CA_CERT_FILE"`
	CAKeyFile       string `yaml:"ca_key_file" toml:"ca_key_file" env:"REPOLENS_CA_KEY_FILE"`
}

// UpstreamConfig describes the GitHub API the client talks to
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url" env:"REPOLENS_GITHUB_URL" env-default:"https://api.github.com"`
	Token   string `yaml:"token" toml:"token" env:"GITHUB_TOKEN"`
	Timeout string `yaml:"timeout" toml:"timeout" env:"REPOLENS_UPSTREAM_TIMEOUT" env-default:"30s"`
}

// CacheConfig contains cache-related configuration
type CacheConfig struct {
	CleanupInterval string `yaml:"cleanup_interval" toml:"cleanup_interval" env:"REPOLENS_CACHE_CLEANUP_INTERVAL" env-default:"1m"`
	DefaultTTL      string `yaml:"default_ttl" toml:"default_ttl" env:"REPOLENS_CACHE_DEFAULT_TTL" env-default:"5m"`
	// Request headers that take part in the cache key
	KeyHeaders []string  `yaml:"key_headers" toml:"key_headers" env:"REPOLENS_CACHE_KEY_HEADERS" env-default:"Accept,Authorization,X-GitHub-Api-Version"`
	TTLRules   []TTLRule `yaml:"ttl_rules" toml:"ttl_rules"`
}

// TTLRule assigns a TTL to URL paths matching Pattern
type TTLRule struct {
	Name    string   `yaml:"name" toml:"name"`
	Pattern string   `yaml:"pattern" toml:"pattern"`
	Exclude []string `yaml:"exclude" toml:"exclude"`
	TTL     string   `yaml:"ttl" toml:"ttl"`
}

// RulesConfig decides which proxied requests go through the cache
type RulesConfig struct {
	Mode  string      `yaml:"mode" toml:"mode" env:"REPOLENS_RULES_MODE" env-default:"whitelist"` // "whitelist" or "blacklist"
	Rules []CacheRule `yaml:"rules" toml:"rules"`
}

// CacheRule defines a caching rule
type CacheRule struct {
	BaseURI string   `yaml:"base_uri" toml:"base_uri"`
	Methods []string `yaml:"methods" toml:"methods"`
}

// LogConfig controls logrus output
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" env:"REPOLENS_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" toml:"format" env:"REPOLENS_LOG_FORMAT" env-default:"text"`
}

// Load loads configuration from a YAML or TOML file, then applies environment
// overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if err := toml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("parsing config TOML: %w", err)
			}
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("parsing config YAML: %w", err)
			}
		}
	}

	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	// Cache GitHub API GETs when no rule is configured
	if config.Rules.Mode == "whitelist" && len(config.Rules.Rules) == 0 {
		config.Rules.Rules = []CacheRule{{BaseURI: config.Upstream.BaseURL, Methods: []string{"GET"}}}
	}

	return &config, nil
}

// GetCleanupInterval parses the sweep interval
func (c *Config) GetCleanupInterval() (time.Duration, error) {
	return time.ParseDuration(c.Cache.CleanupInterval)
}

// GetDefaultTTL parses the TTL used when no rule matches
func (c *Config) GetDefaultTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.DefaultTTL)
}

// GetUpstreamTimeout parses the upstream request timeout
func (c *Config) GetUpstreamTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Upstream.Timeout)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required")
	}

	if _, err := c.GetUpstreamTimeout(); err != nil {
		return fmt.Errorf("invalid upstream timeout format: %w", err)
	}

	if _, err := c.GetCleanupInterval(); err != nil {
		return fmt.Errorf("invalid cleanup interval format: %w", err)
	}

	if ttl, err := c.GetDefaultTTL(); err != nil {
		return fmt.Errorf("invalid default TTL format: %w", err)
	} else if ttl <= 0 {
		return fmt.Errorf("default TTL must be positive, got: %s", c.Cache.DefaultTTL)
	}

	for i, rule := range c.Cache.TTLRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("ttl rule %d (%s): invalid pattern: %w", i, rule.Name, err)
		}
		if ttl, err := time.ParseDuration(rule.TTL); err != nil {
			return fmt.Errorf("ttl rule %d (%s): invalid TTL format: %w", i, rule.Name, err)
		} else if ttl <= 0 {
			return fmt.Errorf("ttl rule %d (%s): TTL must be positive", i, rule.Name)
		}
	}

	if c.Rules.Mode != "whitelist" && c.Rules.Mode != "blacklist" {
		return fmt.Errorf("rules mode must be 'whitelist' or 'blacklist', got: %s", c.Rules.Mode)
	}

	return nil
}
