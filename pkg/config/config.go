package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration file
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
	Probe     ProbeConfig     `yaml:"probe"`
	APIKeys   []APIKey        `yaml:"api_keys" validate:"dive"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	PublicURL string `yaml:"public_url" validate:"omitempty,url"`
	// StateDir holds the instance id and other small files
	StateDir string `yaml:"state_dir" validate:"required"`
}

// LoggingConfig configures pkg/logging
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// CacheConfig selects the resolution cache backend
type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory file leveldb"`
	Path    string `yaml:"path" validate:"required_unless=Backend memory"`
}

// ResolverConfig tunes stabilization windows
type ResolverConfig struct {
	// Rotation is the bucket width of hourly tokens
	Rotation     time.Duration `yaml:"rotation" validate:"gt=0"`
	TTL          TTLConfig     `yaml:"ttl"`
	AssetBaseURL string        `yaml:"asset_base_url" validate:"omitempty,url"`
	// RedirectHosts are extra hosts /img may redirect to, besides the asset
	// base and fallback image hosts
	RedirectHosts []string `yaml:"redirect_hosts" validate:"dive,required"`
}

// TTLConfig holds per-category cache lifetimes
type TTLConfig struct {
	Generic       time.Duration `yaml:"generic" validate:"gt=0"`
	CriticalUI    time.Duration `yaml:"critical_ui" validate:"gt=0"`
	Specialized   time.Duration `yaml:"specialized" validate:"gt=0"`
	CancerSupport time.Duration `yaml:"cancer_support" validate:"gt=0"`
}

// FallbacksConfig overrides the built-in fallback image table.
// An empty rule list keeps the built-in rules.
type FallbacksConfig struct {
	Rules        []FallbackRule `yaml:"rules" validate:"dive"`
	Default      string         `yaml:"default"`
	DefaultToken string         `yaml:"default_token" validate:"omitempty,oneof=timestamp hourly none"`
}

// FallbackRule maps context keywords to a fallback image
type FallbackRule struct {
	Category string   `yaml:"category" validate:"required"`
	Match    []string `yaml:"match" validate:"required,min=1,dive,required"`
	URL      string   `yaml:"url" validate:"required"`
	Token    string   `yaml:"token" validate:"omitempty,oneof=timestamp hourly none"`
}

// ProbeConfig configures the image existence checker
type ProbeConfig struct {
	Timeout                time.Duration `yaml:"timeout" validate:"gt=0"`
	CacheTTL               time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	VerifyFallbacksOnStart bool          `yaml:"verify_fallbacks_on_start"`
	Breaker                BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker guarding probes
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests" validate:"gt=0"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureThreshold float64       `yaml:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests"`
}

// APIKey represents an API key configuration
type APIKey struct {
	Role   string `yaml:"role" validate:"oneof=viewer operator admin"`
	APIKey string `yaml:"api_key" validate:"required,min=16"`
	Name   string `yaml:"name,omitempty"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads, defaults and validates a YAML configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates YAML configuration bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and fallback URLs
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for i, r := range cfg.Fallbacks.Rules {
		if err := checkImageURL(r.URL); err != nil {
			return fmt.Errorf("fallbacks.rules[%d].url: %w", i, err)
		}
	}
	if cfg.Fallbacks.Default != "" {
		if err := checkImageURL(cfg.Fallbacks.Default); err != nil {
			return fmt.Errorf("fallbacks.default: %w", err)
		}
	}
	return nil
}

// checkImageURL accepts absolute http(s) URLs and rooted bundle paths
func checkImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("missing host")
		}
		return nil
	}
	if !strings.HasPrefix(u.Path, "/") {
		return fmt.Errorf("relative asset %q must start with /", raw)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.StateDir == "" {
		cfg.Server.StateDir = "./data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Path == "" && cfg.Cache.Backend != "memory" {
		cfg.Cache.Path = strings.TrimRight(cfg.Server.StateDir, "/") + "/cache"
	}

	r := &cfg.Resolver
	if r.Rotation == 0 {
		r.Rotation = time.Hour
	}
	if r.TTL.Generic == 0 {
		r.TTL.Generic = 5 * time.Minute
	}
	if r.TTL.CriticalUI == 0 {
		r.TTL.CriticalUI = r.Rotation
	}
	if r.TTL.Specialized == 0 {
		r.TTL.Specialized = r.Rotation
	}
	if r.TTL.CancerSupport == 0 {
		r.TTL.CancerSupport = 30 * time.Minute
	}
	r.AssetBaseURL = strings.TrimRight(r.AssetBaseURL, "/")

	p := &cfg.Probe
	if p.Timeout == 0 {
		p.Timeout = 5 * time.Second
	}
	if p.CacheTTL == 0 {
		p.CacheTTL = 10 * time.Minute
	}
	if p.Breaker.MaxRequests == 0 {
		p.Breaker.MaxRequests = 5
	}
	if p.Breaker.Interval == 0 {
		p.Breaker.Interval = 30 * time.Second
	}
	if p.Breaker.Timeout == 0 {
		p.Breaker.Timeout = 60 * time.Second
	}
	if p.Breaker.FailureThreshold == 0 {
		p.Breaker.FailureThreshold = 0.8
	}
	if p.Breaker.MinRequests == 0 {
		p.Breaker.MinRequests = 5
	}
}

// FindAPIKeyByKey finds an API key by its key value
func FindAPIKeyByKey(apiKeys []APIKey, key string) (*APIKey, bool) {
	for _, ak := range apiKeys {
		if ak.APIKey == key {
			return &ak, true
		}
	}
	return nil, false
}
