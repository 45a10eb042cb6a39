// Package policy holds server configuration: network endpoint, upstream API
// settings, limits, and optional features. Config comes from a YAML file with
// environment overrides; upstream settings can be swapped at runtime by the
// config watcher without restarting the server.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalStateDir returns the default state directory (~/.config/grokipedia-mcp).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "grokipedia-mcp")
}

// UpstreamConfig holds the Grokipedia API endpoints and call timeout.
type UpstreamConfig struct {
	// SearchBaseURL serves full-text search and page detail.
	SearchBaseURL string `yaml:"search_base_url"`
	// ContentBaseURL serves full article content.
	ContentBaseURL string `yaml:"content_base_url"`
	// TimeoutSeconds bounds every outbound call (default 30).
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// CacheConfig controls the optional SQLite response cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TTLSeconds int    `yaml:"ttl_seconds"` // default 300
	Path       string `yaml:"path"`        // default <state dir>/cache.db
}

// FeaturesConfig groups optional feature flags.
type FeaturesConfig struct {
	Cache *CacheConfig `yaml:"cache"`
}

// Config holds server configuration.
type Config struct {
	Host         string `yaml:"host"`          // default 127.0.0.1
	HTTPPort     int    `yaml:"http_port"`     // default 8000
	EndpointPath string `yaml:"endpoint_path"` // default /mcp
	LogFile      string `yaml:"log_file"`

	Upstream UpstreamConfig `yaml:"upstream"`

	// DefaultLimit is how many results smart mode expands when the caller
	// does not pass a limit. MaxLimit caps caller-supplied limits.
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`

	Features *FeaturesConfig `yaml:"features"`
}

// DefaultConfig returns sensible defaults matching the public Grokipedia API.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		HTTPPort:     8000,
		EndpointPath: "/mcp",
		Upstream: UpstreamConfig{
			SearchBaseURL:  "https://grokipedia.com",
			ContentBaseURL: "https://grokipedia-api.com",
			TimeoutSeconds: 30,
		},
		DefaultLimit: 2,
		MaxLimit:     10,
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// ApplyEnv overrides host and port from GROKIPEDIA_MCP_HOST and
// GROKIPEDIA_MCP_PORT when set.
func (c *Config) ApplyEnv() {
	if host := os.Getenv("GROKIPEDIA_MCP_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv("GROKIPEDIA_MCP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p >= 0 {
			c.HTTPPort = p
		}
	}
}

// normalize fills in zero values left by a partial config file.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = def.HTTPPort
	}
	if c.EndpointPath == "" {
		c.EndpointPath = def.EndpointPath
	}
	if c.Upstream.SearchBaseURL == "" {
		c.Upstream.SearchBaseURL = def.Upstream.SearchBaseURL
	}
	if c.Upstream.ContentBaseURL == "" {
		c.Upstream.ContentBaseURL = def.Upstream.ContentBaseURL
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		c.Upstream.TimeoutSeconds = def.Upstream.TimeoutSeconds
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = def.MaxLimit
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
}

// Policy wraps a Config with concurrency-safe accessors. The config watcher
// calls Update at runtime, so readers must go through the accessors rather
// than holding a *Config.
type Policy struct {
	mu     sync.RWMutex
	config *Config
}

// New creates a Policy around cfg.
func New(cfg *Config) *Policy {
	cfg.normalize()
	return &Policy{config: cfg}
}

// Update swaps the mutable parts of the configuration in place: upstream
// settings and limits. Network endpoint and log file changes require a
// restart and are ignored here.
func (p *Policy) Update(cfg *Config) {
	cfg.normalize()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Upstream = cfg.Upstream
	p.config.DefaultLimit = cfg.DefaultLimit
	p.config.MaxLimit = cfg.MaxLimit
}

// Upstream returns the current upstream settings.
func (p *Policy) Upstream() UpstreamConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.Upstream
}

// UpstreamTimeout returns the upstream call timeout as a duration.
func (p *Policy) UpstreamTimeout() time.Duration {
	return time.Duration(p.Upstream().TimeoutSeconds) * time.Second
}

// Limits returns the default and maximum smart-mode expansion limits.
func (p *Policy) Limits() (def, max int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.DefaultLimit, p.config.MaxLimit
}

// ListenAddr returns the host:port the HTTP server binds to.
func (p *Policy) ListenAddr() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("%s:%d", p.config.Host, p.config.HTTPPort)
}

// EndpointPath returns the HTTP path serving the MCP endpoint.
func (p *Policy) EndpointPath() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.EndpointPath
}

// LogFile returns the configured log file path.
// If unset, defaults to ~/.config/grokipedia-mcp/grokipedia-mcp.log.
// Set to "none" or "off" to disable file logging entirely.
func (p *Policy) LogFile() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.config.LogFile == "" {
		return filepath.Join(GlobalStateDir(), "grokipedia-mcp.log")
	}
	return p.config.LogFile
}

// CacheConfig returns the response cache configuration with defaults
// applied, or nil when the cache is disabled.
func (p *Policy) CacheConfig() *CacheConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.config.Features == nil || p.config.Features.Cache == nil || !p.config.Features.Cache.Enabled {
		return nil
	}
	cc := *p.config.Features.Cache
	if cc.TTLSeconds <= 0 {
		cc.TTLSeconds = 300
	}
	if cc.Path == "" {
		cc.Path = filepath.Join(GlobalStateDir(), "cache.db")
	}
	return &cc
}
