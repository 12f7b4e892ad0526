package cli

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name.
	DefaultBaseDir = ".lmnt"
	// DefaultConfigFile is the default configuration filename.
	DefaultConfigFile = "config.yaml"
)

// Config is the on-disk configuration of a CLI app: a set of named
// contexts and the one currently in use.
type Config struct {
	// AppName is the application name, e.g. "lmnt".
	AppName string `yaml:"-"`

	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is one named set of credentials and defaults.
type Context struct {
	Name string `json:"name" yaml:"name"`

	// APIKey authenticates against the LMNT API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the REST base URL.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// StreamURL overrides the WebSocket URL of streaming sessions.
	StreamURL string `json:"stream_url,omitempty" yaml:"stream_url,omitempty"`

	// Timeout is the request timeout in seconds.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	// DefaultVoice is used when a command is given no --voice.
	DefaultVoice string `json:"default_voice,omitempty" yaml:"default_voice,omitempty"`

	// DefaultFormat is used when a command is given no --format.
	DefaultFormat string `json:"default_format,omitempty" yaml:"default_format,omitempty"`

	// Protocol is "versioned" (default) or "legacy".
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`

	// Extra stores settings of optional integrations, such as
	// "openai_model" for the chat command.
	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// LoadConfig loads or creates ~/.lmnt/<app>/config.yaml.
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads configuration from customPath, or from the
// default location when customPath is empty. A missing file is created.
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		paths, err := NewPaths(appName)
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = paths.ConfigFile()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			delete(cfg.Contexts, name)
			continue
		}
		ctx.Name = name
	}

	cfg.AppName = appName
	cfg.configPath = configPath
	return cfg, nil
}

// Save writes the configuration to disk, readable by the owner only.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path.
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// CachePath returns a path within the cache directory next to the config
// file.
func (c *Config) CachePath(name string) string {
	return filepath.Join(c.Dir(), "cache", name)
}

// AddContext adds or replaces a context and saves.
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return fmt.Errorf("context name is required")
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context and saves. Deleting the current context
// leaves no context selected.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext selects the current context and saves.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a context by name.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context.
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the named context, or the current one if name is
// empty.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		return c.GetCurrentContext()
	}
	return c.GetContext(name)
}

// ListContexts returns the context names in sorted order.
func (c *Config) ListContexts() []string {
	return slices.Sorted(maps.Keys(c.Contexts))
}

// GetExtra returns an extra value for the context.
func (ctx *Context) GetExtra(key string) string {
	if ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value for the context.
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// Masked returns a copy of the context that is safe to print.
func (ctx *Context) Masked() *Context {
	cp := *ctx
	cp.APIKey = MaskAPIKey(ctx.APIKey)
	if ctx.Extra != nil {
		cp.Extra = maps.Clone(ctx.Extra)
		for k, v := range cp.Extra {
			if strings.Contains(k, "key") || strings.Contains(k, "secret") {
				cp.Extra[k] = MaskAPIKey(v)
			}
		}
	}
	return &cp
}

// MaskAPIKey masks the API key for display.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
