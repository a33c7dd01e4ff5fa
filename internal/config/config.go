package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models salesline.yml.
type Config struct {
	Service struct {
		Name string `yaml:"name" json:"name"`
	} `yaml:"service" json:"service"`
	Statuses struct {
		// Catalog is advisory: status codes are an open set configured by the
		// backend operator, and unknown codes are accepted. Entries exist to
		// drive dropdowns and to flag codes needing a compiled build.
		Catalog map[string]StatusEntry `yaml:"catalog" json:"catalog"`
	} `yaml:"statuses" json:"statuses"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type StatusEntry struct {
	Description          string `yaml:"description" json:"description"`
	RequiresCompiledFile bool   `yaml:"requires_compiled_file,omitempty" json:"requires_compiled_file,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// RequiresCompiledFile reports whether the catalog marks a status code as
// needing a compiled build attached.
func (c *Config) RequiresCompiledFile(code string) bool {
	if c == nil {
		return false
	}
	entry, ok := c.Statuses.Catalog[code]
	return ok && entry.RequiresCompiledFile
}

// StatusCodes returns the cataloged codes, for dropdowns and CLI listings.
func (c *Config) StatusCodes() []string {
	codes := make([]string, 0, len(c.Statuses.Catalog))
	for code := range c.Statuses.Catalog {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.Name) == "" {
		return fmt.Errorf("config.service.name is required")
	}
	for code, entry := range c.Statuses.Catalog {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("config.statuses.catalog contains empty status code")
		}
		if strings.TrimSpace(entry.Description) == "" {
			return fmt.Errorf("status %s has empty description", code)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "salesline.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML for salesline init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `service:
  name: salesline

statuses:
  catalog:
    NotStarted:
      description: "Development has not begun"
    RequirementsReview:
      description: "Requirements under review with the party"
    InProgress:
      description: "Development in progress"
    TestingStarted:
      description: "Internal testing started on a compiled build"
      requires_compiled_file: true
    TestingCompleted:
      description: "Internal testing completed"
    Deployed:
      description: "Deployed at the party site"
    Completed:
      description: "Delivery complete and signed off"
`
