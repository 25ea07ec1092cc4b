package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models designflow.yml.
type Config struct {
	Team struct {
		Name string `yaml:"name" json:"name"`
	} `yaml:"team" json:"team"`
	Policies struct {
		Capacity struct {
			Increment string  `yaml:"increment" json:"increment"`
			FlatHours float64 `yaml:"flat_hours" json:"flat_hours"`
		} `yaml:"capacity" json:"capacity"`
		Assignment struct {
			Reassign string `yaml:"reassign" json:"reassign"`
		} `yaml:"assignment" json:"assignment"`
		Lifecycle struct {
			ReopenCompleted bool   `yaml:"reopen_completed" json:"reopen_completed"`
			ApprovalMessage string `yaml:"approval_message" json:"approval_message"`
		} `yaml:"lifecycle" json:"lifecycle"`
	} `yaml:"policies" json:"policies"`
	Timeline struct {
		Days      int     `yaml:"days" json:"days"`
		MinWidth  float64 `yaml:"min_width" json:"min_width"`
		WeekStart string  `yaml:"week_start" json:"week_start"`
	} `yaml:"timeline" json:"timeline"`
	Oracle   OracleConfig    `yaml:"oracle" json:"oracle"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type OracleConfig struct {
	Provider       string `yaml:"provider" json:"provider"`
	Model          string `yaml:"model" json:"model"`
	APIKeyEnv      string `yaml:"api_key_env" json:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries" json:"max_retries"`
	RatePerMinute  int    `yaml:"rate_per_minute" json:"rate_per_minute"`
	MaxConcurrent  int    `yaml:"max_concurrent" json:"max_concurrent"`
}

// Timeout returns the per-call deadline for oracle requests.
func (o OracleConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// APIKey reads the oracle key from the configured environment variable.
func (o OracleConfig) APIKey() string {
	if o.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(o.APIKeyEnv))
}

type WebhookConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Events  []string `yaml:"events" json:"events,omitempty"`
	Enabled *bool    `yaml:"enabled" json:"enabled,omitempty"`
	Secret  string   `yaml:"secret" json:"-"`

	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with df init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Policies.Capacity.Increment {
	case "estimate":
	case "flat":
		if c.Policies.Capacity.FlatHours <= 0 {
			return fmt.Errorf("policies.capacity.flat_hours must be positive for flat increments")
		}
	default:
		return fmt.Errorf("policies.capacity.increment must be 'estimate' or 'flat'")
	}
	switch c.Policies.Assignment.Reassign {
	case "reject", "move":
	default:
		return fmt.Errorf("policies.assignment.reassign must be 'reject' or 'move'")
	}
	if c.Timeline.Days <= 0 {
		return fmt.Errorf("timeline.days must be positive")
	}
	if c.Timeline.MinWidth < 0 || c.Timeline.MinWidth > 1 {
		return fmt.Errorf("timeline.min_width must be within [0,1]")
	}
	if _, ok := weekdays[strings.ToLower(c.Timeline.WeekStart)]; !ok {
		return fmt.Errorf("timeline.week_start %q is not a weekday", c.Timeline.WeekStart)
	}
	switch c.Oracle.Provider {
	case "", "none", "anthropic":
	default:
		return fmt.Errorf("oracle.provider must be 'anthropic' or 'none'")
	}
	if c.Oracle.MaxRetries < 0 {
		return fmt.Errorf("oracle.max_retries must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

var weekdays = map[string]struct{}{
	"sunday": {}, "monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {}, "saturday": {},
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "designflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(team string) string {
	return fmt.Sprintf(defaultTemplate, team)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default("design"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default(team string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(team))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("design")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `team:
  name: %s

policies:
  capacity:
    # estimate adds the request's estimated hours; flat adds flat_hours
    increment: estimate
    flat_hours: 5
  assignment:
    # reject refuses to reassign; move releases the previous owner first
    reassign: reject
  lifecycle:
    reopen_completed: true
    approval_message: "Design Approved."

timeline:
  days: 14
  min_width: 0.02
  week_start: sunday

oracle:
  provider: anthropic
  model: claude-sonnet-4-5-20250929
  api_key_env: ANTHROPIC_API_KEY
  max_tokens: 2048
  timeout_seconds: 30
  max_retries: 2
  rate_per_minute: 20
  max_concurrent: 2
`
