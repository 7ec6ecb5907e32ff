package mentor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Session     SessionConfig     `yaml:"session"`
	Budget      BudgetConfig      `yaml:"budget"`
	Review      SchedulerConfig   `yaml:"review"`
	Model       ModelConfig       `yaml:"model"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// SessionConfig bounds what a single session may do.
type SessionConfig struct {
	RequestLimit int      `yaml:"request_limit"` // questions admitted per window
	Window       Duration `yaml:"window"`        // sliding window duration
	IdleTimeout  Duration `yaml:"idle_timeout"`  // rate state evicted after this much inactivity
	MaxTracked   int      `yaml:"max_tracked"`   // cap on tracked sessions, zero → default
}

// BudgetConfig bounds project-wide spend.
type BudgetConfig struct {
	Cap float64 `yaml:"cap"` // dollars
}

// ModelConfig describes how questions are sent to the model collaborator.
type ModelConfig struct {
	Name         string     `yaml:"name"`
	System       string     `yaml:"system"`
	MaxTokens    int        `yaml:"max_tokens"`
	Temperature  *float64   `yaml:"temperature"`
	CallTimeout  Duration   `yaml:"call_timeout"`
	DisableRetry bool       `yaml:"disable_retry"` // zero false → one retry on transient failure
	Prices       PriceTable `yaml:"prices"`        // empty → DefaultPrices
}

// MaintenanceConfig drives the background janitor.
type MaintenanceConfig struct {
	Schedule string `yaml:"schedule"` // cron expression, empty → janitor default
}

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// or "30m".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("mentor: config: duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("mentor: config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("mentor: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("mentor: parse config: %w", err)
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// withDefaults returns the config with zero-value fields filled in.
func (c Config) withDefaults() Config {
	if c.Session.RequestLimit == 0 {
		c.Session.RequestLimit = 10
	}
	if c.Session.Window == 0 {
		c.Session.Window = Duration(time.Minute)
	}
	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = Duration(30 * time.Minute)
	}
	if c.Session.MaxTracked == 0 {
		c.Session.MaxTracked = defaultMaxSessions
	}
	if c.Budget.Cap == 0 {
		c.Budget.Cap = 10
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 1024
	}
	if c.Model.CallTimeout == 0 {
		c.Model.CallTimeout = Duration(60 * time.Second)
	}
	c.Review = c.Review.withDefaults()
	return c
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.Session.RequestLimit < 0 {
		return fmt.Errorf("mentor: config: session: request_limit %d must be positive", c.Session.RequestLimit)
	}
	if c.Session.Window < 0 {
		return fmt.Errorf("mentor: config: session: window %v must be positive", c.Session.Window.Std())
	}
	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("mentor: config: session: idle_timeout %v must be positive", c.Session.IdleTimeout.Std())
	}
	if c.Session.MaxTracked < 0 {
		return fmt.Errorf("mentor: config: session: max_tracked %d must be positive", c.Session.MaxTracked)
	}
	if c.Budget.Cap < 0 {
		return fmt.Errorf("mentor: config: budget: cap %.2f must be positive", c.Budget.Cap)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("mentor: config: model: name is required")
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("mentor: config: model: max_tokens %d must be positive", c.Model.MaxTokens)
	}
	if c.Model.CallTimeout < 0 {
		return fmt.Errorf("mentor: config: model: call_timeout %v must be positive", c.Model.CallTimeout.Std())
	}
	for name, p := range c.Model.Prices.Models {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("mentor: config: model: negative price for %q", name)
		}
	}
	if _, err := NewScheduler(c.Review); err != nil {
		return err
	}
	return nil
}
