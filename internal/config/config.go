// Package config provides configuration handling for the opportunity engine.
//
// Configuration comes from a YAML file plus environment variable overrides.
// Secrets (API keys, webhook URLs) are env-only and never read from the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingAPIKey is returned when live trading is enabled without credentials.
	ErrMissingAPIKey = errors.New("config: KALSHI_API_KEY environment variable not set")

	// ErrNoStrategies is returned when no strategy is enabled.
	ErrNoStrategies = errors.New("config: no enabled strategies")
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Strategy configures one scanning strategy.
type Strategy struct {
	Name           string          `yaml:"name"`
	Enabled        bool            `yaml:"enabled"`
	DryRun         bool            `yaml:"dry_run"`
	Series         []string        `yaml:"series"`
	MaxPosition    decimal.Decimal `yaml:"max_position"`     // dollar cap per position
	MinEVThreshold float64         `yaml:"min_ev_threshold"` // opportunities below are discarded
}

// Engine configures the scan loop and market filters.
type Engine struct {
	ScanInterval    Duration        `yaml:"scan_interval"`
	MinVolume       int             `yaml:"min_volume"`
	MaxDaysToExpiry int             `yaml:"max_days_to_expiry"`
	InitialBankroll decimal.Decimal `yaml:"initial_bankroll"`
	AllowScalingIn  bool            `yaml:"allow_scaling_in"`
}

// Config holds the full application configuration.
type Config struct {
	Engine     Engine     `yaml:"engine"`
	Strategies []Strategy `yaml:"strategies"`

	// Env-only fields.
	APIKey         string `yaml:"-"`
	BaseURL        string `yaml:"-"`
	DataDir        string `yaml:"-"`
	SlackWebhook   string `yaml:"-"`
	DiscordWebhook string `yaml:"-"`
	Debug          bool   `yaml:"-"`
}

// Defaults mirrors what the engine assumes when the file omits a knob.
func Defaults() Config {
	return Config{
		Engine: Engine{
			ScanInterval:    Duration(5 * time.Minute),
			MinVolume:       100,
			MaxDaysToExpiry: 7,
			InitialBankroll: decimal.NewFromInt(100),
		},
		DataDir: "data",
	}
}

// Load reads the YAML file at path, applies env overrides, and validates.
// An empty path loads defaults plus env only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = os.Getenv("KALSHI_API_KEY")
	if v := os.Getenv("KALSHI_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("EDGESCAN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	c.SlackWebhook = os.Getenv("EDGESCAN_SLACK_WEBHOOK")
	c.DiscordWebhook = os.Getenv("EDGESCAN_DISCORD_WEBHOOK")
	c.Debug = os.Getenv("EDGESCAN_DEBUG") == "true"

	if v := os.Getenv("EDGESCAN_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.ScanInterval = Duration(d)
		}
	}
	if v := os.Getenv("EDGESCAN_MIN_VOLUME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MinVolume = n
		}
	}
	// Forces every strategy into simulation regardless of file settings.
	if os.Getenv("EDGESCAN_DRY_RUN") == "true" {
		for i := range c.Strategies {
			c.Strategies[i].DryRun = true
		}
	}
}

// Validate checks that the configuration can actually run.
func (c *Config) Validate() error {
	enabled := c.EnabledStrategies()
	if len(enabled) == 0 {
		return ErrNoStrategies
	}
	for _, s := range enabled {
		if s.Name == "" {
			return errors.New("config: strategy with empty name")
		}
		if len(s.Series) == 0 {
			return fmt.Errorf("config: strategy %q has no series", s.Name)
		}
		if s.MinEVThreshold < 0 || s.MinEVThreshold >= 1 {
			return fmt.Errorf("config: strategy %q: min_ev_threshold %.3f out of range", s.Name, s.MinEVThreshold)
		}
		if !s.DryRun && c.APIKey == "" {
			return ErrMissingAPIKey
		}
	}
	if c.Engine.ScanInterval.Std() < time.Second {
		return fmt.Errorf("config: scan_interval %s too short", c.Engine.ScanInterval.Std())
	}
	return nil
}

// EnabledStrategies returns only the strategies that will run.
func (c *Config) EnabledStrategies() []Strategy {
	var out []Strategy
	for _, s := range c.Strategies {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
