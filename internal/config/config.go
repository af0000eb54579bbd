// Package config loads chainfilter settings.
//
// Precedence: CLI flags > environment (CF_ prefix) > config file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/chainfilter/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. CF_RULES_DIR.
const EnvPrefix = "CF"

// Config holds resolved settings.
type Config struct {
	// RulesDir is the directory rule files are read from.
	RulesDir string

	// DefaultChain is loaded when a command is given no chain name.
	DefaultChain string

	// DebugMode is the debug log tier.
	DebugMode logging.DebugMode

	// RuleLevel is the level rule log lines are written at.
	RuleLevel slog.Level

	// StorePath is the SQLite database for events and rule log lines.
	// Empty disables persistence.
	StorePath string
}

// flagKeys maps config keys to the CLI flags that override them.
var flagKeys = map[string]string{
	"rules.dir":      "rules-dir",
	"log.debug_mode": "debug",
	"store.path":     "db",
}

// Load resolves configuration from an optional YAML file, the environment
// and flags. flags may be nil; unknown flag names are ignored.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("rules.dir", "rules")
	v.SetDefault("rules.default_chain", "default")
	v.SetDefault("log.debug_mode", "off")
	v.SetDefault("log.rule_level", "info")
	v.SetDefault("store.path", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	debug, err := logging.ParseDebugMode(v.GetString("log.debug_mode"))
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(v.GetString("log.rule_level"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RulesDir:     v.GetString("rules.dir"),
		DefaultChain: v.GetString("rules.default_chain"),
		DebugMode:    debug,
		RuleLevel:    level,
		StorePath:    v.GetString("store.path"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RulesDir) == "" {
		return fmt.Errorf("rules.dir must not be empty")
	}
	if strings.TrimSpace(c.DefaultChain) == "" {
		return fmt.Errorf("rules.default_chain must not be empty")
	}
	return nil
}

// Logging builds a logging manager from the configured tiers.
// w may be nil to skip persisting rule log lines.
func (c *Config) Logging(logger *slog.Logger, w logging.RuleLogWriter) *logging.Manager {
	opts := []logging.Option{
		logging.WithDebugMode(c.DebugMode),
		logging.WithRuleLevel(c.RuleLevel),
	}
	if w != nil {
		opts = append(opts, logging.WithRuleLogWriter(w))
	}
	return logging.New(logger, opts...)
}
