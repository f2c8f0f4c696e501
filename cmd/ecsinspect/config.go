package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wbrown/janus-ecs/ecs/query"
)

// EnvPrefix is the prefix of environment variables read into Config
const EnvPrefix = "ECSINSPECT_"

// Config holds the settings shared by all commands
type Config struct {
	Verbose  bool   `mapstructure:"verbose"`
	Metrics  bool   `mapstructure:"metrics"`
	Color    string `mapstructure:"color"`
	Cache    string `mapstructure:"cache"`
	Scenario string `mapstructure:"scenario"`
}

// LoadConfig reads settings from defaults, the optional config file,
// ECSINSPECT_ environment variables and the command flags, in increasing
// precedence
func LoadConfig(path string, cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetDefault("verbose", false)
	v.SetDefault("metrics", false)
	v.SetDefault("color", "auto")
	v.SetDefault("cache", "default")
	v.SetDefault("scenario", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		prop := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		v.Set(strings.ReplaceAll(prop, "_", "."), value)
	}

	if cmd != nil {
		for _, name := range []string{"verbose", "metrics", "color", "cache", "scenario"} {
			if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
				v.Set(name, f.Value.String())
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if _, err := cfg.CacheKind(); err != nil {
		return nil, err
	}
	switch cfg.Color {
	case "auto", "always", "never":
	default:
		return nil, fmt.Errorf("invalid color %q: must be one of auto, always, never", cfg.Color)
	}
	return cfg, nil
}

// CacheKind returns the default cache kind for queries
func (c *Config) CacheKind() (query.CacheKind, error) {
	switch c.Cache {
	case "", "default":
		return query.CacheDefault, nil
	case "auto":
		return query.CacheAuto, nil
	case "all":
		return query.CacheAll, nil
	case "none":
		return query.CacheNone, nil
	}
	return 0, fmt.Errorf("invalid cache kind %q: must be one of default, auto, all, none", c.Cache)
}
