// Package config loads tabregel settings from a YAML file, environment
// variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lotas/tabregel/internal/engine"
	"github.com/lotas/tabregel/internal/export"
	"github.com/lotas/tabregel/internal/types"
)

// EnvPrefix prefixes environment overrides, e.g. TABREGEL_PORT or
// TABREGEL_ENGINE_SETTLE_DELAY.
const EnvPrefix = "TABREGEL"

type Config struct {
	Port     int            `mapstructure:"port" yaml:"port"`
	Window   int            `mapstructure:"window" yaml:"window"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Rules    RulesConfig    `mapstructure:"rules" yaml:"rules"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Level string `mapstructure:"level" yaml:"level"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RulesConfig selects the rule store. An empty File keeps rules in the
// database.
type RulesConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

type EngineConfig struct {
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	MaxSettleRounds   int           `mapstructure:"max_settle_rounds" yaml:"max_settle_rounds"`
	CollapseNewGroups bool          `mapstructure:"collapse_new_groups" yaml:"collapse_new_groups"`
	DomainMinTabs     int           `mapstructure:"domain_min_tabs" yaml:"domain_min_tabs"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

type ExportConfig struct {
	Dir           string   `mapstructure:"dir" yaml:"dir"`
	Exclude       []string `mapstructure:"exclude" yaml:"exclude"`
	ExcludePinned bool     `mapstructure:"exclude_pinned" yaml:"exclude_pinned"`
}

// Policy returns the engine policy described by the config.
func (c EngineConfig) Policy() engine.Policy {
	return engine.Policy{
		SettleDelay:       c.SettleDelay,
		MaxSettleRounds:   c.MaxSettleRounds,
		CollapseNewGroups: c.CollapseNewGroups,
		DomainMinTabs:     c.DomainMinTabs,
	}
}

// Dir returns the tabregel config directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "tabregel"), nil
}

// DefaultPath returns ~/.config/tabregel/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	data := filepath.Join(home, ".local", "share", "tabregel")
	policy := engine.DefaultPolicy()
	return Config{
		Port:     19191,
		Window:   types.CurrentWindow,
		Log:      LogConfig{Dir: data, Level: "info"},
		Database: DatabaseConfig{Path: filepath.Join(data, "tabregel.db")},
		Engine: EngineConfig{
			SettleDelay:       policy.SettleDelay,
			MaxSettleRounds:   policy.MaxSettleRounds,
			CollapseNewGroups: policy.CollapseNewGroups,
			DomainMinTabs:     policy.DomainMinTabs,
			ConnectTimeout:    60 * time.Second,
			RequestTimeout:    10 * time.Second,
		},
		Export: ExportConfig{
			Dir:     ".",
			Exclude: append([]string(nil), export.DefaultExclude...),
		},
	}
}

// New returns a viper instance with defaults, environment overrides and,
// when it exists, the file at path. An empty path means DefaultPath.
// Callers may bind flags to it before calling Decode.
func New(path string) (*viper.Viper, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", cfg.Port)
	v.SetDefault("window", cfg.Window)
	v.SetDefault("log.dir", cfg.Log.Dir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("rules.file", cfg.Rules.File)
	v.SetDefault("engine.settle_delay", cfg.Engine.SettleDelay)
	v.SetDefault("engine.max_settle_rounds", cfg.Engine.MaxSettleRounds)
	v.SetDefault("engine.collapse_new_groups", cfg.Engine.CollapseNewGroups)
	v.SetDefault("engine.domain_min_tabs", cfg.Engine.DomainMinTabs)
	v.SetDefault("engine.connect_timeout", cfg.Engine.ConnectTimeout)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("export.dir", cfg.Export.Dir)
	v.SetDefault("export.exclude", cfg.Export.Exclude)
	v.SetDefault("export.exclude_pinned", cfg.Export.ExcludePinned)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Dir = expandHome(cfg.Log.Dir)
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Rules.File = expandHome(cfg.Rules.File)
	cfg.Export.Dir = expandHome(cfg.Export.Dir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the config file at path (DefaultPath when empty) with
// environment overrides applied.
func Load(path string) (Config, error) {
	v, err := New(path)
	if err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Engine.SettleDelay < 0 {
		return fmt.Errorf("engine.settle_delay must not be negative")
	}
	if c.Engine.MaxSettleRounds < 1 {
		return fmt.Errorf("engine.max_settle_rounds must be at least 1")
	}
	if c.Engine.DomainMinTabs < 1 {
		return fmt.Errorf("engine.domain_min_tabs must be at least 1")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := export.NewFilter(c.Export.Exclude, c.Export.ExcludePinned); err != nil {
		return err
	}
	return nil
}

// WriteDefault writes the built-in configuration as YAML to path
// (DefaultPath when empty) and returns the path written.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
