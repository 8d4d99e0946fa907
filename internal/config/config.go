package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"aircrashes/internal/engine"
)

// Config is the effective configuration of every command.
type Config struct {
	DataPath   string `mapstructure:"data_path" yaml:"data_path"`
	Encoding   string `mapstructure:"encoding" yaml:"encoding"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// 0 means "use the dataset bounds"
	DefaultYearMin int `mapstructure:"default_year_min" yaml:"default_year_min"`
	DefaultYearMax int `mapstructure:"default_year_max" yaml:"default_year_max"`

	TopN        int `mapstructure:"top_n" yaml:"top_n"`
	TopK        int `mapstructure:"top_k" yaml:"top_k"`
	TrendWindow int `mapstructure:"trend_window" yaml:"trend_window"`

	Watch   bool `mapstructure:"watch" yaml:"watch"`
	Metrics bool `mapstructure:"metrics" yaml:"metrics"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

const envPrefix = "AIRCRASHES"

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_path", "Data/air_crashes.csv")
	v.SetDefault("encoding", string(engine.EncodingUTF8))
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("default_year_min", 0)
	v.SetDefault("default_year_max", 0)
	v.SetDefault("top_n", 10)
	v.SetDefault("top_k", 10)
	v.SetDefault("trend_window", 5)
	v.SetDefault("watch", false)
	v.SetDefault("metrics", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

// DefaultPath is ~/.aircrashes/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".aircrashes", "config.yaml"), nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. An explicit cfgFile must exist;
// the default file is optional.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".aircrashes"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Save writes c as YAML to cfgFile, or to DefaultPath when cfgFile is empty,
// creating the directory if necessary.
func Save(c *Config, cfgFile string) (string, error) {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataPath) == "" {
		return errors.New("data_path must be set")
	}
	if _, err := engine.ParseEncoding(c.Encoding); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.TopN)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.TrendWindow <= 0 {
		return fmt.Errorf("trend_window must be positive, got %d", c.TrendWindow)
	}
	if c.DefaultYearMin != 0 && c.DefaultYearMax != 0 && c.DefaultYearMin > c.DefaultYearMax {
		return fmt.Errorf("default_year_min %d > default_year_max %d", c.DefaultYearMin, c.DefaultYearMax)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Source is the loader input described by c.
func (c *Config) Source() (engine.Source, error) {
	enc, err := engine.ParseEncoding(c.Encoding)
	if err != nil {
		return engine.Source{}, err
	}
	return engine.Source{Path: c.DataPath, Encoding: enc}, nil
}

// DashboardOptions sizes dashboard rankings from c.
func (c *Config) DashboardOptions() engine.DashboardOptions {
	return engine.DashboardOptions{TopN: c.TopN, TopK: c.TopK, TrendWindow: c.TrendWindow}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
}

// Logger builds the slog logger described by log_level and log_format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
