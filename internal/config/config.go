package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the application configuration
type Config struct {
	Source  SourceConfig  `toml:"source"`
	View    ViewConfig    `toml:"view"`
	Server  ServerConfig  `toml:"server"`
	Service ServiceConfig `toml:"service"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Rules   RulesConfig   `toml:"rules"`
}

// SourceConfig points the dashboard at the log service
type SourceConfig struct {
	BaseURL           string   `toml:"base_url"`
	Timeout           Duration `toml:"timeout"`
	TransactionsLimit int      `toml:"transactions_limit"`
}

// ViewConfig holds per-view defaults
type ViewConfig struct {
	RefreshInterval Duration `toml:"refresh_interval"`
	PageSize        int      `toml:"page_size"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port int `toml:"port"`
}

// ServiceConfig holds the listen port of the bundled log service
type ServiceConfig struct {
	Port int `toml:"port"`
}

// StorageConfig holds storage-related configuration of the log service
type StorageConfig struct {
	RetentionSize string `toml:"retention_size"` // e.g., "1GB", "500MB"
	RetentionDays int    `toml:"retention_days"`
	DBPath        string `toml:"db_path"`
}

// LogConfig selects the structured logger
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// RulesConfig names an optional taxonomy file (.toml, .yaml or .yml)
type RulesConfig struct {
	File string `toml:"file"`
}

// Duration is a time.Duration written as "30s" in config files
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultPath is where the config file is looked up
const DefaultPath = "~/.logdeck/config.toml"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Source: SourceConfig{
			BaseURL:           "http://localhost:8081",
			Timeout:           Duration{15 * time.Second},
			TransactionsLimit: 100,
		},
		View: ViewConfig{
			RefreshInterval: Duration{30 * time.Second},
			PageSize:        20,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Service: ServiceConfig{
			Port: 8081,
		},
		Storage: StorageConfig{
			RetentionSize: "1GB",
			RetentionDays: 7,
			DBPath:        filepath.Join(home, ".logdeck", "db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ExpandPath expands a leading ~/ to the home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	// Relative rule files are resolved next to the config file
	if cfg.Rules.File != "" && !filepath.IsAbs(cfg.Rules.File) && !strings.HasPrefix(cfg.Rules.File, "~/") {
		cfg.Rules.File = filepath.Join(filepath.Dir(path), cfg.Rules.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Service.Port < 0 || c.Service.Port > 65535 {
		errs = append(errs, fmt.Errorf("service.port out of range: %d", c.Service.Port))
	}
	if c.View.PageSize < 0 {
		errs = append(errs, fmt.Errorf("view.page_size must not be negative: %d", c.View.PageSize))
	}
	if c.View.RefreshInterval.Duration < 0 {
		errs = append(errs, fmt.Errorf("view.refresh_interval must not be negative: %s", c.View.RefreshInterval))
	}
	if c.Source.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("source.timeout must not be negative: %s", c.Source.Timeout))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json: %s", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseSize parses a size string like "1GB", "500MB" to bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))

	var multiplier int64 = 1
	var numStr string

	if strings.HasSuffix(sizeStr, "GB") {
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(sizeStr, "GB")
	} else if strings.HasSuffix(sizeStr, "MB") {
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(sizeStr, "MB")
	} else if strings.HasSuffix(sizeStr, "KB") {
		multiplier = 1024
		numStr = strings.TrimSuffix(sizeStr, "KB")
	} else {
		return 0, fmt.Errorf("invalid size format: %s (use KB, MB, or GB)", sizeStr)
	}

	var num float64
	_, err := fmt.Sscanf(numStr, "%f", &num)
	if err != nil {
		return 0, fmt.Errorf("invalid size number: %s", numStr)
	}

	return int64(num * float64(multiplier)), nil
}

// GetRetentionSizeBytes returns retention size in bytes
func (c *Config) GetRetentionSizeBytes() int64 {
	size, err := ParseSize(c.Storage.RetentionSize)
	if err != nil {
		return 1024 * 1024 * 1024 // Default to 1GB
	}
	return size
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
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error: %s", s)
}

// NewLogger builds the structured logger described by the [log] section
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
