/*
config.go - TOML configuration file

PURPOSE:
  Loads service settings from a TOML file. When the file does not exist a
  default one is written to the same path and its values are used, so a
  fresh install starts with a documented, editable configuration.

SECTIONS:
  [server]     HTTP port and CORS origins
  [database]   SQLite path (":memory:" for a throwaway database)
  [log]        Level (debug|info|warn|error) and format (json|console)
  [scheduler]  Background recompute job

PRECEDENCE:
  Command-line flags in cmd/server override file values.

SEE ALSO:
  - logging/logging.go: Consumes LogConfig
  - api/scheduler.go: Consumes SchedulerConfig
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Log       LogConfig       `toml:"log"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SchedulerConfig controls the periodic recompute of recent months.
type SchedulerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       Duration `toml:"interval"`
	LookbackMonths int      `toml:"lookback_months"`
	UserID         string   `toml:"user_id"`
}

// Duration is a time.Duration written as "1h30m" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Default returns the configuration written for a fresh install.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: "losses.db"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Scheduler: SchedulerConfig{
			Enabled:        false,
			Interval:       Duration{time.Hour},
			LookbackMonths: 1,
			UserID:         "scheduler",
		},
	}
}

// Load reads the file at path. A missing file is created with Default().
// Keys absent from an existing file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is empty")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval.Duration <= 0 {
		return errors.New("config: scheduler.interval must be positive")
	}
	if c.Scheduler.LookbackMonths < 0 {
		return errors.New("config: scheduler.lookback_months must not be negative")
	}
	return nil
}

func write(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: write defaults: %w", err)
	}
	return nil
}
