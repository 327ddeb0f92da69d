package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/voyage-lab/project-voyage/internal/master"
)

// Config represents the top-level application config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Fold     FoldConfig     `koanf:"fold"`
	Masters  MastersConfig  `koanf:"masters"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"` // postgres | memory
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// PipelineConfig locates the standardisation spec files.
type PipelineConfig struct {
	SpecDir  string `koanf:"spec_dir"`
	Customer string `koanf:"customer"`
}

type FoldConfig struct {
	WorkerCount    int    `koanf:"worker_count"`
	IdempotencyTTL string `koanf:"idempotency_ttl"`
}

type MastersConfig struct {
	Enabled         bool                `koanf:"enabled"`
	RebuildInterval string              `koanf:"rebuild_interval"`
	WorkerCount     int                 `koanf:"worker_count"`
	Golden          master.GoldenConfig `koanf:"golden"`
	Tolerances      master.Tolerances   `koanf:"tolerances"`
}

// Interval parses the rebuild interval. Validate has already checked the
// string, but callers still handle the error rather than rely on that.
func (c MastersConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.RebuildInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid masters.rebuild_interval %q: %w", c.RebuildInterval, err)
	}
	return d, nil
}

func (c FoldConfig) EffectiveIdempotencyTTL() time.Duration {
	d, err := time.ParseDuration(c.IdempotencyTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Database.Type {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if strings.TrimSpace(c.Pipeline.SpecDir) == "" {
		return fmt.Errorf("pipeline.spec_dir is required")
	}
	if c.Fold.WorkerCount <= 0 {
		return fmt.Errorf("fold.worker_count must be > 0")
	}

	if c.Masters.Enabled {
		interval, err := c.Masters.Interval()
		if err != nil {
			return err
		}
		if interval <= 0 {
			return fmt.Errorf("masters.rebuild_interval must be > 0")
		}
	}

	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                          8080,
		"server.host":                          "0.0.0.0",
		"server.max_body_size_mb":              8,
		"server.mode":                          "release",
		"database.type":                        "postgres",
		"database.dsn":                         "",
		"database.max_open_conns":              25,
		"database.max_idle_conns":              25,
		"database.auto_migrate":                true,
		"pipeline.spec_dir":                    "./config/standardiser",
		"pipeline.customer":                    "",
		"fold.worker_count":                    8,
		"fold.idempotency_ttl":                 "24h",
		"masters.enabled":                      true,
		"masters.rebuild_interval":             "5m",
		"masters.worker_count":                 4,
		"masters.golden.stage_path":            "",
		"masters.golden.application_path":      "",
		"masters.tolerances.rowcount_pct":      2.0,
		"masters.tolerances.mean_minutes_abs":  5.0,
		"masters.tolerances.mean_minutes_rel":  0.05,
		"masters.tolerances.dist_tvd":          0.1,
		"masters.tolerances.allow_new_columns": false,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("VOYAGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "VOYAGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
