package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/lumen-lab/project-lumen/internal/dataset"
)

// Config represents the top-level application config plus the loaded
// dataset catalog.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Dashboards DashboardsConfig `koanf:"dashboards"`
	Datasets   DatasetsConfig   `koanf:"datasets"`
	Engine     EngineConfig     `koanf:"engine"`

	// Catalog is populated by Load after parsing dataset files.
	Catalog *dataset.Catalog `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	// Enabled selects the data layer: postgres when true, the
	// in-memory resolver when false (development, tests).
	Enabled      bool   `koanf:"enabled"`
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type DashboardsConfig struct {
	SourceType string `koanf:"source_type"` // filesystem | postgres | memory
	Path       string `koanf:"path"`
}

type DatasetsConfig struct {
	ConfigDir       string `koanf:"config_dir"`
	RequireDatasets bool   `koanf:"require_datasets"`
}

type EngineConfig struct {
	GuardWindow   string `koanf:"guard_window"` // parsed and validated on startup
	ResolveTTL    string `koanf:"resolve_ttl"`
	TagTTL        string `koanf:"tag_ttl"`
	RemoteWorkers int    `koanf:"remote_workers"`
}

// GuardWindowDuration returns the parsed guard window. Validate has
// already rejected unparseable values.
func (c EngineConfig) GuardWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.GuardWindow)
	return d
}

func (c EngineConfig) ResolveTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ResolveTTL)
	return d
}

func (c EngineConfig) TagTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TagTTL)
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

	if c.Database.Enabled {
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required when database.enabled")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
		if c.Database.Type != "" && c.Database.Type != "postgres" {
			return fmt.Errorf("unsupported database.type %q", c.Database.Type)
		}
	}

	switch c.Dashboards.SourceType {
	case "filesystem":
		if strings.TrimSpace(c.Dashboards.Path) == "" {
			return fmt.Errorf("dashboards.path is required for filesystem source")
		}
	case "postgres":
		if !c.Database.Enabled {
			return fmt.Errorf("dashboards.source_type postgres requires database.enabled")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported dashboards.source_type %q", c.Dashboards.SourceType)
	}

	if strings.TrimSpace(c.Datasets.ConfigDir) == "" {
		return fmt.Errorf("datasets.config_dir is required")
	}

	for key, raw := range map[string]string{
		"engine.guard_window": c.Engine.GuardWindow,
		"engine.resolve_ttl":  c.Engine.ResolveTTL,
		"engine.tag_ttl":      c.Engine.TagTTL,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	if c.Engine.RemoteWorkers <= 0 {
		return fmt.Errorf("engine.remote_workers must be > 0")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and
// validates the dataset catalog.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.max_body_size_mb":   1,
		"server.mode":               "release",
		"database.enabled":          false,
		"database.type":             "postgres",
		"database.dsn":              "",
		"database.max_open_conns":   25,
		"database.max_idle_conns":   25,
		"database.auto_migrate":     true,
		"dashboards.source_type":    "filesystem",
		"dashboards.path":           "./config/dashboards",
		"datasets.config_dir":       "./config/datasets",
		"datasets.require_datasets": true,
		"engine.guard_window":       "200ms",
		"engine.resolve_ttl":        "30s",
		"engine.tag_ttl":            "10m",
		"engine.remote_workers":     8,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("LUMEN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LUMEN_")), "__", ".", -1)
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

	catalog, err := dataset.LoadCatalog(cfg.Datasets.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset catalog: %w", err)
	}
	if cfg.Datasets.RequireDatasets && len(catalog.IDs()) == 0 {
		return nil, fmt.Errorf("no datasets found in %q", cfg.Datasets.ConfigDir)
	}
	cfg.Catalog = catalog

	return &cfg, nil
}
