// Package config loads and validates the sqlshift configuration file.
// Validation runs before any asset is touched: a broken config must stop
// the whole run, not surface halfway through a migration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the full sqlshift configuration.
type Config struct {
	Project      ProjectConfig      `yaml:"project"`
	Database     DatabaseConfig     `yaml:"database"`
	Verification VerificationConfig `yaml:"verification"`
	Corrector    CorrectorConfig    `yaml:"corrector"`
}

// ProjectConfig identifies the migration project and its working paths.
type ProjectConfig struct {
	Name       string `yaml:"name"`
	SourceDir  string `yaml:"source_dir"`
	TargetDir  string `yaml:"target_dir"`
	DBFile     string `yaml:"db_file"`
	MaxRetries int    `yaml:"max_retries"`
	Workers    int    `yaml:"workers"`
}

// DatabaseConfig holds source and target connection settings.
type DatabaseConfig struct {
	Source SourceDB `yaml:"source"`
	Target TargetDB `yaml:"target"`
}

// SourceDB describes the database the schema metadata is extracted from.
type SourceDB struct {
	Type    string   `yaml:"type"` // oracle, mysql, mariadb, mssql, db2, hana, snowflake
	URI     string   `yaml:"uri"`
	Schemas []string `yaml:"schemas"`
}

// TargetDB describes the PostgreSQL instance used for verification.
type TargetDB struct {
	URI                string `yaml:"uri"`
	StatementTimeoutMs int    `yaml:"statement_timeout_ms"`
	MaxConns           int32  `yaml:"max_conns"`
}

// VerificationConfig gates which statement classes the verifier may execute.
type VerificationConfig struct {
	AllowDangerousStatements bool `yaml:"allow_dangerous_statements"`
	AllowProcedureExecution  bool `yaml:"allow_procedure_execution"`
}

// CorrectorConfig configures the optional AI correction backend.
type CorrectorConfig struct {
	Enabled     bool    `yaml:"enabled"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxRounds   int     `yaml:"max_rounds"`
}

// Default returns a Config with sensible defaults. The project name and
// connection URIs have no defaults and must come from the config file.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			SourceDir:  "input",
			TargetDir:  "output",
			DBFile:     "sqlshift.db",
			MaxRetries: 3,
			Workers:    4,
		},
		Database: DatabaseConfig{
			Target: TargetDB{
				StatementTimeoutMs: 30000,
				MaxConns:           4,
			},
		},
		Corrector: CorrectorConfig{
			BaseURL:     "http://localhost:11434",
			Temperature: 0.1,
			MaxRounds:   3,
		},
	}
}

// Load reads configuration from a YAML file on top of Default values
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandPaths resolves environment variables in configured paths so that
// e.g. $DATA_ROOT/output works across machines.
func (c *Config) expandPaths() {
	c.Project.SourceDir = os.ExpandEnv(c.Project.SourceDir)
	c.Project.TargetDir = os.ExpandEnv(c.Project.TargetDir)
	c.Project.DBFile = os.ExpandEnv(c.Project.DBFile)
}

// Validate checks required keys and value ranges. It returns an error on
// the first problem found; the caller must treat that as fatal.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("config: project.name is required")
	}
	if c.Project.DBFile == "" {
		return fmt.Errorf("config: project.db_file is required")
	}
	if c.Project.MaxRetries < 1 {
		return fmt.Errorf("config: project.max_retries must be >= 1, got %d", c.Project.MaxRetries)
	}
	if c.Project.Workers < 1 {
		return fmt.Errorf("config: project.workers must be >= 1, got %d", c.Project.Workers)
	}
	if c.Database.Target.URI == "" {
		return fmt.Errorf("config: database.target.uri is required")
	}
	if c.Corrector.Enabled && c.Corrector.Model == "" {
		return fmt.Errorf("config: corrector.model is required when corrector is enabled")
	}
	if c.Corrector.MaxRounds < 1 {
		return fmt.Errorf("config: corrector.max_rounds must be >= 1, got %d", c.Corrector.MaxRounds)
	}
	return nil
}

// EnsureDirs creates the source and target directories if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Project.SourceDir, c.Project.TargetDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	if dbDir := filepath.Dir(c.Project.DBFile); dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dbDir, err)
		}
	}
	return nil
}

// RedactDSN strips credentials from a connection URI for safe logging.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "<redacted>"
	}
	if u.User != nil {
		u.User = nil
	}
	return u.String()
}
