// Package config loads leaporm configuration. Values are layered with
// koanf: built-in defaults, then leaporm.yaml, then LEAPORM_ environment
// variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/leapstack-labs/leaporm/pkg/dialect"
)

// Default configuration values.
const (
	DefaultModelsDir = "models"
	DefaultStateFile = ".leaporm/state.db"
	DefaultTarget    = "sqlite"
	DefaultOutput    = "auto" // TTY=text, otherwise markdown
)

// TargetConfig holds database target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // sqlite, postgres, duckdb

	// File-based databases (SQLite, DuckDB); empty means in-memory
	Database string `koanf:"database"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Config holds all configuration options.
type Config struct {
	ModelsDir    string        `koanf:"models_dir"`
	StatePath    string        `koanf:"state_path"`
	Verbose      bool          `koanf:"verbose"`
	AutoMigrate  bool          `koanf:"auto_migrate"`
	OutputFormat string        `koanf:"output"`
	Target       *TargetConfig `koanf:"target"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// DefaultSchemaForType returns the default schema of a database type.
func DefaultSchemaForType(dbType string) string {
	if d, ok := dialect.Get(adapter.CanonicalName(dbType)); ok && d.DefaultSchema != "" {
		return d.DefaultSchema
	}
	return "main"
}

// ApplyDefaults fills type-specific defaults.
func (t *TargetConfig) ApplyDefaults() {
	if t.Type == "" {
		t.Type = DefaultTarget
	}
	t.Type = adapter.CanonicalName(t.Type)
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}

// Validate checks the target against the registered adapters.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(t.Type) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// AdapterConfig converts the target to adapter connection settings.
func (t *TargetConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     t.Type,
		Path:     t.Database,
		Database: t.Database,
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns. Unset variables are left as is.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

func (t *TargetConfig) expandEnvVars() {
	t.Database = expandEnvVars(t.Database)
	t.Host = expandEnvVars(t.Host)
	t.User = expandEnvVars(t.User)
	t.Password = expandEnvVars(t.Password)
	for k, v := range t.Options {
		t.Options[k] = expandEnvVars(v)
	}
}
