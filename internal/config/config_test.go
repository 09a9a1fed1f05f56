package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/leaporm/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leaporm/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leaporm/pkg/adapters/sqlite"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("models-dir", "", "")
	fs.String("state", "", "")
	fs.String("database", "", "")
	fs.String("target-type", "", "")
	fs.Bool("verbose", false, "")
	fs.Bool("auto-migrate", false, "")
	fs.String("output", "", "")
	return fs
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTargetConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		target    TargetConfig
		errSubstr string
	}{
		{name: "empty type", target: TargetConfig{}, errSubstr: "target type is required"},
		{name: "sqlite", target: TargetConfig{Type: "sqlite"}},
		{name: "duckdb", target: TargetConfig{Type: "duckdb"}},
		{name: "postgres", target: TargetConfig{Type: "postgres"}},
		{name: "unknown type mysql", target: TargetConfig{Type: "mysql"}, errSubstr: "unknown adapter type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}

	var unknown *adapter.UnknownAdapterError
	err := (&TargetConfig{Type: "oracle"}).Validate()
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, unknown.Available, "sqlite")
}

func TestTargetConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name       string
		target     TargetConfig
		wantType   string
		wantSchema string
		wantPort   int
	}{
		{name: "empty is sqlite", target: TargetConfig{}, wantType: "sqlite", wantSchema: "main"},
		{name: "postgres", target: TargetConfig{Type: "postgres"}, wantType: "postgres", wantSchema: "public", wantPort: 5432},
		{name: "postgres alias", target: TargetConfig{Type: "PostgreSQL", Port: 6543}, wantType: "postgres", wantSchema: "public", wantPort: 6543},
		{name: "duckdb", target: TargetConfig{Type: "duckdb"}, wantType: "duckdb", wantSchema: "main"},
		{name: "explicit schema kept", target: TargetConfig{Type: "postgres", Schema: "app"}, wantType: "postgres", wantSchema: "app", wantPort: 5432},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.target
			target.ApplyDefaults()
			assert.Equal(t, tt.wantType, target.Type)
			assert.Equal(t, tt.wantSchema, target.Schema)
			assert.Equal(t, tt.wantPort, target.Port)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LEAPORM_TEST_PASSWORD", "s3cret")

	assert.Equal(t, "s3cret", expandEnvVars("${LEAPORM_TEST_PASSWORD}"))
	assert.Equal(t, "pre-s3cret-post", expandEnvVars("pre-${LEAPORM_TEST_PASSWORD}-post"))
	assert.Equal(t, "${LEAPORM_TEST_UNSET}", expandEnvVars("${LEAPORM_TEST_UNSET}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	res, err := Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, res.File)
	assert.Equal(t, filepath.Join(dir, DefaultModelsDir), res.ModelsDir)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), res.StatePath)
	assert.Equal(t, DefaultOutput, res.OutputFormat)
	assert.False(t, res.AutoMigrate)
	require.NotNil(t, res.Target)
	assert.Equal(t, "sqlite", res.Target.Type)
	assert.Equal(t, "main", res.Target.Schema)
	assert.Empty(t, res.Target.Database, "no database means in-memory")
}

func TestLoad_Layers(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
models_dir: schema
auto_migrate: true
target:
  type: postgres
  host: db.internal
  user: app
  password: ${LEAPORM_TEST_DB_PASSWORD}
  database: library
`)
	sub := filepath.Join(dir, "nested", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)
	t.Setenv("LEAPORM_TEST_DB_PASSWORD", "hunter2")

	t.Run("file found upward", func(t *testing.T) {
		res, err := Load("", nil)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, ConfigFileName), res.File)
		assert.Equal(t, dir, res.ProjectRoot)
		assert.Equal(t, filepath.Join(dir, "schema"), res.ModelsDir)
		assert.True(t, res.AutoMigrate)
		assert.Equal(t, "postgres", res.Target.Type)
		assert.Equal(t, 5432, res.Target.Port)
		assert.Equal(t, "public", res.Target.Schema)
		assert.Equal(t, "hunter2", res.Target.Password)
		assert.Equal(t, "library", res.Target.Database, "postgres database names are not paths")
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("LEAPORM_MODELS_DIR", "from-env")
		t.Setenv("LEAPORM_TARGET__HOST", "replica.internal")
		t.Setenv("LEAPORM_TARGET__PORT", "6432")

		res, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "from-env"), res.ModelsDir)
		assert.Equal(t, "replica.internal", res.Target.Host)
		assert.Equal(t, 6432, res.Target.Port)
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("LEAPORM_MODELS_DIR", "from-env")
		fs := testFlags()
		require.NoError(t, fs.Parse([]string{"--models-dir", "cli-models", "--target-type", "sqlite", "--output", "json"}))

		res, err := Load("", fs)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(sub, "cli-models"), res.ModelsDir, "flag paths are relative to the working directory")
		assert.Equal(t, "sqlite", res.Target.Type)
		assert.Equal(t, "json", res.OutputFormat)
	})

	t.Run("unchanged flags do not override", func(t *testing.T) {
		fs := testFlags()
		require.NoError(t, fs.Parse(nil))

		res, err := Load("", fs)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "schema"), res.ModelsDir)
		assert.Equal(t, "postgres", res.Target.Type)
	})
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
state_path: state/leaporm.db
target:
  type: sqlite
  database: data/app.db
`)
	t.Chdir(t.TempDir())

	res, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, res.File)
	assert.Equal(t, filepath.Join(dir, "state", "leaporm.db"), res.StatePath)
	assert.Equal(t, filepath.Join(dir, "data", "app.db"), res.Target.Database)
	assert.Equal(t, filepath.Join(dir, "data", "app.db"), res.Target.AdapterConfig().Path)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{name: "unknown target", content: "target:\n  type: oracle\n", errSubstr: "unknown adapter type"},
		{name: "bad output", content: "output: html\n", errSubstr: "invalid output format"},
		{name: "broken yaml", content: "target: [\n", errSubstr: "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			t.Chdir(dir)

			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_ValidateDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{ModelsDir: filepath.Join(dir, "missing")}
	err := cfg.ValidateDirectories()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models directory does not exist")

	cfg.ModelsDir = dir
	assert.NoError(t, cfg.ValidateDirectories())
}

func TestLoad_DatabaseFlag(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "sqlite path is relative to cwd", args: []string{"--database", "app.db"}, want: filepath.Join(dir, "app.db")},
		{name: "postgres name is kept", args: []string{"--target-type", "postgres", "--database", "library"}, want: "library"},
		{name: "memory is kept", args: []string{"--database", ":memory:"}, want: ":memory:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := testFlags()
			require.NoError(t, fs.Parse(tt.args))

			res, err := Load("", fs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Target.Database)
		})
	}
}
