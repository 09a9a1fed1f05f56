package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leaporm/internal/config"
	"github.com/leapstack-labs/leaporm/internal/engine"
	"github.com/leapstack-labs/leaporm/pkg/progress"
	"github.com/spf13/cobra"
)

type configKey struct{}

type loggerKey struct{}

// WithConfig stores the loaded configuration and logger in ctx.
func WithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetConfig retrieves the configuration from ctx. Without one, the
// defaults are used.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	target := &config.TargetConfig{}
	target.ApplyDefaults()
	return &config.Config{
		ModelsDir:    config.DefaultModelsDir,
		StatePath:    config.DefaultStateFile,
		OutputFormat: config.DefaultOutput,
		Target:       target,
	}
}

// GetLogger retrieves the logger from ctx.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return newCommandContext(cmd, false)
}

func newCommandContext(cmd *cobra.Command, autoMigrate bool) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutEngine(cmd)

	eng, err := engine.New(engine.Config{
		ModelsDir:     cc.Cfg.ModelsDir,
		StatePath:     cc.Cfg.StatePath,
		AdapterConfig: cc.Cfg.Target.AdapterConfig(),
		AutoMigrate:   autoMigrate,
		Sink:          progress.NewLogSink(cc.Logger),
		Logger:        cc.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	cc.Engine = eng

	cleanup := func() {
		_ = eng.Close()
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need the state store or a database.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   GetLogger(cmd.Context()),
		Renderer: NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), Mode(cfg.OutputFormat)),
	}
}
