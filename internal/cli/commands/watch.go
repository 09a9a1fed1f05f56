package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/leaporm/internal/engine"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Recompile models whenever their sources change",
		Long: `Compile the models, then watch the models directory and recompile after
every change to a YAML source. Bursts of file events are collapsed into
one compilation. With auto_migrate enabled, each successful compilation
that changes the models is followed by a migration.

Stop with Ctrl+C.`,
		Example: `  # Watch ./models
  leaporm watch

  # Watch and migrate a SQLite file on every change
  leaporm watch --auto-migrate --database app.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutEngine(cmd)
			if err := cc.Cfg.ValidateDirectories(); err != nil {
				return err
			}
			cc, cleanup, err := newCommandContext(cmd, cc.Cfg.AutoMigrate)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cc.Renderer.Printf("Watching %s\n", cc.Cfg.ModelsDir)
			err = cc.Engine.Watch(ctx, func(res *engine.SyncResult, err error) {
				if err != nil {
					cc.Renderer.Warn(err.Error())
					return
				}
				_ = renderSync(cc.Renderer, res)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
