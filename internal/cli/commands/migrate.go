package commands

import (
	"github.com/leapstack-labs/leaporm/pkg/schema"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the target database in line with the models",
		Long: `Compile the models, compare the planned schema with the live database and
apply the additive changes: new tables, columns, indexes and foreign keys.

Nothing is ever dropped. Destructive differences are reported as warnings,
as are changes the target database cannot apply in place.`,
		Example: `  # Show the statements without running them
  leaporm migrate --dry-run

  # Migrate a SQLite file
  leaporm migrate --database app.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := syncFirst(cmd, cc); err != nil {
				return err
			}
			res, err := cc.Engine.Migrate(cmd.Context(), schema.MigrateOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			return renderMigration(cc.Renderer, res, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the statements without executing them")
	return cmd
}

type migrationJSON struct {
	DryRun     bool     `json:"dry_run"`
	Statements []string `json:"statements"`
	Skipped    []string `json:"skipped,omitempty"`
	Discarded  []string `json:"discarded,omitempty"`
}

func changeStrings(changes []schema.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.String()
	}
	return out
}

func renderMigration(r *Renderer, res *schema.MigrationResult, dryRun bool) error {
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(migrationJSON{
			DryRun:     dryRun,
			Statements: append([]string{}, res.Statements...),
			Skipped:    changeStrings(res.Skipped),
			Discarded:  changeStrings(res.Discarded),
		})
	}

	for _, c := range res.Skipped {
		r.Warn("not supported by the target database: " + c.String())
	}
	for _, c := range res.Discarded {
		r.Warn("destructive change ignored: " + c.String())
	}

	if len(res.Statements) == 0 {
		r.Println("Database is up to date")
		return nil
	}
	if dryRun {
		r.Printf("-- %d statements (dry run)\n", len(res.Statements))
		for _, stmt := range res.Statements {
			r.Println(stmt + ";")
		}
		return nil
	}
	r.Printf("Applied %d statements\n", len(res.Statements))
	for _, c := range res.Applied {
		r.Printf("  %s\n", c)
	}
	return nil
}
