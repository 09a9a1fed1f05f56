package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leaporm/internal/engine"
	"github.com/spf13/cobra"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile model sources and store a snapshot",
		Long: `Load every YAML model source, compile the models and store the compiled
form in the state database. When the sources are unchanged since the last
snapshot, the snapshot is reused and nothing is compiled.

The database is never touched; use 'leaporm migrate' to apply the schema.`,
		Example: `  # Compile models from ./models
  leaporm compile

  # Compile another directory and print JSON
  leaporm compile --models-dir schema --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.Cfg.ValidateDirectories(); err != nil {
				return err
			}
			res, err := cc.Engine.Sync(cmd.Context())
			if err != nil {
				return err
			}
			return renderSync(cc.Renderer, res)
		},
	}
}

type syncJSON struct {
	Hash       string   `json:"hash"`
	Unchanged  bool     `json:"unchanged"`
	Models     int      `json:"models"`
	SnapshotID string   `json:"snapshot_id,omitempty"`
	Added      []string `json:"added,omitempty"`
	Changed    []string `json:"changed,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Statements []string `json:"statements,omitempty"`
}

func renderSync(r *Renderer, res *engine.SyncResult) error {
	if r.EffectiveMode() == ModeJSON {
		out := syncJSON{
			Hash:       res.Hash,
			Unchanged:  res.Unchanged,
			Models:     res.Models,
			SnapshotID: res.SnapshotID,
			Added:      res.Changes.Added,
			Changed:    res.Changes.Changed,
			Removed:    res.Changes.Removed,
		}
		if res.Migration != nil {
			out.Statements = res.Migration.Statements
		}
		return r.JSON(out)
	}

	if res.Unchanged {
		r.Printf("No changes detected (%d models, hash %s)\n", res.Models, shortHash(res.Hash))
		return nil
	}
	r.Printf("Compiled %d models in %s (snapshot %s)\n", res.Models, res.Duration.Round(time.Millisecond), res.SnapshotID)
	for _, line := range []struct {
		label string
		ids   []string
	}{
		{"added", res.Changes.Added},
		{"changed", res.Changes.Changed},
		{"removed", res.Changes.Removed},
	} {
		if len(line.ids) > 0 {
			r.Printf("  %s: %s\n", line.label, strings.Join(line.ids, ", "))
		}
	}
	if res.Migration != nil {
		r.Printf("Applied %d migration statements\n", len(res.Migration.Statements))
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// syncFirst compiles the models before commands that read them.
func syncFirst(cmd *cobra.Command, cc *CommandContext) error {
	if err := cc.Cfg.ValidateDirectories(); err != nil {
		return err
	}
	if _, err := cc.Engine.Sync(cmd.Context()); err != nil {
		return fmt.Errorf("failed to compile models: %w", err)
	}
	return nil
}
