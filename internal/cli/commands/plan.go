package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/dialect"
	"github.com/leapstack-labs/leaporm/pkg/schema"
	"github.com/spf13/cobra"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the tables planned for the models",
		Long: `Compile the models and print the planned storage schema: model tables,
side tables for multi-valued properties, and association tables for
many-to-many references.

With --sql, print the CREATE statements for an empty database of the
configured target type. No connection is made.`,
		Example: `  # Show planned tables
  leaporm plan

  # Print PostgreSQL DDL
  leaporm plan --sql --target-type postgres`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := syncFirst(cmd, cc); err != nil {
				return err
			}
			s, err := cc.Engine.Schema()
			if err != nil {
				return err
			}

			if showSQL {
				d, ok := dialect.Get(cc.Cfg.Target.Type)
				if !ok {
					return fmt.Errorf("no dialect for target type %q", cc.Cfg.Target.Type)
				}
				stmts, err := CreateStatements(s, d)
				if err != nil {
					return err
				}
				for _, stmt := range stmts {
					cc.Renderer.Println(stmt + ";")
				}
				return nil
			}
			return renderPlan(cc.Renderer, s)
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print CREATE statements instead of the table summary")
	return cmd
}

// CreateStatements renders the DDL that creates s in an empty database.
func CreateStatements(s *schema.Schema, d *dialect.Dialect) ([]string, error) {
	stmts, _, err := schema.NewDDL(d).Statements(schema.Diff(s, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to render schema: %w", err)
	}
	return stmts, nil
}

type tableJSON struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Model       string   `json:"model"`
	Property    string   `json:"property,omitempty"`
	Columns     []string `json:"columns"`
	PrimaryKey  []string `json:"primary_key"`
	ForeignKeys []string `json:"foreign_keys,omitempty"`
}

func renderPlan(r *Renderer, s *schema.Schema) error {
	tables := s.Tables()
	if r.EffectiveMode() == ModeJSON {
		out := make([]tableJSON, 0, len(tables))
		for _, t := range tables {
			out = append(out, tableJSON{
				Name:        t.Name,
				Kind:        t.Kind.String(),
				Model:       t.Model,
				Property:    t.Property,
				Columns:     columnNames(t),
				PrimaryKey:  t.PrimaryKey,
				ForeignKeys: foreignKeys(t),
			})
		}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Planned tables (%d)", len(tables)))
	rows := make([][]any, 0, len(tables))
	for _, t := range tables {
		owner := t.Model
		if t.Property != "" {
			owner += "." + t.Property
		}
		rows = append(rows, []any{
			t.Name,
			t.Kind.String(),
			owner,
			strings.Join(columnNames(t), ", "),
			strings.Join(foreignKeys(t), "; "),
		})
	}
	r.Table([]string{"Table", "Kind", "Owner", "Columns", "Foreign keys"}, rows)
	return nil
}

func columnNames(t *schema.Table) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func foreignKeys(t *schema.Table) []string {
	out := make([]string, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		out = append(out, fmt.Sprintf("(%s) -> %s(%s)",
			strings.Join(fk.Columns, ", "), fk.RefTable, strings.Join(fk.RefColumns, ", ")))
	}
	return out
}
