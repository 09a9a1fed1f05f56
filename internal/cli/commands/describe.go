package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaporm/internal/registry"
	"github.com/leapstack-labs/leaporm/pkg/cardinality"
	"github.com/leapstack-labs/leaporm/pkg/model"
	"github.com/leapstack-labs/leaporm/pkg/schema"
	"github.com/spf13/cobra"
)

// NewDescribeCommand creates the describe command.
func NewDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [model]",
		Short: "List models or show one model's properties",
		Long: `Without arguments, list every compiled model with its table and source file.
With a model name, show its properties: type, flags, reference target,
relationship cardinality and how each property is stored.`,
		Example: `  # List models
  leaporm describe

  # Show the Book model
  leaporm describe Book`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if len(args) == 0 {
				return renderModels(cc.Renderer, s, cc.Engine.Sources())
			}
			mm, ok := s.Model(args[0])
			if !ok {
				return fmt.Errorf("model %q not found", args[0])
			}
			return renderModel(cc.Renderer, mm, cc.Engine.Registry())
		},
	}
}

type modelJSON struct {
	Name       string         `json:"name"`
	Plural     string         `json:"plural,omitempty"`
	Table      string         `json:"table"`
	PrimaryKey []string       `json:"primary_key"`
	Source     string         `json:"source,omitempty"`
	Properties []propertyJSON `json:"properties,omitempty"`
}

type propertyJSON struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Flags       string `json:"flags,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Cardinality string `json:"cardinality,omitempty"`
	Storage     string `json:"storage"`
}

func renderModels(r *Renderer, s *schema.Schema, sources *registry.SourceIndex) error {
	models := s.Models()
	out := make([]modelJSON, 0, len(models))
	for _, mm := range models {
		src, _ := sources.SourceOf(mm.Definition.Name)
		out = append(out, modelJSON{
			Name:       mm.Definition.Name,
			Plural:     mm.Definition.Plural,
			Table:      mm.Table,
			PrimaryKey: mm.Definition.PrimaryKey,
			Source:     src,
		})
	}
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Models (%d)", len(out)))
	rows := make([][]any, 0, len(out))
	for i, m := range out {
		rows = append(rows, []any{
			m.Name,
			m.Plural,
			m.Table,
			strings.Join(m.PrimaryKey, ", "),
			len(models[i].Properties()),
			m.Source,
		})
	}
	r.Table([]string{"Model", "Plural", "Table", "Key", "Properties", "Source"}, rows)
	return nil
}

func renderModel(r *Renderer, mm *schema.ModelMapping, lookup model.Lookup) error {
	def := mm.Definition
	props := make([]propertyJSON, 0, len(mm.Properties()))
	for _, pm := range mm.Properties() {
		props = append(props, describeProperty(pm, lookup))
	}
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(modelJSON{
			Name:       def.Name,
			Plural:     def.Plural,
			Table:      mm.Table,
			PrimaryKey: def.PrimaryKey,
			Properties: props,
		})
	}

	r.Header(1, def.Name)
	r.Printf("Table: %s\nKey:   %s\n\n", mm.Table, strings.Join(def.PrimaryKey, ", "))
	rows := make([][]any, 0, len(props))
	for _, p := range props {
		rows = append(rows, []any{p.Name, p.Type, p.Flags, p.Reference, p.Cardinality, p.Storage})
	}
	r.Table([]string{"Property", "Type", "Flags", "Reference", "Cardinality", "Storage"}, rows)
	return nil
}

func describeProperty(pm *schema.PropertyMapping, lookup model.Lookup) propertyJSON {
	p := pm.Property
	out := propertyJSON{
		Name:    p.Name,
		Type:    p.Type,
		Flags:   propertyFlags(p),
		Storage: pm.Kind.String(),
	}
	if p.Reference == nil {
		return out
	}

	out.Reference = p.Reference.Target
	if p.Reference.Reverse != "" {
		out.Reference += "." + p.Reference.Reverse
	}
	if pm.Cardinality != (cardinality.Cardinality{}) {
		out.Cardinality = pm.Cardinality.Kind()
	} else if c, ok := cardinality.Resolve(p, lookup); ok {
		out.Cardinality = c.Kind()
	}
	return out
}

func propertyFlags(p *model.Property) string {
	var flags []string
	if p.PrimaryKey {
		flags = append(flags, "key")
	}
	if p.Generation != model.GenerationNone {
		flags = append(flags, string(p.Generation))
	}
	if p.Required {
		flags = append(flags, "required")
	}
	if p.Multiple {
		flags = append(flags, "multiple")
	}
	if p.ReadOnly {
		flags = append(flags, "readonly")
	}
	if p.Searchable {
		flags = append(flags, "searchable")
	}
	if p.Inferred {
		flags = append(flags, "inferred")
	}
	return strings.Join(flags, " ")
}
