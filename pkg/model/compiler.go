package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/decl"
	"github.com/leapstack-labs/leaporm/pkg/naming"
)

// rawModel is the accepted shape of one model entry.
type rawModel struct {
	Properties         map[string]any    `mapstructure:"properties"`
	Plural             string            `mapstructure:"plural"`
	FriendlyName       string            `mapstructure:"friendlyName"`
	FriendlyPluralName string            `mapstructure:"friendlyPluralName"`
	PrimaryKey         []string          `mapstructure:"primaryKey"`
	Security           []rawSecurityRule `mapstructure:"security"`
	Config             map[string]any    `mapstructure:"config"`
}

type rawSecurityRule struct {
	Role        string   `mapstructure:"role"`
	Permissions []string `mapstructure:"permissions"`
	Filter      string   `mapstructure:"filter"`
}

// rawProperty is the accepted shape of an explicit property option map.
type rawProperty struct {
	Type       string `mapstructure:"type"`
	Size       *int   `mapstructure:"size"`
	Size2      *int   `mapstructure:"size2"`
	Required   bool   `mapstructure:"required"`
	Multiple   bool   `mapstructure:"multiple"`
	PrimaryKey bool   `mapstructure:"primaryKey"`
	ReadOnly   bool   `mapstructure:"readOnly"`
	Searchable bool   `mapstructure:"searchable"`
	Default    any    `mapstructure:"default"`
	Generation string `mapstructure:"generation"`
	Reference  any    `mapstructure:"reference"`
	Comment    string `mapstructure:"comment"`
}

type rawReference struct {
	TargetType      string           `mapstructure:"targetType"`
	ReverseProperty string           `mapstructure:"reverseProperty"`
	Path            []rawPathSegment `mapstructure:"path"`
	SelectProperty  string           `mapstructure:"selectProperty"`
}

type rawPathSegment struct {
	Type            string `mapstructure:"type"`
	Property        string `mapstructure:"property"`
	ForwardProperty string `mapstructure:"forwardProperty"`
}

// Compiler builds Definitions from raw declarative maps.
type Compiler struct {
	types  *datatype.Registry
	known  Lookup
	logger *slog.Logger
}

// NewCompiler creates a compiler. known resolves reference targets that are
// not part of the compiled batch and may be nil.
func NewCompiler(types *datatype.Registry, known Lookup, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{types: types, known: known, logger: logger}
}

// Compile validates and assembles one definition per model entry in raw.
// The batch is all-or-nothing: on error no definitions are returned.
//
// The result also contains copies of already known definitions that
// gained an inferred reverse property; callers register them alongside
// the batch.
func (c *Compiler) Compile(raw map[string]any) ([]*Definition, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	batch := make(map[string]*Definition, len(names))
	for _, name := range names {
		def, err := c.compileModel(name, raw[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		batch[name] = def
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	touched, err := c.linkReferences(names, batch)
	if err != nil {
		return nil, err
	}

	out := make([]*Definition, 0, len(batch)+len(touched))
	for _, name := range names {
		out = append(out, batch[name])
	}
	out = append(out, touched...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	c.logger.Debug("compiled models", slog.Int("count", len(out)))
	return out, nil
}

func decodeStrict(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		// keys are case sensitive
		MatchName: func(mapKey, fieldName string) bool { return mapKey == fieldName },
		Result:    out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func (c *Compiler) compileModel(name string, raw any) (*Definition, error) {
	if !isIdentifier(name) {
		return nil, compileErrf(name, "", ErrInvalidDeclaration, "model name must be an identifier")
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, compileErrf(name, "", ErrInvalidDeclaration, "model must be a mapping, got %T", raw)
	}

	var rm rawModel
	if err := decodeStrict(raw, &rm); err != nil {
		return nil, compileErr(name, "", fmt.Errorf("%w: %w", ErrInvalidDeclaration, err))
	}
	if rm.Properties == nil {
		return nil, compileErrf(name, "", ErrInvalidDeclaration, "missing required key \"properties\"")
	}

	var errs []error
	props := make(map[string]*Property, len(rm.Properties))
	for rawName, value := range rm.Properties {
		propName, marked := strings.CutPrefix(rawName, "@")
		if !isIdentifier(propName) {
			errs = append(errs, compileErrf(name, rawName, ErrInvalidDeclaration, "property name must be an identifier"))
			continue
		}
		if _, dup := props[propName]; dup {
			errs = append(errs, compileErrf(name, propName, ErrInvalidDeclaration, "declared twice"))
			continue
		}
		p, err := c.compileProperty(name, propName, value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if marked {
			p.PrimaryKey = true
		}
		props[propName] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	pk, err := resolvePrimaryKey(name, props, rm.PrimaryKey)
	if err != nil {
		return nil, err
	}

	def := NewDefinition(name)
	def.PrimaryKey = pk
	def.Plural = rm.Plural
	if def.Plural == "" {
		def.Plural = naming.Pluralize(name)
	}
	def.FriendlyName = rm.FriendlyName
	if def.FriendlyName == "" {
		def.FriendlyName = naming.Friendly(name)
	}
	def.FriendlyPluralName = rm.FriendlyPluralName
	if def.FriendlyPluralName == "" {
		def.FriendlyPluralName = naming.Friendly(def.Plural)
	}
	cfg, err := normalizeConfig(rm.Config)
	if err != nil {
		return nil, compileErr(name, "", err)
	}
	def.Config = cfg

	for _, rule := range rm.Security {
		if err := validateSecurityRule(rule); err != nil {
			return nil, compileErr(name, "", err)
		}
		def.Security = append(def.Security, SecurityRule(rule))
	}

	for _, propName := range propertyOrder(props, pk) {
		if err := def.AddProperty(props[propName]); err != nil {
			return nil, compileErr(name, propName, err)
		}
	}
	return def, nil
}

// propertyOrder lists primary-key properties first, in key order, then the
// remaining properties alphabetically.
func propertyOrder(props map[string]*Property, pk []string) []string {
	order := append([]string(nil), pk...)
	inKey := make(map[string]bool, len(pk))
	for _, name := range pk {
		inKey[name] = true
	}
	var rest []string
	for name := range props {
		if !inKey[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func resolvePrimaryKey(model string, props map[string]*Property, explicit []string) ([]string, error) {
	var marked []string
	for name, p := range props {
		if p.PrimaryKey {
			marked = append(marked, name)
		}
	}
	sort.Strings(marked)

	var pk []string
	switch {
	case len(explicit) > 0 && len(marked) > 0:
		return nil, compileErrf(model, marked[0], ErrDuplicatePrimaryKey,
			"primaryKey list %v conflicts with per-property markers %v", explicit, marked)
	case len(explicit) > 0:
		seen := make(map[string]bool)
		for _, name := range explicit {
			p, ok := props[name]
			if !ok {
				return nil, compileErrf(model, name, ErrUndefinedField, "primaryKey names an undefined property")
			}
			if seen[name] {
				return nil, compileErrf(model, name, ErrDuplicatePrimaryKey, "listed twice in primaryKey")
			}
			seen[name] = true
			p.PrimaryKey = true
			pk = append(pk, name)
		}
	case len(marked) > 0:
		pk = marked
	default:
		// Convenience default: an "id" property becomes the key, and a model
		// with neither gets a synthesized one.
		id, ok := props["id"]
		if !ok {
			id = &Property{Name: "id", Type: datatype.Integer}
			props["id"] = id
		}
		id.PrimaryKey = true
		if id.Generation == GenerationNone {
			id.Generation = defaultGeneration(id.Type)
		}
		pk = []string{"id"}
	}

	for _, name := range pk {
		p := props[name]
		if p.IsVirtual() || p.Multiple {
			return nil, compileErrf(model, name, ErrInvalidDeclaration, "primary key must be a single-valued stored property")
		}
	}
	return pk, nil
}

func defaultGeneration(typ string) Generation {
	switch typ {
	case datatype.Integer:
		return GenerationAuto
	case datatype.UUID, datatype.String:
		return GenerationUUID
	default:
		return GenerationNone
	}
}

func validateSecurityRule(rule rawSecurityRule) error {
	if rule.Role == "" {
		return fmt.Errorf("%w: security rule without role", ErrInvalidDeclaration)
	}
	for _, perm := range rule.Permissions {
		switch perm {
		case PermissionRead, PermissionCreate, PermissionUpdate, PermissionDelete:
		default:
			return fmt.Errorf("%w: unknown permission %q for role %s", ErrInvalidDeclaration, perm, rule.Role)
		}
	}
	return nil
}

func (c *Compiler) compileProperty(model, name string, value any) (*Property, error) {
	var (
		p   *Property
		err error
	)
	switch v := value.(type) {
	case string:
		p, err = c.fromDeclaration(model, name, v)
	case map[string]any:
		p, err = c.fromOptions(model, name, v)
	default:
		return nil, compileErrf(model, name, ErrInvalidDeclaration, "must be a declaration string or an option map, got %T", value)
	}
	if err != nil {
		return nil, err
	}
	p.Model = model
	p.Name = name
	if err := c.validateProperty(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Compiler) fromDeclaration(model, name, text string) (*Property, error) {
	d, err := decl.Parse(text)
	if err != nil {
		return nil, compileErr(model, name, fmt.Errorf("%w: %w", ErrInvalidDeclaration, err))
	}

	p := &Property{
		Required: d.Required,
		Multiple: d.Multiple,
		Size:     d.Size,
		Size2:    d.Size2,
		Comment:  d.Comment,
	}
	if d.Generated {
		p.Generation = GenerationAuto
		if d.Type == datatype.UUID {
			p.Generation = GenerationUUID
		}
	}

	if d.Virtual {
		p.Type = datatype.Virtual
		p.Reference = &Reference{Target: d.Type, Reverse: d.Reverse, Select: d.Select}
		for _, seg := range d.Path {
			p.Reference.Path = append(p.Reference.Path, PathSegment(seg))
		}
		return p, nil
	}

	p.Type = d.Type
	switch {
	case d.Reverse != "":
		return nil, compileErrf(model, name, ErrInvalidDeclaration, "reverse property %q requires a '#' reference", d.Reverse)
	case d.Select != "":
		return nil, compileErrf(model, name, ErrInvalidDeclaration, "select property %q requires a '#' reference", d.Select)
	case len(d.Path) > 0:
		return nil, compileErrf(model, name, ErrInvalidDeclaration, "reference path requires a '#' reference")
	}
	return p, nil
}

func (c *Compiler) fromOptions(model, name string, opts map[string]any) (*Property, error) {
	var rp rawProperty
	if err := decodeStrict(opts, &rp); err != nil {
		return nil, compileErr(model, name, fmt.Errorf("%w: %w", ErrInvalidDeclaration, err))
	}

	typ, multiple := strings.CutSuffix(rp.Type, "[]")
	p := &Property{
		Type:       typ,
		Size:       rp.Size,
		Size2:      rp.Size2,
		Required:   rp.Required,
		Multiple:   rp.Multiple || multiple,
		PrimaryKey: rp.PrimaryKey,
		ReadOnly:   rp.ReadOnly,
		Searchable: rp.Searchable,
		Comment:    rp.Comment,
	}

	switch Generation(rp.Generation) {
	case GenerationNone, GenerationAuto, GenerationUUID:
		p.Generation = Generation(rp.Generation)
	default:
		return nil, compileErrf(model, name, ErrInvalidDeclaration, "unknown generation strategy %q", rp.Generation)
	}

	def, err := normalizeDefault(rp.Default)
	if err != nil {
		return nil, compileErr(model, name, err)
	}
	p.Default = def

	if rp.Reference != nil {
		ref, refMultiple, err := normalizeReference(rp.Reference)
		if err != nil {
			return nil, compileErr(model, name, err)
		}
		if p.Type == "" {
			p.Type = datatype.Virtual
		}
		if p.Type != datatype.Virtual {
			return nil, compileErrf(model, name, ErrInvalidDeclaration, "reference requires type %q, got %q", datatype.Virtual, p.Type)
		}
		p.Reference = ref
		p.Multiple = p.Multiple || refMultiple
	}
	if p.Type == "" {
		return nil, compileErrf(model, name, ErrInvalidDeclaration, "missing type")
	}
	return p, nil
}

// normalizeReference accepts a bare target name ("Tag", "Tag[]") or a
// reference option map.
func normalizeReference(v any) (*Reference, bool, error) {
	switch r := v.(type) {
	case string:
		target, multiple := strings.CutSuffix(r, "[]")
		return &Reference{Target: target}, multiple, nil
	case map[string]any:
		var rr rawReference
		if err := decodeStrict(r, &rr); err != nil {
			return nil, false, fmt.Errorf("%w: reference: %w", ErrInvalidDeclaration, err)
		}
		target, multiple := strings.CutSuffix(rr.TargetType, "[]")
		ref := &Reference{Target: target, Reverse: rr.ReverseProperty, Select: rr.SelectProperty}
		for _, seg := range rr.Path {
			ref.Path = append(ref.Path, PathSegment{Type: seg.Type, Property: seg.Property, Forward: seg.ForwardProperty})
		}
		return ref, multiple, nil
	default:
		return nil, false, fmt.Errorf("%w: reference must be a string or a mapping, got %T", ErrInvalidDeclaration, v)
	}
}

func normalizeDefault(v any) (any, error) {
	switch d := v.(type) {
	case nil, string, bool, float64, int64:
		return d, nil
	case time.Time:
		return d.UTC(), nil
	case int:
		return int64(d), nil
	case int8:
		return int64(d), nil
	case int16:
		return int64(d), nil
	case int32:
		return int64(d), nil
	case uint:
		return int64(d), nil
	case uint8:
		return int64(d), nil
	case uint16:
		return int64(d), nil
	case uint32:
		return int64(d), nil
	case float32:
		return float64(d), nil
	default:
		return nil, fmt.Errorf("%w: unsupported default value type %T", ErrInvalidDeclaration, v)
	}
}

// normalizeConfig coerces free-form config into JSON value types so that it
// survives the snapshot round trip unchanged.
func normalizeConfig(cfg map[string]any) (map[string]any, error) {
	if cfg == nil {
		return nil, nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: config: %w", ErrInvalidDeclaration, err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: config: %w", ErrInvalidDeclaration, err)
	}
	return out, nil
}

func (c *Compiler) validateProperty(p *Property) error {
	if !c.types.Has(p.Type) {
		return compileErrf(p.Model, p.Name, ErrUnknownType, "%q", p.Type)
	}
	if p.Size2 != nil && p.Size == nil {
		return compileErr(p.Model, p.Name, ErrSize2WithoutSize)
	}

	if p.IsVirtual() {
		switch {
		case p.Reference == nil:
			return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "virtual property without a reference")
		case p.Size != nil:
			return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "reference cannot have a size")
		case p.Default != nil:
			return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "reference cannot have a default")
		case p.Generation != GenerationNone:
			return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "reference cannot be generated")
		}
		if !isIdentifier(p.Reference.Target) {
			return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "invalid reference target %q", p.Reference.Target)
		}
		for i, seg := range p.Reference.Path {
			if !isIdentifier(seg.Type) {
				return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "path segment %d has no type", i+1)
			}
		}
	}

	switch p.Generation {
	case GenerationAuto:
		if p.Type != datatype.Integer {
			return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "auto generation requires an integer, got %s", p.Type)
		}
	case GenerationUUID:
		if p.Type != datatype.UUID && p.Type != datatype.String {
			return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "uuid generation requires a uuid or string, got %s", p.Type)
		}
	}
	if p.Generation != GenerationNone && p.Multiple {
		return compileErrf(p.Model, p.Name, ErrInvalidDeclaration, "multi-valued property cannot be generated")
	}
	return nil
}

// linkReferences checks reverse and select properties across the batch and
// infers missing reverse properties on known targets.
func (c *Compiler) linkReferences(names []string, batch map[string]*Definition) ([]*Definition, error) {
	touched := make(map[string]*Definition)
	target := func(name string) (*Definition, bool) {
		if def, ok := batch[name]; ok {
			return def, true
		}
		if def, ok := touched[name]; ok {
			return def, true
		}
		if c.known == nil {
			return nil, false
		}
		def, ok := c.known.GetModelDefinition(name)
		return def, ok
	}

	var errs []error
	for _, name := range names {
		for _, p := range batch[name].Properties() {
			if p.Reference == nil {
				continue
			}
			tgt, ok := target(p.Reference.Target)
			if !ok {
				continue
			}

			if rev := p.Reference.Reverse; rev != "" {
				rp, exists := tgt.Property(rev)
				switch {
				case !exists:
					if _, inBatch := batch[tgt.Name]; !inBatch {
						if _, copied := touched[tgt.Name]; !copied {
							tgt = tgt.Clone()
							touched[tgt.Name] = tgt
						}
					}
					inferred := &Property{
						Name:      rev,
						Type:      datatype.Virtual,
						Multiple:  true,
						Reference: &Reference{Target: name, Reverse: p.Name},
						Inferred:  true,
					}
					if err := tgt.AddProperty(inferred); err != nil {
						errs = append(errs, compileErr(name, p.Name, err))
						continue
					}
					c.logger.Debug("inferred reverse property",
						slog.String("model", tgt.Name), slog.String("property", rev))
				case !rp.IsReference():
					errs = append(errs, compileErrf(name, p.Name, ErrUndefinedField,
						"reverse property %s.%s is not a reference", tgt.Name, rev))
					continue
				}
			}

			if sel := p.Reference.Select; sel != "" {
				first, _, _ := strings.Cut(sel, ".")
				if _, ok := tgt.Property(first); !ok {
					errs = append(errs, compileErrf(name, p.Name, ErrUndefinedField,
						"select property %s.%s", tgt.Name, first))
				}
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out := make([]*Definition, 0, len(touched))
	for _, def := range touched {
		out = append(out, def)
	}
	return out, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
