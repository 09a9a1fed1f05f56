package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SnapshotVersion is the encoding version written by Encode.
const SnapshotVersion = 1

// Snapshot is the persisted compiled form: every definition plus the
// content hash and metadata of the sources they were compiled from.
type Snapshot struct {
	Hash      string
	CreatedAt time.Time
	Sources   []SourceInfo
	Models    []*Definition
}

// NewSnapshot builds a snapshot for the given sources and definitions.
func NewSnapshot(sources []SourceInfo, models []*Definition) *Snapshot {
	return &Snapshot{
		Hash:      HashSources(sources),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Sources:   sources,
		Models:    models,
	}
}

type snapshotJSON struct {
	Version   int              `json:"version"`
	Hash      string           `json:"hash"`
	CreatedAt time.Time        `json:"createdAt"`
	Sources   []SourceInfo     `json:"sources"`
	Models    []definitionJSON `json:"models"`
}

type definitionJSON struct {
	Name               string         `json:"name"`
	Plural             string         `json:"plural"`
	FriendlyName       string         `json:"friendlyName"`
	FriendlyPluralName string         `json:"friendlyPluralName"`
	PrimaryKey         []string       `json:"primaryKey"`
	Security           []SecurityRule `json:"security,omitempty"`
	Config             map[string]any `json:"config,omitempty"`
	Properties         []propertyJSON `json:"properties"`
}

type propertyJSON struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Required   bool        `json:"required,omitempty"`
	Multiple   bool        `json:"multiple,omitempty"`
	PrimaryKey bool        `json:"primaryKey,omitempty"`
	ReadOnly   bool        `json:"readOnly,omitempty"`
	Searchable bool        `json:"searchable,omitempty"`
	Default    *typedValue `json:"default,omitempty"`
	Generation Generation  `json:"generation,omitempty"`
	Size       *int        `json:"size,omitempty"`
	Size2      *int        `json:"size2,omitempty"`
	Reference  *Reference  `json:"reference,omitempty"`
	Comment    string      `json:"comment,omitempty"`
	Inferred   bool        `json:"inferred,omitempty"`
}

// typedValue keeps the Go type of a default value across encoding.
type typedValue struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func encodeDefault(v any) (*typedValue, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &typedValue{Kind: "string", Value: d}, nil
	case bool:
		return &typedValue{Kind: "bool", Value: strconv.FormatBool(d)}, nil
	case int64:
		return &typedValue{Kind: "int", Value: strconv.FormatInt(d, 10)}, nil
	case float64:
		return &typedValue{Kind: "float", Value: strconv.FormatFloat(d, 'g', -1, 64)}, nil
	case time.Time:
		return &typedValue{Kind: "time", Value: d.Format(time.RFC3339Nano)}, nil
	default:
		return nil, fmt.Errorf("unsupported default value type %T", v)
	}
}

func decodeDefault(tv *typedValue) (any, error) {
	if tv == nil {
		return nil, nil
	}
	switch tv.Kind {
	case "string":
		return tv.Value, nil
	case "bool":
		return strconv.ParseBool(tv.Value)
	case "int":
		return strconv.ParseInt(tv.Value, 10, 64)
	case "float":
		return strconv.ParseFloat(tv.Value, 64)
	case "time":
		t, err := time.Parse(time.RFC3339Nano, tv.Value)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	default:
		return nil, fmt.Errorf("unknown default kind %q", tv.Kind)
	}
}

// Encode serializes the snapshot.
func (s *Snapshot) Encode() ([]byte, error) {
	out := snapshotJSON{
		Version:   SnapshotVersion,
		Hash:      s.Hash,
		CreatedAt: s.CreatedAt,
		Sources:   s.Sources,
		Models:    make([]definitionJSON, 0, len(s.Models)),
	}
	for _, def := range s.Models {
		dj := definitionJSON{
			Name:               def.Name,
			Plural:             def.Plural,
			FriendlyName:       def.FriendlyName,
			FriendlyPluralName: def.FriendlyPluralName,
			PrimaryKey:         def.PrimaryKey,
			Security:           def.Security,
			Config:             def.Config,
		}
		for _, p := range def.Properties() {
			dv, err := encodeDefault(p.Default)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s: %w", p.QualifiedName(), err)
			}
			dj.Properties = append(dj.Properties, propertyJSON{
				Name:       p.Name,
				Type:       p.Type,
				Required:   p.Required,
				Multiple:   p.Multiple,
				PrimaryKey: p.PrimaryKey,
				ReadOnly:   p.ReadOnly,
				Searchable: p.Searchable,
				Default:    dv,
				Generation: p.Generation,
				Size:       p.Size,
				Size2:      p.Size2,
				Reference:  p.Reference,
				Comment:    p.Comment,
				Inferred:   p.Inferred,
			})
		}
		out.Models = append(out.Models, dj)
	}
	return json.Marshal(out)
}

// DecodeSnapshot restores a snapshot written by Encode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if in.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", in.Version)
	}

	s := &Snapshot{
		Hash:      in.Hash,
		CreatedAt: in.CreatedAt.UTC(),
		Sources:   in.Sources,
	}
	for i := range s.Sources {
		s.Sources[i].ModTime = s.Sources[i].ModTime.UTC()
	}
	for _, dj := range in.Models {
		def := NewDefinition(dj.Name)
		def.Plural = dj.Plural
		def.FriendlyName = dj.FriendlyName
		def.FriendlyPluralName = dj.FriendlyPluralName
		def.PrimaryKey = dj.PrimaryKey
		def.Security = dj.Security
		def.Config = dj.Config
		for _, pj := range dj.Properties {
			dv, err := decodeDefault(pj.Default)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s.%s default: %w", dj.Name, pj.Name, err)
			}
			err = def.AddProperty(&Property{
				Name:       pj.Name,
				Type:       pj.Type,
				Required:   pj.Required,
				Multiple:   pj.Multiple,
				PrimaryKey: pj.PrimaryKey,
				ReadOnly:   pj.ReadOnly,
				Searchable: pj.Searchable,
				Default:    dv,
				Generation: pj.Generation,
				Size:       pj.Size,
				Size2:      pj.Size2,
				Reference:  pj.Reference,
				Comment:    pj.Comment,
				Inferred:   pj.Inferred,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to decode snapshot: %w", err)
			}
		}
		s.Models = append(s.Models, def)
	}
	return s, nil
}
