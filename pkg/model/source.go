package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// SourceInfo identifies one declarative source and its content version.
type SourceInfo struct {
	Name    string    `json:"name"`
	ID      string    `json:"id"`
	Hash    string    `json:"hash"`
	ModTime time.Time `json:"modTime"`
}

// Source is one unit of raw declarative input, typically a file.
type Source struct {
	SourceInfo
	Models map[string]any
}

// SourceProvider supplies raw declarative sources.
type SourceProvider interface {
	Sources(ctx context.Context) ([]Source, error)
}

// HashSources combines per-source hashes into one content hash. The
// result does not depend on source order or modification times.
func HashSources(infos []SourceInfo) string {
	sorted := append([]SourceInfo(nil), infos...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, info := range sorted {
		_, _ = fmt.Fprintf(h, "%s\x00%s\n", info.ID, info.Hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MergeSources combines the model entries of all sources into one raw map.
// A model defined by two sources is an error naming both.
func MergeSources(sources []Source) (map[string]any, error) {
	merged := make(map[string]any)
	origin := make(map[string]string)
	for _, src := range sources {
		for name, raw := range src.Models {
			if prev, dup := origin[name]; dup {
				return nil, &CompileError{
					Model: name,
					Err:   fmt.Errorf("%w: defined in both %s and %s", ErrInvalidDeclaration, prev, src.ID),
				}
			}
			origin[name] = src.ID
			merged[name] = raw
		}
	}
	return merged, nil
}

// Infos returns the metadata of each source.
func Infos(sources []Source) []SourceInfo {
	out := make([]SourceInfo, len(sources))
	for i, src := range sources {
		out[i] = src.SourceInfo
	}
	return out
}
