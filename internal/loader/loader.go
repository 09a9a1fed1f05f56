// Package loader reads declarative model sources from YAML files.
//
// Each file holds a mapping from model name to model declaration:
//
//	Author:
//	  properties:
//	    name: string(100)!
//	    books: "#Book[]"
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/model"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Loader provides model sources from a directory tree.
type Loader struct {
	dir    string
	limit  int
	logger *slog.Logger
}

var _ model.SourceProvider = (*Loader)(nil)

// New creates a loader for dir. If logger is nil, a discard logger is used.
func New(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{dir: dir, limit: runtime.GOMAXPROCS(0), logger: logger}
}

// Dir returns the directory the loader reads.
func (l *Loader) Dir() string { return l.dir }

// IsSourceFile reports whether name looks like a model source.
func IsSourceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Files lists the source files below the loader's directory in lexical order.
func (l *Loader) Files() ([]string, error) {
	if l.dir == "" {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSourceFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan models directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Sources reads and decodes every source file. Files are read concurrently;
// the result keeps the order of Files.
func (l *Loader) Sources(ctx context.Context) ([]model.Source, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loading model sources", slog.String("dir", l.dir), slog.Int("files", len(files)))

	out := make([]model.Source, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.limit)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := l.read(path)
			if err != nil {
				return err
			}
			out[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) read(path string) (model.Source, error) {
	id, err := filepath.Rel(l.dir, path)
	if err != nil {
		id = path
	}
	id = filepath.ToSlash(id)

	content, err := os.ReadFile(path)
	if err != nil {
		return model.Source{}, fmt.Errorf("failed to read %s: %w", id, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return model.Source{}, fmt.Errorf("failed to stat %s: %w", id, err)
	}

	models, err := Decode(content)
	if err != nil {
		return model.Source{}, fmt.Errorf("failed to parse %s: %w", id, err)
	}

	l.logger.Debug("loaded model source", slog.String("source", id), slog.Int("models", len(models)))
	return model.Source{
		SourceInfo: model.SourceInfo{
			Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			ID:      id,
			Hash:    ComputeHash(content),
			ModTime: info.ModTime(),
		},
		Models: models,
	}, nil
}

// Decode parses one YAML document into raw model declarations.
// An empty document yields an empty map.
func Decode(content []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	for name, v := range doc {
		if v == nil {
			return nil, fmt.Errorf("model %q has no declaration", name)
		}
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("model %q must be a mapping, got %T", name, v)
		}
	}
	return doc, nil
}

// ComputeHash returns the hex sha256 of content.
func ComputeHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
