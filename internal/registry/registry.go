// Package registry tracks which model source declared which models.
// The sync engine uses it to report what a reload touched.
package registry

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/leaporm/pkg/model"
)

// SourceIndex maps sources to the models they declare.
type SourceIndex struct {
	mu sync.RWMutex

	// bySource maps source ids to their metadata and model names:
	// "catalog/books.yaml" → {hash, [Book, Edition]}
	bySource map[string]*entry

	// byModel maps model names back to the declaring source id.
	byModel map[string]string
}

type entry struct {
	info   model.SourceInfo
	models []string
}

// NewSourceIndex creates an empty index.
func NewSourceIndex() *SourceIndex {
	return &SourceIndex{
		bySource: make(map[string]*entry),
		byModel:  make(map[string]string),
	}
}

// Changes is the difference between two generations of sources.
type Changes struct {
	Added   []string // source ids
	Changed []string
	Removed []string
	// Models lists the models declared by added, changed or removed
	// sources, in both generations.
	Models []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0
}

// Replace swaps the index contents for sources and returns what changed
// relative to the previous contents.
func (x *SourceIndex) Replace(sources []model.Source) Changes {
	next := make(map[string]*entry, len(sources))
	byModel := make(map[string]string)
	for _, src := range sources {
		names := make([]string, 0, len(src.Models))
		for name := range src.Models {
			names = append(names, name)
			byModel[name] = src.ID
		}
		sort.Strings(names)
		next[src.ID] = &entry{info: src.SourceInfo, models: names}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	var ch Changes
	touched := make(map[string]struct{})
	mark := func(names []string) {
		for _, n := range names {
			touched[n] = struct{}{}
		}
	}
	for id, e := range next {
		prev, ok := x.bySource[id]
		switch {
		case !ok:
			ch.Added = append(ch.Added, id)
			mark(e.models)
		case prev.info.Hash != e.info.Hash:
			ch.Changed = append(ch.Changed, id)
			mark(e.models)
			mark(prev.models)
		}
	}
	for id, prev := range x.bySource {
		if _, ok := next[id]; !ok {
			ch.Removed = append(ch.Removed, id)
			mark(prev.models)
		}
	}
	for n := range touched {
		ch.Models = append(ch.Models, n)
	}
	sort.Strings(ch.Added)
	sort.Strings(ch.Changed)
	sort.Strings(ch.Removed)
	sort.Strings(ch.Models)

	x.bySource = next
	x.byModel = byModel
	return ch
}

// SourceOf returns the id of the source declaring a model.
func (x *SourceIndex) SourceOf(modelName string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byModel[modelName]
	return id, ok
}

// Models returns the models declared by a source, sorted.
func (x *SourceIndex) Models(sourceID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.bySource[sourceID]
	if !ok {
		return nil
	}
	return append([]string(nil), e.models...)
}

// Sources returns the metadata of all indexed sources ordered by id.
func (x *SourceIndex) Sources() []model.SourceInfo {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]model.SourceInfo, 0, len(x.bySource))
	for _, e := range x.bySource {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of indexed sources.
func (x *SourceIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.bySource)
}
