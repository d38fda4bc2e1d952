package scopegraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jward/scopegraph/internal/analysis"
	"github.com/jward/scopegraph/internal/lang"
	"github.com/jward/scopegraph/internal/scope"
	"github.com/jward/scopegraph/internal/store"
	"github.com/jward/scopegraph/internal/symbol"
)

// ErrNotIndexed is returned for paths the store has no entry for.
var ErrNotIndexed = errors.New("file not indexed")

// QueryBuilder provides the navigation API over the indexed data.
type QueryBuilder struct {
	store    store.DataStore
	registry *lang.Registry
	analyzer *analysis.Analyzer
}

// Location is a named range in a file.
type Location struct {
	File  string
	Name  string
	Kind  string
	Range TextRange
}

// repoWideExcluded lists reference kinds that never fall back to a
// repository-wide lookup: local variables are never defined in another file.
var repoWideExcluded = map[string]bool{"var": true, "variable": true}

// fileView is a decoded file with a name lookup for its nodes.
type fileView struct {
	file  *store.File
	loc   symbol.Locations
	names map[[2]int]string
}

func (v *fileView) name(r TextRange) string {
	return v.names[[2]int{r.Start.Byte, r.End.Byte}]
}

func (v *fileView) location(r TextRange, kind string) Location {
	return Location{File: v.file.Path, Name: v.name(r), Kind: kind, Range: r}
}

func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (q *QueryBuilder) file(path string) (*store.File, error) {
	f, err := q.store.FileByPath(canonicalPath(path))
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, path)
	}
	return f, nil
}

// Locations returns the decoded symbol location store of an indexed file.
func (q *QueryBuilder) Locations(path string) (Locations, error) {
	f, err := q.file(path)
	if err != nil {
		return Locations{}, fmt.Errorf("locations: %w", err)
	}
	return q.locationsOf(f)
}

func (q *QueryBuilder) locationsOf(f *store.File) (Locations, error) {
	_, payload, err := q.store.LocationsPayload(f.ID)
	if err != nil {
		return Locations{}, fmt.Errorf("locations: %w", err)
	}
	loc, err := symbol.Decode(payload, q.registry)
	if err != nil {
		return Locations{}, fmt.Errorf("locations %s: %w", f.Path, err)
	}
	return loc, nil
}

func (q *QueryBuilder) view(path string) (*fileView, error) {
	f, err := q.file(path)
	if err != nil {
		return nil, err
	}
	loc, err := q.locationsOf(f)
	if err != nil {
		return nil, err
	}
	v := &fileView{file: f, loc: loc, names: make(map[[2]int]string)}
	syms, err := q.store.SymbolsByFile(f.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range syms {
		v.names[[2]int{s.Range.Start.Byte, s.Range.End.Byte}] = s.Name
	}
	refs, err := q.store.ReferencesByFile(f.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range refs {
		v.names[[2]int{r.Range.Start.Byte, r.Range.End.Byte}] = r.Name
	}
	return v, nil
}

// Symbols returns the flattened definitions of a file in document order:
// the classified definitions, matching Locations.Flatten.
func (q *QueryBuilder) Symbols(path string) ([]*Symbol, error) {
	f, err := q.file(path)
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	syms, err := q.store.SymbolsByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	out := syms[:0]
	for _, s := range syms {
		if s.Kind != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// SymbolsByName returns every definition called name across the
// repository, unclassified ones included.
func (q *QueryBuilder) SymbolsByName(name string) ([]*Symbol, error) {
	return q.store.SymbolsByName(name)
}

// Search returns every definition whose name matches a glob pattern such as
// "Handle*".
func (q *QueryBuilder) Search(pattern string) ([]*Symbol, error) {
	return q.store.SearchSymbols(pattern)
}

// DefinitionAt finds the definition of the symbol at a byte offset. A
// definition returns itself and a bound reference returns its local
// definition. An unbound reference whose kind is not a variable falls back
// to same-language definitions with the same name in other files.
func (q *QueryBuilder) DefinitionAt(path string, offset int) ([]Location, error) {
	v, err := q.view(path)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}

	g, ok := v.loc.Graph()
	if !ok {
		for _, tag := range v.loc.Flatten() {
			if tag.Range.ContainsByte(offset) {
				return []Location{v.location(tag.Range, tag.Kind)}, nil
			}
		}
		return nil, nil
	}

	n, ok := g.NodeAt(offset)
	if !ok {
		return nil, nil
	}
	node := g.Node(n)
	kind, _ := g.KindOf(n)
	switch node.Kind {
	case scope.NodeDefinition:
		return []Location{v.location(node.Range, kind)}, nil
	case scope.NodeReference:
		if d, bound := g.DefinitionOf(n); bound {
			dkind, _ := g.KindOf(d)
			return []Location{v.location(g.Node(d).Range, dkind)}, nil
		}
		if repoWideExcluded[kind] {
			return nil, nil
		}
		return q.repoWide(v.file, v.name(node.Range))
	}
	return nil, nil
}

// repoWide returns the definitions named name in other files of the same
// language.
func (q *QueryBuilder) repoWide(from *store.File, name string) ([]Location, error) {
	if name == "" {
		return nil, nil
	}
	syms, err := q.store.SymbolsByNameInLanguage(name, from.Language)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	var out []Location
	for _, s := range syms {
		if s.FileID == from.ID {
			continue
		}
		out = append(out, Location{File: s.Path, Name: s.Name, Kind: s.Kind, Range: s.Range})
	}
	return out, nil
}

// ReferencesAt returns the references sharing the definition at offset: on
// a definition its references, on a reference the references of its
// definition. Results are in document order.
func (q *QueryBuilder) ReferencesAt(path string, offset int) ([]Location, error) {
	v, err := q.view(path)
	if err != nil {
		return nil, fmt.Errorf("references at: %w", err)
	}
	g, ok := v.loc.Graph()
	if !ok {
		return nil, nil
	}
	n, ok := g.NodeAt(offset)
	if !ok {
		return nil, nil
	}

	def := n
	switch g.Node(n).Kind {
	case scope.NodeDefinition:
	case scope.NodeReference:
		if def, ok = g.DefinitionOf(n); !ok {
			return nil, nil
		}
	default:
		return nil, nil
	}

	refs := g.ReferencesTo(def)
	out := make([]Location, 0, len(refs))
	for _, r := range refs {
		kind, _ := g.KindOf(r)
		out = append(out, v.location(g.Node(r).Range, kind))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Less(out[j].Range) })
	return out, nil
}

// HoverableRanges re-parses an indexed file and returns its hoverable
// ranges in document order.
func (q *QueryBuilder) HoverableRanges(ctx context.Context, path string) ([]TextRange, error) {
	f, err := q.file(path)
	if err != nil {
		return nil, fmt.Errorf("hoverable ranges: %w", err)
	}
	src, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("hoverable ranges: %w", err)
	}
	ranges, err := q.analyzer.AnalyzeHoverable(ctx, f.Path, src, f.Language)
	if err != nil {
		return nil, fmt.Errorf("hoverable ranges: %w", err)
	}
	return ranges, nil
}

// UnresolvedReferences returns the references of a file with no local
// definition.
func (q *QueryBuilder) UnresolvedReferences(path string) ([]*Reference, error) {
	f, err := q.file(path)
	if err != nil {
		return nil, fmt.Errorf("unresolved references: %w", err)
	}
	return q.store.UnresolvedReferences(f.ID)
}

// Files returns every indexed file ordered by path.
func (q *QueryBuilder) Files() ([]*File, error) {
	return q.store.Files()
}
