package lang

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/zeebo/xxh3"

	"github.com/jward/scopegraph/internal/scope"
)

var (
	// ErrNoQuery means the language ships no query of the requested kind.
	ErrNoQuery = errors.New("no query")
	// ErrQuery wraps query compilation and vocabulary failures.
	ErrQuery = errors.New("query error")
)

// Strategy names what a language can produce, best first.
type Strategy string

const (
	StrategyScopeGraph Strategy = "scope_graph"
	StrategyTags       Strategy = "tags"
	StrategyNone       Strategy = "none"
)

// Language describes one supported language. Queries are compiled lazily,
// once, and shared read-only by every analysis task.
type Language struct {
	ID         string
	Aliases    []string
	Extensions []string // with leading dot
	Grammar    func() *sitter.Language
	Namespaces scope.Namespaces

	ScopesSource    string
	HoverableSource string
	TagsSource      string

	scopesOnce sync.Once
	scopes     *sitter.Query
	captures   *scope.CaptureMap
	scopesErr  error

	hoverOnce sync.Once
	hover     *sitter.Query
	hoverErr  error

	tagsOnce sync.Once
	tags     *sitter.Query
	tagsErr  error
}

// Strategy reports the best strategy the language's queries allow. It does
// not compile anything.
func (l *Language) Strategy() Strategy {
	switch {
	case l.ScopesSource != "":
		return StrategyScopeGraph
	case l.TagsSource != "":
		return StrategyTags
	}
	return StrategyNone
}

func (l *Language) compile(kind, source string) (*sitter.Query, error) {
	if source == "" {
		return nil, fmt.Errorf("%s %s: %w", l.ID, kind, ErrNoQuery)
	}
	q, err := sitter.NewQuery([]byte(source), l.Grammar())
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s query: %v", ErrQuery, l.ID, kind, err)
	}
	return q, nil
}

// ScopeQuery returns the compiled scope query and its capture map. A failure
// is cached and returned on every later call.
func (l *Language) ScopeQuery() (*sitter.Query, *scope.CaptureMap, error) {
	l.scopesOnce.Do(func() {
		q, err := l.compile("scopes", l.ScopesSource)
		if err != nil {
			l.scopesErr = err
			return
		}
		cm, err := scope.NewCaptureMap(q)
		if err != nil {
			q.Close()
			l.scopesErr = fmt.Errorf("%w: %s scopes query: %v", ErrQuery, l.ID, err)
			return
		}
		l.scopes, l.captures = q, cm
	})
	return l.scopes, l.captures, l.scopesErr
}

// HoverableQuery returns the compiled query whose @hoverable captures mark
// the nodes a client may hover.
func (l *Language) HoverableQuery() (*sitter.Query, error) {
	l.hoverOnce.Do(func() {
		l.hover, l.hoverErr = l.compile("hoverable", l.HoverableSource)
	})
	return l.hover, l.hoverErr
}

// TagsQuery returns the compiled flat-tag query. Its captures are named
// definition.<kind>.
func (l *Language) TagsQuery() (*sitter.Query, error) {
	l.tagsOnce.Do(func() {
		l.tags, l.tagsErr = l.compile("tags", l.TagsSource)
	})
	return l.tags, l.tagsErr
}

// TagKind returns the kind named by a tags query capture.
func TagKind(capture string) (string, bool) {
	kind, ok := strings.CutPrefix(capture, "definition.")
	return kind, ok && kind != ""
}

// Validate compiles every query the language ships and checks that each
// kind they name exists in the namespace table.
func (l *Language) Validate() error {
	if err := l.Namespaces.Validate(); err != nil {
		return fmt.Errorf("%s namespaces: %w", l.ID, err)
	}
	known := make(map[string]bool)
	for _, k := range l.Namespaces.AllKinds() {
		known[k] = true
	}

	var errs []error
	if l.ScopesSource != "" {
		_, cm, err := l.ScopeQuery()
		if err != nil {
			errs = append(errs, err)
		} else {
			for _, k := range cm.Kinds() {
				if !known[k] {
					errs = append(errs, fmt.Errorf("%w: %s scopes query: kind %q not in namespace table", ErrQuery, l.ID, k))
				}
			}
		}
	}
	if l.TagsSource != "" {
		q, err := l.TagsQuery()
		if err != nil {
			errs = append(errs, err)
		} else {
			for i := uint32(0); i < q.CaptureCount(); i++ {
				k, ok := TagKind(q.CaptureNameForId(i))
				if ok && !known[k] {
					errs = append(errs, fmt.Errorf("%w: %s tags query: kind %q not in namespace table", ErrQuery, l.ID, k))
				}
			}
		}
	}
	if l.HoverableSource != "" {
		if _, err := l.HoverableQuery(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registry looks languages up by id, alias, extension or path. It is built
// once and passed to everything that analyzes files.
type Registry struct {
	langs []*Language
	byID  map[string]*Language
	byExt map[string]*Language
}

// NewRegistry indexes langs. Ids and aliases are matched case-insensitively
// and must be unique, as must extensions.
func NewRegistry(langs ...*Language) (*Registry, error) {
	r := &Registry{
		byID:  make(map[string]*Language),
		byExt: make(map[string]*Language),
	}
	for _, l := range langs {
		if l.ID == "" || l.Grammar == nil {
			return nil, fmt.Errorf("language %q: id and grammar are required", l.ID)
		}
		for _, name := range append([]string{l.ID}, l.Aliases...) {
			key := strings.ToLower(name)
			if prev, dup := r.byID[key]; dup {
				return nil, fmt.Errorf("language name %q used by %s and %s", name, prev.ID, l.ID)
			}
			r.byID[key] = l
		}
		for _, ext := range l.Extensions {
			key := normalizeExt(ext)
			if prev, dup := r.byExt[key]; dup {
				return nil, fmt.Errorf("extension %q claimed by %s and %s", ext, prev.ID, l.ID)
			}
			r.byExt[key] = l
		}
		r.langs = append(r.langs, l)
	}
	sort.Slice(r.langs, func(i, j int) bool { return r.langs[i].ID < r.langs[j].ID })
	return r, nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry of built-in languages.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := NewRegistry(builtin()...)
		if err != nil {
			panic(fmt.Sprintf("lang: built-in registry: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ByID finds a language by id or alias, ignoring case.
func (r *Registry) ByID(id string) (*Language, bool) {
	l, ok := r.byID[strings.ToLower(id)]
	return l, ok
}

// ForExtension finds a language by file extension, with or without the dot.
func (r *Registry) ForExtension(ext string) (*Language, bool) {
	if ext == "" || ext == "." {
		return nil, false
	}
	l, ok := r.byExt[normalizeExt(ext)]
	return l, ok
}

// ForPath finds a language by the extension of path.
func (r *Registry) ForPath(path string) (*Language, bool) {
	return r.ForExtension(filepath.Ext(path))
}

// Languages returns every language sorted by id.
func (r *Registry) Languages() []*Language {
	out := make([]*Language, len(r.langs))
	copy(out, r.langs)
	return out
}

// Subset returns a registry restricted to the named languages.
func (r *Registry) Subset(ids []string) (*Registry, error) {
	var langs []*Language
	seen := make(map[*Language]bool)
	for _, id := range ids {
		l, ok := r.ByID(id)
		if !ok {
			return nil, fmt.Errorf("unknown language %q", id)
		}
		if !seen[l] {
			seen[l] = true
			langs = append(langs, l)
		}
	}
	return NewRegistry(langs...)
}

// Validate validates every language and joins the failures.
func (r *Registry) Validate() error {
	var errs []error
	for _, l := range r.langs {
		if err := l.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hash fingerprints the query sources and namespace tables of every
// language. A stored hash that differs means existing analyses are stale.
func (r *Registry) Hash() string {
	h := xxh3.New()
	for _, l := range r.langs {
		_, _ = io.WriteString(h, l.ID+"\x00")
		_, _ = io.WriteString(h, l.ScopesSource+"\x00")
		_, _ = io.WriteString(h, l.TagsSource+"\x00")
		_, _ = io.WriteString(h, l.HoverableSource+"\x00")
		for _, group := range l.Namespaces {
			_, _ = io.WriteString(h, strings.Join(group, ",")+";")
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// NamespacesFor returns the namespace table of a language, for re-attaching
// to decoded graphs.
func (r *Registry) NamespacesFor(id string) (scope.Namespaces, bool) {
	l, ok := r.ByID(id)
	if !ok {
		return nil, false
	}
	return l.Namespaces, true
}
