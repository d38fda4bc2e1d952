package scopegraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jward/scopegraph/internal/analysis"
	"github.com/jward/scopegraph/internal/cache"
	"github.com/jward/scopegraph/internal/config"
	"github.com/jward/scopegraph/internal/discover"
	"github.com/jward/scopegraph/internal/lang"
	"github.com/jward/scopegraph/internal/store"
)

var (
	// ErrUnknownLanguage is returned by New when WithLanguages names a
	// language the registry does not know.
	ErrUnknownLanguage = errors.New("unknown language")
	// ErrFileTooLarge marks files over the size limit in IndexReport.Failed.
	ErrFileTooLarge = analysis.ErrFileTooLarge
	// ErrParseTimeout marks files whose parse timed out.
	ErrParseTimeout = analysis.ErrParseTimeout
	// ErrInvalidGraph marks files whose scope graph broke an invariant.
	ErrInvalidGraph = analysis.ErrInvalidGraph
)

// Engine orchestrates file discovery, change detection, per-file analysis,
// persistence and query access.
type Engine struct {
	store    *store.Store
	registry *lang.Registry
	analyzer *analysis.Analyzer
	cache    *cache.Cache
	logger   *slog.Logger

	languageIDs []string
	languages   map[string]bool // nil means all languages
	exclude     []string
	workers     int
	parallel    bool
	force       bool
	cacheDir    string

	analysisOpts []analysis.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will process. Ids and
// aliases are both accepted.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languageIDs = append(e.languageIDs, languages...)
	}
}

// WithParallel controls parallel analysis. When true (default), IndexFiles
// analyzes files on a worker pool and commits them from a single goroutine.
func WithParallel(parallel bool) Option {
	return func(e *Engine) { e.parallel = parallel }
}

// WithWorkers sets the worker pool size. Zero or less means one worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLogger sets the logger for the engine and its analyzer.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCache enables the content-addressed analysis cache stored in dir.
func WithCache(dir string) Option {
	return func(e *Engine) { e.cacheDir = dir }
}

// WithCrossFileIndexer enables the cross-file strategy for the languages c
// supports.
func WithCrossFileIndexer(c CrossFileIndexer) Option {
	return func(e *Engine) {
		e.analysisOpts = append(e.analysisOpts, analysis.WithCrossFileIndexer(c))
	}
}

// WithMaxFileSize overrides the largest file size analyzed, in bytes.
func WithMaxFileSize(n int) Option {
	return func(e *Engine) {
		e.analysisOpts = append(e.analysisOpts, analysis.WithMaxFileSize(n))
	}
}

// WithParseTimeout overrides the per-file parse timeout.
func WithParseTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.analysisOpts = append(e.analysisOpts, analysis.WithParseTimeout(d))
	}
}

// WithRegistry replaces the built-in language registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithExclude adds gitignore-style patterns skipped by IndexDirectory.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) { e.exclude = append(e.exclude, patterns...) }
}

// WithForce re-analyzes files even when their content hash is unchanged.
func WithForce(force bool) Option {
	return func(e *Engine) { e.force = force }
}

// WithConfig applies the non-zero settings of a loaded config file.
// Options given after it take precedence.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg == nil {
			return
		}
		if len(cfg.Languages) > 0 {
			WithLanguages(cfg.Languages...)(e)
		}
		WithExclude(cfg.Exclude...)(e)
		if cfg.Workers > 0 {
			e.workers = cfg.Workers
		}
		if cfg.MaxFileSize > 0 {
			WithMaxFileSize(cfg.MaxFileSize)(e)
		}
		if cfg.ParseTimeout > 0 {
			WithParseTimeout(cfg.ParseTimeout)(e)
		}
		if cfg.CacheDir != "" {
			e.cacheDir = cfg.CacheDir
		}
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		parallel: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = lang.DefaultRegistry()
	}
	if len(e.languageIDs) > 0 {
		e.languages = make(map[string]bool, len(e.languageIDs))
		for _, id := range e.languageIDs {
			l, ok := e.registry.ByID(id)
			if !ok {
				return nil, fmt.Errorf("scopegraph: %w: %q", ErrUnknownLanguage, id)
			}
			e.languages[l.ID] = true
		}
	}

	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("scopegraph: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("scopegraph: migrate: %w", err)
	}
	e.store = s

	if e.cacheDir != "" {
		c, err := cache.Open(e.cacheDir, cache.WithLogger(e.logger))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("scopegraph: %w", err)
		}
		e.cache = c
	}

	aopts := append([]analysis.Option{analysis.WithLogger(e.logger)}, e.analysisOpts...)
	e.analyzer = analysis.New(e.registry, aopts...)
	return e, nil
}

// Close releases the Engine's database and cache.
func (e *Engine) Close() error {
	return errors.Join(e.cache.Close(), e.store.Close())
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Registry returns the language registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Analyzer returns the per-file analyzer used by the engine.
func (e *Engine) Analyzer() *analysis.Analyzer {
	return e.analyzer
}

// Query returns a new QueryBuilder over the indexed data.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store, registry: e.registry, analyzer: e.analyzer}
}

// RegistryChanged reports whether the registry's query sources differ from
// the ones used to build the current database. It is true on a database that
// was never indexed. Only IndexDirectory records the hash, since IndexFiles
// may touch a subset of the repository. When true, stored results may be
// stale and the caller should re-index with WithForce.
func (e *Engine) RegistryChanged() bool {
	stored, ok, err := e.store.GetMetadata(store.MetaRegistryHash)
	if err != nil || !ok {
		return true
	}
	return stored != e.registry.Hash()
}

// handles reports whether the engine indexes files of language id.
func (e *Engine) handles(id string) bool {
	return e.languages == nil || e.languages[id]
}

// IndexDirectory discovers the indexable files under root and indexes them.
// Inside a git work tree it uses `git ls-files`; otherwise it walks the tree
// honouring .gitignore. Files previously indexed under root that no longer
// exist are removed from the store.
func (e *Engine) IndexDirectory(ctx context.Context, root string) (*IndexReport, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scopegraph: %w", err)
	}
	rels, err := discover.Files(ctx, abs, discover.Options{
		Exclude: e.exclude,
		Keep: func(rel string) bool {
			l, ok := e.registry.ForPath(rel)
			return ok && e.handles(l.ID)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scopegraph: discover %s: %w", root, err)
	}

	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = filepath.Join(abs, filepath.FromSlash(rel))
	}
	report, err := e.IndexFiles(ctx, paths)
	if err != nil {
		return report, err
	}

	removed, err := e.store.DeleteMissing(abs, paths)
	if err != nil {
		return report, fmt.Errorf("scopegraph: prune %s: %w", root, err)
	}
	report.Removed = removed

	// Every supported file under root now reflects the current queries.
	if err := e.store.SetMetadata(store.MetaRegistryHash, e.registry.Hash()); err != nil {
		return report, fmt.Errorf("scopegraph: %w", err)
	}
	return report, nil
}
