// Package analysis turns a parsed file into its symbol location store.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/scopegraph/internal/lang"
	"github.com/jward/scopegraph/internal/scope"
	"github.com/jward/scopegraph/internal/symbol"
)

const (
	// DefaultMaxFileSize is the largest file AnalyzeSource accepts.
	DefaultMaxFileSize = 500_000
	// DefaultParseTimeout bounds a single parse.
	DefaultParseTimeout = time.Second

	tracerName = "scopegraph.analysis"
)

// CrossFileIndexer produces a precise cross-file binding graph for the
// languages it supports. Its payload is stored without interpretation.
type CrossFileIndexer interface {
	Supports(language string) bool
	Index(ctx context.Context, language string, src []byte) ([]byte, error)
}

// Analyzer builds symbol location stores. It is safe for concurrent use;
// every call works on its own parser and graph.
type Analyzer struct {
	registry     *lang.Registry
	logger       *slog.Logger
	crossFile    CrossFileIndexer
	maxFileSize  int
	parseTimeout time.Duration

	warned sync.Map // "<language>/<topic>" -> struct{}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithCrossFileIndexer enables the cross-file strategy.
func WithCrossFileIndexer(c CrossFileIndexer) Option {
	return func(a *Analyzer) { a.crossFile = c }
}

// WithMaxFileSize overrides DefaultMaxFileSize. Zero or less keeps the default.
func WithMaxFileSize(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxFileSize = n
		}
	}
}

// WithParseTimeout overrides DefaultParseTimeout. Zero or less keeps the default.
func WithParseTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.parseTimeout = d
		}
	}
}

// New returns an Analyzer over reg.
func New(reg *lang.Registry, opts ...Option) *Analyzer {
	a := &Analyzer{
		registry:     reg,
		logger:       slog.Default(),
		maxFileSize:  DefaultMaxFileSize,
		parseTimeout: DefaultParseTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Registry returns the registry the analyzer resolves languages from.
func (a *Analyzer) Registry() *lang.Registry { return a.registry }

// warnOnce logs msg at WARN the first time key is seen.
func (a *Analyzer) warnOnce(key, msg string, args ...any) {
	if _, seen := a.warned.LoadOrStore(key, struct{}{}); seen {
		return
	}
	a.logger.Warn(msg, args...)
}

// Language resolves the language of a file: by id when langID is set,
// otherwise by the extension of path.
func (a *Analyzer) Language(path, langID string) (*lang.Language, error) {
	var (
		l  *lang.Language
		ok bool
	)
	if langID != "" {
		l, ok = a.registry.ByID(langID)
	} else {
		l, ok = a.registry.ForPath(path)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}
	return l, nil
}

// Parse parses src with l's grammar, giving up after the parse timeout.
func (a *Analyzer) Parse(ctx context.Context, l *lang.Language, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(l.Grammar())

	ctx, cancel := context.WithTimeout(ctx, a.parseTimeout)
	defer cancel()
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrParseTimeout, a.parseTimeout)
		}
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("parse %s: %w", l.ID, err)
	}
	return tree, nil
}

// AnalyzeSource analyzes one file from its contents. langID may be empty, in
// which case the language comes from the path. Files in languages the
// registry does not know produce the Empty variant without an error.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, src []byte, langID string) (symbol.Locations, error) {
	l, err := a.Language(path, langID)
	if err != nil {
		a.logger.Debug("no language for file", "path", path)
		return symbol.NewEmpty(langID), nil
	}
	if len(src) > a.maxFileSize {
		failuresTotal.WithLabelValues(l.ID, reason(ErrFileTooLarge)).Inc()
		return symbol.Locations{}, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, len(src), a.maxFileSize)
	}
	tree, err := a.Parse(ctx, l, src)
	if err != nil {
		failuresTotal.WithLabelValues(l.ID, reason(err)).Inc()
		return symbol.Locations{}, fmt.Errorf("%s: %w", path, err)
	}
	defer tree.Close()

	loc, err := a.BuildAndResolve(ctx, src, tree, l)
	if err != nil {
		return symbol.Locations{}, fmt.Errorf("%s: %w", path, err)
	}
	return loc, nil
}

// BuildAndResolve produces the symbol location store of one parsed file,
// choosing the best available strategy:
//
//  1. the cross-file indexer, when configured and it supports the language;
//  2. a resolved scope graph, when the language's scope query compiles;
//  3. flat tags from the tags query;
//  4. Empty.
//
// Query defects are logged once per language and degrade to the next
// strategy. A graph that breaks an invariant returns ErrInvalidGraph.
func (a *Analyzer) BuildAndResolve(ctx context.Context, src []byte, tree *sitter.Tree, l *lang.Language) (symbol.Locations, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.BuildAndResolve",
		trace.WithAttributes(
			attribute.String("language", l.ID),
			attribute.Int("bytes", len(src)),
		))
	defer span.End()

	loc, err := a.buildAndResolve(ctx, src, tree, l)
	if err != nil {
		failuresTotal.WithLabelValues(l.ID, reason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return symbol.Locations{}, err
	}
	filesTotal.WithLabelValues(l.ID, loc.Strategy.String()).Inc()
	span.SetAttributes(attribute.String("strategy", loc.Strategy.String()))
	return loc, nil
}

func (a *Analyzer) buildAndResolve(ctx context.Context, src []byte, tree *sitter.Tree, l *lang.Language) (symbol.Locations, error) {
	if a.crossFile != nil && a.crossFile.Supports(l.ID) {
		payload, err := a.crossFile.Index(ctx, l.ID, src)
		if err == nil {
			return symbol.NewCrossFile(l.ID, payload), nil
		}
		a.logger.Debug("cross-file indexing failed, using scope graph", "language", l.ID, "err", err)
	}

	q, cm, err := l.ScopeQuery()
	if err == nil {
		if len(cm.Unknown) > 0 {
			a.warnOnce(l.ID+"/captures", "scope query has unrecognized captures",
				"language", l.ID, "captures", cm.Unknown)
		}
		start := time.Now()
		g := scope.BuildFromTree(l.ID, l.Namespaces, q, cm, tree, src)
		if err := g.Validate(); err != nil {
			return symbol.Locations{}, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
		}
		if err := scope.Resolve(g, src); err != nil {
			return symbol.Locations{}, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
		}
		buildSeconds.WithLabelValues(l.ID).Observe(time.Since(start).Seconds())
		return symbol.NewScopeGraph(g), nil
	}
	if !errors.Is(err, lang.ErrNoQuery) {
		a.warnOnce(l.ID+"/scopes", "scope query unusable, falling back to tags", "language", l.ID, "err", err)
	}

	tags, err := a.tags(l, tree, src)
	if err == nil {
		return symbol.NewTags(l.ID, tags), nil
	}
	if !errors.Is(err, lang.ErrNoQuery) {
		a.warnOnce(l.ID+"/tags", "tags query unusable", "language", l.ID, "err", err)
	}
	return symbol.NewEmpty(l.ID), nil
}

func (a *Analyzer) tags(l *lang.Language, tree *sitter.Tree, src []byte) ([]symbol.Tag, error) {
	q, err := l.TagsQuery()
	if err != nil {
		return nil, err
	}
	var tags []symbol.Tag
	seen := make(map[scope.TextRange]bool)
	eachCapture(q, tree.RootNode(), src, func(name string, r scope.TextRange) {
		kind, ok := lang.TagKind(name)
		if !ok || seen[r] {
			return
		}
		seen[r] = true
		tags = append(tags, symbol.Tag{Kind: kind, Range: r})
	})
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Range.Start.Byte < tags[j].Range.Start.Byte })
	return tags, nil
}

// HoverableRanges returns the ranges a client may hover, in document order.
func (a *Analyzer) HoverableRanges(ctx context.Context, src []byte, tree *sitter.Tree, l *lang.Language) ([]scope.TextRange, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "analysis.HoverableRanges",
		trace.WithAttributes(attribute.String("language", l.ID)))
	defer span.End()

	q, err := l.HoverableQuery()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var out []scope.TextRange
	seen := make(map[scope.TextRange]bool)
	eachCapture(q, tree.RootNode(), src, func(name string, r scope.TextRange) {
		if name != "hoverable" || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// AnalyzeHoverable parses src and returns its hoverable ranges.
func (a *Analyzer) AnalyzeHoverable(ctx context.Context, path string, src []byte, langID string) ([]scope.TextRange, error) {
	l, err := a.Language(path, langID)
	if err != nil {
		return nil, err
	}
	if len(src) > a.maxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}
	tree, err := a.Parse(ctx, l, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return a.HoverableRanges(ctx, src, tree, l)
}

func eachCapture(q *sitter.Query, root *sitter.Node, src []byte, fn func(name string, r scope.TextRange)) {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)
	for {
		m, ok := qc.NextMatch()
		if !ok {
			return
		}
		m = qc.FilterPredicates(m, src)
		for _, c := range m.Captures {
			fn(q.CaptureNameForId(c.Index), scope.RangeOf(c.Node))
		}
	}
}
