// Package runtime evaluates Risor scripts against an indexed repository.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/scopegraph"
	"github.com/jward/scopegraph/internal/analysis"
	"github.com/jward/scopegraph/internal/lang"
)

// Runtime embeds a Risor VM and exposes the navigation API and tree-sitter
// host functions to scripts.
type Runtime struct {
	engine     *scopegraph.Engine
	registry   *lang.Registry
	analyzer   *analysis.Analyzer
	logger     *slog.Logger
	scriptsDir string
	fsys       fs.FS
	parsed     *parseTable
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithScriptsDir sets the directory relative script paths and imports are
// resolved against when no fs.FS is configured.
func WithScriptsDir(dir string) RuntimeOption {
	return func(r *Runtime) {
		r.scriptsDir = dir
	}
}

// WithLogger sets the logger behind the log global.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime over an engine. A nil engine gives a Runtime
// with only the source analysis globals, which is enough for scripts that
// never touch the index.
func NewRuntime(e *scopegraph.Engine, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		engine: e,
		logger: slog.Default(),
		parsed: newParseTable(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if e != nil {
		r.registry = e.Registry()
		r.analyzer = e.Analyzer()
	} else {
		r.registry = lang.DefaultRegistry()
		r.analyzer = analysis.New(r.registry, analysis.WithLogger(r.logger))
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	r.logger.Debug("running script", "script", label)
	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script
// source, or nil when neither an fs.FS nor a scripts directory is set.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code. With an
// fs.FS the path is relative to the FS root; otherwise relative paths are
// joined to the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	tf := &treeFuncs{analyzer: r.analyzer, parsed: r.parsed}
	globals := map[string]any{
		"parse":       tf.parse(),
		"parse_src":   tf.parseSrc(),
		"node_text":   tf.nodeText(),
		"node_child":  tf.nodeChild(),
		"query":       tf.query(),
		"binding":     tf.binding(),
		"uses":        tf.uses(),
		"analyze_src": makeAnalyzeSrcFn(r.registry, r.analyzer),
		"languages":   makeLanguagesFn(r.registry),
		"log":         mustProxy(&logObject{logger: r.logger.With("source", "script")}),
	}

	if r.engine != nil {
		q := r.engine.Query()
		globals["files"] = makeFilesFn(q)
		globals["symbols"] = makeSymbolsFn(q)
		globals["symbols_by_name"] = makeSymbolsByNameFn(q)
		globals["search"] = makeSearchFn(q)
		globals["definition_at"] = makeDefinitionAtFn(q)
		globals["references_at"] = makeReferencesAtFn(q)
		globals["unresolved"] = makeUnresolvedFn(q)
		globals["db_query"] = makeDBQueryFn(r.engine.Store())
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
