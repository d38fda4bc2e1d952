package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/scopegraph/internal/analysis"
	"github.com/jward/scopegraph/internal/lang"
	"github.com/jward/scopegraph/internal/scope"
	"github.com/jward/scopegraph/internal/symbol"
)

// parsedSource is a tree a script parsed, with what the analyzer needs to
// build its scope graph the first time a script asks for a binding.
type parsedSource struct {
	tree *sitter.Tree
	src  []byte
	lang *lang.Language

	once sync.Once
	loc  symbol.Locations
	err  error
}

func (p *parsedSource) locations(ctx context.Context, a *analysis.Analyzer) (symbol.Locations, error) {
	p.once.Do(func() {
		p.loc, p.err = a.BuildAndResolve(ctx, p.src, p.tree, p.lang)
	})
	return p.loc, p.err
}

// parseTable maps the root node of every tree parsed by a Runtime to its
// source. smacker/go-tree-sitter caches Node values per tree, so walking
// Parent() from any node ends at the pointer RootNode() returned.
type parseTable struct {
	mu    sync.RWMutex
	roots map[*sitter.Node]*parsedSource
}

func newParseTable() *parseTable {
	return &parseTable{roots: make(map[*sitter.Node]*parsedSource)}
}

func (t *parseTable) add(p *parsedSource) *sitter.Node {
	root := p.tree.RootNode()
	t.mu.Lock()
	t.roots[root] = p
	t.mu.Unlock()
	return root
}

func (t *parseTable) lookup(n *sitter.Node) (*parsedSource, bool) {
	for n.Parent() != nil {
		n = n.Parent()
	}
	t.mu.RLock()
	p, ok := t.roots[n]
	t.mu.RUnlock()
	return p, ok
}

// treeFuncs holds the host functions that work on syntax trees parsed inside
// a script: parse, parse_src, node_text, node_child, query, binding and uses.
type treeFuncs struct {
	analyzer *analysis.Analyzer
	parsed   *parseTable
}

// parse(path[, language]) → root Node
//
// The language defaults to the one registered for the path's extension.
func (tf *treeFuncs) parse() *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("parse: expected 1 or 2 arguments, got %d", len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse: path: %v", err)
		}
		var langID string
		if len(args) == 2 {
			if langID, err = toString(args[1]); err != nil {
				return object.Errorf("parse: language: %v", err)
			}
		}
		l, err := tf.language(path, langID)
		if err != nil {
			return object.Errorf("parse: %v", err)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: %v", err)
		}
		return tf.parseInto(ctx, "parse", l, src)
	})
}

// parse_src(source, language) → root Node
func (tf *treeFuncs) parseSrc() *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse_src: source: %v", err)
		}
		langID, err := toString(args[1])
		if err != nil {
			return object.Errorf("parse_src: language: %v", err)
		}
		l, err := tf.language("", langID)
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		return tf.parseInto(ctx, "parse_src", l, []byte(src))
	})
}

// language resolves langID, or the path's extension when langID is empty.
func (tf *treeFuncs) language(path, langID string) (*lang.Language, error) {
	l, err := tf.analyzer.Language(path, langID)
	if err != nil && langID != "" {
		return nil, fmt.Errorf("unsupported language %q", langID)
	}
	return l, err
}

func (tf *treeFuncs) parseInto(ctx context.Context, fn string, l *lang.Language, src []byte) object.Object {
	tree, err := tf.analyzer.Parse(ctx, l, src)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	return mustProxy(tf.parsed.add(&parsedSource{tree: tree, src: src, lang: l}))
}

// nodeArg unwraps a proxied node parsed by this Runtime.
func (tf *treeFuncs) nodeArg(obj object.Object) (*sitter.Node, *parsedSource, error) {
	p, ok := obj.(*object.Proxy)
	if !ok {
		return nil, nil, fmt.Errorf("expected a node, got %s", obj.Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok || n == nil {
		return nil, nil, fmt.Errorf("expected a node, got %T", p.Interface())
	}
	ps, ok := tf.parsed.lookup(n)
	if !ok {
		return nil, nil, fmt.Errorf("node does not belong to a parsed tree")
	}
	return n, ps, nil
}

// node_text(node) → string
//
// Risor cannot hand node.Content the []byte it needs, so scripts go through
// this instead.
func (tf *treeFuncs) nodeText() *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		n, ps, err := tf.nodeArg(args[0])
		if err != nil {
			return object.Errorf("node_text: %v", err)
		}
		return object.NewString(n.Content(ps.src))
	})
}

// node_child(node, field) → Node or nil
func (tf *treeFuncs) nodeChild() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		n, _, err := tf.nodeArg(args[0])
		if err != nil {
			return object.Errorf("node_child: %v", err)
		}
		field, err := toString(args[1])
		if err != nil {
			return object.Errorf("node_child: field: %v", err)
		}
		child := n.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return mustProxy(child)
	})
}

// query(pattern, node) → [{capture: Node}]
//
// Patterns are compiled against the grammar the node was parsed with.
// Predicates such as #eq? are applied.
func (tf *treeFuncs) query() *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: pattern: %v", err)
		}
		n, ps, err := tf.nodeArg(args[1])
		if err != nil {
			return object.Errorf("query: %v", err)
		}

		q, err := sitter.NewQuery([]byte(pattern), ps.lang.Grammar())
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		qc := sitter.NewQueryCursor()
		defer qc.Close()
		qc.Exec(q, n)

		results := []object.Object{}
		for {
			m, ok := qc.NextMatch()
			if !ok {
				break
			}
			m = qc.FilterPredicates(m, ps.src)
			if len(m.Captures) == 0 {
				continue
			}
			caps := make(map[string]object.Object, len(m.Captures))
			for _, c := range m.Captures {
				caps[q.CaptureNameForId(c.Index)] = mustProxy(c.Node)
			}
			results = append(results, object.NewMap(caps))
		}
		return object.NewList(results)
	})
}

// graphNode finds the scope graph entry whose range is exactly the node's.
// ok is false when the node is not a definition, reference or import, or
// when its language has no scope graph.
func (tf *treeFuncs) graphNode(ctx context.Context, obj object.Object) (*scope.Graph, scope.NodeIndex, *parsedSource, bool, error) {
	n, ps, err := tf.nodeArg(obj)
	if err != nil {
		return nil, scope.NoNode, nil, false, err
	}
	loc, err := ps.locations(ctx, tf.analyzer)
	if err != nil {
		return nil, scope.NoNode, nil, false, err
	}
	g, ok := loc.Graph()
	if !ok {
		return nil, scope.NoNode, ps, false, nil
	}
	i, ok := g.NodeByRange(scope.RangeOf(n))
	return g, i, ps, ok, nil
}

// definitionFor returns the definition a graph node stands for: itself when
// it is one, its binding when it is a reference.
func definitionFor(g *scope.Graph, i scope.NodeIndex) (scope.NodeIndex, bool) {
	switch g.Node(i).Kind {
	case scope.NodeDefinition:
		return i, true
	case scope.NodeReference:
		return g.DefinitionOf(i)
	}
	return scope.NoNode, false
}

// binding(node) → definition or nil
//
// For an identifier node, returns the local definition it resolves to, or
// the node's own entry when it is a definition.
func (tf *treeFuncs) binding() *object.Builtin {
	return object.NewBuiltin("binding", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("binding", 1, len(args))
		}
		g, i, ps, ok, err := tf.graphNode(ctx, args[0])
		if err != nil {
			return object.Errorf("binding: %v", err)
		}
		if !ok {
			return object.Nil
		}
		def, ok := definitionFor(g, i)
		if !ok {
			return object.Nil
		}
		return object.NewMap(nodeMap(g, def, string(ps.src)))
	})
}

// uses(node) → [reference]
//
// Lists the references bound to the definition the node resolves to.
func (tf *treeFuncs) uses() *object.Builtin {
	return object.NewBuiltin("uses", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("uses", 1, len(args))
		}
		g, i, ps, ok, err := tf.graphNode(ctx, args[0])
		if err != nil {
			return object.Errorf("uses: %v", err)
		}
		results := []object.Object{}
		if !ok {
			return object.NewList(results)
		}
		def, ok := definitionFor(g, i)
		if !ok {
			return object.NewList(results)
		}
		for _, r := range g.ReferencesTo(def) {
			results = append(results, object.NewMap(nodeMap(g, r, string(ps.src))))
		}
		return object.NewList(results)
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
