package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/scopegraph"
	"github.com/jward/scopegraph/internal/analysis"
	"github.com/jward/scopegraph/internal/lang"
	"github.com/jward/scopegraph/internal/scope"
	"github.com/jward/scopegraph/internal/store"
)

// Navigation host functions wrap the QueryBuilder. Results are plain Risor
// maps so scripts never hold Go pointers.

func makeFilesFn(q *scopegraph.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		files, err := q.Files()
		if err != nil {
			return object.Errorf("files: %v", err)
		}
		results := make([]object.Object, 0, len(files))
		for _, f := range files {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":         object.NewInt(f.ID),
				"path":       object.NewString(f.Path),
				"language":   object.NewString(f.Language),
				"strategy":   object.NewString(f.Strategy),
				"line_count": object.NewInt(int64(f.LineCount)),
			}))
		}
		return object.NewList(results)
	})
}

func makeSymbolsFn(q *scopegraph.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("symbols", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbols: %v", err)
		}
		syms, err := q.Symbols(path)
		if err != nil {
			return object.Errorf("symbols: %v", err)
		}
		return symbolsToList(syms)
	})
}

func makeSymbolsByNameFn(q *scopegraph.QueryBuilder) *object.Builtin {
	return makeNameFn("symbols_by_name", q.SymbolsByName)
}

func makeSearchFn(q *scopegraph.QueryBuilder) *object.Builtin {
	return makeNameFn("search", q.Search)
}

// makeNameFn builds a one-string-argument host function over a symbol query.
func makeNameFn(name string, fn func(string) ([]*scopegraph.Symbol, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		s, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		syms, err := fn(s)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return symbolsToList(syms)
	})
}

// makePositionFn builds a (path, offset) host function over a location query.
func makePositionFn(name string, fn func(path string, offset int) ([]scopegraph.Location, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError(name, 2, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		offset, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		locs, err := fn(path, int(offset))
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return locationsToList(locs)
	})
}

// definition_at(path, offset) → [{file, name, kind, start_byte, ...}]
func makeDefinitionAtFn(q *scopegraph.QueryBuilder) *object.Builtin {
	return makePositionFn("definition_at", q.DefinitionAt)
}

// references_at(path, offset) → [{file, name, kind, start_byte, ...}]
func makeReferencesAtFn(q *scopegraph.QueryBuilder) *object.Builtin {
	return makePositionFn("references_at", q.ReferencesAt)
}

func makeUnresolvedFn(q *scopegraph.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("unresolved", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("unresolved", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("unresolved: %v", err)
		}
		refs, err := q.UnresolvedReferences(path)
		if err != nil {
			return object.Errorf("unresolved: %v", err)
		}
		results := make([]object.Object, 0, len(refs))
		for _, r := range refs {
			m := rangeMap(r.Range)
			m["name"] = object.NewString(r.Name)
			m["kind"] = object.NewString(r.Kind)
			results = append(results, object.NewMap(m))
		}
		return object.NewList(results)
	})
}

// makeAnalyzeSrcFn creates "analyze_src", which builds and resolves a scope
// graph for a source string without touching the index.
//
// analyze_src(source, language) → {language, strategy, definitions, references}
func makeAnalyzeSrcFn(reg *lang.Registry, a *analysis.Analyzer) *object.Builtin {
	return object.NewBuiltin("analyze_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("analyze_src", 2, len(args))
		}
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("analyze_src: %v", err)
		}
		langID, err := toString(args[1])
		if err != nil {
			return object.Errorf("analyze_src: %v", err)
		}
		if _, ok := reg.ByID(langID); !ok {
			return object.Errorf("analyze_src: unsupported language %q", langID)
		}

		loc, err := a.AnalyzeSource(ctx, "<script>", []byte(src), langID)
		if err != nil {
			return object.Errorf("analyze_src: %v", err)
		}

		defs := []object.Object{}
		refs := []object.Object{}
		if g, ok := loc.Graph(); ok {
			for _, d := range g.Definitions() {
				defs = append(defs, object.NewMap(nodeMap(g, d, src)))
			}
			for _, r := range g.References() {
				m := nodeMap(g, r, src)
				d, bound := g.DefinitionOf(r)
				m["resolved"] = object.NewBool(bound)
				if bound {
					m["definition"] = object.NewMap(nodeMap(g, d, src))
				}
				refs = append(refs, object.NewMap(m))
			}
		} else {
			for _, tag := range loc.Flatten() {
				m := rangeMap(tag.Range)
				m["name"] = object.NewString(string(tag.Range.Text([]byte(src))))
				m["kind"] = object.NewString(tag.Kind)
				defs = append(defs, object.NewMap(m))
			}
		}

		return object.NewMap(map[string]object.Object{
			"language":    object.NewString(loc.Language),
			"strategy":    object.NewString(loc.Strategy.String()),
			"definitions": object.NewList(defs),
			"references":  object.NewList(refs),
		})
	})
}

// languages() → [{id, aliases, extensions, strategy}]
func makeLanguagesFn(reg *lang.Registry) *object.Builtin {
	return object.NewBuiltin("languages", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("languages", 0, len(args))
		}
		var results []object.Object
		for _, l := range reg.Languages() {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":         object.NewString(l.ID),
				"aliases":    stringList(l.Aliases),
				"extensions": stringList(l.Extensions),
				"strategy":   object.NewString(string(l.Strategy())),
			}))
		}
		return object.NewList(results)
	})
}

// makeDBQueryFn creates a db_query bridge that executes read-only SQL.
// Returns a list of maps (column name → value).
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		cols, rows, err := s.QueryReadOnly(ctx, sqlStr, queryArgs...)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		results := make([]object.Object, 0, len(rows))
		for _, values := range rows {
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		return object.NewList(results)
	})
}

func toInt64(obj object.Object) (int64, error) {
	switch v := obj.(type) {
	case *object.Int:
		return v.Value(), nil
	case *object.Float:
		return int64(v.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", fmt.Errorf("expected string, got %s", obj.Type())
	}
	return s.Value(), nil
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

func stringList(ss []string) object.Object {
	items := make([]object.Object, len(ss))
	for i, s := range ss {
		items[i] = object.NewString(s)
	}
	return object.NewList(items)
}

func rangeMap(r scope.TextRange) map[string]object.Object {
	return map[string]object.Object{
		"start_byte": object.NewInt(int64(r.Start.Byte)),
		"end_byte":   object.NewInt(int64(r.End.Byte)),
		"start_line": object.NewInt(int64(r.Start.Line)),
		"start_col":  object.NewInt(int64(r.Start.Column)),
		"end_line":   object.NewInt(int64(r.End.Line)),
		"end_col":    object.NewInt(int64(r.End.Column)),
	}
}

func nodeMap(g *scope.Graph, i scope.NodeIndex, src string) map[string]object.Object {
	kind, _ := g.KindOf(i)
	m := rangeMap(g.Node(i).Range)
	m["name"] = object.NewString(g.NameOf(i, []byte(src)))
	m["kind"] = object.NewString(kind)
	m["top_level"] = object.NewBool(g.IsTopLevel(i))
	return m
}

// symbolsToList converts stored symbols to a Risor list of maps.
func symbolsToList(syms []*store.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, sym := range syms {
		m := rangeMap(sym.Range)
		m["id"] = object.NewInt(sym.ID)
		m["file_id"] = object.NewInt(sym.FileID)
		m["name"] = object.NewString(sym.Name)
		m["kind"] = object.NewString(sym.Kind)
		m["top_level"] = object.NewBool(sym.TopLevel)
		if sym.Path != "" {
			m["path"] = object.NewString(sym.Path)
			m["language"] = object.NewString(sym.Language)
		}
		results = append(results, object.NewMap(m))
	}
	return object.NewList(results)
}

func locationsToList(locs []scopegraph.Location) object.Object {
	results := make([]object.Object, 0, len(locs))
	for _, l := range locs {
		m := rangeMap(l.Range)
		m["file"] = object.NewString(l.File)
		m["name"] = object.NewString(l.Name)
		m["kind"] = object.NewString(l.Kind)
		results = append(results, object.NewMap(m))
	}
	return object.NewList(results)
}
