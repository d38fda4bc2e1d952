// Package scopegraph indexes source repositories into per-file scope graphs
// and answers navigation queries from them. It is built on tree-sitter and
// works for any language whose grammar ships a scope query.
//
// # Pipeline
//
// For each file, the engine:
//
//  1. picks the language from the registry by extension;
//  2. parses the file and runs the language's scope query;
//  3. builds a scope graph of scopes, definitions, imports and references;
//  4. binds each reference to the nearest visible definition with a
//     compatible namespace;
//  5. stores the result, with a flattened view of definitions and
//     references, in SQLite.
//
// Languages without a scope query fall back to a flat tags query, and
// languages with neither are recorded as empty.
//
// # Usage
//
//	e, err := scopegraph.New("scopegraph.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.IndexDirectory(ctx, "path/to/project")
//
//	q := e.Query()
//	locs, err := q.DefinitionAt("path/to/project/main.go", 120)
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] provides:
//
//   - [QueryBuilder.DefinitionAt]: go-to-definition at a byte offset, with a
//     repository-wide fallback by name for unresolved non-variable references.
//   - [QueryBuilder.ReferencesAt]: every reference sharing the definition at
//     an offset.
//   - [QueryBuilder.Symbols] and [QueryBuilder.SymbolsByName]: flattened
//     definitions of a file or across the repository.
//   - [QueryBuilder.Search]: definitions whose name matches a glob pattern.
//   - [QueryBuilder.HoverableRanges]: ranges a client may show hover
//     information for.
//   - [QueryBuilder.Locations]: the decoded per-file store.
//
// # Incremental Indexing
//
// [Engine.IndexFiles] skips files whose content hash is unchanged. With
// [WithCache], analysis results are also shared across databases through a
// content-addressed cache keyed by the registry hash, so editing a query
// invalidates them. [Engine.RegistryChanged] reports when stored results
// were produced by different queries.
package scopegraph
