package lang

import (
	"embed"
	"io/fs"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"

	"github.com/jward/scopegraph/internal/scope"
)

//go:embed queries
var queryFS embed.FS

// query returns queries/<id>/<name>.scm, or "" when the language has none.
func query(id, name string) string {
	b, err := fs.ReadFile(queryFS, "queries/"+id+"/"+name+".scm")
	if err != nil {
		return ""
	}
	return string(b)
}

func newLanguage(id string, grammar func() *sitter.Language, aliases, exts []string, ns scope.Namespaces) *Language {
	return &Language{
		ID:              id,
		Aliases:         aliases,
		Extensions:      exts,
		Grammar:         grammar,
		Namespaces:      ns,
		ScopesSource:    query(id, "scopes"),
		HoverableSource: query(id, "hoverable"),
		TagsSource:      query(id, "tags"),
	}
}

func builtin() []*Language {
	return []*Language{
		newLanguage("go", golang.GetLanguage, []string{"golang"}, []string{".go"}, scope.Namespaces{
			{"const", "var", "func", "module"},
			{"struct", "interface", "type"},
			{"member"},
			{"label"},
		}),
		newLanguage("python", python.GetLanguage, []string{"py"}, []string{".py"}, scope.Namespaces{
			{"class", "function", "parameter", "variable"},
		}),
		newLanguage("javascript", javascript.GetLanguage, []string{"js", "jsx"}, []string{".js", ".jsx", ".mjs", ".cjs"}, scope.Namespaces{
			{"constant", "variable", "property", "function", "method", "generator", "class", "label"},
		}),
		// The tsx grammar is a superset of plain TypeScript except for <T>expr
		// assertions, so one entry serves both extensions.
		newLanguage("typescript", tsx.GetLanguage, []string{"ts", "tsx"}, []string{".ts", ".tsx"}, scope.Namespaces{
			{
				"constant", "variable", "property", "parameter",
				"function", "method", "generator",
				"alias", "enum", "enumerator", "class", "interface",
				"label",
			},
		}),
		newLanguage("rust", rust.GetLanguage, []string{"rs"}, []string{".rs"}, scope.Namespaces{
			{
				"const", "function", "variable",
				"struct", "enum", "union", "typedef", "interface",
				"field", "enumerator",
				"module",
				"label", "lifetime",
			},
		}),
		newLanguage("java", java.GetLanguage, nil, []string{".java"}, scope.Namespaces{
			{
				"local", "method", "package", "module",
				"class", "enum", "enumConstant", "record", "interface", "typedef",
				"label",
			},
		}),
		newLanguage("c", c.GetLanguage, nil, []string{".c", ".h"}, scope.Namespaces{
			{
				"header", "macro", "function",
				"struct", "enum", "enumerator", "union", "typedef",
				"variable", "label",
			},
		}),
		newLanguage("csharp", csharp.GetLanguage, []string{"c#", "cs"}, []string{".cs"}, scope.Namespaces{
			{
				"local",
				"class", "struct", "enum", "typedef", "interface", "enumerator",
				"method", "namespace",
			},
		}),
		newLanguage("cpp", cpp.GetLanguage, []string{"c++"}, []string{".cpp", ".cc", ".cxx", ".hpp"}, scope.Namespaces{
			{
				"header", "namespace", "macro", "function",
				"class", "struct", "enum", "enumerator", "union", "typedef", "concept",
				"variable", "label", "alias",
			},
		}),
		newLanguage("ruby", ruby.GetLanguage, []string{"rb"}, []string{".rb"}, scope.Namespaces{
			{"variable", "constant", "class", "method", "module"},
		}),
		newLanguage("php", php.GetLanguage, nil, []string{".php"}, scope.Namespaces{
			{"function", "method", "class", "interface", "variable"},
		}),
	}
}
