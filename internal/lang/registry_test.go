package lang

import (
	"testing"

	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopegraph/internal/scope"
)

func TestDefaultRegistry_Validate(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()
	for _, l := range reg.Languages() {
		t.Run(l.ID, func(t *testing.T) {
			require.NoError(t, l.Validate())
			assert.NotEqual(t, StrategyNone, l.Strategy())
			assert.NotEmpty(t, l.HoverableSource)
		})
	}
}

func TestDefaultRegistry_Strategies(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()
	for _, id := range []string{"go", "python", "javascript", "typescript", "rust", "java", "c", "cpp", "csharp", "ruby"} {
		l, ok := reg.ByID(id)
		require.True(t, ok, id)
		assert.Equal(t, StrategyScopeGraph, l.Strategy(), id)
	}
	php, ok := reg.ByID("php")
	require.True(t, ok)
	assert.Equal(t, StrategyTags, php.Strategy())

	// Scope-graph languages that also ship tags keep them as the fallback.
	for _, id := range []string{"cpp", "ruby"} {
		l, _ := reg.ByID(id)
		assert.NotEmpty(t, l.TagsSource, id)
	}
}

func TestRegistry_Lookups(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()

	tests := []struct {
		name  string
		find  func() (*Language, bool)
		want  string
		found bool
	}{
		{"id", func() (*Language, bool) { return reg.ByID("go") }, "go", true},
		{"id ignores case", func() (*Language, bool) { return reg.ByID("Python") }, "python", true},
		{"alias", func() (*Language, bool) { return reg.ByID("TSX") }, "typescript", true},
		{"unknown id", func() (*Language, bool) { return reg.ByID("cobol") }, "", false},
		{"extension with dot", func() (*Language, bool) { return reg.ForExtension(".rs") }, "rust", true},
		{"extension without dot", func() (*Language, bool) { return reg.ForExtension("java") }, "java", true},
		{"extension case", func() (*Language, bool) { return reg.ForExtension(".PY") }, "python", true},
		{"empty extension", func() (*Language, bool) { return reg.ForExtension("") }, "", false},
		{"path", func() (*Language, bool) { return reg.ForPath("src/app/main.go") }, "go", true},
		{"header", func() (*Language, bool) { return reg.ForPath("include/util.h") }, "c", true},
		{"csharp alias", func() (*Language, bool) { return reg.ByID("C#") }, "csharp", true},
		{"tsx", func() (*Language, bool) { return reg.ForPath("web/App.tsx") }, "typescript", true},
		{"no extension", func() (*Language, bool) { return reg.ForPath("Makefile") }, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, ok := tt.find()
			require.Equal(t, tt.found, ok)
			if ok {
				assert.Equal(t, tt.want, l.ID)
			}
		})
	}
}

func TestRegistry_LanguagesSorted(t *testing.T) {
	t.Parallel()
	langs := DefaultRegistry().Languages()
	require.NotEmpty(t, langs)
	for i := 1; i < len(langs); i++ {
		assert.Less(t, langs[i-1].ID, langs[i].ID)
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()
	a := &Language{ID: "a", Grammar: golang.GetLanguage, Extensions: []string{".x"}}
	b := &Language{ID: "b", Grammar: golang.GetLanguage, Aliases: []string{"A"}}
	c := &Language{ID: "c", Grammar: golang.GetLanguage, Extensions: []string{"X"}}

	_, err := NewRegistry(a, b)
	assert.ErrorContains(t, err, `"A"`)
	_, err = NewRegistry(a, c)
	assert.ErrorContains(t, err, "extension")
	_, err = NewRegistry(&Language{ID: "nogrammar"})
	assert.Error(t, err)
}

func TestRegistry_Subset(t *testing.T) {
	t.Parallel()
	sub, err := DefaultRegistry().Subset([]string{"go", "golang", "py"})
	require.NoError(t, err)
	require.Len(t, sub.Languages(), 2)
	_, ok := sub.ForPath("x.rs")
	assert.False(t, ok)

	_, err = DefaultRegistry().Subset([]string{"cobol"})
	assert.Error(t, err)
}

func TestRegistry_Hash(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()
	assert.Equal(t, reg.Hash(), reg.Hash())

	sub, err := reg.Subset([]string{"go"})
	require.NoError(t, err)
	assert.NotEqual(t, reg.Hash(), sub.Hash())

	changed := &Language{ID: "go", Grammar: golang.GetLanguage, ScopesSource: "(block) @local.scope"}
	other, err := NewRegistry(changed)
	require.NoError(t, err)
	assert.NotEqual(t, sub.Hash(), other.Hash())
}

func TestLanguage_BrokenQueryIsCached(t *testing.T) {
	t.Parallel()
	l := &Language{ID: "broken", Grammar: golang.GetLanguage, ScopesSource: "(not_a_node) @local.scope"}

	_, _, err := l.ScopeQuery()
	require.ErrorIs(t, err, ErrQuery)
	_, _, again := l.ScopeQuery()
	assert.Same(t, err, again)
	assert.ErrorIs(t, l.Validate(), ErrQuery)
}

func TestLanguage_BadScopingKeyword(t *testing.T) {
	t.Parallel()
	l := &Language{ID: "bad", Grammar: golang.GetLanguage, ScopesSource: "(identifier) @outer.definition.var"}
	_, _, err := l.ScopeQuery()
	assert.ErrorIs(t, err, ErrQuery)
}

func TestLanguage_ValidateVocabulary(t *testing.T) {
	t.Parallel()
	l := &Language{
		ID:           "vocab",
		Grammar:      golang.GetLanguage,
		ScopesSource: "(identifier) @local.definition.widget",
		TagsSource:   "(identifier) @definition.gadget",
		Namespaces:   scope.Namespaces{{"var"}},
	}
	err := l.Validate()
	require.ErrorIs(t, err, ErrQuery)
	assert.ErrorContains(t, err, `"widget"`)
	assert.ErrorContains(t, err, `"gadget"`)
}

func TestLanguage_MissingQuery(t *testing.T) {
	t.Parallel()
	l := &Language{ID: "bare", Grammar: golang.GetLanguage}
	_, err := l.TagsQuery()
	assert.ErrorIs(t, err, ErrNoQuery)
	_, err = l.HoverableQuery()
	assert.ErrorIs(t, err, ErrNoQuery)
	assert.Equal(t, StrategyNone, l.Strategy())
	assert.NoError(t, l.Validate())
}

func TestTagKind(t *testing.T) {
	t.Parallel()
	kind, ok := TagKind("definition.method")
	require.True(t, ok)
	assert.Equal(t, "method", kind)

	_, ok = TagKind("definition.")
	assert.False(t, ok)
	_, ok = TagKind("name")
	assert.False(t, ok)
}
