package scope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boundRange returns the range of the definition the reference at r binds to.
func boundRange(t *testing.T, g *Graph, r TextRange) (TextRange, bool) {
	t.Helper()
	ref, ok := g.NodeByRange(r)
	require.True(t, ok, "no node at %s", r)
	require.Equal(t, NodeReference, g.Node(ref).Kind)
	def, ok := g.DefinitionOf(ref)
	if !ok {
		return TextRange{}, false
	}
	return g.Node(def).Range, true
}

const shadowSrc = `fn outer {
  let x = 1
  block {
    let x = 2; use x
  }
  use x
}
`

func buildShadowing(t *testing.T) *Graph {
	t.Helper()
	src := shadowSrc
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		scopeCap(span(t, src, "fn outer {", "\n}")),
		scopeCap(span(t, src, "block {", "  }")),
		defCap(word(t, src, "x", 0), "variable"),
		defCap(word(t, src, "x", 1), "variable"),
		refCap(word(t, src, "x", 2), "variable"),
		refCap(word(t, src, "x", 3), "variable"),
	})
	require.NoError(t, Resolve(g, []byte(src)))
	return g
}

func TestResolve_Shadowing(t *testing.T) {
	t.Parallel()
	g := buildShadowing(t)
	src := shadowSrc

	got, ok := boundRange(t, g, word(t, src, "x", 2))
	require.True(t, ok)
	assert.Equal(t, word(t, src, "x", 1), got, "inner use binds inner x")

	got, ok = boundRange(t, g, word(t, src, "x", 3))
	require.True(t, ok)
	assert.Equal(t, word(t, src, "x", 0), got, "outer use binds outer x")
}

func TestResolve_NamespaceIsolation(t *testing.T) {
	t.Parallel()
	ns := Namespaces{{"program"}, {"paragraph"}}
	src := "PROGRAM INIT. PARAGRAPH INIT. PERFORM INIT. CALL INIT. DISPLAY INIT."

	g := Build("cobol", ns, WholeBuffer([]byte(src)), []Capture{
		defCap(word(t, src, "INIT", 0), "program"),
		defCap(word(t, src, "INIT", 1), "paragraph"),
		refCap(word(t, src, "INIT", 2), "paragraph"),
		refCap(word(t, src, "INIT", 3), "program"),
		refCap(word(t, src, "INIT", 4), ""),
	})
	require.NoError(t, Resolve(g, []byte(src)))

	got, ok := boundRange(t, g, word(t, src, "INIT", 2))
	require.True(t, ok)
	assert.Equal(t, word(t, src, "INIT", 1), got, "PERFORM binds the paragraph")

	got, ok = boundRange(t, g, word(t, src, "INIT", 3))
	require.True(t, ok)
	assert.Equal(t, word(t, src, "INIT", 0), got, "CALL binds the program")

	got, ok = boundRange(t, g, word(t, src, "INIT", 4))
	require.True(t, ok)
	assert.Equal(t, word(t, src, "INIT", 0), got, "an unclassified reference binds the earliest name match")
}

func TestResolve_NoCompatibleDefinition(t *testing.T) {
	t.Parallel()
	ns := Namespaces{{"variable"}, {"type"}}
	src := "type T; use T"

	g := Build("test", ns, WholeBuffer([]byte(src)), []Capture{
		defCap(word(t, src, "T", 0), "type"),
		refCap(word(t, src, "T", 1), "variable"),
	})
	require.NoError(t, Resolve(g, []byte(src)))

	_, ok := boundRange(t, g, word(t, src, "T", 1))
	assert.False(t, ok)
}

func TestResolve_UnclassifiedDefinitionMatchesAnyReference(t *testing.T) {
	t.Parallel()
	src := "def v; use v"
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		defCap(word(t, src, "v", 0), ""),
		refCap(word(t, src, "v", 1), "type"),
	})
	require.NoError(t, Resolve(g, []byte(src)))

	_, ok := boundRange(t, g, word(t, src, "v", 1))
	assert.True(t, ok)
}

func TestResolve_SiblingScopeNotVisible(t *testing.T) {
	t.Parallel()
	src := "a { let y } b { use y }"
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		scopeCap(span(t, src, "a {", "}")),
		scopeCap(span(t, src, "b {", "}")),
		defCap(word(t, src, "y", 0), "variable"),
		refCap(word(t, src, "y", 1), "variable"),
	})
	require.NoError(t, Resolve(g, []byte(src)))

	_, ok := boundRange(t, g, word(t, src, "y", 1))
	assert.False(t, ok)
}

func TestResolve_InnerDefinitionInvisibleOutside(t *testing.T) {
	t.Parallel()
	src := "use z; { let z }"
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		scopeCap(span(t, src, "{", "}")),
		defCap(word(t, src, "z", 1), "variable"),
		refCap(word(t, src, "z", 0), "variable"),
	})
	require.NoError(t, Resolve(g, []byte(src)))

	_, ok := boundRange(t, g, word(t, src, "z", 0))
	assert.False(t, ok)
}

func TestResolve_EarliestDefinitionWinsWithinScope(t *testing.T) {
	t.Parallel()
	src := "use n; let n; let n"
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		defCap(word(t, src, "n", 2), "variable"),
		defCap(word(t, src, "n", 1), "variable"),
		refCap(word(t, src, "n", 0), "variable"),
	})
	require.NoError(t, Resolve(g, []byte(src)))

	got, ok := boundRange(t, g, word(t, src, "n", 0))
	require.True(t, ok)
	assert.Equal(t, word(t, src, "n", 1), got)
}

func TestResolve_ImportsNeverBind(t *testing.T) {
	t.Parallel()
	src := "import os; os.path"
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		importCap(word(t, src, "os", 0)),
		refCap(word(t, src, "os", 1), ""),
	})
	require.NoError(t, Resolve(g, []byte(src)))

	_, ok := boundRange(t, g, word(t, src, "os", 1))
	assert.False(t, ok)
}

func TestResolve_ExactlyOneBindingPerReference(t *testing.T) {
	t.Parallel()
	g := buildShadowing(t)
	require.NoError(t, Resolve(g, []byte(shadowSrc)), "resolving twice is a no-op")

	bindings := 0
	for _, e := range g.Edges() {
		if e.Kind == EdgeReferenceToDefinition {
			bindings++
		}
	}
	assert.Equal(t, len(g.References()), bindings)
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()
	a, err := json.Marshal(buildShadowing(t))
	require.NoError(t, err)
	b, err := json.Marshal(buildShadowing(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolve_CycleIsFatal(t *testing.T) {
	t.Parallel()
	src := "a { b { use q } }\n"
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		scopeCap(span(t, src, "a {", "} }")),
		scopeCap(span(t, src, "b {", "}")),
		refCap(word(t, src, "q", 0), ""),
	})
	scopes := g.Scopes()
	require.Len(t, scopes, 3)

	// Point the two inner scopes at each other.
	g.owner[scopes[1]] = scopes[2]
	g.owner[scopes[2]] = scopes[1]

	err := Resolve(g, []byte(src))
	require.ErrorIs(t, err, ErrScopeCycle)
	assert.Error(t, g.Validate())
}

func TestResolve_ReferenceOutsideBuffer(t *testing.T) {
	t.Parallel()
	src := "x"
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		refCap(word(t, src, "x", 0), ""),
	})
	err := Resolve(g, []byte{})
	assert.ErrorIs(t, err, ErrMalformedGraph)
}

func TestNavigate(t *testing.T) {
	t.Parallel()
	g := buildShadowing(t)
	src := shadowSrc

	innerUse := word(t, src, "x", 2)
	i, ok := g.NodeAt(innerUse.Start.Byte)
	require.True(t, ok)
	assert.Equal(t, NodeReference, g.Node(i).Kind)

	j, ok := g.NodeAtPosition(innerUse.Start.Line, innerUse.Start.Column)
	require.True(t, ok)
	assert.Equal(t, i, j)

	def, ok := g.DefinitionOf(i)
	require.True(t, ok)
	assert.Equal(t, []NodeIndex{i}, g.ReferencesTo(def))

	_, ok = g.NodeAt(0)
	assert.False(t, ok, "keyword fn is not a node")

	block := span(t, src, "block {", "  }")
	s := g.ScopeAt(innerUse.Start.Byte)
	assert.Equal(t, block, g.Node(s).Range)
	assert.Equal(t, g.Root(), g.ScopeAt(len(src)))
}

func TestValueOf(t *testing.T) {
	t.Parallel()
	src := "fn f { body } let v = { init }\n"
	fnScope := span(t, src, "fn f", "}")
	g := Build("test", testNamespaces, WholeBuffer([]byte(src)), []Capture{
		scopeCap(fnScope),
		scopeCap(word(t, src, "{ init }", 0)),
		{Role: RoleDefinition, Scoping: ScopingHoisted, Kind: "function", Range: word(t, src, "f", 1)},
		defCap(word(t, src, "v", 0), "variable"),
	})

	defs := g.Definitions()
	require.Len(t, defs, 2)

	body, ok := g.ValueOf(defs[0])
	require.True(t, ok)
	assert.Equal(t, fnScope, g.Node(body).Range)

	value, ok := g.ValueOf(defs[1])
	require.True(t, ok)
	assert.Equal(t, word(t, src, "{ init }", 0), g.Node(value).Range)

	_, ok = g.ValueOf(g.Root())
	assert.False(t, ok)
}
