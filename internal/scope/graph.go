package scope

import (
	"errors"
	"fmt"
)

// NodeIndex addresses a node in a Graph's arena.
type NodeIndex int

// NoNode is returned where no node applies.
const NoNode NodeIndex = -1

// NodeKind tags a graph node.
type NodeKind uint8

const (
	NodeScope NodeKind = iota
	NodeDefinition
	NodeImport
	NodeReference
)

var nodeKindNames = [...]string{"scope", "definition", "import", "reference"}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", k)
}

// EdgeKind tags a graph edge. Ownership edges point from the owned node to
// its scope; binding edges point from a reference to its definition.
type EdgeKind uint8

const (
	EdgeScopeToScope EdgeKind = iota
	EdgeDefinitionToScope
	EdgeImportToScope
	EdgeReferenceToScope
	EdgeReferenceToDefinition
)

var edgeKindNames = [...]string{"scope_to_scope", "definition_to_scope", "import_to_scope", "reference_to_scope", "reference_to_definition"}

func (k EdgeKind) String() string {
	if int(k) < len(edgeKindNames) {
		return edgeKindNames[k]
	}
	return fmt.Sprintf("EdgeKind(%d)", k)
}

// ownerEdgeKind is the ownership edge kind for each node kind.
var ownerEdgeKind = map[NodeKind]EdgeKind{
	NodeScope:      EdgeScopeToScope,
	NodeDefinition: EdgeDefinitionToScope,
	NodeImport:     EdgeImportToScope,
	NodeReference:  EdgeReferenceToScope,
}

// Node is one scope, definition, import or reference.
type Node struct {
	Kind   NodeKind
	Range  TextRange
	Symbol *SymbolID // definitions and references only; nil when unclassified
}

// Edge links two nodes.
type Edge struct {
	From NodeIndex
	To   NodeIndex
	Kind EdgeKind
}

var (
	// ErrScopeCycle means the scope chain of some node does not reach the root.
	ErrScopeCycle = errors.New("scope chain does not terminate")
	// ErrMalformedGraph covers any other broken structural invariant.
	ErrMalformedGraph = errors.New("malformed scope graph")
)

// Graph is the scope graph of a single file. Nodes live in one arena and are
// linked by index; node 0 is always the root scope.
type Graph struct {
	language string
	ns       Namespaces

	nodes []Node
	edges []Edge

	owner   []NodeIndex   // parent scope, or owning scope for other kinds
	owned   [][]NodeIndex // per scope, owned nodes in insertion order
	binding []NodeIndex   // per reference, bound definition
}

// NewGraph returns a graph holding only a root scope covering root.
func NewGraph(language string, ns Namespaces, root TextRange) *Graph {
	g := &Graph{language: language, ns: ns}
	g.addNode(Node{Kind: NodeScope, Range: root})
	return g
}

// Language is the registry id of the language the graph was built for.
func (g *Graph) Language() string { return g.language }

// Namespaces is the namespace table the graph's identities refer to.
func (g *Graph) Namespaces() Namespaces { return g.ns }

// AttachNamespaces sets the namespace table, used after decoding.
func (g *Graph) AttachNamespaces(ns Namespaces) { g.ns = ns }

// Root is the file-root scope.
func (g *Graph) Root() NodeIndex { return 0 }

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node at i.
func (g *Graph) Node(i NodeIndex) Node { return g.nodes[i] }

// Edges returns a copy of the edge list in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

func (g *Graph) valid(i NodeIndex) bool {
	return i >= 0 && int(i) < len(g.nodes)
}

func (g *Graph) addNode(n Node) NodeIndex {
	g.nodes = append(g.nodes, n)
	g.owner = append(g.owner, NoNode)
	g.owned = append(g.owned, nil)
	g.binding = append(g.binding, NoNode)
	return NodeIndex(len(g.nodes) - 1)
}

// addEdge records e and updates the adjacency indexes. It rejects edges whose
// endpoints have the wrong kinds and second owners or bindings.
func (g *Graph) addEdge(e Edge) error {
	if !g.valid(e.From) || !g.valid(e.To) {
		return fmt.Errorf("%w: edge %d->%d out of range", ErrMalformedGraph, e.From, e.To)
	}
	from, to := g.nodes[e.From], g.nodes[e.To]
	switch e.Kind {
	case EdgeReferenceToDefinition:
		if from.Kind != NodeReference || to.Kind != NodeDefinition {
			return fmt.Errorf("%w: %s edge from %s to %s", ErrMalformedGraph, e.Kind, from.Kind, to.Kind)
		}
		if g.binding[e.From] != NoNode {
			return fmt.Errorf("%w: reference %d bound twice", ErrMalformedGraph, e.From)
		}
		g.binding[e.From] = e.To
	default:
		if want, ok := ownerEdgeKind[from.Kind]; !ok || want != e.Kind || to.Kind != NodeScope {
			return fmt.Errorf("%w: %s edge from %s to %s", ErrMalformedGraph, e.Kind, from.Kind, to.Kind)
		}
		if e.From == e.To {
			return fmt.Errorf("%w: node %d owns itself", ErrMalformedGraph, e.From)
		}
		if g.owner[e.From] != NoNode {
			return fmt.Errorf("%w: node %d has two owners", ErrMalformedGraph, e.From)
		}
		g.owner[e.From] = e.To
		g.owned[e.To] = append(g.owned[e.To], e.From)
	}
	g.edges = append(g.edges, e)
	return nil
}

// insert adds a node owned by scope.
func (g *Graph) insert(n Node, scope NodeIndex) NodeIndex {
	i := g.addNode(n)
	if err := g.addEdge(Edge{From: i, To: scope, Kind: ownerEdgeKind[n.Kind]}); err != nil {
		panic(err)
	}
	return i
}

// Owner returns the scope that owns i. For a scope this is its parent.
func (g *Graph) Owner(i NodeIndex) (NodeIndex, bool) {
	if !g.valid(i) || g.owner[i] == NoNode {
		return NoNode, false
	}
	return g.owner[i], true
}

// Parent returns the enclosing scope of a scope node.
func (g *Graph) Parent(scope NodeIndex) (NodeIndex, bool) {
	if !g.valid(scope) || g.nodes[scope].Kind != NodeScope {
		return NoNode, false
	}
	return g.Owner(scope)
}

// Owned returns the nodes of the given kind directly owned by scope, in
// insertion order.
func (g *Graph) Owned(scope NodeIndex, kind NodeKind) []NodeIndex {
	if !g.valid(scope) {
		return nil
	}
	var out []NodeIndex
	for _, i := range g.owned[scope] {
		if g.nodes[i].Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

func (g *Graph) ofKind(kind NodeKind) []NodeIndex {
	var out []NodeIndex
	for i, n := range g.nodes {
		if n.Kind == kind {
			out = append(out, NodeIndex(i))
		}
	}
	return out
}

// Scopes returns every scope node in index order.
func (g *Graph) Scopes() []NodeIndex { return g.ofKind(NodeScope) }

// Definitions returns every definition node in index order.
func (g *Graph) Definitions() []NodeIndex { return g.ofKind(NodeDefinition) }

// Imports returns every import node in index order.
func (g *Graph) Imports() []NodeIndex { return g.ofKind(NodeImport) }

// References returns every reference node in index order.
func (g *Graph) References() []NodeIndex { return g.ofKind(NodeReference) }

// DefinitionOf returns the definition ref is bound to.
func (g *Graph) DefinitionOf(ref NodeIndex) (NodeIndex, bool) {
	if !g.valid(ref) || g.binding[ref] == NoNode {
		return NoNode, false
	}
	return g.binding[ref], true
}

// ReferencesTo returns the references bound to def, in index order.
func (g *Graph) ReferencesTo(def NodeIndex) []NodeIndex {
	var out []NodeIndex
	for i, d := range g.binding {
		if d == def && d != NoNode {
			out = append(out, NodeIndex(i))
		}
	}
	return out
}

// Bind records that ref resolves to def.
func (g *Graph) Bind(ref, def NodeIndex) error {
	return g.addEdge(Edge{From: ref, To: def, Kind: EdgeReferenceToDefinition})
}

// KindOf returns the kind name of a definition or reference, if classified.
func (g *Graph) KindOf(i NodeIndex) (string, bool) {
	if !g.valid(i) || g.nodes[i].Symbol == nil {
		return "", false
	}
	return g.ns.NameOf(*g.nodes[i].Symbol), true
}

// IsTopLevel reports whether i is owned by the root scope.
func (g *Graph) IsTopLevel(i NodeIndex) bool {
	owner, ok := g.Owner(i)
	return ok && owner == g.Root()
}

// Validate checks the structural invariants: a single root scope without a
// parent, exactly one owner for every other node, owner ranges containing the
// owned range, and scope chains that terminate at the root.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 || g.nodes[0].Kind != NodeScope {
		return fmt.Errorf("%w: missing root scope", ErrMalformedGraph)
	}
	if g.owner[0] != NoNode {
		return fmt.Errorf("%w: root scope has a parent", ErrMalformedGraph)
	}
	for i := 1; i < len(g.nodes); i++ {
		owner := g.owner[i]
		if owner == NoNode {
			return fmt.Errorf("%w: %s %d has no owner", ErrMalformedGraph, g.nodes[i].Kind, i)
		}
		if !g.nodes[owner].Range.Contains(g.nodes[i].Range) {
			return fmt.Errorf("%w: %s %d at %s escapes scope %d at %s",
				ErrMalformedGraph, g.nodes[i].Kind, i, g.nodes[i].Range, owner, g.nodes[owner].Range)
		}
	}
	for _, s := range g.Scopes() {
		if _, err := g.scopeChain(s); err != nil {
			return err
		}
	}
	return nil
}

// scopeChain returns s and its ancestors, innermost first. The walk is capped
// at the node count.
func (g *Graph) scopeChain(s NodeIndex) ([]NodeIndex, error) {
	var chain []NodeIndex
	for cur := s; cur != NoNode; cur = g.owner[cur] {
		if len(chain) >= len(g.nodes) {
			return nil, fmt.Errorf("%w: from scope %d", ErrScopeCycle, s)
		}
		chain = append(chain, cur)
	}
	if chain[len(chain)-1] != g.Root() {
		return nil, fmt.Errorf("%w: scope %d is detached from the root", ErrMalformedGraph, s)
	}
	return chain, nil
}
