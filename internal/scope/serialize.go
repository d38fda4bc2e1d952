package scope

import (
	"encoding/json"
	"fmt"
)

// SerializableNode is the JSON form of a Node.
type SerializableNode struct {
	Kind   string    `json:"kind"`
	Range  TextRange `json:"range"`
	Symbol *SymbolID `json:"symbol,omitempty"`
}

// SerializableEdge is the JSON form of an Edge.
type SerializableEdge struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Kind string `json:"kind"`
}

// SerializableGraph is the JSON form of a Graph. Node and edge order is the
// arena order, so encoding the same graph twice yields identical bytes.
type SerializableGraph struct {
	Language string             `json:"language"`
	Nodes    []SerializableNode `json:"nodes"`
	Edges    []SerializableEdge `json:"edges"`
}

// ToSerializable converts g to its JSON form.
func (g *Graph) ToSerializable() SerializableGraph {
	sg := SerializableGraph{
		Language: g.language,
		Nodes:    make([]SerializableNode, len(g.nodes)),
		Edges:    make([]SerializableEdge, len(g.edges)),
	}
	for i, n := range g.nodes {
		sn := SerializableNode{Kind: n.Kind.String(), Range: n.Range}
		if n.Symbol != nil {
			id := *n.Symbol
			sn.Symbol = &id
		}
		sg.Nodes[i] = sn
	}
	for i, e := range g.edges {
		sg.Edges[i] = SerializableEdge{From: int(e.From), To: int(e.To), Kind: e.Kind.String()}
	}
	return sg
}

// MarshalJSON encodes g through ToSerializable.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.ToSerializable())
}

// FromSerializable rebuilds a graph and checks its invariants. Identities are
// checked against ns so a graph cannot be paired with another language's
// table.
func FromSerializable(sg SerializableGraph, ns Namespaces) (*Graph, error) {
	if len(sg.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrMalformedGraph)
	}
	g := &Graph{language: sg.Language, ns: ns}
	for i, sn := range sg.Nodes {
		kind, ok := parseNodeKind(sn.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: node %d has unknown kind %q", ErrMalformedGraph, i, sn.Kind)
		}
		n := Node{Kind: kind, Range: sn.Range}
		if sn.Symbol != nil {
			if kind != NodeDefinition && kind != NodeReference {
				return nil, fmt.Errorf("%w: %s %d carries a symbol", ErrMalformedGraph, kind, i)
			}
			if !inTable(ns, *sn.Symbol) {
				return nil, fmt.Errorf("%w: node %d symbol %d.%d not in the %s namespace table",
					ErrMalformedGraph, i, sn.Symbol.Namespace, sn.Symbol.Symbol, sg.Language)
			}
			id := *sn.Symbol
			n.Symbol = &id
		}
		g.addNode(n)
	}
	for _, se := range sg.Edges {
		kind, ok := parseEdgeKind(se.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: unknown edge kind %q", ErrMalformedGraph, se.Kind)
		}
		if err := g.addEdge(Edge{From: NodeIndex(se.From), To: NodeIndex(se.To), Kind: kind}); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func inTable(ns Namespaces, id SymbolID) bool {
	return id.Namespace >= 0 && id.Namespace < len(ns) && id.Symbol >= 0 && id.Symbol < len(ns[id.Namespace])
}

func parseNodeKind(s string) (NodeKind, bool) {
	for i, name := range nodeKindNames {
		if name == s {
			return NodeKind(i), true
		}
	}
	return 0, false
}

func parseEdgeKind(s string) (EdgeKind, bool) {
	for i, name := range edgeKindNames {
		if name == s {
			return EdgeKind(i), true
		}
	}
	return 0, false
}
