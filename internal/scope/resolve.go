package scope

import (
	"bytes"
	"fmt"
)

// Resolve binds every unbound reference in g to the nearest enclosing
// compatible definition. src must be the buffer g was built from; names are
// compared byte for byte.
//
// For a reference owned by scope s the scopes s, parent(s), ... are searched
// innermost first. The first scope holding a definition with the same name
// and a compatible namespace wins, and within that scope the definition that
// starts first wins. Imports never bind. A reference with no candidate stays
// unbound.
//
// A scope chain that does not terminate returns ErrScopeCycle and leaves g
// partially resolved; callers must discard it.
func Resolve(g *Graph, src []byte) error {
	r := &resolver{
		g:      g,
		src:    src,
		chains: make(map[NodeIndex][]NodeIndex),
		byName: make(map[NodeIndex]map[string][]NodeIndex),
	}
	for _, ref := range g.References() {
		if _, bound := g.DefinitionOf(ref); bound {
			continue
		}
		def, err := r.lookup(ref)
		if err != nil {
			return err
		}
		if def == NoNode {
			continue
		}
		if err := g.Bind(ref, def); err != nil {
			return err
		}
	}
	return nil
}

type resolver struct {
	g      *Graph
	src    []byte
	chains map[NodeIndex][]NodeIndex
	byName map[NodeIndex]map[string][]NodeIndex
}

func (r *resolver) lookup(ref NodeIndex) (NodeIndex, error) {
	owner, ok := r.g.Owner(ref)
	if !ok {
		return NoNode, fmt.Errorf("%w: reference %d has no owner", ErrMalformedGraph, ref)
	}
	chain, err := r.chain(owner)
	if err != nil {
		return NoNode, err
	}
	node := r.g.nodes[ref]
	name := node.Range.Text(r.src)
	if name == nil {
		return NoNode, fmt.Errorf("%w: reference %d at %s is outside the buffer", ErrMalformedGraph, ref, node.Range)
	}

	for _, s := range chain {
		best := NoNode
		for _, def := range r.definitions(s)[string(name)] {
			if !compatible(node.Symbol, r.g.nodes[def].Symbol) {
				continue
			}
			if best == NoNode || r.g.nodes[def].Range.Start.Byte < r.g.nodes[best].Range.Start.Byte {
				best = def
			}
		}
		if best != NoNode {
			return best, nil
		}
	}
	return NoNode, nil
}

func (r *resolver) chain(s NodeIndex) ([]NodeIndex, error) {
	if c, ok := r.chains[s]; ok {
		return c, nil
	}
	c, err := r.g.scopeChain(s)
	if err != nil {
		return nil, err
	}
	r.chains[s] = c
	return c, nil
}

// definitions indexes the definitions owned by s by name text.
func (r *resolver) definitions(s NodeIndex) map[string][]NodeIndex {
	if m, ok := r.byName[s]; ok {
		return m
	}
	m := make(map[string][]NodeIndex)
	for _, def := range r.g.Owned(s, NodeDefinition) {
		name := r.g.nodes[def].Range.Text(r.src)
		if name == nil {
			continue
		}
		m[string(name)] = append(m[string(name)], def)
	}
	r.byName[s] = m
	return m
}

// NameOf returns the text of node i in src.
func (g *Graph) NameOf(i NodeIndex, src []byte) string {
	if !g.valid(i) {
		return ""
	}
	return string(g.nodes[i].Range.Text(src))
}

// SameName reports whether nodes a and b carry identical text in src.
func (g *Graph) SameName(a, b NodeIndex, src []byte) bool {
	if !g.valid(a) || !g.valid(b) {
		return false
	}
	return bytes.Equal(g.nodes[a].Range.Text(src), g.nodes[b].Range.Text(src))
}
