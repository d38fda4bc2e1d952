package scope

// NodeAt returns the smallest definition, reference or import whose range
// contains the byte offset.
func (g *Graph) NodeAt(offset int) (NodeIndex, bool) {
	return g.smallest(func(r TextRange) bool { return r.ContainsByte(offset) })
}

// NodeAtPosition is NodeAt for a 0-based line and column.
func (g *Graph) NodeAtPosition(line, col int) (NodeIndex, bool) {
	return g.smallest(func(r TextRange) bool { return r.ContainsPosition(line, col) })
}

// NodeByRange returns the definition, reference or import whose range is
// exactly r.
func (g *Graph) NodeByRange(r TextRange) (NodeIndex, bool) {
	k := keyOf(r)
	for i, n := range g.nodes {
		if n.Kind != NodeScope && keyOf(n.Range) == k {
			return NodeIndex(i), true
		}
	}
	return NoNode, false
}

func (g *Graph) smallest(match func(TextRange) bool) (NodeIndex, bool) {
	best := NoNode
	for i, n := range g.nodes {
		if n.Kind == NodeScope || !match(n.Range) {
			continue
		}
		if best == NoNode || n.Range.Size() < g.nodes[best].Range.Size() {
			best = NodeIndex(i)
		}
	}
	return best, best != NoNode
}

// ScopeAt returns the innermost scope containing offset.
func (g *Graph) ScopeAt(offset int) NodeIndex {
	cur := g.Root()
	for {
		next := NoNode
		for _, child := range g.Owned(cur, NodeScope) {
			r := g.nodes[child].Range
			if r.Start.Byte <= offset && offset < r.End.Byte {
				if next == NoNode || r.Size() < g.nodes[next].Range.Size() {
					next = child
				}
			}
		}
		if next == NoNode {
			return cur
		}
		cur = next
	}
}

// ValueOf returns the scope holding the body of definition def: the child
// scope of def's owner that contains def (a function name inside its own
// declaration), or failing that the first child scope starting at or after
// the end of def.
func (g *Graph) ValueOf(def NodeIndex) (NodeIndex, bool) {
	if !g.valid(def) || g.nodes[def].Kind != NodeDefinition {
		return NoNode, false
	}
	owner, ok := g.Owner(def)
	if !ok {
		return NoNode, false
	}
	dr := g.nodes[def].Range
	after := NoNode
	for _, child := range g.Owned(owner, NodeScope) {
		cr := g.nodes[child].Range
		if cr.Contains(dr) {
			return child, true
		}
		if cr.Start.Byte >= dr.End.Byte && (after == NoNode || cr.Start.Byte < g.nodes[after].Range.Start.Byte) {
			after = child
		}
	}
	return after, after != NoNode
}
