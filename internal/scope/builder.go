package scope

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

type rangeKey struct{ start, end int }

func keyOf(r TextRange) rangeKey { return rangeKey{r.Start.Byte, r.End.Byte} }

// builder tracks the scope tree while captures are attached.
type builder struct {
	g *Graph

	// childScopes holds each scope's child scopes in start order, and
	// maxEnd[s][k] is the largest end byte among childScopes[s][:k+1]. Together
	// they let a containment search stop early on well-nested input.
	childScopes map[NodeIndex][]NodeIndex
	maxEnd      map[NodeIndex][]int
}

// Build links captures into a scope graph for a buffer spanning root.
//
// Scope nesting comes from range containment alone: each scope's parent is
// the smallest scope enclosing it, and every definition, import and reference
// is owned by the innermost scope containing it. Hoisted definitions move one
// scope outwards and global definitions go to the root. Captures with no
// scopes still produce a valid graph holding only the root.
func Build(language string, ns Namespaces, root TextRange, captures []Capture) *Graph {
	b := &builder{
		g:           NewGraph(language, ns, root),
		childScopes: make(map[NodeIndex][]NodeIndex),
		maxEnd:      make(map[NodeIndex][]int),
	}

	var scopes, defs, imports, refs []Capture
	for _, c := range captures {
		if !root.Contains(c.Range) {
			continue
		}
		switch c.Role {
		case RoleScope:
			scopes = append(scopes, c)
		case RoleDefinition:
			defs = append(defs, c)
		case RoleImport:
			imports = append(imports, c)
		case RoleReference:
			refs = append(refs, c)
		}
	}

	b.addScopes(root, scopes)

	declared := make(map[rangeKey]bool)
	for _, c := range dedupe(defs) {
		declared[keyOf(c.Range)] = true
		target := b.innermost(c.Range)
		switch c.Scoping {
		case ScopingHoisted:
			if parent, ok := b.g.Parent(target); ok {
				target = parent
			}
		case ScopingGlobal:
			target = b.g.Root()
		}
		b.g.insert(Node{Kind: NodeDefinition, Range: c.Range, Symbol: classify(ns, c.Kind)}, target)
	}
	for _, c := range dedupe(imports) {
		declared[keyOf(c.Range)] = true
		b.g.insert(Node{Kind: NodeImport, Range: c.Range}, b.innermost(c.Range))
	}
	for _, c := range dedupe(refs) {
		// A name at its own declaration site is not a use.
		if declared[keyOf(c.Range)] {
			continue
		}
		b.g.insert(Node{Kind: NodeReference, Range: c.Range, Symbol: classify(ns, c.Kind)}, b.innermost(c.Range))
	}
	return b.g
}

// BuildFromTree runs the scope query over tree and builds the graph.
func BuildFromTree(language string, ns Namespaces, q *sitter.Query, cm *CaptureMap, tree *sitter.Tree, src []byte) *Graph {
	root := tree.RootNode()
	captures := Collect(q, cm, root, src)
	return Build(language, ns, WholeBuffer(src), captures)
}

func classify(ns Namespaces, kind string) *SymbolID {
	if kind == "" {
		return nil
	}
	id, ok := ns.SymbolIDOf(kind)
	if !ok {
		return nil
	}
	return &id
}

// dedupe keeps the first capture for each range and orders the result by
// start byte, keeping capture order among equal starts.
func dedupe(cs []Capture) []Capture {
	seen := make(map[rangeKey]bool, len(cs))
	out := make([]Capture, 0, len(cs))
	for _, c := range cs {
		k := keyOf(c.Range)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.Start.Byte < out[j].Range.Start.Byte
	})
	return out
}

// addScopes inserts scope captures outermost first. Sorting by start, wider
// first, guarantees every enclosing scope is already in the graph when a scope
// looks for its parent.
func (b *builder) addScopes(root TextRange, scopes []Capture) {
	seen := map[rangeKey]bool{keyOf(root): true}
	uniq := make([]Capture, 0, len(scopes))
	for _, c := range scopes {
		k := keyOf(c.Range)
		if seen[k] {
			continue
		}
		seen[k] = true
		uniq = append(uniq, c)
	}
	sort.SliceStable(uniq, func(i, j int) bool {
		return uniq[i].Range.Less(uniq[j].Range)
	})

	for _, c := range uniq {
		parent := b.innermost(c.Range)
		idx := b.g.insert(Node{Kind: NodeScope, Range: c.Range}, parent)
		end := c.Range.End.Byte
		if prev := b.maxEnd[parent]; len(prev) > 0 && prev[len(prev)-1] > end {
			end = prev[len(prev)-1]
		}
		b.childScopes[parent] = append(b.childScopes[parent], idx)
		b.maxEnd[parent] = append(b.maxEnd[parent], end)
	}
}

// innermost descends from the root into the smallest child scope containing
// r until no child contains it. Among equally small children the one that
// starts first wins.
func (b *builder) innermost(r TextRange) NodeIndex {
	cur := b.g.Root()
	for {
		next := b.containingChild(cur, r)
		if next == NoNode {
			return cur
		}
		cur = next
	}
}

func (b *builder) containingChild(parent NodeIndex, r TextRange) NodeIndex {
	children := b.childScopes[parent]
	ends := b.maxEnd[parent]
	// Children are in start order; only those starting at or before r can
	// contain it.
	k := sort.Search(len(children), func(i int) bool {
		return b.g.nodes[children[i]].Range.Start.Byte > r.Start.Byte
	}) - 1

	best := NoNode
	for ; k >= 0 && ends[k] >= r.End.Byte; k-- {
		cand := b.g.nodes[children[k]].Range
		if !cand.Contains(r) {
			continue
		}
		if best == NoNode {
			best = children[k]
			continue
		}
		cur := b.g.nodes[best].Range
		if cand.Size() < cur.Size() || (cand.Size() == cur.Size() && cand.Start.Byte <= cur.Start.Byte) {
			best = children[k]
		}
	}
	return best
}
