// Package symbol holds the per-file symbol location store: the result of
// analyzing one file under whichever strategy its language supports.
package symbol

import (
	"fmt"

	"github.com/jward/scopegraph/internal/scope"
)

// Strategy tags the variant held by Locations.
type Strategy uint8

const (
	Empty Strategy = iota
	Tags
	ScopeGraph
	CrossFile
)

var strategyNames = [...]string{"empty", "tags", "scope_graph", "cross_file"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", s)
}

// ParseStrategy is the inverse of Strategy.String.
func ParseStrategy(name string) (Strategy, bool) {
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), true
		}
	}
	return Empty, false
}

// Tag is a flat definition record.
type Tag struct {
	Kind  string          `json:"kind"`
	Range scope.TextRange `json:"range"`
}

// Locations is the symbol location store of one file. Exactly one of the
// payload fields is set, matching Strategy. A value is built once and
// replaced wholesale when the file is re-analyzed.
type Locations struct {
	Strategy Strategy
	Language string

	tags      []Tag
	graph     *scope.Graph
	crossFile []byte
}

// NewEmpty returns the Empty variant.
func NewEmpty(language string) Locations {
	return Locations{Strategy: Empty, Language: language}
}

// NewTags returns the Tags variant.
func NewTags(language string, tags []Tag) Locations {
	return Locations{Strategy: Tags, Language: language, tags: tags}
}

// NewScopeGraph returns the ScopeGraph variant.
func NewScopeGraph(g *scope.Graph) Locations {
	return Locations{Strategy: ScopeGraph, Language: g.Language(), graph: g}
}

// NewCrossFile returns the CrossFile variant. The payload is kept as given.
func NewCrossFile(language string, payload []byte) Locations {
	return Locations{Strategy: CrossFile, Language: language, crossFile: payload}
}

// Graph returns the scope graph of a ScopeGraph value.
func (l Locations) Graph() (*scope.Graph, bool) {
	return l.graph, l.Strategy == ScopeGraph && l.graph != nil
}

// CrossFilePayload returns the opaque payload of a CrossFile value.
func (l Locations) CrossFilePayload() ([]byte, bool) {
	return l.crossFile, l.Strategy == CrossFile
}

// Flatten lists the definitions of l as tags.
//
// Tags values return their tags. ScopeGraph values return one tag per
// classified definition in node order, named by its kind; definitions with
// no symbol identity are omitted. Empty and CrossFile values return nothing;
// the cross-file payload is opaque.
func (l Locations) Flatten() []Tag {
	switch l.Strategy {
	case Tags:
		out := make([]Tag, len(l.tags))
		copy(out, l.tags)
		return out
	case ScopeGraph:
		if l.graph == nil {
			return nil
		}
		defs := l.graph.Definitions()
		out := make([]Tag, 0, len(defs))
		for _, d := range defs {
			if kind, ok := l.graph.KindOf(d); ok {
				out = append(out, Tag{Kind: kind, Range: l.graph.Node(d).Range})
			}
		}
		return out
	}
	return nil
}
