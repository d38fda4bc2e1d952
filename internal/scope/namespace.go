package scope

import (
	"fmt"
	"strings"
)

// Namespace is an ordered group of symbol kinds that may bind to each other.
type Namespace []string

// Namespaces is a language's ordered list of namespace groups.
type Namespaces []Namespace

// SymbolID classifies a definition or reference by namespace group and kind
// slot. It is shared by every symbol of that kind in a language.
type SymbolID struct {
	Namespace int `json:"namespace"`
	Symbol    int `json:"symbol"`
}

// SymbolIDOf returns the identity of kind. Groups are scanned in declaration
// order, then kinds within a group; the first match wins when a kind appears
// in more than one slot.
func (ns Namespaces) SymbolIDOf(kind string) (SymbolID, bool) {
	for i, group := range ns {
		for j, k := range group {
			if k == kind {
				return SymbolID{Namespace: i, Symbol: j}, true
			}
		}
	}
	return SymbolID{}, false
}

// NameOf returns the kind name of id. It panics when id does not belong to
// this table, which only happens when identities from another language are
// mixed in.
func (ns Namespaces) NameOf(id SymbolID) string {
	if id.Namespace < 0 || id.Namespace >= len(ns) {
		panic(fmt.Sprintf("scope: namespace %d out of range (%d groups)", id.Namespace, len(ns)))
	}
	group := ns[id.Namespace]
	if id.Symbol < 0 || id.Symbol >= len(group) {
		panic(fmt.Sprintf("scope: symbol %d out of range in namespace %d (%d kinds)", id.Symbol, id.Namespace, len(group)))
	}
	return group[id.Symbol]
}

// AllKinds flattens every group into one list.
func (ns Namespaces) AllKinds() []string {
	var kinds []string
	for _, group := range ns {
		kinds = append(kinds, group...)
	}
	return kinds
}

// Validate reports kinds declared more than once. SymbolIDOf stays well
// defined for such tables, but the later slots are unreachable.
func (ns Namespaces) Validate() error {
	seen := make(map[string]SymbolID)
	var dups []string
	for i, group := range ns {
		for j, k := range group {
			if k == "" {
				return fmt.Errorf("empty kind at namespace %d slot %d", i, j)
			}
			if first, ok := seen[k]; ok {
				dups = append(dups, fmt.Sprintf("%q at %d.%d and %d.%d", k, first.Namespace, first.Symbol, i, j))
				continue
			}
			seen[k] = SymbolID{Namespace: i, Symbol: j}
		}
	}
	if len(dups) > 0 {
		return fmt.Errorf("duplicate kinds: %s", strings.Join(dups, ", "))
	}
	return nil
}

// compatible reports whether a reference classified as ref may bind to a
// definition classified as def. An absent identity on either side matches any
// namespace; two present identities must share their group.
func compatible(ref, def *SymbolID) bool {
	if ref == nil || def == nil {
		return true
	}
	return ref.Namespace == def.Namespace
}
