package scope

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Role is what a query capture contributes to the graph.
type Role uint8

const (
	RoleScope Role = iota
	RoleDefinition
	RoleImport
	RoleReference
)

// Scoping decides which scope a definition is attached to.
type Scoping uint8

const (
	// ScopingLocal attaches to the innermost enclosing scope.
	ScopingLocal Scoping = iota
	// ScopingHoisted attaches to the parent of the innermost enclosing scope,
	// for names declared by the construct that opens the scope (functions,
	// classes).
	ScopingHoisted
	// ScopingGlobal attaches to the root scope.
	ScopingGlobal
)

// Capture is one classified query capture.
type Capture struct {
	Role    Role
	Scoping Scoping
	Kind    string // optional kind name for definitions and references
	Range   TextRange
}

type captureSpec struct {
	role    Role
	scoping Scoping
	kind    string
	ignore  bool
}

// CaptureMap maps the capture ids of a compiled query to their roles.
type CaptureMap struct {
	specs []captureSpec

	// Unknown lists capture names that follow no known convention. They are
	// ignored during builds.
	Unknown []string
}

// parseCaptureName classifies a capture name:
//
//	local.scope
//	local.import
//	{local,hoist,global}.definition[.<kind>]
//	local.reference[.<kind>]
//
// Names starting with "_" are helper captures and are ignored. The returned
// bool is false for names that follow none of these forms.
func parseCaptureName(name string) (spec captureSpec, known bool, err error) {
	if strings.HasPrefix(name, "_") {
		return captureSpec{ignore: true}, true, nil
	}
	switch name {
	case "local.scope":
		return captureSpec{role: RoleScope}, true, nil
	case "local.import":
		return captureSpec{role: RoleImport}, true, nil
	}

	parts := strings.SplitN(name, ".", 3)
	if len(parts) < 2 {
		return captureSpec{ignore: true}, false, nil
	}
	var kind string
	if len(parts) == 3 {
		kind = parts[2]
	}
	switch parts[1] {
	case "definition":
		var scoping Scoping
		switch parts[0] {
		case "local":
			scoping = ScopingLocal
		case "hoist":
			scoping = ScopingHoisted
		case "global":
			scoping = ScopingGlobal
		default:
			return captureSpec{}, true, fmt.Errorf("capture %q: unknown scoping %q", name, parts[0])
		}
		return captureSpec{role: RoleDefinition, scoping: scoping, kind: kind}, true, nil
	case "reference":
		if parts[0] != "local" {
			return captureSpec{}, true, fmt.Errorf("capture %q: references are always local", name)
		}
		return captureSpec{role: RoleReference, kind: kind}, true, nil
	}
	return captureSpec{ignore: true}, false, nil
}

// NewCaptureMap classifies every capture of q.
func NewCaptureMap(q *sitter.Query) (*CaptureMap, error) {
	n := q.CaptureCount()
	names := make([]string, n)
	for i := uint32(0); i < n; i++ {
		names[i] = q.CaptureNameForId(i)
	}
	return captureMapOf(names)
}

func captureMapOf(names []string) (*CaptureMap, error) {
	cm := &CaptureMap{specs: make([]captureSpec, len(names))}
	for i, name := range names {
		spec, known, err := parseCaptureName(name)
		if err != nil {
			return nil, err
		}
		if !known {
			cm.Unknown = append(cm.Unknown, name)
		}
		cm.specs[i] = spec
	}
	return cm, nil
}

// Kinds returns the distinct kind names the query can produce, sorted by
// first appearance.
func (cm *CaptureMap) Kinds() []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, s := range cm.specs {
		if s.ignore || s.kind == "" || seen[s.kind] {
			continue
		}
		seen[s.kind] = true
		kinds = append(kinds, s.kind)
	}
	return kinds
}

// Collect runs q over root and returns the classified captures in match
// order. Predicates such as #eq? and #match? are applied against src.
func Collect(q *sitter.Query, cm *CaptureMap, root *sitter.Node, src []byte) []Capture {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var out []Capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, src)
		for _, c := range m.Captures {
			if int(c.Index) >= len(cm.specs) {
				continue
			}
			spec := cm.specs[c.Index]
			if spec.ignore {
				continue
			}
			out = append(out, Capture{
				Role:    spec.role,
				Scoping: spec.scoping,
				Kind:    spec.kind,
				Range:   RangeOf(c.Node),
			})
		}
	}
	return out
}
