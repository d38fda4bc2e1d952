package scope

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Point is a position in a buffer. All fields are 0-based.
type Point struct {
	Byte   int `json:"byte"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// TextRange is a half-open byte span [Start.Byte, End.Byte) with the matching
// line/column positions.
type TextRange struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// RangeOf returns the range covered by a syntax node.
func RangeOf(n *sitter.Node) TextRange {
	sp, ep := n.StartPoint(), n.EndPoint()
	return TextRange{
		Start: Point{Byte: int(n.StartByte()), Line: int(sp.Row), Column: int(sp.Column)},
		End:   Point{Byte: int(n.EndByte()), Line: int(ep.Row), Column: int(ep.Column)},
	}
}

// Size is the number of bytes covered by r.
func (r TextRange) Size() int {
	return r.End.Byte - r.Start.Byte
}

// Contains reports whether other lies within r. Equal ranges contain each other.
func (r TextRange) Contains(other TextRange) bool {
	return r.Start.Byte <= other.Start.Byte && other.End.Byte <= r.End.Byte
}

// ContainsStrict reports whether other lies within r and is not equal to it.
func (r TextRange) ContainsStrict(other TextRange) bool {
	return r.Contains(other) && r.Size() > other.Size()
}

// ContainsByte reports whether offset falls inside r. The end offset is
// accepted so that a cursor placed right after an identifier still hits it.
func (r TextRange) ContainsByte(offset int) bool {
	return r.Start.Byte <= offset && offset <= r.End.Byte
}

// ContainsPosition is ContainsByte for a line/column position.
func (r TextRange) ContainsPosition(line, col int) bool {
	if line < r.Start.Line || line > r.End.Line {
		return false
	}
	if line == r.Start.Line && col < r.Start.Column {
		return false
	}
	if line == r.End.Line && col > r.End.Column {
		return false
	}
	return true
}

// Less orders ranges by start byte, wider ranges first on ties.
func (r TextRange) Less(other TextRange) bool {
	if r.Start.Byte != other.Start.Byte {
		return r.Start.Byte < other.Start.Byte
	}
	return r.Size() > other.Size()
}

// Text returns the bytes of src covered by r, or nil when r is out of bounds.
func (r TextRange) Text(src []byte) []byte {
	if r.Start.Byte < 0 || r.End.Byte > len(src) || r.Start.Byte > r.End.Byte {
		return nil
	}
	return src[r.Start.Byte:r.End.Byte]
}

func (r TextRange) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line, r.Start.Column, r.End.Line, r.End.Column)
}

// WholeBuffer returns the range covering all of src.
func WholeBuffer(src []byte) TextRange {
	end := Point{Byte: len(src)}
	for _, b := range src {
		if b == '\n' {
			end.Line++
			end.Column = 0
		} else {
			end.Column++
		}
	}
	return TextRange{End: end}
}
