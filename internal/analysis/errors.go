package analysis

import (
	"errors"

	"github.com/jward/scopegraph/internal/lang"
)

var (
	// ErrUnsupportedLanguage means no registry entry matches the file.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrFileTooLarge means the file exceeds the analyzer's size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrParseTimeout means tree-sitter did not finish within the parse timeout.
	ErrParseTimeout = errors.New("parse timed out")
	// ErrQuery is a query that failed to compile or names unknown kinds.
	ErrQuery = lang.ErrQuery
	// ErrInvalidGraph means a built graph broke a structural invariant. The
	// file must be skipped.
	ErrInvalidGraph = errors.New("invalid scope graph")
)

// reason maps an analysis error to a metric label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrParseTimeout):
		return "parse_timeout"
	case errors.Is(err, ErrInvalidGraph):
		return "invalid_graph"
	case errors.Is(err, ErrQuery):
		return "query"
	}
	return "other"
}
