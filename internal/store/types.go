package store

import (
	"time"

	"github.com/jward/scopegraph/internal/scope"
)

// File is one indexed source file.
type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	Strategy    string
	LineCount   int
	LastIndexed time.Time
}

// Symbol is one flattened definition. Path and Language are filled by
// queries that join files.
type Symbol struct {
	ID       int64
	FileID   int64
	Name     string
	Kind     string
	Range    scope.TextRange
	TopLevel bool

	Path     string
	Language string
}

// Reference is one reference and the range of its local definition, if any.
type Reference struct {
	ID         int64
	FileID     int64
	Name       string
	Kind       string
	Range      scope.TextRange
	Definition *scope.TextRange
}

// Resolved reports whether the reference has a local definition.
func (r *Reference) Resolved() bool { return r.Definition != nil }

// FileBatch is everything written for one file in a single commit.
type FileBatch struct {
	File       File
	Version    int
	Payload    []byte
	Symbols    []Symbol
	References []Reference
}
