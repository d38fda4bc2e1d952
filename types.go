package scopegraph

import (
	"github.com/jward/scopegraph/internal/analysis"
	"github.com/jward/scopegraph/internal/lang"
	"github.com/jward/scopegraph/internal/scope"
	"github.com/jward/scopegraph/internal/store"
	"github.com/jward/scopegraph/internal/symbol"
)

// Public type aliases for internal types used in the Engine and QueryBuilder
// API. These are Go type aliases (=), so no conversion is needed.

type Store = store.Store
type File = store.File
type Symbol = store.Symbol
type Reference = store.Reference
type Registry = lang.Registry
type Language = lang.Language
type TextRange = scope.TextRange
type Point = scope.Point
type Locations = symbol.Locations
type Tag = symbol.Tag
type CrossFileIndexer = analysis.CrossFileIndexer
