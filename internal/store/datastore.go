package store

// DataStore is the read side of the store used by the navigation API.
type DataStore interface {
	FileByPath(path string) (*File, error)
	Files() ([]*File, error)
	LocationsPayload(fileID int64) (version int, payload []byte, err error)
	SymbolsByFile(fileID int64) ([]*Symbol, error)
	SymbolsByName(name string) ([]*Symbol, error)
	SymbolsByNameInLanguage(name, language string) ([]*Symbol, error)
	SearchSymbols(pattern string) ([]*Symbol, error)
	ReferencesByFile(fileID int64) ([]*Reference, error)
	UnresolvedReferences(fileID int64) ([]*Reference, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
