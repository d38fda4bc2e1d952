package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopegraph/internal/scope"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func span(start, end int) scope.TextRange {
	return scope.TextRange{
		Start: scope.Point{Byte: start, Line: 1, Column: start},
		End:   scope.Point{Byte: end, Line: 1, Column: end},
	}
}

// testBatch builds a batch for path with one function, one variable and a
// resolved plus an unresolved reference.
func testBatch(path, lang string) *FileBatch {
	def := span(5, 8)
	return &FileBatch{
		File: File{
			Path: path, Language: lang, Hash: ContentHash([]byte(path)),
			Strategy: "scope_graph", LineCount: 3, LastIndexed: time.Now().Truncate(time.Second),
		},
		Version: 1,
		Payload: []byte("payload:" + path),
		Symbols: []Symbol{
			{Name: "add", Kind: "function", Range: def, TopLevel: true},
			{Name: "sum", Kind: "variable", Range: span(20, 23)},
		},
		References: []Reference{
			{Name: "add", Kind: "", Range: span(40, 43), Definition: &def},
			{Name: "fmt", Kind: "", Range: span(50, 53)},
		},
	}
}

func commit(t *testing.T, s *Store, fb *FileBatch) *File {
	t.Helper()
	require.NoError(t, s.CommitFile(fb))
	require.Positive(t, fb.File.ID)
	return &fb.File
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "symbol_locations", "symbols", "references_", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Commit
// =============================================================================

func TestCommitFile_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := commit(t, s, testBatch("/src/main.go", "go"))

	got, err := s.FileByPath("/src/main.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, "scope_graph", got.Strategy)
	assert.Equal(t, 3, got.LineCount)
	assert.Equal(t, ContentHash([]byte("/src/main.go")), got.Hash)

	version, payload, err := s.LocationsPayload(f.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, []byte("payload:/src/main.go"), payload)

	syms, err := s.SymbolsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "add", syms[0].Name)
	assert.Equal(t, "function", syms[0].Kind)
	assert.True(t, syms[0].TopLevel)
	assert.Equal(t, span(5, 8), syms[0].Range)
	assert.Equal(t, "/src/main.go", syms[0].Path)
	assert.Equal(t, "go", syms[0].Language)
	assert.False(t, syms[1].TopLevel)

	refs, err := s.ReferencesByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.True(t, refs[0].Resolved())
	assert.Equal(t, 5, refs[0].Definition.Start.Byte)
	assert.Equal(t, 8, refs[0].Definition.End.Byte)
	assert.False(t, refs[1].Resolved())

	unresolved, err := s.UnresolvedReferences(f.ID)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "fmt", unresolved[0].Name)
}

func TestCommitFile_ReplacesPreviousRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	first := commit(t, s, testBatch("/a.py", "python"))

	fb := testBatch("/a.py", "python")
	fb.Symbols = fb.Symbols[:1]
	fb.References = nil
	fb.Payload = []byte("v2")
	second := commit(t, s, fb)
	assert.Equal(t, first.ID, second.ID, "file id is stable across re-indexing")

	syms, err := s.SymbolsByFile(second.ID)
	require.NoError(t, err)
	assert.Len(t, syms, 1)
	refs, err := s.ReferencesByFile(second.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)
	_, payload, err := s.LocationsPayload(second.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), payload)
}

func TestCommitBatch_ConcurrentAdd(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatch()
	paths := []string{"/d.go", "/a.go", "/c.go", "/b.go"}

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Add(testBatch(p, "go"))
		}()
	}
	wg.Wait()
	require.Equal(t, 4, b.Len())

	var order []string
	for _, fb := range b.Files() {
		order = append(order, fb.File.Path)
	}
	assert.Equal(t, []string{"/a.go", "/b.go", "/c.go", "/d.go"}, order)

	require.NoError(t, s.CommitBatch(b))
	files, err := s.Files()
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestCommitBatch_AllOrNothing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatch()
	b.Add(testBatch("/ok.go", "go"))
	bad := testBatch("/bad.go", "go")
	bad.Symbols[1].Range = span(10, 5)
	b.Add(bad)

	require.Error(t, s.CommitBatch(b))
	got, err := s.FileByPath("/ok.go")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// Queries
// =============================================================================

func TestFile_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.FileByPath("/nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFile_ByLanguageAndPaths(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commit(t, s, testBatch("/a.go", "go"))
	commit(t, s, testBatch("/b.go", "go"))
	commit(t, s, testBatch("/c.py", "python"))

	goFiles, err := s.FilesByLanguage("go")
	require.NoError(t, err)
	assert.Len(t, goFiles, 2)

	byPath, err := s.FilesByPaths([]string{"/a.go", "/c.py", "/missing"})
	require.NoError(t, err)
	assert.Len(t, byPath, 2)
	assert.Equal(t, "python", byPath["/c.py"].Language)
}

func TestLocationsPayload_Missing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, _, err := s.LocationsPayload(42)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSymbolsByName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commit(t, s, testBatch("/b.go", "go"))
	commit(t, s, testBatch("/a.go", "go"))
	commit(t, s, testBatch("/c.py", "python"))

	syms, err := s.SymbolsByName("add")
	require.NoError(t, err)
	require.Len(t, syms, 3)
	assert.Equal(t, "/a.go", syms[0].Path)
	assert.Equal(t, "/b.go", syms[1].Path)

	syms, err = s.SymbolsByNameInLanguage("add", "python")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "/c.py", syms[0].Path)

	counts, err := s.SymbolCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"function": 3, "variable": 3}, counts)
}

func TestSearchSymbols(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commit(t, s, testBatch("/a.go", "go"))

	syms, err := s.SearchSymbols("a*")
	require.NoError(t, err)
	require.NotEmpty(t, syms)
	for _, sym := range syms {
		assert.Equal(t, byte('a'), sym.Name[0])
	}

	syms, err = s.SearchSymbols("A*")
	require.NoError(t, err)
	assert.Empty(t, syms, "glob is case-sensitive")
}

func TestDeleteFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := commit(t, s, testBatch("/main.go", "go"))
	commit(t, s, testBatch("/other.go", "go"))

	require.NoError(t, s.DeleteFile("/main.go"))
	require.NoError(t, s.DeleteFile("/never-indexed.go"))

	got, err := s.FileByPath("/main.go")
	require.NoError(t, err)
	assert.Nil(t, got)
	syms, err := s.SymbolsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, syms)
	refs, err := s.ReferencesByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)

	syms, err = s.SymbolsByName("add")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "/other.go", syms[0].Path)
}

func TestDeleteMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commit(t, s, testBatch("/repo/keep.go", "go"))
	commit(t, s, testBatch("/repo/gone.go", "go"))
	commit(t, s, testBatch("/repo/sub/gone.py", "python"))
	commit(t, s, testBatch("/repository/other.go", "go"))

	removed, err := s.DeleteMissing("/repo", []string{"/repo/keep.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/repo/gone.go", "/repo/sub/gone.py"}, removed)

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/repo/keep.go", files[0].Path)
	assert.Equal(t, "/repository/other.go", files[1].Path, "sibling prefixes are not under dir")

	removed, err = s.DeleteMissing("/repo/", []string{"/repo/keep.go"})
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.GetMetadata(MetaRegistryHash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata(MetaRegistryHash, "one"))
	require.NoError(t, s.SetMetadata(MetaRegistryHash, "two"))
	v, ok, err := s.GetMetadata(MetaRegistryHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	require.NoError(t, s.SetRun("run-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	v, _, err = s.GetMetadata(MetaLastRunAt)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", v)
}

func TestQueryReadOnly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := commit(t, s, testBatch("/a.go", "go"))
	ctx := context.Background()

	cols, rows, err := s.QueryReadOnly(ctx, "SELECT name FROM symbols WHERE kind = ? ORDER BY name", "function")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, cols)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "add", rows[0][0])

	tests := []string{
		"DELETE FROM symbols",
		"SELECT 1; DELETE FROM symbols",
		"SELECT 1; UPDATE files SET language = 'x'",
	}
	for _, q := range tests {
		_, _, err := s.QueryReadOnly(ctx, q)
		require.Error(t, err, q)
	}

	syms, err := s.SymbolsByFile(f.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, syms)

	// Pooled connections accept writes again afterwards.
	require.NoError(t, s.SetMetadata("k", "v"))
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("a")), ContentHash([]byte("a")))
	assert.NotEqual(t, ContentHash([]byte("a")), ContentHash([]byte("b")))
	assert.Len(t, ContentHash(nil), 32)
}
