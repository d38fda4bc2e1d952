package scopegraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/scopegraph/internal/config"
	"github.com/jward/scopegraph/internal/store"
)

const (
	libSrc = `package main

func Helper() int {
	return 1
}
`
	mainSrc = `package main

func main() {
	x := Helper()
	_ = x
}
`
	phpSrc = "<?php\nclass Greeter {\n  function hello() {\n    echo 'hi';\n  }\n}\n"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeFile writes src to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// writeProject lays out a small mixed-language project and returns its root.
func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "a.go", libSrc)
	writeFile(t, root, "b.go", mainSrc)
	writeFile(t, root, "greeter.php", phpSrc)
	writeFile(t, root, "notes.txt", "not code")
	return root
}

func TestNew_CreatesStore(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.Store())
	require.NotNil(t, e.Registry())
	require.NotNil(t, e.Analyzer())
	require.NotNil(t, e.Query())

	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestNew_UnknownLanguage(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "test.db"), WithLanguages("cobol"))
	require.ErrorIs(t, err, ErrUnknownLanguage)
	assert.Contains(t, err.Error(), "cobol")
}

func TestClose(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "test.db"), WithCache(""))
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestIndexDirectory(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	root := writeProject(t)

	report, err := e.IndexDirectory(ctx, root)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Indexed)
	assert.Zero(t, report.Skipped)
	assert.Empty(t, report.Failed)
	assert.Equal(t, map[string]int{"scope_graph": 2, "tags": 1}, report.ByStrategy)

	files, err := e.Query().Files()
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path), f.Path)
		assert.NotEmpty(t, f.Hash)
	}

	runID, ok, err := e.Store().GetMetadata(store.MetaLastRunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.RunID, runID)
}

func TestIndexFiles_SkipsUnchangedFiles(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	root := writeProject(t)

	_, err := e.IndexDirectory(ctx, root)
	require.NoError(t, err)

	report, err := e.IndexDirectory(ctx, root)
	require.NoError(t, err)
	assert.Zero(t, report.Indexed)
	assert.Equal(t, 3, report.Skipped)

	writeFile(t, root, "a.go", libSrc+"\nfunc Extra() {}\n")
	report, err = e.IndexDirectory(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 2, report.Skipped)

	syms, err := e.Store().SymbolsByName("Extra")
	require.NoError(t, err)
	assert.Len(t, syms, 1)
}

func TestIndexFiles_Force(t *testing.T) {
	root := writeProject(t)
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	e, err := New(dbPath)
	require.NoError(t, err)
	_, err = e.IndexDirectory(ctx, root)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = New(dbPath, WithForce(true))
	require.NoError(t, err)
	defer e.Close()
	report, err := e.IndexDirectory(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.Zero(t, report.Skipped)

	syms, err := e.Store().SymbolsByName("Helper")
	require.NoError(t, err)
	assert.Len(t, syms, 1, "re-indexing replaces rows")
}

func TestIndexFiles_SkipsUnsupportedAndFiltered(t *testing.T) {
	e := newTestEngine(t, WithLanguages("golang"))
	root := writeProject(t)

	report, err := e.IndexFiles(context.Background(), []string{
		filepath.Join(root, "a.go"),
		filepath.Join(root, "greeter.php"),
		filepath.Join(root, "notes.txt"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Zero(t, report.Skipped)
	assert.Empty(t, report.Failed)

	files, err := e.Store().FilesByLanguage("go")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestIndexFiles_MissingFile(t *testing.T) {
	e := newTestEngine(t)
	report, err := e.IndexFiles(context.Background(), []string{filepath.Join(t.TempDir(), "gone.go")})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0], os.ErrNotExist)
}

func TestIndexFiles_TooLarge(t *testing.T) {
	e := newTestEngine(t, WithMaxFileSize(10))
	root := writeProject(t)

	report, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, report.Indexed)
	require.Len(t, report.Failed, 3)
	for _, fe := range report.Failed {
		assert.ErrorIs(t, fe, ErrFileTooLarge)
	}
}

func TestIndexFiles_Canceled(t *testing.T) {
	e := newTestEngine(t)
	root := writeProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.IndexFiles(ctx, []string{filepath.Join(root, "a.go")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIndexFiles_SerialMatchesParallel(t *testing.T) {
	root := writeProject(t)
	ctx := context.Background()

	symbolsOf := func(e *Engine) []string {
		var out []string
		for _, name := range []string{"a.go", "b.go", "greeter.php"} {
			syms, err := e.Query().Symbols(filepath.Join(root, name))
			require.NoError(t, err)
			for _, s := range syms {
				out = append(out, name+":"+s.Name+":"+s.Kind)
			}
		}
		return out
	}

	serial := newTestEngine(t, WithParallel(false))
	_, err := serial.IndexDirectory(ctx, root)
	require.NoError(t, err)

	parallel := newTestEngine(t, WithWorkers(4))
	_, err = parallel.IndexDirectory(ctx, root)
	require.NoError(t, err)

	assert.Equal(t, symbolsOf(serial), symbolsOf(parallel))
}

func TestIndexDirectory_RemovesStaleFiles(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	root := writeProject(t)

	_, err := e.IndexDirectory(ctx, root)
	require.NoError(t, err)

	libPath := filepath.Join(root, "a.go")
	require.NoError(t, os.Remove(libPath))
	report, err := e.IndexDirectory(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{libPath}, report.Removed)

	f, err := e.Store().FileByPath(libPath)
	require.NoError(t, err)
	assert.Nil(t, f)

	syms, err := e.Store().SymbolsByName("Helper")
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestIndexDirectory_Exclude(t *testing.T) {
	e := newTestEngine(t, WithExclude("gen/"))
	root := writeProject(t)
	writeFile(t, root, "gen/out.go", "package gen\n")

	report, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)

	f, err := e.Store().FileByPath(filepath.Join(root, "gen", "out.go"))
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestIndexFiles_CacheSharedAcrossDatabases(t *testing.T) {
	root := writeProject(t)
	cacheDir := t.TempDir()
	ctx := context.Background()

	run := func() *IndexReport {
		e, err := New(filepath.Join(t.TempDir(), "test.db"), WithCache(cacheDir))
		require.NoError(t, err)
		defer e.Close()
		report, err := e.IndexDirectory(ctx, root)
		require.NoError(t, err)
		return report
	}

	first := run()
	assert.Equal(t, 3, first.Indexed)
	assert.Zero(t, first.CacheHits)

	second := run()
	assert.Equal(t, 3, second.Indexed)
	assert.Equal(t, 3, second.CacheHits)
	assert.Equal(t, first.ByStrategy, second.ByStrategy)
}

func TestRegistryChanged(t *testing.T) {
	e := newTestEngine(t)
	assert.True(t, e.RegistryChanged(), "never indexed")

	_, err := e.IndexDirectory(context.Background(), writeProject(t))
	require.NoError(t, err)
	assert.False(t, e.RegistryChanged())

	require.NoError(t, e.Store().SetMetadata(store.MetaRegistryHash, "stale"))
	assert.True(t, e.RegistryChanged())
}

func TestRegistryChanged_SubsetRunKeepsStaleHash(t *testing.T) {
	e := newTestEngine(t)
	root := writeProject(t)

	_, err := e.IndexFiles(context.Background(), []string{filepath.Join(root, "a.go")})
	require.NoError(t, err)
	assert.True(t, e.RegistryChanged(), "a subset run does not vouch for the whole index")

	require.NoError(t, e.Store().SetMetadata(store.MetaRegistryHash, "stale"))
	_, err = e.IndexFiles(context.Background(), []string{filepath.Join(root, "b.go")})
	require.NoError(t, err)
	stored, ok, err := e.Store().GetMetadata(store.MetaRegistryHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "stale", stored)

	_, err = e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, e.RegistryChanged())
}

func TestWithConfig(t *testing.T) {
	cfg := &config.Config{
		Languages:    []string{"go"},
		Exclude:      []string{"b.go"},
		Workers:      2,
		ParseTimeout: 5 * time.Second,
	}
	e := newTestEngine(t, WithConfig(cfg))
	assert.Equal(t, 2, e.workers)

	report, err := e.IndexDirectory(context.Background(), writeProject(t))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, map[string]int{"scope_graph": 1}, report.ByStrategy)
}

func TestWithConfig_Nil(t *testing.T) {
	e := newTestEngine(t, WithConfig(nil))
	assert.Nil(t, e.languages)
}

type fakeCrossFile struct{}

func (fakeCrossFile) Supports(language string) bool { return language == "go" }

func (fakeCrossFile) Index(_ context.Context, _ string, src []byte) ([]byte, error) {
	return []byte("graph of " + string(src[:12])), nil
}

func TestIndexFiles_CrossFile(t *testing.T) {
	e := newTestEngine(t, WithCrossFileIndexer(fakeCrossFile{}))
	root := writeProject(t)

	report, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cross_file": 2, "tags": 1}, report.ByStrategy)

	loc, err := e.Query().Locations(filepath.Join(root, "a.go"))
	require.NoError(t, err)
	payload, ok := loc.CrossFilePayload()
	require.True(t, ok)
	assert.Equal(t, "graph of package main", string(payload))
}
