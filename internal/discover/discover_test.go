package discover

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFiles_SkipsHiddenAndDependencyDirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "lib/util.py", "pass")
	writeFile(t, dir, ".hidden.py", "pass")
	writeFile(t, dir, ".cache/x.go", "package x")
	writeFile(t, dir, "node_modules/pkg/index.js", "")
	writeFile(t, dir, "vendor/dep/dep.go", "package dep")
	writeFile(t, dir, "__pycache__/m.py", "")

	files, err := Files(context.Background(), dir, Options{NoGit: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/util.py", "main.go"}, files)
}

func TestFiles_Gitignore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "build/\n*.gen.go\n")
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "types.gen.go", "package main")
	writeFile(t, dir, "build/out.go", "package build")

	files, err := Files(context.Background(), dir, Options{NoGit: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, files)
}

func TestFiles_ExcludeAndKeep(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "testdata/fixture.go", "package fixture")
	writeFile(t, dir, "app.py", "pass")
	writeFile(t, dir, "README.md", "# hi")

	files, err := Files(context.Background(), dir, Options{
		NoGit:   true,
		Exclude: []string{"testdata/"},
		Keep:    func(rel string) bool { return !strings.HasSuffix(rel, ".md") },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "main.go"}, files)
}

func TestFiles_Canceled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Files(ctx, dir, Options{NoGit: true})
	assert.ErrorIs(t, err, context.Canceled)
}
