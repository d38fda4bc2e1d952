// Package discover finds indexable source files in a repository.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

var skipDirs = map[string]struct{}{
	"__pycache__":  {},
	"node_modules": {},
	"vendor":       {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	"venv":         {},
	".venv":        {},
	".tox":         {},
	".mypy_cache":  {},
}

// Options controls discovery.
type Options struct {
	// Exclude holds gitignore-style patterns relative to the root.
	Exclude []string
	// Keep reports whether a relative path should be returned. Nil keeps all.
	Keep func(rel string) bool
	// NoGit skips `git ls-files` and always walks the tree.
	NoGit bool
}

// Files returns the paths under root, relative to it and sorted, that are
// tracked (or untracked but not ignored) by git. Outside a git work tree it
// walks the directory honouring root/.gitignore. Hidden entries, symlinks and
// well-known dependency directories are always skipped.
func Files(ctx context.Context, root string, opts Options) ([]string, error) {
	var gitFiles map[string]struct{}
	if !opts.NoGit {
		gitFiles = gitLsFiles(ctx, root)
	}
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}
	var exclude *ignore.GitIgnore
	if len(opts.Exclude) > 0 {
		exclude = ignore.CompileIgnoreLines(opts.Exclude...)
	}

	var results []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if exclude != nil && exclude.MatchesPath(rel) {
			return nil
		}
		if opts.Keep != nil && !opts.Keep(rel) {
			return nil
		}
		results = append(results, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(results)
	return results, nil
}

func gitLsFiles(ctx context.Context, root string) map[string]struct{} {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
