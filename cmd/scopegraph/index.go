package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/scopegraph"
	"github.com/jward/scopegraph/internal/config"
)

var (
	flagForce     bool
	flagLanguages string
	flagWorkers   int
	flagCache     string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a repository for navigation queries",
	Long: "Parses source files with tree-sitter, builds and resolves a scope graph per file and writes the results to the SQLite database. " +
		"Settings from scopegraph.yaml at the target root apply unless overridden by flags.",
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "re-analyze files even when their content is unchanged")
	indexCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "analysis workers (default: GOMAXPROCS)")
	indexCmd.Flags().StringVar(&flagCache, "cache", "", "directory of the analysis cache shared across databases")
}

func runIndex(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError(cmd, "index", err)
	}

	cfg, err := config.Load(targetDir)
	if err != nil {
		return outputError(cmd, "index", err)
	}
	merged := cfg.Merge(config.Config{
		Languages: splitList(flagLanguages),
		Workers:   flagWorkers,
		CacheDir:  flagCache,
	})

	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return outputError(cmd, "index", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
	}

	opts := []scopegraph.Option{
		scopegraph.WithLogger(logger),
		scopegraph.WithConfig(&merged),
	}
	engine, err := openIndexEngine(dbPath, opts)
	if err != nil {
		return outputError(cmd, "index", err)
	}
	defer engine.Close()

	report, err := engine.IndexDirectory(context.Background(), targetDir)
	if err != nil {
		return outputError(cmd, "index", fmt.Errorf("indexing: %w", err))
	}
	logger.Info("indexed", "root", targetDir, "db", dbPath,
		"files", report.Indexed, "skipped", report.Skipped,
		"failed", len(report.Failed), "duration", report.Duration.Round(time.Millisecond))

	return outputResult(cmd, CLIResult{
		Command: "index",
		Results: reportToCLI(report, targetDir, dbPath),
	})
}

// openIndexEngine opens the engine for indexing. A database built with
// different queries is re-analyzed from scratch even without --force.
func openIndexEngine(dbPath string, opts []scopegraph.Option) (*scopegraph.Engine, error) {
	if flagForce {
		return newEngine(dbPath, append(opts, scopegraph.WithForce(true)))
	}
	engine, err := newEngine(dbPath, opts)
	if err != nil {
		return nil, err
	}
	if !engine.RegistryChanged() {
		return engine, nil
	}
	files, err := engine.Store().Files()
	if err != nil || len(files) == 0 {
		return engine, err
	}
	logger.Info("language queries changed, re-analyzing all files", "db", dbPath)
	if err := engine.Close(); err != nil {
		return nil, err
	}
	return newEngine(dbPath, append(opts, scopegraph.WithForce(true)))
}

func newEngine(dbPath string, opts []scopegraph.Option) (*scopegraph.Engine, error) {
	engine, err := scopegraph.New(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func reportToCLI(r *scopegraph.IndexReport, root, dbPath string) CLIIndexReport {
	out := CLIIndexReport{
		RunID:      r.RunID,
		Root:       root,
		Database:   dbPath,
		Indexed:    r.Indexed,
		Skipped:    r.Skipped,
		CacheHits:  r.CacheHits,
		ByStrategy: r.ByStrategy,
		Removed:    r.Removed,
		DurationMS: r.Duration.Milliseconds(),
	}
	for _, fe := range r.Failed {
		out.Failed = append(out.Failed, CLIFileError{Path: fe.Path, Error: fe.Err.Error()})
	}
	return out
}
