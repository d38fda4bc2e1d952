package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/scopegraph"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the navigation index",
	Long:  "Run navigation queries against an indexed repository. Offsets are byte offsets; line and column numbers are 0-based.",
}

func init() {
	queryCmd.AddCommand(symbolsCmd)
	queryCmd.AddCommand(definitionCmd)
	queryCmd.AddCommand(referencesCmd)
	queryCmd.AddCommand(searchCmd)
	queryCmd.AddCommand(hoverableCmd)
	queryCmd.AddCommand(unresolvedCmd)
	queryCmd.AddCommand(filesCmd)
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file>",
	Short: "List the definitions in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "symbols", func(q *scopegraph.QueryBuilder) (any, error) {
			file, err := resolveFilePath(args[0])
			if err != nil {
				return nil, err
			}
			syms, err := q.Symbols(file)
			if err != nil {
				return nil, err
			}
			return symbolsToCLI(syms), nil
		})
	},
}

var definitionCmd = &cobra.Command{
	Use:   "definition <file> <offset>",
	Short: "Find the definition of the name at a byte offset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "definition", func(q *scopegraph.QueryBuilder) (any, error) {
			file, offset, err := fileOffsetArgs(args)
			if err != nil {
				return nil, err
			}
			locs, err := q.DefinitionAt(file, offset)
			if err != nil {
				return nil, err
			}
			return locationsToCLI(locs), nil
		})
	},
}

var referencesCmd = &cobra.Command{
	Use:   "references <file> <offset>",
	Short: "Find the references bound to the definition at a byte offset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "references", func(q *scopegraph.QueryBuilder) (any, error) {
			file, offset, err := fileOffsetArgs(args)
			if err != nil {
				return nil, err
			}
			locs, err := q.ReferencesAt(file, offset)
			if err != nil {
				return nil, err
			}
			return locationsToCLI(locs), nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Find definitions by name or glob pattern (e.g. \"Handle*\")",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "search", func(q *scopegraph.QueryBuilder) (any, error) {
			syms, err := q.Search(args[0])
			if err != nil {
				return nil, err
			}
			return symbolsToCLI(syms), nil
		})
	},
}

var hoverableCmd = &cobra.Command{
	Use:   "hoverable <file>",
	Short: "List the ranges in a file that can show hover information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "hoverable", func(q *scopegraph.QueryBuilder) (any, error) {
			file, err := resolveFilePath(args[0])
			if err != nil {
				return nil, err
			}
			ranges, err := q.HoverableRanges(context.Background(), file)
			if err != nil {
				return nil, err
			}
			out := make([]CLILocation, 0, len(ranges))
			for _, r := range ranges {
				out = append(out, rangeToCLI(file, "", "", r))
			}
			return out, nil
		})
	},
}

var unresolvedCmd = &cobra.Command{
	Use:   "unresolved <file>",
	Short: "List the references in a file with no local definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "unresolved", func(q *scopegraph.QueryBuilder) (any, error) {
			file, err := resolveFilePath(args[0])
			if err != nil {
				return nil, err
			}
			refs, err := q.UnresolvedReferences(file)
			if err != nil {
				return nil, err
			}
			out := make([]CLILocation, 0, len(refs))
			for _, r := range refs {
				out = append(out, rangeToCLI(file, r.Name, r.Kind, r.Range))
			}
			return out, nil
		})
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "files", func(q *scopegraph.QueryBuilder) (any, error) {
			files, err := q.Files()
			if err != nil {
				return nil, err
			}
			out := make([]CLIFile, 0, len(files))
			for _, f := range files {
				out = append(out, CLIFile{
					ID:        f.ID,
					Path:      f.Path,
					Language:  f.Language,
					Strategy:  f.Strategy,
					LineCount: f.LineCount,
				})
			}
			return out, nil
		})
	},
}

// --- Helpers ---

// openEngine opens the engine over an existing database from the --db flag
// path (or default).
func openEngine() (*scopegraph.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'scopegraph index' first)", dbPath)
	}
	return newEngine(dbPath, []scopegraph.Option{scopegraph.WithLogger(logger)})
}

// withQuery opens the engine, runs fn and writes its results as a CLIResult.
func withQuery(cmd *cobra.Command, command string, fn func(*scopegraph.QueryBuilder) (any, error)) error {
	engine, err := openEngine()
	if err != nil {
		return outputError(cmd, command, err)
	}
	defer engine.Close()

	results, err := fn(engine.Query())
	if err != nil {
		return outputError(cmd, command, err)
	}
	count := resultLen(results)
	return outputResult(cmd, CLIResult{Command: command, Results: results, TotalCount: &count})
}

// resolveFilePath converts a file argument to an absolute path.
// If the path is already absolute, it's returned as-is.
// Otherwise, it's resolved relative to the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

func fileOffsetArgs(args []string) (string, int, error) {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return "", 0, err
	}
	offset, err := parseIntArg(args[1], "offset")
	if err != nil {
		return "", 0, err
	}
	return file, offset, nil
}

// outputResult writes a CLIResult to the command's output in the selected
// format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func symbolsToCLI(syms []*scopegraph.Symbol) []CLISymbol {
	out := make([]CLISymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, CLISymbol{
			ID:        s.ID,
			Name:      s.Name,
			Kind:      s.Kind,
			File:      s.Path,
			Language:  s.Language,
			TopLevel:  s.TopLevel,
			StartByte: s.Range.Start.Byte,
			EndByte:   s.Range.End.Byte,
			StartLine: s.Range.Start.Line,
			StartCol:  s.Range.Start.Column,
			EndLine:   s.Range.End.Line,
			EndCol:    s.Range.End.Column,
		})
	}
	return out
}

func locationsToCLI(locs []scopegraph.Location) []CLILocation {
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, rangeToCLI(l.File, l.Name, l.Kind, l.Range))
	}
	return out
}

func rangeToCLI(file, name, kind string, r scopegraph.TextRange) CLILocation {
	return CLILocation{
		File:      file,
		Name:      name,
		Kind:      kind,
		StartByte: r.Start.Byte,
		EndByte:   r.End.Byte,
		StartLine: r.Start.Line,
		StartCol:  r.Start.Column,
		EndLine:   r.End.Line,
		EndCol:    r.End.Column,
	}
}
