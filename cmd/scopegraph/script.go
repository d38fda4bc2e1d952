package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/scopegraph/internal/runtime"
	"github.com/jward/scopegraph/scripts"
)

var scriptCmd = &cobra.Command{
	Use:   "script <name-or-path>",
	Short: "Run a Risor script against the index",
	Long: "Runs a Risor script with the navigation API as globals. A path to an existing file runs that file; " +
		"otherwise the name selects a built-in report (kinds, unresolved, calls).",
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func runScript(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError(cmd, "script", err)
	}
	defer engine.Close()

	name := args[0]
	opts := []runtime.RuntimeOption{runtime.WithLogger(logger)}
	if info, statErr := os.Stat(name); statErr == nil && !info.IsDir() {
		abs, err := filepath.Abs(name)
		if err != nil {
			return outputError(cmd, "script", err)
		}
		opts = append(opts, runtime.WithScriptsDir(filepath.Dir(abs)))
		name = filepath.Base(abs)
	} else {
		opts = append(opts, runtime.WithRuntimeFS(scripts.FS))
		name = "report/" + strings.TrimSuffix(name, ".risor") + ".risor"
	}

	rt := runtime.NewRuntime(engine, opts...)
	if err := rt.RunScript(cmd.Context(), name, nil); err != nil {
		return outputError(cmd, "script", fmt.Errorf("running %s: %w", args[0], err))
	}
	return nil
}
