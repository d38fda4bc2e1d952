package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/scopegraph/internal/lang"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		langs := lang.DefaultRegistry().Languages()
		out := make([]CLILanguage, 0, len(langs))
		for _, l := range langs {
			out = append(out, CLILanguage{
				ID:         l.ID,
				Aliases:    l.Aliases,
				Extensions: l.Extensions,
				Strategy:   string(l.Strategy()),
			})
		}
		count := len(out)
		return outputResult(cmd, CLIResult{Command: "languages", Results: out, TotalCount: &count})
	},
}
