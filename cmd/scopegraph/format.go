package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatLocationsText formats CLILocation results as "file:line:col" lines,
// followed by the name when there is one.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		if loc.Name == "" {
			fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.StartLine, loc.StartCol)
			continue
		}
		fmt.Fprintf(w, "%s:%d:%d\t%s\n", loc.File, loc.StartLine, loc.StartCol, loc.Name)
	}
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tFILE\tLINE\tCOL")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.Name, s.Kind, s.File, s.StartLine, s.StartCol)
	}
	tw.Flush()
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANGUAGE\tSTRATEGY\tLINES")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", f.Path, f.Language, f.Strategy, f.LineCount)
	}
	tw.Flush()
}

// formatLanguagesText formats CLILanguage results as aligned columns.
func formatLanguagesText(w io.Writer, langs []CLILanguage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTRATEGY\tEXTENSIONS\tALIASES")
	for _, l := range langs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			l.ID, l.Strategy, strings.Join(l.Extensions, ","), strings.Join(l.Aliases, ","))
	}
	tw.Flush()
}

// formatIndexReportText formats a CLIIndexReport as readable text.
func formatIndexReportText(w io.Writer, r CLIIndexReport) {
	fmt.Fprintf(w, "Indexed %s in %dms\n", r.Root, r.DurationMS)
	fmt.Fprintf(w, "Database: %s\n", r.Database)
	fmt.Fprintf(w, "Files: %d indexed, %d unchanged, %d from cache, %d failed, %d removed\n",
		r.Indexed, r.Skipped, r.CacheHits, len(r.Failed), len(r.Removed))

	if len(r.ByStrategy) > 0 {
		strategies := make([]string, 0, len(r.ByStrategy))
		for s := range r.ByStrategy {
			strategies = append(strategies, s)
		}
		sort.Strings(strategies)
		fmt.Fprintln(w, "Strategies:")
		for _, s := range strategies {
			fmt.Fprintf(w, "  %s: %d\n", s, r.ByStrategy[s])
		}
	}

	if len(r.Failed) > 0 {
		fmt.Fprintln(w, "Failures:")
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Error)
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLISymbol:
		formatSymbolsText(w, v)
	case []CLIFile:
		formatFilesText(w, v)
	case []CLILanguage:
		formatLanguagesText(w, v)
	case CLIIndexReport:
		formatIndexReportText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLILocation:
		return len(r)
	case []CLISymbol:
		return len(r)
	case []CLIFile:
		return len(r)
	case []CLILanguage:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
