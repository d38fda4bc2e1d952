package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISymbol is a JSON-friendly definition.
type CLISymbol struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	File      string `json:"file,omitempty"`
	Language  string `json:"language,omitempty"`
	TopLevel  bool   `json:"top_level"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLILocation is a range in a file, optionally named.
type CLILocation struct {
	File      string `json:"file"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind,omitempty"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLIFile is a JSON-friendly indexed file.
type CLIFile struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Language  string `json:"language"`
	Strategy  string `json:"strategy"`
	LineCount int    `json:"line_count"`
}

// CLIFileError is a file that failed to index.
type CLIFileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// CLIIndexReport summarizes an index run.
type CLIIndexReport struct {
	RunID      string         `json:"run_id"`
	Root       string         `json:"root"`
	Database   string         `json:"database"`
	Indexed    int            `json:"indexed"`
	Skipped    int            `json:"skipped"`
	CacheHits  int            `json:"cache_hits"`
	Failed     []CLIFileError `json:"failed,omitempty"`
	ByStrategy map[string]int `json:"by_strategy"`
	Removed    []string       `json:"removed,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// CLILanguage is a registry entry.
type CLILanguage struct {
	ID         string   `json:"id"`
	Aliases    []string `json:"aliases,omitempty"`
	Extensions []string `json:"extensions"`
	Strategy   string   `json:"strategy"`
}
