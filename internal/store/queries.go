package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/scopegraph/internal/scope"
)

// --- File operations ---

const fileCols = `id, path, language, hash, strategy, line_count, last_indexed`

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash sql.NullString
	var indexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &hash, &f.Strategy, &f.LineCount, &indexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	if indexed.Valid {
		f.LastIndexed = indexed.Time
	}
	return f, nil
}

// FileByPath returns the file stored at path, or nil when there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FilesByPaths returns the stored files among paths, keyed by path.
func (s *Store) FilesByPaths(paths []string) (map[string]*File, error) {
	out := make(map[string]*File, len(paths))
	// SQLite caps the number of bound parameters per statement.
	const chunk = 500
	for start := 0; start < len(paths); start += chunk {
		end := min(start+chunk, len(paths))
		files, err := s.queryFiles(
			"SELECT "+fileCols+" FROM files WHERE path IN ("+placeholderList(end-start)+")",
			stringsToArgs(paths[start:end])...)
		if err != nil {
			return nil, fmt.Errorf("files by paths: %w", err)
		}
		for _, f := range files {
			out[f.Path] = f
		}
	}
	return out, nil
}

// Files returns every stored file ordered by path.
func (s *Store) Files() ([]*File, error) {
	files, err := s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return files, nil
}

// FilesByLanguage returns the stored files of one language ordered by path.
func (s *Store) FilesByLanguage(language string) ([]*File, error) {
	files, err := s.queryFiles("SELECT "+fileCols+" FROM files WHERE language = ? ORDER BY path", language)
	if err != nil {
		return nil, fmt.Errorf("files by language: %w", err)
	}
	return files, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// LocationsPayload returns the encoded symbol location store of a file.
// The error wraps sql.ErrNoRows when the file has none.
func (s *Store) LocationsPayload(fileID int64) (int, []byte, error) {
	var version int
	var payload []byte
	err := s.db.QueryRow(
		"SELECT version, payload FROM symbol_locations WHERE file_id = ?", fileID,
	).Scan(&version, &payload)
	if err != nil {
		return 0, nil, fmt.Errorf("locations payload: %w", err)
	}
	return version, payload, nil
}

// --- Symbol operations ---

const symbolCols = `s.id, s.file_id, s.name, s.kind, s.start_byte, s.start_line, s.start_col,
	s.end_byte, s.end_line, s.end_col, s.top_level, f.path, f.language`

const symbolFrom = ` FROM symbols s JOIN files f ON f.id = s.file_id `

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	dest := []any{&sym.ID, &sym.FileID, &sym.Name, &sym.Kind}
	dest = append(dest, rangeDest(&sym.Range)...)
	dest = append(dest, &sym.TopLevel, &sym.Path, &sym.Language)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// SymbolsByName returns every flattened definition called name, ordered by
// path and position.
func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	syms, err := s.querySymbols("SELECT "+symbolCols+symbolFrom+
		"WHERE s.name = ? ORDER BY f.path, s.start_byte", name)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	return syms, nil
}

// SymbolsByNameInLanguage is SymbolsByName restricted to one language.
func (s *Store) SymbolsByNameInLanguage(name, language string) ([]*Symbol, error) {
	syms, err := s.querySymbols("SELECT "+symbolCols+symbolFrom+
		"WHERE s.name = ? AND f.language = ? ORDER BY f.path, s.start_byte", name, language)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	return syms, nil
}

// SearchSymbols returns definitions whose name matches a GLOB pattern
// ("*" and "?" wildcards, case-sensitive), ordered by name and path.
func (s *Store) SearchSymbols(pattern string) ([]*Symbol, error) {
	syms, err := s.querySymbols("SELECT "+symbolCols+symbolFrom+
		"WHERE s.name GLOB ? ORDER BY s.name, f.path, s.start_byte", pattern)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	return syms, nil
}

// SymbolsByFile returns the flattened definitions of a file in document order.
func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	syms, err := s.querySymbols("SELECT "+symbolCols+symbolFrom+
		"WHERE s.file_id = ? ORDER BY s.start_byte", fileID)
	if err != nil {
		return nil, fmt.Errorf("symbols by file: %w", err)
	}
	return syms, nil
}

// SymbolCounts returns the number of flattened definitions per kind.
func (s *Store) SymbolCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM symbols GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("symbol counts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan symbol count: %w", err)
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// --- Reference operations ---

const refCols = `id, file_id, name, kind, start_byte, start_line, start_col,
	end_byte, end_line, end_col, def_start_byte, def_end_byte`

func scanReference(scanner interface{ Scan(...any) error }) (*Reference, error) {
	ref := &Reference{}
	var defStart, defEnd sql.NullInt64
	dest := []any{&ref.ID, &ref.FileID, &ref.Name, &ref.Kind}
	dest = append(dest, rangeDest(&ref.Range)...)
	dest = append(dest, &defStart, &defEnd)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	if defStart.Valid && defEnd.Valid {
		// Only byte offsets are stored for the definition.
		ref.Definition = &scope.TextRange{
			Start: scope.Point{Byte: int(defStart.Int64)},
			End:   scope.Point{Byte: int(defEnd.Int64)},
		}
	}
	return ref, nil
}

func (s *Store) queryReferences(query string, args ...any) ([]*Reference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ReferencesByFile returns the references of a file in document order.
func (s *Store) ReferencesByFile(fileID int64) ([]*Reference, error) {
	refs, err := s.queryReferences("SELECT "+refCols+" FROM references_ WHERE file_id = ? ORDER BY start_byte", fileID)
	if err != nil {
		return nil, fmt.Errorf("references by file: %w", err)
	}
	return refs, nil
}

// UnresolvedReferences returns the references of a file with no local
// definition.
func (s *Store) UnresolvedReferences(fileID int64) ([]*Reference, error) {
	refs, err := s.queryReferences("SELECT "+refCols+
		" FROM references_ WHERE file_id = ? AND def_start_byte IS NULL ORDER BY start_byte", fileID)
	if err != nil {
		return nil, fmt.Errorf("unresolved references: %w", err)
	}
	return refs, nil
}

// --- Metadata ---

// Metadata keys written by the indexing engine.
const (
	MetaRegistryHash = "registry_hash"
	MetaLastRunID    = "last_run_id"
	MetaLastRunAt    = "last_run_at"
)

// GetMetadata returns the value stored under key and whether it exists.
func (s *Store) GetMetadata(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, true, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// SetRun records the id and time of an index run.
func (s *Store) SetRun(runID string, at time.Time) error {
	if err := s.SetMetadata(MetaLastRunID, runID); err != nil {
		return err
	}
	return s.SetMetadata(MetaLastRunAt, at.UTC().Format(time.RFC3339))
}
