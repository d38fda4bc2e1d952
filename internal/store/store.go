package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for indexed files and their symbol
// location stores.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  hash            TEXT,
  strategy        TEXT NOT NULL,
  line_count      INTEGER NOT NULL DEFAULT 0,
  last_indexed    TIMESTAMP
);

-- One encoded symbol location store per file.
CREATE TABLE IF NOT EXISTS symbol_locations (
  file_id         INTEGER PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
  version         INTEGER NOT NULL,
  payload         BLOB NOT NULL
);

-- Flattened definitions, one row per tag.
CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  start_line      INTEGER NOT NULL,
  start_col       INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  end_col         INTEGER NOT NULL,
  top_level       BOOLEAN NOT NULL DEFAULT FALSE,
  CHECK (end_byte >= start_byte)
);

-- References with their local binding. def_* is NULL when unresolved.
CREATE TABLE IF NOT EXISTS references_ (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  start_line      INTEGER NOT NULL,
  start_col       INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  end_col         INTEGER NOT NULL,
  def_start_byte  INTEGER,
  def_end_byte    INTEGER,
  CHECK (end_byte >= start_byte)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_language ON files(language);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_references_file ON references_(file_id);
CREATE INDEX IF NOT EXISTS idx_references_name ON references_(name);
`

// DeleteFile removes a file and every row derived from it. Deleting an
// unknown path is not an error.
func (s *Store) DeleteFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fileID int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&fileID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	if err := deleteFileRowsTx(tx, fileID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return tx.Commit()
}

// deleteFileRowsTx removes the derived rows of a file, keeping the files row.
func deleteFileRowsTx(tx *sql.Tx, fileID int64) error {
	for _, q := range []string{
		"DELETE FROM references_ WHERE file_id = ?",
		"DELETE FROM symbols WHERE file_id = ?",
		"DELETE FROM symbol_locations WHERE file_id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete file rows: %w", err)
		}
	}
	return nil
}

// DeleteMissing removes every file under dir whose path is not in keep and
// returns the removed paths. Files outside dir are left alone.
func (s *Store) DeleteMissing(dir string, keep []string) ([]string, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(keep))
	for _, p := range keep {
		want[p] = true
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var ids []int64
	var removed []string
	for _, f := range files {
		if strings.HasPrefix(f.Path, prefix) && !want[f.Path] {
			ids = append(ids, f.ID)
			removed = append(removed, f.Path)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := placeholderList(len(ids))
	args := int64sToArgs(ids)
	for _, q := range []string{
		"DELETE FROM references_ WHERE file_id IN (" + placeholders + ")",
		"DELETE FROM symbols WHERE file_id IN (" + placeholders + ")",
		"DELETE FROM symbol_locations WHERE file_id IN (" + placeholders + ")",
		"DELETE FROM files WHERE id IN (" + placeholders + ")",
	} {
		if _, err := tx.Exec(q, args...); err != nil {
			return nil, fmt.Errorf("delete missing files: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

// QueryReadOnly runs query on a connection with PRAGMA query_only set, so
// any statement that writes fails, including trailing statements of a
// multi-statement string. It returns the column names and every row.
func (s *Store) QueryReadOnly(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read-only query: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = 1"); err != nil {
		return nil, nil, fmt.Errorf("read-only query: %w", err)
	}
	defer func() {
		// The connection goes back to the pool; it must accept writes again.
		if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = 0"); err != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("read-only query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read-only query: columns: %w", err)
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("read-only query: scan: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read-only query: %w", err)
	}
	return cols, out, nil
}
