package store

import (
	"database/sql"
	"fmt"
)

// CommitFile replaces everything stored for fb.File.Path in one transaction.
// On success fb.File.ID holds the file's id.
func (s *Store) CommitFile(fb *FileBatch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit file: begin: %w", err)
	}
	defer tx.Rollback()

	if err := replaceFileTx(tx, fb); err != nil {
		return fmt.Errorf("commit file %s: %w", fb.File.Path, err)
	}
	return tx.Commit()
}

// CommitBatch commits every file in batch within a single transaction. Either
// all files are replaced or none are.
func (s *Store) CommitBatch(batch *Batch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, fb := range batch.Files() {
		if err := replaceFileTx(tx, fb); err != nil {
			return fmt.Errorf("commit batch: %s: %w", fb.File.Path, err)
		}
	}
	return tx.Commit()
}

// replaceFileTx upserts the files row, then rewrites the envelope, symbols
// and references of that file.
//
// Insert order respects FK dependencies:
//  1. files (upsert keeps the id stable across re-indexing)
//  2. symbol_locations
//  3. symbols
//  4. references_
func replaceFileTx(tx *sql.Tx, fb *FileBatch) error {
	f := &fb.File
	err := tx.QueryRow(
		`INSERT INTO files (path, language, hash, strategy, line_count, last_indexed)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   language = excluded.language, hash = excluded.hash, strategy = excluded.strategy,
		   line_count = excluded.line_count, last_indexed = excluded.last_indexed
		 RETURNING id`,
		f.Path, f.Language, f.Hash, f.Strategy, f.LineCount, f.LastIndexed,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	if err := deleteFileRowsTx(tx, f.ID); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO symbol_locations (file_id, version, payload) VALUES (?, ?, ?)",
		f.ID, fb.Version, fb.Payload,
	); err != nil {
		return fmt.Errorf("insert symbol locations: %w", err)
	}

	symStmt, err := tx.Prepare(
		`INSERT INTO symbols (file_id, name, kind, start_byte, start_line, start_col,
			end_byte, end_line, end_col, top_level)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare symbols: %w", err)
	}
	defer symStmt.Close()
	for i := range fb.Symbols {
		sym := &fb.Symbols[i]
		args := append([]any{f.ID, sym.Name, sym.Kind}, rangeArgs(sym.Range)...)
		res, err := symStmt.Exec(append(args, sym.TopLevel)...)
		if err != nil {
			return fmt.Errorf("insert symbol %q: %w", sym.Name, err)
		}
		if sym.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		sym.FileID = f.ID
	}

	refStmt, err := tx.Prepare(
		`INSERT INTO references_ (file_id, name, kind, start_byte, start_line, start_col,
			end_byte, end_line, end_col, def_start_byte, def_end_byte)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare references: %w", err)
	}
	defer refStmt.Close()
	for i := range fb.References {
		ref := &fb.References[i]
		args := append([]any{f.ID, ref.Name, ref.Kind}, rangeArgs(ref.Range)...)
		args = append(args, nullableByte(ref.Definition, false), nullableByte(ref.Definition, true))
		res, err := refStmt.Exec(args...)
		if err != nil {
			return fmt.Errorf("insert reference %q: %w", ref.Name, err)
		}
		if ref.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		ref.FileID = f.ID
	}
	return nil
}
