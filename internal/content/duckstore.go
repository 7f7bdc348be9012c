// Package content persists ContentRecords, the materialized rows of a
// file, in a DuckDB database. Rows are stored JSON-encoded in original
// order so paginated reads become indexed range scans.
package content

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcboeker/go-duckdb"

	"github.com/csv-transformer/backend/internal/models"
)

// ErrNotFound is returned when no ContentRecord exists for a file id.
var ErrNotFound = errors.New("content record not found")

// Store is a DuckDB-backed ContentRecord store shared by all files.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the content database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='1GB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating duckdb connector: %w", err)
	}

	db := sql.OpenDB(connector)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS contents (
			file_id   VARCHAR PRIMARY KEY,
			row_count BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS content_rows (
			file_id VARCHAR NOT NULL,
			idx     BIGINT NOT NULL,
			data    VARCHAR NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_content_rows_file ON content_rows (file_id, idx)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating content tables: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores the full row set for fileID, replacing any previous content.
// The stored rowCount always equals len(rows).
func (s *Store) Put(fileID string, rows []models.Row) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning content write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM content_rows WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("clearing previous rows: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM contents WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("clearing previous content: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO content_rows (file_id, idx, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding row %d: %w", i, err)
		}
		if _, err := stmt.Exec(fileID, i, string(data)); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO contents (file_id, row_count) VALUES (?, ?)`, fileID, len(rows)); err != nil {
		return fmt.Errorf("inserting content record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing content write: %w", err)
	}
	return nil
}

// RowCount returns the stored row count for fileID, or ErrNotFound.
func (s *Store) RowCount(fileID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT row_count FROM contents WHERE file_id = ?`, fileID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	if err != nil {
		return 0, fmt.Errorf("reading row count: %w", err)
	}
	return count, nil
}

// Rows returns up to limit rows starting at offset, in stored order.
// Out-of-range offsets yield an empty slice, not an error.
func (s *Store) Rows(fileID string, offset, limit int) ([]models.Row, error) {
	if _, err := s.RowCount(fileID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT data FROM content_rows WHERE file_id = ? ORDER BY idx LIMIT ? OFFSET ?`,
		fileID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// AllRows returns the complete row set for fileID in stored order.
func (s *Store) AllRows(fileID string) ([]models.Row, error) {
	if _, err := s.RowCount(fileID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT data FROM content_rows WHERE file_id = ? ORDER BY idx`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Delete removes the ContentRecord for fileID. Deleting absent content
// is not an error.
func (s *Store) Delete(fileID string) error {
	if _, err := s.db.Exec(`DELETE FROM content_rows WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("deleting rows: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM contents WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("deleting content record: %w", err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]models.Row, error) {
	out := make([]models.Row, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := models.Row{}
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("decoding row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}
