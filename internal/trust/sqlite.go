package trust

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trust_scores (
	principal_id TEXT PRIMARY KEY,
	value        REAL NOT NULL,
	updated_at   INTEGER NOT NULL,
	update_count INTEGER NOT NULL
);`

// SQLiteStore persists trust scores in a local SQLite database. Each
// Save runs in its own transaction so a score and its timestamp are
// always written together.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the trust database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trust: open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trust: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the score for a principal and whether it exists.
func (s *SQLiteStore) Load(principalID string) (Score, bool, error) {
	var sc Score
	var updatedAt int64
	err := s.db.QueryRow(
		`SELECT value, updated_at, update_count FROM trust_scores WHERE principal_id = ?`,
		principalID,
	).Scan(&sc.Value, &updatedAt, &sc.UpdateCount)
	if err == sql.ErrNoRows {
		return Score{}, false, nil
	}
	if err != nil {
		return Score{}, false, fmt.Errorf("trust: load %s: %w", principalID, err)
	}
	sc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return sc, true, nil
}

// Save upserts the score for a principal transactionally.
func (s *SQLiteStore) Save(principalID string, sc Score) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("trust: begin: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO trust_scores (principal_id, value, updated_at, update_count)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(principal_id) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at,
		   update_count = excluded.update_count`,
		principalID, sc.Value, sc.UpdatedAt.UnixMilli(), sc.UpdateCount,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("trust: save %s: %w", principalID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("trust: commit: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
