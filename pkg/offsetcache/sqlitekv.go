package offsetcache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable backing store, a plain two-column key/value
// table opened in WAL mode, grounded directly on the teacher's
// pkg/store/sqlite.go NewSQLite (same database/sql + modernc.org/sqlite
// driver, same PRAGMA journal_mode=WAL setup).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed offset cache
// at path. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("offsetcache: opening sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("offsetcache: enabling WAL mode: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS offset_cache (
		trace_id TEXT PRIMARY KEY,
		line BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("offsetcache: creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(traceID string, line []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO offset_cache (trace_id, line) VALUES (?, ?)
		 ON CONFLICT(trace_id) DO UPDATE SET line = excluded.line`,
		traceID, line)
	return err
}

func (s *SQLiteStore) Get(traceID string) ([]byte, bool, error) {
	var line []byte
	err := s.db.QueryRow("SELECT line FROM offset_cache WHERE trace_id = ?", traceID).Scan(&line)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return line, true, nil
}

func (s *SQLiteStore) Delete(traceID string) error {
	_, err := s.db.Exec("DELETE FROM offset_cache WHERE trace_id = ?", traceID)
	return err
}

func (s *SQLiteStore) Flush() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec("DELETE FROM offset_cache")
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
