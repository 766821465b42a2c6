package runstate

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS run_state (
	id     TEXT PRIMARY KEY,
	status BLOB NOT NULL
)`

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps entries in a single table. The database runs with full
// synchronous mode so a committed upsert is on disk when Update returns.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entries types.RunStateEntries
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("run state sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to run state database: %w", err)
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	entries, err := loadSQLiteEntries(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, entries: entries}, nil
}

func loadSQLiteEntries(db *sql.DB) (types.RunStateEntries, error) {
	rows, err := db.Query("SELECT id, status FROM run_state")
	if err != nil {
		return nil, fmt.Errorf("failed to query run state: %w", err)
	}
	defer rows.Close()

	entries := make(types.RunStateEntries)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan run state row: %w", err)
		}
		var status types.TestStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("failed to decode run state entry %s: %w", id, err)
		}
		entries[id] = status
	}
	return entries, rows.Err()
}

// Entries implements the Store interface
func (s *SQLiteStore) Entries() types.RunStateEntries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Clone()
}

// Update implements the Store interface
func (s *SQLiteStore) Update(id string, status types.TestStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status of %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT INTO run_state (id, status) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET status = excluded.status",
		id, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to persist status of %s: %w", id, err)
	}
	s.entries[id] = status
	return nil
}

// Close implements the Store interface
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
