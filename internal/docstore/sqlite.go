// Package docstore implements a persistent document store backing
// toolsim.DocumentSource: T01_PDF_LOADER resolves a document reference
// through this store instead of an in-memory map once a deployment wants
// documents to survive a restart.
package docstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists document text keyed by reference, with a write-through
// in-memory cache for fast repeated loads within a process lifetime.
type Store struct {
	db    *sql.DB
	cache *memoryCache

	stmtInsert *sql.Stmt
	stmtGet    *sql.Stmt
}

// Open creates or attaches to a SQLite-backed document store at dbPath.
func Open(dbPath string, timeoutMs int) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("docstore: database path cannot be empty")
	}

	dsn := dbPath + fmt.Sprintf("?_busy_timeout=%d", timeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: ping database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: configure pragmas: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: initialize schema: %w", err)
	}

	s := &Store{db: db, cache: newMemoryCache()}

	if s.stmtInsert, err = db.Prepare(`
		INSERT INTO documents (ref, text, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: prepare insert: %w", err)
	}
	if s.stmtGet, err = db.Prepare(`SELECT text FROM documents WHERE ref = ?`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: prepare get: %w", err)
	}

	return s, nil
}

// configureSQLite sets the pragmas appropriate for a small, mostly-read
// single-writer workload.
func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %s: %w", p, err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	ref        TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

func initializeSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Put stores or replaces a document's text under ref.
func (s *Store) Put(ref, text string) error {
	if _, err := s.stmtInsert.Exec(ref, text, time.Now().Unix()); err != nil {
		return fmt.Errorf("docstore: put %q: %w", ref, err)
	}
	s.cache.put(ref, text)
	return nil
}

// Load implements toolsim.DocumentSource.
func (s *Store) Load(ref string) (string, error) {
	if text, ok := s.cache.get(ref); ok {
		return text, nil
	}

	var text string
	if err := s.stmtGet.QueryRow(ref).Scan(&text); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("docstore: unknown document ref %q", ref)
		}
		return "", fmt.Errorf("docstore: load %q: %w", ref, err)
	}
	s.cache.put(ref, text)
	return text, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
