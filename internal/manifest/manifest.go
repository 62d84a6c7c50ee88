// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package manifest keeps a local SQLite record of retrieval runs: which
// scans were fetched, where they landed, and whether conversion
// succeeded. It answers the history command.
package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/xnatget/pkg/types"
)

const dbFile = "manifest.db"

// Store manages the retrieval manifest SQLite database.
type Store struct {
	db *sql.DB
}

// Record is one retrieved scan as stored in the manifest.
type Record struct {
	RunID       string
	Server      string
	Session     string
	ScanLabel   string
	Format      string
	Path        string
	Status      string
	Warning     string
	RetrievedAt time.Time
}

// Open opens or creates the manifest database at cfg.Dir/manifest.db.
func Open(cfg types.ManifestConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening manifest database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			server TEXT NOT NULL,
			started_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS retrievals (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			session TEXT NOT NULL,
			scan_label TEXT NOT NULL,
			format TEXT NOT NULL,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			warning TEXT,
			retrieved_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_retrievals_run_id ON retrievals(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_retrievals_session ON retrievals(session)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Run is a handle to one retrieval run. It satisfies the pipeline's
// Recorder interface.
type Run struct {
	store *Store
	id    string
}

// BeginRun registers a new run against server and returns its handle.
func (s *Store) BeginRun(server string) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, server, started_at) VALUES (?, ?, ?)`,
		id, server, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("registering run: %w", err)
	}
	return &Run{store: s, id: id}, nil
}

// ID returns the run's identifier.
func (r *Run) ID() string { return r.id }

// Record stores one retrieved scan under the run.
func (r *Run) Record(session, scanLabel, formatLabel, path, status, warning string) error {
	_, err := r.store.db.Exec(
		`INSERT INTO retrievals (run_id, session, scan_label, format, path, status, warning, retrieved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, session, scanLabel, formatLabel, path, status, warning,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording retrieval: %w", err)
	}
	return nil
}

// Recent returns the newest retrievals, most recent first, capped at
// limit.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT r.run_id, runs.server, r.session, r.scan_label, r.format, r.path, r.status,
		        COALESCE(r.warning, ''), r.retrieved_at
		 FROM retrievals r JOIN runs ON runs.id = r.run_id
		 ORDER BY r.rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying retrievals: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var retrievedAt string
		if err := rows.Scan(&rec.RunID, &rec.Server, &rec.Session, &rec.ScanLabel,
			&rec.Format, &rec.Path, &rec.Status, &rec.Warning, &retrievedAt); err != nil {
			return nil, fmt.Errorf("scanning retrieval row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, retrievedAt); err == nil {
			rec.RetrievedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
