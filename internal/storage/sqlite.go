package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps results in a single SQLite database, which is easier to
// query across experiments than a directory of JSON files.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
	task_id    TEXT PRIMARY KEY,
	experiment TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT '',
	seed_id    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	document   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_experiment ON results(experiment);
`

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer keeps SQLite happy under the worker pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the document for taskID.
func (s *SQLiteStore) Save(taskID string, result any, meta *Metadata) error {
	doc, err := encodeDocument(taskID, result, meta)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", taskID, err)
	}

	var experiment, mode, seedID string
	if meta != nil {
		experiment = meta.Experiment
		mode = meta.Mode
		if len(meta.SeedIDs) > 0 {
			seedID = meta.SeedIDs[len(meta.SeedIDs)-1]
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO results (task_id, experiment, mode, seed_id, created_at, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			experiment = excluded.experiment,
			mode       = excluded.mode,
			seed_id    = excluded.seed_id,
			created_at = excluded.created_at,
			document   = excluded.document`,
		taskID, experiment, mode, seedID, time.Now().UTC().Format(time.RFC3339), string(data))
	if err != nil {
		return fmt.Errorf("insert result %s: %w", taskID, err)
	}
	return nil
}

// Load retrieves the document for taskID.
func (s *SQLiteStore) Load(taskID string) (*Document, error) {
	var data string
	err := s.db.QueryRow(`SELECT document FROM results WHERE task_id = ?`, taskID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query result %s: %w", taskID, err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("parse result %s: %w", taskID, err)
	}
	return &doc, nil
}

// List returns stored task ids in order.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT task_id FROM results ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
