// Package history keeps a SQLite log of completed deletions.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Deletion outcome statuses as stored in the status column
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DB manages the SQLite database for deletion history
type DB struct {
	db *sql.DB
}

// Record represents a single completed deletion
type Record struct {
	ID            int64
	Timestamp     time.Time
	Status        string
	Path          string // path as dispatched
	CanonicalPath string // absolute path handed to the deleter
	Strategy      string
	Duration      time.Duration
	ErrorMessage  string
}

// Open creates a new database connection and initializes schema
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Completion callbacks write from many goroutines; one connection serialises them
	db.SetMaxOpenConns(1)

	// Exec rather than Ping so the file is created now
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	h := &DB{db: db}
	if err = h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return h, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deletions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		status TEXT NOT NULL,
		path TEXT NOT NULL,
		canonical_path TEXT NOT NULL,
		strategy TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON deletions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_status ON deletions(status);
	CREATE INDEX IF NOT EXISTS idx_path ON deletions(path);
	CREATE INDEX IF NOT EXISTS idx_strategy ON deletions(strategy);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Record inserts a deletion outcome. A zero Timestamp is set to now; a
// missing Status is derived from ErrorMessage.
func (d *DB) Record(r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.Status == "" {
		r.Status = StatusOK
		if r.ErrorMessage != "" {
			r.Status = StatusError
		}
	}
	if r.CanonicalPath == "" {
		r.CanonicalPath = r.Path
	}

	var errMsg sql.NullString
	if r.ErrorMessage != "" {
		errMsg = sql.NullString{String: r.ErrorMessage, Valid: true}
	}

	_, err := d.db.Exec(`
	INSERT INTO deletions (
		timestamp, status, path, canonical_path, strategy, duration_ms, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.Timestamp.UTC(),
		r.Status,
		r.Path,
		r.CanonicalPath,
		r.Strategy,
		r.Duration.Milliseconds(),
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("record deletion of %s: %w", r.Path, err)
	}
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *DB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// DatabaseStats describes the database file itself
type DatabaseStats struct {
	TotalRecords int64
	SizeBytes    int64
	Oldest       time.Time
	Newest       time.Time
}

// DatabaseStats returns record count, file size and the covered time range
func (d *DB) DatabaseStats() (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	if err := d.db.QueryRow("SELECT COUNT(*) FROM deletions").Scan(&stats.TotalRecords); err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats.SizeBytes = pageCount * pageSize

	// Aggregates lose the DATETIME column type, so they come back as text
	var oldest, newest sql.NullString
	if err := d.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM deletions").Scan(&oldest, &newest); err != nil {
		return nil, err
	}
	stats.Oldest = parseTimestamp(oldest)
	stats.Newest = parseTimestamp(newest)

	return stats, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
