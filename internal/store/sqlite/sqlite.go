// Package sqlite provides SQLite-based persistence for tidy.
// It is an alternative to the bbolt store with the same record and backup
// index semantics, for hosts that want to inspect the undo log with SQL tools.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/tidy/internal/models"
	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

// Store represents the SQLite database store
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at dbPath and creates the schema.
// synchronous(FULL) makes every committed write durable before Exec returns.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(1000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writers are serialized by the store itself
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	-- Operations log (append-mostly; undone flips once)
	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		operation_type TEXT NOT NULL,
		source_path TEXT NOT NULL,
		target_path TEXT NOT NULL,
		file_hash TEXT NOT NULL DEFAULT '',
		undone BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Backup index
	CREATE TABLE IF NOT EXISTS backups (
		path TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		files JSON NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tidy_schema_version (
		version INTEGER PRIMARY KEY
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_operations_batch ON operations(batch_id);
	CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON operations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_operations_undone ON operations(undone);
	CREATE INDEX IF NOT EXISTS idx_backups_timestamp ON backups(timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err := s.db.Exec("INSERT OR REPLACE INTO tidy_schema_version (version) VALUES (?)", currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

const recordColumns = `id, batch_id, timestamp, operation_type, source_path, target_path, file_hash, undone`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.OperationRecord, error) {
	var rec models.OperationRecord
	var ts int64
	var opType string
	if err := row.Scan(&rec.ID, &rec.BatchID, &ts, &opType, &rec.SourcePath, &rec.TargetPath, &rec.FileHash, &rec.Undone); err != nil {
		return nil, err
	}
	rec.Timestamp = time.Unix(0, ts).UTC()
	rec.Type = models.OperationType(opType)
	return &rec, nil
}

func (s *Store) queryRecords(query string, args ...any) ([]*models.OperationRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.OperationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendRecord stores a new operation record, assigning its ID and, when
// unset, its timestamp
func (s *Store) AppendRecord(rec *models.OperationRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	result, err := s.db.Exec(`
		INSERT INTO operations (batch_id, timestamp, operation_type, source_path, target_path, file_hash, undone)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.BatchID, rec.Timestamp.UnixNano(), string(rec.Type), rec.SourcePath, rec.TargetPath, rec.FileHash, rec.Undone)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// GetRecord returns a record by ID, or nil if it does not exist
func (s *Store) GetRecord(id int64) (*models.OperationRecord, error) {
	rec, err := scanRecord(s.db.QueryRow("SELECT "+recordColumns+" FROM operations WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// PendingRecords returns the batch's records that are not yet undone, newest first
func (s *Store) PendingRecords(batchID string) ([]*models.OperationRecord, error) {
	return s.queryRecords(
		"SELECT "+recordColumns+" FROM operations WHERE batch_id = ? AND undone = FALSE ORDER BY id DESC",
		batchID,
	)
}

// MarkUndone flips a record's undone flag
func (s *Store) MarkUndone(id int64) error {
	_, err := s.db.Exec("UPDATE operations SET undone = TRUE WHERE id = ?", id)
	return err
}

// LatestPendingBatch returns the batch of the newest record that is not yet undone
func (s *Store) LatestPendingBatch() (string, error) {
	var batchID string
	err := s.db.QueryRow("SELECT batch_id FROM operations WHERE undone = FALSE ORDER BY id DESC LIMIT 1").Scan(&batchID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return batchID, err
}

// RecentRecords returns up to limit records, newest first. limit <= 0 returns all
func (s *Store) RecentRecords(limit int) ([]*models.OperationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryRecords("SELECT "+recordColumns+" FROM operations ORDER BY id DESC LIMIT ?", limit)
}

// DeleteRecordsBefore removes records older than cutoff, keeping undoable ones
// when undoneOnly is set
func (s *Store) DeleteRecordsBefore(cutoff time.Time, undoneOnly bool) (int, error) {
	query := "DELETE FROM operations WHERE timestamp < ?"
	if undoneOnly {
		query += " AND undone = TRUE"
	}
	result, err := s.db.Exec(query, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// BatchSummaries aggregates records per batch, most recently active batch first
func (s *Store) BatchSummaries(limit int) ([]*models.BatchSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT batch_id, MIN(timestamp), MAX(timestamp), COUNT(*),
			SUM(CASE WHEN undone = FALSE THEN 1 ELSE 0 END)
		FROM operations
		GROUP BY batch_id
		ORDER BY MAX(timestamp) DESC, batch_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.BatchSummary
	for rows.Next() {
		var sum models.BatchSummary
		var first, last int64
		if err := rows.Scan(&sum.BatchID, &first, &last, &sum.Total, &sum.Pending); err != nil {
			return nil, err
		}
		sum.First = time.Unix(0, first).UTC()
		sum.Last = time.Unix(0, last).UTC()
		out = append(out, &sum)
	}
	return out, rows.Err()
}

// SaveBackup indexes a backup entry by its directory path
func (s *Store) SaveBackup(entry *models.BackupEntry) error {
	files, err := json.Marshal(entry.Files)
	if err != nil {
		return fmt.Errorf("marshal backup files: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO backups (path, batch_id, timestamp, files) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET batch_id = excluded.batch_id, timestamp = excluded.timestamp, files = excluded.files
	`, entry.Path, entry.BatchID, entry.Timestamp.UnixNano(), string(files))
	return err
}

// ListBackups returns every indexed backup, newest first
func (s *Store) ListBackups() ([]*models.BackupEntry, error) {
	rows, err := s.db.Query("SELECT path, batch_id, timestamp, files FROM backups ORDER BY timestamp DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.BackupEntry
	for rows.Next() {
		var entry models.BackupEntry
		var ts int64
		var files string
		if err := rows.Scan(&entry.Path, &entry.BatchID, &ts, &files); err != nil {
			return nil, err
		}
		entry.Timestamp = time.Unix(0, ts).UTC()
		if err := json.Unmarshal([]byte(files), &entry.Files); err != nil {
			return nil, fmt.Errorf("unmarshal backup files for %s: %w", entry.Path, err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// DeleteBackup removes a backup from the index
func (s *Store) DeleteBackup(path string) error {
	_, err := s.db.Exec("DELETE FROM backups WHERE path = ?", path)
	return err
}
