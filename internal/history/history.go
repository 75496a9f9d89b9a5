// Package history persists scan runs to a local SQLite database so results
// can be compared across runs.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"subhunt/internal/results"
)

// Store wraps the scan-history database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			domain TEXT,
			total_candidates INTEGER
		);

		CREATE TABLE IF NOT EXISTS findings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id INTEGER,
			host TEXT,
			protocol TEXT,
			status_code INTEGER,
			ip TEXT,
			content_size INTEGER,
			timestamp DATETIME,
			FOREIGN KEY (scan_id) REFERENCES scans(id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginScan records a new run and returns its id.
func (s *Store) BeginScan(domain string, total int) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO scans (timestamp, domain, total_candidates) VALUES (?, ?, ?)",
		time.Now(), domain, total)
	if err != nil {
		return 0, fmt.Errorf("recording scan: %w", err)
	}
	return res.LastInsertId()
}

// RecordTable stores every discovered host of a run under scanID.
func (s *Store) RecordTable(scanID int64, t results.Table) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("recording findings: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO findings (scan_id, host, protocol, status_code, ip, content_size, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("recording findings: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, host := range t.Hosts() {
		e := t[host]
		var size interface{}
		if e.Size != nil {
			size = *e.Size
		}
		if _, err := stmt.Exec(scanID, host, e.Protocol, e.Status, e.IP, size, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording findings: %w", err)
		}
	}
	return tx.Commit()
}
