package main

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	solvedShareStatusPending   = "pending"
	solvedShareStatusPublished = "published"
)

func stateDBPathFromDataDir(dataDir string) string {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "state", "pool.db")
}

func openStateDB(dbPath string) (*sql.DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// One connection serializes writers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureStateTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureStateTables(db *sql.DB) error {
	if db == nil {
		return nil
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS solved_shares (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			block_hash TEXT NOT NULL UNIQUE,
			height INTEGER NOT NULL,
			worker TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS solved_shares_status_idx ON solved_shares (status)`); err != nil {
		return err
	}
	return nil
}

// solvedShareRecord is one row of solved_shares.
type solvedShareRecord struct {
	ID        int64
	BlockHash string
	Height    uint64
	Worker    string
	Payload   []byte
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
}

var errEmptyBlockHash = errors.New("solved share has no block hash")

// insertSolvedShare stores msg as pending. It reports false when a row for
// the same block hash already exists.
func insertSolvedShare(db *sql.DB, msg SolvedShareMessage, payload []byte, now time.Time) (bool, error) {
	if db == nil {
		return false, os.ErrInvalid
	}
	if strings.TrimSpace(msg.BlockHash) == "" {
		return false, errEmptyBlockHash
	}
	res, err := db.Exec(`
		INSERT OR IGNORE INTO solved_shares
			(block_hash, height, worker, payload, status, attempts, created_at_unix, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, msg.BlockHash, int64(msg.Height), msg.WorkerFullName, string(payload), solvedShareStatusPending, now.Unix(), now.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// pendingSolvedShares returns up to limit unpublished rows, oldest first.
func pendingSolvedShares(db *sql.DB, limit int) ([]solvedShareRecord, error) {
	if db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, block_hash, height, worker, payload, status, attempts, COALESCE(last_error, ''), created_at_unix
		FROM solved_shares
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ?
	`, solvedShareStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []solvedShareRecord
	for rows.Next() {
		var (
			rec     solvedShareRecord
			height  int64
			payload string
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.BlockHash, &height, &rec.Worker, &payload, &rec.Status, &rec.Attempts, &rec.LastError, &created); err != nil {
			return nil, err
		}
		rec.Height = uint64(height)
		rec.Payload = []byte(payload)
		rec.CreatedAt = time.Unix(created, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func markSolvedSharePublished(db *sql.DB, blockHash string, now time.Time) error {
	if db == nil {
		return nil
	}
	_, err := db.Exec(`
		UPDATE solved_shares
		SET status = ?, attempts = attempts + 1, last_error = NULL, updated_at_unix = ?
		WHERE block_hash = ?
	`, solvedShareStatusPublished, now.Unix(), blockHash)
	return err
}

func markSolvedShareFailed(db *sql.DB, blockHash string, publishErr error, now time.Time) error {
	if db == nil {
		return nil
	}
	msg := ""
	if publishErr != nil {
		msg = publishErr.Error()
	}
	_, err := db.Exec(`
		UPDATE solved_shares
		SET attempts = attempts + 1, last_error = ?, updated_at_unix = ?
		WHERE block_hash = ?
	`, msg, now.Unix(), blockHash)
	return err
}

// countSolvedShares returns the number of rows per status.
func countSolvedShares(db *sql.DB) (map[string]int, error) {
	out := make(map[string]int)
	if db == nil {
		return out, nil
	}
	rows, err := db.Query(`SELECT status, COUNT(*) FROM solved_shares GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
