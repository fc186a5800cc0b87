// Package index implements the durable metadata sidecar: a key-value
// mapping (pool_id, rel_path, drive_root) -> (size, sha256, modified_utc)
// over an embedded SQLite database.
package index

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var logger = log.New(os.Stderr, "[index] ", log.LstdFlags)

// DefaultDBPath resolves the per-user sidecar path: KydrasStorage/kydras.db
// under the platform's application-data directory.
func DefaultDBPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "KydrasStorage", "kydras.db"), nil
}

// Index is the durable replica index. Each operation opens and closes its
// own short-lived connection — the store is advisory, so there is no
// long-lived handle to keep alive across process restarts or crashes.
type Index struct {
	path string
}

// Open ensures the sidecar's parent directory and schema exist, and returns
// an Index bound to path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sidecar directory: %w", err)
	}

	idx := &Index{path: path}
	db, err := idx.conn()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS replicas (
		pool_id      TEXT NOT NULL,
		rel_path     TEXT NOT NULL,
		drive_root   TEXT NOT NULL,
		size_bytes   INTEGER NOT NULL,
		sha256       TEXT NOT NULL,
		modified_utc TEXT NOT NULL,
		PRIMARY KEY (pool_id, rel_path, drive_root)
	)`); err != nil {
		return nil, fmt.Errorf("create replicas table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_replicas_pool_path
		ON replicas(pool_id, rel_path)`); err != nil {
		return nil, fmt.Errorf("create replicas index: %w", err)
	}

	return idx, nil
}

func (idx *Index) conn() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&cache=shared&_busy_timeout=10000", idx.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sidecar db: %w", err)
	}
	return db, nil
}

// Record is the row shape callers exchange with the index.
type Record struct {
	PoolID      string
	RelPath     string
	DriveRoot   string
	SizeBytes   int64
	SHA256      string
	ModifiedUTC time.Time
}

// Upsert inserts or replaces the row for (pool_id, rel_path, drive_root).
func (idx *Index) Upsert(r Record) error {
	db, err := idx.conn()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO replicas (pool_id, rel_path, drive_root, size_bytes, sha256, modified_utc)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool_id, rel_path, drive_root) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			sha256 = excluded.sha256,
			modified_utc = excluded.modified_utc`,
		r.PoolID, r.RelPath, r.DriveRoot, r.SizeBytes, r.SHA256, r.ModifiedUTC.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logger.Printf("upsert failed for pool=%s rel=%s drive=%s: %v", r.PoolID, r.RelPath, r.DriveRoot, err)
		return fmt.Errorf("index upsert: %w", err)
	}
	return nil
}

// Remove deletes the row for (pool_id, rel_path, drive_root).
func (idx *Index) Remove(poolID, relPath, driveRoot string) error {
	db, err := idx.conn()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`DELETE FROM replicas WHERE pool_id = ? AND rel_path = ? AND drive_root = ?`,
		poolID, relPath, driveRoot)
	if err != nil {
		return fmt.Errorf("index remove: %w", err)
	}
	return nil
}

// GetAll returns every recorded replica row for (pool_id, rel_path), in
// insertion order (by rowid).
func (idx *Index) GetAll(poolID, relPath string) ([]Record, error) {
	db, err := idx.conn()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT pool_id, rel_path, drive_root, size_bytes, sha256, modified_utc
		FROM replicas WHERE pool_id = ? AND rel_path = ? ORDER BY rowid`, poolID, relPath)
	if err != nil {
		return nil, fmt.Errorf("index get-all: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var modified string
		if err := rows.Scan(&r.PoolID, &r.RelPath, &r.DriveRoot, &r.SizeBytes, &r.SHA256, &modified); err != nil {
			return nil, fmt.Errorf("index scan: %w", err)
		}
		r.ModifiedUTC, _ = time.Parse(time.RFC3339Nano, modified)
		out = append(out, r)
	}
	return out, rows.Err()
}
