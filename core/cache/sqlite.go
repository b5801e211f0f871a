package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/propflow/propflow/core/errs"
)

// SQLiteBackend is a persistent backend storing key/value pairs in a
// single SQLite table. Writes go through WAL, so the database survives
// process crashes without explicit Backup calls; Backup forces a WAL
// checkpoint.
type SQLiteBackend struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Contains implements Backend.
func (b *SQLiteBackend) Contains(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var one int
	err := b.db.QueryRow("SELECT 1 FROM kv WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("contains %q: %v: %w", key, err, errs.ErrBackend)
	}
	return true, nil
}

// Insert implements Backend.
func (b *SQLiteBackend) Insert(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("insert %q: %v: %w", key, err, errs.ErrBackend)
	}
	return nil
}

// At implements Backend.
func (b *SQLiteBackend) At(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var value []byte
	err := b.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache key %q: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("at %q: %v: %w", key, err, errs.ErrBackend)
	}
	return value, nil
}

// Erase implements Backend.
func (b *SQLiteBackend) Erase(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("erase %q: %v: %w", key, err, errs.ErrBackend)
	}
	return nil
}

// ErasePrefix implements Backend. The prefix is compared exactly and
// case-sensitively, not as a LIKE pattern.
func (b *SQLiteBackend) ErasePrefix(prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.Exec("DELETE FROM kv WHERE substr(key, 1, length(?)) = ?", prefix, prefix); err != nil {
		return fmt.Errorf("erase prefix %q: %v: %w", prefix, err, errs.ErrBackend)
	}
	return nil
}

// Backup implements Backend by forcing a WAL checkpoint.
func (b *SQLiteBackend) Backup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %v: %w", err, errs.ErrBackend)
	}
	return nil
}

// Dump implements Backend. Entries already live on disk; dumping just
// checkpoints the WAL.
func (b *SQLiteBackend) Dump() error { return b.Backup() }
