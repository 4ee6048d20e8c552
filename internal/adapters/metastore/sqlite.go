package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements ports.MetaStore with SQLite persistence.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) metadata.db inside dataPath.
func NewSQLiteStore(dataPath string) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "metadata.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps SQLite out of "database is locked" under concurrent puts.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_meta (
		session_id TEXT PRIMARY KEY,
		meta TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the metadata stored for session.
func (s *SQLiteStore) Get(ctx context.Context, session string) (entities.DatasetMeta, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT meta FROM session_meta WHERE session_id = ?", session).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.DatasetMeta{}, false, nil
	}
	if err != nil {
		return entities.DatasetMeta{}, false, fmt.Errorf("querying meta: %w", err)
	}

	var meta entities.DatasetMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return entities.DatasetMeta{}, false, fmt.Errorf("decoding meta for %s: %w", session, err)
	}
	return meta, true, nil
}

// Put upserts meta for session.
func (s *SQLiteStore) Put(ctx context.Context, session string, meta entities.DatasetMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_meta (session_id, meta, updated_at)
		VALUES (?, ?, ?)
	`, session, string(raw), s.now().UTC())
	if err != nil {
		return fmt.Errorf("storing meta: %w", err)
	}
	return nil
}

// Delete removes session.
func (s *SQLiteStore) Delete(ctx context.Context, session string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_meta WHERE session_id = ?", session)
	return err
}

// Count returns the number of stored sessions.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_meta").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
