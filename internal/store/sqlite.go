package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One process, one writer.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at DATETIME,
			updated_at DATETIME,
			status TEXT,
			metadata TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			created_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_content ON summaries(content);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Summary log

func (s *SQLiteStore) Contains(ctx context.Context, text string) (bool, error) {
	return contains(ctx, s.db, text)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func contains(ctx context.Context, q queryer, text string) (bool, error) {
	var found bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM summaries WHERE content = ?)`, text).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("%w: lookup summary: %w", ErrRead, err)
	}
	return found, nil
}

// Append inserts text inside one transaction so the existence check and the
// write see the same table state.
func (s *SQLiteStore) Append(ctx context.Context, text string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", ErrWrite, err)
	}
	defer tx.Rollback()

	exists, err := contains(ctx, tx, text)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO summaries (content, created_at) VALUES (?, ?)`, text, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("%w: insert summary: %w", ErrWrite, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", ErrWrite, err)
	}
	return true, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content FROM summaries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: query summaries: %w", ErrRead, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("%w: scan summary: %w", ErrRead, err)
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate summaries: %w", ErrRead, err)
	}
	return out, nil
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

// GetConfig returns "" for unknown keys.
func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Session Implementation

func (s *SQLiteStore) CreateSession(session *Session) error {
	metaJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO sessions (id, created_at, updated_at, status, metadata) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, session.ID, session.CreatedAt, session.UpdatedAt, session.Status, string(metaJSON))
	return err
}

func (s *SQLiteStore) GetSession(id string) (*Session, error) {
	query := `SELECT id, created_at, updated_at, status, metadata FROM sessions WHERE id = ?`
	row := s.db.QueryRow(query, id)

	var session Session
	var metaJSON string
	if err := row.Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt, &session.Status, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(metaJSON), &session.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &session, nil
}

func (s *SQLiteStore) UpdateSession(session *Session) error {
	metaJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	session.UpdatedAt = time.Now()
	query := `UPDATE sessions SET updated_at = ?, status = ?, metadata = ? WHERE id = ?`
	_, err = s.db.Exec(query, session.UpdatedAt, session.Status, string(metaJSON), session.ID)
	return err
}

var _ Storage = (*SQLiteStore)(nil)
