// Package cache keeps a local copy of fetched case history so a reopened
// case renders immediately, before the authoritative fetch resolves.
package cache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// Store handles the SQLite-backed message cache.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the cache database.
// If dbPath is empty, defaults to "./data/nexu-cache.db".
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = "./data/nexu-cache.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &Store{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_client_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		viewed INTEGER NOT NULL DEFAULT 0,
		viewed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_case_created
		ON messages(case_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveMessages upserts messages for a case. The viewed flag only ever
// advances: an upsert carrying viewed=0 never reverts a row already marked
// viewed.
func (s *Store) SaveMessages(ctx context.Context, caseID string, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, case_id, sender_id, receiver_client_id, content, created_at, viewed, viewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			viewed = MAX(messages.viewed, excluded.viewed),
			viewed_at = COALESCE(messages.viewed_at, excluded.viewed_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		viewed := 0
		if m.Viewed {
			viewed = 1
		}
		var viewedAt interface{}
		if m.ViewedAt != nil {
			viewedAt = m.ViewedAt.UTC().Format(time.RFC3339Nano)
		}
		_, err := stmt.ExecContext(ctx, m.ID, caseID, m.SenderID, m.ReceiverClientID,
			m.Content, m.CreatedAt.UTC().Format(time.RFC3339Nano), viewed, viewedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CaseMessages returns the cached messages for a case, ordered by creation
// time ascending.
func (s *Store) CaseMessages(ctx context.Context, caseID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, sender_id, receiver_client_id, content, created_at, viewed, viewed_at
		FROM messages
		WHERE case_id = ?
		ORDER BY created_at ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt string
		var viewed int
		var viewedAt sql.NullString
		if err := rows.Scan(&m.ID, &m.CaseID, &m.SenderID, &m.ReceiverClientID,
			&m.Content, &createdAt, &viewed, &viewedAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		m.Viewed = viewed != 0
		if viewedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, viewedAt.String); err == nil {
				m.ViewedAt = &t
			}
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// PurgeCase drops all cached messages for a case.
func (s *Store) PurgeCase(ctx context.Context, caseID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE case_id = ?`, caseID)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
