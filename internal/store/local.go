// Package store persists transcript history in SQLite. The engine treats it
// as an external collaborator: history loads and writes are best-effort and
// the engine stays usable when either fails.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"drafter/internal/logging"
	"drafter/internal/types"
)

// LocalStore is a SQLite-backed transcript history store. Rows carry both a
// flattened content column and a structured parts payload; legacy rows with
// only content reconstruct a best-effort part sequence on load.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing transcript store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *LocalStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_messages (
			conversation_id TEXT NOT NULL,
			variant         TEXT NOT NULL DEFAULT '',
			message_id      TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			parts_json      TEXT,
			created_at      TIMESTAMP NOT NULL,
			PRIMARY KEY (conversation_id, variant, message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_transcript_created
			ON transcript_messages (conversation_id, variant, created_at);
	`)
	return err
}

// LoadHistory returns the persisted messages for a context in chronological
// order. A missing history is an empty sequence, not an error.
func (s *LocalStore) LoadHistory(ctx context.Context, key types.ContextKey) ([]types.Message, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadHistory")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, parts_json, created_at
		 FROM transcript_messages
		 WHERE conversation_id = ? AND variant = ?
		 ORDER BY created_at ASC`,
		key.ConversationID, key.Variant,
	)
	if err != nil {
		logging.StoreError("Failed to load history for %s: %v", key, err)
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var (
			id, role, content string
			partsJSON         sql.NullString
			createdAt         time.Time
		)
		if err := rows.Scan(&id, &role, &content, &partsJSON, &createdAt); err != nil {
			logging.StoreDebug("Skipping unreadable row for %s: %v", key, err)
			continue
		}
		var raw []byte
		if partsJSON.Valid {
			raw = []byte(partsJSON.String)
		}
		messages = append(messages, types.Message{
			ID:        id,
			Role:      types.Role(role),
			Parts:     types.DecodeParts(raw, content),
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return messages, fmt.Errorf("history scan failed: %w", err)
	}

	logging.StoreDebug("Loaded %d messages for %s", len(messages), key)
	return messages, nil
}

// AppendMessage persists one message. INSERT OR IGNORE keeps re-persistence
// across reload cycles idempotent.
func (s *LocalStore) AppendMessage(ctx context.Context, key types.ContextKey, m types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var partsJSON interface{}
	if data := types.EncodeParts(m.Parts); data != nil {
		partsJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO transcript_messages
		 (conversation_id, variant, message_id, role, content, parts_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ConversationID, key.Variant, m.ID, string(m.Role), m.TextContent(), partsJSON, m.CreatedAt,
	)
	if err != nil {
		logging.StoreError("Failed to append message %s for %s: %v", m.ID, key, err)
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// DeleteAll removes the persisted transcript for a context.
func (s *LocalStore) DeleteAll(ctx context.Context, key types.ContextKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transcript_messages WHERE conversation_id = ? AND variant = ?`,
		key.ConversationID, key.Variant,
	)
	if err != nil {
		logging.StoreError("Failed to delete transcript for %s: %v", key, err)
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		logging.Store("Deleted %d messages for %s", n, key)
	}
	return nil
}

// Contexts lists the distinct context keys with persisted history.
func (s *LocalStore) Contexts(ctx context.Context) ([]types.ContextKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT conversation_id, variant FROM transcript_messages ORDER BY conversation_id, variant`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	defer rows.Close()

	var keys []types.ContextKey
	for rows.Next() {
		var k types.ContextKey
		if err := rows.Scan(&k.ConversationID, &k.Variant); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
