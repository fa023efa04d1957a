// Package store persists chats.
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

	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"repochat/internal/domain"
	"repochat/internal/infra/tracer"
)

// SQLiteChatStore implements domain.ChatStore using SQLite. Message history
// is append-only: Save inserts the messages past the stored length and
// rejects a history that does not extend what is already stored. Replace is
// the only way to rewrite stored messages.
type SQLiteChatStore struct {
	db *sql.DB
}

// NewSQLiteChatStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteChatStore(dbPath string) (*SQLiteChatStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create chat db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chat db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate chat db: %w", err)
	}
	return &SQLiteChatStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			path       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS chats_user_created ON chats (user_id, created_at);
		CREATE TABLE IF NOT EXISTS messages (
			chat_id    TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			id         TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			parts      TEXT NOT NULL DEFAULT '[]',
			name       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY (chat_id, seq)
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteChatStore) Close() error {
	return s.db.Close()
}

// Save implements domain.ChatStore.
func (s *SQLiteChatStore) Save(ctx context.Context, chat domain.Chat) error {
	return s.write(ctx, chat, false)
}

// Replace implements domain.ChatStore.
func (s *SQLiteChatStore) Replace(ctx context.Context, chat domain.Chat) error {
	return s.write(ctx, chat, true)
}

func (s *SQLiteChatStore) write(ctx context.Context, chat domain.Chat, replace bool) (err error) {
	_, span := tracer.StartSpan(ctx, "store.sqlite.save",
		trace.WithAttributes(
			tracer.StringAttr("chat.id", chat.ID),
			tracer.IntAttr("chat.messages", len(chat.Messages)),
			tracer.BoolAttr("chat.replace", replace),
		),
	)
	defer func() {
		if err != nil {
			tracer.RecordError(span, err)
		} else {
			tracer.SetOK(span)
		}
		span.End()
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin save", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	created := chat.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	path := chat.Path
	if path == "" {
		path = domain.ChatPath(chat.ID)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		chat.ID, chat.UserID, chat.Title, path, created.UTC().Format(time.RFC3339Nano), now,
	)
	if err != nil {
		return storeErr("upsert chat", err)
	}

	var owner string
	if err = tx.QueryRowContext(ctx, "SELECT user_id FROM chats WHERE id = ?", chat.ID).Scan(&owner); err != nil {
		return storeErr("read owner", err)
	}
	if owner != chat.UserID {
		return fmt.Errorf("save chat %s: %w: owned by another user", chat.ID, domain.ErrConflict)
	}

	stored := 0
	if replace {
		if _, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chat.ID); err != nil {
			return storeErr("clear messages", err)
		}
	} else {
		var ids []string
		if ids, err = storedIDs(ctx, tx, chat.ID); err != nil {
			return err
		}
		if err = extendsHistory(chat, ids); err != nil {
			return err
		}
		stored = len(ids)
	}

	for i := stored; i < len(chat.Messages); i++ {
		m := chat.Messages[i]
		parts, mErr := json.Marshal(m.Parts)
		if mErr != nil {
			err = storeErr("marshal parts", mErr)
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (chat_id, seq, id, role, content, parts, name, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			chat.ID, i, m.ID, m.Role, m.Content, string(parts), m.Name, m.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return storeErr("insert message", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return storeErr("commit save", err)
	}
	return nil
}

func storedIDs(ctx context.Context, tx *sql.Tx, chatID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM messages WHERE chat_id = ? ORDER BY seq", chatID)
	if err != nil {
		return nil, storeErr("query message ids", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan message id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate message ids", err)
	}
	return ids, nil
}

// Get implements domain.ChatStore.
func (s *SQLiteChatStore) Get(ctx context.Context, id string) (*domain.Chat, error) {
	var chat domain.Chat
	var created string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, path, created_at FROM chats WHERE id = ?", id,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Path, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get chat %s: %w", id, domain.ErrChatNotFound)
	}
	if err != nil {
		return nil, storeErr("get chat", err)
	}
	chat.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, content, parts, name, created_at FROM messages WHERE chat_id = ? ORDER BY seq", id,
	)
	if err != nil {
		return nil, storeErr("query messages", err)
	}
	defer rows.Close()

	chat.Messages = []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var parts, at string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &parts, &m.Name, &at); err != nil {
			return nil, storeErr("scan message", err)
		}
		if err := json.Unmarshal([]byte(parts), &m.Parts); err != nil {
			return nil, storeErr("unmarshal parts", err)
		}
		if len(m.Parts) == 0 {
			m.Parts = nil
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, at)
		chat.Messages = append(chat.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate messages", err)
	}
	return &chat, nil
}

// List implements domain.ChatStore.
func (s *SQLiteChatStore) List(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.path, c.created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c
		WHERE c.user_id = ?
		ORDER BY c.created_at DESC, c.id DESC`, userID,
	)
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	defer rows.Close()

	out := []domain.ChatSummary{}
	for rows.Next() {
		var cs domain.ChatSummary
		var created string
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.Path, &created, &cs.MessageCount); err != nil {
			return nil, storeErr("scan chat", err)
		}
		cs.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Delete implements domain.ChatStore.
func (s *SQLiteChatStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin delete", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", id); err != nil {
		return storeErr("delete messages", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id); err != nil {
		return storeErr("delete chat", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit delete", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}

var _ domain.ChatStore = (*SQLiteChatStore)(nil)
