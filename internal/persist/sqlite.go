// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package persist provides conversation persistence behind the Bridge
// interface the chat engine talks to.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// SQLITE BRIDGE
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	actor      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// SQLiteBridge stores conversation history in a local SQLite database.
type SQLiteBridge struct {
	db *sql.DB
}

// DefaultPath returns the default database location,
// ~/.relaychat/history.db.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".relaychat", "history.db"), nil
}

// OpenSQLite opens (creating if necessary) the history database at path.
func OpenSQLite(path string) (*SQLiteBridge, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite allows a single writer; serialize access through one
	// connection to avoid SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &SQLiteBridge{db: db}, nil
}

// Close releases the underlying database handle.
func (b *SQLiteBridge) Close() error {
	return b.db.Close()
}

// Save appends one message to the conversation, creating the
// conversation on first write. The ownership check runs before any
// write: saving into another actor's conversation fails with
// ErrUnauthorized.
func (b *SQLiteBridge) Save(ctx context.Context, conversationID string, role model.Role, content, actor string) error {
	if actor == "" {
		return ErrUnauthenticated
	}
	if conversationID == "" {
		return fmt.Errorf("%w: empty conversation id", ErrUnknown)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: invalid role %q", ErrUnknown, role)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	defer tx.Rollback()

	owner, err := conversationOwner(ctx, tx, conversationID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversations (id, actor, created_at) VALUES (?, ?, ?)`,
			conversationID, actor, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknown, err)
		}
	case err != nil:
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	case owner != actor:
		return ErrUnauthorized
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		model.GenerateID(), conversationID, role.String(), content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	return nil
}

// Load returns the conversation's messages in insertion order. A
// missing conversation loads as empty history, which callers treat as a
// fresh conversation.
func (b *SQLiteBridge) Load(ctx context.Context, conversationID, actor string) ([]model.Message, error) {
	if actor == "" {
		return nil, ErrUnauthenticated
	}

	owner, err := conversationOwner(ctx, b.db, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	if owner != actor {
		return nil, ErrUnauthorized
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
		}
		m.Role = model.Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	return messages, nil
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func conversationOwner(ctx context.Context, q queryRower, conversationID string) (string, error) {
	var owner string
	err := q.QueryRowContext(ctx,
		`SELECT actor FROM conversations WHERE id = ?`, conversationID).Scan(&owner)
	return owner, err
}
