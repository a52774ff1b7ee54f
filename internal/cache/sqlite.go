// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/gemlite/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS message_cache (
	conversation_id TEXT PRIMARY KEY,
	payload         TEXT NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
`

// SQLite is a MessageCache backed by a local SQLite database. Each
// conversation is one row holding the JSON-encoded message list, which
// keeps the get/set/evict surface identical to the memory cache while
// surviving restarts.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the cache database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// The cache is touched from one logical thread; a single connection
	// sidesteps SQLite write-lock contention entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Get returns the cached messages for a conversation. A missing row or
// an unreadable payload yields an empty slice, matching the tolerant
// defaults of the rest of the persistence layer.
func (c *SQLite) Get(conversationID string) []model.Message {
	var payload string
	err := c.db.QueryRow(
		"SELECT payload FROM message_cache WHERE conversation_id = ?",
		conversationID,
	).Scan(&payload)
	if err != nil {
		return []model.Message{}
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(payload), &messages); err != nil {
		return []model.Message{}
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages
}

// Set replaces the cached messages for a conversation. Best-effort, as
// with every persistence write in gemlite.
func (c *SQLite) Set(conversationID string, messages []model.Message) {
	if messages == nil {
		messages = []model.Message{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return
	}

	_, _ = c.db.Exec(`
		INSERT INTO message_cache (conversation_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		conversationID, string(payload), time.Now().UTC(),
	)
}

// Evict removes a conversation's row.
func (c *SQLite) Evict(conversationID string) {
	_, _ = c.db.Exec("DELETE FROM message_cache WHERE conversation_id = ?", conversationID)
}

// Close releases the database handle.
func (c *SQLite) Close() error {
	return c.db.Close()
}
