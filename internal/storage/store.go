// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the durable slots of the chat state:
// conversation list, active conversation pointer, and the auth key.
//
// Each slot is an independent file under the base directory. Reads
// tolerate absent files and malformed JSON by returning empty defaults;
// writes are atomic and best-effort, never surfacing an error to the
// caller. A full disk must degrade to a non-persistent session, not
// break the send loop.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/gemlite/internal/model"
	"github.com/jeranaias/gemlite/internal/util"
)

// Slot file names. Stable across versions: renaming one orphans every
// existing install's data.
const (
	conversationsFile = "conversations.json"
	activeFile        = "active_conversation"
	authKeyFile       = "auth_key"
)

// Store is a file-backed key-value adapter rooted at BaseDir.
type Store struct {
	BaseDir string
}

// New creates a store under ~/.gemlite.
func New() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewWithDir(filepath.Join(homeDir, ".gemlite"))
}

// NewWithDir creates a store with a custom base directory.
func NewWithDir(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{BaseDir: baseDir}, nil
}

// =============================================================================
// CONVERSATION LIST SLOT
// =============================================================================

// LoadConversations reads the persisted conversation list. A missing
// file, malformed JSON, or a non-array payload all yield an empty list.
// Entries missing required fields are dropped.
func (s *Store) LoadConversations() []model.Conversation {
	data, err := os.ReadFile(s.path(conversationsFile))
	if err != nil {
		return []model.Conversation{}
	}

	var parsed []model.Conversation
	if err := json.Unmarshal(data, &parsed); err != nil {
		return []model.Conversation{}
	}

	valid := make([]model.Conversation, 0, len(parsed))
	for _, conv := range parsed {
		if conv.IsValid() {
			valid = append(valid, conv)
		}
	}
	return valid
}

// SaveConversations persists the conversation list. Best-effort.
func (s *Store) SaveConversations(conversations []model.Conversation) {
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return
	}
	_ = util.AtomicWriteFile(s.path(conversationsFile), data, 0644)
}

// =============================================================================
// ACTIVE CONVERSATION SLOT
// =============================================================================

// LoadActiveConversationID returns the persisted active conversation
// pointer, or "" when none is stored.
func (s *Store) LoadActiveConversationID() string {
	data, err := os.ReadFile(s.path(activeFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveActiveConversationID persists the active pointer. An empty ID
// removes the slot. Best-effort.
func (s *Store) SaveActiveConversationID(id string) {
	if id == "" {
		_ = os.Remove(s.path(activeFile))
		return
	}
	_ = util.AtomicWriteFile(s.path(activeFile), []byte(id), 0644)
}

// =============================================================================
// AUTH KEY SLOT
// =============================================================================

// LoadAuthKey returns the persisted auth key, default empty.
func (s *Store) LoadAuthKey() string {
	data, err := os.ReadFile(s.path(authKeyFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveAuthKey persists the auth key with owner-only permissions.
// Best-effort.
func (s *Store) SaveAuthKey(key string) {
	if key == "" {
		_ = os.Remove(s.path(authKeyFile))
		return
	}
	_ = util.AtomicWriteFile(s.path(authKeyFile), []byte(key), 0600)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.BaseDir, name)
}
