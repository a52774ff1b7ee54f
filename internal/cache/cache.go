// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache stores message histories keyed by conversation ID.
//
// The chat controller reads and writes histories through the
// MessageCache interface only; the backing medium is interchangeable.
// The memory implementation serves tests and ephemeral sessions, the
// SQLite implementation keeps histories across restarts.
package cache

import (
	"sync"

	"github.com/jeranaias/gemlite/internal/model"
)

// MessageCache is a key-indexed store of message lists.
type MessageCache interface {
	// Get returns the cached messages for a conversation, or an empty
	// slice when nothing is cached.
	Get(conversationID string) []model.Message

	// Set replaces the cached messages for a conversation.
	Set(conversationID string, messages []model.Message)

	// Evict removes a conversation's entry.
	Evict(conversationID string)
}

// =============================================================================
// MEMORY CACHE
// =============================================================================

// Memory is an in-process MessageCache guarded by a RWMutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]model.Message
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]model.Message)}
}

// Get returns a copy of the cached messages. Callers append to the
// result freely without aliasing cache internals.
func (c *Memory) Get(conversationID string) []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.entries[conversationID]
	if !ok {
		return []model.Message{}
	}
	out := make([]model.Message, len(cached))
	copy(out, cached)
	return out
}

// Set replaces the entry with a copy of messages.
func (c *Memory) Set(conversationID string, messages []model.Message) {
	stored := make([]model.Message, len(messages))
	copy(stored, messages)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conversationID] = stored
}

// Evict removes the entry for a conversation.
func (c *Memory) Evict(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, conversationID)
}

// Len returns the number of cached conversations.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
