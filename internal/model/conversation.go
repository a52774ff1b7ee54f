// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/gemlite/internal/util"
)

// DefaultTitle is the sentinel title for a freshly created conversation.
// Send derives a real title from the first message while the title still
// equals this value.
const DefaultTitle = "New chat"

// TitleMaxRunes is the strict prefix cap applied when deriving a title
// from the first message. No ellipsis is appended.
const TitleMaxRunes = 44

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds chat metadata. Message history is kept separately
// in the message cache, keyed by conversation ID, so the list can be
// rendered without pulling full histories.
type Conversation struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	SystemInstruction string    `json:"systemInstruction,omitempty"`
}

// NewConversation creates a conversation with a generated ID and the
// sentinel title.
func NewConversation() Conversation {
	now := time.Now().UTC()
	return Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps the updated timestamp.
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now().UTC()
}

// Rename sets the title to the trimmed value and bumps UpdatedAt.
// A blank title is rejected: the existing title is left unchanged and
// false is returned.
func (c *Conversation) Rename(title string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return false
	}
	c.Title = trimmed
	c.Touch()
	return true
}

// SetSystemInstruction sets or clears the system instruction and bumps
// UpdatedAt. An empty value clears the field.
func (c *Conversation) SetSystemInstruction(value string) {
	c.SystemInstruction = strings.TrimSpace(value)
	c.Touch()
}

// IsValid reports whether a persisted conversation carries every
// required field. Entries failing this check are dropped on load.
func (c Conversation) IsValid() bool {
	return c.ID != "" && c.Title != "" && !c.CreatedAt.IsZero() && !c.UpdatedAt.IsZero()
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// TitleFromMessage derives a conversation title from message text:
// the first TitleMaxRunes runes of the trimmed input, verbatim. Blank
// input falls back to the sentinel title; Send rejects blank input
// before this runs, so the fallback is defensive only.
func TitleFromMessage(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultTitle
	}
	return util.TruncateRunesNoEllipsis(trimmed, TitleMaxRunes)
}
