// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package importer normalizes Vertex AI prompt-export documents into
// gemlite conversations.
//
// The export format is loosely structured: almost every field is
// optional, roles appear either as a top-level author or inside the
// message content, and reasoning ("thought") parts are interleaved with
// the visible text. Hydrate degrades gracefully over whatever subset of
// fields is present.
package importer

import (
	"strings"

	"github.com/jeranaias/gemlite/internal/model"
)

// ImportedTitle is the fallback title for exports without one.
const ImportedTitle = "Imported Chat"

// =============================================================================
// EXPORT DOCUMENT SHAPE
// =============================================================================

// PromptExport mirrors the Vertex prompt-export document. Fields not
// needed by the client (description, parameters, model, type) are still
// parsed so a round-tripped document is not silently mangled.
type PromptExport struct {
	Title             string             `json:"title,omitempty"`
	Description       string             `json:"description,omitempty"`
	Parameters        map[string]any     `json:"parameters,omitempty"`
	SystemInstruction *SystemInstruction `json:"systemInstruction,omitempty"`
	Messages          []ExportMessage    `json:"messages,omitempty"`
	Model             string             `json:"model,omitempty"`
	Type              string             `json:"type,omitempty"`
}

// SystemInstruction is the export's system prompt container.
type SystemInstruction struct {
	Parts []Part `json:"parts,omitempty"`
}

// ExportMessage is one turn in the export. The role may live on the
// message itself (author) or inside the content.
type ExportMessage struct {
	Author  string         `json:"author,omitempty"`
	Content *ExportContent `json:"content,omitempty"`
}

// ExportContent holds the role and text parts of a message.
type ExportContent struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is a single text fragment. Parts flagged as thought are model
// reasoning and never shown to the user.
type Part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

// =============================================================================
// HYDRATION
// =============================================================================

// Hydrate converts an export document into a conversation record plus
// its separate message list. The caller seeds the message cache with the
// list and decides whether to persist it remotely.
func Hydrate(doc PromptExport) (model.Conversation, []model.Message) {
	conv := model.NewConversation()
	conv.Title = extractTitle(doc)
	conv.SystemInstruction = extractSystemInstruction(doc)

	return conv, extractMessages(doc)
}

func extractTitle(doc PromptExport) string {
	if title := strings.TrimSpace(doc.Title); title != "" {
		return title
	}
	return ImportedTitle
}

// extractSystemInstruction joins the non-blank instruction parts with
// newlines. Returns "" when no usable part exists.
func extractSystemInstruction(doc PromptExport) string {
	if doc.SystemInstruction == nil {
		return ""
	}

	var texts []string
	for _, part := range doc.SystemInstruction.Parts {
		if strings.TrimSpace(part.Text) != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// extractMessages flattens the export turns into messages. Thought
// parts are filtered out; turns with no visible text are skipped
// entirely. Surviving messages get fresh IDs and timestamps.
func extractMessages(doc PromptExport) []model.Message {
	var messages []model.Message

	for _, msg := range doc.Messages {
		role := normalizeRole(msg)

		var texts []string
		if msg.Content != nil {
			for _, part := range msg.Content.Parts {
				if part.Thought {
					continue
				}
				if strings.TrimSpace(part.Text) != "" {
					texts = append(texts, part.Text)
				}
			}
		}

		text := strings.TrimSpace(strings.Join(texts, "\n"))
		if text == "" {
			continue
		}

		messages = append(messages, model.NewMessage(role, text))
	}

	return messages
}

// normalizeRole resolves the turn's role: content.role wins over
// author, and anything other than exactly "user" maps to the model.
func normalizeRole(msg ExportMessage) model.Role {
	role := msg.Author
	if msg.Content != nil && msg.Content.Role != "" {
		role = msg.Content.Role
	}
	if role == "user" {
		return model.RoleUser
	}
	return model.RoleModel
}
