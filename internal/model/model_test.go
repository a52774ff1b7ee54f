// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewConversation(t *testing.T) {
	conv := NewConversation()

	if conv.ID == "" {
		t.Error("expected non-empty ID")
	}
	if conv.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", conv.Title, DefaultTitle)
	}
	if conv.CreatedAt.IsZero() || conv.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if !conv.IsValid() {
		t.Error("new conversation should be valid")
	}
}

func TestConversationIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		conv := NewConversation()
		if seen[conv.ID] {
			t.Fatalf("duplicate conversation ID %q", conv.ID)
		}
		seen[conv.ID] = true
	}
}

func TestConversationRename(t *testing.T) {
	conv := NewConversation()
	before := conv.UpdatedAt

	if !conv.Rename("  Project notes  ") {
		t.Fatal("Rename rejected a non-blank title")
	}
	if conv.Title != "Project notes" {
		t.Errorf("Title = %q, want trimmed value", conv.Title)
	}
	if conv.UpdatedAt.Before(before) {
		t.Error("UpdatedAt was not bumped")
	}
}

func TestConversationRenameRejectsBlank(t *testing.T) {
	conv := NewConversation()
	conv.Title = "Keep me"

	for _, title := range []string{"", "   ", "\t\n"} {
		if conv.Rename(title) {
			t.Errorf("Rename(%q) accepted a blank title", title)
		}
		if conv.Title != "Keep me" {
			t.Errorf("Title = %q after blank rename, want %q", conv.Title, "Keep me")
		}
	}
}

func TestConversationSetSystemInstruction(t *testing.T) {
	conv := NewConversation()

	conv.SetSystemInstruction("Answer in French.")
	if conv.SystemInstruction != "Answer in French." {
		t.Errorf("SystemInstruction = %q", conv.SystemInstruction)
	}

	conv.SetSystemInstruction("")
	if conv.SystemInstruction != "" {
		t.Errorf("SystemInstruction = %q, want cleared", conv.SystemInstruction)
	}
}

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short input passes through", "Hello", "Hello"},
		{"input is trimmed", "  Hello  ", "Hello"},
		{"blank falls back to sentinel", "   ", DefaultTitle},
		{"empty falls back to sentinel", "", DefaultTitle},
		{"exactly 44 runes unchanged", strings.Repeat("a", 44), strings.Repeat("a", 44)},
		{"45 runes cut to 44", strings.Repeat("a", 45), strings.Repeat("a", 44)},
		{"no ellipsis appended", strings.Repeat("b", 100), strings.Repeat("b", 44)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromMessage(tt.input); got != tt.want {
				t.Errorf("TitleFromMessage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMessageConstructors(t *testing.T) {
	user := NewUserMessage("hi")
	if user.Role != RoleUser || user.Content != "hi" || user.ID == "" {
		t.Errorf("unexpected user message: %+v", user)
	}

	reply := NewModelMessage("hello")
	if reply.Role != RoleModel || reply.Content != "hello" {
		t.Errorf("unexpected model message: %+v", reply)
	}
}

func TestMessageIsValid(t *testing.T) {
	msg := NewUserMessage("hi")
	if !msg.IsValid() {
		t.Error("constructed message should be valid")
	}

	if (Message{Role: RoleUser, CreatedAt: time.Now()}).IsValid() {
		t.Error("message without ID should be invalid")
	}
	if (Message{ID: "x", Role: "assistant", CreatedAt: time.Now()}).IsValid() {
		t.Error("message with unknown role should be invalid")
	}
}

func TestRoleDisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("RoleUser.DisplayName() = %q", RoleUser.DisplayName())
	}
	if RoleModel.DisplayName() != "Model" {
		t.Errorf("RoleModel.DisplayName() = %q", RoleModel.DisplayName())
	}
}
