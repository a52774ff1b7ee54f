// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"path/filepath"
	"testing"

	"github.com/jeranaias/gemlite/internal/model"
)

// Both implementations must satisfy the same contract; run the shared
// suite against each.
func TestMessageCacheImplementations(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		runCacheSuite(t, NewMemory())
	})

	t.Run("sqlite", func(t *testing.T) {
		c, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
		if err != nil {
			t.Fatalf("NewSQLite failed: %v", err)
		}
		defer c.Close()
		runCacheSuite(t, c)
	})
}

func runCacheSuite(t *testing.T, c MessageCache) {
	t.Helper()

	// Unknown key yields an empty slice, not nil panic fodder.
	if got := c.Get("missing"); len(got) != 0 {
		t.Errorf("Get(missing) = %d messages, want 0", len(got))
	}

	user := model.NewUserMessage("Hello")
	reply := model.NewModelMessage("Hi!")

	c.Set("conv-1", []model.Message{user})
	got := c.Get("conv-1")
	if len(got) != 1 || got[0].Content != "Hello" {
		t.Fatalf("Get after Set = %+v", got)
	}

	// Read-modify-write is the controller's hot path.
	c.Set("conv-1", append(got, reply))
	got = c.Get("conv-1")
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != model.RoleUser || got[1].Role != model.RoleModel {
		t.Errorf("unexpected order: %+v", got)
	}

	// Entries are independent per conversation.
	c.Set("conv-2", []model.Message{model.NewUserMessage("other")})
	if got := c.Get("conv-1"); len(got) != 2 {
		t.Errorf("conv-1 disturbed by conv-2 write: %d messages", len(got))
	}

	c.Evict("conv-1")
	if got := c.Get("conv-1"); len(got) != 0 {
		t.Errorf("Get after Evict = %d messages, want 0", len(got))
	}
	if got := c.Get("conv-2"); len(got) != 1 {
		t.Errorf("Evict removed the wrong entry")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	c := NewMemory()
	c.Set("conv", []model.Message{model.NewUserMessage("original")})

	got := c.Get("conv")
	got[0].Content = "mutated"

	if c.Get("conv")[0].Content != "original" {
		t.Error("Get returned a slice aliasing cache internals")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	c.Set("conv", []model.Message{model.NewUserMessage("survives")})
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got := reopened.Get("conv")
	if len(got) != 1 || got[0].Content != "survives" {
		t.Errorf("Get after reopen = %+v", got)
	}
}
