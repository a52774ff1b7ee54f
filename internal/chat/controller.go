// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side chat state machine.
//
// The Controller is the single owner of application state: the
// conversation list, active selection, draft input, busy flag, auth
// key, and group selector. All mutation goes through the transition
// methods below, never ad hoc field writes, which keeps the invariants
// checkable: unique conversation IDs, active ID always referencing an
// existing conversation (or nothing), at most one in-flight send, and
// cache entries living and dying with their conversation.
//
// Durable fields are mirrored to the store by the transitions
// themselves: the conversation list after any list or record mutation,
// the active pointer after selection changes, and the auth key when
// applied. Nothing depends on an external refresh cycle.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/jeranaias/gemlite/internal/cache"
	"github.com/jeranaias/gemlite/internal/gateway"
	"github.com/jeranaias/gemlite/internal/importer"
	"github.com/jeranaias/gemlite/internal/model"
	"github.com/jeranaias/gemlite/internal/storage"
)

// Reply text used when the backend answers without content, and the
// error fallback when a failure carries no description. Every send
// leaves a visible reply in the conversation, one way or the other.
const (
	NoResponseText    = "No response generated."
	ErrorPrefix       = "Error: "
	ErrorFallbackText = "Error: Unable to reach the backend."
)

// Gateway is the remote surface the controller orchestrates. Satisfied
// by *gateway.Client.
type Gateway interface {
	FetchMessages(ctx context.Context, conversationID, authKey string) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID, message string, meta gateway.SendMetadata, authKey string) (*gateway.ChatResponse, error)
	SaveMessages(ctx context.Context, conversationID string, messages []model.Message, authKey string) error
	DeleteConversation(ctx context.Context, conversationID, authKey string) error
}

// State is a snapshot of the controller's canonical state.
type State struct {
	Conversations []model.Conversation
	ActiveID      string
	Input         string
	Busy          bool
	AuthKeyInput  string
	AuthKey       string
	Group         Group
}

// Controller is the chat state machine. Transitions are synchronous;
// Send additionally performs the one asynchronous orchestration path
// (optimistic append, network call, reconciliation append).
type Controller struct {
	mu    sync.Mutex
	state State

	store      *storage.Store
	cache      cache.MessageCache
	gw         Gateway
	datastores Datastores
}

// New builds a controller seeded from the persistent store. A persisted
// active pointer that no longer references an existing conversation is
// reset to the first conversation, or cleared when the list is empty.
func New(store *storage.Store, msgCache cache.MessageCache, gw Gateway, datastores Datastores) *Controller {
	conversations := store.LoadConversations()
	authKey := store.LoadAuthKey()

	activeID := store.LoadActiveConversationID()
	if !containsID(conversations, activeID) {
		activeID = ""
	}
	if activeID == "" && len(conversations) > 0 {
		activeID = conversations[0].ID
	}

	c := &Controller{
		state: State{
			Conversations: conversations,
			ActiveID:      activeID,
			AuthKeyInput:  authKey,
			AuthKey:       authKey,
			Group:         GroupGP2,
		},
		store:      store,
		cache:      msgCache,
		gw:         gw,
		datastores: datastores,
	}

	store.SaveActiveConversationID(activeID)
	return c
}

// =============================================================================
// SNAPSHOT ACCESSORS
// =============================================================================

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := c.state
	s.Conversations = make([]model.Conversation, len(c.state.Conversations))
	copy(s.Conversations, c.state.Conversations)
	return s
}

// ActiveConversation returns a copy of the active conversation, if any.
func (c *Controller) ActiveConversation() (model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.findByID(c.state.ActiveID)
	if conv == nil {
		return model.Conversation{}, false
	}
	return *conv, true
}

// Messages returns the cached history for a conversation.
func (c *Controller) Messages(conversationID string) []model.Message {
	return c.cache.Get(conversationID)
}

// =============================================================================
// FIELD TRANSITIONS
// =============================================================================

// SetInput replaces the draft input.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Input = text
}

// SetAuthKeyInput replaces the auth key draft and applies the trimmed
// value as the effective key, mirroring it to the store.
func (c *Controller) SetAuthKeyInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.AuthKeyInput = text
	c.state.AuthKey = strings.TrimSpace(text)
	c.store.SaveAuthKey(c.state.AuthKey)
}

// SetGroup replaces the datastore group selector.
func (c *Controller) SetGroup(group Group) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Group = group
}

// =============================================================================
// CONVERSATION TRANSITIONS
// =============================================================================

// NewConversation prepends a fresh conversation and makes it active.
func (c *Controller) NewConversation() model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := model.NewConversation()
	c.state.Conversations = append([]model.Conversation{conv}, c.state.Conversations...)
	c.state.ActiveID = conv.ID

	c.store.SaveConversations(c.state.Conversations)
	c.store.SaveActiveConversationID(conv.ID)
	return conv
}

// SelectConversation sets the active pointer unconditionally. The view
// only offers IDs from the current list, so no existence check here.
func (c *Controller) SelectConversation(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.ActiveID = conversationID
	c.store.SaveActiveConversationID(conversationID)
}

// RenameConversation sets a conversation's title to the trimmed value.
// A blank title is rejected and the existing title kept.
func (c *Controller) RenameConversation(conversationID, title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.findByID(conversationID)
	if conv == nil {
		return false
	}
	if !conv.Rename(title) {
		return false
	}

	c.store.SaveConversations(c.state.Conversations)
	return true
}

// SetSystemInstruction sets or clears a conversation's system
// instruction. An empty value clears it.
func (c *Controller) SetSystemInstruction(conversationID, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.findByID(conversationID)
	if conv == nil {
		return false
	}
	conv.SetSystemInstruction(value)

	c.store.SaveConversations(c.state.Conversations)
	return true
}

// DeleteConversation removes a conversation locally and evicts its
// cache entry. When it was active, the first remaining conversation
// becomes active, or none. Remote deletion is best-effort cleanup:
// local deletion is authoritative and a backend failure is swallowed.
func (c *Controller) DeleteConversation(ctx context.Context, conversationID string) {
	c.mu.Lock()

	remaining := make([]model.Conversation, 0, len(c.state.Conversations))
	found := false
	for _, conv := range c.state.Conversations {
		if conv.ID == conversationID {
			found = true
			continue
		}
		remaining = append(remaining, conv)
	}
	if !found {
		c.mu.Unlock()
		return
	}

	c.state.Conversations = remaining
	if c.state.ActiveID == conversationID {
		c.state.ActiveID = ""
		if len(remaining) > 0 {
			c.state.ActiveID = remaining[0].ID
		}
	}
	c.cache.Evict(conversationID)

	c.store.SaveConversations(c.state.Conversations)
	c.store.SaveActiveConversationID(c.state.ActiveID)
	authKey := c.state.AuthKey
	c.mu.Unlock()

	_ = c.gw.DeleteConversation(ctx, conversationID, authKey)
}

// ImportConversation normalizes a prompt-export document, prepends the
// resulting conversation, makes it active, and seeds its message cache.
// When an auth key is set the messages are persisted remotely; that
// failure propagates, since a half-saved import must be visible to the
// user. The local import has already happened either way.
func (c *Controller) ImportConversation(ctx context.Context, doc importer.PromptExport) (model.Conversation, error) {
	conv, messages := importer.Hydrate(doc)

	c.mu.Lock()
	c.state.Conversations = append([]model.Conversation{conv}, c.state.Conversations...)
	c.state.ActiveID = conv.ID
	c.cache.Set(conv.ID, messages)

	c.store.SaveConversations(c.state.Conversations)
	c.store.SaveActiveConversationID(conv.ID)
	authKey := c.state.AuthKey
	c.mu.Unlock()

	if authKey == "" {
		return conv, nil
	}
	if err := c.gw.SaveMessages(ctx, conv.ID, messages, authKey); err != nil {
		return conv, err
	}
	return conv, nil
}

// RefreshMessages replaces the active conversation's cached history
// with the backend's copy. No-op without an active conversation or an
// auth key.
func (c *Controller) RefreshMessages(ctx context.Context) error {
	c.mu.Lock()
	id := c.state.ActiveID
	authKey := c.state.AuthKey
	c.mu.Unlock()

	if id == "" || authKey == "" {
		return nil
	}

	messages, err := c.gw.FetchMessages(ctx, id, authKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !containsID(c.state.Conversations, id) {
		return nil
	}
	c.cache.Set(id, messages)
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// Send submits the draft input to the active conversation.
//
// Phase 1 (synchronous, always applied): append the user message to the
// cache, derive a title while the sentinel is still in place, clear the
// input, raise the busy flag. Phase 2 (after the network call): append
// the reply — the backend's text, the empty-reply fallback, or an
// "Error: ..." message — re-reading the cache by conversation ID so a
// selection change mid-flight cannot lose the user's message. When the
// conversation was deleted mid-flight the phase-2 write is dropped
// rather than resurrecting the evicted entry.
//
// Returns the appended reply, or nil when the send was a guarded no-op
// (no active conversation, blank input, or already busy).
func (c *Controller) Send(ctx context.Context) *model.Message {
	c.mu.Lock()

	conv := c.findByID(c.state.ActiveID)
	trimmed := strings.TrimSpace(c.state.Input)
	if conv == nil || trimmed == "" || c.state.Busy {
		c.mu.Unlock()
		return nil
	}

	userMessage := model.NewUserMessage(trimmed)
	c.cache.Set(conv.ID, append(c.cache.Get(conv.ID), userMessage))

	if conv.Title == model.DefaultTitle {
		conv.Title = model.TitleFromMessage(trimmed)
	}
	conv.Touch()

	c.state.Input = ""
	c.state.Busy = true
	c.store.SaveConversations(c.state.Conversations)

	conversationID := conv.ID
	meta := gateway.SendMetadata{
		DatastorePaths: c.datastores.PathsFor(c.state.Group),
	}
	if conv.SystemInstruction != "" {
		instruction := conv.SystemInstruction
		meta.SystemInstruction = &instruction
	}
	authKey := c.state.AuthKey
	c.mu.Unlock()

	// Busy must clear on every path out of the network call.
	defer func() {
		c.mu.Lock()
		c.state.Busy = false
		c.mu.Unlock()
	}()

	resp, err := c.gw.SendMessage(ctx, conversationID, trimmed, meta, authKey)

	reply := model.NewModelMessage(replyText(resp, err))

	c.mu.Lock()
	defer c.mu.Unlock()

	if !containsID(c.state.Conversations, conversationID) {
		// Deleted while in flight; do not resurrect the cache entry.
		return nil
	}

	c.cache.Set(conversationID, append(c.cache.Get(conversationID), reply))
	if conv := c.findByID(conversationID); conv != nil {
		conv.Touch()
		c.store.SaveConversations(c.state.Conversations)
	}
	return &reply
}

// replyText picks the visible reply content for a completed send.
func replyText(resp *gateway.ChatResponse, err error) string {
	if err != nil {
		description := strings.TrimSpace(err.Error())
		if description == "" {
			return ErrorFallbackText
		}
		return ErrorPrefix + description
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return NoResponseText
	}
	return text
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Controller) findByID(id string) *model.Conversation {
	if id == "" {
		return nil
	}
	for i := range c.state.Conversations {
		if c.state.Conversations[i].ID == id {
			return &c.state.Conversations[i]
		}
	}
	return nil
}

func containsID(conversations []model.Conversation, id string) bool {
	if id == "" {
		return false
	}
	for _, conv := range conversations {
		if conv.ID == id {
			return true
		}
	}
	return false
}
