// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the client for the gemini-lite chat backend.
//
// It covers four remote operations: fetching a conversation's message
// history, sending one user turn, bulk-persisting a message list, and
// deleting server-side conversation state. Non-2xx responses become
// typed APIError values so callers can branch on status without string
// matching.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/gemlite/internal/model"
)

const (
	// DefaultTimeout is the default timeout for API requests. Generation
	// against grounded datastores is slow; keep this generous.
	DefaultTimeout = 120 * time.Second

	// maxResponseSize bounds response bodies so a misbehaving backend
	// cannot exhaust memory.
	maxResponseSize = 10 * 1024 * 1024 // 10MB
)

// Shared HTTP client with connection pooling for all backend requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnreachable indicates the backend could not be reached at all
// (no HTTP response).
var ErrUnreachable = errors.New("unable to reach the backend")

// APIError represents a non-success response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Is supports errors.Is comparison by status code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Status == t.Status
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the gemini-lite backend. The auth key is supplied
// per call, mirroring how the UI holds it as editable state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: sharedHTTPClient,
		userAgent:  "gemlite/0.1.0",
	}
}

// WithTimeout sets the request timeout. The client switches off the
// shared pooled transport onto its own with the given deadline.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient = &http.Client{
		Transport: sharedHTTPClient.Transport,
		Timeout:   timeout,
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// =============================================================================
// SEND METADATA
// =============================================================================

// SendMetadata carries the optional fields of a chat request. Nil
// fields are serialized as explicit null, never omitted; the backend
// distinguishes "absent" from "defaulted" on its side.
type SendMetadata struct {
	SystemInstruction *string        `json:"systemInstruction"`
	DatastorePaths    []string       `json:"datastorePaths"`
	Parameters        map[string]any `json:"parameters"`
}

// chatRequest is the wire shape of POST /api/chat.
type chatRequest struct {
	ConversationID    string         `json:"conversationId"`
	Message           string         `json:"message"`
	SystemInstruction *string        `json:"systemInstruction"`
	DatastorePaths    []string       `json:"datastorePaths"`
	Parameters        map[string]any `json:"parameters"`
}

// ChatResponse is the backend's reply to a chat request. Text may be
// empty; the state machine substitutes its fallback copy.
type ChatResponse struct {
	Text string `json:"text"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// FetchMessages retrieves the full message history for a conversation.
func (c *Client) FetchMessages(ctx context.Context, conversationID, authKey string) ([]model.Message, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil, authKey)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var messages []model.Message
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

// SendMessage submits one user turn and returns the backend's reply.
func (c *Client) SendMessage(ctx context.Context, conversationID, message string, meta SendMetadata, authKey string) (*ChatResponse, error) {
	body := chatRequest{
		ConversationID:    conversationID,
		Message:           message,
		SystemInstruction: meta.SystemInstruction,
		DatastorePaths:    meta.DatastorePaths,
		Parameters:        meta.Parameters,
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/chat", body, authKey)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result ChatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &result, nil
}

// SaveMessages bulk-persists a conversation's message list.
func (c *Client) SaveMessages(ctx context.Context, conversationID string, messages []model.Message, authKey string) error {
	if messages == nil {
		messages = []model.Message{}
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/messages", messages, authKey)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// DeleteConversation removes server-side state for a conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID, authKey string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/conversations/"+conversationID, nil, authKey)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/health", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do builds and executes one request. The bearer header is attached
// only when the auth key is non-empty; an empty key sends no
// Authorization header at all.
func (c *Client) do(ctx context.Context, method, path string, body any, authKey string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if authKey != "" {
		req.Header.Set("Authorization", "Bearer "+authKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return resp, nil
}

// parseError converts a non-success response into an APIError, pulling
// the FastAPI-style {"detail": "..."} message when present.
func (c *Client) parseError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return apiErr
	}

	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &detail); err == nil && detail.Detail != "" {
		apiErr.Message = detail.Detail
	}
	return apiErr
}
