// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemlite/internal/model"
)

func TestSendMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]json.RawMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "Hi!"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	instruction := "Be helpful"
	resp, err := client.SendMessage(context.Background(), "conv-1", "Hello", SendMetadata{
		SystemInstruction: &instruction,
		DatastorePaths:    []string{"projects/p/dataStores/gp2"},
	}, "my-key")

	require.NoError(t, err)
	assert.Equal(t, "Hi!", resp.Text)
	assert.Equal(t, "/api/chat", gotPath)
	assert.Equal(t, "Bearer my-key", gotAuth)

	assert.JSONEq(t, `"conv-1"`, string(gotBody["conversationId"]))
	assert.JSONEq(t, `"Hello"`, string(gotBody["message"]))
	assert.JSONEq(t, `"Be helpful"`, string(gotBody["systemInstruction"]))
	assert.JSONEq(t, `["projects/p/dataStores/gp2"]`, string(gotBody["datastorePaths"]))
}

// Unset metadata fields must be serialized as explicit null, not
// dropped from the payload.
func TestSendMessageExplicitNulls(t *testing.T) {
	var gotBody map[string]json.RawMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.Write([]byte(`{"text": "ok"}`))
	}))
	defer server.Close()

	_, err := New(server.URL).SendMessage(context.Background(), "conv-1", "Hi", SendMetadata{}, "")
	require.NoError(t, err)

	for _, field := range []string{"systemInstruction", "datastorePaths", "parameters"} {
		raw, present := gotBody[field]
		require.True(t, present, "field %s missing from payload", field)
		assert.Equal(t, "null", string(raw), "field %s should be null", field)
	}
}

func TestSendMessageNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail": "Invalid auth key."}`))
	}))
	defer server.Close()

	_, err := New(server.URL).SendMessage(context.Background(), "conv-1", "Hi", SendMetadata{}, "bad")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "Invalid auth key.")
	assert.True(t, errors.Is(err, &APIError{Status: http.StatusForbidden}))
}

func TestBearerHeaderOmittedWhenKeyEmpty(t *testing.T) {
	var sawAuthHeader bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuthHeader = r.Header["Authorization"]
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := New(server.URL).FetchMessages(context.Background(), "conv-1", "")
	require.NoError(t, err)
	assert.False(t, sawAuthHeader, "Authorization header must be absent for empty key")
}

func TestFetchMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/conversations/conv-9/messages", r.URL.Path)
		w.Write([]byte(`[
			{"id": "m1", "role": "user", "content": "Hello", "createdAt": "2026-01-02T15:04:05Z"},
			{"id": "m2", "role": "model", "content": "Hi", "createdAt": "2026-01-02T15:04:06Z"}
		]`))
	}))
	defer server.Close()

	messages, err := New(server.URL).FetchMessages(context.Background(), "conv-9", "key")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, "Hi", messages[1].Content)
}

func TestSaveMessages(t *testing.T) {
	var gotMessages []model.Message

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/conversations/conv-3/messages", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotMessages))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	messages := []model.Message{model.NewUserMessage("a"), model.NewModelMessage("b")}
	err := New(server.URL).SaveMessages(context.Background(), "conv-3", messages, "key")

	require.NoError(t, err)
	require.Len(t, gotMessages, 2)
	assert.Equal(t, "a", gotMessages[0].Content)
}

func TestDeleteConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/conversations/conv-5", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := New(server.URL).DeleteConversation(context.Background(), "conv-5", "key")
	require.NoError(t, err)
}

func TestDeleteConversationNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := New(server.URL).DeleteConversation(context.Background(), "gone", "key")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestTransportFailure(t *testing.T) {
	// Point at a closed server to force a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := New(server.URL).WithTimeout(2 * time.Second)
	_, err := client.SendMessage(context.Background(), "conv-1", "Hi", SendMetadata{}, "key")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	require.NoError(t, New(server.URL).Health(context.Background()))
}
