package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpenMCP-Dialog/sdk/go/dialog"
)

func execute(t *testing.T, handler http.HandlerFunc, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestChatPrintsReplyAndPendingFields(t *testing.T) {
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1", body["session_id"])
		assert.Equal(t, "leave_request employee_id=E001", body["message"])
		_ = json.NewEncoder(w).Encode(dialog.ChatResponse{
			AssistantResponse: "To continue with leave_request I still need: start, end.",
			State:             dialog.ConversationState{Status: "awaiting_args", ActiveIntent: "leave_request", PendingArgs: []string{"start", "end"}},
		})
	}, "chat", "s1", "leave_request", "employee_id=E001")

	require.NoError(t, err)
	assert.Contains(t, out, "I still need: start, end.")
	assert.Contains(t, out, "[awaiting_args: leave_request, waiting for start, end]")
}

func TestTurnsPassesFilters(t *testing.T) {
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/turns", r.URL.Path)
		assert.Equal(t, "failed", r.URL.Query().Get("status"))
		assert.Equal(t, "s1", r.URL.Query().Get("session_id"))
		_ = json.NewEncoder(w).Encode([]dialog.Turn{{ID: "t1", Status: "failed"}})
	}, "turns", "--session", "s1", "--status", "failed")

	require.NoError(t, err)
	assert.Contains(t, out, `"id": "t1"`)
}

func TestTurnReportsAPIError(t *testing.T) {
	_, err := execute(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"TASK_NOT_FOUND","message":"task not found"}}`))
	}, "turn", "missing")

	require.Error(t, err)
	assert.True(t, dialog.IsNotFound(err))
}

func TestChatRequiresMessage(t *testing.T) {
	_, err := execute(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	}, "chat", "s1")
	require.Error(t, err)
}
