package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/studysync/internal/application"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func newTestClient(t *testing.T, handler http.Handler) *RosterClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewRosterClient(server.URL, "test-token", server.Client(), logger)
}

func TestGetRoleMembers(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/roles/role-1/members" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"members": []string{"chat-1", "chat-2"}})
	}))

	members, err := client.GetRoleMembers(context.Background(), "role-1")
	if err != nil {
		t.Fatalf("GetRoleMembers: %v", err)
	}
	if len(members) != 2 || members[0] != "chat-1" {
		t.Errorf("unexpected members %v", members)
	}
}

func TestGrantAndRevokeRoleMethods(t *testing.T) {
	var calls []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx := context.Background()
	if err := client.GrantRole(ctx, "role-1", "chat-1"); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if err := client.RevokeRole(ctx, "role-1", "chat-1"); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}

	want := []string{
		"PUT /v1/roles/role-1/members/chat-1",
		"DELETE /v1/roles/role-1/members/chat-1",
	}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestSendChannelMessageBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["text"] != "guest joining week 3" {
			t.Errorf("unexpected text %q", body["text"])
		}
		w.WriteHeader(http.StatusCreated)
	}))

	if err := client.SendChannelMessage(context.Background(), "channel-1", "guest joining week 3"); err != nil {
		t.Fatalf("SendChannelMessage: %v", err)
	}
}

func TestCallRetriesOnServerErrors(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.GrantRole(context.Background(), "role-1", "chat-1"); err != nil {
		t.Fatalf("GrantRole after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))

	err := client.GrantRole(context.Background(), "role-1", "chat-1")
	if !errors.Is(err, application.ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
}
