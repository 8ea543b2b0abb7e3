package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicComplete_Success(t *testing.T) {
	var gotReq messagesRequest
	var gotKey, gotVersion, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"NEI, "},{"type":"text","text":"økonomistilling."}]}`))
	}))
	defer srv.Close()

	provider := NewAnthropicProvider(srv.URL, "sk-test", "claude-3-haiku-20240307", srv.Client())
	got, err := provider.Complete(context.Background(), "vurder", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "NEI, økonomistilling." {
		t.Errorf("got %q", got)
	}
	if gotKey != "sk-test" || gotVersion != anthropicVersion || gotPath != "/v1/messages" {
		t.Errorf("unexpected key/version/path: %q/%q/%q", gotKey, gotVersion, gotPath)
	}
	if gotReq.MaxTokens != 100 || gotReq.Model != "claude-3-haiku-20240307" {
		t.Errorf("unexpected request %+v", gotReq)
	}
}

func TestAnthropicComplete_ErrorEnvelope(t *testing.T) {
	srv, client := makeTestServer(t, http.StatusTooManyRequests, map[string]any{
		"type":  "error",
		"error": map[string]string{"type": "rate_limit_error", "message": "slow down"},
	})

	provider := NewAnthropicProvider(srv.URL, "sk-test", "m", client)
	_, err := provider.Complete(context.Background(), "vurder", 100)
	if err == nil || !strings.Contains(err.Error(), "rate_limit_error") {
		t.Fatalf("expected rate_limit_error, got %v", err)
	}
}

func TestAnthropicComplete_NoText(t *testing.T) {
	srv, client := makeTestServer(t, http.StatusOK, map[string]any{"content": []any{}})

	provider := NewAnthropicProvider(srv.URL, "sk-test", "m", client)
	if _, err := provider.Complete(context.Background(), "vurder", 100); err == nil {
		t.Fatal("expected error when reply has no text")
	}
}
