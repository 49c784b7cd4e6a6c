package codex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/upstream"
)

func newEntry(baseURL string) *credential.Entry {
	return &credential.Entry{
		ID:         "sess-1",
		Attributes: map[string]string{"base_url": baseURL},
		Metadata:   map[string]any{"access_token": "tok-123", "chatgpt_account_id": "acct-1"},
	}
}

func TestIdentifier(t *testing.T) {
	if New().Identifier() != "codex" {
		t.Errorf("Identifier() = %q, want codex", New().Identifier())
	}
}

func TestExecuteSetsHeadersFromMetadata(t *testing.T) {
	var gotAuth, gotAccount, gotSession string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccount = r.Header.Get("ChatGPT-Account-Id")
		gotSession = r.Header.Get("Session_Id")
		w.Write([]byte(`{"id":"resp_1","model":"gpt-5","status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"hi"}]}],"usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer srv.Close()

	resp, err := New().Execute(context.Background(), newEntry(srv.URL), upstream.Request{Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
	if gotAccount != "acct-1" {
		t.Errorf("ChatGPT-Account-Id = %q, want acct-1", gotAccount)
	}
	if gotSession != "sess-1" {
		t.Errorf("Session_Id = %q, want sess-1", gotSession)
	}
	if resp.Usage.InputTokens == nil || *resp.Usage.InputTokens != 1 {
		t.Errorf("Usage.InputTokens = %v, want 1", resp.Usage.InputTokens)
	}
}

func TestBuildRequestDefaultsBaseURL(t *testing.T) {
	httpReq, err := New().buildRequest(context.Background(), &credential.Entry{Metadata: map[string]any{}}, upstream.Request{Payload: []byte(`{}`)}, false)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if got, want := httpReq.URL.String(), defaultBaseURL+"/responses"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestExecuteStreamExtractsUsageFromNestedResponseCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"type":"response.output_text.delta","output_index":0,"delta":"hi"}` + "\n"))
		w.Write([]byte(`data: {"type":"response.completed","response":{"id":"resp_1","model":"gpt-5","usage":{"input_tokens":3,"output_tokens":4}}}` + "\n"))
	}))
	defer srv.Close()

	var lines int
	usage, err := New().ExecuteStream(context.Background(), newEntry(srv.URL), upstream.Request{Payload: []byte(`{}`)}, func([]byte) error {
		lines++
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if lines != 2 {
		t.Errorf("forwarded %d lines, want 2", lines)
	}
	if usage.InputTokens == nil || *usage.InputTokens != 3 {
		t.Errorf("Usage.InputTokens = %v, want 3 (extracted from the nested response object)", usage.InputTokens)
	}
}

func TestRefreshIsNoOp(t *testing.T) {
	entry := &credential.Entry{ID: "e1"}
	got, err := New().Refresh(context.Background(), entry)
	if err != nil || got != entry {
		t.Errorf("Refresh = (%v, %v), want the same entry unchanged", got, err)
	}
}
