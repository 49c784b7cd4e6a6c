package geminicli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/upstream"
	"github.com/tidwall/gjson"
)

func newEntry(baseURL string) *credential.Entry {
	return &credential.Entry{
		Attributes: map[string]string{"base_url": baseURL, "project_id": "proj-1"},
		Metadata:   map[string]any{"access_token": "tok-123"},
	}
}

func TestIdentifier(t *testing.T) {
	if New().Identifier() != "gemini_cli" {
		t.Errorf("Identifier() = %q, want gemini_cli", New().Identifier())
	}
}

func TestEnvelopeWrapsProjectModelAndRequest(t *testing.T) {
	env := envelope("proj-1", "gemini-2.5-pro", []byte(`{"contents":[]}`))
	if gjson.GetBytes(env, "project").String() != "proj-1" {
		t.Errorf("project = %q, want proj-1", gjson.GetBytes(env, "project").String())
	}
	if gjson.GetBytes(env, "model").String() != "gemini-2.5-pro" {
		t.Errorf("model = %q, want gemini-2.5-pro", gjson.GetBytes(env, "model").String())
	}
	if !gjson.GetBytes(env, "request.contents").Exists() {
		t.Error("expected request.contents to be preserved")
	}
}

func TestUnwrapExtractsResponseField(t *testing.T) {
	raw := []byte(`{"response":{"candidates":[]}}`)
	if got, want := string(unwrap(raw)), `{"candidates":[]}`; got != want {
		t.Errorf("unwrap = %q, want %q", got, want)
	}
}

func TestUnwrapPassesThroughWhenNoResponseField(t *testing.T) {
	raw := []byte(`{"candidates":[]}`)
	if string(unwrap(raw)) != string(raw) {
		t.Errorf("unwrap = %q, want unchanged", unwrap(raw))
	}
}

func TestExecuteEnvelopesRequestAndUnwrapsResponse(t *testing.T) {
	var gotBody, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2,"totalTokenCount":3}}}`))
	}))
	defer srv.Close()

	req := upstream.Request{Model: "gemini-2.5-pro", Payload: []byte(`{"contents":[]}`)}
	resp, err := New().Execute(context.Background(), newEntry(srv.URL), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotPath != "/generateContent" {
		t.Errorf("path = %q, want /generateContent", gotPath)
	}
	if gjson.Get(gotBody, "project").String() != "proj-1" {
		t.Errorf("sent body project = %q, want proj-1", gjson.Get(gotBody, "project").String())
	}
	if resp.Usage.TotalTokens == nil || *resp.Usage.TotalTokens != 3 {
		t.Errorf("Usage.TotalTokens = %v, want 3", resp.Usage.TotalTokens)
	}
	if gjson.GetBytes(resp.Payload, "candidates.0.content.parts.0.text").String() != "hi" {
		t.Errorf("Payload should be unwrapped, got %s", resp.Payload)
	}
}

func TestExecuteStreamUsesSSEEndpointAndUnwraps(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		w.Write([]byte(`data: {"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}}` + "\n"))
	}))
	defer srv.Close()

	var got []byte
	_, err := New().ExecuteStream(context.Background(), newEntry(srv.URL), upstream.Request{Model: "m"}, func(raw []byte) error {
		got = raw
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if gotPath != "/streamGenerateContent?alt=sse" {
		t.Errorf("path = %q, want /streamGenerateContent?alt=sse", gotPath)
	}
	if gjson.GetBytes(got, "candidates.0.content.parts.0.text").String() != "hi" {
		t.Errorf("forwarded line should be unwrapped, got %s", got)
	}
}

func TestRefreshIsNoOp(t *testing.T) {
	entry := &credential.Entry{ID: "e1"}
	got, err := New().Refresh(context.Background(), entry)
	if err != nil || got != entry {
		t.Errorf("Refresh = (%v, %v), want the same entry unchanged", got, err)
	}
}
