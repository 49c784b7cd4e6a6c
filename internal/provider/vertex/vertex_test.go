package vertex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/module-gw/gproxy/internal/upstream"
)

func newEntry(t *testing.T, srv *httptest.Server) (*credential.Entry, context.Context) {
	t.Helper()
	host := strings.TrimPrefix(srv.URL, "https://")
	entry := &credential.Entry{
		Attributes: map[string]string{"host": host, "project_id": "proj-1", "location": "us-central1"},
		Metadata:   map[string]any{"access_token": "tok-123"},
	}
	ctx := context.WithValue(context.Background(), httputil.RoundTripperKey, srv.Client().Transport)
	return entry, ctx
}

func TestIdentifier(t *testing.T) {
	if New().Identifier() != "vertex" {
		t.Errorf("Identifier() = %q, want vertex", New().Identifier())
	}
}

func TestBasePathDefaultsLocationAndHost(t *testing.T) {
	got := basePath(&credential.Entry{Attributes: map[string]string{"project_id": "proj-1"}})
	want := "https://aiplatform.googleapis.com/v1/projects/proj-1/locations/us-central1/publishers/google/models"
	if got != want {
		t.Errorf("basePath = %q, want %q", got, want)
	}
}

func TestExecuteBuildsModelQualifiedURL(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2,"totalTokenCount":3}}`))
	}))
	defer srv.Close()
	entry, ctx := newEntry(t, srv)

	resp, err := New().Execute(ctx, entry, upstream.Request{Model: "gemini-2.5-pro", Payload: []byte(`{"contents":[]}`)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(gotPath, "/publishers/google/models/gemini-2.5-pro:generateContent") {
		t.Errorf("path = %q, want it to contain the model-qualified generateContent op", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
	if resp.Usage.TotalTokens == nil || *resp.Usage.TotalTokens != 3 {
		t.Errorf("Usage.TotalTokens = %v, want 3", resp.Usage.TotalTokens)
	}
}

func TestExecuteStreamUsesSSEOp(t *testing.T) {
	var gotPath string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}` + "\n"))
	}))
	defer srv.Close()
	entry, ctx := newEntry(t, srv)

	_, err := New().ExecuteStream(ctx, entry, upstream.Request{Model: "gemini-2.5-pro"}, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if !strings.Contains(gotPath, ":streamGenerateContent?alt=sse") {
		t.Errorf("path = %q, want it to end with streamGenerateContent SSE op", gotPath)
	}
}

func TestListPublisherModelsFetchesCatalog(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "view=PUBLISHER_MODEL_VIEW_BASIC") {
			t.Errorf("expected view query param, got %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"publisherModels":[{"name":"gemini-pro@001"}]}`))
	}))
	defer srv.Close()
	entry, ctx := newEntry(t, srv)

	body, err := New().ListPublisherModels(ctx, entry)
	if err != nil {
		t.Fatalf("ListPublisherModels: %v", err)
	}
	if !strings.Contains(string(body), "gemini-pro") {
		t.Errorf("body = %s, want it to contain gemini-pro", body)
	}
}

func TestRefreshIsNoOp(t *testing.T) {
	entry := &credential.Entry{ID: "e1"}
	got, err := New().Refresh(context.Background(), entry)
	if err != nil || got != entry {
		t.Errorf("Refresh = (%v, %v), want the same entry unchanged", got, err)
	}
}
