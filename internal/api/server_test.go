package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/dispatch"
	"github.com/module-gw/gproxy/internal/gateway"
	"github.com/module-gw/gproxy/internal/upstream"
)

func newTestServerEngine(t *testing.T) http.Handler {
	t.Helper()
	gw := gateway.New()

	register := func(proto constant.Protocol, name, provID string, resp upstream.Response) {
		table := dispatch.NativeTable(proto)
		pool := credential.NewPool([]*credential.Entry{{ID: "e1", Provider: provID, Enabled: true, Weight: 1}})
		gw.Register(&gateway.Route{
			Name:     name,
			Protocol: proto,
			Table:    &table,
			Pool:     pool,
			Upstream: &fakeProvider{id: provID, response: resp},
		})
	}
	register(constant.Claude, "claude", "claude_code", upstream.Response{Payload: []byte(`{"id":"m1"}`)})
	register(constant.Gemini, "gemini", "gemini_cli", upstream.Response{Payload: []byte(`{"candidates":[]}`)})
	register(constant.OpenAIChat, "openai_chat", "openai_compat", upstream.Response{Payload: []byte(`{"id":"c1"}`)})
	register(constant.OpenAIResponse, "openai_resp", "openai_compat", upstream.Response{Payload: []byte(`{"id":"r1"}`)})

	srv := NewServer(0, true, gw, Routes{
		Claude:     "claude",
		Gemini:     "gemini",
		OpenAIChat: "openai_chat",
		OpenAIResp: "openai_resp",
	}, "", nil, nil)
	return srv.engine
}

func TestServerRootEndpointDescribesRoutes(t *testing.T) {
	engine := newTestServerEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "gproxy gateway") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestServerMessagesRouteDispatchesToClaudeRoute(t *testing.T) {
	engine := newTestServerEngine(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"claude-3-opus"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestServerChatCompletionsRouteDispatchesToOpenAIChatRoute(t *testing.T) {
	engine := newTestServerEngine(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestServerGeminiActionRouteDispatches(t *testing.T) {
	engine := newTestServerEngine(t)
	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-pro:generateContent", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestServerEnforcesAuthMiddlewareWhenAPIKeySet(t *testing.T) {
	gw := gateway.New()
	table := dispatch.NativeTable(constant.Claude)
	pool := credential.NewPool([]*credential.Entry{{ID: "e1", Provider: "claude_code", Enabled: true, Weight: 1}})
	gw.Register(&gateway.Route{Name: "claude", Protocol: constant.Claude, Table: &table, Pool: pool, Upstream: &fakeProvider{id: "claude_code"}})

	srv := NewServer(0, true, gw, Routes{Claude: "claude"}, "secret-key", nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a matching API key", w.Code)
	}
}

func TestServerStartAndStop(t *testing.T) {
	gw := gateway.New()
	srv := NewServer(0, true, gw, Routes{}, "", nil, nil)
	go srv.Start()
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
