package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/gateway"
	"github.com/module-gw/gproxy/internal/upstream"
)

func TestUnifiedModelsHandlerDefaultsToOpenAIShape(t *testing.T) {
	p := &fakeProvider{id: "openai_compat", response: upstream.Response{Payload: []byte(`{"object":"list","data":[{"id":"m1"}]}`)}}
	gw, route := newTestGateway(constant.OpenAIChat, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)

	unifiedModelsHandler(gw, route)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gjson.GetBytes(w.Body.Bytes(), "object").String() != "list" {
		t.Errorf("body = %s, want the OpenAI list shape", w.Body.String())
	}
}

func TestUnifiedModelsHandlerRoutesClaudeCliUserAgentToClaudeShape(t *testing.T) {
	p := &fakeProvider{id: "openai_compat", response: upstream.Response{Payload: []byte(`{"models":[{"name":"m1"}]}`)}}
	gw, route := newTestGateway(constant.OpenAIChat, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	c.Request.Header.Set("User-Agent", "claude-cli/1.0")

	unifiedModelsHandler(gw, route)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestUnifiedModelsHandlerUnknownRouteReturns404(t *testing.T) {
	gw := gateway.New()
	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)

	unifiedModelsHandler(gw, "missing")(c)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unregistered route", w.Code)
	}
}
