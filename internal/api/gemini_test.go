package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/upstream"
)

func TestGeminiActionHandlerGenerateContent(t *testing.T) {
	p := &fakeProvider{id: "gemini_cli", response: upstream.Response{Payload: []byte(`{"candidates":[]}`)}}
	gw, route := newTestGateway(constant.Gemini, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-pro:generateContent", strings.NewReader(`{}`))
	c.Params = gin.Params{{Key: "action", Value: "gemini-2.5-pro:generateContent"}}

	geminiActionHandler(gw, route)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestGeminiActionHandlerStreamGenerateContent(t *testing.T) {
	p := &fakeProvider{id: "gemini_cli", streamOut: [][]byte{[]byte("data: one")}}
	gw, route := newTestGateway(constant.Gemini, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-pro:streamGenerateContent", strings.NewReader(`{}`))
	c.Params = gin.Params{{Key: "action", Value: "gemini-2.5-pro:streamGenerateContent"}}

	geminiActionHandler(gw, route)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestGeminiActionHandlerCountTokens(t *testing.T) {
	p := &fakeProvider{id: "gemini_cli", response: upstream.Response{Payload: []byte(`{"totalTokens":5}`)}}
	gw, route := newTestGateway(constant.Gemini, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-pro:countTokens", strings.NewReader(`{}`))
	c.Params = gin.Params{{Key: "action", Value: "gemini-2.5-pro:countTokens"}}

	geminiActionHandler(gw, route)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gjson.GetBytes(w.Body.Bytes(), "totalTokens").Int() != 5 {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGeminiActionHandlerMalformedActionReturns400(t *testing.T) {
	gw, route := newTestGateway(constant.Gemini, &fakeProvider{id: "gemini_cli"})

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-pro", strings.NewReader(`{}`))
	c.Params = gin.Params{{Key: "action", Value: "gemini-2.5-pro"}}

	geminiActionHandler(gw, route)(c)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an action with no ':method' suffix", w.Code)
	}
}

func TestGeminiActionHandlerUnknownMethodReturns404(t *testing.T) {
	gw, route := newTestGateway(constant.Gemini, &fakeProvider{id: "gemini_cli"})

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-pro:bogusMethod", strings.NewReader(`{}`))
	c.Params = gin.Params{{Key: "action", Value: "gemini-2.5-pro:bogusMethod"}}

	geminiActionHandler(gw, route)(c)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unrecognized gemini method", w.Code)
	}
}

func TestGeminiModelsGetHandlerStripsModelsPrefix(t *testing.T) {
	p := &fakeProvider{id: "gemini_cli", response: upstream.Response{Payload: []byte(`{"name":"models/gemini-2.5-pro"}`)}}
	gw, route := newTestGateway(constant.Gemini, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/v1beta/models/gemini-2.5-pro", nil)
	c.Params = gin.Params{{Key: "action", Value: "models/gemini-2.5-pro"}}

	geminiModelsGetHandler(gw, route)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
