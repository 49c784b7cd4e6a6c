package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/dispatch"
	"github.com/module-gw/gproxy/internal/gateway"
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/module-gw/gproxy/internal/upstream"
)

type fakeProvider struct {
	id        string
	response  upstream.Response
	streamOut [][]byte
	err       error
}

func (f *fakeProvider) Identifier() string { return f.id }

func (f *fakeProvider) Execute(ctx context.Context, entry *credential.Entry, req upstream.Request) (upstream.Response, error) {
	return f.response, f.err
}

func (f *fakeProvider) ExecuteStream(ctx context.Context, entry *credential.Entry, req upstream.Request, handle upstream.StreamHandler) (wire.Usage, error) {
	for _, line := range f.streamOut {
		if err := handle(line); err != nil {
			return wire.Usage{}, err
		}
	}
	return wire.Usage{}, f.err
}

func (f *fakeProvider) Refresh(ctx context.Context, entry *credential.Entry) (*credential.Entry, error) {
	return entry, nil
}

func newTestGateway(proto constant.Protocol, p *fakeProvider) (*gateway.Gateway, string) {
	gw := gateway.New()
	table := dispatch.NativeTable(proto)
	pool := credential.NewPool([]*credential.Entry{{ID: "e1", Provider: p.id, Enabled: true, Weight: 1}})
	name := "route-" + p.id
	gw.Register(&gateway.Route{Name: name, Protocol: proto, Table: &table, Pool: pool, Upstream: p})
	return gw, name
}

func newGinContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestDispatchNonStreamWritesTransformedBody(t *testing.T) {
	p := &fakeProvider{id: "claude_code", response: upstream.Response{Payload: []byte(`{"id":"m1"}`)}}
	gw, route := newTestGateway(constant.Claude, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"claude-3-opus"}`))

	dispatchNonStream(gw, route, constant.ClaudeMessages)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gjson.GetBytes(w.Body.Bytes(), "id").String() != "m1" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDispatchNonStreamUnknownRouteReturns404(t *testing.T) {
	gw := gateway.New()
	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{}`))

	dispatchNonStream(gw, "missing", constant.ClaudeMessages)(c)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unregistered route", w.Code)
	}
}

func TestDispatchNonStreamUpstreamErrorMapsStatus(t *testing.T) {
	p := &fakeProvider{id: "claude_code", err: upstream.StatusError{Code: 429, Body: "rate limited"}}
	gw, route := newTestGateway(constant.Claude, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"m"}`))

	dispatchNonStream(gw, route, constant.ClaudeMessages)(c)

	if w.Code != 429 {
		t.Errorf("status = %d, want 429 to be propagated from the upstream error", w.Code)
	}
}

func TestDualModeHandlerBuffersWhenStreamFieldAbsent(t *testing.T) {
	p := &fakeProvider{id: "claude_code", response: upstream.Response{Payload: []byte(`{"id":"m1"}`)}}
	gw, route := newTestGateway(constant.Claude, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"claude-3-opus"}`))

	dualModeHandler(gw, route, constant.ClaudeMessages, constant.ClaudeMessagesStream)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gjson.GetBytes(w.Body.Bytes(), "id").String() != "m1" {
		t.Errorf("body = %s, want the buffered response", w.Body.String())
	}
}

func TestDualModeHandlerStreamsWhenStreamFieldTrue(t *testing.T) {
	p := &fakeProvider{id: "claude_code", streamOut: [][]byte{[]byte("data: one"), []byte("data: two")}}
	gw, route := newTestGateway(constant.Claude, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"claude-3-opus","stream":true}`))

	dualModeHandler(gw, route, constant.ClaudeMessages, constant.ClaudeMessagesStream)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "data: one") || !strings.Contains(body, "data: two") {
		t.Errorf("body = %q, want both streamed lines framed as SSE", body)
	}
}

func TestModelsListHandlerServesCatalog(t *testing.T) {
	p := &fakeProvider{id: "claude_code", response: upstream.Response{Payload: []byte(`{"data":[{"id":"m1"}]}`)}}
	gw, route := newTestGateway(constant.Claude, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)

	modelsListHandler(gw, route, constant.ClaudeModelsList)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestModelsGetHandlerStripsModelsPrefixFromPathParam(t *testing.T) {
	p := &fakeProvider{id: "claude_code", response: upstream.Response{Payload: []byte(`{"id":"claude-3-opus"}`)}}
	gw, route := newTestGateway(constant.Claude, p)

	c, w := newGinContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models/models/claude-3-opus", nil)
	c.Params = gin.Params{{Key: "model", Value: "models/claude-3-opus"}}

	modelsGetHandler(gw, route, constant.ClaudeModelsGet)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
