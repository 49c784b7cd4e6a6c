// Package openaicompat implements the generic OpenAI-compatible Chat
// Completions upstream used for third-party providers (OpenRouter, Groq,
// local vLLM/Ollama endpoints, etc.): a plain bearer API key against a
// caller-supplied base_url, no OAuth, no provider-specific envelope.
//
// Grounded on internal/runtime/executor/openai_compat_executor.go, the
// teacher's catch-all executor for everything that isn't one of its
// named first-party backends.
package openaicompat

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/module-gw/gproxy/internal/upstream"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Identifier() string { return "openai_compat" }

func (p *Provider) buildRequest(ctx context.Context, entry *credential.Entry, req upstream.Request) (*http.Request, error) {
	baseURL := strings.TrimSuffix(entry.Attributes["base_url"], "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(req.Payload))
	if err != nil {
		return nil, err
	}
	if apiKey := entry.Attributes["api_key"]; apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

func (p *Provider) Execute(ctx context.Context, entry *credential.Entry, req upstream.Request) (upstream.Response, error) {
	httpReq, err := p.buildRequest(ctx, entry, req)
	if err != nil {
		return upstream.Response{}, err
	}
	resp, err := httputil.Do(ctx, httpReq)
	if err != nil {
		return upstream.Response{}, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return upstream.Response{}, err
	}
	ir := wire.DecodeOpenAIChatResponse(body)
	return upstream.Response{Payload: body, Usage: ir.Usage}, nil
}

func (p *Provider) ExecuteStream(ctx context.Context, entry *credential.Entry, req upstream.Request, handle upstream.StreamHandler) (wire.Usage, error) {
	req.Stream = true
	httpReq, err := p.buildRequest(ctx, entry, req)
	if err != nil {
		return wire.Usage{}, err
	}
	resp, err := httputil.Do(ctx, httpReq)
	if err != nil {
		return wire.Usage{}, err
	}
	var usage wire.Usage
	err = httputil.ScanLines(resp, func(line []byte) error {
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 || string(payload) == "[DONE]" {
			return nil
		}
		ir := wire.DecodeOpenAIChatResponse(payload)
		if ir.Usage.TotalTokens != nil {
			usage = ir.Usage
		}
		return handle(payload)
	})
	return usage, err
}

func (p *Provider) Refresh(ctx context.Context, entry *credential.Entry) (*credential.Entry, error) {
	return entry, nil
}
