// Package codex implements the ChatGPT-backend Codex upstream, which
// speaks the OpenAI Responses wire protocol natively — the same protocol
// this gateway's openai-responses inbound surface already uses, so no IR
// round trip is needed for the request/response bodies themselves, only
// for the header/URL plumbing OAuth-gated Codex access requires.
//
// Grounded on internal/runtime/executor/codex_executor.go's OAuth bearer
// header set and chatgpt.com/backend-api/codex/responses endpoint.
package codex

import (
	"bytes"
	"context"
	"net/http"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/module-gw/gproxy/internal/upstream"
	"github.com/tidwall/gjson"
)

const defaultBaseURL = "https://chatgpt.com/backend-api/codex"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Identifier() string { return "codex" }

func (p *Provider) buildRequest(ctx context.Context, entry *credential.Entry, req upstream.Request, stream bool) (*http.Request, error) {
	baseURL := entry.Attributes["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/responses", bytes.NewReader(req.Payload))
	if err != nil {
		return nil, err
	}
	accessToken, _ := entry.Metadata["access_token"].(string)
	accountID, _ := entry.Metadata["chatgpt_account_id"].(string)
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("OpenAI-Beta", "responses=experimental")
	if accountID != "" {
		httpReq.Header.Set("ChatGPT-Account-Id", accountID)
	}
	httpReq.Header.Set("Session_Id", entry.ID)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

func (p *Provider) Execute(ctx context.Context, entry *credential.Entry, req upstream.Request) (upstream.Response, error) {
	httpReq, err := p.buildRequest(ctx, entry, req, false)
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
	ir := wire.DecodeOpenAIResponsesResponse(body)
	return upstream.Response{Payload: body, Usage: ir.Usage}, nil
}

func (p *Provider) ExecuteStream(ctx context.Context, entry *credential.Entry, req upstream.Request, handle upstream.StreamHandler) (wire.Usage, error) {
	httpReq, err := p.buildRequest(ctx, entry, req, true)
	if err != nil {
		return wire.Usage{}, err
	}
	resp, err := httputil.Do(ctx, httpReq)
	if err != nil {
		return wire.Usage{}, err
	}
	var usage wire.Usage
	err = httputil.ScanLines(resp, func(line []byte) error {
		if bytes.Contains(line, []byte(`"response.completed"`)) {
			payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
			if u, ok := extractCompletedUsage(payload); ok {
				usage = u
			}
		}
		return handle(line)
	})
	return usage, err
}

func extractCompletedUsage(payload []byte) (wire.Usage, bool) {
	inner := gjson.GetBytes(payload, "response")
	if !inner.Exists() {
		return wire.Usage{}, false
	}
	resp := wire.DecodeOpenAIResponsesResponse([]byte(inner.Raw))
	if resp.Usage.InputTokens == nil {
		return wire.Usage{}, false
	}
	return resp.Usage, true
}

func (p *Provider) Refresh(ctx context.Context, entry *credential.Entry) (*credential.Entry, error) {
	return entry, nil
}
