// Package geminicli implements the Gemini Code Assist ("Cloud Code")
// OAuth-backed upstream: a distinct endpoint and envelope from plain
// Gemini API keys, wrapping the request in a {project, request} envelope
// and unwrapping the {response: {...}} reply, the one Gemini backend that
// needs a GCP project ID alongside the OAuth token.
//
// Grounded on internal/runtime/executor/gemini_cli_executor.go's
// cloudcode-pa.googleapis.com/v1internal:{generateContent,streamGenerateContent}
// endpoints and its project-envelope wrapping.
package geminicli

import (
	"bytes"
	"context"
	"net/http"

	"github.com/module-gw/gproxy/internal/credential"
	"github.com/module-gw/gproxy/internal/provider/httputil"
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/module-gw/gproxy/internal/upstream"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const defaultBaseURL = "https://cloudcode-pa.googleapis.com/v1internal"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Identifier() string { return "gemini_cli" }

func envelope(projectID, model string, payload []byte) []byte {
	env := []byte(`{}`)
	env, _ = sjson.SetBytes(env, "project", projectID)
	env, _ = sjson.SetBytes(env, "model", model)
	env, _ = sjson.SetRawBytes(env, "request", payload)
	return env
}

func unwrap(raw []byte) []byte {
	if inner := gjson.GetBytes(raw, "response"); inner.Exists() {
		return []byte(inner.Raw)
	}
	return raw
}

func (p *Provider) endpoint(entry *credential.Entry, op string) string {
	baseURL := entry.Attributes["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return baseURL + "/" + op
}

func (p *Provider) buildRequest(ctx context.Context, entry *credential.Entry, req upstream.Request, stream bool) (*http.Request, error) {
	op := "generateContent"
	if stream {
		op = "streamGenerateContent?alt=sse"
	}
	body := envelope(entry.Attributes["project_id"], req.Model, req.Payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(entry, op), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	accessToken, _ := entry.Metadata["access_token"].(string)
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
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
	inner := unwrap(body)
	ir := wire.DecodeGeminiResponse(inner, req.Model)
	return upstream.Response{Payload: inner, Usage: ir.Usage}, nil
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
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 {
			return nil
		}
		inner := unwrap(payload)
		ir := wire.DecodeGeminiResponse(inner, req.Model)
		if ir.Usage.TotalTokens != nil {
			usage = ir.Usage
		}
		return handle(inner)
	})
	return usage, err
}

func (p *Provider) Refresh(ctx context.Context, entry *credential.Entry) (*credential.Entry, error) {
	return entry, nil
}
